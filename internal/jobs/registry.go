// Package jobs runs studio batches in the background and keeps their
// progress around for the people who started them.
package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"

	"imaginova-studio/internal/studio"
)

var (
	ErrBusy     = errors.New("a generation is already running")
	ErrNotFound = errors.New("job not found")
)

// BatchRunner executes one prepared batch.
type BatchRunner interface {
	Run(ctx context.Context, b studio.Batch, obs studio.Observer) ([]studio.Result, error)
}

type Options struct {
	Runner BatchRunner

	// Timeout bounds a single batch; zero means no limit.
	Timeout time.Duration
	// Retention is how long finished jobs stay queryable.
	Retention     time.Duration
	MaxConcurrent int

	Logger *slog.Logger
}

type Registry struct {
	runner  BatchRunner
	timeout time.Duration
	sem     *semaphore.Weighted
	jobs    *cache.Cache
	logger  *slog.Logger

	root   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	active map[string]string
}

func NewRegistry(opts Options) *Registry {
	retention := opts.Retention
	if retention <= 0 {
		retention = 2 * time.Hour
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	root, stop := context.WithCancel(context.Background())
	return &Registry{
		runner:  opts.Runner,
		timeout: opts.Timeout,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		jobs:    cache.New(retention, retention/2),
		logger:  logger,
		root:    root,
		stop:    stop,
		active:  make(map[string]string),
	}
}

// Submit starts b in the background on behalf of owner. Each owner runs at
// most one batch at a time. A nil runner means the registry default.
func (r *Registry) Submit(owner string, b studio.Batch, runner BatchRunner) (*Job, error) {
	if runner == nil {
		runner = r.runner
	}
	if runner == nil {
		return nil, errors.New("jobs: no batch runner configured")
	}

	r.mu.Lock()
	if id, ok := r.active[owner]; ok {
		r.mu.Unlock()
		r.logger.Info("submit rejected, owner busy", "owner", owner, "job_id", id)
		return nil, ErrBusy
	}

	ctx, cancel := context.WithCancel(r.root)
	if r.timeout > 0 {
		ctx, cancel = withTimeout(ctx, cancel, r.timeout)
	}
	job := newJob(uuid.NewString(), owner, b, cancel)
	r.active[owner] = job.ID
	r.mu.Unlock()

	r.jobs.SetDefault(job.ID, job)
	r.logger.Info("job submitted", "job_id", job.ID, "owner", owner, "flow", string(b.Flow), "items", len(b.Items))

	r.wg.Add(1)
	go r.run(ctx, runner, job, b)
	return job, nil
}

func withTimeout(parent context.Context, parentCancel context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, d)
	return ctx, func() {
		cancel()
		parentCancel()
	}
}

func (r *Registry) run(ctx context.Context, runner BatchRunner, job *Job, b studio.Batch) {
	defer r.wg.Done()
	defer job.cancel()

	var (
		results []studio.Result
		err     error
	)
	if err = r.sem.Acquire(ctx, 1); err == nil {
		results, err = runner.Run(ctx, b, job.observe)
		r.sem.Release(1)
	}
	job.finish(results, err)

	r.mu.Lock()
	if r.active[job.Owner] == job.ID {
		delete(r.active, job.Owner)
	}
	r.mu.Unlock()

	// refresh so retention counts from completion
	r.jobs.SetDefault(job.ID, job)

	log := r.logger.With("job_id", job.ID, "owner", job.Owner, "succeeded", len(results))
	if err != nil {
		log.Warn("job finished with error", "err", err)
		return
	}
	log.Info("job finished")
}

func (r *Registry) Get(id string) (*Job, bool) {
	v, ok := r.jobs.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Job), true
}

// Active returns the running job of owner, if any.
func (r *Registry) Active(owner string) (*Job, bool) {
	r.mu.Lock()
	id, ok := r.active[owner]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return r.Get(id)
}

// Cancel stops the job with id if it belongs to owner.
func (r *Registry) Cancel(owner, id string) error {
	job, ok := r.Get(id)
	if !ok || job.Owner != owner {
		return ErrNotFound
	}
	job.Cancel()
	r.logger.Info("job cancel requested", "job_id", id, "owner", owner)
	return nil
}

// Close cancels every running job and waits for them to return.
func (r *Registry) Close() {
	r.stop()
	r.wg.Wait()
}
