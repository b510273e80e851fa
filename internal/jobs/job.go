package jobs

import (
	"context"
	"sync"
	"time"

	"imaginova-studio/internal/prompt"
	"imaginova-studio/internal/studio"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

const subscriberBuffer = 64

// Job is one submitted batch and everything observed about it so far.
type Job struct {
	ID    string
	Owner string
	Flow  prompt.Flow
	Total int

	CreatedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	status     Status
	results    []studio.Result
	events     []studio.Event
	err        error
	finishedAt time.Time
	subs       map[int]chan studio.Event
	nextSub    int
	canceled   bool
}

// Snapshot is a consistent copy of a job's state.
type Snapshot struct {
	ID         string
	Owner      string
	Flow       prompt.Flow
	Status     Status
	Total      int
	Results    []studio.Result
	Events     []studio.Event
	Err        error
	CreatedAt  time.Time
	FinishedAt time.Time
}

func newJob(id, owner string, b studio.Batch, cancel context.CancelFunc) *Job {
	return &Job{
		ID:        id,
		Owner:     owner,
		Flow:      b.Flow,
		Total:     len(b.Items),
		CreatedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    StatusRunning,
		subs:      make(map[int]chan studio.Event),
	}
}

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	return Snapshot{
		ID:         j.ID,
		Owner:      j.Owner,
		Flow:       j.Flow,
		Status:     j.status,
		Total:      j.Total,
		Results:    append([]studio.Result(nil), j.results...),
		Events:     append([]studio.Event(nil), j.events...),
		Err:        j.err,
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.finishedAt,
	}
}

// Done is closed once the batch has returned.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes or ctx ends.
func (j *Job) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-j.done:
		return j.Snapshot(), nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Cancel asks the running batch to stop. Results gathered so far are kept.
func (j *Job) Cancel() {
	j.mu.Lock()
	j.canceled = true
	j.mu.Unlock()
	j.cancel()
}

// Subscribe returns the events seen so far and a channel carrying the rest.
// The channel is closed when the job finishes or unsubscribe is called. A
// subscriber that falls behind loses events rather than stalling the batch.
func (j *Job) Subscribe() (history []studio.Event, ch <-chan studio.Event, unsubscribe func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	history = append([]studio.Event(nil), j.events...)
	c := make(chan studio.Event, subscriberBuffer)
	if j.status != StatusRunning {
		close(c)
		return history, c, func() {}
	}

	id := j.nextSub
	j.nextSub++
	j.subs[id] = c

	var once sync.Once
	return history, c, func() {
		once.Do(func() {
			j.mu.Lock()
			defer j.mu.Unlock()
			if sub, ok := j.subs[id]; ok {
				delete(j.subs, id)
				close(sub)
			}
		})
	}
}

func (j *Job) observe(ev studio.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.events = append(j.events, ev)
	for _, c := range j.subs {
		select {
		case c <- ev:
		default:
		}
	}
}

// finish records the batch outcome and releases subscribers.
func (j *Job) finish(results []studio.Result, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.results = results
	j.err = err
	j.finishedAt = time.Now()
	switch {
	case err == nil:
		j.status = StatusSucceeded
	case j.canceled:
		j.status = StatusCanceled
	default:
		j.status = StatusFailed
	}

	for id, c := range j.subs {
		delete(j.subs, id)
		close(c)
	}
	close(j.done)
}
