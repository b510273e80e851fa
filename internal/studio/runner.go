package studio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"imaginova-studio/internal/credential"
	"imaginova-studio/internal/gemini"
	"imaginova-studio/internal/media"
)

const (
	DefaultPacing      = 20 * time.Second
	DefaultBackoffUnit = 30 * time.Second
	DefaultMaxAttempts = 4
)

// Generator performs a single image-generation call.
type Generator interface {
	GenerateImage(ctx context.Context, req gemini.Request) (media.Asset, error)
}

// ConnectFunc binds a Generator to one API key for the duration of a batch.
type ConnectFunc func(ctx context.Context, apiKey string) (Generator, error)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Options struct {
	Keys    credential.Source
	Connect ConnectFunc

	Pacing      time.Duration
	BackoffUnit time.Duration
	MaxAttempts int

	Sleep  SleepFunc
	Logger *slog.Logger
}

type Runner struct {
	keys        credential.Source
	connect     ConnectFunc
	pacing      time.Duration
	backoffUnit time.Duration
	maxAttempts int
	sleep       SleepFunc
	logger      *slog.Logger
}

func New(opts Options) *Runner {
	r := &Runner{
		keys:        opts.Keys,
		connect:     opts.Connect,
		pacing:      opts.Pacing,
		backoffUnit: opts.BackoffUnit,
		maxAttempts: opts.MaxAttempts,
		sleep:       opts.Sleep,
		logger:      opts.Logger,
	}
	if r.pacing < 0 {
		r.pacing = 0
	}
	if r.backoffUnit <= 0 {
		r.backoffUnit = DefaultBackoffUnit
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = DefaultMaxAttempts
	}
	if r.sleep == nil {
		r.sleep = Sleep
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// WithKeys returns a copy of r that resolves the API key from keys.
func (r *Runner) WithKeys(keys credential.Source) *Runner {
	c := *r
	c.keys = keys
	return &c
}

// DefaultOptions fills the timing fields with the production values.
func DefaultOptions() Options {
	return Options{
		Pacing:      DefaultPacing,
		BackoffUnit: DefaultBackoffUnit,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Sleep waits for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run drives the generator across the batch items in order.
//
// Items run one at a time with a pacing delay between them. A transient
// failure is retried with a linear backoff until MaxAttempts is reached;
// any other failure abandons the item. Partial success is returned as is.
// If ctx ends, Run stops at the next suspension point and returns the
// results gathered so far with ctx.Err().
func (r *Runner) Run(ctx context.Context, b Batch, obs Observer) ([]Result, error) {
	if r.keys == nil || r.connect == nil {
		return nil, fmt.Errorf("studio runner is not configured")
	}

	key, err := r.keys.APIKey(ctx)
	if err != nil {
		return nil, err
	}
	gen, err := r.connect(ctx, key)
	if err != nil {
		return nil, err
	}

	total := len(b.Items)
	log := r.logger.With("flow", string(b.Flow), "items", total)
	log.Info("batch started")
	obs.emit(Event{Kind: EventBatchStart, Total: total})

	results := make([]Result, 0, total)
	var lastErr error

	for i, item := range b.Items {
		if i > 0 && r.pacing > 0 {
			obs.emit(Event{Kind: EventPacing, Index: i, Total: total, Label: item.Label, Delay: r.pacing})
			if err := r.sleep(ctx, r.pacing); err != nil {
				return r.finishCanceled(log, obs, results, total, err)
			}
		}

		img, err := r.runItem(ctx, gen, b, i, item, obs, log)
		if err != nil {
			if ctx.Err() != nil {
				return r.finishCanceled(log, obs, results, total, ctx.Err())
			}
			lastErr = err
			obs.emit(Event{Kind: EventItemAbandoned, Index: i, Total: total, Label: item.Label, Err: err})
			continue
		}

		results = append(results, Result{Label: item.Label, Image: img})
		obs.emit(Event{Kind: EventItemSucceeded, Index: i, Total: total, Label: item.Label})
	}

	obs.emit(Event{Kind: EventBatchDone, Total: total, Succeeded: len(results)})
	if len(results) == 0 {
		log.Error("batch exhausted", "err", lastErr)
		return nil, &ExhaustedError{Flow: b.Flow, LastErr: lastErr}
	}
	log.Info("batch finished", "succeeded", len(results))
	return results, nil
}

func (r *Runner) runItem(ctx context.Context, gen Generator, b Batch, i int, item Item, obs Observer, log *slog.Logger) (media.Asset, error) {
	req := gemini.Request{
		Main:                 b.Main,
		Prompt:               item.Prompt,
		Secondary:            item.Secondary,
		SecondaryInstruction: item.SecondaryInstruction,
		AspectRatio:          item.AspectRatio,
		Model:                b.Model,
	}
	total := len(b.Items)

	attempts := 0
	for {
		obs.emit(Event{Kind: EventItemStart, Index: i, Total: total, Label: item.Label, Attempt: attempts + 1, MaxAttempts: r.maxAttempts})

		img, err := gen.GenerateImage(ctx, req)
		if err == nil {
			return img, nil
		}
		if ctx.Err() != nil {
			return media.Asset{}, ctx.Err()
		}
		if !gemini.IsTransient(err) {
			log.Warn("skipping item", "label", item.Label, "err", err)
			return media.Asset{}, err
		}

		attempts++
		if attempts >= r.maxAttempts {
			log.Error("item failed after max attempts", "label", item.Label, "attempts", attempts, "err", err)
			return media.Asset{}, err
		}

		delay := r.backoffUnit * time.Duration(attempts)
		log.Warn("rate limited, backing off", "label", item.Label, "attempt", attempts, "delay", delay)
		obs.emit(Event{Kind: EventRetrying, Index: i, Total: total, Label: item.Label, Attempt: attempts, MaxAttempts: r.maxAttempts, Delay: delay, Err: err})
		if err := r.sleep(ctx, delay); err != nil {
			return media.Asset{}, err
		}
	}
}

func (r *Runner) finishCanceled(log *slog.Logger, obs Observer, results []Result, total int, err error) ([]Result, error) {
	log.Warn("batch canceled", "succeeded", len(results), "err", err)
	obs.emit(Event{Kind: EventBatchDone, Total: total, Succeeded: len(results), Err: err})
	return results, err
}

// Flow entry points.

func (r *Runner) Portfolio(ctx context.Context, req PortfolioRequest, obs Observer) ([]Result, error) {
	b, err := PortfolioBatch(req)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, b, obs)
}

func (r *Runner) Magic(ctx context.Context, req MagicRequest, obs Observer) ([]Result, error) {
	b, err := MagicBatch(req)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, b, obs)
}

func (r *Runner) Founders(ctx context.Context, req FoundersRequest, obs Observer) ([]Result, error) {
	b, err := FoundersBatch(req)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, b, obs)
}

// Start dispatches on in.Flow; session controllers use it.
func (r *Runner) Start(ctx context.Context, in Inputs, obs Observer) ([]Result, error) {
	b, err := in.Batch()
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, b, obs)
}
