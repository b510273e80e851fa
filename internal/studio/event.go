package studio

import (
	"fmt"
	"time"
)

// EventKind identifies a step of a running batch.
type EventKind string

const (
	EventBatchStart    EventKind = "batch_start"
	EventPacing        EventKind = "pacing"
	EventItemStart     EventKind = "item_start"
	EventRetrying      EventKind = "retrying"
	EventItemSucceeded EventKind = "item_succeeded"
	EventItemAbandoned EventKind = "item_abandoned"
	EventBatchDone     EventKind = "batch_done"
)

// Event is a progress notification. Index is 0-based; Attempt is 1-based.
type Event struct {
	Kind        EventKind
	Index       int
	Total       int
	Label       string
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	Succeeded   int
	Err         error
	Timestamp   time.Time
}

// Observer receives events synchronously on the batch goroutine; it must not block.
type Observer func(Event)

func (o Observer) emit(ev Event) {
	if o == nil {
		return
	}
	ev.Timestamp = time.Now()
	o(ev)
}

// Describe renders ev as a one-line progress message.
func Describe(ev Event) string {
	pos := fmt.Sprintf("%d/%d", ev.Index+1, ev.Total)
	switch ev.Kind {
	case EventBatchStart:
		return fmt.Sprintf("Starting %d images...", ev.Total)
	case EventPacing:
		return fmt.Sprintf("Cooling down for %s before %s (%s)...", ev.Delay.Round(time.Second), ev.Label, pos)
	case EventItemStart:
		if ev.Attempt > 1 {
			return fmt.Sprintf("Generating %s (%s), attempt %d of %d...", ev.Label, pos, ev.Attempt, ev.MaxAttempts)
		}
		return fmt.Sprintf("Generating %s (%s)...", ev.Label, pos)
	case EventRetrying:
		return fmt.Sprintf("Rate limited on %s. Retrying in %s...", ev.Label, ev.Delay.Round(time.Second))
	case EventItemSucceeded:
		return fmt.Sprintf("%s is ready (%s).", ev.Label, pos)
	case EventItemAbandoned:
		return fmt.Sprintf("Skipped %s (%s).", ev.Label, pos)
	case EventBatchDone:
		if ev.Err != nil {
			return fmt.Sprintf("Stopped after %d of %d images.", ev.Succeeded, ev.Total)
		}
		return fmt.Sprintf("Done: %d of %d images.", ev.Succeeded, ev.Total)
	}
	return string(ev.Kind)
}
