package studio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{Event{Kind: EventBatchStart, Total: 6}, "Starting 6 images..."},
		{Event{Kind: EventPacing, Index: 1, Total: 6, Label: "Film Noir", Delay: 20 * time.Second}, "Cooling down for 20s before Film Noir (2/6)..."},
		{Event{Kind: EventItemStart, Index: 0, Total: 3, Label: "A"}, "Generating A (1/3)..."},
		{Event{Kind: EventItemStart, Index: 0, Total: 3, Label: "A", Attempt: 2, MaxAttempts: 4}, "Generating A (1/3), attempt 2 of 4..."},
		{Event{Kind: EventRetrying, Label: "A", Delay: time.Minute}, "Rate limited on A. Retrying in 1m0s..."},
		{Event{Kind: EventItemSucceeded, Index: 2, Total: 3, Label: "C"}, "C is ready (3/3)."},
		{Event{Kind: EventItemAbandoned, Index: 1, Total: 3, Label: "B"}, "Skipped B (2/3)."},
		{Event{Kind: EventBatchDone, Total: 6, Succeeded: 5}, "Done: 5 of 6 images."},
		{Event{Kind: EventBatchDone, Total: 6, Succeeded: 2, Err: context.Canceled}, "Stopped after 2 of 6 images."},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Describe(tt.ev))
	}
}

func TestNilObserverIsSafe(t *testing.T) {
	var obs Observer
	assert.NotPanics(t, func() { obs.emit(Event{Kind: EventBatchStart}) })

	var got Event
	obs = func(ev Event) { got = ev }
	obs.emit(Event{Kind: EventBatchStart})
	assert.False(t, got.Timestamp.IsZero())
}
