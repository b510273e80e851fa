package studio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"imaginova-studio/internal/gemini"
	"imaginova-studio/internal/media"
)

var (
	errRateLimited = genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "Resource has been exhausted (e.g. check quota)."}
	errUnavailable = genai.APIError{Code: 503, Status: "UNAVAILABLE", Message: "The model is overloaded."}
	errFatal       = errors.New("generation stopped: FINISH_REASON_OTHER")
)

// scriptedGenerator fails the n-th call for an item with script[item][n];
// calls past the script succeed.
type scriptedGenerator struct {
	mu     sync.Mutex
	batch  Batch
	script map[int][]error
	calls  []int
	reqs   []gemini.Request
	onCall func(item int)
}

func (g *scriptedGenerator) GenerateImage(ctx context.Context, req gemini.Request) (media.Asset, error) {
	g.mu.Lock()
	item := g.itemFor(req)
	n := 0
	for _, c := range g.calls {
		if c == item {
			n++
		}
	}
	g.calls = append(g.calls, item)
	g.reqs = append(g.reqs, req)
	onCall := g.onCall
	g.mu.Unlock()

	if onCall != nil {
		onCall(item)
	}
	if err := ctx.Err(); err != nil {
		return media.Asset{}, err
	}
	if errs := g.script[item]; n < len(errs) && errs[n] != nil {
		return media.Asset{}, errs[n]
	}
	return media.Asset{MIMEType: "image/png", Data: []byte(req.Prompt)}, nil
}

func (g *scriptedGenerator) itemFor(req gemini.Request) int {
	for i, it := range g.batch.Items {
		if it.Prompt == req.Prompt {
			return i
		}
	}
	return -1
}

func (g *scriptedGenerator) callsFor(item int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == item {
			n++
		}
	}
	return n
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	hook   func(n int)
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	n := len(s.delays)
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

type countingKeys struct {
	key   string
	err   error
	calls int
}

func (k *countingKeys) APIKey(context.Context) (string, error) {
	k.calls++
	return k.key, k.err
}

type harness struct {
	runner  *Runner
	gen     *scriptedGenerator
	sleeps  *sleepRecorder
	keys    *countingKeys
	dialed  []string
	connErr error
}

func newHarness(b Batch, script map[int][]error) *harness {
	h := &harness{
		gen:    &scriptedGenerator{batch: b, script: script},
		sleeps: &sleepRecorder{},
		keys:   &countingKeys{key: "key-1"},
	}
	h.runner = New(Options{
		Keys: h.keys,
		Connect: func(_ context.Context, apiKey string) (Generator, error) {
			h.dialed = append(h.dialed, apiKey)
			if h.connErr != nil {
				return nil, h.connErr
			}
			return h.gen, nil
		},
		Pacing:      20 * time.Second,
		BackoffUnit: 30 * time.Second,
		MaxAttempts: 4,
		Sleep:       h.sleeps.Sleep,
	})
	return h
}

func labels(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Label)
	}
	return out
}

func seconds(ds []time.Duration) []int {
	out := make([]int, 0, len(ds))
	for _, d := range ds {
		out = append(out, int(d/time.Second))
	}
	return out
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
