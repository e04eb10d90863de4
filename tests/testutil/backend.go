// Package testutil provides deterministic test doubles for the pipeline's
// external collaborators.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flipsync/costwise/pkg/backend"
	"github.com/flipsync/costwise/pkg/types"
)

// Call records one backend invocation.
type Call struct {
	Prompt       string
	SystemPrompt string
	Complexity   backend.Complexity
}

// FakeBackend is a deterministic backend.Backend. Latency, cost, and
// quality are fixed per instance; failures can be injected per call count.
type FakeBackend struct {
	BackendName string
	Latency     time.Duration
	Cost        float64
	Quality     float64

	mu       sync.Mutex
	calls    []Call
	failNext int
	failErr  error
}

// NewFakeBackend returns a backend that answers instantly with the given
// cost and quality.
func NewFakeBackend(name string, cost, quality float64) *FakeBackend {
	return &FakeBackend{BackendName: name, Cost: cost, Quality: quality}
}

// Name implements backend.Backend.
func (f *FakeBackend) Name() string { return f.BackendName }

// Invoke implements backend.Backend. The response content is derived from
// the prompt so callers can assert on it.
func (f *FakeBackend) Invoke(ctx context.Context, prompt, systemPrompt string, complexity backend.Complexity) (*types.BackendResponse, error) {
	if f.Latency > 0 {
		select {
		case <-time.After(f.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Prompt: prompt, SystemPrompt: systemPrompt, Complexity: complexity})
	shouldFail := f.failNext > 0
	if shouldFail {
		f.failNext--
	}
	err := f.failErr
	f.mu.Unlock()

	if shouldFail {
		return nil, err
	}

	return &types.BackendResponse{
		Content: fmt.Sprintf("%s response to: %s", f.BackendName, prompt),
		Usage: types.Usage{
			PromptTokens:     len(prompt) / 4,
			CompletionTokens: 64,
		},
		Cost:    f.Cost,
		Quality: f.Quality,
		Model:   f.BackendName,
		Latency: f.Latency,
	}, nil
}

// FailNext makes the next n invocations return err.
func (f *FakeBackend) FailNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
	f.failErr = err
}

// Calls returns the number of invocations so far.
func (f *FakeBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// CallLog returns a copy of all recorded invocations.
func (f *FakeBackend) CallLog() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}
