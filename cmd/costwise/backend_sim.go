package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/flipsync/costwise/internal/config"
	"github.com/flipsync/costwise/pkg/backend"
	"github.com/flipsync/costwise/pkg/types"
)

// simulatedBackend stands in for a real model endpoint. Responses are
// deterministic per prompt, and latency follows the tier's declared
// average with a prompt-dependent jitter.
type simulatedBackend struct {
	name     string
	baseCost float64
	quality  float64
	latency  time.Duration
}

func newSimulatedBackend(tier config.TierConfig) *simulatedBackend {
	return &simulatedBackend{
		name:     tier.Name,
		baseCost: tier.BaseCost,
		quality:  tier.QualityScore,
		latency:  time.Duration(tier.AvgLatencyMs) * time.Millisecond,
	}
}

func (s *simulatedBackend) Name() string { return s.name }

func (s *simulatedBackend) Invoke(ctx context.Context, prompt, systemPrompt string, complexity backend.Complexity) (*types.BackendResponse, error) {
	h := fnv.New32a()
	h.Write([]byte(prompt))
	jitter := time.Duration(h.Sum32()%200) * time.Millisecond

	delay := s.latency + jitter
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	cost := s.baseCost
	switch complexity {
	case backend.ComplexityModerate:
		cost *= 1.5
	case backend.ComplexityComplex:
		cost *= 2.5
	case backend.ComplexityExpert:
		cost *= 4.0
	}

	return &types.BackendResponse{
		Content: fmt.Sprintf("[%s/%s] %s\n\n%s", s.name, complexity, systemPrompt, prompt),
		Usage: types.Usage{
			PromptTokens:     len(prompt) / 4,
			CompletionTokens: 128,
		},
		Cost:    cost,
		Quality: s.quality,
		Model:   s.name + "-sim",
		Latency: delay,
	}, nil
}
