package healthcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipsync/costwise/pkg/backend"
	"github.com/flipsync/costwise/pkg/router"
	"github.com/flipsync/costwise/pkg/types"
	"github.com/flipsync/costwise/routers"
)

type flakyBackend struct {
	healthy bool
}

func (f *flakyBackend) Name() string { return "flaky" }

func (f *flakyBackend) Invoke(_ context.Context, _, _ string, _ backend.Complexity) (*types.BackendResponse, error) {
	if !f.healthy {
		return nil, errors.New("connection refused")
	}
	return &types.BackendResponse{Content: "pong"}, nil
}

func proberFixture(t *testing.T) (*Prober, router.Router, *flakyBackend) {
	t.Helper()
	rt := routers.MustNew(router.DefaultConfig())

	stable := &flakyBackend{healthy: true}
	flaky := &flakyBackend{healthy: true}
	rt.AddTier(&backend.Tier{
		Name:        "premium",
		Default:     true,
		Suitability: []backend.Complexity{backend.ComplexityComplex},
		Backend:     stable,
	})
	rt.AddTier(&backend.Tier{
		Name:        "economy",
		Suitability: []backend.Complexity{backend.ComplexitySimple},
		Backend:     flaky,
	})

	p := NewProber(Config{Enabled: true, FailureThreshold: 2}, rt, nil)
	return p, rt, flaky
}

func TestProber_RemovesTierAfterThreshold(t *testing.T) {
	p, rt, flaky := proberFixture(t)
	flaky.healthy = false

	p.ProbeAll(context.Background())
	require.Len(t, rt.Tiers(), 2, "one failure should not remove the tier")

	p.ProbeAll(context.Background())
	require.Len(t, rt.Tiers(), 1)
	assert.Equal(t, "premium", rt.Tiers()[0].Name)
	assert.Equal(t, []string{"economy"}, p.Removed())
}

func TestProber_RestoresRecoveredTier(t *testing.T) {
	p, rt, flaky := proberFixture(t)
	flaky.healthy = false
	p.ProbeAll(context.Background())
	p.ProbeAll(context.Background())
	require.Len(t, rt.Tiers(), 1)

	flaky.healthy = true
	p.ProbeAll(context.Background())
	assert.Len(t, rt.Tiers(), 2)
	assert.Empty(t, p.Removed())
}

func TestProber_NeverRemovesDefaultTier(t *testing.T) {
	rt := routers.MustNew(router.DefaultConfig())
	dead := &flakyBackend{healthy: false}
	rt.AddTier(&backend.Tier{Name: "premium", Default: true, Backend: dead})

	p := NewProber(Config{Enabled: true, FailureThreshold: 1}, rt, nil)
	p.ProbeAll(context.Background())
	p.ProbeAll(context.Background())

	assert.Len(t, rt.Tiers(), 1)
	assert.Empty(t, p.Removed())
}

func TestProber_SuccessResetsFailureCount(t *testing.T) {
	p, rt, flaky := proberFixture(t)

	flaky.healthy = false
	p.ProbeAll(context.Background())
	flaky.healthy = true
	p.ProbeAll(context.Background())
	flaky.healthy = false
	p.ProbeAll(context.Background())

	// Failures never ran consecutively to the threshold.
	assert.Len(t, rt.Tiers(), 2)
}
