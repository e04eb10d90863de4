package routers

import "sync"

// EWMA is an exponentially weighted moving average. It favors recent
// observations, which keeps latency tracking responsive to backend drift.
type EWMA struct {
	mu          sync.RWMutex
	alpha       float64
	value       float64
	initialized bool
}

// NewEWMA creates an EWMA with the given smoothing factor. A higher alpha
// discounts older observations faster.
func NewEWMA(alpha float64) *EWMA {
	return &EWMA{alpha: alpha}
}

// Add updates the moving average with a new observation.
func (e *EWMA) Add(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		e.value = v
		e.initialized = true
		return
	}
	e.value = e.alpha*v + (1.0-e.alpha)*e.value
}

// Value returns the current moving average, or 0 before any observation.
func (e *EWMA) Value() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.value
}

// Initialized reports whether any observation has been recorded.
func (e *EWMA) Initialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}
