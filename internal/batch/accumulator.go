// Package batch accumulates requests into per-operation-kind slots and
// flushes them by size or age. Callers receive a future that resolves when
// the slot executes; a slot is always flushed whole, never partially.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flipsync/costwise/pkg/errors"
	"github.com/flipsync/costwise/pkg/types"
)

// Executor runs one flushed slot. The merge strategy differs per operation
// kind, so executors are registered per kind. It must return one response
// per request, in order.
type Executor func(ctx context.Context, reqs []*types.OptimizationRequest) ([]*types.BackendResponse, error)

// Config holds accumulator configuration.
type Config struct {
	// MaxBatchSize flushes a slot as soon as it holds this many requests.
	// Default: 5.
	MaxBatchSize int `yaml:"max_batch_size"`

	// Timeout flushes a slot once its oldest member reaches this age.
	// Default: 2s.
	Timeout time.Duration `yaml:"timeout"`

	// PollInterval is how often slots are checked for age-based flushes.
	// Default: 100ms.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxQueueDepth fails Submit fast once a slot holds this many pending
	// requests. Default: 100.
	MaxQueueDepth int `yaml:"max_queue_depth"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:  5,
		Timeout:       2 * time.Second,
		PollInterval:  100 * time.Millisecond,
		MaxQueueDepth: 100,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = d.MaxBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = d.MaxQueueDepth
	}
}

// Stats holds accumulator counters.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Flushes   int64 `json:"flushes"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

type outcome struct {
	resp *types.BackendResponse
	err  error
}

// Future resolves to the result of a batched request.
type Future struct {
	ch        chan outcome
	operation types.OperationKind

	mu       sync.Mutex
	resolved bool
	acc      *Accumulator
	req      *types.OptimizationRequest
}

// Result blocks until the batch executes, the context is cancelled, or the
// timeout elapses. A zero timeout waits on the context alone.
func (f *Future) Result(ctx context.Context, timeout time.Duration) (*types.BackendResponse, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case out := <-f.ch:
		return out.resp, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer:
		return nil, errors.NewTimeoutError("batch", string(f.operation), "batch result not ready in time")
	}
}

// Cancel removes the request from its slot if it has not flushed yet.
// Sibling requests in the slot are unaffected. Returns true if the request
// was removed before flush.
func (f *Future) Cancel() bool {
	return f.acc.cancelPending(f)
}

func (f *Future) resolve(out outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return
	}
	f.resolved = true
	f.ch <- out
}

type pending struct {
	req      *types.OptimizationRequest
	future   *Future
	enqueued time.Time
}

type slot struct {
	mu      sync.Mutex
	pending []*pending
}

// Accumulator groups requests per operation kind. One background goroutine
// per kind polls its slot at a fixed interval.
type Accumulator struct {
	config    Config
	executors map[types.OperationKind]Executor
	fallback  Executor
	slots     map[types.OperationKind]*slot
	logger    *slog.Logger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu sync.Mutex // guards slots map and loop startup

	submitted atomic.Int64
	flushes   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
}

// New creates an accumulator. fallback executes kinds without a registered
// executor; a nil logger falls back to slog.Default.
func New(cfg Config, fallback Executor, logger *slog.Logger) *Accumulator {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Accumulator{
		config:    cfg,
		executors: make(map[types.OperationKind]Executor),
		fallback:  fallback,
		slots:     make(map[types.OperationKind]*slot),
		logger:    logger,
		ctx:       ctx,
		stop:      stop,
	}
}

// RegisterExecutor installs a merge strategy for one operation kind.
func (a *Accumulator) RegisterExecutor(op types.OperationKind, exec Executor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.executors[op] = exec
}

// Submit enqueues a request and returns its future. It fails fast with a
// capacity error when the kind's slot is at maximum depth.
func (a *Accumulator) Submit(req *types.OptimizationRequest) (*Future, error) {
	s := a.slotFor(req.Operation)

	f := &Future{
		ch:        make(chan outcome, 1),
		operation: req.Operation,
		acc:       a,
		req:       req,
	}

	s.mu.Lock()
	if len(s.pending) >= a.config.MaxQueueDepth {
		s.mu.Unlock()
		return nil, errors.NewCapacityError("batch", string(req.Operation), "batch queue full")
	}
	s.pending = append(s.pending, &pending{req: req, future: f, enqueued: time.Now()})
	full := len(s.pending) >= a.config.MaxBatchSize
	s.mu.Unlock()

	a.submitted.Add(1)

	// A size-triggered flush happens inline with the submit instead of
	// waiting out the next poll tick.
	if full {
		go a.flush(req.Operation, s)
	}

	return f, nil
}

// Close stops all background loops. Pending futures resolve with a backend
// error from their final flush.
func (a *Accumulator) Close() {
	a.stop()
	a.wg.Wait()

	// Snapshot outside the flush: flush resolves executors through a.mu.
	a.mu.Lock()
	slots := make(map[types.OperationKind]*slot, len(a.slots))
	for op, s := range a.slots {
		slots[op] = s
	}
	a.mu.Unlock()

	for op, s := range slots {
		a.flush(op, s)
	}
}

// Stats returns a snapshot of accumulator counters.
func (a *Accumulator) Stats() Stats {
	return Stats{
		Submitted: a.submitted.Load(),
		Flushes:   a.flushes.Load(),
		Completed: a.completed.Load(),
		Failed:    a.failed.Load(),
		Cancelled: a.cancelled.Load(),
	}
}

func (a *Accumulator) slotFor(op types.OperationKind) *slot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.slots[op]
	if !ok {
		s = &slot{}
		a.slots[op] = s
		a.wg.Add(1)
		go a.pollLoop(op, s)
	}
	return s
}

// pollLoop is the perpetual background task for one operation kind.
func (a *Accumulator) pollLoop(op types.OperationKind, s *slot) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			due := len(s.pending) >= a.config.MaxBatchSize ||
				(len(s.pending) > 0 && time.Since(s.pending[0].enqueued) >= a.config.Timeout)
			s.mu.Unlock()
			if due {
				a.flush(op, s)
			}
		}
	}
}

// flush hands the whole slot to the kind's executor. On executor failure
// every pending future resolves with the same backend error; partial
// success is never silently dropped.
func (a *Accumulator) flush(op types.OperationKind, s *slot) {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	a.flushes.Add(1)

	exec := a.executorFor(op)
	if exec == nil {
		noExec := errors.NewBackendError(string(op), "no executor registered")
		for _, p := range batch {
			p.future.resolve(outcome{err: noExec})
		}
		a.failed.Add(int64(len(batch)))
		return
	}

	reqs := make([]*types.OptimizationRequest, len(batch))
	for i, p := range batch {
		reqs[i] = p.req
	}

	resps, err := exec(a.ctx, reqs)
	if err != nil {
		bErr := errors.NewBackendError(string(op), "batch execution failed").WithCause(err)
		for _, p := range batch {
			p.future.resolve(outcome{err: bErr})
		}
		a.failed.Add(int64(len(batch)))
		a.logger.Warn("batch flush failed", "operation", op, "size", len(batch), "error", err)
		return
	}

	for i, p := range batch {
		if i < len(resps) && resps[i] != nil {
			p.future.resolve(outcome{resp: resps[i]})
			a.completed.Add(1)
		} else {
			p.future.resolve(outcome{err: errors.NewBackendError(string(op), "no response for batched request")})
			a.failed.Add(1)
		}
	}
	a.logger.Debug("batch flushed", "operation", op, "size", len(batch))
}

func (a *Accumulator) executorFor(op types.OperationKind) Executor {
	a.mu.Lock()
	defer a.mu.Unlock()
	if exec, ok := a.executors[op]; ok {
		return exec
	}
	return a.fallback
}

func (a *Accumulator) cancelPending(f *Future) bool {
	a.mu.Lock()
	s, ok := a.slots[f.operation]
	a.mu.Unlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	for i, p := range s.pending {
		if p.future == f {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			s.mu.Unlock()
			f.resolve(outcome{err: context.Canceled})
			a.cancelled.Add(1)
			return true
		}
	}
	s.mu.Unlock()
	return false
}
