package costwise

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flipsync/costwise/internal/batch"
	"github.com/flipsync/costwise/internal/cache"
	"github.com/flipsync/costwise/internal/dedup"
	"github.com/flipsync/costwise/internal/healthcheck"
	"github.com/flipsync/costwise/internal/keys"
	"github.com/flipsync/costwise/internal/metrics"
	"github.com/flipsync/costwise/internal/persist"
	"github.com/flipsync/costwise/internal/stream"
	"github.com/flipsync/costwise/internal/warmer"
	pipeerrors "github.com/flipsync/costwise/pkg/errors"
	"github.com/flipsync/costwise/pkg/router"
	"github.com/flipsync/costwise/pkg/types"
	"github.com/flipsync/costwise/routers"
)

// batchSharedDiscount is applied to per-request backend cost when a flush
// carries more than one request: the shared system prompt and connection
// overhead are amortized across the batch.
const batchSharedDiscount = 0.8

// systemPrompts are the per-operation instructions sent alongside request
// content on every backend call.
var systemPrompts = map[types.OperationKind]string{
	types.OpProductAnalysis:     "Analyze the product described below. Identify brand, model, condition, and notable selling points.",
	types.OpListingGeneration:   "Write a marketplace listing for the item described below: title, description, and item specifics.",
	types.OpMarketResearch:      "Research the market for the item described below: comparable sales, demand signals, and pricing guidance.",
	types.OpVisionAnalysis:      "Describe the item in the referenced images: condition, defects, and identifying details.",
	types.OpContentOptimization: "Rewrite the listing content below for clarity, keyword coverage, and conversion.",
}

// Pipeline is the cost-optimization pipeline. It is safe for concurrent
// use. Create one with New and release its background resources with Close.
type Pipeline struct {
	config *PipelineConfig
	logger *slog.Logger

	keys    *keys.Generator
	cache   *cache.ContentCache
	dedup   *dedup.Deduplicator
	batch   *batch.Accumulator
	router  Router
	warmer  *warmer.Warmer
	planner *stream.Planner
	sink    metrics.Sink

	snapshotter *persist.Snapshotter

	// assess scores complexity for the baseline cost estimate without
	// consulting tier history.
	assess      *routers.BaseRouter
	defaultTier *Tier
	batchable   map[types.OperationKind]bool

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	closeOnce sync.Once
}

// PipelineStats aggregates per-stage counters.
type PipelineStats struct {
	Cache  cache.Stats  `json:"cache"`
	Dedup  dedup.Stats  `json:"dedup"`
	Batch  batch.Stats  `json:"batch"`
	Warmer warmer.Stats `json:"warmer"`
}

// New creates a pipeline from the given options. At least one tier with a
// backend is required.
func New(opts ...Option) (*Pipeline, error) {
	config := DefaultPipelineConfig()
	for _, opt := range opts {
		opt(config)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tiers, err := config.resolveTiers()
	if err != nil {
		return nil, err
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("at least one tier is required")
	}
	for i := range tiers {
		if tiers[i].Backend == nil {
			return nil, fmt.Errorf("tier %q has no backend", tiers[i].Name)
		}
	}

	rt := config.Router
	if rt == nil {
		rt, err = routers.New(config.RouterConfig)
		if err != nil {
			return nil, err
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	p := &Pipeline{
		config:    config,
		logger:    logger,
		keys:      keys.NewGenerator("costwise"),
		cache:     cache.New(config.Cache, logger),
		dedup:     dedup.New(config.Dedup, logger),
		router:    rt,
		planner:   stream.NewPlanner(config.Stream, logger),
		sink:      config.Sink,
		assess:    routers.NewBaseRouter(config.RouterConfig),
		batchable: make(map[types.OperationKind]bool, len(config.BatchableOperations)),
		ctx:       ctx,
		stop:      stop,
	}
	if p.sink == nil {
		p.sink = metrics.NopSink{}
	}

	for i := range tiers {
		tier := tiers[i]
		p.router.AddTier(&tier)
		if tier.Default {
			p.defaultTier = &tier
		}
	}
	if p.defaultTier == nil {
		// Without an explicit default, fall back to the most capable tier
		// so the baseline estimate and degraded calls never under-serve.
		best := p.router.Tiers()[0]
		for _, t := range p.router.Tiers() {
			if t.QualityScore > best.QualityScore {
				best = t
			}
		}
		p.defaultTier = best
	}

	for _, op := range config.BatchableOperations {
		p.batchable[op] = true
	}

	p.batch = batch.New(config.Batch, p.executeBatch, logger)
	p.warmer = warmer.New(config.Warmer, p.warmCandidate, logger)

	if config.SnapshotStore != nil {
		p.snapshotter = persist.NewSnapshotter(config.SnapshotStore, config.SnapshotInterval, logger)
		p.snapshotter.Register(persist.Source{
			Name:    "content_cache",
			Encode:  p.cache.EncodeSnapshot,
			Restore: p.cache.RestoreSnapshot,
		})
		p.snapshotter.RestoreAll(context.Background())
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.snapshotter.Run(p.ctx)
		}()
	}

	if config.WarmingLoop {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.warmer.Run(p.ctx)
		}()
	}

	if config.Health.Enabled {
		prober := healthcheck.NewProber(config.Health, p.router, logger)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			prober.Run(p.ctx)
		}()
	}

	return p, nil
}

// requestState carries per-request bookkeeping across pipeline stages.
type requestState struct {
	req        *types.OptimizationRequest
	key        string
	hash       string
	complexity Complexity

	// originalCost is what the request would have cost on the default
	// tier with no optimization applied.
	originalCost float64

	stages       []string
	current      string
	deduplicated bool
	batched      bool
}

func (s *requestState) enter(stage string) {
	s.current = stage
	s.stages = append(s.stages, stage)
}

// Process runs one request through the pipeline. Malformed requests fail
// fast with a validation error. Failures inside optimization stages degrade
// to a direct call on the default tier; only a failed direct call surfaces
// an error.
func (p *Pipeline) Process(ctx context.Context, req *types.OptimizationRequest) (*types.PipelineResult, error) {
	if err := req.Validate(); err != nil {
		return nil, pipeerrors.NewValidationError(string(operationOf(req)), err.Error())
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	start := time.Now()
	op := string(req.Operation)
	p.sink.Record(metrics.EventRequest, 1, map[string]string{"operation": op, "stage": types.StageReceived})

	state := &requestState{
		req:     req,
		key:     p.keys.NormalizedKey(req),
		hash:    p.keys.ContentHash(req.Content),
		stages:  []string{types.StageReceived},
		current: types.StageReceived,
	}
	state.complexity = p.assess.AssessComplexity(&router.Request{
		Operation:          req.Operation,
		Content:            req.Content,
		Context:            &req.Context,
		QualityRequirement: req.Context.QualityRequirement,
	})
	state.originalCost = routers.EstimateCost(p.defaultTier, state.complexity)

	p.warmer.RecordAccess(state.key, req)

	result, err := p.optimize(ctx, state)
	if err == nil {
		result.Elapsed = time.Since(start)
		p.sink.Record(metrics.EventPipelineLatency, result.Elapsed.Seconds(), map[string]string{"operation": op})
		return result, nil
	}

	p.logger.Warn("optimized path failed, degrading to direct call",
		"request_id", req.ID,
		"operation", op,
		"stage", state.current,
		"error", err,
	)
	p.sink.Record(metrics.EventDegradedFallback, 1, map[string]string{"operation": op, "stage": state.current})

	result, derr := p.degradedCall(ctx, state)
	if derr != nil {
		return nil, derr
	}
	result.Elapsed = time.Since(start)
	p.sink.Record(metrics.EventPipelineLatency, result.Elapsed.Seconds(), map[string]string{"operation": op})
	return result, nil
}

// optimize runs the full optimization path. A panic in any stage is
// converted into an error so the caller can degrade instead of crash.
func (p *Pipeline) optimize(ctx context.Context, state *requestState) (result *types.PipelineResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pipeerrors.NewDegradedFallbackError(state.current, string(state.req.Operation), fmt.Sprintf("stage panic: %v", r))
		}
	}()

	req := state.req
	op := string(req.Operation)

	state.enter(types.StageDedupCheck)
	if res := p.dedup.Check(state.key, state.hash); res.IsDuplicate {
		state.deduplicated = true
		p.sink.Record(metrics.EventDedupHit, 1, map[string]string{
			"operation":    op,
			"rate_limited": strconv.FormatBool(res.Matched != nil && res.Matched.Key != state.key),
		})
	}

	state.enter(types.StageCacheCheck)
	if hit, ok := p.cache.Lookup(state.key, req.Operation, req.Content, req.Context.QualityRequirement); ok {
		state.enter(types.StageCacheHit)
		kind := "exact"
		if hit.Similarity < 1.0 {
			kind = "similarity"
		}
		p.sink.Record(metrics.EventCacheHit, 1, map[string]string{"operation": op, "kind": kind})
		return p.finishCached(state, hit), nil
	}
	p.sink.Record(metrics.EventCacheMiss, 1, map[string]string{"operation": op})
	// A duplicate without a cached payload falls through: the first
	// occurrence is still in flight or its result was not cacheable.

	var resp *types.BackendResponse
	if p.config.BatchingEnabled && p.batchable[req.Operation] {
		state.enter(types.StageBatch)
		state.batched = true
		future, serr := p.batch.Submit(req)
		if serr != nil {
			return nil, serr
		}
		resp, err = future.Result(ctx, p.config.DirectTimeout)
		if err != nil {
			return nil, err
		}
	} else {
		state.enter(types.StageRoute)
		decision, rerr := p.router.Route(ctx, &router.Request{
			Operation:          req.Operation,
			Content:            req.Content,
			Context:            &req.Context,
			QualityRequirement: req.Context.QualityRequirement,
		})
		if rerr != nil {
			return nil, rerr
		}
		p.sink.Record(metrics.EventRoutingDecision, 1, map[string]string{
			"strategy":   string(decision.Strategy),
			"tier":       decision.Tier.Name,
			"complexity": string(decision.Complexity),
		})

		state.enter(types.StageBackendCall)
		resp, err = p.invokeTier(ctx, decision.Tier, req, decision.Complexity)
		if err != nil {
			p.router.RecordOutcome(&router.Outcome{Tier: decision.Tier.Name, Success: false})
			return nil, err
		}
		p.router.RecordOutcome(&router.Outcome{
			Tier:    decision.Tier.Name,
			Success: true,
			Cost:    resp.Cost,
			Quality: resp.Quality,
			Latency: resp.Latency,
		})
		p.sink.Record(metrics.EventBackendLatency, resp.Latency.Seconds(), map[string]string{"tier": decision.Tier.Name})
	}

	cost, quality := p.refine(ctx, req, resp)

	state.enter(types.StageStreamPlan)
	plan := p.planner.Plan([]byte(resp.Content), req.Operation, p.config.Hints)
	p.planner.RecordStreamTime(req.Operation, resp.Latency)

	state.enter(types.StageCacheStore)
	p.cache.Store(state.key, req.Operation, req.Content, resp.Content, quality, cost, 0)

	return p.finish(state, resp.Content, quality, cost, plan), nil
}

// refine applies the configured estimator to the raw backend outcome.
func (p *Pipeline) refine(ctx context.Context, req *types.OptimizationRequest, resp *types.BackendResponse) (cost, quality float64) {
	cost, quality = resp.Cost, resp.Quality
	if p.config.Estimator == nil {
		return cost, quality
	}
	est := p.config.Estimator.Estimate(ctx, req.Operation, req.Content, req.Context)
	if est.CostMultiplier > 0 {
		cost *= est.CostMultiplier
	}
	quality = clamp01(quality + est.QualityDelta)
	return cost, quality
}

// degradedCall bypasses every optimization stage and invokes the default
// tier directly. Its failure is the only backend error Process surfaces.
func (p *Pipeline) degradedCall(ctx context.Context, state *requestState) (*types.PipelineResult, error) {
	req := state.req
	state.enter(types.StageDegradedFallback)

	resp, err := p.invokeTier(ctx, p.defaultTier, req, state.complexity)
	if err != nil {
		return nil, pipeerrors.NewBackendError(string(req.Operation), "direct call failed after degradation").WithCause(err)
	}
	p.router.RecordOutcome(&router.Outcome{
		Tier:    p.defaultTier.Name,
		Success: true,
		Cost:    resp.Cost,
		Quality: resp.Quality,
		Latency: resp.Latency,
	})
	return p.finish(state, resp.Content, resp.Quality, resp.Cost, nil), nil
}

// invokeTier calls a tier's backend under the direct timeout.
func (p *Pipeline) invokeTier(ctx context.Context, tier *Tier, req *types.OptimizationRequest, c Complexity) (*types.BackendResponse, error) {
	if p.config.DirectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.DirectTimeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := tier.Backend.Invoke(ctx, req.Content, systemPrompts[req.Operation], c)
	if err != nil {
		return nil, err
	}
	if resp.Latency == 0 {
		resp.Latency = time.Since(start)
	}
	return resp, nil
}

// finish assembles the terminal result and emits cost telemetry. The
// baseline is lifted to the actual spend when routing picked a tier more
// expensive than the default, so the reported saving is never negative.
func (p *Pipeline) finish(state *requestState, payload string, quality, cost float64, plan *types.StreamPlan) *types.PipelineResult {
	op := string(state.req.Operation)
	original := math.Max(state.originalCost, cost)
	p.sink.Record(metrics.EventOptimizedCost, cost, map[string]string{"operation": op})
	p.sink.Record(metrics.EventCostSaved, original-cost, map[string]string{"operation": op})
	return &types.PipelineResult{
		RequestID:     state.req.ID,
		Payload:       payload,
		QualityScore:  quality,
		OriginalCost:  original,
		OptimizedCost: cost,
		CostSaved:     original - cost,
		AppliedStages: state.stages,
		Batched:       state.batched,
		Deduplicated:  state.deduplicated,
		StreamPlan:    plan,
	}
}

// finishCached assembles the result for a request served entirely from
// cache. The saving is the spend the hit avoided: what the cached entry
// cost to produce, not the routing baseline.
func (p *Pipeline) finishCached(state *requestState, hit *cache.Hit) *types.PipelineResult {
	op := string(state.req.Operation)
	avoided := hit.CostBasis
	if avoided <= 0 {
		avoided = state.originalCost
	}
	p.sink.Record(metrics.EventOptimizedCost, 0, map[string]string{"operation": op})
	p.sink.Record(metrics.EventCostSaved, avoided, map[string]string{"operation": op})
	return &types.PipelineResult{
		RequestID:     state.req.ID,
		Payload:       hit.Payload,
		QualityScore:  hit.Quality,
		OriginalCost:  avoided,
		OptimizedCost: 0,
		CostSaved:     avoided,
		AppliedStages: state.stages,
		CacheHit:      true,
		Deduplicated:  state.deduplicated,
	}
}

// executeBatch is the accumulator's default executor. One routing decision
// covers the whole flush; each request is then invoked on the chosen tier
// with the shared-overhead discount applied.
func (p *Pipeline) executeBatch(ctx context.Context, reqs []*types.OptimizationRequest) ([]*types.BackendResponse, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	lead := reqs[0]
	p.sink.Record(metrics.EventBatchFlush, 1, map[string]string{"operation": string(lead.Operation)})

	decision, err := p.router.Route(ctx, &router.Request{
		Operation:          lead.Operation,
		Content:            lead.Content,
		Context:            &lead.Context,
		QualityRequirement: maxQualityRequirement(reqs),
	})
	if err != nil {
		return nil, err
	}
	p.sink.Record(metrics.EventRoutingDecision, 1, map[string]string{
		"strategy":   string(decision.Strategy),
		"tier":       decision.Tier.Name,
		"complexity": string(decision.Complexity),
	})

	responses := make([]*types.BackendResponse, len(reqs))
	for i, req := range reqs {
		resp, err := p.invokeTier(ctx, decision.Tier, req, decision.Complexity)
		if err != nil {
			p.router.RecordOutcome(&router.Outcome{Tier: decision.Tier.Name, Success: false})
			return nil, err
		}
		if len(reqs) > 1 {
			resp.Cost *= batchSharedDiscount
		}
		p.router.RecordOutcome(&router.Outcome{
			Tier:    decision.Tier.Name,
			Success: true,
			Cost:    resp.Cost,
			Quality: resp.Quality,
			Latency: resp.Latency,
		})
		responses[i] = resp
	}
	return responses, nil
}

// warmCandidate executes one predictive warming call and stores the result.
func (p *Pipeline) warmCandidate(ctx context.Context, c warmer.Candidate) error {
	req := &types.OptimizationRequest{
		ID:        "warm-" + uuid.NewString(),
		Operation: c.Operation,
		Content:   c.Content,
		Context: types.RequestContext{
			Marketplace: c.Marketplace,
			Category:    c.Category,
			Priority:    types.PriorityLow,
		},
	}
	decision, err := p.router.Route(ctx, &router.Request{
		Operation: c.Operation,
		Content:   c.Content,
		Context:   &req.Context,
	})
	if err != nil {
		p.sink.Record(metrics.EventWarmingAttempt, 1, map[string]string{"result": "error"})
		return err
	}
	resp, err := p.invokeTier(ctx, decision.Tier, req, decision.Complexity)
	if err != nil {
		p.sink.Record(metrics.EventWarmingAttempt, 1, map[string]string{"result": "error"})
		p.router.RecordOutcome(&router.Outcome{Tier: decision.Tier.Name, Success: false})
		return err
	}
	p.router.RecordOutcome(&router.Outcome{
		Tier:    decision.Tier.Name,
		Success: true,
		Cost:    resp.Cost,
		Quality: resp.Quality,
		Latency: resp.Latency,
	})
	p.cache.Store(c.Key, c.Operation, c.Content, resp.Content, resp.Quality, resp.Cost, 0)
	p.sink.Record(metrics.EventWarmingAttempt, 1, map[string]string{"result": "ok"})
	return nil
}

// Warm runs one on-demand prediction and warming pass outside the
// periodic loop.
func (p *Pipeline) Warm(ctx context.Context, pctx warmer.PredictionContext, strategies ...warmer.Strategy) int {
	pred := p.warmer.Predict(ctx, pctx, strategies...)
	return p.warmer.Warm(ctx, pred)
}

// Router returns the active router, for inspection of tier stats.
func (p *Pipeline) Router() Router {
	return p.router
}

// Stats returns a snapshot of counters across every pipeline stage.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Cache:  p.cache.Stats(),
		Dedup:  p.dedup.Stats(),
		Batch:  p.batch.Stats(),
		Warmer: p.warmer.Stats(),
	}
}

// Close releases background resources: the batch accumulator, the warming
// loop, and the snapshotter, which takes a final snapshot on the way out.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.batch.Close()
		p.stop()
		p.wg.Wait()
	})
}

func operationOf(req *types.OptimizationRequest) types.OperationKind {
	if req == nil {
		return ""
	}
	return req.Operation
}

func maxQualityRequirement(reqs []*types.OptimizationRequest) float64 {
	var q float64
	for _, r := range reqs {
		if r.Context.QualityRequirement > q {
			q = r.Context.QualityRequirement
		}
	}
	return q
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
