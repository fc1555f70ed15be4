// Package admission gates calls to a metered backend behind a fingerprint
// cache, a cost predictor, and a hard budget.
package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatewise-ai/gatewise/pkg/cache/memory"
	"github.com/gatewise-ai/gatewise/pkg/config"
	"github.com/gatewise-ai/gatewise/pkg/fingerprint"
	"github.com/gatewise-ai/gatewise/pkg/metrics"
	"github.com/gatewise-ai/gatewise/pkg/models"
	"github.com/gatewise-ai/gatewise/pkg/predictor"
	"github.com/gatewise-ai/gatewise/pkg/registry"
)

// ErrUnknownCaller is returned when the caller ID has no registered profile.
var ErrUnknownCaller = registry.ErrUnknownCaller

// ErrUnsupportedCapability is returned when the request type is outside the
// caller's declared capability set.
var ErrUnsupportedCapability = errors.New("unsupported capability")

// ErrBudgetExceeded is returned when admitting the request would push spend
// past the budget limit.
var ErrBudgetExceeded = metrics.ErrBudgetExceeded

// Executor performs the metered unit of work once a request is admitted.
// Implementations belong to the host; retry policy is theirs, not this
// layer's.
type Executor interface {
	Execute(ctx context.Context, requestType string, input map[string]any) (models.Result, error)
}

// Recorder receives a copy of every terminal admission decision. The
// controller treats recording as best-effort.
type Recorder interface {
	Record(ctx context.Context, rec models.AdmissionRecord) error
}

// predictionAccuracyWindow bounds the retained predicted/actual cost pairs.
const predictionAccuracyWindow = 512

type predPair struct {
	predicted float64
	actual    float64
}

// Controller orchestrates fingerprinting, cache lookup, cost prediction,
// budget enforcement, dispatch, and bookkeeping. The executor is the only
// step allowed to block for real I/O, and it runs outside every bookkeeping
// lock.
type Controller struct {
	registry  *registry.Registry
	cache     *memory.Cache
	predictor predictor.Predictor
	ledger    *metrics.Ledger
	exec      Executor
	recorder  Recorder

	complexity map[string]float64

	mu        sync.Mutex
	predPairs []predPair
	predNext  int
	predFull  bool

	now func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder attaches an admission decision recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithComplexity overrides the per-request-type complexity base factors.
func WithComplexity(table map[string]float64) Option {
	return func(c *Controller) { c.complexity = table }
}

// New creates a Controller from pre-built components.
func New(reg *registry.Registry, cache *memory.Cache, pred predictor.Predictor, ledger *metrics.Ledger, exec Executor, opts ...Option) *Controller {
	c := &Controller{
		registry:   reg,
		cache:      cache,
		predictor:  pred,
		ledger:     ledger,
		exec:       exec,
		complexity: config.Default().Capability.Complexity,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig builds a Controller and its components from configuration,
// registering any configured callers.
func FromConfig(cfg *config.Config, exec Executor, opts ...Option) (*Controller, error) {
	tiers := make(map[string]registry.Tier, len(cfg.Tiers))
	for name, t := range cfg.Tiers {
		tiers[name] = registry.Tier{Multiplier: t.Multiplier}
	}
	reg, err := registry.New(tiers, cfg.Capability.Costs)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	for _, caller := range cfg.Callers {
		reg.Register(caller.Name, caller.Capabilities, caller.Tier)
	}

	ledger := metrics.New(cfg.Budget.Limit, cfg.Metrics.Window, cfg.Metrics.MaxSamples)
	cache := memory.New(cfg.Cache.MaxEntries)
	pred := predictor.NewLinear(cfg.Predictor.BatchSize)

	opts = append([]Option{WithComplexity(cfg.Capability.Complexity)}, opts...)
	return New(reg, cache, pred, ledger, exec, opts...), nil
}

// Registry exposes the caller registry for registration and tier changes.
func (c *Controller) Registry() *registry.Registry {
	return c.registry
}

// Process runs one request through the admission state machine and returns
// the result with the cost actually charged. Cache hits cost zero. Rejections
// (unknown caller, unsupported capability, budget) are side-effect-free.
func (c *Controller) Process(ctx context.Context, callerID, requestType string, input map[string]any) (models.Result, float64, error) {
	profile, err := c.registry.Lookup(callerID)
	if err != nil {
		return models.Result{}, 0, err
	}
	if !profile.Supports(requestType) {
		return models.Result{}, 0, fmt.Errorf("caller %s, request type %q: %w", callerID, requestType, ErrUnsupportedCapability)
	}

	key, err := fingerprint.Key(requestType, input)
	if err != nil {
		return models.Result{}, 0, err
	}

	inputSize := fingerprint.Size(input)
	if cached, ok := c.cache.Get(key); ok {
		// Credit the cost an equivalent fresh call would incur at the
		// caller's current rate, not the stale cost stored at insertion.
		saved := registry.TaskCost(profile, inputSize)
		c.ledger.CreditSavings(callerID, saved)
		c.record(ctx, models.AdmissionRecord{
			CallerID:    callerID,
			RequestType: requestType,
			Fingerprint: key,
			Decision:    models.DecisionCacheHit,
		})
		return cached, 0, nil
	}

	features := c.extractFeatures(requestType, input, inputSize)
	pred := c.predictor.Predict(features)

	if err := c.ledger.Reserve(pred.EstimatedCost); err != nil {
		c.record(ctx, models.AdmissionRecord{
			CallerID:      callerID,
			RequestType:   requestType,
			Fingerprint:   key,
			Decision:      models.DecisionRejected,
			PredictedCost: pred.EstimatedCost,
			Confidence:    pred.Confidence,
		})
		return models.Result{}, 0, fmt.Errorf("caller %s: %w", callerID, err)
	}

	if err := ctx.Err(); err != nil {
		// Cancelled before dispatch: no cost, no sample, no cache entry.
		c.ledger.Release(pred.EstimatedCost)
		return models.Result{}, 0, err
	}

	start := c.now()
	result, execErr := c.exec.Execute(ctx, requestType, input)
	elapsed := c.now().Sub(start)

	if execErr != nil {
		// Execution failure or timeout: the reservation is released so no
		// budget is charged, but reliability takes the hit.
		c.ledger.Release(pred.EstimatedCost)
		c.ledger.Record(callerID, models.PerformanceSample{
			Timestamp:      c.now(),
			ProcessingTime: elapsed,
			Success:        false,
			Cost:           0,
		})
		c.record(ctx, models.AdmissionRecord{
			CallerID:      callerID,
			RequestType:   requestType,
			Fingerprint:   key,
			Decision:      models.DecisionFailed,
			PredictedCost: pred.EstimatedCost,
			Confidence:    pred.Confidence,
			LatencyMs:     elapsed.Milliseconds(),
		})
		return models.Result{}, 0, fmt.Errorf("execute %s: %w", requestType, execErr)
	}

	actualCost := pred.EstimatedCost
	if result.MeteredCost != nil {
		actualCost = *result.MeteredCost
	}

	c.ledger.Commit(pred.EstimatedCost, actualCost)
	c.ledger.Record(callerID, models.PerformanceSample{
		Timestamp:      c.now(),
		ProcessingTime: elapsed,
		Success:        true,
		Cost:           actualCost,
	})
	c.predictor.AddSample(features, actualCost)
	c.cache.Put(key, result, actualCost)
	c.trackPrediction(pred.EstimatedCost, actualCost)
	c.record(ctx, models.AdmissionRecord{
		CallerID:      callerID,
		RequestType:   requestType,
		Fingerprint:   key,
		Decision:      models.DecisionAdmitted,
		PredictedCost: pred.EstimatedCost,
		ActualCost:    actualCost,
		Confidence:    pred.Confidence,
		LatencyMs:     elapsed.Milliseconds(),
	})

	return result, actualCost, nil
}

// extractFeatures derives the cost feature vector for a request.
func (c *Controller) extractFeatures(requestType string, input map[string]any, inputSize int) models.FeatureVector {
	complexity, ok := c.complexity[requestType]
	if !ok {
		complexity = 1.0
	}
	if inputSize > 1000 {
		complexity *= 1.5
	}

	priority := 1.0
	switch p := input["priority"].(type) {
	case float64:
		priority = p
	case int:
		priority = float64(p)
	}

	now := c.now()
	return models.FeatureVector{
		InputSize:  float64(inputSize),
		Complexity: complexity,
		Priority:   priority,
		TimeOfDay:  float64(now.Hour()) / 24.0,
		DayOfWeek:  float64(now.Weekday()) / 7.0,
	}
}

// record sends a decision to the recorder, if any. Logging failures never
// affect the admission outcome.
func (c *Controller) record(ctx context.Context, rec models.AdmissionRecord) {
	if c.recorder == nil {
		return
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = c.now()
	_ = c.recorder.Record(ctx, rec)
}

// trackPrediction retains a predicted/actual pair for accuracy reporting.
func (c *Controller) trackPrediction(predicted, actual float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pair := predPair{predicted: predicted, actual: actual}
	if c.predFull {
		c.predPairs[c.predNext] = pair
		c.predNext = (c.predNext + 1) % predictionAccuracyWindow
	} else {
		c.predPairs = append(c.predPairs, pair)
		if len(c.predPairs) == predictionAccuracyWindow {
			c.predFull = true
		}
	}
}

// Metrics returns the rolling metrics snapshot for a caller.
func (c *Controller) Metrics(callerID string) (models.CallerMetrics, error) {
	if _, err := c.registry.Lookup(callerID); err != nil {
		return models.CallerMetrics{}, err
	}
	return c.ledger.Snapshot(callerID), nil
}

// LedgerStatus returns the current budget position.
func (c *Controller) LedgerStatus() models.LedgerStatus {
	return c.ledger.Status()
}

// CacheStats returns result cache counters.
func (c *Controller) CacheStats() models.CacheStats {
	return c.cache.Stats()
}

// activeWindow is how recently a caller must have recorded activity to count
// as active in analytics.
const activeWindow = 24 * time.Hour

// Analytics summarizes the registered caller population: counts, activity,
// tier distribution, revenue, and performance scores averaged across callers.
func (c *Controller) Analytics() models.Analytics {
	profiles := c.registry.List()

	a := models.Analytics{
		TotalCallers:     len(profiles),
		TierDistribution: make(map[string]int, len(profiles)),
	}
	if len(profiles) == 0 {
		return a
	}

	cutoff := c.now().Add(-activeWindow)
	var reliability, efficiency, response float64
	for _, p := range profiles {
		a.TierDistribution[p.Tier]++
		m := c.ledger.Snapshot(p.ID)
		if m.LastUpdate.After(cutoff) {
			a.ActiveCallers++
		}
		a.TotalRevenue += m.TotalCost
		a.TotalSavings += m.TotalSavings
		reliability += m.ReliabilityScore
		efficiency += m.EfficiencyScore
		response += m.AverageResponseTime
	}

	n := float64(len(profiles))
	a.ActivityRate = float64(a.ActiveCallers) / n
	a.AvgRevenuePerCaller = a.TotalRevenue / n
	a.AvgReliability = reliability / n
	a.AvgEfficiency = efficiency / n
	a.AvgResponseTime = response / n
	return a
}

// Report aggregates engine-wide cost performance.
func (c *Controller) Report() models.Report {
	status := c.ledger.Status()
	stats := c.cache.Stats()

	r := models.Report{
		TotalCost:         status.RunningTotal,
		TotalSavings:      status.TotalSavings,
		FeatureImportance: c.predictor.Importance(),
	}
	if status.RunningTotal > 0 {
		r.ROI = status.TotalSavings / status.RunningTotal * 100
	}
	if lookups := stats.Hits + stats.Misses; lookups > 0 {
		r.CacheHitRatio = float64(stats.Hits) / float64(lookups)
	}
	if status.Limit > 0 {
		r.BudgetUtilization = status.RunningTotal / status.Limit * 100
	}
	r.PredictionAccuracy = c.predictionAccuracy()
	return r
}

// predictionAccuracy converts mean relative prediction error into a percent
// score over the retained pairs.
func (c *Controller) predictionAccuracy() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sum float64
	var n int
	for _, p := range c.predPairs {
		if p.actual > 0 {
			err := p.predicted - p.actual
			if err < 0 {
				err = -err
			}
			sum += err / p.actual
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return (1 - sum/float64(n)) * 100
}
