package admission

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gatewise-ai/gatewise/pkg/cache/memory"
	"github.com/gatewise-ai/gatewise/pkg/fingerprint"
	"github.com/gatewise-ai/gatewise/pkg/metrics"
	"github.com/gatewise-ai/gatewise/pkg/models"
	"github.com/gatewise-ai/gatewise/pkg/registry"
)

// stubPredictor returns scripted costs, one per Predict call, repeating the
// last when the script runs out.
type stubPredictor struct {
	mu      sync.Mutex
	costs   []float64
	calls   int
	samples []float64
}

func (p *stubPredictor) Predict(models.FeatureVector) models.CostPrediction {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.costs) {
		i = len(p.costs) - 1
	}
	p.calls++
	return models.CostPrediction{EstimatedCost: p.costs[i], Confidence: 0.5}
}

func (p *stubPredictor) AddSample(_ models.FeatureVector, actualCost float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = append(p.samples, actualCost)
}

func (p *stubPredictor) SampleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.samples)
}

func (p *stubPredictor) Importance() map[string]float64 { return nil }

// stubExecutor returns a fixed result or error, optionally after a delay.
type stubExecutor struct {
	mu      sync.Mutex
	result  models.Result
	err     error
	delay   time.Duration
	calls   int
}

func (e *stubExecutor) Execute(ctx context.Context, requestType string, input map[string]any) (models.Result, error) {
	e.mu.Lock()
	e.calls++
	result, err, delay := e.result, e.err, e.delay
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return models.Result{}, err
	}
	return result, nil
}

func (e *stubExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type testEngine struct {
	ctrl     *Controller
	ledger   *metrics.Ledger
	cache    *memory.Cache
	pred     *stubPredictor
	exec     *stubExecutor
	callerID string
}

func newTestEngine(t *testing.T, budgetLimit float64, predictedCosts ...float64) *testEngine {
	t.Helper()
	reg, err := registry.New(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	callerID := reg.Register("tester", []string{"text_generation", "embedding", "classification"}, "basic")

	if len(predictedCosts) == 0 {
		predictedCosts = []float64{1.0}
	}
	pred := &stubPredictor{costs: predictedCosts}
	exec := &stubExecutor{result: models.Result{Status: "success", Payload: map[string]any{"data": "ok"}}}
	cache := memory.New(100)
	ledger := metrics.New(budgetLimit, time.Hour, 0)

	return &testEngine{
		ctrl:     New(reg, cache, pred, ledger, exec),
		ledger:   ledger,
		cache:    cache,
		pred:     pred,
		exec:     exec,
		callerID: callerID,
	}
}

func TestProcessAdmitsAndCommits(t *testing.T) {
	e := newTestEngine(t, 100, 2.5)
	ctx := context.Background()

	result, cost, err := e.ctrl.Process(ctx, e.callerID, "text_generation", map[string]any{"content": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != "success" {
		t.Errorf("unexpected result: %+v", result)
	}
	if cost != 2.5 {
		t.Errorf("expected cost 2.5, got %v", cost)
	}

	status := e.ctrl.LedgerStatus()
	if status.RunningTotal != 2.5 || status.Reserved != 0 {
		t.Errorf("unexpected ledger: %+v", status)
	}
	if e.pred.SampleCount() != 1 {
		t.Errorf("expected 1 training sample, got %d", e.pred.SampleCount())
	}
	if e.cache.Len() != 1 {
		t.Errorf("expected cached result, cache len %d", e.cache.Len())
	}

	m, err := e.ctrl.Metrics(e.callerID)
	if err != nil {
		t.Fatal(err)
	}
	if m.TotalTasks != 1 || m.SuccessfulTasks != 1 || m.TotalCost != 2.5 {
		t.Errorf("unexpected metrics: %+v", m)
	}
}

func TestProcessUnknownCaller(t *testing.T) {
	e := newTestEngine(t, 100)

	_, _, err := e.ctrl.Process(context.Background(), "caller_99", "text_generation", map[string]any{})
	if !errors.Is(err, ErrUnknownCaller) {
		t.Fatalf("expected ErrUnknownCaller, got %v", err)
	}
	if e.exec.callCount() != 0 {
		t.Error("executor must not run for unknown callers")
	}
	if stats := e.ctrl.CacheStats(); stats.Hits+stats.Misses != 0 {
		t.Error("rejection must not touch the cache")
	}
}

func TestProcessUnsupportedCapability(t *testing.T) {
	e := newTestEngine(t, 100)

	_, _, err := e.ctrl.Process(context.Background(), e.callerID, "custom_model", map[string]any{})
	if !errors.Is(err, ErrUnsupportedCapability) {
		t.Fatalf("expected ErrUnsupportedCapability, got %v", err)
	}
	if e.exec.callCount() != 0 {
		t.Error("executor must not run for unsupported capabilities")
	}
}

func TestBudgetSequence(t *testing.T) {
	// limit 100: 60 admitted, 50 rejected, 30 admitted.
	e := newTestEngine(t, 100, 60, 50, 30)
	ctx := context.Background()

	if _, cost, err := e.ctrl.Process(ctx, e.callerID, "text_generation", map[string]any{"n": 1.0}); err != nil || cost != 60 {
		t.Fatalf("request 1: cost %v err %v", cost, err)
	}
	if status := e.ctrl.LedgerStatus(); status.RunningTotal != 60 {
		t.Fatalf("expected running total 60, got %v", status.RunningTotal)
	}

	_, _, err := e.ctrl.Process(ctx, e.callerID, "text_generation", map[string]any{"n": 2.0})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("request 2: expected ErrBudgetExceeded, got %v", err)
	}
	// Rejection is side-effect-free: nothing dispatched, cached, or sampled.
	if e.exec.callCount() != 1 {
		t.Errorf("expected 1 dispatch, got %d", e.exec.callCount())
	}
	if e.pred.SampleCount() != 1 {
		t.Errorf("expected 1 sample, got %d", e.pred.SampleCount())
	}

	if _, cost, err := e.ctrl.Process(ctx, e.callerID, "text_generation", map[string]any{"n": 3.0}); err != nil || cost != 30 {
		t.Fatalf("request 3: cost %v err %v", cost, err)
	}
	if status := e.ctrl.LedgerStatus(); status.RunningTotal != 90 {
		t.Errorf("expected running total 90, got %v", status.RunningTotal)
	}
}

func TestCacheHitCostsNothingAndCreditsLiveRate(t *testing.T) {
	e := newTestEngine(t, 100, 5)
	ctx := context.Background()
	input := map[string]any{"content": "repeat me", "priority": 2.0}

	if _, cost, err := e.ctrl.Process(ctx, e.callerID, "text_generation", input); err != nil || cost != 5 {
		t.Fatalf("first call: cost %v err %v", cost, err)
	}

	result, cost, err := e.ctrl.Process(ctx, e.callerID, "text_generation", input)
	if err != nil {
		t.Fatal(err)
	}
	if cost != 0 {
		t.Errorf("cache hit must cost 0, got %v", cost)
	}
	if result.Status != "success" {
		t.Errorf("unexpected cached result: %+v", result)
	}
	if e.exec.callCount() != 1 {
		t.Errorf("cache hit must not dispatch, got %d calls", e.exec.callCount())
	}

	profile, err := e.ctrl.Registry().Lookup(e.callerID)
	if err != nil {
		t.Fatal(err)
	}
	wantSaved := registry.TaskCost(profile, fingerprint.Size(input))
	if got := e.ctrl.LedgerStatus().TotalSavings; math.Abs(got-wantSaved) > 1e-12 {
		t.Errorf("expected savings %v, got %v", wantSaved, got)
	}
	if status := e.ctrl.LedgerStatus(); status.RunningTotal != 5 {
		t.Errorf("cache hit must not charge budget, total %v", status.RunningTotal)
	}
}

func TestCacheHitSavingsFollowTierChanges(t *testing.T) {
	e := newTestEngine(t, 100, 5)
	ctx := context.Background()
	input := map[string]any{"content": "repeat me"}

	if _, _, err := e.ctrl.Process(ctx, e.callerID, "text_generation", input); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.ctrl.Process(ctx, e.callerID, "text_generation", input); err != nil {
		t.Fatal(err)
	}
	savedAtBasic := e.ctrl.LedgerStatus().TotalSavings

	// After an upgrade the credited rate must track the new, cheaper tier.
	if err := e.ctrl.Registry().UpgradeTier(e.callerID, "enterprise"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.ctrl.Process(ctx, e.callerID, "text_generation", input); err != nil {
		t.Fatal(err)
	}
	savedAtEnterprise := e.ctrl.LedgerStatus().TotalSavings - savedAtBasic

	if want := savedAtBasic * 0.6; math.Abs(savedAtEnterprise-want) > 1e-12 {
		t.Errorf("expected enterprise credit %v, got %v", want, savedAtEnterprise)
	}
}

func TestFingerprintIgnoresKeyOrder(t *testing.T) {
	e := newTestEngine(t, 100, 1)
	ctx := context.Background()

	a := map[string]any{"x": 1.0, "y": "z", "content": "same"}
	b := map[string]any{"content": "same", "y": "z", "x": 1.0}

	if _, _, err := e.ctrl.Process(ctx, e.callerID, "embedding", a); err != nil {
		t.Fatal(err)
	}
	if _, cost, err := e.ctrl.Process(ctx, e.callerID, "embedding", b); err != nil || cost != 0 {
		t.Fatalf("expected cache hit for reordered input, cost %v err %v", cost, err)
	}
}

func TestMeteredCostOverridesPrediction(t *testing.T) {
	e := newTestEngine(t, 100, 10)
	metered := 0.42
	e.exec.result = models.Result{Status: "success", MeteredCost: &metered}

	_, cost, err := e.ctrl.Process(context.Background(), e.callerID, "text_generation", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if cost != 0.42 {
		t.Errorf("expected metered cost 0.42, got %v", cost)
	}
	if status := e.ctrl.LedgerStatus(); status.RunningTotal != 0.42 {
		t.Errorf("expected running total 0.42, got %v", status.RunningTotal)
	}
	// The model trains on what was actually charged.
	if e.pred.samples[0] != 0.42 {
		t.Errorf("expected training sample 0.42, got %v", e.pred.samples[0])
	}
}

func TestExecutionFailure(t *testing.T) {
	e := newTestEngine(t, 100, 10)
	boom := errors.New("backend unavailable")
	e.exec.err = boom

	_, _, err := e.ctrl.Process(context.Background(), e.callerID, "text_generation", map[string]any{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped executor error, got %v", err)
	}

	// Failure charges nothing and caches nothing, but reliability drops.
	status := e.ctrl.LedgerStatus()
	if status.RunningTotal != 0 || status.Reserved != 0 {
		t.Errorf("failure must not charge budget: %+v", status)
	}
	if e.cache.Len() != 0 {
		t.Error("failure must not insert a cache entry")
	}
	if e.pred.SampleCount() != 0 {
		t.Error("failure must not train the model")
	}

	m, err := e.ctrl.Metrics(e.callerID)
	if err != nil {
		t.Fatal(err)
	}
	if m.FailedTasks != 1 || m.ReliabilityScore != 0 {
		t.Errorf("expected recorded failure, got %+v", m)
	}
}

func TestCancelledBeforeDispatch(t *testing.T) {
	e := newTestEngine(t, 100, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := e.ctrl.Process(ctx, e.callerID, "text_generation", map[string]any{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if e.exec.callCount() != 0 {
		t.Error("cancelled request must not dispatch")
	}
	status := e.ctrl.LedgerStatus()
	if status.RunningTotal != 0 || status.Reserved != 0 {
		t.Errorf("cancellation must not hold budget: %+v", status)
	}
	if e.cache.Len() != 0 {
		t.Error("cancellation must not insert a cache entry")
	}
}

func TestTimeoutReleasesReservation(t *testing.T) {
	e := newTestEngine(t, 100, 10)
	e.exec.delay = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err := e.ctrl.Process(ctx, e.callerID, "text_generation", map[string]any{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	status := e.ctrl.LedgerStatus()
	if status.RunningTotal != 0 || status.Reserved != 0 {
		t.Errorf("timeout must not charge budget: %+v", status)
	}
	m, err := e.ctrl.Metrics(e.callerID)
	if err != nil {
		t.Fatal(err)
	}
	if m.FailedTasks != 1 {
		t.Errorf("timeout must lower reliability, got %+v", m)
	}
}

func TestConcurrentAdmissionsRespectBudget(t *testing.T) {
	// 10 requests at predicted cost 30 against a limit of 100: exactly 3 fit.
	e := newTestEngine(t, 100, 30)
	e.exec.delay = 20 * time.Millisecond

	var g errgroup.Group
	var mu sync.Mutex
	var admitted, rejected int
	for i := 0; i < 10; i++ {
		input := map[string]any{"n": float64(i)}
		g.Go(func() error {
			_, _, err := e.ctrl.Process(context.Background(), e.callerID, "text_generation", input)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, ErrBudgetExceeded):
				rejected++
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if admitted != 3 || rejected != 7 {
		t.Errorf("expected 3 admitted / 7 rejected, got %d / %d", admitted, rejected)
	}
	status := e.ctrl.LedgerStatus()
	if status.RunningTotal > status.Limit {
		t.Errorf("running total %v exceeds limit %v", status.RunningTotal, status.Limit)
	}
	if status.RunningTotal != 90 {
		t.Errorf("expected running total 90, got %v", status.RunningTotal)
	}
}

// memoryRecorder captures admission records in order.
type memoryRecorder struct {
	mu      sync.Mutex
	records []models.AdmissionRecord
}

func (r *memoryRecorder) Record(_ context.Context, rec models.AdmissionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func TestRecorderSeesDecisions(t *testing.T) {
	rec := &memoryRecorder{}
	e := newTestEngine(t, 100, 60, 60, 60)
	e.ctrl.recorder = rec
	ctx := context.Background()
	input := map[string]any{"content": "x"}

	_, _, _ = e.ctrl.Process(ctx, e.callerID, "text_generation", input)              // admitted
	_, _, _ = e.ctrl.Process(ctx, e.callerID, "text_generation", input)              // cache hit
	_, _, _ = e.ctrl.Process(ctx, e.callerID, "text_generation", map[string]any{"content": "y"}) // rejected

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(rec.records))
	}
	want := []models.Decision{models.DecisionAdmitted, models.DecisionCacheHit, models.DecisionRejected}
	for i, w := range want {
		if rec.records[i].Decision != w {
			t.Errorf("record %d: expected %s, got %s", i, w, rec.records[i].Decision)
		}
		if rec.records[i].ID == "" || rec.records[i].CreatedAt.IsZero() {
			t.Errorf("record %d missing ID or timestamp", i)
		}
	}
}

func TestAnalyticsAggregatesAcrossCallers(t *testing.T) {
	e := newTestEngine(t, 100, 4, 2)
	ctx := context.Background()

	premium := e.ctrl.Registry().Register("second", []string{"embedding"}, "premium")
	e.ctrl.Registry().Register("idle", []string{"classification"}, "enterprise")

	if _, _, err := e.ctrl.Process(ctx, e.callerID, "text_generation", map[string]any{"n": 1.0}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.ctrl.Process(ctx, premium, "embedding", map[string]any{"n": 2.0}); err != nil {
		t.Fatal(err)
	}

	a := e.ctrl.Analytics()
	if a.TotalCallers != 3 || a.ActiveCallers != 2 {
		t.Errorf("expected 3 callers, 2 active, got %d / %d", a.TotalCallers, a.ActiveCallers)
	}
	if math.Abs(a.ActivityRate-2.0/3.0) > 1e-12 {
		t.Errorf("expected activity rate 2/3, got %v", a.ActivityRate)
	}
	for tier, want := range map[string]int{"basic": 1, "premium": 1, "enterprise": 1} {
		if a.TierDistribution[tier] != want {
			t.Errorf("tier %s: expected %d, got %d", tier, want, a.TierDistribution[tier])
		}
	}
	if a.TotalRevenue != 6 {
		t.Errorf("expected revenue 6, got %v", a.TotalRevenue)
	}
	if a.AvgRevenuePerCaller != 2 {
		t.Errorf("expected avg revenue 2, got %v", a.AvgRevenuePerCaller)
	}
	// Two callers at reliability 1, the idle one at 0.
	if math.Abs(a.AvgReliability-2.0/3.0) > 1e-12 {
		t.Errorf("expected avg reliability 2/3, got %v", a.AvgReliability)
	}
}

func TestAnalyticsEmptyRegistry(t *testing.T) {
	reg, err := registry.New(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctrl := New(reg, memory.New(10), &stubPredictor{costs: []float64{1}}, metrics.New(100, time.Hour, 0), &stubExecutor{})

	a := ctrl.Analytics()
	if a.TotalCallers != 0 || a.ActivityRate != 0 || a.AvgReliability != 0 {
		t.Errorf("expected zero analytics, got %+v", a)
	}
}

func TestReportAggregates(t *testing.T) {
	e := newTestEngine(t, 100, 10)
	ctx := context.Background()
	input := map[string]any{"content": "x"}

	if _, _, err := e.ctrl.Process(ctx, e.callerID, "text_generation", input); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.ctrl.Process(ctx, e.callerID, "text_generation", input); err != nil {
		t.Fatal(err)
	}

	r := e.ctrl.Report()
	if r.TotalCost != 10 {
		t.Errorf("expected total cost 10, got %v", r.TotalCost)
	}
	if r.CacheHitRatio != 0.5 {
		t.Errorf("expected hit ratio 0.5, got %v", r.CacheHitRatio)
	}
	if r.BudgetUtilization != 10 {
		t.Errorf("expected 10%% utilization, got %v", r.BudgetUtilization)
	}
	// Prediction matched the charge exactly.
	if r.PredictionAccuracy != 100 {
		t.Errorf("expected 100%% accuracy, got %v", r.PredictionAccuracy)
	}
}
