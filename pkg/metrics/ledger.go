// Package metrics tracks the budget ledger and per-caller rolling
// performance metrics.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/gatewise-ai/gatewise/pkg/models"
)

// ErrBudgetExceeded is returned when admitting a request would push the
// committed plus reserved spend past the budget limit.
var ErrBudgetExceeded = errors.New("budget exceeded")

// defaultMaxSamples bounds each caller's sample ring buffer.
const defaultMaxSamples = 512

// Ledger owns the budget position and all per-caller sample windows. The
// budget check and commit are split into a reserve/commit/release protocol so
// concurrent admissions can never jointly overshoot the limit: a reservation
// holds predicted cost against the budget until the execution outcome is
// known.
type Ledger struct {
	mu sync.Mutex

	limit        float64
	runningTotal float64
	reserved     float64
	totalSavings float64

	window     time.Duration
	maxSamples int
	callers    map[string]*callerState

	now func() time.Time
}

// callerState holds one caller's lifetime counters and rolling sample ring.
type callerState struct {
	totalTasks      int64
	successfulTasks int64
	failedTasks     int64
	totalCost       float64
	totalSavings    float64
	lastUpdate      time.Time

	samples []models.PerformanceSample
	next    int
	full    bool
}

func (s *callerState) record(sample models.PerformanceSample, maxSamples int) {
	if s.full {
		s.samples[s.next] = sample
		s.next = (s.next + 1) % maxSamples
	} else {
		s.samples = append(s.samples, sample)
		if len(s.samples) == maxSamples {
			s.full = true
		}
	}
}

// inWindow returns the samples whose timestamps fall inside the window
// ending at now.
func (s *callerState) inWindow(now time.Time, window time.Duration) []models.PerformanceSample {
	cutoff := now.Add(-window)
	out := make([]models.PerformanceSample, 0, len(s.samples))
	for _, sample := range s.samples {
		if sample.Timestamp.After(cutoff) {
			out = append(out, sample)
		}
	}
	return out
}

// New creates a Ledger with the given budget limit and rolling window. A
// non-positive window falls back to 24 hours; a non-positive maxSamples to
// 512 samples per caller.
func New(limit float64, window time.Duration, maxSamples int) *Ledger {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if maxSamples <= 0 {
		maxSamples = defaultMaxSamples
	}
	return &Ledger{
		limit:      limit,
		window:     window,
		maxSamples: maxSamples,
		callers:    make(map[string]*callerState),
		now:        time.Now,
	}
}

// Reserve holds predictedCost against the budget. It fails with
// ErrBudgetExceeded, without side effects, if committed plus already
// reserved spend plus predictedCost would pass the limit.
func (l *Ledger) Reserve(predictedCost float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.runningTotal+l.reserved+predictedCost > l.limit {
		return ErrBudgetExceeded
	}
	l.reserved += predictedCost
	return nil
}

// Commit converts a reservation into committed spend at the actual cost.
func (l *Ledger) Commit(reservedCost, actualCost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reserved -= reservedCost
	if l.reserved < 0 {
		l.reserved = 0
	}
	l.runningTotal += actualCost
}

// Release drops a reservation without charging, used when execution fails,
// times out, or is cancelled.
func (l *Ledger) Release(reservedCost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reserved -= reservedCost
	if l.reserved < 0 {
		l.reserved = 0
	}
}

// CreditSavings adds the avoided cost of a cache hit, attributed to the
// caller and to the global total.
func (l *Ledger) CreditSavings(callerID string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalSavings += amount
	s := l.caller(callerID)
	s.totalSavings += amount
	s.lastUpdate = l.now()
}

// Record appends a performance sample for the caller and updates its
// lifetime counters.
func (l *Ledger) Record(callerID string, sample models.PerformanceSample) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.caller(callerID)
	s.record(sample, l.maxSamples)
	s.totalTasks++
	if sample.Success {
		s.successfulTasks++
	} else {
		s.failedTasks++
	}
	s.totalCost += sample.Cost
	s.lastUpdate = l.now()
}

// caller returns the state for callerID, creating it if needed. Caller
// holds l.mu.
func (l *Ledger) caller(callerID string) *callerState {
	s, ok := l.callers[callerID]
	if !ok {
		s = &callerState{}
		l.callers[callerID] = s
	}
	return s
}

// Snapshot computes the caller's rolling metrics over the active window.
// Unknown callers produce a zero-valued snapshot.
func (l *Ledger) Snapshot(callerID string) models.CallerMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	m := models.CallerMetrics{CallerID: callerID}
	s, ok := l.callers[callerID]
	if !ok {
		return m
	}

	m.TotalTasks = s.totalTasks
	m.SuccessfulTasks = s.successfulTasks
	m.FailedTasks = s.failedTasks
	m.TotalCost = s.totalCost
	m.TotalSavings = s.totalSavings
	m.LastUpdate = s.lastUpdate

	recent := s.inWindow(l.now(), l.window)
	if len(recent) == 0 {
		return m
	}

	var totalTime, successCost, totalCost float64
	var successes int
	for _, sample := range recent {
		totalTime += sample.ProcessingTime.Seconds()
		totalCost += sample.Cost
		if sample.Success {
			successes++
			successCost += sample.Cost
		}
	}

	m.AverageResponseTime = totalTime / float64(len(recent))
	m.ReliabilityScore = float64(successes) / float64(len(recent))
	if totalCost > 0 {
		m.EfficiencyScore = 1 - successCost/totalCost
	} else {
		m.EfficiencyScore = 1
	}
	return m
}

// Status returns the current budget position.
func (l *Ledger) Status() models.LedgerStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return models.LedgerStatus{
		RunningTotal: l.runningTotal,
		Reserved:     l.reserved,
		Limit:        l.limit,
		TotalSavings: l.totalSavings,
	}
}
