package models

import "time"

// CallerProfile describes a registered caller and its billing rate.
type CallerProfile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	Tier         string   `json:"tier"`
	// CostPerUnit is the effective per-unit rate with the tier multiplier
	// already applied. It is never multiplied by the tier again.
	CostPerUnit float64 `json:"cost_per_unit"`
}

// Supports reports whether the caller declares the given capability.
func (p *CallerProfile) Supports(capability string) bool {
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// PerformanceSample is a single observed execution outcome. All rolling
// caller metrics are aggregated from these.
type PerformanceSample struct {
	Timestamp      time.Time     `json:"timestamp"`
	ProcessingTime time.Duration `json:"processing_time"`
	Success        bool          `json:"success"`
	Cost           float64       `json:"cost"`
}

// CallerMetrics is a point-in-time snapshot of a caller's rolling and
// lifetime performance figures.
type CallerMetrics struct {
	CallerID            string    `json:"caller_id"`
	TotalTasks          int64     `json:"total_tasks"`
	SuccessfulTasks     int64     `json:"successful_tasks"`
	FailedTasks         int64     `json:"failed_tasks"`
	TotalCost           float64   `json:"total_cost"`
	TotalSavings        float64   `json:"total_savings"`
	AverageResponseTime float64   `json:"average_response_time"` // seconds, rolling
	ReliabilityScore    float64   `json:"reliability_score"`
	EfficiencyScore     float64   `json:"efficiency_score"`
	LastUpdate          time.Time `json:"last_update"`
}
