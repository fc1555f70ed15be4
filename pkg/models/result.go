package models

// Result is what an executor returns for a dispatched request.
type Result struct {
	Status  string         `json:"status"`
	Payload map[string]any `json:"payload,omitempty"`
	// MeteredCost is the true cost reported by the backend, if it meters.
	// When nil the controller bills the predicted cost instead.
	MeteredCost *float64 `json:"metered_cost,omitempty"`
}

// LedgerStatus reports the budget ledger position.
type LedgerStatus struct {
	RunningTotal float64 `json:"running_total"`
	Reserved     float64 `json:"reserved"`
	Limit        float64 `json:"limit"`
	TotalSavings float64 `json:"total_savings"`
}

// CacheStats reports result cache performance counters.
type CacheStats struct {
	Entries   int64 `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Analytics aggregates caller population figures across the whole engine.
// Averages are taken over all registered callers; a caller is active when it
// has recorded a sample within the last day.
type Analytics struct {
	TotalCallers        int                `json:"total_callers"`
	ActiveCallers       int                `json:"active_callers"`
	ActivityRate        float64            `json:"activity_rate"`
	TierDistribution    map[string]int     `json:"tier_distribution"`
	TotalRevenue        float64            `json:"total_revenue"`
	TotalSavings        float64            `json:"total_savings"`
	AvgRevenuePerCaller float64            `json:"avg_revenue_per_caller"`
	AvgReliability      float64            `json:"avg_reliability"`
	AvgEfficiency       float64            `json:"avg_efficiency"`
	AvgResponseTime     float64            `json:"avg_response_time"` // seconds
}

// Report aggregates engine-wide cost efficiency figures.
type Report struct {
	TotalCost          float64            `json:"total_cost"`
	TotalSavings       float64            `json:"total_savings"`
	ROI                float64            `json:"roi"` // percent
	CacheHitRatio      float64            `json:"cache_hit_ratio"`
	BudgetUtilization  float64            `json:"budget_utilization"` // percent
	PredictionAccuracy float64            `json:"prediction_accuracy"` // percent
	FeatureImportance  map[string]float64 `json:"feature_importance,omitempty"`
}
