package models

import "time"

// Decision classifies the terminal state of a processed request.
type Decision string

const (
	DecisionAdmitted Decision = "admitted"
	DecisionCacheHit Decision = "cache_hit"
	DecisionRejected Decision = "rejected"
	DecisionFailed   Decision = "failed"
)

// AdmissionRecord is one row in the admission decision log.
type AdmissionRecord struct {
	ID            string    `json:"id"`
	CallerID      string    `json:"caller_id"`
	RequestType   string    `json:"request_type"`
	Fingerprint   string    `json:"fingerprint"`
	Decision      Decision  `json:"decision"`
	PredictedCost float64   `json:"predicted_cost"`
	ActualCost    float64   `json:"actual_cost"`
	Confidence    float64   `json:"confidence"`
	LatencyMs     int64     `json:"latency_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// HistoryQueryOpts specifies filters for querying the admission log.
type HistoryQueryOpts struct {
	CallerID    string
	RequestType string
	Decision    Decision
	Since       time.Time
	Limit       int
}

// HistorySummary aggregates admission outcomes per caller and request type.
type HistorySummary struct {
	CallerID      string  `json:"caller_id"`
	RequestType   string  `json:"request_type"`
	Requests      int     `json:"requests"`
	Admitted      int     `json:"admitted"`
	CacheHits     int     `json:"cache_hits"`
	Rejected      int     `json:"rejected"`
	Failed        int     `json:"failed"`
	TotalCost     float64 `json:"total_cost"`
	PredictedCost float64 `json:"predicted_cost"`
}
