package models

// FeatureVector is the input to cost prediction. TimeOfDay and DayOfWeek are
// normalized to [0, 1).
type FeatureVector struct {
	InputSize  float64 `json:"input_size"`
	Complexity float64 `json:"complexity"`
	Priority   float64 `json:"priority"`
	TimeOfDay  float64 `json:"time_of_day"`
	DayOfWeek  float64 `json:"day_of_week"`
}

// FeatureNames lists the feature dimensions in vector order.
var FeatureNames = []string{"input_size", "complexity", "priority", "time_of_day", "day_of_week"}

// Slice returns the vector in canonical dimension order.
func (f FeatureVector) Slice() []float64 {
	return []float64{f.InputSize, f.Complexity, f.Priority, f.TimeOfDay, f.DayOfWeek}
}

// ResourceEstimate is the predicted resource footprint of a request.
type ResourceEstimate struct {
	CPU       float64 `json:"cpu"`
	Memory    float64 `json:"memory"`
	Bandwidth float64 `json:"bandwidth"`
}

// CostPrediction is the predictor's output for a single request.
// Confidence is always within [0, 0.95].
type CostPrediction struct {
	EstimatedCost     float64          `json:"estimated_cost"`
	Confidence        float64          `json:"confidence"`
	PredictedDuration float64          `json:"predicted_duration"` // seconds
	Resources         ResourceEstimate `json:"resources"`
}
