// Package predictor estimates request cost, duration, and resource usage.
package predictor

import (
	"math"

	"github.com/gatewise-ai/gatewise/pkg/models"
)

// maxConfidence caps the self-reported prediction confidence.
const maxConfidence = 0.95

// Predictor estimates the cost of a request from its feature vector.
// Predict is total: implementations never return an error and must fall back
// to a heuristic estimate rather than fail.
type Predictor interface {
	// Predict returns a cost prediction for the given features.
	Predict(f models.FeatureVector) models.CostPrediction
	// AddSample records an observed (features, actualCost) pair for training.
	AddSample(f models.FeatureVector, actualCost float64)
	// SampleCount returns the number of accumulated training samples.
	SampleCount() int
	// Importance returns per-feature importance weights from the last
	// training run, or nil if the model has not been trained.
	Importance() map[string]float64
}

// Heuristic is the cold-start predictor. It is also the fallback for trained
// models whose prediction fails.
type Heuristic struct{}

// Predict applies the baseline estimation formulas.
func (Heuristic) Predict(f models.FeatureVector) models.CostPrediction {
	return models.CostPrediction{
		EstimatedCost:     f.InputSize * f.Complexity * 0.001,
		Confidence:        0.5,
		PredictedDuration: estimateDuration(f),
		Resources:         estimateResources(f),
	}
}

// AddSample is a no-op: the heuristic does not learn.
func (Heuristic) AddSample(models.FeatureVector, float64) {}

// SampleCount always returns zero.
func (Heuristic) SampleCount() int { return 0 }

// Importance always returns nil.
func (Heuristic) Importance() map[string]float64 { return nil }

func estimateDuration(f models.FeatureVector) float64 {
	return f.InputSize * 0.1 * f.Complexity
}

// estimateResources applies fixed caps to cpu and memory but leaves
// bandwidth uncapped, matching the original rate card.
func estimateResources(f models.FeatureVector) models.ResourceEstimate {
	return models.ResourceEstimate{
		CPU:       math.Min(f.InputSize*f.Complexity*0.1, 100),
		Memory:    math.Min(f.InputSize*f.Complexity*0.2, 1000),
		Bandwidth: f.InputSize * 0.05,
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > maxConfidence {
		return maxConfidence
	}
	return c
}
