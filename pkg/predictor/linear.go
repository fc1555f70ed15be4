package predictor

import (
	"math"
	"sync"

	"github.com/gatewise-ai/gatewise/pkg/models"
)

const (
	// defaultBatchSize is the sample count between training runs.
	defaultBatchSize = 100
	// maxTrainingSamples bounds the retained training set; once full, the
	// oldest samples are overwritten ring-buffer style.
	maxTrainingSamples = 5000
	// ridge keeps the normal equations well conditioned.
	ridge = 1e-6
)

// Linear is an online-trained least-squares cost model over the five-feature
// vector. It starts untrained and serves heuristic estimates until the first
// training run; thereafter it retrains synchronously every batchSize samples.
type Linear struct {
	mu        sync.Mutex
	batchSize int

	features [][]float64
	labels   []float64
	next     int  // ring position once the sample bound is reached
	full     bool
	added    int // total samples ever added, drives retrain cadence

	trained    bool
	weights    []float64 // bias followed by one weight per feature
	importance map[string]float64

	fallback Heuristic
}

// NewLinear creates an untrained Linear model. A non-positive batchSize
// falls back to the default of 100.
func NewLinear(batchSize int) *Linear {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Linear{batchSize: batchSize}
}

// AddSample appends a labeled example and retrains when the accumulated
// count crosses a batch boundary.
func (l *Linear) AddSample(f models.FeatureVector, actualCost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	vec := f.Slice()
	if l.full {
		l.features[l.next] = vec
		l.labels[l.next] = actualCost
		l.next = (l.next + 1) % maxTrainingSamples
	} else {
		l.features = append(l.features, vec)
		l.labels = append(l.labels, actualCost)
		if len(l.features) == maxTrainingSamples {
			l.full = true
		}
	}

	l.added++
	if l.added%l.batchSize == 0 {
		l.train()
	}
}

// Train fits the model on the accumulated samples. It is a no-op with fewer
// than two samples.
func (l *Linear) Train() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.train()
}

// train solves the ridge-regularized normal equations. Caller holds l.mu.
func (l *Linear) train() {
	n := len(l.features)
	if n < 2 {
		return
	}
	dims := len(models.FeatureNames) + 1 // bias term first

	// A = XᵀX + λI, b = Xᵀy over rows augmented with a leading 1.
	a := make([][]float64, dims)
	for i := range a {
		a[i] = make([]float64, dims)
	}
	b := make([]float64, dims)
	row := make([]float64, dims)
	for s := 0; s < n; s++ {
		row[0] = 1
		copy(row[1:], l.features[s])
		for i := 0; i < dims; i++ {
			for j := 0; j < dims; j++ {
				a[i][j] += row[i] * row[j]
			}
			b[i] += row[i] * l.labels[s]
		}
	}
	for i := 0; i < dims; i++ {
		a[i][i] += ridge
	}

	w, ok := solve(a, b)
	if !ok {
		return
	}
	l.weights = w
	l.trained = true
	l.importance = l.featureImportance()
}

// featureImportance scales each weight by its feature's spread so dimensions
// on different scales are comparable. Caller holds l.mu.
func (l *Linear) featureImportance() map[string]float64 {
	n := len(l.features)
	dims := len(models.FeatureNames)

	means := make([]float64, dims)
	for _, row := range l.features {
		for i := 0; i < dims; i++ {
			means[i] += row[i]
		}
	}
	for i := range means {
		means[i] /= float64(n)
	}

	stds := make([]float64, dims)
	for _, row := range l.features {
		for i := 0; i < dims; i++ {
			d := row[i] - means[i]
			stds[i] += d * d
		}
	}

	raw := make([]float64, dims)
	var total float64
	for i := 0; i < dims; i++ {
		stds[i] = math.Sqrt(stds[i] / float64(n))
		raw[i] = math.Abs(l.weights[i+1]) * stds[i]
		total += raw[i]
	}

	imp := make(map[string]float64, dims)
	for i, name := range models.FeatureNames {
		if total > 0 {
			imp[name] = raw[i] / total
		} else {
			imp[name] = 0
		}
	}
	return imp
}

// Predict returns the regression estimate once trained, with confidence
// derived from proximity to the training set. Until the first training run,
// and on any internal prediction failure, it serves the heuristic estimate.
func (l *Linear) Predict(f models.FeatureVector) (pred models.CostPrediction) {
	defer func() {
		if r := recover(); r != nil {
			pred = l.fallback.Predict(f)
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.trained {
		return l.fallback.Predict(f)
	}

	vec := f.Slice()
	estimate := l.weights[0]
	for i, v := range vec {
		estimate += l.weights[i+1] * v
	}
	if estimate < 0 || math.IsNaN(estimate) || math.IsInf(estimate, 0) {
		return l.fallback.Predict(f)
	}

	return models.CostPrediction{
		EstimatedCost:     estimate,
		Confidence:        clampConfidence(l.confidence(vec)),
		PredictedDuration: estimateDuration(f),
		Resources:         estimateResources(f),
	}
}

// confidence converts the Euclidean distance to the nearest training sample
// into a certainty score. Caller holds l.mu.
func (l *Linear) confidence(vec []float64) float64 {
	minDist := math.Inf(1)
	for _, row := range l.features {
		var sum float64
		for i := range vec {
			d := vec[i] - row[i]
			sum += d * d
		}
		if dist := math.Sqrt(sum); dist < minDist {
			minDist = dist
		}
	}
	if math.IsInf(minDist, 1) {
		return 0.5
	}
	return 1 / (1 + minDist)
}

// SampleCount returns the number of retained training samples.
func (l *Linear) SampleCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.features)
}

// Trained reports whether at least one training run has completed.
func (l *Linear) Trained() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trained
}

// Importance returns the normalized feature importances from the last
// training run, or nil if untrained.
func (l *Linear) Importance() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.importance == nil {
		return nil
	}
	out := make(map[string]float64, len(l.importance))
	for k, v := range l.importance {
		out[k] = v
	}
	return out
}

// solve performs Gaussian elimination with partial pivoting on a copy of the
// system. Returns false for a singular matrix.
func solve(a [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	m := make([][]float64, n)
	for i := range m {
		m[i] = append(append([]float64{}, a[i]...), b[i])
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return nil, false
		}
		m[col], m[pivot] = m[pivot], m[col]

		for r := col + 1; r < n; r++ {
			factor := m[r][col] / m[col][col]
			for c := col; c <= n; c++ {
				m[r][c] -= factor * m[col][c]
			}
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := m[i][n]
		for j := i + 1; j < n; j++ {
			sum -= m[i][j] * x[j]
		}
		x[i] = sum / m[i][i]
	}
	return x, true
}
