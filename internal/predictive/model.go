package predictive

import (
	"math"
	"time"
)

const (
	gradientDescentIterations = 100
	learningRate               = 0.01
	minMergeTimeHours          = 1.0
	maxMergeTimeHours          = 168.0
)

// standardizer holds the per-feature mean/stddev used to standardize raw
// features before regression, per the Open Question resolution recorded in
// DESIGN.md: gradient descent on raw, unscaled features (hours spent vs.
// a 0/1 boolean vs. a line count in the hundreds) converges unevenly, so
// every feature is rescaled to zero mean / unit variance first.
type standardizer struct {
	Means   []float64
	StdDevs []float64
}

func fitStandardizer(samples [][]float64) standardizer {
	n := len(samples)
	width := len(samples[0])
	means := make([]float64, width)
	for _, s := range samples {
		for i, v := range s {
			means[i] += v
		}
	}
	for i := range means {
		means[i] /= float64(n)
	}

	variances := make([]float64, width)
	for _, s := range samples {
		for i, v := range s {
			d := v - means[i]
			variances[i] += d * d
		}
	}
	stddevs := make([]float64, width)
	for i := range variances {
		variance := variances[i] / float64(n)
		stddevs[i] = math.Sqrt(variance)
		if stddevs[i] < 1e-9 {
			stddevs[i] = 1 // constant feature: leave it at its mean-centered value, never divide by ~0
		}
	}
	return standardizer{Means: means, StdDevs: stddevs}
}

func (s standardizer) transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.Means[i]) / s.StdDevs[i]
	}
	return out
}

// Model is a trained per-repository linear regression predicting
// mergeTimeHours, plus the standardization parameters needed to score new
// feature vectors consistently with training.
type Model struct {
	RepositoryID string
	Weights      []float64
	Bias         float64
	Standardizer standardizer
	DataPoints   int
	TrainedAt    time.Time
}

// trainLinearRegression fits Weights/Bias by batch gradient descent over
// standardized features, exactly per §4.8: "100 iterations, lr=0.01".
func trainLinearRegression(rawFeatures [][]float64, targets []float64) (weights []float64, bias float64, std standardizer) {
	std = fitStandardizer(rawFeatures)
	n := len(rawFeatures)
	width := len(rawFeatures[0])

	x := make([][]float64, n)
	for i, f := range rawFeatures {
		x[i] = std.transform(f)
	}

	weights = make([]float64, width)
	for iter := 0; iter < gradientDescentIterations; iter++ {
		gradW := make([]float64, width)
		var gradB float64
		for i := 0; i < n; i++ {
			pred := bias
			for j, v := range x[i] {
				pred += weights[j] * v
			}
			err := pred - targets[i]
			for j, v := range x[i] {
				gradW[j] += err * v
			}
			gradB += err
		}
		for j := range weights {
			weights[j] -= learningRate * gradW[j] / float64(n)
		}
		bias -= learningRate * gradB / float64(n)
	}
	return weights, bias, std
}

// Predict scores a standardized feature vector, clamping to the §4.8
// [1, 168]-hour bound.
func (m *Model) Predict(features []float64) float64 {
	x := m.Standardizer.transform(features)
	pred := m.Bias
	for i, v := range x {
		pred += m.Weights[i] * v
	}
	return clampMergeHours(pred)
}

// FeatureImportance returns |weight_i| normalized to sum to 1, labeled by
// featureNames, so callers can surface the top contributors (§4.8
// "featureImportance").
func (m *Model) FeatureImportance() map[string]float64 {
	var total float64
	for _, w := range m.Weights {
		total += math.Abs(w)
	}
	out := make(map[string]float64, len(m.Weights))
	for i, w := range m.Weights {
		name := "feature" + itoa(i)
		if i < len(featureNames) {
			name = featureNames[i]
		}
		if total > 0 {
			out[name] = math.Abs(w) / total
		} else {
			out[name] = 0
		}
	}
	return out
}

func clampMergeHours(h float64) float64 {
	if h < minMergeTimeHours {
		return minMergeTimeHours
	}
	if h > maxMergeTimeHours {
		return maxMergeTimeHours
	}
	return h
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
