package predictive

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitStandardizerZeroMeanUnitVariance(t *testing.T) {
	samples := [][]float64{{1, 10}, {2, 20}, {3, 30}, {4, 40}, {5, 50}}
	std := fitStandardizer(samples)
	assert.InDelta(t, 3, std.Means[0], 1e-9)
	assert.InDelta(t, 30, std.Means[1], 1e-9)

	var transformedSum float64
	for _, s := range samples {
		transformedSum += std.transform(s)[0]
	}
	assert.InDelta(t, 0, transformedSum/float64(len(samples)), 1e-9, "standardized column should average to ~0")
}

func TestFitStandardizerHandlesConstantFeature(t *testing.T) {
	samples := [][]float64{{5, 1}, {5, 2}, {5, 3}}
	std := fitStandardizer(samples)
	assert.Equal(t, 1.0, std.StdDevs[0], "a constant feature must not trigger a division by ~0")
	x := std.transform(samples[0])
	assert.False(t, math.IsNaN(x[0]) || math.IsInf(x[0], 0))
}

func TestTrainLinearRegressionFitsALinearTarget(t *testing.T) {
	var raw [][]float64
	var targets []float64
	width := len(featureNames)
	for i := 1; i <= 20; i++ {
		f := make([]float64, width)
		f[0] = float64(i) // files
		raw = append(raw, f)
		targets = append(targets, clampMergeHours(10+2*float64(i)))
	}

	weights, bias, std := trainLinearRegression(raw, targets)
	model := &Model{Weights: weights, Bias: bias, Standardizer: std}

	predLow := model.Predict(raw[0])
	predHigh := model.Predict(raw[len(raw)-1])
	assert.Less(t, predLow, predHigh, "predicted merge time should increase with files, matching the training target's trend")
}

func TestModelPredictClampsToBounds(t *testing.T) {
	width := len(featureNames)
	model := &Model{
		Weights:      make([]float64, width),
		Bias:         10000,
		Standardizer: standardizer{Means: make([]float64, width), StdDevs: onesOfLen(width)},
	}
	assert.Equal(t, maxMergeTimeHours, model.Predict(make([]float64, width)))

	model.Bias = -10000
	assert.Equal(t, minMergeTimeHours, model.Predict(make([]float64, width)))
}

func onesOfLen(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func TestFeatureImportanceSumsToOne(t *testing.T) {
	width := len(featureNames)
	weights := make([]float64, width)
	for i := range weights {
		weights[i] = float64(i + 1)
	}
	model := &Model{Weights: weights}
	importance := model.FeatureImportance()

	var total float64
	for _, v := range importance {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	require.Len(t, importance, width)
}

func TestSigmoidIsBounded(t *testing.T) {
	assert.Greater(t, sigmoid(100), 0.99)
	assert.Less(t, sigmoid(-100), 0.01)
	assert.InDelta(t, 0.5, sigmoid(0), 1e-9)
}

func TestBlockersFromFeaturesFlagsCriticalAndMissingDescription(t *testing.T) {
	fv := FeatureVector{CriticalIssues: 1, HasDescription: false, RiskScore: 0.2}
	_, blockers := blockersFromFeatures(fv)
	assert.Contains(t, blockers, "unresolved critical findings")
	assert.Contains(t, blockers, "missing PR description")
}

func TestConfidenceDecreasesAtExtremeFeatureValues(t *testing.T) {
	normal := FeatureVector{NormalizedSize: 0.3, NormalizedRisk: 0.3, PRAgeHours: 10}
	extreme := FeatureVector{NormalizedSize: 0.95, NormalizedRisk: 0.95, PRAgeHours: 10}
	hist := HistoryStats{}

	assert.Greater(t, confidenceFor(normal, 0, hist), confidenceFor(extreme, 0, hist))
}

func TestRiskLevelScoreOrdering(t *testing.T) {
	assert.Less(t, RiskLevelScore("low"), RiskLevelScore("medium"))
	assert.Less(t, RiskLevelScore("medium"), RiskLevelScore("high"))
}

func TestHeuristicPredictIsFinite(t *testing.T) {
	width := len(featureNames)
	raw := make([]float64, width)
	got := heuristicPredict(raw)
	assert.False(t, math.IsNaN(got) || math.IsInf(got, 0))
	assert.GreaterOrEqual(t, got, minMergeTimeHours)
	assert.LessOrEqual(t, got, maxMergeTimeHours)
}
