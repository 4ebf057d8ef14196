package predictive

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/domain"
	"github.com/prreview/orchestrator/internal/store"
)

// heuristicWeights are the published fallback weights §4.8 calls for
// ("fall back to a heuristic using published weights") when no repository
// model has trained yet: a hand-set prior over the same standardized
// features, centered so an all-average PR predicts roughly a day to merge.
var heuristicWeights = []float64{
	2, 1.5, 1, 8, 10, 5, 1, 0.5, 0, -6, 4, 2, 3, -3, -1, -4, 4, 3, 10,
}

const heuristicBiasHours = 24.0

// Prediction is the §4.8 predict(workflowId) response shape.
type Prediction struct {
	WorkflowID         string             `json:"workflowId"`
	MergeTimeHours      float64            `json:"mergeTimeHours"`
	MergeProbability    float64            `json:"mergeProbability"`
	BlockerProbability  float64            `json:"blockerProbability"`
	Blockers            []string           `json:"blockers"`
	FeatureImportance   map[string]float64 `json:"featureImportance"`
	Confidence          float64            `json:"confidence"`
	UsedHeuristic       bool               `json:"usedHeuristic"`
}

// Predictor serves predict(workflowId) for in-flight or completed
// workflows, using the latest trained Model for the workflow's repository
// when one exists, else the heuristic.
type Predictor struct {
	workflows store.WorkflowRepo
	agentRuns store.AgentRunRepo
	artifacts store.ArtifactRepo
	decisions store.DecisionRepo
	events    store.AnalyticsEventRepo
}

func NewPredictor(workflows store.WorkflowRepo, agentRuns store.AgentRunRepo, artifacts store.ArtifactRepo, decisions store.DecisionRepo, events store.AnalyticsEventRepo) *Predictor {
	return &Predictor{workflows: workflows, agentRuns: agentRuns, artifacts: artifacts, decisions: decisions, events: events}
}

// Predict implements §4.8 predict(workflowId).
func (p *Predictor) Predict(ctx context.Context, workflowID string) (*Prediction, error) {
	wf, err := p.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "predictive.Predict", err)
	}
	if wf == nil {
		return nil, apperr.New(apperr.NotFound, "predictive.Predict", errWorkflowNotFound)
	}

	runs, err := p.agentRuns.ListForWorkflow(ctx, wf.ID)
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "predictive.Predict", err)
	}

	completed, err := p.workflows.ListCompleted(ctx, 0)
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "predictive.Predict", err)
	}
	hist := computeHistoryStats(ctx, p.artifacts, p.decisions, wf.RepositoryID, wf.AuthorLogin, completed)
	fv := featuresFromRuns(wf, runs, time.Now(), hist)
	raw := fv.ToSlice()

	event, err := p.events.LatestByKind(ctx, wf.RepositoryID, domain.AnalyticsEventModelTrained)
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "predictive.Predict", err)
	}

	var mergeHours float64
	var importance map[string]float64
	usedHeuristic := true
	dataPoints := 0

	if model := decodeModel(event); model != nil {
		mergeHours = model.Predict(raw)
		importance = model.FeatureImportance()
		usedHeuristic = false
		dataPoints = model.DataPoints
	}
	if usedHeuristic {
		mergeHours = heuristicPredict(raw)
		importance = heuristicImportance()
	}

	mergeProbability := mergeProbabilityFromRisk(fv)
	blockerProbability, blockers := blockersFromFeatures(fv)
	confidence := confidenceFor(fv, dataPoints, hist)

	return &Prediction{
		WorkflowID:          workflowID,
		MergeTimeHours:       mergeHours,
		MergeProbability:     mergeProbability,
		BlockerProbability:   blockerProbability,
		Blockers:             blockers,
		FeatureImportance:    importance,
		Confidence:           confidence,
		UsedHeuristic:        usedHeuristic,
	}, nil
}

// decodeModel recovers a trained *Model from an AnalyticsEvent's Payload.
// memstore never serializes events, so Payload is still the live *Model
// pointer written by the trainer; a JSON-backed store round-trips it
// instead, landing as map[string]interface{} (plain json.Unmarshal into
// an any field) or json.RawMessage (deferred decoding) — both are handled
// by re-marshaling through encoding/json rather than assuming one shape.
func decodeModel(event *domain.AnalyticsEvent) *Model {
	if event == nil || event.Payload == nil {
		return nil
	}
	if model, ok := event.Payload.(*Model); ok {
		return model
	}

	var raw []byte
	switch payload := event.Payload.(type) {
	case json.RawMessage:
		raw = payload
	case []byte:
		raw = payload
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil
		}
		raw = encoded
	}

	var model Model
	if err := json.Unmarshal(raw, &model); err != nil {
		return nil
	}
	return &model
}

func heuristicPredict(raw []float64) float64 {
	pred := heuristicBiasHours
	for i, v := range raw {
		if i < len(heuristicWeights) {
			pred += heuristicWeights[i] * standardizeHeuristicFeature(i, v)
		}
	}
	return clampMergeHours(pred)
}

// standardizeHeuristicFeature approximates standardization without a
// trained model's running stats, using fixed, conservative scale
// guesses per feature (large-magnitude features like line counts are
// divided down; 0/1 features pass through).
func standardizeHeuristicFeature(index int, v float64) float64 {
	switch index {
	case 0: // files
		return v / 10
	case 1, 2: // linesAdded, linesDeleted
		return v / 200
	case 6: // prAgeHours
		return v / 24
	case 8: // hourOfDay
		return v / 12
	case 10, 11: // authorAvgMergeTimeHours, repoAvgMergeTimeHours
		return v / 24
	case 12: // repoAvgReviewLatencyMinutes
		return v / 60
	default:
		return v
	}
}

func heuristicImportance() map[string]float64 {
	var total float64
	for _, w := range heuristicWeights {
		total += math.Abs(w)
	}
	out := make(map[string]float64, len(heuristicWeights))
	for i, w := range heuristicWeights {
		if i < len(featureNames) {
			out[featureNames[i]] = math.Abs(w) / total
		}
	}
	return out
}

// mergeProbabilityFromRisk is a logistic transform of risk/issue signals:
// higher risk and more critical/high findings push probability of merge
// down.
func mergeProbabilityFromRisk(fv FeatureVector) float64 {
	z := 2.0 - 3*fv.RiskScore - 0.4*float64(fv.CriticalIssues) - 0.15*float64(fv.HighIssues)
	return sigmoid(z)
}

func blockersFromFeatures(fv FeatureVector) (float64, []string) {
	var blockers []string
	if fv.CriticalIssues > 0 {
		blockers = append(blockers, "unresolved critical findings")
	}
	if fv.RiskScore >= 0.9 {
		blockers = append(blockers, "high risk change surface")
	}
	if !fv.HasTests && fv.NormalizedSize > 0.3 {
		blockers = append(blockers, "no generated tests for a sizable change")
	}
	if !fv.HasDescription {
		blockers = append(blockers, "missing PR description")
	}
	z := -1.5 + 1.5*fv.RiskScore + 0.3*float64(fv.CriticalIssues) + 0.1*float64(fv.HighIssues)
	return sigmoid(z), blockers
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// confidenceFor increases with data availability (author history, repo
// history, >=3 reviewers) and decreases at extreme feature values, per
// §4.8.
func confidenceFor(fv FeatureVector, dataPoints int, hist HistoryStats) float64 {
	confidence := 0.4
	if hist.AuthorAvgMergeTimeHours > 0 {
		confidence += 0.15
	}
	if hist.RepoAvgMergeTimeHours > 0 {
		confidence += 0.15
	}
	if hist.ReviewerAvailability >= 1.0 {
		confidence += 0.15
	}
	if dataPoints >= minTrainingSamples {
		confidence += 0.15
	}

	if fv.NormalizedSize > 0.8 || fv.NormalizedRisk > 0.8 || fv.PRAgeHours > 120 {
		confidence -= 0.25
	}

	if confidence < 0.05 {
		confidence = 0.05
	}
	if confidence > 0.99 {
		confidence = 0.99
	}
	return confidence
}

type predictiveError string

func (e predictiveError) Error() string { return string(e) }

const errWorkflowNotFound = predictiveError("workflow not found")
