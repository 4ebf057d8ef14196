package predictive

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/prreview/orchestrator/internal/agents"
	"github.com/prreview/orchestrator/internal/domain"
	"github.com/prreview/orchestrator/internal/store"
)

// Trainer runs the §4.8 "offline loop over completed workflows": extract a
// feature vector and target (actual merge time) from every completed
// workflow, group by repository, and fit one Model per repository with
// enough data.
type Trainer struct {
	workflows store.WorkflowRepo
	agentRuns store.AgentRunRepo
	artifacts store.ArtifactRepo
	decisions store.DecisionRepo
	events    store.AnalyticsEventRepo
	log       *logrus.Entry
}

func NewTrainer(workflows store.WorkflowRepo, agentRuns store.AgentRunRepo, artifacts store.ArtifactRepo, decisions store.DecisionRepo, events store.AnalyticsEventRepo, log *logrus.Entry) *Trainer {
	return &Trainer{workflows: workflows, agentRuns: agentRuns, artifacts: artifacts, decisions: decisions, events: events, log: log}
}

// minTrainingSamples is the smallest per-repository sample size worth
// fitting a regression over; below this, TrainAll skips the repository and
// writes no model for it, so predict() uses the heuristic unless an earlier
// model for that repository is already stored.
const minTrainingSamples = 5

// TrainAll fits and persists one Model per repository with at least
// minTrainingSamples completed workflows.
func (t *Trainer) TrainAll(ctx context.Context) error {
	completed, err := t.workflows.ListCompleted(ctx, 0)
	if err != nil {
		return err
	}

	byRepo := make(map[string][]*domain.Workflow)
	for _, wf := range completed {
		if wf.Status == domain.WorkflowCompleted && wf.CompletedAt != nil {
			byRepo[wf.RepositoryID] = append(byRepo[wf.RepositoryID], wf)
		}
	}

	for repositoryID, workflows := range byRepo {
		if len(workflows) < minTrainingSamples {
			t.log.WithField("repositoryId", repositoryID).WithField("samples", len(workflows)).
				Debug("skipping predictive-health training: not enough completed workflows")
			continue
		}
		if err := t.trainRepository(ctx, repositoryID, workflows, completed); err != nil {
			t.log.WithError(err).WithField("repositoryId", repositoryID).Error("predictive-health training failed")
		}
	}
	return nil
}

func (t *Trainer) trainRepository(ctx context.Context, repositoryID string, workflows, allCompleted []*domain.Workflow) error {
	var rawFeatures [][]float64
	var targets []float64

	for _, wf := range workflows {
		runs, err := t.agentRuns.ListForWorkflow(ctx, wf.ID)
		if err != nil {
			continue
		}
		hist := computeHistoryStats(ctx, t.artifacts, t.decisions, repositoryID, wf.AuthorLogin, allCompleted)
		fv := featuresFromRuns(wf, runs, *wf.CompletedAt, hist)
		rawFeatures = append(rawFeatures, fv.ToSlice())
		targets = append(targets, mergeTimeHours(wf))
	}
	if len(rawFeatures) < minTrainingSamples {
		return nil
	}

	weights, bias, std := trainLinearRegression(rawFeatures, targets)
	model := &Model{
		RepositoryID: repositoryID,
		Weights:      weights,
		Bias:         bias,
		Standardizer: std,
		DataPoints:   len(rawFeatures),
		TrainedAt:    time.Now(),
	}

	return t.events.Append(ctx, &domain.AnalyticsEvent{
		ID:           uuid.NewString(),
		RepositoryID: repositoryID,
		Kind:         domain.AnalyticsEventModelTrained,
		Payload:      model,
		CreatedAt:    model.TrainedAt,
	})
}

// featuresFromRuns derives a FeatureVector from a completed workflow's
// persisted agent outputs, falling back to zero values for any agent that
// never ran or produced an unexpected output type.
func featuresFromRuns(wf *domain.Workflow, runs []*domain.AgentRun, asOf time.Time, hist HistoryStats) FeatureVector {
	byName := make(map[string]*domain.AgentRun, len(runs))
	for _, r := range runs {
		byName[r.AgentName] = r
	}

	var files, linesAdded, linesDeleted int
	var hasDescription bool
	if r, ok := byName["analysis"]; ok {
		if out, ok := r.Output.(agents.AnalysisOutput); ok {
			files, linesAdded, linesDeleted = out.Files, out.Additions, out.Deletions
			hasDescription = out.PRBody != ""
		}
	}

	riskScore := 0.2
	if r, ok := byName["risk"]; ok {
		if out, ok := r.Output.(agents.RiskOutput); ok {
			riskScore = RiskLevelScore(string(out.Level))
		}
	}

	var critical, high int
	hasTests := false
	if r, ok := byName["review"]; ok {
		if out, ok := r.Output.(agents.ReviewOutput); ok {
			for _, f := range out.Findings {
				switch f.Severity {
				case "CRITICAL":
					critical++
				case "HIGH":
					high++
				}
			}
		}
	}
	if r, ok := byName["tests"]; ok {
		if out, ok := r.Output.(agents.TestsOutput); ok {
			hasTests = len(out.Suggestions) > 0
		}
	}

	in := Inputs{
		Files: files, LinesAdded: linesAdded, LinesDeleted: linesDeleted,
		RiskScore: riskScore, CriticalIssues: critical, HighIssues: high,
		CreatedAt: wf.CreatedAt, Now: asOf,
		HasTests:       hasTests,
		HasDescription: hasDescription,
	}
	return Extract(in, hist)
}
