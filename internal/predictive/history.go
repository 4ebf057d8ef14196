package predictive

import (
	"context"

	"github.com/prreview/orchestrator/internal/domain"
	"github.com/prreview/orchestrator/internal/store"
)

// HistoryStats is the author/repo aggregate half of a FeatureVector,
// recomputed from completed workflows (and recorded decisions, as a proxy
// for reviewer engagement) each time a model trains or a prediction is
// requested.
type HistoryStats struct {
	AuthorMergeRate             float64
	AuthorAvgMergeTimeHours     float64
	RepoAvgMergeTimeHours       float64
	RepoAvgReviewLatencyMinutes float64
	ReviewerAvailability        float64
}

// reviewerAvailabilitySample is how many recent decisions are consulted to
// estimate how many distinct reviewers are actively engaged with a
// repository; the resulting availability saturates at 3 distinct reviewers
// since §4.8 calls out "≥3 reviewers" as the data-availability threshold
// that raises confidence.
const reviewerAvailabilitySample = 50

// computeHistoryStats aggregates author- and repo-level merge statistics
// from completed workflows, and a reviewer-availability/review-latency
// estimate from recent decisions joined against the artifacts they react
// to.
func computeHistoryStats(ctx context.Context, artifacts store.ArtifactRepo, decisions store.DecisionRepo, repositoryID, authorLogin string, completed []*domain.Workflow) HistoryStats {
	var (
		authorTotal, authorMerged int
		authorMergeHoursSum       float64
		repoTotal, repoMerged     int
		repoMergeHoursSum         float64
	)

	for _, wf := range completed {
		if wf.RepositoryID != repositoryID {
			continue
		}
		repoTotal++
		mergeHours := mergeTimeHours(wf)
		if wf.Status == domain.WorkflowCompleted {
			repoMerged++
			repoMergeHoursSum += mergeHours
		}
		if wf.AuthorLogin == authorLogin {
			authorTotal++
			if wf.Status == domain.WorkflowCompleted {
				authorMerged++
				authorMergeHoursSum += mergeHours
			}
		}
	}

	stats := HistoryStats{ReviewerAvailability: 0.5}
	if authorTotal > 0 {
		stats.AuthorMergeRate = float64(authorMerged) / float64(authorTotal)
	}
	if authorMerged > 0 {
		stats.AuthorAvgMergeTimeHours = authorMergeHoursSum / float64(authorMerged)
	}
	if repoMerged > 0 {
		stats.RepoAvgMergeTimeHours = repoMergeHoursSum / float64(repoMerged)
	}

	if decisions != nil {
		recent, err := decisions.ListForRepository(ctx, repositoryID, reviewerAvailabilitySample)
		if err == nil && len(recent) > 0 {
			seen := make(map[string]struct{})
			var latencyMinutesSum float64
			var latencyCount int
			for _, d := range recent {
				seen[d.ReviewerID] = struct{}{}
				if artifacts == nil || d.CommentArtifactID == "" {
					continue
				}
				artifact, aerr := artifacts.Get(ctx, d.CommentArtifactID)
				if aerr != nil || artifact == nil || artifact.PublishedAt == nil {
					continue
				}
				if latency := d.Timestamp.Sub(*artifact.PublishedAt).Minutes(); latency >= 0 {
					latencyMinutesSum += latency
					latencyCount++
				}
			}
			stats.ReviewerAvailability = minFloat(float64(len(seen))/3.0, 1.0)
			if latencyCount > 0 {
				stats.RepoAvgReviewLatencyMinutes = latencyMinutesSum / float64(latencyCount)
			}
		}
	}

	return stats
}

func mergeTimeHours(wf *domain.Workflow) float64 {
	if wf.CompletedAt == nil {
		return 0
	}
	return wf.CompletedAt.Sub(wf.CreatedAt).Hours()
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
