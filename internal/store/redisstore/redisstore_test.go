package redisstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/prreview/orchestrator/internal/domain"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(mr.Addr(), logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestWorkflowStoreRoundTripsAndTracksActive(t *testing.T) {
	ctx := context.Background()
	s := NewWorkflowStore(newTestClient(t))

	wf := &domain.Workflow{ID: "wf-1", RepositoryID: "r1", PRNumber: 7, Status: domain.WorkflowRunning}
	require.NoError(t, s.Save(ctx, wf))

	got, err := s.Get(ctx, "wf-1")
	require.NoError(t, err)
	require.Equal(t, wf.RepositoryID, got.RepositoryID)

	active, err := s.ActiveFor(ctx, "r1", 7)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, "wf-1", active.ID)

	wf.Status = domain.WorkflowCompleted
	now := time.Now()
	wf.CompletedAt = &now
	require.NoError(t, s.Save(ctx, wf))

	active, err = s.ActiveFor(ctx, "r1", 7)
	require.NoError(t, err)
	require.Nil(t, active)

	completed, err := s.ListCompleted(ctx, 0)
	require.NoError(t, err)
	require.Len(t, completed, 1)
}

func TestWorkflowStoreListResumable(t *testing.T) {
	ctx := context.Background()
	s := NewWorkflowStore(newTestClient(t))

	old := time.Now().Add(-time.Hour)
	wf := &domain.Workflow{ID: "wf-stale", RepositoryID: "r1", PRNumber: 1, Status: domain.WorkflowRunning, StartedAt: &old}
	require.NoError(t, s.Save(ctx, wf))

	resumable, err := s.ListResumable(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, resumable, 1)
	require.Equal(t, "wf-stale", resumable[0].ID)
}

func TestAgentRunStoreListForWorkflow(t *testing.T) {
	ctx := context.Background()
	s := NewAgentRunStore(newTestClient(t))

	require.NoError(t, s.Save(ctx, &domain.AgentRun{WorkflowID: "wf-1", AgentName: "analysis", Status: domain.AgentRunSucceeded}))
	require.NoError(t, s.Save(ctx, &domain.AgentRun{WorkflowID: "wf-1", AgentName: "risk", Status: domain.AgentRunRunning}))

	runs, err := s.ListForWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "analysis", runs[0].AgentName)
}

func TestArtifactStoreFindByKeyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewArtifactStore(newTestClient(t))

	artifact := &domain.Artifact{ID: "a-1", WorkflowID: "wf-1", Kind: domain.ArtifactCheckRun, ContentHash: "hash-1"}
	require.NoError(t, s.Save(ctx, artifact))

	found, err := s.FindByKey(ctx, "wf-1", domain.ArtifactCheckRun, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "a-1", found.ID)

	missing, err := s.FindByKey(ctx, "wf-1", domain.ArtifactCheckRun, "hash-2")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestDecisionStoreListForRepositoryRespectsLimit(t *testing.T) {
	ctx := context.Background()
	s := NewDecisionStore(newTestClient(t))

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(ctx, &domain.ReviewerDecision{RepositoryID: "r1", ReviewerID: "u1"}))
	}

	all, err := s.ListForRepository(ctx, "r1", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)

	last2, err := s.ListForRepository(ctx, "r1", 2)
	require.NoError(t, err)
	require.Len(t, last2, 2)
}

func TestPreferenceStoreLatestPicksHighestVersion(t *testing.T) {
	ctx := context.Background()
	s := NewPreferenceStore(newTestClient(t))

	require.NoError(t, s.Append(ctx, &domain.RepoPreferenceModel{RepositoryID: "r1", Version: 1, CategoryWeights: map[string]float64{}, AcceptanceRates: map[domain.CategoryKey]float64{}}))
	require.NoError(t, s.Append(ctx, &domain.RepoPreferenceModel{RepositoryID: "r1", Version: 3, CategoryWeights: map[string]float64{}, AcceptanceRates: map[domain.CategoryKey]float64{}}))
	require.NoError(t, s.Append(ctx, &domain.RepoPreferenceModel{RepositoryID: "r1", Version: 2, CategoryWeights: map[string]float64{}, AcceptanceRates: map[domain.CategoryKey]float64{}}))

	latest, err := s.Latest(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, 3, latest.Version)
}

func TestAnalyticsEventStoreRoundTripsPayloadAsRawMessage(t *testing.T) {
	ctx := context.Background()
	s := NewAnalyticsEventStore(newTestClient(t))

	type trainedWeights struct {
		Weights []float64 `json:"Weights"`
	}
	require.NoError(t, s.Append(ctx, &domain.AnalyticsEvent{
		ID:           "e-1",
		RepositoryID: "r1",
		Kind:         domain.AnalyticsEventModelTrained,
		Payload:      trainedWeights{Weights: []float64{1, 2, 3}},
		CreatedAt:    time.Now(),
	}))

	event, err := s.LatestByKind(ctx, "r1", domain.AnalyticsEventModelTrained)
	require.NoError(t, err)
	require.NotNil(t, event)
	require.IsType(t, json.RawMessage{}, event.Payload)

	var decoded trainedWeights
	require.NoError(t, json.Unmarshal(event.Payload.(json.RawMessage), &decoded))
	require.Equal(t, []float64{1, 2, 3}, decoded.Weights)
}

func TestDeliveryStoreMarksProcessedOnce(t *testing.T) {
	ctx := context.Background()
	s := NewDeliveryStore(newTestClient(t))

	processed, err := s.HasProcessed(ctx, "delivery-1")
	require.NoError(t, err)
	require.False(t, processed)

	require.NoError(t, s.MarkProcessed(ctx, "delivery-1"))

	processed, err = s.HasProcessed(ctx, "delivery-1")
	require.NoError(t, err)
	require.True(t, processed)
}
