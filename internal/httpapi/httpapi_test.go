package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/prreview/orchestrator/internal/domain"
	"github.com/prreview/orchestrator/internal/gating"
	"github.com/prreview/orchestrator/internal/predictive"
	"github.com/prreview/orchestrator/internal/preference"
	"github.com/prreview/orchestrator/internal/store/memstore"
	"github.com/prreview/orchestrator/internal/workflow"
)

type stubWebhook struct{}

func (stubWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) }

type stubRunner struct{}

func (stubRunner) Run(ctx context.Context, wf *domain.Workflow) error { return nil }

type stubPublisher struct{}

func (stubPublisher) PublishFailureCheckRun(ctx context.Context, wf *domain.Workflow, reason, requestID string) error {
	return nil
}

func (stubPublisher) PublishReviewBatch(ctx context.Context, wf *domain.Workflow, findings []preference.Finding) (string, error) {
	return "", nil
}

func (stubPublisher) PublishSummaryComment(ctx context.Context, wf *domain.Workflow, markdown string) (string, error) {
	return "", nil
}

func (stubPublisher) PublishCheckRun(ctx context.Context, wf *domain.Workflow, status, conclusion, summary string) (string, error) {
	return "", nil
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	log := logrus.NewEntry(logrus.New())

	workflows := memstore.NewWorkflowStore()
	agentRuns := memstore.NewAgentRunStore()
	artifacts := memstore.NewArtifactStore()
	decisions := memstore.NewDecisionStore()
	preferences := memstore.NewPreferenceStore()
	events := memstore.NewAnalyticsEventStore()

	engine := workflow.New(workflows, agentRuns, stubRunner{}, stubPublisher{}, nil, 0, log)
	predictor := predictive.NewPredictor(workflows, agentRuns, artifacts, decisions, events)
	prefStore := preference.New(preferences)

	return Deps{
		Webhook:     stubWebhook{},
		Workflows:   workflows,
		Engine:      engine,
		Predictor:   predictor,
		Preferences: prefStore,
		Decisions:   decisions,
		Log:         log,
	}
}

func TestGetWorkflowNotFound(t *testing.T) {
	deps := newTestDeps(t)
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/workflows/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetWorkflowReturnsStoredRecord(t *testing.T) {
	deps := newTestDeps(t)
	require.NoError(t, deps.Workflows.Save(context.Background(), &domain.Workflow{
		ID: "wf-1", RepositoryID: "r1", PRNumber: 4, Status: domain.WorkflowRunning,
	}))
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/workflows/wf-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "r1", got.RepositoryID)
}

func TestPostDecisionUpdatesPreferenceModel(t *testing.T) {
	deps := newTestDeps(t)
	router := NewRouter(deps)

	body, err := json.Marshal(decisionRequest{
		RepositoryID: "r1",
		ReviewerID:   "u1",
		Action:       domain.DecisionAccepted,
		Context:      domain.DecisionContext{Category: "STYLE", Severity: "LOW"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/decisions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	model, err := deps.Preferences.Model(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, 1, model.DataPoints)
}

func TestPatchPreferencesSetsCustomRules(t *testing.T) {
	deps := newTestDeps(t)
	router := NewRouter(deps)

	body, err := json.Marshal(patchPreferencesRequest{
		CustomRules: []domain.TeamRule{{Pattern: "TODO", Action: domain.RuleNeverFlag}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPatch, "/api/repositories/r1/preferences", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.RepoPreferenceModel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.CustomRules, 1)
	require.Equal(t, "TODO", got.CustomRules[0].Pattern)
}

func TestMergeReadyEndpoint(t *testing.T) {
	deps := newTestDeps(t)
	router := NewRouter(deps)

	body, err := json.Marshal(mergeReadyRequest{ChecksPass: true, ApprovalsCount: 1, RequiredApprovals: 1, IsUpToDate: true})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/gating/merge-ready", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got gating.MergeReadyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.True(t, got.Ready)
}

func TestWebhookRouteBypassesAuth(t *testing.T) {
	deps := newTestDeps(t)
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	deps := newTestDeps(t)
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "prreview_http_requests_total")
}

func TestTokenAuthenticatorRoundTrips(t *testing.T) {
	auth := NewTokenAuthenticator("s3cret")
	token := auth.IssueToken("user-1", time.Minute)

	userID, err := auth.Authenticate(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
}

func TestTokenAuthenticatorRejectsExpiredToken(t *testing.T) {
	auth := NewTokenAuthenticator("s3cret")
	token := auth.IssueToken("user-1", -time.Minute)

	_, err := auth.Authenticate(token)
	require.Error(t, err)
}

func TestTokenAuthenticatorRejectsTamperedSignature(t *testing.T) {
	auth := NewTokenAuthenticator("s3cret")
	token := auth.IssueToken("user-1", time.Minute)

	_, err := NewTokenAuthenticator("different-secret").Authenticate(token)
	require.Error(t, err)
}

func TestNormalizeRouteBucketsIDs(t *testing.T) {
	require.Equal(t, "/api/workflows/{id}/predictions", normalizeRoute("/api/workflows/3f2b9c1e-8d4a-4e6f-9b7a-2c5d1e0f4a6b/predictions"))
	require.Equal(t, "/api/repositories/{id}/preferences", normalizeRoute("/api/repositories/42/preferences"))
}
