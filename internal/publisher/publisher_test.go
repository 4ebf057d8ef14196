package publisher

import (
	"context"
	"testing"

	"github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prreview/orchestrator/internal/agents"
	"github.com/prreview/orchestrator/internal/domain"
	"github.com/prreview/orchestrator/internal/logging"
	"github.com/prreview/orchestrator/internal/preference"
	"github.com/prreview/orchestrator/internal/provider/ghclient"
	"github.com/prreview/orchestrator/internal/store/memstore"
)

type fakeGHClient struct {
	checkRunCalls int
	summaryCalls  int
	reviewCalls   int
	nextID        int64
}

func (f *fakeGHClient) CreateCheckRun(_ context.Context, _, _, _, _, _, _ string) (string, error) {
	f.checkRunCalls++
	f.nextID++
	return "check-" + itoaTest(f.nextID), nil
}
func (f *fakeGHClient) UpdateCheckRun(context.Context, string, string, int64, string, string, string) error {
	return nil
}
func (f *fakeGHClient) CreateReviewBatch(context.Context, string, string, int, []ghclient.Finding) (string, error) {
	f.reviewCalls++
	f.nextID++
	return "review-" + itoaTest(f.nextID), nil
}
func (f *fakeGHClient) CreateSummaryComment(context.Context, string, string, int, string) (string, error) {
	f.summaryCalls++
	f.nextID++
	return "comment-" + itoaTest(f.nextID), nil
}
func (f *fakeGHClient) RequestReviewers(context.Context, string, string, int, []string) error { return nil }
func (f *fakeGHClient) CompareBranches(context.Context, string, string, string, string) (*github.CommitsComparison, error) {
	return &github.CommitsComparison{}, nil
}
func (f *fakeGHClient) GetCodeowners(context.Context, string, string) (string, error) { return "", nil }
func (f *fakeGHClient) LoadPRContext(context.Context, *domain.Workflow) ([]agents.ChangedFile, string, error) {
	return nil, "", nil
}

func itoaTest(n int64) string {
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

func TestPublishCheckRunIsIdempotentForSameContent(t *testing.T) {
	gh := &fakeGHClient{}
	artifacts := memstore.NewArtifactStore()
	p := New(gh, artifacts, logging.New("test"))

	wf := &domain.Workflow{ID: "wf1", RepositoryID: "o/r", PRNumber: 1, HeadSHA: "a"}

	id1, err := p.PublishCheckRun(context.Background(), wf, "completed", "success", "all good")
	require.NoError(t, err)

	id2, err := p.PublishCheckRun(context.Background(), wf, "completed", "success", "all good")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, gh.checkRunCalls, "identical content must not re-publish")
}

func TestPublishCheckRunDifferentContentPublishesTwice(t *testing.T) {
	gh := &fakeGHClient{}
	artifacts := memstore.NewArtifactStore()
	p := New(gh, artifacts, logging.New("test"))

	wf := &domain.Workflow{ID: "wf2", RepositoryID: "o/r", PRNumber: 1, HeadSHA: "a"}

	_, err := p.PublishCheckRun(context.Background(), wf, "completed", "success", "summary A")
	require.NoError(t, err)
	_, err = p.PublishCheckRun(context.Background(), wf, "completed", "success", "summary B")
	require.NoError(t, err)

	assert.Equal(t, 2, gh.checkRunCalls)
}

func TestPublishReviewBatch(t *testing.T) {
	gh := &fakeGHClient{}
	artifacts := memstore.NewArtifactStore()
	p := New(gh, artifacts, logging.New("test"))

	wf := &domain.Workflow{ID: "wf3", RepositoryID: "o/r", PRNumber: 4}
	findings := []preference.Finding{{File: "a.go", Line: 1, Severity: "HIGH", Category: "BUG", Message: "nil deref"}}

	id, err := p.PublishReviewBatch(context.Background(), wf, findings)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, gh.reviewCalls)
}
