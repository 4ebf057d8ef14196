package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/domain"
	"github.com/prreview/orchestrator/internal/logging"
	"github.com/prreview/orchestrator/internal/realtime"
	"github.com/prreview/orchestrator/internal/store/memstore"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	fn    func(n int) error
}

func (f *fakeRunner) Run(_ context.Context, _ *domain.Workflow) error {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.fn == nil {
		return nil
	}
	return f.fn(n)
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []domain.Workflow
}

func (f *fakeEmitter) EmitWorkflowUpdate(wf *domain.Workflow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *wf)
}

func (f *fakeEmitter) EmitArtifact(repositoryID, workflowID string, kind realtime.MessageType, data any) {}

func (f *fakeEmitter) snapshot() []domain.Workflow {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Workflow, len(f.events))
	copy(out, f.events)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestEnqueueCreatesWorkflowAndRunsToAwaitingReview(t *testing.T) {
	wfs := memstore.NewWorkflowStore()
	runner := &fakeRunner{}
	emitter := &fakeEmitter{}
	e := New(wfs, nil, runner, nil, emitter, 0, logging.New("test"))

	event := domain.TriggerEvent{DeliveryID: "d1", RepositoryID: "o/r", PRNumber: 1, HeadSha: "a"}
	require.NoError(t, e.Enqueue(context.Background(), event))

	waitFor(t, time.Second, func() bool {
		wf, _ := wfs.ActiveFor(context.Background(), "o/r", 1)
		return wf == nil // active map is cleared once AWAITING_REVIEW (non-active status)
	})

	events := emitter.snapshot()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, domain.WorkflowAwaitingReview, last.Status)
}

func TestSupersessionCancelsPriorWorkflow(t *testing.T) {
	wfs := memstore.NewWorkflowStore()
	block := make(chan struct{})
	runner := &fakeRunner{fn: func(n int) error {
		<-block
		return nil
	}}
	emitter := &fakeEmitter{}
	e := New(wfs, nil, runner, nil, emitter, 0, logging.New("test"))

	first := domain.TriggerEvent{DeliveryID: "d1", RepositoryID: "o/r", PRNumber: 7, HeadSha: "A"}
	require.NoError(t, e.Enqueue(context.Background(), first))

	waitFor(t, time.Second, func() bool {
		wf, _ := wfs.ActiveFor(context.Background(), "o/r", 7)
		return wf != nil && wf.Status == domain.WorkflowRunning
	})

	second := domain.TriggerEvent{DeliveryID: "d2", RepositoryID: "o/r", PRNumber: 7, HeadSha: "B"}
	require.NoError(t, e.Enqueue(context.Background(), second))

	waitFor(t, time.Second, func() bool {
		wf, _ := wfs.ActiveFor(context.Background(), "o/r", 7)
		return wf != nil && wf.HeadSHA == "B"
	})

	close(block)

	events := emitter.snapshot()
	var sawCancelled bool
	for _, ev := range events {
		if ev.HeadSHA == "A" && ev.Status == domain.WorkflowCancelled {
			sawCancelled = true
		}
	}
	assert.True(t, sawCancelled, "expected workflow A to be CANCELLED after supersession")
}

func TestDuplicateHeadShaWithinDebounceIsCoalesced(t *testing.T) {
	wfs := memstore.NewWorkflowStore()
	runner := &fakeRunner{}
	e := New(wfs, nil, runner, nil, nil, time.Hour, logging.New("test"))

	event := domain.TriggerEvent{DeliveryID: "d1", RepositoryID: "o/r", PRNumber: 9, HeadSha: "a"}
	require.NoError(t, e.Enqueue(context.Background(), event))
	require.NoError(t, e.Enqueue(context.Background(), event))

	waitFor(t, time.Second, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.calls >= 1
	})
	runner.mu.Lock()
	calls := runner.calls
	runner.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestNonTransientErrorMarksFailedWithoutRetry(t *testing.T) {
	wfs := memstore.NewWorkflowStore()
	runner := &fakeRunner{fn: func(n int) error {
		return apperr.New(apperr.Validation, "test", assertErr("bad input"))
	}}
	e := New(wfs, nil, runner, nil, nil, 0, logging.New("test"))

	event := domain.TriggerEvent{DeliveryID: "d1", RepositoryID: "o/r", PRNumber: 3, HeadSha: "a"}
	require.NoError(t, e.Enqueue(context.Background(), event))

	waitFor(t, time.Second, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.calls >= 1
	})
	time.Sleep(50 * time.Millisecond)

	runner.mu.Lock()
	calls := runner.calls
	runner.mu.Unlock()
	assert.Equal(t, 1, calls, "non-transient errors must not be retried")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
