// Package workflow implements the Workflow Engine (§4.2): the per-PR state
// machine with checkpointed transitions, supersession, retry with backoff,
// and crash-safe resumption.
//
// No teacher package covers a formal state machine; this is built fresh in
// the teacher's idiom -- persist-then-side-effect ordering modeled on
// startReviewLoop in server/reviewloop.go (save the record, perform the
// external call, roll back the record on failure), and a background sweep
// modeled on server/poller.go's pollAgentStatuses for crash resumption.
package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/prreview/orchestrator/internal/agents"
	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/domain"
	"github.com/prreview/orchestrator/internal/preference"
	"github.com/prreview/orchestrator/internal/realtime"
	"github.com/prreview/orchestrator/internal/store"
)

// Runner executes the agent DAG for a workflow. Implemented by
// orchestrator.Orchestrator. Errors are expected to be *apperr.Error so the
// engine can distinguish transient from fatal failures (§4.2, §7).
type Runner interface {
	Run(ctx context.Context, wf *domain.Workflow) error
}

// FailurePublisher publishes the failure check-run required whenever a
// workflow terminates in FAILED (§7 "a failure check-run is always
// published"), plus the success-path artifacts published on the
// AWAITING_REVIEW transition: the review batch, the synthesis summary
// comment, and the passing check-run. One Publisher value satisfies all
// four; they are split out as an interface only so the engine doesn't
// depend on the publisher package directly.
type FailurePublisher interface {
	PublishFailureCheckRun(ctx context.Context, wf *domain.Workflow, reason, requestID string) error
	PublishReviewBatch(ctx context.Context, wf *domain.Workflow, findings []preference.Finding) (string, error)
	PublishSummaryComment(ctx context.Context, wf *domain.Workflow, markdown string) (string, error)
	PublishCheckRun(ctx context.Context, wf *domain.Workflow, status, conclusion, summary string) (string, error)
}

// EventEmitter fans workflow lifecycle transitions and published artifacts
// out to realtime subscribers (§4.7). Optional; nil disables emission.
type EventEmitter interface {
	EmitWorkflowUpdate(wf *domain.Workflow)
	EmitArtifact(repositoryID, workflowID string, kind realtime.MessageType, data any)
}

const (
	maxRetryAttempts  = 5
	retryBaseInterval = time.Second
	retryMultiplier   = 2.0

	// resumeStaleAfter is the §4.2 crash-safety threshold: a RUNNING
	// workflow whose last checkpoint is older than this on startup is
	// resumed.
	resumeStaleAfter = 10 * time.Minute
)

// Engine drives every workflow through the state machine in §4.2.
type Engine struct {
	workflows store.WorkflowRepo
	runs      store.AgentRunRepo
	runner    Runner
	publisher FailurePublisher
	events    EventEmitter
	debounce  time.Duration
	log       *logrus.Entry

	mu        sync.Mutex
	cancels   map[string]context.CancelFunc // workflow id -> cancel
	lastSeen  map[string]time.Time          // repo#pr#sha -> last enqueue time, for debounce coalescing
}

// New constructs a workflow Engine. runs is consulted only on the
// AWAITING_REVIEW transition, to read back the review and synthesis agents'
// checkpointed output for publishing; it may be nil in tests that don't
// exercise the success path.
func New(workflows store.WorkflowRepo, runs store.AgentRunRepo, runner Runner, publisher FailurePublisher, events EventEmitter, debounce time.Duration, log *logrus.Entry) *Engine {
	return &Engine{
		workflows: workflows,
		runs:      runs,
		runner:    runner,
		publisher: publisher,
		events:    events,
		debounce:  debounce,
		log:       log,
		cancels:   make(map[string]context.CancelFunc),
		lastSeen:  make(map[string]time.Time),
	}
}

func debounceKey(repositoryID string, prNumber int, headSha string) string {
	return repositoryID + "#" + itoa(prNumber) + "#" + headSha
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Enqueue implements ingestion.Enqueuer. It applies the supersession rule,
// the debounce coalescing window, and the at-most-one-active invariant
// before starting a new run in the background.
func (e *Engine) Enqueue(ctx context.Context, trigger domain.TriggerEvent) error {
	e.mu.Lock()
	key := debounceKey(trigger.RepositoryID, trigger.PRNumber, trigger.HeadSha)
	if last, ok := e.lastSeen[key]; ok && e.debounce > 0 && time.Since(last) < e.debounce {
		e.mu.Unlock()
		e.log.WithField("key", key).Debug("coalesced duplicate trigger within debounce window")
		return nil
	}
	e.lastSeen[key] = time.Now()
	e.mu.Unlock()

	active, err := e.workflows.ActiveFor(ctx, trigger.RepositoryID, trigger.PRNumber)
	if err != nil {
		return apperr.New(apperr.DatabaseError, "workflow.Enqueue", err)
	}

	if active != nil {
		if active.HeadSHA == trigger.HeadSha {
			// Same head sha, already active: coalesced, nothing to do.
			return nil
		}
		if err := e.supersede(ctx, active); err != nil {
			return err
		}
	}

	wf := &domain.Workflow{
		ID:             uuid.New().String(),
		RepositoryID:   trigger.RepositoryID,
		PRNumber:       trigger.PRNumber,
		HeadSHA:        trigger.HeadSha,
		Status:         domain.WorkflowPending,
		Attempt:        0,
		CreatedAt:      time.Now(),
		TriggerEventID: trigger.DeliveryID,
	}
	if err := e.workflows.Save(ctx, wf); err != nil {
		return apperr.New(apperr.DatabaseError, "workflow.Enqueue", err)
	}
	e.emit(wf)

	go e.run(context.Background(), wf)
	return nil
}

// supersede cancels the prior non-terminal workflow for a PR, per the
// §3 invariant: superseding events cancel the prior workflow. The old
// workflow must reach CANCELLED before the new one leaves PENDING (§5).
func (e *Engine) supersede(ctx context.Context, wf *domain.Workflow) error {
	e.mu.Lock()
	cancel, ok := e.cancels[wf.ID]
	e.mu.Unlock()
	if ok {
		cancel()
	}

	wf.Status = domain.WorkflowCancelled
	now := time.Now()
	wf.CompletedAt = &now
	if err := e.workflows.Save(ctx, wf); err != nil {
		return apperr.New(apperr.DatabaseError, "workflow.supersede", err)
	}
	e.emit(wf)
	return nil
}

// Resume implements §4.2 crash safety: any RUNNING workflow whose last
// checkpoint (StartedAt, since RUNNING is the only non-terminal state that
// survives a process restart) is older than resumeStaleAfter is re-run; the
// orchestrator reuses SUCCEEDED agent outputs and re-queues the rest.
func (e *Engine) Resume(ctx context.Context) error {
	stale, err := e.workflows.ListResumable(ctx, resumeStaleAfter)
	if err != nil {
		return apperr.New(apperr.DatabaseError, "workflow.Resume", err)
	}
	for _, wf := range stale {
		e.log.WithField("workflow_id", wf.ID).Info("resuming stale workflow after restart")
		go e.run(context.Background(), wf)
	}
	return nil
}

func (e *Engine) emit(wf *domain.Workflow) {
	if e.events != nil {
		e.events.EmitWorkflowUpdate(wf)
	}
}

func (e *Engine) emitArtifact(wf *domain.Workflow, kind realtime.MessageType, data any) {
	if e.events != nil {
		e.events.EmitArtifact(wf.RepositoryID, wf.ID, kind, data)
	}
}

// publishSuccess runs on the AWAITING_REVIEW transition: it reads back the
// review, tests, and synthesis agents' checkpointed output, publishes the
// review batch and the summary comment, emits the test suggestions to
// realtime subscribers only (they are not published to the provider), then
// closes out with a passing check-run (§4.5, §7). Agent-level SKIPPED/
// FAILED outcomes simply leave their section out -- synthesis already
// produced a best-effort summary covering whichever subset ran.
func (e *Engine) publishSuccess(ctx context.Context, wf *domain.Workflow) {
	if e.publisher == nil || e.runs == nil {
		return
	}

	if review := e.agentOutput(ctx, wf.ID, "review"); review != nil {
		if out, ok := review.(agents.ReviewOutput); ok && len(out.Findings) > 0 {
			if _, err := e.publisher.PublishReviewBatch(ctx, wf, out.Findings); err != nil {
				e.log.WithError(err).Error("failed to publish review batch")
			} else {
				e.emitArtifact(wf, realtime.TypeCommentPosted, out.Findings)
			}
		}
	}

	if tests := e.agentOutput(ctx, wf.ID, "tests"); tests != nil {
		if out, ok := tests.(agents.TestsOutput); ok && len(out.Suggestions) > 0 {
			e.emitArtifact(wf, realtime.TypeTestGenerated, out.Suggestions)
		}
	}

	var markdown string
	if synthesis := e.agentOutput(ctx, wf.ID, "synthesis"); synthesis != nil {
		if out, ok := synthesis.(agents.SynthesisOutput); ok {
			markdown = out.Markdown
		}
	}
	if markdown != "" {
		if _, err := e.publisher.PublishSummaryComment(ctx, wf, markdown); err != nil {
			e.log.WithError(err).Error("failed to publish summary comment")
		} else {
			e.emitArtifact(wf, realtime.TypeAnalysisComplete, markdown)
		}
	}

	if _, err := e.publisher.PublishCheckRun(ctx, wf, "completed", "success", "Automated review completed"); err != nil {
		e.log.WithError(err).Error("failed to publish success check-run")
	}
}

func (e *Engine) agentOutput(ctx context.Context, workflowID, agentName string) any {
	run, err := e.runs.Get(ctx, workflowID, agentName)
	if err != nil || run == nil || run.Status != domain.AgentRunSucceeded {
		return nil
	}
	return run.Output
}

// run transitions PENDING -> RUNNING and drives the orchestrator with the
// §4.2 retry policy: transient errors are retried with exponential backoff
// and jitter (base 1s, factor 2, up to 5 attempts) by re-invoking the
// orchestrator, which itself resumes from the first not-yet-succeeded
// agent. Non-transient errors mark the workflow FAILED immediately.
func (e *Engine) run(parent context.Context, wf *domain.Workflow) {
	ctx, cancel := context.WithCancel(parent)
	e.mu.Lock()
	e.cancels[wf.ID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, wf.ID)
		e.mu.Unlock()
		cancel()
	}()

	wf.Status = domain.WorkflowRunning
	now := time.Now()
	wf.StartedAt = &now
	if err := e.workflows.Save(ctx, wf); err != nil {
		e.log.WithError(err).Error("failed to checkpoint RUNNING transition")
		return
	}
	e.emit(wf)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryBaseInterval
	bo.Multiplier = retryMultiplier
	bo.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not wall-clock
	retrier := backoff.WithMaxRetries(bo, maxRetryAttempts-1)

	var lastErr error
	attempt := 0
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		attempt++
		wf.Attempt = attempt
		lastErr = e.runner.Run(ctx, wf)
		if lastErr == nil {
			return nil
		}
		if !apperr.KindOf(lastErr).Retryable() {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}

	err := backoff.Retry(operation, retrier)

	if ctx.Err() != nil {
		// Superseded mid-flight: supersede() already persisted CANCELLED.
		return
	}

	if err == nil {
		wf.Status = domain.WorkflowAwaitingReview
		if saveErr := e.workflows.Save(ctx, wf); saveErr != nil {
			e.log.WithError(saveErr).Error("failed to checkpoint AWAITING_REVIEW transition")
		}
		e.emit(wf)
		e.publishSuccess(context.Background(), wf)
		return
	}

	wf.Status = domain.WorkflowFailed
	completed := time.Now()
	wf.CompletedAt = &completed
	if saveErr := e.workflows.Save(ctx, wf); saveErr != nil {
		e.log.WithError(saveErr).Error("failed to checkpoint FAILED transition")
	}
	e.emit(wf)

	if e.publisher != nil {
		reason := "workflow failed"
		if lastErr != nil {
			reason = lastErr.Error()
		}
		if pubErr := e.publisher.PublishFailureCheckRun(context.Background(), wf, reason, wf.ID); pubErr != nil {
			e.log.WithError(pubErr).Error("failed to publish failure check-run")
		}
	}
}

// ResolveReview transitions AWAITING_REVIEW -> COMPLETED once a reviewer has
// resolved the PR (approved/merged upstream of this service).
func (e *Engine) ResolveReview(ctx context.Context, workflowID string) error {
	wf, err := e.workflows.Get(ctx, workflowID)
	if err != nil {
		return apperr.New(apperr.DatabaseError, "workflow.ResolveReview", err)
	}
	if wf == nil {
		return apperr.Newf(apperr.NotFound, "workflow.ResolveReview", "workflow %s not found", workflowID)
	}
	if wf.Status != domain.WorkflowAwaitingReview {
		return apperr.Newf(apperr.Conflict, "workflow.ResolveReview", "workflow %s is %s, not AWAITING_REVIEW", workflowID, wf.Status)
	}
	wf.Status = domain.WorkflowCompleted
	now := time.Now()
	wf.CompletedAt = &now
	if err := e.workflows.Save(ctx, wf); err != nil {
		return apperr.New(apperr.DatabaseError, "workflow.ResolveReview", err)
	}
	e.emit(wf)
	return nil
}
