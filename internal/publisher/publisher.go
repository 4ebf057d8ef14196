// Package publisher implements the Provider Publisher (§4.5): check-run,
// review-batch, and summary-comment publication with per-installation
// rate limiting, circuit breaking, retry-with-jitter on 5xx, and
// content-hash idempotency.
//
// Grounded on the teacher's server/ghclient/client.go call shape (one
// interface call per GitHub operation) and server/ratelimit.go (a
// mutex-guarded per-key limiter consulted before doing the work).
package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/domain"
	"github.com/prreview/orchestrator/internal/preference"
	"github.com/prreview/orchestrator/internal/provider/ghclient"
	"github.com/prreview/orchestrator/internal/store"
)

const maxPublishRetries = 5

// Publisher implements workflow.FailurePublisher plus the full §4.5
// contract.
type Publisher struct {
	gh         ghclient.Client
	artifacts  store.ArtifactRepo
	limiter    *tokenBucket
	breaker    *gobreaker.CircuitBreaker
	log        *logrus.Entry
}

func New(gh ghclient.Client, artifacts store.ArtifactRepo, log *logrus.Entry) *Publisher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "github-publisher",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Publisher{
		gh:        gh,
		artifacts: artifacts,
		limiter:   newTokenBucket(nil),
		breaker:   breaker,
		log:       log,
	}
}

func contentHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func ownerRepo(repositoryID string) (string, string) {
	for i := 0; i < len(repositoryID); i++ {
		if repositoryID[i] == '/' {
			return repositoryID[:i], repositoryID[i+1:]
		}
	}
	return repositoryID, ""
}

// publishWithIdempotency finds or creates the Artifact keyed by
// (workflowId, kind, contentHash) and skips re-publishing if it already
// carries an externalId, per §4.5's idempotency contract.
func (p *Publisher) publishWithIdempotency(ctx context.Context, wf *domain.Workflow, kind domain.ArtifactKind, hash string, payload any, do func() (string, error)) (string, error) {
	existing, err := p.artifacts.FindByKey(ctx, wf.ID, kind, hash)
	if err != nil {
		return "", apperr.New(apperr.DatabaseError, "publisher.publishWithIdempotency", err)
	}
	if existing != nil && existing.ExternalID != "" {
		return existing.ExternalID, nil
	}

	artifact := existing
	if artifact == nil {
		artifact = &domain.Artifact{
			ID:          wf.ID + ":" + string(kind) + ":" + hash,
			WorkflowID:  wf.ID,
			Kind:        kind,
			ContentHash: hash,
			Payload:     payload,
			Pending:     true,
		}
	}

	externalID, err := p.callWithRetry(ctx, wf.RepositoryID, do)
	if err != nil {
		artifact.Pending = true
		_ = p.artifacts.Save(ctx, artifact)
		return "", err
	}

	now := time.Now()
	artifact.ExternalID = externalID
	artifact.Pending = false
	artifact.PublishedAt = &now
	if saveErr := p.artifacts.Save(ctx, artifact); saveErr != nil {
		p.log.WithError(saveErr).Error("failed to checkpoint published artifact")
	}
	return externalID, nil
}

// callWithRetry applies the token bucket (keyed by the workflow's
// repository id; there is no installation id on a workflow), the circuit
// breaker, and a jittered exponential retry (up to 5 retries after the
// first attempt, on any retryable apperr kind, 5xx included), per §4.5.
func (p *Publisher) callWithRetry(ctx context.Context, repositoryID string, do func() (string, error)) (string, error) {
	if !p.limiter.Allow(repositoryID) {
		return "", apperr.New(apperr.RateLimited, "publisher.callWithRetry", errRateLimited)
	}

	var result string
	operation := func() error {
		v, err := p.breaker.Execute(func() (any, error) {
			return do()
		})
		if err != nil {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return backoff.Permanent(apperr.New(apperr.ProviderError, "publisher", err))
			}
			if !apperr.KindOf(err).Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		result, _ = v.(string)
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxPublishRetries)
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}
	return result, nil
}

// PublishCheckRun implements §4.5 publishCheckRun.
func (p *Publisher) PublishCheckRun(ctx context.Context, wf *domain.Workflow, status, conclusion, summary string) (string, error) {
	owner, repo := ownerRepo(wf.RepositoryID)
	hash := contentHash(status, conclusion, summary)
	return p.publishWithIdempotency(ctx, wf, domain.ArtifactCheckRun, hash, summary, func() (string, error) {
		return p.gh.CreateCheckRun(ctx, owner, repo, wf.HeadSHA, "pr-review", status, conclusion, summary)
	})
}

// PublishReviewBatch implements §4.5 publishReviewBatch.
func (p *Publisher) PublishReviewBatch(ctx context.Context, wf *domain.Workflow, findings []preference.Finding) (string, error) {
	owner, repo := ownerRepo(wf.RepositoryID)

	var hashParts []string
	ghFindings := make([]ghclient.Finding, 0, len(findings))
	for _, f := range findings {
		hashParts = append(hashParts, f.File, fmt.Sprint(f.Line), f.Severity, f.Category, f.Message)
		ghFindings = append(ghFindings, ghclient.Finding{
			File: f.File, Line: f.Line, EndLine: f.EndLine,
			Severity: f.Severity, Category: f.Category, Message: f.Message, QuickFix: f.QuickFix,
		})
	}
	hash := contentHash(hashParts...)

	return p.publishWithIdempotency(ctx, wf, domain.ArtifactReviewComment, hash, findings, func() (string, error) {
		return p.gh.CreateReviewBatch(ctx, owner, repo, wf.PRNumber, ghFindings)
	})
}

// PublishSummaryComment implements §4.5 publishSummaryComment.
func (p *Publisher) PublishSummaryComment(ctx context.Context, wf *domain.Workflow, markdown string) (string, error) {
	owner, repo := ownerRepo(wf.RepositoryID)
	hash := contentHash(markdown)
	return p.publishWithIdempotency(ctx, wf, domain.ArtifactSummaryComment, hash, markdown, func() (string, error) {
		return p.gh.CreateSummaryComment(ctx, owner, repo, wf.PRNumber, markdown)
	})
}

// RequestReviewers implements §4.5 requestReviewers.
func (p *Publisher) RequestReviewers(ctx context.Context, wf *domain.Workflow, logins []string) error {
	owner, repo := ownerRepo(wf.RepositoryID)
	_, err := p.callWithRetry(ctx, wf.RepositoryID, func() (string, error) {
		return "", p.gh.RequestReviewers(ctx, owner, repo, wf.PRNumber, logins)
	})
	return err
}

// PublishFailureCheckRun implements workflow.FailurePublisher: the §7
// invariant that a failure check-run is always published when a workflow
// terminates FAILED.
func (p *Publisher) PublishFailureCheckRun(ctx context.Context, wf *domain.Workflow, reason, requestID string) error {
	summary := "Automated review failed: " + reason + " (request " + requestID + ")"
	_, err := p.PublishCheckRun(ctx, wf, "completed", "failure", summary)
	return err
}

type publisherError string

func (e publisherError) Error() string { return string(e) }

const errRateLimited = publisherError("installation rate limit exhausted")
