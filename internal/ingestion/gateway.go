// Package ingestion implements the Ingestion Gateway (§4.1): HMAC signature
// verification, idempotent delivery filtering, repository-config gating,
// and translation of a provider webhook into a canonical domain.TriggerEvent.
//
// Grounded in the teacher's server/webhook.go: raw-body HMAC verification
// before JSON decode, a statusRecorder-style observed outcome, and
// per-event-type dispatch. Generalized from GitHub-only header names to the
// provider-neutral contract in spec.md §6, with GitHub's own header names
// accepted as an alias so a real GitHub delivery still verifies untouched.
package ingestion

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prreview/orchestrator/internal/domain"
)

const (
	// maxWebhookBodySize bounds the body we read, matching the teacher's DoS
	// guard in handleGitHubWebhook.
	maxWebhookBodySize = 1 << 20 // 1 MiB

	headerSignature256 = "X-Signature-256"
	headerDeliveryID    = "X-Delivery-Id"
	headerEventName     = "X-Event-Name"

	// GitHub's own header names, accepted as an alias of the above.
	headerGitHubSignature = "X-Hub-Signature-256"
	headerGitHubDelivery  = "X-GitHub-Delivery"
	headerGitHubEvent     = "X-GitHub-Event"
)

// AckStatus is the body of the gateway's HTTP response (§6).
type AckStatus string

const (
	AckAccepted  AckStatus = "accepted"
	AckSkipped   AckStatus = "skipped"
	AckDuplicate AckStatus = "duplicate"
)

// ackResponse is the JSON body returned for every 200 response.
type ackResponse struct {
	Status AckStatus `json:"status"`
}

// errResponse is the JSON body returned for non-2xx responses, matching the
// §7 user-visible failure contract.
type errResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

// RepoConfig is the per-repository processing policy resolved in step 4 of
// §4.1.
type RepoConfig struct {
	Disabled        bool
	ExcludeBranches *regexp.Regexp
	IncludePaths    []string
}

// RepoConfigResolver resolves repository processing policy by repository id.
type RepoConfigResolver interface {
	Resolve(ctx context.Context, repositoryID string) (RepoConfig, error)
}

// Enqueuer is the Workflow Engine's narrow ingestion-facing contract.
// Implemented by workflow.Engine.
type Enqueuer interface {
	Enqueue(ctx context.Context, event domain.TriggerEvent) error
}

// DeliveryTracker records and queries whether a delivery id has already been
// durably processed, independent of the in-memory LRU.
type DeliveryTracker interface {
	HasProcessed(ctx context.Context, deliveryID string) (bool, error)
	MarkProcessed(ctx context.Context, deliveryID string) error
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Gateway is the Ingestion Gateway component.
type Gateway struct {
	secret   []byte
	lru      *deliveryLRU
	delivery DeliveryTracker
	repos    RepoConfigResolver
	enqueue  Enqueuer
	now      Clock
	log      *logrus.Entry
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithClock overrides the gateway's clock, for deterministic tests.
func WithClock(now Clock) Option {
	return func(g *Gateway) { g.now = now }
}

// New constructs a Gateway. capacity/ttl follow the §4.1 minimums
// (>=10000 entries, >=1h) unless overridden for tests.
func New(secret string, delivery DeliveryTracker, repos RepoConfigResolver, enqueue Enqueuer, log *logrus.Entry, capacity int, ttl time.Duration, opts ...Option) *Gateway {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	g := &Gateway{
		secret:   []byte(secret),
		delivery: delivery,
		repos:    repos,
		enqueue:  enqueue,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.lru = newDeliveryLRU(capacity, ttl, g.now)
	return g
}

// --- provider payload shapes (GitHub-style; see SPEC_FULL.md §4.1) ---

type providerPullRequest struct {
	Number  int    `json:"number"`
	Draft   bool   `json:"draft"`
	HTMLURL string `json:"html_url"`
	Head    struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"base"`
	User struct {
		Login string `json:"login"`
	} `json:"user"`
	ChangedFiles []string `json:"changed_files,omitempty"`
}

type providerRepository struct {
	FullName string `json:"full_name"`
}

type pullRequestPayload struct {
	Action      string              `json:"action"`
	PullRequest providerPullRequest `json:"pull_request"`
	Repository  providerRepository  `json:"repository"`
}

// verifySignature validates the HMAC-SHA-256 signature in constant time,
// mirroring verifyWebhookSignature in the teacher's server/webhook.go.
func verifySignature(secret []byte, signature string, body []byte) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(signature, prefix) {
		return false
	}
	sigBytes, err := hex.DecodeString(signature[len(prefix):])
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)
	return hmac.Equal(sigBytes, expected)
}

func firstHeader(r *http.Request, names ...string) string {
	for _, n := range names {
		if v := r.Header.Get(n); v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErr(w http.ResponseWriter, status int, code, message, requestID string) {
	writeJSON(w, status, errResponse{Code: code, Message: message, RequestID: requestID})
}

// ServeHTTP implements the single receive(httpRequest) operation of §4.1.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := firstHeader(r, "X-Request-Id")
	if requestID == "" {
		requestID = firstHeader(r, headerDeliveryID, headerGitHubDelivery)
	}

	// 0. Read the body raw, byte-exact, before any parsing (required for HMAC).
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, http.StatusBadRequest, string(apperrWebhook), "failed to read request body", requestID)
		return
	}
	defer func() { _ = r.Body.Close() }()

	// 1. Signature verification. Never retried on failure.
	signature := firstHeader(r, headerSignature256, headerGitHubSignature)
	if len(g.secret) == 0 || !verifySignature(g.secret, signature, body) {
		g.log.WithField("request_id", requestID).Warn("webhook signature verification failed")
		writeErr(w, http.StatusUnauthorized, "unauthorized", "invalid signature", requestID)
		return
	}

	deliveryID := firstHeader(r, headerDeliveryID, headerGitHubDelivery)
	eventName := firstHeader(r, headerEventName, headerGitHubEvent)

	ctx := r.Context()

	// 2. Idempotent filtering: in-memory LRU first (fast path), durable
	// tracker second (covers LRU eviction / restarts).
	if deliveryID != "" {
		if g.lru.seenRecently(deliveryID) {
			writeJSON(w, http.StatusOK, ackResponse{Status: AckDuplicate})
			return
		}
		if g.delivery != nil {
			seen, err := g.delivery.HasProcessed(ctx, deliveryID)
			if err == nil && seen {
				g.lru.record(deliveryID)
				writeJSON(w, http.StatusOK, ackResponse{Status: AckDuplicate})
				return
			}
		}
	}

	if eventName != "pull_request" {
		// Only pull_request carries the actions this gateway dispatches;
		// everything else is acknowledged and dropped.
		g.markProcessed(ctx, deliveryID)
		writeJSON(w, http.StatusOK, ackResponse{Status: AckSkipped})
		return
	}

	var payload pullRequestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeErr(w, http.StatusBadRequest, string(apperrWebhook), "invalid payload", requestID)
		return
	}

	action := domain.TriggerAction(payload.Action)
	switch action {
	case domain.ActionOpened, domain.ActionSynchronize, domain.ActionReopened, domain.ActionReadyForReview:
	default:
		g.markProcessed(ctx, deliveryID)
		writeJSON(w, http.StatusOK, ackResponse{Status: AckSkipped})
		return
	}

	// 3. Drafts are discarded unless the action itself is ready_for_review.
	if payload.PullRequest.Draft && action != domain.ActionReadyForReview {
		g.markProcessed(ctx, deliveryID)
		writeJSON(w, http.StatusOK, ackResponse{Status: AckSkipped})
		return
	}

	repositoryID := payload.Repository.FullName

	// 4. Repository processing gate.
	if g.repos != nil {
		cfg, err := g.repos.Resolve(ctx, repositoryID)
		if err == nil {
			if cfg.Disabled {
				g.markProcessed(ctx, deliveryID)
				writeJSON(w, http.StatusOK, ackResponse{Status: AckSkipped})
				return
			}
			if cfg.ExcludeBranches != nil && cfg.ExcludeBranches.MatchString(payload.PullRequest.Head.Ref) {
				g.markProcessed(ctx, deliveryID)
				writeJSON(w, http.StatusOK, ackResponse{Status: AckSkipped})
				return
			}
			if len(cfg.IncludePaths) > 0 && !anyPrefixMatch(cfg.IncludePaths, payload.PullRequest.ChangedFiles) {
				g.markProcessed(ctx, deliveryID)
				writeJSON(w, http.StatusOK, ackResponse{Status: AckSkipped})
				return
			}
		}
	}

	// 5. Emit the canonical TriggerEvent.
	event := domain.TriggerEvent{
		DeliveryID:   deliveryID,
		Action:       action,
		RepositoryID: repositoryID,
		PRNumber:     payload.PullRequest.Number,
		HeadSha:      payload.PullRequest.Head.SHA,
		ReceivedAt:   g.now(),
	}

	if err := g.enqueue.Enqueue(ctx, event); err != nil {
		g.log.WithField("request_id", requestID).WithError(err).Error("failed to enqueue trigger event")
		writeErr(w, http.StatusServiceUnavailable, "enqueue_failed", "failed to enqueue workflow", requestID)
		return
	}

	g.markProcessed(ctx, deliveryID)
	writeJSON(w, http.StatusOK, ackResponse{Status: AckAccepted})
}

func (g *Gateway) markProcessed(ctx context.Context, deliveryID string) {
	if deliveryID == "" {
		return
	}
	g.lru.record(deliveryID)
	if g.delivery != nil {
		_ = g.delivery.MarkProcessed(ctx, deliveryID)
	}
}

func anyPrefixMatch(prefixes, files []string) bool {
	for _, f := range files {
		for _, p := range prefixes {
			if strings.HasPrefix(f, p) {
				return true
			}
		}
	}
	return false
}

// apperrWebhook is a small local alias so this package does not have to
// import apperr just to stamp a string code on webhook-shaped failures.
const apperrWebhook = "webhook_error"
