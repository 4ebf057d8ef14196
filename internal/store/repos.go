// Package store declares the per-entity repository interfaces design note
// §9 calls for ("replace any handles in the persistence layer with
// per-entity repositories"), generalized from the teacher's
// server/store/kvstore.KVStore interface (one store, many key-prefixed
// entities) into one interface per entity plus a Deliveries dedup index.
//
// Object-relational persistence is out of scope (spec.md §1 Non-goals), so
// these interfaces are deliberately narrow: callers never see a query
// builder or an ORM handle, only typed get/save/list methods.
package store

import (
	"context"
	"time"

	"github.com/prreview/orchestrator/internal/domain"
)

// WorkflowRepo persists Workflow records.
type WorkflowRepo interface {
	Get(ctx context.Context, id string) (*domain.Workflow, error)
	Save(ctx context.Context, wf *domain.Workflow) error
	// ActiveFor returns the workflow with status in {PENDING, RUNNING} for
	// (repositoryID, prNumber), or nil if none exists. Enforces the §3
	// invariant of at most one active workflow per PR.
	ActiveFor(ctx context.Context, repositoryID string, prNumber int) (*domain.Workflow, error)
	// ListResumable returns RUNNING workflows whose StartedAt is older than
	// olderThan, for crash-safe resumption (§4.2).
	ListResumable(ctx context.Context, olderThan time.Duration) ([]*domain.Workflow, error)
	ListCompleted(ctx context.Context, limit int) ([]*domain.Workflow, error)
}

// AgentRunRepo persists AgentRun records, one per (workflow, agent name).
type AgentRunRepo interface {
	Get(ctx context.Context, workflowID, agentName string) (*domain.AgentRun, error)
	Save(ctx context.Context, run *domain.AgentRun) error
	ListForWorkflow(ctx context.Context, workflowID string) ([]*domain.AgentRun, error)
}

// ArtifactRepo persists Artifact records, content-addressed by
// (workflowID, kind, contentHash) for idempotent re-publish (§6).
type ArtifactRepo interface {
	Get(ctx context.Context, id string) (*domain.Artifact, error)
	// FindByKey looks up an existing artifact for the deterministic
	// idempotency key so a repeated publish updates rather than duplicates.
	FindByKey(ctx context.Context, workflowID string, kind domain.ArtifactKind, contentHash string) (*domain.Artifact, error)
	Save(ctx context.Context, artifact *domain.Artifact) error
	ListForWorkflow(ctx context.Context, workflowID string) ([]*domain.Artifact, error)
}

// DecisionRepo persists ReviewerDecision records.
type DecisionRepo interface {
	Save(ctx context.Context, decision *domain.ReviewerDecision) error
	ListForRepository(ctx context.Context, repositoryID string, limit int) ([]*domain.ReviewerDecision, error)
}

// PreferenceRepo persists RepoPreferenceModel snapshots. Per the Open
// Questions (spec.md §9 / DESIGN.md), writes are append-only analytics
// events; Latest returns the snapshot with the highest Version.
type PreferenceRepo interface {
	Latest(ctx context.Context, repositoryID string) (*domain.RepoPreferenceModel, error)
	Append(ctx context.Context, model *domain.RepoPreferenceModel) error
}

// AnalyticsEventRepo persists the append-only analytics_events log: trained
// predictive-health weights and point-in-time predictions (§4.8, §6).
type AnalyticsEventRepo interface {
	Append(ctx context.Context, event *domain.AnalyticsEvent) error
	// LatestByKind returns the most recent event of kind for repositoryID,
	// or nil if none exists yet.
	LatestByKind(ctx context.Context, repositoryID string, kind domain.AnalyticsEventKind) (*domain.AnalyticsEvent, error)
}

// DeliveryRepo tracks processed webhook delivery ids for the at-least-once
// to at-most-once bridge (§4.1), independent of the gateway's in-memory LRU
// so a restart does not immediately re-admit a delivery still in flight
// downstream.
type DeliveryRepo interface {
	HasProcessed(ctx context.Context, deliveryID string) (bool, error)
	MarkProcessed(ctx context.Context, deliveryID string) error
}
