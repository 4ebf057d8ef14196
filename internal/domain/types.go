// Package domain holds the data model shared by every component: Workflow,
// TriggerEvent, AgentRun, Artifact, ReviewerDecision, RepoPreferenceModel,
// and the ephemeral Presence/ReviewSession records. Field names and
// invariants follow spec.md §3 exactly; shapes are generalized from the
// teacher's store/kvstore record types (AgentRecord, ReviewLoop, HITLWorkflow).
package domain

import "time"

// WorkflowStatus is one state of the per-PR workflow state machine (§4.2).
type WorkflowStatus string

const (
	WorkflowPending         WorkflowStatus = "PENDING"
	WorkflowRunning         WorkflowStatus = "RUNNING"
	WorkflowAwaitingReview  WorkflowStatus = "AWAITING_REVIEW"
	WorkflowCompleted       WorkflowStatus = "COMPLETED"
	WorkflowFailed          WorkflowStatus = "FAILED"
	WorkflowCancelled       WorkflowStatus = "CANCELLED"
)

// IsTerminal reports whether the workflow has reached a final state.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the workflow still counts against the
// one-active-per-(repo,pr,sha) invariant.
func (s WorkflowStatus) IsActive() bool {
	return s == WorkflowPending || s == WorkflowRunning
}

// Workflow is one per PR head-sha transition.
type Workflow struct {
	ID             string
	RepositoryID   string
	PRNumber       int
	HeadSHA        string
	BaseSHA        string
	AuthorLogin    string
	Status         WorkflowStatus
	Attempt        int
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	TriggerEventID string
}

// TriggerAction is one of the accepted inbound webhook actions.
type TriggerAction string

const (
	ActionOpened         TriggerAction = "opened"
	ActionSynchronize    TriggerAction = "synchronize"
	ActionReopened       TriggerAction = "reopened"
	ActionReadyForReview TriggerAction = "ready_for_review"
)

// TriggerEvent is a deduplicated inbound notification (§3 TriggerEvent).
type TriggerEvent struct {
	DeliveryID string
	Action     TriggerAction
	RepositoryID string
	PRNumber   int
	HeadSha    string
	ReceivedAt time.Time
}

// AgentRunStatus is the lifecycle of a single (workflow, agent) execution.
type AgentRunStatus string

const (
	AgentRunPending   AgentRunStatus = "PENDING"
	AgentRunRunning   AgentRunStatus = "RUNNING"
	AgentRunSucceeded AgentRunStatus = "SUCCEEDED"
	AgentRunFailed    AgentRunStatus = "FAILED"
	AgentRunSkipped   AgentRunStatus = "SKIPPED"
	AgentRunTimeout   AgentRunStatus = "TIMEOUT"
)

// Terminal reports whether a downstream agent may treat this run as resolved
// (§4.3: a dependent starts once every predecessor is SUCCEEDED or SKIPPED).
func (s AgentRunStatus) Terminal() bool {
	switch s {
	case AgentRunSucceeded, AgentRunFailed, AgentRunSkipped, AgentRunTimeout:
		return true
	default:
		return false
	}
}

// Satisfied reports whether a dependent may proceed past this predecessor.
func (s AgentRunStatus) Satisfied() bool {
	return s == AgentRunSucceeded || s == AgentRunSkipped
}

// AgentRun is one per (workflow, agent-name).
type AgentRun struct {
	ID         string
	WorkflowID string
	AgentName  string
	Status     AgentRunStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	LatencyMs  *int64
	Error      string
	Output     any
}

// ArtifactKind names the published output kinds (§3 Artifact).
type ArtifactKind string

const (
	ArtifactReviewComment  ArtifactKind = "ReviewComment"
	ArtifactSummaryComment ArtifactKind = "SummaryComment"
	ArtifactCheckRun       ArtifactKind = "CheckRun"
	ArtifactGeneratedTest  ArtifactKind = "GeneratedTest"
	ArtifactDocSuggestion  ArtifactKind = "DocSuggestion"
	ArtifactIntentAnalysis ArtifactKind = "IntentAnalysis"
	ArtifactPrediction     ArtifactKind = "Prediction"
)

// Artifact is a named output bound to a workflow.
type Artifact struct {
	ID          string
	WorkflowID  string
	Kind        ArtifactKind
	ContentHash string
	Payload     any
	PublishedAt *time.Time
	ExternalID  string
	Pending     bool
}

// DecisionAction is a reviewer's reaction to a published finding.
type DecisionAction string

const (
	DecisionAccepted     DecisionAction = "ACCEPTED"
	DecisionDismissed    DecisionAction = "DISMISSED"
	DecisionModified     DecisionAction = "MODIFIED"
	DecisionResolvedOther DecisionAction = "RESOLVED_OTHER"
)

// DecisionContext carries the finding metadata a decision applies to.
type DecisionContext struct {
	File     string
	Line     int
	Category string
	Severity string
	Snippet  string
	Language string
}

// ReviewerDecision is a captured reviewer reaction to a finding.
type ReviewerDecision struct {
	ID                string
	RepositoryID      string
	WorkflowID        string
	CommentArtifactID string
	ReviewerID        string
	Action            DecisionAction
	Context           DecisionContext
	Feedback          string
	Timestamp         time.Time
}

// RuleAction is a custom-rule directive (§4.6).
type RuleAction string

const (
	RuleAlwaysFlag       RuleAction = "ALWAYS_FLAG"
	RuleNeverFlag        RuleAction = "NEVER_FLAG"
	RuleFlagWithSeverity RuleAction = "FLAG_WITH_SEVERITY"
)

// TeamRule is an admin-authored override of the learned weights.
type TeamRule struct {
	Pattern    string
	Action     RuleAction
	Severity   string
	Confidence float64
	Examples   []string
}

// Verbosity controls how much detail synthesis/review agents emit.
type Verbosity string

const (
	VerbosityMinimal  Verbosity = "MINIMAL"
	VerbosityBalanced Verbosity = "BALANCED"
	VerbosityDetailed Verbosity = "DETAILED"
)

// CategoryKey identifies a (category, severity) pair for acceptance-rate
// tracking, e.g. "STYLE|LOW".
type CategoryKey string

// NewCategoryKey builds a CategoryKey from a category and severity.
func NewCategoryKey(category, severity string) CategoryKey {
	return CategoryKey(category + "|" + severity)
}

// RepoPreferenceModel is the learned per-repository weighting.
type RepoPreferenceModel struct {
	RepositoryID     string
	Version          int
	DataPoints       int
	CategoryWeights  map[string]float64
	AcceptanceRates  map[CategoryKey]float64
	IgnoredPatterns  []string
	CustomRules      []TeamRule
	Verbosity        Verbosity
}

// Clone deep-copies the model so readers never observe a partially-updated
// map while an EMA update is in flight (§5: copy-on-write under a per-repo
// mutex).
func (m *RepoPreferenceModel) Clone() *RepoPreferenceModel {
	clone := &RepoPreferenceModel{
		RepositoryID: m.RepositoryID,
		Version:      m.Version,
		DataPoints:   m.DataPoints,
		Verbosity:    m.Verbosity,
	}
	clone.CategoryWeights = make(map[string]float64, len(m.CategoryWeights))
	for k, v := range m.CategoryWeights {
		clone.CategoryWeights[k] = v
	}
	clone.AcceptanceRates = make(map[CategoryKey]float64, len(m.AcceptanceRates))
	for k, v := range m.AcceptanceRates {
		clone.AcceptanceRates[k] = v
	}
	clone.IgnoredPatterns = append([]string(nil), m.IgnoredPatterns...)
	clone.CustomRules = append([]TeamRule(nil), m.CustomRules...)
	return clone
}

// NewRepoPreferenceModel returns a fresh model with empty maps, ready for EMA
// updates, and BALANCED verbosity as the neutral default.
func NewRepoPreferenceModel(repositoryID string) *RepoPreferenceModel {
	return &RepoPreferenceModel{
		RepositoryID:    repositoryID,
		Version:         0,
		CategoryWeights: map[string]float64{},
		AcceptanceRates: map[CategoryKey]float64{},
		Verbosity:       VerbosityBalanced,
	}
}

// PresenceStatus is a user's activity state on a PR (§3 Presence).
type PresenceStatus string

const (
	PresenceViewing    PresenceStatus = "VIEWING"
	PresenceReviewing  PresenceStatus = "REVIEWING"
	PresenceCommenting PresenceStatus = "COMMENTING"
	PresenceIdle       PresenceStatus = "IDLE"
)

// Presence is an ephemeral per-user activity record scoped to a PR.
type Presence struct {
	RepositoryID string
	PRNumber     int
	UserID       string
	Status       PresenceStatus
	CurrentFile  string
	CurrentLine  int
	LastActivity time.Time
}

// AnalyticsEventKind names the kinds of append-only events the
// predictive-health model persists (§4.8: "persist the weights as an
// event").
type AnalyticsEventKind string

const (
	AnalyticsEventModelTrained AnalyticsEventKind = "MODEL_TRAINED"
	AnalyticsEventPrediction   AnalyticsEventKind = "PREDICTION"
)

// AnalyticsEvent is an append-only record in the analytics_events table
// (§6 "Persisted state"): trained regression weights, or a point-in-time
// prediction, each scoped to a repository.
type AnalyticsEvent struct {
	ID           string
	RepositoryID string
	Kind         AnalyticsEventKind
	Payload      any
	CreatedAt    time.Time
}

// ReviewSession is a coordinated multi-user review state.
type ReviewSession struct {
	ID             string
	RepositoryID   string
	PRNumber       int
	HostUserID     string
	Participants   []string
	SyncNavigation bool
	CurrentFile    string
	CurrentLine    int
	CreatedAt      time.Time
	LastActivity   time.Time
}
