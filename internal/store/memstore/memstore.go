// Package memstore implements the store repositories in process memory,
// generalizing the teacher's server/store/kvstore.store (a single struct
// wrapping *pluginapi.Client, with one method set per entity) into one
// struct per entity guarded by its own mutex, so a hot path on one entity
// never blocks another. Used by every unit test and as the default backend
// when DB_URL is unset.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/prreview/orchestrator/internal/domain"
)

// WorkflowStore is the in-memory WorkflowRepo.
type WorkflowStore struct {
	mu   sync.RWMutex
	byID map[string]*domain.Workflow
	// active indexes (repositoryID, prNumber) -> workflow id, for the
	// at-most-one-active invariant (§3).
	active map[string]string
}

// NewWorkflowStore constructs an empty WorkflowStore.
func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{
		byID:   make(map[string]*domain.Workflow),
		active: make(map[string]string),
	}
}

func prKey(repositoryID string, prNumber int) string {
	return repositoryID + "#" + itoa(prNumber)
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

func (s *WorkflowStore) Get(_ context.Context, id string) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	clone := *wf
	return &clone, nil
}

func (s *WorkflowStore) Save(_ context.Context, wf *domain.Workflow) error {
	if wf.ID == "" {
		return errors.New("workflow id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *wf
	s.byID[wf.ID] = &clone

	key := prKey(wf.RepositoryID, wf.PRNumber)
	if wf.Status.IsActive() {
		s.active[key] = wf.ID
	} else if s.active[key] == wf.ID {
		delete(s.active, key)
	}
	return nil
}

func (s *WorkflowStore) ActiveFor(_ context.Context, repositoryID string, prNumber int) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[prKey(repositoryID, prNumber)]
	if !ok {
		return nil, nil
	}
	wf, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	clone := *wf
	return &clone, nil
}

func (s *WorkflowStore) ListResumable(_ context.Context, olderThan time.Duration) ([]*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-olderThan)
	var out []*domain.Workflow
	for _, wf := range s.byID {
		if wf.Status != domain.WorkflowRunning {
			continue
		}
		if wf.StartedAt != nil && wf.StartedAt.Before(cutoff) {
			clone := *wf
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *WorkflowStore) ListCompleted(_ context.Context, limit int) ([]*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Workflow
	for _, wf := range s.byID {
		if wf.Status.IsTerminal() {
			clone := *wf
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i].CompletedAt, out[j].CompletedAt
		if ci == nil || cj == nil {
			return out[i].ID < out[j].ID
		}
		return ci.Before(*cj)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AgentRunStore is the in-memory AgentRunRepo.
type AgentRunStore struct {
	mu   sync.RWMutex
	runs map[string]*domain.AgentRun // key: workflowID + "/" + agentName
}

func NewAgentRunStore() *AgentRunStore {
	return &AgentRunStore{runs: make(map[string]*domain.AgentRun)}
}

func runKey(workflowID, agentName string) string { return workflowID + "/" + agentName }

func (s *AgentRunStore) Get(_ context.Context, workflowID, agentName string) (*domain.AgentRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runKey(workflowID, agentName)]
	if !ok {
		return nil, nil
	}
	clone := *run
	return &clone, nil
}

func (s *AgentRunStore) Save(_ context.Context, run *domain.AgentRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *run
	s.runs[runKey(run.WorkflowID, run.AgentName)] = &clone
	return nil
}

func (s *AgentRunStore) ListForWorkflow(_ context.Context, workflowID string) ([]*domain.AgentRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.AgentRun
	for _, run := range s.runs {
		if run.WorkflowID == workflowID {
			clone := *run
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentName < out[j].AgentName })
	return out, nil
}

// ArtifactStore is the in-memory ArtifactRepo.
type ArtifactStore struct {
	mu       sync.RWMutex
	byID     map[string]*domain.Artifact
	byKey    map[string]string // workflowID|kind|contentHash -> artifact id
	byWFList map[string][]string
}

func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{
		byID:     make(map[string]*domain.Artifact),
		byKey:    make(map[string]string),
		byWFList: make(map[string][]string),
	}
}

func artifactKey(workflowID string, kind domain.ArtifactKind, contentHash string) string {
	return workflowID + "|" + string(kind) + "|" + contentHash
}

func (s *ArtifactStore) Get(_ context.Context, id string) (*domain.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	clone := *a
	return &clone, nil
}

func (s *ArtifactStore) FindByKey(_ context.Context, workflowID string, kind domain.ArtifactKind, contentHash string) (*domain.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[artifactKey(workflowID, kind, contentHash)]
	if !ok {
		return nil, nil
	}
	a := s.byID[id]
	clone := *a
	return &clone, nil
}

func (s *ArtifactStore) Save(_ context.Context, artifact *domain.Artifact) error {
	if artifact.ID == "" {
		return errors.New("artifact id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[artifact.ID]; !exists {
		s.byWFList[artifact.WorkflowID] = append(s.byWFList[artifact.WorkflowID], artifact.ID)
	}
	clone := *artifact
	s.byID[artifact.ID] = &clone
	s.byKey[artifactKey(artifact.WorkflowID, artifact.Kind, artifact.ContentHash)] = artifact.ID
	return nil
}

func (s *ArtifactStore) ListForWorkflow(_ context.Context, workflowID string) ([]*domain.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byWFList[workflowID]
	out := make([]*domain.Artifact, 0, len(ids))
	for _, id := range ids {
		if a, ok := s.byID[id]; ok {
			clone := *a
			out = append(out, &clone)
		}
	}
	return out, nil
}

// DecisionStore is the in-memory DecisionRepo.
type DecisionStore struct {
	mu        sync.RWMutex
	byRepo    map[string][]*domain.ReviewerDecision
}

func NewDecisionStore() *DecisionStore {
	return &DecisionStore{byRepo: make(map[string][]*domain.ReviewerDecision)}
}

func (s *DecisionStore) Save(_ context.Context, decision *domain.ReviewerDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *decision
	s.byRepo[decision.RepositoryID] = append(s.byRepo[decision.RepositoryID], &clone)
	return nil
}

func (s *DecisionStore) ListForRepository(_ context.Context, repositoryID string, limit int) ([]*domain.ReviewerDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.byRepo[repositoryID]
	if limit <= 0 || limit >= len(all) {
		out := make([]*domain.ReviewerDecision, len(all))
		copy(out, all)
		return out, nil
	}
	start := len(all) - limit
	out := make([]*domain.ReviewerDecision, limit)
	copy(out, all[start:])
	return out, nil
}

// PreferenceStore is the in-memory PreferenceRepo. Writes are append-only
// (see DESIGN.md's resolution of the Open Question on analyticsEvent-style
// writes); Latest picks the highest Version.
type PreferenceStore struct {
	mu       sync.RWMutex
	versions map[string][]*domain.RepoPreferenceModel
}

func NewPreferenceStore() *PreferenceStore {
	return &PreferenceStore{versions: make(map[string][]*domain.RepoPreferenceModel)}
}

func (s *PreferenceStore) Latest(_ context.Context, repositoryID string) (*domain.RepoPreferenceModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.versions[repositoryID]
	if len(history) == 0 {
		return nil, nil
	}
	latest := history[0]
	for _, m := range history[1:] {
		if m.Version > latest.Version {
			latest = m
		}
	}
	return latest.Clone(), nil
}

func (s *PreferenceStore) Append(_ context.Context, model *domain.RepoPreferenceModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[model.RepositoryID] = append(s.versions[model.RepositoryID], model.Clone())
	return nil
}

// AnalyticsEventStore is the in-memory AnalyticsEventRepo: an append-only
// log per repository, mirroring PreferenceStore's versions-slice shape.
type AnalyticsEventStore struct {
	mu     sync.RWMutex
	byRepo map[string][]*domain.AnalyticsEvent
}

func NewAnalyticsEventStore() *AnalyticsEventStore {
	return &AnalyticsEventStore{byRepo: make(map[string][]*domain.AnalyticsEvent)}
}

func (s *AnalyticsEventStore) Append(_ context.Context, event *domain.AnalyticsEvent) error {
	if event.RepositoryID == "" {
		return errors.New("analytics event repositoryId is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *event
	s.byRepo[event.RepositoryID] = append(s.byRepo[event.RepositoryID], &clone)
	return nil
}

func (s *AnalyticsEventStore) LatestByKind(_ context.Context, repositoryID string, kind domain.AnalyticsEventKind) (*domain.AnalyticsEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.byRepo[repositoryID]
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Kind == kind {
			clone := *history[i]
			return &clone, nil
		}
	}
	return nil, nil
}

// DeliveryStore is the in-memory DeliveryRepo, a durable backstop behind the
// gateway's bounded LRU (§4.1).
type DeliveryStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDeliveryStore() *DeliveryStore {
	return &DeliveryStore{seen: make(map[string]struct{})}
}

func (s *DeliveryStore) HasProcessed(_ context.Context, deliveryID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[deliveryID]
	return ok, nil
}

func (s *DeliveryStore) MarkProcessed(_ context.Context, deliveryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[deliveryID] = struct{}{}
	return nil
}
