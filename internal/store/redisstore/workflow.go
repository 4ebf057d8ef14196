package redisstore

import (
	"context"
	"time"

	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/domain"
)

const (
	workflowIDsKey = "workflow:ids"
)

func workflowKey(id string) string { return "workflow:" + id }

func activeKey(repositoryID string, prNumber int) string {
	return "workflow:active:" + repositoryID + "#" + itoa(prNumber)
}

// WorkflowStore is the Redis-backed WorkflowRepo.
type WorkflowStore struct {
	c *Client
}

func NewWorkflowStore(c *Client) *WorkflowStore { return &WorkflowStore{c: c} }

func (s *WorkflowStore) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	var wf domain.Workflow
	ok, err := s.c.get(ctx, workflowKey(id), &wf)
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "redisstore.Workflow.Get", err)
	}
	if !ok {
		return nil, nil
	}
	return &wf, nil
}

func (s *WorkflowStore) Save(ctx context.Context, wf *domain.Workflow) error {
	if wf.ID == "" {
		return apperr.New(apperr.Validation, "redisstore.Workflow.Save", errMissingID("workflow"))
	}
	if err := s.c.set(ctx, workflowKey(wf.ID), wf, 0); err != nil {
		return apperr.New(apperr.DatabaseError, "redisstore.Workflow.Save", err)
	}
	if err := s.c.sadd(ctx, workflowIDsKey, wf.ID); err != nil {
		return apperr.New(apperr.DatabaseError, "redisstore.Workflow.Save", err)
	}

	key := activeKey(wf.RepositoryID, wf.PRNumber)
	if wf.Status.IsActive() {
		if err := s.c.set(ctx, key, wf.ID, 0); err != nil {
			return apperr.New(apperr.DatabaseError, "redisstore.Workflow.Save", err)
		}
		return nil
	}
	current, ok, err := s.c.getString(ctx, key)
	if err == nil && ok && current == wf.ID {
		_ = s.c.del(ctx, key)
	}
	return nil
}

func (s *WorkflowStore) ActiveFor(ctx context.Context, repositoryID string, prNumber int) (*domain.Workflow, error) {
	id, ok, err := s.c.getString(ctx, activeKey(repositoryID, prNumber))
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "redisstore.Workflow.ActiveFor", err)
	}
	if !ok {
		return nil, nil
	}
	return s.Get(ctx, id)
}

func (s *WorkflowStore) all(ctx context.Context) ([]*domain.Workflow, error) {
	ids, err := s.c.smembers(ctx, workflowIDsKey)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Workflow, 0, len(ids))
	for _, id := range ids {
		wf, err := s.Get(ctx, id)
		if err != nil || wf == nil {
			continue
		}
		out = append(out, wf)
	}
	return out, nil
}

func (s *WorkflowStore) ListResumable(ctx context.Context, olderThan time.Duration) ([]*domain.Workflow, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "redisstore.Workflow.ListResumable", err)
	}
	cutoff := time.Now().Add(-olderThan)
	var out []*domain.Workflow
	for _, wf := range all {
		if wf.Status != domain.WorkflowRunning {
			continue
		}
		if wf.StartedAt != nil && wf.StartedAt.Before(cutoff) {
			out = append(out, wf)
		}
	}
	sortWorkflowsByID(out)
	return out, nil
}

func (s *WorkflowStore) ListCompleted(ctx context.Context, limit int) ([]*domain.Workflow, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "redisstore.Workflow.ListCompleted", err)
	}
	var out []*domain.Workflow
	for _, wf := range all {
		if wf.Status.IsTerminal() {
			out = append(out, wf)
		}
	}
	sortWorkflowsByCompletedAt(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
