package redisstore

import (
	"context"

	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/domain"
)

func agentRunKey(workflowID, agentName string) string {
	return "agentrun:" + workflowID + "/" + agentName
}

func agentRunListKey(workflowID string) string { return "agentrun:list:" + workflowID }

// AgentRunStore is the Redis-backed AgentRunRepo.
type AgentRunStore struct {
	c *Client
}

func NewAgentRunStore(c *Client) *AgentRunStore { return &AgentRunStore{c: c} }

func (s *AgentRunStore) Get(ctx context.Context, workflowID, agentName string) (*domain.AgentRun, error) {
	var run domain.AgentRun
	ok, err := s.c.get(ctx, agentRunKey(workflowID, agentName), &run)
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "redisstore.AgentRun.Get", err)
	}
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (s *AgentRunStore) Save(ctx context.Context, run *domain.AgentRun) error {
	if err := s.c.set(ctx, agentRunKey(run.WorkflowID, run.AgentName), run, 0); err != nil {
		return apperr.New(apperr.DatabaseError, "redisstore.AgentRun.Save", err)
	}
	if err := s.c.sadd(ctx, agentRunListKey(run.WorkflowID), run.AgentName); err != nil {
		return apperr.New(apperr.DatabaseError, "redisstore.AgentRun.Save", err)
	}
	return nil
}

func (s *AgentRunStore) ListForWorkflow(ctx context.Context, workflowID string) ([]*domain.AgentRun, error) {
	names, err := s.c.smembers(ctx, agentRunListKey(workflowID))
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "redisstore.AgentRun.ListForWorkflow", err)
	}
	out := make([]*domain.AgentRun, 0, len(names))
	for _, name := range names {
		run, err := s.Get(ctx, workflowID, name)
		if err != nil || run == nil {
			continue
		}
		out = append(out, run)
	}
	sortAgentRunsByName(out)
	return out, nil
}
