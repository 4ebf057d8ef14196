package redisstore

import (
	"context"
	"encoding/json"

	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/domain"
)

func decisionListKey(repositoryID string) string { return "decision:list:" + repositoryID }

// DecisionStore is the Redis-backed DecisionRepo: an append-only list per
// repository, mirroring memstore.DecisionStore's byRepo slice.
type DecisionStore struct {
	c *Client
}

func NewDecisionStore(c *Client) *DecisionStore { return &DecisionStore{c: c} }

func (s *DecisionStore) Save(ctx context.Context, decision *domain.ReviewerDecision) error {
	if err := s.c.rpush(ctx, decisionListKey(decision.RepositoryID), decision); err != nil {
		return apperr.New(apperr.DatabaseError, "redisstore.Decision.Save", err)
	}
	return nil
}

func (s *DecisionStore) ListForRepository(ctx context.Context, repositoryID string, limit int) ([]*domain.ReviewerDecision, error) {
	var out []*domain.ReviewerDecision
	err := s.c.lrangeAll(ctx, decisionListKey(repositoryID), func(raw []byte) error {
		var d domain.ReviewerDecision
		if err := json.Unmarshal(raw, &d); err != nil {
			return err
		}
		out = append(out, &d)
		return nil
	})
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "redisstore.Decision.ListForRepository", err)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
