package redisstore

import (
	"context"

	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/domain"
)

func artifactKey(id string) string { return "artifact:" + id }

func artifactIdemKey(workflowID string, kind domain.ArtifactKind, contentHash string) string {
	return "artifact:key:" + workflowID + "|" + string(kind) + "|" + contentHash
}

func artifactListKey(workflowID string) string { return "artifact:list:" + workflowID }

// ArtifactStore is the Redis-backed ArtifactRepo.
type ArtifactStore struct {
	c *Client
}

func NewArtifactStore(c *Client) *ArtifactStore { return &ArtifactStore{c: c} }

func (s *ArtifactStore) Get(ctx context.Context, id string) (*domain.Artifact, error) {
	var a domain.Artifact
	ok, err := s.c.get(ctx, artifactKey(id), &a)
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "redisstore.Artifact.Get", err)
	}
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *ArtifactStore) FindByKey(ctx context.Context, workflowID string, kind domain.ArtifactKind, contentHash string) (*domain.Artifact, error) {
	id, ok, err := s.c.getString(ctx, artifactIdemKey(workflowID, kind, contentHash))
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "redisstore.Artifact.FindByKey", err)
	}
	if !ok {
		return nil, nil
	}
	return s.Get(ctx, id)
}

func (s *ArtifactStore) Save(ctx context.Context, artifact *domain.Artifact) error {
	if artifact.ID == "" {
		return apperr.New(apperr.Validation, "redisstore.Artifact.Save", errMissingID("artifact"))
	}
	if err := s.c.set(ctx, artifactKey(artifact.ID), artifact, 0); err != nil {
		return apperr.New(apperr.DatabaseError, "redisstore.Artifact.Save", err)
	}
	if err := s.c.set(ctx, artifactIdemKey(artifact.WorkflowID, artifact.Kind, artifact.ContentHash), artifact.ID, 0); err != nil {
		return apperr.New(apperr.DatabaseError, "redisstore.Artifact.Save", err)
	}
	if err := s.c.sadd(ctx, artifactListKey(artifact.WorkflowID), artifact.ID); err != nil {
		return apperr.New(apperr.DatabaseError, "redisstore.Artifact.Save", err)
	}
	return nil
}

func (s *ArtifactStore) ListForWorkflow(ctx context.Context, workflowID string) ([]*domain.Artifact, error) {
	ids, err := s.c.smembers(ctx, artifactListKey(workflowID))
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "redisstore.Artifact.ListForWorkflow", err)
	}
	out := make([]*domain.Artifact, 0, len(ids))
	for _, id := range ids {
		a, err := s.Get(ctx, id)
		if err != nil || a == nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
