package redisstore

import (
	"context"
	"encoding/json"

	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/domain"
)

func preferenceListKey(repositoryID string) string { return "preference:versions:" + repositoryID }

// PreferenceStore is the Redis-backed PreferenceRepo: append-only versions
// per repository (DESIGN.md's resolution of the preference-storage Open
// Question), Latest picks the highest Version rather than the list tail so
// an out-of-order append never regresses a reader.
type PreferenceStore struct {
	c *Client
}

func NewPreferenceStore(c *Client) *PreferenceStore { return &PreferenceStore{c: c} }

func (s *PreferenceStore) Append(ctx context.Context, model *domain.RepoPreferenceModel) error {
	if err := s.c.rpush(ctx, preferenceListKey(model.RepositoryID), model); err != nil {
		return apperr.New(apperr.DatabaseError, "redisstore.Preference.Append", err)
	}
	return nil
}

func (s *PreferenceStore) Latest(ctx context.Context, repositoryID string) (*domain.RepoPreferenceModel, error) {
	var latest *domain.RepoPreferenceModel
	err := s.c.lrangeAll(ctx, preferenceListKey(repositoryID), func(raw []byte) error {
		var m domain.RepoPreferenceModel
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		if latest == nil || m.Version > latest.Version {
			latest = &m
		}
		return nil
	})
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "redisstore.Preference.Latest", err)
	}
	if latest == nil {
		return nil, nil
	}
	return latest.Clone(), nil
}
