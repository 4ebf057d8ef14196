package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/domain"
)

func analyticsListKey(repositoryID string) string { return "analytics:events:" + repositoryID }

// AnalyticsEventStore is the Redis-backed AnalyticsEventRepo. Unlike
// memstore.AnalyticsEventStore, the entries here go through a JSON
// marshal/unmarshal round trip, so AnalyticsEvent.Payload comes back as
// json.RawMessage rather than a live Go value — predictive.decodeModel is
// written to accept that shape (see DESIGN.md).
type AnalyticsEventStore struct {
	c *Client
}

func NewAnalyticsEventStore(c *Client) *AnalyticsEventStore { return &AnalyticsEventStore{c: c} }

// wireAnalyticsEvent mirrors domain.AnalyticsEvent but types Payload as
// json.RawMessage, deferring its decode to the caller instead of losing
// type information to map[string]interface{}.
type wireAnalyticsEvent struct {
	ID           string                    `json:"ID"`
	RepositoryID string                    `json:"RepositoryID"`
	Kind         domain.AnalyticsEventKind `json:"Kind"`
	Payload      json.RawMessage          `json:"Payload"`
	CreatedAt    json.RawMessage          `json:"CreatedAt"`
}

func (s *AnalyticsEventStore) Append(ctx context.Context, event *domain.AnalyticsEvent) error {
	if event.RepositoryID == "" {
		return apperr.New(apperr.Validation, "redisstore.AnalyticsEvent.Append", errMissingID("analytics event"))
	}
	if err := s.c.rpush(ctx, analyticsListKey(event.RepositoryID), event); err != nil {
		return apperr.New(apperr.DatabaseError, "redisstore.AnalyticsEvent.Append", err)
	}
	return nil
}

func (s *AnalyticsEventStore) LatestByKind(ctx context.Context, repositoryID string, kind domain.AnalyticsEventKind) (*domain.AnalyticsEvent, error) {
	var latest *wireAnalyticsEvent
	err := s.c.lrangeAll(ctx, analyticsListKey(repositoryID), func(raw []byte) error {
		var e wireAnalyticsEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		if e.Kind == kind {
			latest = &e
		}
		return nil
	})
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "redisstore.AnalyticsEvent.LatestByKind", err)
	}
	if latest == nil {
		return nil, nil
	}

	var createdAt time.Time
	_ = json.Unmarshal(latest.CreatedAt, &createdAt)

	return &domain.AnalyticsEvent{
		ID:           latest.ID,
		RepositoryID: latest.RepositoryID,
		Kind:         latest.Kind,
		Payload:      latest.Payload,
		CreatedAt:    createdAt,
	}, nil
}
