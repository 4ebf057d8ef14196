package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prreview/orchestrator/internal/apperr"
)

// deliveryTTL bounds how long a processed delivery id is remembered;
// beyond this, GitHub's own retry window has long since closed (§4.1).
const deliveryTTL = 72 * time.Hour

func deliveryKey(deliveryID string) string { return "delivery:" + deliveryID }

// DeliveryStore is the Redis-backed DeliveryRepo.
type DeliveryStore struct {
	c *Client
}

func NewDeliveryStore(c *Client) *DeliveryStore { return &DeliveryStore{c: c} }

func (s *DeliveryStore) HasProcessed(ctx context.Context, deliveryID string) (bool, error) {
	_, err := s.c.breaker.Execute(func() (any, error) {
		return nil, s.c.rdb.Get(ctx, deliveryKey(deliveryID)).Err()
	})
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, apperr.New(apperr.DatabaseError, "redisstore.Delivery.HasProcessed", err)
	}
	return true, nil
}

func (s *DeliveryStore) MarkProcessed(ctx context.Context, deliveryID string) error {
	if err := s.c.set(ctx, deliveryKey(deliveryID), "1", deliveryTTL); err != nil {
		return apperr.New(apperr.DatabaseError, "redisstore.Delivery.MarkProcessed", err)
	}
	return nil
}
