// Package redisstore implements the store repositories against Redis, for
// any deployment where DB_URL is set (memstore otherwise covers DevMode and
// tests). Grounded on the teacher's pack-mate
// Kocoro-lab-Shannon/go/orchestrator/internal/session/manager.go: one
// *redis.Client wrapped in a circuit breaker, entities marshaled to JSON
// strings under a prefixed key, TTL where the entity is naturally
// time-bounded.
//
// Unlike manager.go's single Session type, every entity here is append-only
// or keyed by a stable id, so there is no local read cache to invalidate —
// Redis is the source of truth and every Get/List issues a round trip.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/prreview/orchestrator/internal/apperr"
)

// Client wraps a *redis.Client with the same circuit-breaker pattern
// publisher.Publisher uses for the GitHub API, so a flapping Redis instance
// fails fast instead of piling up blocked goroutines.
type Client struct {
	rdb     *redis.Client
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Entry
}

// NewClient dials addr (a redis:// URL or host:port) and verifies
// connectivity with a bounded ping.
func NewClient(addr string, log *logrus.Entry) (*Client, error) {
	opts, err := parseAddr(addr)
	if err != nil {
		return nil, apperr.New(apperr.Internal, "redisstore.NewClient", err)
	}
	rdb := redis.NewClient(opts)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redisstore",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	c := &Client{rdb: rdb, breaker: breaker, log: log}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.breaker.Execute(func() (any, error) {
		return nil, rdb.Ping(ctx).Err()
	}); err != nil {
		return nil, apperr.New(apperr.Internal, "redisstore.NewClient", err)
	}
	return c, nil
}

func parseAddr(addr string) (*redis.Options, error) {
	if addr == "" {
		return &redis.Options{Addr: "localhost:6379"}, nil
	}
	if opts, err := redis.ParseURL(addr); err == nil {
		return opts, nil
	}
	return &redis.Options{Addr: addr}, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

// get fetches key and unmarshals it into dst, returning (false, nil) on a
// cache miss rather than redis.Nil, so callers can treat "not found" as a
// normal zero-value result the way memstore's map lookups do.
func (c *Client) get(ctx context.Context, key string, dst any) (bool, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.rdb.Get(ctx, key).Bytes()
	})
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	raw := result.([]byte)
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = c.breaker.Execute(func() (any, error) {
		return nil, c.rdb.Set(ctx, key, raw, ttl).Err()
	})
	return err
}

// rpush appends one JSON-marshaled value to a Redis list, used for every
// append-only entity (decisions, preference versions, analytics events).
func (c *Client) rpush(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = c.breaker.Execute(func() (any, error) {
		return nil, c.rdb.RPush(ctx, key, raw).Err()
	})
	return err
}

// lrangeAll returns every element of a list, unmarshaling each with decode.
func (c *Client) lrangeAll(ctx context.Context, key string, decode func([]byte) error) error {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.rdb.LRange(ctx, key, 0, -1).Result()
	})
	if err != nil {
		return err
	}
	for _, raw := range result.([]string) {
		if err := decode([]byte(raw)); err != nil {
			return err
		}
	}
	return nil
}

// sadd/smembers back the small secondary indexes (the set of workflow ids
// so ListResumable/ListCompleted can scan without a Redis KEYS sweep).
func (c *Client) sadd(ctx context.Context, key, member string) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.rdb.SAdd(ctx, key, member).Err()
	})
	return err
}

func (c *Client) smembers(ctx context.Context, key string) ([]string, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.rdb.SMembers(ctx, key).Result()
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}
