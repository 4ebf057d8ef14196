package redisstore

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/prreview/orchestrator/internal/domain"
)

type missingIDError string

func (e missingIDError) Error() string { return string(e) + " id is required" }

func errMissingID(entity string) error { return missingIDError(entity) }

func (c *Client) getString(ctx context.Context, key string) (string, bool, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.rdb.Get(ctx, key).Result()
	})
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return result.(string), true, nil
}

func (c *Client) del(ctx context.Context, key string) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.rdb.Del(ctx, key).Err()
	})
	return err
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

func sortWorkflowsByID(out []*domain.Workflow) {
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
}

func sortWorkflowsByCompletedAt(out []*domain.Workflow) {
	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i].CompletedAt, out[j].CompletedAt
		if ci == nil || cj == nil {
			return out[i].ID < out[j].ID
		}
		return ci.Before(*cj)
	})
}

func sortAgentRunsByName(out []*domain.AgentRun) {
	sort.Slice(out, func(i, j int) bool { return out[i].AgentName < out[j].AgentName })
}
