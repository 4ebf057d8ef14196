package ingestion

import (
	"container/list"
	"sync"
	"time"
)

// deliveryLRU is a bounded, TTL-expiring set of recently seen delivery ids.
// It is the in-memory half of the at-least-once -> at-most-once bridge
// (§4.1); DeliveryRepo is the durable half consulted when an entry has
// already fallen out of the LRU.
type deliveryLRU struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time

	ll    *list.List
	index map[string]*list.Element
}

type lruEntry struct {
	key  string
	seen time.Time
}

// newDeliveryLRU constructs a bounded LRU. capacity and ttl should satisfy
// the spec's recommended minimums (>= 10000 entries, >= 1h TTL); tests pass
// smaller values to exercise eviction without waiting an hour.
func newDeliveryLRU(capacity int, ttl time.Duration, now func() time.Time) *deliveryLRU {
	if now == nil {
		now = time.Now
	}
	return &deliveryLRU{
		capacity: capacity,
		ttl:      ttl,
		now:      now,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

// seenRecently reports whether key was already recorded (and not expired),
// moving it to the front (most-recently-used) if so.
func (c *deliveryLRU) seenRecently(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		entry := el.Value.(*lruEntry)
		if c.now().Sub(entry.seen) < c.ttl {
			c.ll.MoveToFront(el)
			return true
		}
		// Expired: treat as unseen, and drop the stale entry.
		c.ll.Remove(el)
		delete(c.index, key)
	}
	return false
}

// record marks key as seen, evicting the oldest entry if over capacity.
func (c *deliveryLRU) record(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		el.Value.(*lruEntry).seen = c.now()
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&lruEntry{key: key, seen: c.now()})
	c.index[key] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.index, oldest.Value.(*lruEntry).key)
	}
}
