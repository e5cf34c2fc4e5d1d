package judge

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a fingerprint-keyed LRU with per-entry TTL. Whichever of capacity
// eviction or expiry triggers first wins.
type Cache struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	order *list.List // front = most recent
	index map[string]*list.Element
}

type cacheEntry struct {
	fingerprint string
	verdict     Verdict
	hitCount    int
	expiresAt   time.Time
}

func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Get returns the cached verdict if present and unexpired. Expired entries
// are removed on access.
func (c *Cache) Get(fingerprint string) (Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[fingerprint]
	if !ok {
		return Verdict{}, false
	}
	e := el.Value.(*cacheEntry)
	if c.now().After(e.expiresAt) {
		c.order.Remove(el)
		delete(c.index, fingerprint)
		return Verdict{}, false
	}
	e.hitCount++
	c.order.MoveToFront(el)
	return e.verdict, true
}

// Put inserts or refreshes an entry, evicting the least recent past capacity.
func (c *Cache) Put(fingerprint string, v Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[fingerprint]; ok {
		e := el.Value.(*cacheEntry)
		e.verdict = v
		e.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{
		fingerprint: fingerprint,
		verdict:     v,
		expiresAt:   c.now().Add(c.ttl),
	})
	c.index[fingerprint] = el
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*cacheEntry).fingerprint)
	}
}

// Len returns the live entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
