package judge

import (
	"testing"
	"time"
)

func newTestCache(capacity int, ttl time.Duration) (*Cache, *time.Time) {
	c := NewCache(capacity, ttl)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCacheRoundtrip(t *testing.T) {
	c, _ := newTestCache(10, time.Hour)
	c.Put("fp1", Verdict{HasValue: true, ReplyText: "we open at noon", Confidence: 0.9})

	v, ok := c.Get("fp1")
	if !ok {
		t.Fatal("expected a hit for fp1")
	}
	if v.ReplyText != "we open at noon" {
		t.Errorf("ReplyText = %q", v.ReplyText)
	}
	if _, ok := c.Get("fp2"); ok {
		t.Error("fp2 was never stored")
	}
}

func TestCacheExpiry(t *testing.T) {
	c, now := newTestCache(10, time.Minute)
	c.Put("fp1", Verdict{HasValue: true, ReplyText: "hello"})

	*now = now.Add(59 * time.Second)
	if _, ok := c.Get("fp1"); !ok {
		t.Fatal("entry should still be live before the TTL")
	}

	*now = now.Add(2 * time.Second)
	if _, ok := c.Get("fp1"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want expired entry removed", c.Len())
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Hour)
	c.Put("a", Verdict{HasValue: true, ReplyText: "ra"})
	c.Put("b", Verdict{HasValue: true, ReplyText: "rb"})

	// Touch a so b is the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be present")
	}
	c.Put("c", Verdict{HasValue: true, ReplyText: "rc"})

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should have survived")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestCachePutRefreshesExisting(t *testing.T) {
	c, now := newTestCache(10, time.Minute)
	c.Put("fp1", Verdict{HasValue: true, ReplyText: "old"})
	*now = now.Add(50 * time.Second)
	c.Put("fp1", Verdict{HasValue: true, ReplyText: "new"})

	// The refresh restarts the TTL from the second Put.
	*now = now.Add(50 * time.Second)
	v, ok := c.Get("fp1")
	if !ok {
		t.Fatal("refreshed entry should still be live")
	}
	if v.ReplyText != "new" {
		t.Errorf("ReplyText = %q, want new", v.ReplyText)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}
