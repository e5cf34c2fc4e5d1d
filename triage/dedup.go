package triage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Deduper suppresses repeated and near-duplicate content inside a sliding
// window, plus per-user flooding. All state lives behind one mutex; every
// check is local and cheap.
type Deduper struct {
	Window      time.Duration // near-duplicate lookback per user
	Similarity  float64       // Jaccard threshold in (0,1]
	FloodLimit  int           // max comments per user per FloodWindow
	FloodWindow time.Duration

	mu      sync.Mutex
	byUser  map[string][]dedupEntry
	byPrint map[string]time.Time // global exact-fingerprint index
}

type dedupEntry struct {
	fingerprint string
	shingles    map[string]struct{}
	seenAt      time.Time
}

// NewDeduper builds a detector with the given windows. Zero values are not
// defaulted here; config validation guarantees sane inputs.
func NewDeduper(window time.Duration, similarity float64, floodLimit int, floodWindow time.Duration) *Deduper {
	return &Deduper{
		Window:      window,
		Similarity:  similarity,
		FloodLimit:  floodLimit,
		FloodWindow: floodWindow,
		byUser:      make(map[string][]dedupEntry),
		byPrint:     make(map[string]time.Time),
	}
}

// Check records the comment and reports whether it is suppressed. Exact
// repeats within the window are always caught (same-user or cross-user);
// near-duplicates are caught per user via shingle similarity.
func (d *Deduper) Check(c Comment) Decision {
	now := c.ReceivedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	normalized := NormalizeContent(c.Content)
	fp := Fingerprint(c.Content)
	sh := shingles(normalized, 3)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.purgeUserLocked(c.UserID, now)

	// Global exact repeat.
	if seen, ok := d.byPrint[fp]; ok && now.Sub(seen) <= d.Window {
		d.byPrint[fp] = now
		return Decision{Accepted: false, Reason: ReasonDuplicate}
	}

	entries := d.byUser[c.UserID]

	// Per-user flood.
	flooded := 0
	for _, e := range entries {
		if now.Sub(e.seenAt) <= d.FloodWindow {
			flooded++
		}
	}
	if flooded >= d.FloodLimit {
		d.record(c.UserID, dedupEntry{fingerprint: fp, shingles: sh, seenAt: now})
		d.byPrint[fp] = now
		return Decision{Accepted: false, Reason: ReasonDuplicate}
	}

	// Per-user near-duplicate.
	for _, e := range entries {
		if e.fingerprint == fp || jaccard(sh, e.shingles) >= d.Similarity {
			d.record(c.UserID, dedupEntry{fingerprint: fp, shingles: sh, seenAt: now})
			d.byPrint[fp] = now
			return Decision{Accepted: false, Reason: ReasonDuplicate}
		}
	}

	d.record(c.UserID, dedupEntry{fingerprint: fp, shingles: sh, seenAt: now})
	d.byPrint[fp] = now
	return Decision{Accepted: true, Reason: ReasonAdmitted}
}

func (d *Deduper) record(userID string, e dedupEntry) {
	d.byUser[userID] = append(d.byUser[userID], e)
}

// purgeUserLocked drops expired entries for one user. Called on access so a
// chatty user never accumulates unbounded state between sweeps.
func (d *Deduper) purgeUserLocked(userID string, now time.Time) {
	entries := d.byUser[userID]
	if len(entries) == 0 {
		return
	}
	kept := entries[:0]
	for _, e := range entries {
		if now.Sub(e.seenAt) <= d.Window {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(d.byUser, userID)
		return
	}
	d.byUser[userID] = kept
}

// Sweep removes all expired state. Returns the number of entries dropped.
func (d *Deduper) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	dropped := 0
	for user, entries := range d.byUser {
		kept := entries[:0]
		for _, e := range entries {
			if now.Sub(e.seenAt) <= d.Window {
				kept = append(kept, e)
			} else {
				dropped++
			}
		}
		if len(kept) == 0 {
			delete(d.byUser, user)
		} else {
			d.byUser[user] = kept
		}
	}
	for fp, seen := range d.byPrint {
		if now.Sub(seen) > d.Window {
			delete(d.byPrint, fp)
			dropped++
		}
	}
	return dropped
}

// StartSweeper runs periodic sweeps until ctx is canceled.
func (d *Deduper) StartSweeper(ctx context.Context, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := d.Sweep(now); n > 0 {
					slog.Debug("dedup sweep", slog.Int("dropped", n))
				}
			}
		}
	}()
}

// shingles returns the set of k-rune windows over s. Short strings fall back
// to the whole string as a single shingle.
func shingles(s string, k int) map[string]struct{} {
	out := make(map[string]struct{})
	rs := []rune(s)
	if len(rs) <= k {
		if len(rs) > 0 {
			out[string(rs)] = struct{}{}
		}
		return out
	}
	for i := 0; i+k <= len(rs); i++ {
		out[string(rs[i:i+k])] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	inter := 0
	for s := range small {
		if _, ok := large[s]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
