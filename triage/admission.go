package triage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BudgetStore persists the daily spend across restarts. The db package
// implements it on the kv table; a nil store keeps state in memory only.
type BudgetStore interface {
	LoadSpend(ctx context.Context, day string) (float64, error)
	SaveSpend(ctx context.Context, day string, spent float64) error
}

// Limiter is the admission controller: a token bucket coupled with a daily
// cost ledger. It is the single serialization point ahead of the costly
// stage; every mutation happens under the mutex.
type Limiter struct {
	capacity   float64
	refillRate float64 // tokens per second
	dailyCap   float64

	store BudgetStore
	now   func() time.Time

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	spent      float64 // committed charges
	reserved   float64 // in-flight estimates, released or committed later
	day        string  // UTC date of the current ledger
}

// NewLimiter builds a full bucket. If store is non-nil the current day's
// spend is loaded so a restart cannot double the budget.
func NewLimiter(ctx context.Context, capacity, refillRate, dailyCap float64, store BudgetStore) *Limiter {
	l := &Limiter{
		capacity:   capacity,
		refillRate: refillRate,
		dailyCap:   dailyCap,
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
		tokens:     capacity,
	}
	l.lastRefill = l.now()
	l.day = l.lastRefill.Format("2006-01-02")
	if store != nil {
		if spent, err := store.LoadSpend(ctx, l.day); err != nil {
			slog.Warn("budget ledger load failed; starting from zero", slog.Any("err", err))
		} else {
			l.spent = spent
		}
	}
	return l
}

// refillLocked applies lazy refill and the daily reset. Callers hold mu.
func (l *Limiter) refillLocked() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed > 0 {
		l.tokens += elapsed * l.refillRate
		if l.tokens > l.capacity {
			l.tokens = l.capacity
		}
		l.lastRefill = now
	}
	if day := now.Format("2006-01-02"); day != l.day {
		l.day = day
		l.spent = 0
		l.persistLocked()
	}
}

// TryAdmit checks one token and budget headroom for the estimated cost. On
// success it takes the token; cost is not reserved here — the dispatcher
// reserves after the cache miss is confirmed, so a cache hit never touches
// the ledger. On failure nothing changes.
func (l *Limiter) TryAdmit(estCost float64) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	if l.tokens < 1 {
		return Decision{Accepted: false, Reason: ReasonRateLimited}
	}
	if l.spent+l.reserved+estCost > l.dailyCap {
		return Decision{Accepted: false, Reason: ReasonBudgetExceeded}
	}
	l.tokens--
	return Decision{Accepted: true, Reason: ReasonAdmitted}
}

// Refund returns the token of an admitted comment that never reached the
// provider (cache hit).
func (l *Limiter) Refund() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens++
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
}

// Reserve marks an estimate as in flight once a cache miss is confirmed.
func (l *Limiter) Reserve(estCost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reserved += estCost
}

// Commit converts a reservation into a charge at the actual cost. The charge
// is clamped to the cap: over-budget calls are rejected up front, never
// charged past the cap after the fact.
func (l *Limiter) Commit(estCost, actualCost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reserved -= estCost
	if l.reserved < 0 {
		l.reserved = 0
	}
	l.spent += actualCost
	if l.spent > l.dailyCap {
		l.spent = l.dailyCap
	}
	l.persistLocked()
}

// Release drops a reservation without charging (failed call, no cost).
func (l *Limiter) Release(estCost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reserved -= estCost
	if l.reserved < 0 {
		l.reserved = 0
	}
}

// Snapshot returns tokens available and committed spend for telemetry.
func (l *Limiter) Snapshot() (tokens, spent, dailyCap float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	return l.tokens, l.spent, l.dailyCap
}

func (l *Limiter) persistLocked() {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.store.SaveSpend(ctx, l.day, l.spent); err != nil {
		slog.Warn("budget ledger save failed", slog.Any("err", err))
	}
}
