// Package judge batches admitted comments, consults the response cache, and
// dispatches cache misses to the configured judgment provider.
package judge

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/onnwee/chat-triage/backend/telemetry"
	"github.com/onnwee/chat-triage/backend/triage"
)

// Item is one admitted comment with its triage score and cache key.
type Item struct {
	Comment     triage.Comment
	Score       triage.Score
	Fingerprint string
}

// Batch is an ordered group of items dispatched together. Members are sorted
// by descending keyword score, arrival order preserved on ties.
type Batch struct {
	Items     []Item
	CreatedAt time.Time
}

// Scheduler accumulates items and flushes on size, age, or demand. A batch is
// never flushed empty. Flushed batches go out on a buffered channel consumed
// by the dispatcher; one flush is in flight at a time per consumer.
type Scheduler struct {
	maxSize int
	maxWait time.Duration

	mu      sync.Mutex
	pending []Item
	firstAt time.Time
	closed  bool

	out       chan Batch
	closeOnce sync.Once
}

func NewScheduler(maxSize int, maxWait time.Duration) *Scheduler {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Scheduler{
		maxSize: maxSize,
		maxWait: maxWait,
		out:     make(chan Batch, 16),
	}
}

// Batches returns the flush stream. Closed after Run exits.
func (s *Scheduler) Batches() <-chan Batch { return s.out }

// Enqueue adds an item, flushing immediately when the batch fills. Items
// arriving after shutdown are dropped.
func (s *Scheduler) Enqueue(it Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		slog.Debug("scheduler closed; item dropped", slog.String("comment", it.Comment.ID))
		return
	}
	if len(s.pending) == 0 {
		s.firstAt = time.Now()
	}
	s.pending = append(s.pending, it)
	if len(s.pending) >= s.maxSize {
		if ready := s.takeLocked(); ready != nil {
			s.emit(*ready)
		}
	}
}

// Flush forces out any partial batch. Used on session shutdown; a no-op once
// the scheduler has shut down.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if ready := s.takeLocked(); ready != nil {
		s.emit(*ready)
	}
}

// Run watches batch age until ctx is canceled, then force-flushes any partial
// batch and closes the output stream. From that point Enqueue and Flush are
// no-ops, so late producers cannot race the close.
func (s *Scheduler) Run(ctx context.Context) {
	tick := s.maxWait / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if ready := s.takeLocked(); ready != nil {
				s.emit(*ready)
			}
			s.closed = true
			s.mu.Unlock()
			s.closeOnce.Do(func() { close(s.out) })
			return
		case <-ticker.C:
			s.mu.Lock()
			if len(s.pending) > 0 && time.Since(s.firstAt) >= s.maxWait {
				if ready := s.takeLocked(); ready != nil {
					s.emit(*ready)
				}
			}
			s.mu.Unlock()
		}
	}
}

// takeLocked removes and orders the pending batch. Callers hold mu. Returns
// nil when there is nothing to flush.
func (s *Scheduler) takeLocked() *Batch {
	if len(s.pending) == 0 {
		return nil
	}
	items := s.pending
	s.pending = nil
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score.KeywordScore > items[j].Score.KeywordScore
	})
	return &Batch{Items: items, CreatedAt: s.firstAt}
}

// emit hands the batch to the dispatcher. Callers hold mu, which serializes
// every send against the closed flag; Run is the only closer of the stream
// and closes only after marking closed under mu.
func (s *Scheduler) emit(b Batch) {
	telemetry.BatchesFlushed.Inc()
	telemetry.BatchSizes.Observe(float64(len(b.Items)))
	s.out <- b
}
