package triage

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/chat-triage/backend/ingest"
	"github.com/onnwee/chat-triage/backend/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	os.Exit(m.Run())
}

type enqueueRecorder struct {
	mu    sync.Mutex
	items []string
}

func (r *enqueueRecorder) enqueue(c Comment, s Score, fingerprint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, c.Content)
}

func (r *enqueueRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func newTestPipeline(t *testing.T) (*Pipeline, *enqueueRecorder, *Limiter) {
	t.Helper()
	rec := &enqueueRecorder{}
	limiter := NewLimiter(context.Background(), 10, 1, 10, nil)
	p := &Pipeline{
		Normalizer:  &Normalizer{},
		PreFilter:   defaultPreFilter(),
		Deduper:     newTestDeduper(),
		Scorer:      NewKeywordScorer(nil, nil),
		Classifier:  &Classifier{Threshold: 0.1},
		Limiter:     limiter,
		CostPerCall: 0.002,
		Workers:     2,
		Stats:       telemetry.NewStats(),
		Enqueue:     rec.enqueue,
	}
	return p, rec, limiter
}

func TestPipelineAdmitsHighValueQuestion(t *testing.T) {
	p, rec, limiter := newTestPipeline(t)
	d := p.Process(context.Background(), rawChat("price please, how much per session?"))
	if !d.Accepted {
		t.Fatalf("decision = %+v, want admitted", d)
	}
	if rec.count() != 1 {
		t.Fatalf("enqueued = %d, want 1", rec.count())
	}
	tokens, _, _ := limiter.Snapshot()
	if tokens >= 10 {
		t.Errorf("tokens = %v, want one consumed", tokens)
	}
}

func TestPipelineFiltersEmojiBarrage(t *testing.T) {
	p, rec, limiter := newTestPipeline(t)
	d := p.Process(context.Background(), rawChat("😂😂😂😂😂😂"))
	if d.Accepted || d.Reason != ReasonFiltered {
		t.Fatalf("decision = %+v, want filtered", d)
	}
	if rec.count() != 0 {
		t.Fatal("filtered comment must not be enqueued")
	}
	tokens, _, _ := limiter.Snapshot()
	if tokens < 10 {
		t.Errorf("tokens = %v, filtered comment must not consume a token", tokens)
	}
}

func TestPipelineSuppressesRepeats(t *testing.T) {
	p, rec, _ := newTestPipeline(t)
	first := p.Process(context.Background(), rawChat("is there a group discount?"))
	if !first.Accepted {
		t.Fatalf("first = %+v, want admitted", first)
	}
	for i := 0; i < 19; i++ {
		d := p.Process(context.Background(), rawChat("is there a group discount?"))
		if d.Accepted {
			t.Fatalf("repeat %d = %+v, want duplicate", i+2, d)
		}
		if d.Reason != ReasonDuplicate {
			t.Fatalf("repeat %d reason = %v, want duplicate", i+2, d.Reason)
		}
	}
	if rec.count() != 1 {
		t.Fatalf("enqueued = %d, want 1", rec.count())
	}
}

func TestPipelineDropsMalformedEvents(t *testing.T) {
	p, rec, _ := newTestPipeline(t)
	d := p.Process(context.Background(), ingest.RawEvent{Kind: "mystery", Content: "??", UserID: "u1"})
	if d.Accepted {
		t.Fatal("unknown kind should be dropped")
	}
	if rec.count() != 0 {
		t.Fatal("malformed event must not be enqueued")
	}
}

func TestPipelineRejectsWhenRateLimited(t *testing.T) {
	rec := &enqueueRecorder{}
	limiter := NewLimiter(context.Background(), 1, 0.001, 10, nil)
	p := &Pipeline{
		Normalizer:  &Normalizer{},
		PreFilter:   defaultPreFilter(),
		Deduper:     newTestDeduper(),
		Scorer:      NewKeywordScorer(nil, nil),
		Classifier:  &Classifier{Threshold: 0.1},
		Limiter:     limiter,
		CostPerCall: 0.002,
		Stats:       telemetry.NewStats(),
		Enqueue:     rec.enqueue,
	}
	if d := p.Process(context.Background(), rawChat("how much is the lunch set?")); !d.Accepted {
		t.Fatalf("first = %+v, want admitted", d)
	}
	d := p.Process(context.Background(), rawChat("do you take booking tonight?"))
	if d.Accepted || d.Reason != ReasonRateLimited {
		t.Fatalf("second = %+v, want rate-limited", d)
	}
	if rec.count() != 1 {
		t.Fatalf("enqueued = %d, want 1", rec.count())
	}
}

func TestPipelineRunConsumesSourceUntilEOF(t *testing.T) {
	p, rec, _ := newTestPipeline(t)
	ch := make(chan ingest.RawEvent, 4)
	ch <- rawChat("price please, how much per session?")
	ch <- rawChat("😂😂😂😂😂😂")
	ch <- rawChat("where is the shop located?")
	close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Run(ctx, &ingest.ChanSource{C: ch}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.count() != 2 {
		t.Fatalf("enqueued = %d, want 2", rec.count())
	}
	snap := p.Stats.Snapshot()
	if snap.Ingested != 3 {
		t.Errorf("Ingested = %d, want 3", snap.Ingested)
	}
	if snap.Admitted != 2 {
		t.Errorf("Admitted = %d, want 2", snap.Admitted)
	}
	if snap.RejectedFiltered != 1 {
		t.Errorf("RejectedFiltered = %d, want 1", snap.RejectedFiltered)
	}
}
