package judge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/chat-triage/backend/telemetry"
	"github.com/onnwee/chat-triage/backend/triage"
)

// scriptedProvider returns the queued responses in order, then repeats the
// last one.
type scriptedProvider struct {
	mu      sync.Mutex
	calls   int
	results []scriptedResult
}

type scriptedResult struct {
	verdicts []Verdict
	err      error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Judge(_ context.Context, items []Item) ([]Verdict, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	p.calls++
	r := p.results[i]
	if r.err != nil {
		return nil, r.err
	}
	if r.verdicts != nil {
		return r.verdicts, nil
	}
	out := make([]Verdict, len(items))
	for j := range items {
		out[j] = Verdict{HasValue: true, ReplyText: "scripted reply", Confidence: 0.9}
	}
	return out, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type resultCollector struct {
	mu      sync.Mutex
	results map[string]Verdict
}

func newResultCollector() *resultCollector {
	return &resultCollector{results: make(map[string]Verdict)}
}

func (r *resultCollector) sink(_ context.Context, it Item, v Verdict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[it.Comment.ID] = v
}

func (r *resultCollector) get(id string) (Verdict, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.results[id]
	return v, ok
}

func newTestDispatcher(p Provider) (*Dispatcher, *resultCollector, *triage.Limiter) {
	limiter := triage.NewLimiter(context.Background(), 10, 1, 1.0, nil)
	rc := newResultCollector()
	return &Dispatcher{
		Provider:    p,
		Cache:       NewCache(16, time.Hour),
		Limiter:     limiter,
		Stats:       telemetry.NewStats(),
		CostPerCall: 0.002,
		Timeout:     time.Second,
		MaxRetries:  2,
		Concurrency: 2,
		OnResult:    rc.sink,
	}, rc, limiter
}

func TestDispatcherResolvesCacheHitWithoutProviderCall(t *testing.T) {
	p := &scriptedProvider{results: []scriptedResult{{}}}
	d, rc, limiter := newTestDispatcher(p)

	it := item("u1", "what time do you open?", 0.9)
	d.Cache.Put(it.Fingerprint, Verdict{HasValue: true, ReplyText: "ten sharp", Confidence: 0.9})
	limiter.TryAdmit(0.002) // the admission the pipeline made for this comment

	d.dispatch(context.Background(), Batch{Items: []Item{it}, CreatedAt: time.Now()})

	if p.callCount() != 0 {
		t.Fatalf("provider calls = %d, want 0 on a full cache hit", p.callCount())
	}
	v, ok := rc.get(it.Comment.ID)
	if !ok || v.ReplyText != "ten sharp" {
		t.Fatalf("result = %+v, want the cached verdict", v)
	}
	if !v.Cached {
		t.Error("verdict should be marked as served from cache")
	}
	tokens, _, _ := limiter.Snapshot()
	if tokens != 10 {
		t.Errorf("tokens = %v, want the hit's token refunded", tokens)
	}
}

func TestDispatcherCommitsSpendOnSuccess(t *testing.T) {
	p := &scriptedProvider{results: []scriptedResult{{}}}
	d, rc, limiter := newTestDispatcher(p)

	items := []Item{
		item("u1", "how much is the set?", 0.9),
		item("u2", "can we book for six?", 0.8),
	}
	d.dispatch(context.Background(), Batch{Items: items, CreatedAt: time.Now()})

	if p.callCount() != 1 {
		t.Fatalf("provider calls = %d, want 1 batched call", p.callCount())
	}
	for _, it := range items {
		v, ok := rc.get(it.Comment.ID)
		if !ok || !v.HasValue {
			t.Fatalf("missing or empty verdict for %s: %+v", it.Comment.ID, v)
		}
	}
	_, spent, _ := limiter.Snapshot()
	if spent != 0.004 {
		t.Errorf("spent = %v, want 0.002 per miss committed", spent)
	}
	// Successful verdicts with reply text are cached for the next repeat.
	if _, ok := d.Cache.Get(items[0].Fingerprint); !ok {
		t.Error("verdict should have been cached")
	}
}

func TestDispatcherRetriesTransientFailure(t *testing.T) {
	p := &scriptedProvider{results: []scriptedResult{
		{err: errors.New("status 503: service unavailable")},
		{},
	}}
	d, rc, _ := newTestDispatcher(p)

	it := item("u1", "is delivery available?", 0.7)
	d.dispatch(context.Background(), Batch{Items: []Item{it}, CreatedAt: time.Now()})

	if p.callCount() != 2 {
		t.Fatalf("provider calls = %d, want a retry after the 503", p.callCount())
	}
	v, ok := rc.get(it.Comment.ID)
	if !ok || !v.HasValue {
		t.Fatalf("result = %+v, want the retried verdict", v)
	}
}

func TestDispatcherFallsBackAfterExhaustion(t *testing.T) {
	p := &scriptedProvider{results: []scriptedResult{
		{err: errors.New("status 503: service unavailable")},
	}}
	d, rc, limiter := newTestDispatcher(p)
	d.MaxRetries = 1

	it := item("u1", "where are you located?", 0.9)
	d.dispatch(context.Background(), Batch{Items: []Item{it}, CreatedAt: time.Now()})

	if p.callCount() != 2 {
		t.Fatalf("provider calls = %d, want initial attempt plus one retry", p.callCount())
	}
	v, ok := rc.get(it.Comment.ID)
	if !ok {
		t.Fatal("sink should still receive a verdict on fallback")
	}
	if v.HasValue {
		t.Errorf("fallback verdict = %+v, want no-value", v)
	}
	_, spent, _ := limiter.Snapshot()
	if spent != 0 {
		t.Errorf("spent = %v, failed batch must release its reservation", spent)
	}
}

func TestDispatcherDoesNotRetryFatalErrors(t *testing.T) {
	p := &scriptedProvider{results: []scriptedResult{
		{err: errors.New("status 401: invalid api key")},
	}}
	d, rc, _ := newTestDispatcher(p)

	it := item("u1", "menu recommendations?", 0.8)
	d.dispatch(context.Background(), Batch{Items: []Item{it}, CreatedAt: time.Now()})

	if p.callCount() != 1 {
		t.Fatalf("provider calls = %d, want no retries on auth failure", p.callCount())
	}
	if v, ok := rc.get(it.Comment.ID); !ok || v.HasValue {
		t.Fatalf("result = %+v, want a no-value fallback", v)
	}
}

func TestDispatcherRunDrainsStream(t *testing.T) {
	p := &scriptedProvider{results: []scriptedResult{{}}}
	d, rc, _ := newTestDispatcher(p)

	batches := make(chan Batch, 2)
	batches <- Batch{Items: []Item{item("u1", "first batch question?", 0.5)}, CreatedAt: time.Now()}
	batches <- Batch{Items: []Item{item("u2", "second batch question?", 0.5)}, CreatedAt: time.Now()}
	close(batches)

	d.Run(context.Background(), batches)

	for _, id := range []string{"u1-first batch question?", "u2-second batch question?"} {
		if _, ok := rc.get(id); !ok {
			t.Errorf("missing result for %s", id)
		}
	}
}
