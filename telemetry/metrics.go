// Package telemetry provides Prometheus metrics, an in-process stats snapshot
// for the /status endpoint, and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsIngested     prometheus.Counter
	EventsDropped      prometheus.Counter
	ValidationFailures prometheus.Counter
	CommentsAdmitted   prometheus.Counter
	CommentsRejected   *prometheus.CounterVec
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	JudgeCalls         prometheus.Counter
	JudgeRetries       prometheus.Counter
	JudgeFallbacks     prometheus.Counter
	BatchesFlushed     prometheus.Counter
	RepliesGenerated   prometheus.Counter
	SynthesisFailures  prometheus.Counter

	// Histograms (seconds)
	JudgeDuration prometheus.Observer
	BatchSizes    prometheus.Observer

	// Gauges
	TokensRemainingGauge prometheus.Gauge
	DailySpendGauge      prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "triage_events_ingested_total", Help: "Raw chat events received from the ingestion source"})
		EventsDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "triage_events_dropped_total", Help: "Raw events dropped because the ingest buffer was full"})
		ValidationFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "triage_validation_failures_total", Help: "Raw events rejected by the normalizer"})
		CommentsAdmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "triage_comments_admitted_total", Help: "Comments admitted past the rate/budget gate"})
		CommentsRejected = promauto.NewCounterVec(prometheus.CounterOpts{Name: "triage_comments_rejected_total", Help: "Comments rejected, by terminal reason"}, []string{"reason"})
		CacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "triage_cache_hits_total", Help: "Batch members served from the response cache"})
		CacheMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "triage_cache_misses_total", Help: "Batch members dispatched to the judgment provider"})
		JudgeCalls = promauto.NewCounter(prometheus.CounterOpts{Name: "triage_judge_calls_total", Help: "Judgment provider invocations"})
		JudgeRetries = promauto.NewCounter(prometheus.CounterOpts{Name: "triage_judge_retries_total", Help: "Judgment call retries after transient failures"})
		JudgeFallbacks = promauto.NewCounter(prometheus.CounterOpts{Name: "triage_judge_fallbacks_total", Help: "Batches resolved with the default no-value verdict after retry exhaustion"})
		BatchesFlushed = promauto.NewCounter(prometheus.CounterOpts{Name: "triage_batches_flushed_total", Help: "Batches handed to the dispatcher"})
		RepliesGenerated = promauto.NewCounter(prometheus.CounterOpts{Name: "triage_replies_generated_total", Help: "Positive verdicts that produced a reply"})
		SynthesisFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "triage_tts_failures_total", Help: "Speech synthesis failures"})
		JudgeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "triage_judge_duration_seconds", Help: "Judgment call duration seconds", Buckets: prometheus.DefBuckets})
		BatchSizes = promauto.NewHistogram(prometheus.HistogramOpts{Name: "triage_batch_size", Help: "Members per flushed batch", Buckets: []float64{1, 2, 3, 5, 8, 13}})
		TokensRemainingGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "triage_tokens_remaining", Help: "Admission token bucket level"})
		DailySpendGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "triage_daily_spend", Help: "Charged judgment cost since the daily reset"})
	})
}

// Stats mirrors the Prometheus counters in readable atomics so /status can
// serve a JSON snapshot without scraping the registry.
type Stats struct {
	ingested       atomic.Int64
	validationFail atomic.Int64
	admitted       atomic.Int64
	filtered       atomic.Int64
	duplicate      atomic.Int64
	lowScore       atomic.Int64
	rateLimited    atomic.Int64
	budgetExceeded atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	judgeCalls     atomic.Int64
	judgeFallbacks atomic.Int64
	replies        atomic.Int64
}

// NewStats returns a zeroed snapshot aggregator. Init must have been called
// before any Record method so the Prometheus side is registered.
func NewStats() *Stats { return &Stats{} }

// RecordIngested counts one raw event from the source.
func (s *Stats) RecordIngested() {
	s.ingested.Add(1)
	EventsIngested.Inc()
}

// RecordValidationFailure counts a malformed raw event (dropped, not retried).
func (s *Stats) RecordValidationFailure() {
	s.validationFail.Add(1)
	ValidationFailures.Inc()
}

// RecordAdmitted counts a comment that passed the admission controller.
func (s *Stats) RecordAdmitted() {
	s.admitted.Add(1)
	CommentsAdmitted.Inc()
}

// RecordRejected counts a terminal rejection by reason. Reason strings match
// the triage decision reasons.
func (s *Stats) RecordRejected(reason string) {
	switch reason {
	case "filtered":
		s.filtered.Add(1)
	case "duplicate":
		s.duplicate.Add(1)
	case "low-score":
		s.lowScore.Add(1)
	case "rate-limited":
		s.rateLimited.Add(1)
	case "budget-exceeded":
		s.budgetExceeded.Add(1)
	}
	CommentsRejected.WithLabelValues(reason).Inc()
}

// RecordCacheHit / RecordCacheMiss count response-cache outcomes per member.
func (s *Stats) RecordCacheHit() {
	s.cacheHits.Add(1)
	CacheHits.Inc()
}

func (s *Stats) RecordCacheMiss() {
	s.cacheMisses.Add(1)
	CacheMisses.Inc()
}

// RecordJudgeCall counts one provider invocation.
func (s *Stats) RecordJudgeCall() {
	s.judgeCalls.Add(1)
	JudgeCalls.Inc()
}

// RecordJudgeFallback counts a batch resolved by the default verdict.
func (s *Stats) RecordJudgeFallback() {
	s.judgeFallbacks.Add(1)
	JudgeFallbacks.Inc()
}

// RecordReply counts a generated reply (cached or fresh).
func (s *Stats) RecordReply() {
	s.replies.Add(1)
	RepliesGenerated.Inc()
}

// Snapshot is the payload served by the telemetry query interface.
type Snapshot struct {
	Ingested           int64   `json:"ingested"`
	ValidationFailures int64   `json:"validation_failures"`
	Admitted           int64   `json:"admitted"`
	RejectedFiltered   int64   `json:"rejected_filtered"`
	RejectedDuplicate  int64   `json:"rejected_duplicate"`
	RejectedLowScore   int64   `json:"rejected_low_score"`
	RejectedRateLimit  int64   `json:"rejected_rate_limited"`
	RejectedBudget     int64   `json:"rejected_budget_exceeded"`
	CacheHits          int64   `json:"cache_hits"`
	CacheMisses        int64   `json:"cache_misses"`
	CacheHitRate       float64 `json:"cache_hit_rate"`
	JudgeCalls         int64   `json:"judge_calls"`
	JudgeFallbacks     int64   `json:"judge_fallbacks"`
	Replies            int64   `json:"replies"`
	TokensRemaining    float64 `json:"tokens_remaining"`
	DailySpend         float64 `json:"daily_spend"`
	DailyCap           float64 `json:"daily_cap"`
}

// Snapshot returns the current counter values. Tokens/spend are filled in by
// the caller from the admission controller.
func (s *Stats) Snapshot() Snapshot {
	hits := s.cacheHits.Load()
	misses := s.cacheMisses.Load()
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	return Snapshot{
		Ingested:           s.ingested.Load(),
		ValidationFailures: s.validationFail.Load(),
		Admitted:           s.admitted.Load(),
		RejectedFiltered:   s.filtered.Load(),
		RejectedDuplicate:  s.duplicate.Load(),
		RejectedLowScore:   s.lowScore.Load(),
		RejectedRateLimit:  s.rateLimited.Load(),
		RejectedBudget:     s.budgetExceeded.Load(),
		CacheHits:          hits,
		CacheMisses:        misses,
		CacheHitRate:       rate,
		JudgeCalls:         s.judgeCalls.Load(),
		JudgeFallbacks:     s.judgeFallbacks.Load(),
		Replies:            s.replies.Load(),
	}
}

// SetBudgetGauges publishes the admission controller state.
func SetBudgetGauges(tokens, spent float64) {
	if TokensRemainingGauge != nil {
		TokensRemainingGauge.Set(tokens)
	}
	if DailySpendGauge != nil {
		DailySpendGauge.Set(spent)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
