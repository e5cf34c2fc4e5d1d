package judge

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/chat-triage/backend/telemetry"
	"github.com/onnwee/chat-triage/backend/triage"
)

// ResultSink receives every resolved item with its verdict. The sink may be
// slow (speech synthesis, persistence); the dispatcher bounds its fan-out.
type ResultSink func(ctx context.Context, it Item, v Verdict)

// Dispatcher consumes flushed batches one at a time: cache hits resolve
// immediately and refund their admission token; misses go to the provider
// with retry and a fallback verdict on exhaustion.
type Dispatcher struct {
	Provider    Provider
	Cache       *Cache
	Limiter     *triage.Limiter
	Stats       *telemetry.Stats
	CostPerCall float64
	Timeout     time.Duration
	MaxRetries  int
	Concurrency int
	OnResult    ResultSink
}

// Run processes batches until the stream closes. One batch is in flight at a
// time; result sinks fan out up to Concurrency.
func (d *Dispatcher) Run(ctx context.Context, batches <-chan Batch) {
	for b := range batches {
		d.dispatch(ctx, b)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, b Batch) {
	g, gctx := errgroup.WithContext(ctx)
	if d.Concurrency > 0 {
		g.SetLimit(d.Concurrency)
	}
	emit := func(it Item, v Verdict) {
		if d.OnResult == nil {
			return
		}
		g.Go(func() error {
			d.OnResult(telemetry.WithCorrelation(gctx, it.Comment.ID), it, v)
			return nil
		})
	}

	var misses []Item
	for _, it := range b.Items {
		if v, ok := d.Cache.Get(it.Fingerprint); ok {
			d.Stats.RecordCacheHit()
			d.Limiter.Refund()
			v.Cached = true
			emit(it, v)
			continue
		}
		d.Stats.RecordCacheMiss()
		misses = append(misses, it)
	}

	if len(misses) > 0 {
		reserve := d.CostPerCall * float64(len(misses))
		d.Limiter.Reserve(reserve)

		verdicts, err := d.judgeWithRetry(ctx, misses)
		if err != nil {
			d.Limiter.Release(reserve)
			d.Stats.RecordJudgeFallback()
			slog.Warn("judge failed; falling back to no-value verdicts",
				slog.Int("batch_size", len(misses)), slog.Any("err", err))
			for _, it := range misses {
				emit(it, Verdict{HasValue: false})
			}
		} else {
			d.Limiter.Commit(reserve, reserve)
			for i, it := range misses {
				v := verdicts[i]
				if v.HasValue && v.ReplyText != "" {
					d.Cache.Put(it.Fingerprint, v)
				}
				emit(it, v)
			}
		}
		tokens, spent, _ := d.Limiter.Snapshot()
		telemetry.SetBudgetGauges(tokens, spent)
	}

	_ = g.Wait()
}

// judgeWithRetry calls the provider with a per-attempt timeout, retrying
// transient failures with exponential backoff.
func (d *Dispatcher) judgeWithRetry(ctx context.Context, items []Item) ([]Verdict, error) {
	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= d.MaxRetries; attempt++ {
		if attempt > 0 {
			telemetry.JudgeRetries.Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		d.Stats.RecordJudgeCall()
		callCtx, cancel := context.WithTimeout(ctx, d.Timeout)
		var (
			verdicts []Verdict
			err      error
		)
		telemetry.TimeFunc(telemetry.JudgeDuration, func() {
			verdicts, err = d.Provider.Judge(callCtx, items)
		})
		cancel()

		if err == nil {
			return verdicts, nil
		}
		lastErr = err
		if !IsRetryableError(err) {
			slog.Warn("judge error is fatal; not retrying", slog.Any("err", err))
			break
		}
		slog.Debug("judge attempt failed",
			slog.Int("attempt", attempt+1), slog.Any("err", err))
	}
	return nil, lastErr
}
