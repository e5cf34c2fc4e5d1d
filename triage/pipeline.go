package triage

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/chat-triage/backend/ingest"
	"github.com/onnwee/chat-triage/backend/telemetry"
)

// Enqueue hands an admitted comment to the batch scheduler. Indirection keeps
// this package free of the judge package.
type Enqueue func(c Comment, s Score, fingerprint string)

// Recorder persists triage outcomes. Optional; nil disables persistence.
type Recorder interface {
	RecordComment(ctx context.Context, c Comment, d Decision, s Score) error
}

// Pipeline runs the triage stages over a raw event source. The stateless
// stages run in parallel workers; the deduper and limiter serialize
// internally.
type Pipeline struct {
	Normalizer *Normalizer
	PreFilter  *PreFilter
	Deduper    *Deduper
	Scorer     *KeywordScorer
	Classifier *Classifier
	Limiter    *Limiter

	CostPerCall float64
	Workers     int

	Stats    *telemetry.Stats
	Enqueue  Enqueue
	Recorder Recorder
}

// Run consumes the source until end-of-stream or ctx cancellation. One
// goroutine pulls events; Workers goroutines run the stages.
func (p *Pipeline) Run(ctx context.Context, src ingest.Source) error {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	events := make(chan ingest.RawEvent)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(events)
		for {
			ev, err := src.Next(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	})
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for ev := range events {
				p.Process(ctx, ev)
			}
			return nil
		})
	}
	return g.Wait()
}

// Process runs one raw event through every stage and returns the decision.
func (p *Pipeline) Process(ctx context.Context, ev ingest.RawEvent) Decision {
	p.Stats.RecordIngested()

	c, err := p.Normalizer.Normalize(ev)
	if err != nil {
		p.Stats.RecordValidationFailure()
		slog.Debug("event dropped", slog.Any("err", err))
		return Decision{Accepted: false, Reason: ReasonFiltered}
	}
	ctx = telemetry.WithCorrelation(ctx, c.ID)
	log := telemetry.LoggerWithCorr(ctx)

	if d := p.PreFilter.Check(c); !d.Accepted {
		p.reject(ctx, c, d, Score{})
		return d
	}
	if d := p.Deduper.Check(c); !d.Accepted {
		p.reject(ctx, c, d, Score{})
		return d
	}

	score := p.Scorer.Score(c)
	if d := p.Classifier.Check(c, &score); !d.Accepted {
		p.reject(ctx, c, d, score)
		return d
	}

	d := p.Limiter.TryAdmit(p.CostPerCall)
	tokens, spent, _ := p.Limiter.Snapshot()
	telemetry.SetBudgetGauges(tokens, spent)
	if !d.Accepted {
		p.reject(ctx, c, d, score)
		return d
	}

	p.Stats.RecordAdmitted()
	p.record(ctx, c, d, score)
	log.Debug("comment admitted",
		slog.String("user", c.UserID),
		slog.Float64("keyword_score", score.KeywordScore),
		slog.Float64("probability", score.Probability))
	if p.Enqueue != nil {
		p.Enqueue(c, score, Fingerprint(c.Content))
	}
	return d
}

func (p *Pipeline) reject(ctx context.Context, c Comment, d Decision, s Score) {
	p.Stats.RecordRejected(string(d.Reason))
	p.record(ctx, c, d, s)
}

func (p *Pipeline) record(ctx context.Context, c Comment, d Decision, s Score) {
	if p.Recorder == nil {
		return
	}
	if err := p.Recorder.RecordComment(ctx, c, d, s); err != nil {
		slog.Warn("comment persist failed", slog.Any("err", err))
	}
}
