// Package ingest adapts live-chat transports into the pipeline's raw event
// stream. The pipeline only depends on Source; the Twitch IRC adapter is the
// concrete production implementation.
package ingest

import (
	"context"
	"io"
	"time"
)

// RawEvent is the producer-owned payload handed to the normalizer. Kind uses
// the platform's vocabulary; the normalizer maps it onto the canonical enum.
type RawEvent struct {
	Kind        string
	Content     string
	UserID      string
	DisplayName string
	ReceivedAt  time.Time
	Meta        map[string]string
}

// Source yields raw events until the stream ends. Next returns io.EOF when
// the source is exhausted (e.g., the stream went offline) and ctx.Err() when
// the caller cancels.
type Source interface {
	Next(ctx context.Context) (RawEvent, error)
}

// ChanSource exposes a plain channel as a Source; used by tests and by the
// replay tooling.
type ChanSource struct {
	C chan RawEvent
}

func (s *ChanSource) Next(ctx context.Context) (RawEvent, error) {
	select {
	case <-ctx.Done():
		return RawEvent{}, ctx.Err()
	case ev, ok := <-s.C:
		if !ok {
			return RawEvent{}, io.EOF
		}
		return ev, nil
	}
}
