package ingest

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/onnwee/chat-triage/backend/config"
	"github.com/onnwee/chat-triage/backend/twitchapi"
)

// RunSession consumes a source until it is exhausted; the pipeline supplies
// the implementation. Declared here so the auto-starter does not import the
// pipeline package.
type RunSession func(ctx context.Context, src Source)

// StartAutoIngest polls Twitch stream status and starts a chat ingestion
// session when the configured channel goes live, stopping it when the channel
// goes offline. Env knob: INGEST_AUTO_POLL_INTERVAL (default 30s).
func StartAutoIngest(ctx context.Context, cfg *config.Config, run RunSession) {
	if cfg.TwitchChannel == "" {
		slog.Info("auto ingest: TWITCH_CHANNEL empty; abort")
		return
	}
	if err := cfg.ValidateIngestReady(); err != nil {
		slog.Info("auto ingest: not configured; abort", slog.Any("err", err))
		return
	}
	if cfg.TwitchClientID == "" || cfg.TwitchClientSecret == "" {
		slog.Info("auto ingest: missing client id/secret; abort")
		return
	}

	pollEvery := 30 * time.Second
	if v := os.Getenv("INGEST_AUTO_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			pollEvery = d
		}
	}

	ts := &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}
	helix := &twitchapi.HelixClient{AppTokenSource: ts, ClientID: cfg.TwitchClientID}

	// Resolve the channel once up front; a failed lookup usually means a
	// typo'd channel name or bad app credentials, worth surfacing before the
	// poll loop spins on it.
	if id, err := helix.GetUserID(ctx, cfg.TwitchChannel); err != nil {
		slog.Warn("auto ingest: channel lookup failed",
			slog.String("channel", cfg.TwitchChannel), slog.Any("err", err))
	} else {
		slog.Info("auto ingest: channel resolved",
			slog.String("channel", cfg.TwitchChannel), slog.String("user_id", id))
	}

	var running bool
	var sessCancel context.CancelFunc
	sessDone := make(chan struct{})

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	slog.Info("auto ingest: started poller", slog.Duration("interval", pollEvery), slog.String("channel", cfg.TwitchChannel))
	for {
		if ctx.Err() != nil {
			if sessCancel != nil {
				sessCancel()
			}
			return
		}
		streams, err := helix.GetStreams(ctx, cfg.TwitchChannel)
		switch {
		case err != nil:
			slog.Debug("auto ingest: streams req", slog.Any("err", err))
		case len(streams) == 0:
			if running {
				slog.Info("auto ingest: stream ended; stopping session", slog.String("channel", cfg.TwitchChannel))
				sessCancel()
				<-sessDone
				running = false
			}
		default:
			if !running {
				slog.Info("auto ingest: stream live; starting session",
					slog.String("channel", cfg.TwitchChannel),
					slog.Time("started_at", streams[0].StartedAt.UTC()),
					slog.String("title", streams[0].Title))
				sessCtx, cancel := context.WithCancel(ctx)
				sessCancel = cancel
				sessDone = make(chan struct{})
				src := NewTwitchSource(cfg.TwitchChannel, cfg.TwitchBotUsername, cfg.TwitchOAuthToken, cfg.IngestBuffer)
				go src.Start(sessCtx)
				go func() {
					defer close(sessDone)
					run(sessCtx, src)
					slog.Info("auto ingest: session goroutine exited", slog.String("channel", cfg.TwitchChannel))
				}()
				running = true
			}
		}
		select {
		case <-ctx.Done():
			if sessCancel != nil {
				sessCancel()
			}
			return
		case <-ticker.C:
		}
	}
}
