// Command backend is the main entrypoint for the chat-triage service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Wires the triage pipeline: normalizer, pre-filter, dedup, keyword
//     scorer, classifier gate, and the token/budget admission controller.
//   - Starts the batch scheduler and judgment dispatcher with the configured
//     provider, response cache, and optional speech synthesis.
//   - Ingests Twitch chat (manual or auto, polling live status).
//   - Exposes a minimal HTTP server with /healthz, /status, /replies, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-triage/backend/config"
	"github.com/onnwee/chat-triage/backend/db"
	"github.com/onnwee/chat-triage/backend/ingest"
	"github.com/onnwee/chat-triage/backend/judge"
	"github.com/onnwee/chat-triage/backend/server"
	"github.com/onnwee/chat-triage/backend/telemetry"
	"github.com/onnwee/chat-triage/backend/triage"
	"github.com/onnwee/chat-triage/backend/tts"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config (fatal on invalid thresholds/limits)
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing("chat-triage", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// DB (optional: DB_DSN=disabled runs without persistence)
	var store *db.Store
	var ledger triage.BudgetStore
	if cfg.DBDsn != "disabled" {
		database, err := db.Connect(cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		store = &db.Store{DB: database}
		ledger = &db.Ledger{DB: database}
	} else {
		slog.Info("persistence disabled; running in-memory only")
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats := telemetry.NewStats()
	limiter := triage.NewLimiter(ctx, cfg.BucketCapacity, cfg.RefillRate, cfg.DailyCap, ledger)

	deduper := triage.NewDeduper(cfg.DedupWindow, cfg.DedupSimilarity, cfg.FloodLimit, cfg.FloodWindow)
	deduper.StartSweeper(ctx, cfg.DedupSweepEvery)

	// Judgment side: provider, cache, scheduler, dispatcher.
	provider, err := judge.NewProvider(cfg.JudgeProvider, judge.ProviderConfig{
		APIKey:  cfg.JudgeAPIKey,
		APIBase: cfg.JudgeAPIBase,
		Model:   cfg.JudgeModel,
	})
	if err != nil {
		slog.Error("judge provider init failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("judge provider selected", slog.String("provider", provider.Name()))

	cache := judge.NewCache(cfg.CacheSize, cfg.CacheTTL)
	scheduler := judge.NewScheduler(cfg.MaxBatchSize, cfg.MaxBatchWait)

	var speech tts.Client
	if cfg.TTSBaseURL != "" {
		speech = tts.NewHTTPClient(cfg.TTSBaseURL, cfg.TTSAPIKey, cfg.TTSVoice, cfg.DataDir, cfg.TTSTimeout)
	}

	dispatcher := &judge.Dispatcher{
		Provider:    provider,
		Cache:       cache,
		Limiter:     limiter,
		Stats:       stats,
		CostPerCall: cfg.CostPerCall,
		Timeout:     cfg.JudgeTimeout,
		MaxRetries:  cfg.JudgeMaxRetries,
		Concurrency: cfg.JudgeConcurrency,
		OnResult: func(rctx context.Context, it judge.Item, v judge.Verdict) {
			log := telemetry.LoggerWithCorr(rctx)
			if !v.HasValue || v.ReplyText == "" {
				log.Debug("no-value verdict", slog.String("user", it.Comment.UserID))
				return
			}
			stats.RecordReply()
			audioPath := ""
			if speech != nil {
				path, err := speech.Synthesize(rctx, v.ReplyText)
				if err != nil {
					telemetry.SynthesisFailures.Inc()
					log.Warn("speech synthesis failed", slog.Any("err", err))
				} else {
					audioPath = path
				}
			}
			if store != nil {
				if err := store.InsertReply(rctx, it.Comment.ID, v.ReplyText, v.Confidence, v.Cached, audioPath); err != nil {
					log.Warn("reply persist failed", slog.Any("err", err))
				}
			}
			log.Info("reply generated",
				slog.String("user", it.Comment.DisplayName),
				slog.Bool("cached", v.Cached),
				slog.String("reply", v.ReplyText))
		},
	}
	go scheduler.Run(ctx)
	go dispatcher.Run(ctx, scheduler.Batches())

	// Triage pipeline feeding the scheduler.
	pipeline := &triage.Pipeline{
		Normalizer:  &triage.Normalizer{},
		PreFilter:   &triage.PreFilter{MinLen: cfg.MinLen, MaxLen: cfg.MaxLen, EmojiCeiling: cfg.EmojiCeiling},
		Deduper:     deduper,
		Scorer:      triage.NewKeywordScorer(cfg.PositiveKeywords, cfg.NegativeKeywords),
		Classifier:  &triage.Classifier{Threshold: cfg.LocalThreshold},
		Limiter:     limiter,
		CostPerCall: cfg.CostPerCall,
		Workers:     cfg.PipelineWorkers,
		Stats:       stats,
		Enqueue: func(c triage.Comment, s triage.Score, fingerprint string) {
			scheduler.Enqueue(judge.Item{Comment: c, Score: s, Fingerprint: fingerprint})
		},
	}
	if store != nil {
		pipeline.Recorder = store
	}

	runSession := func(sctx context.Context, src ingest.Source) {
		if err := pipeline.Run(sctx, src); err != nil {
			slog.Error("pipeline session error", slog.Any("err", err))
		}
		scheduler.Flush()
	}

	// Chat ingestion: auto mode polls live status; manual mode connects
	// immediately when creds are present.
	if os.Getenv("INGEST_AUTO_START") == "1" {
		go ingest.StartAutoIngest(ctx, cfg, runSession)
	} else if err := cfg.ValidateIngestReady(); err == nil {
		src := ingest.NewTwitchSource(cfg.TwitchChannel, cfg.TwitchBotUsername, cfg.TwitchOAuthToken, cfg.IngestBuffer)
		go src.Start(ctx)
		go runSession(ctx, src)
	} else {
		slog.Info("chat ingestion disabled (missing twitch creds and auto not enabled)")
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/replies/metrics)
	handlers := &server.Handlers{
		Store: store,
		Stats: stats,
		Budget: func() (float64, float64, float64) {
			return limiter.Snapshot()
		},
		TTS: speech,
	}
	go func() {
		if err := server.Start(ctx, handlers, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
