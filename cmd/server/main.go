package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callbridge.app/bridge/common/id"
	"callbridge.app/bridge/common/llm"
	"callbridge.app/bridge/common/logger"
	"callbridge.app/bridge/common/otel"
	"callbridge.app/bridge/core/config"
	"callbridge.app/bridge/core/db"
	"callbridge.app/bridge/internal/appointment"
	"callbridge.app/bridge/internal/backend"
	"callbridge.app/bridge/internal/daily"
	"callbridge.app/bridge/internal/http/handler"
	"callbridge.app/bridge/internal/http/middleware"
	httprouter "callbridge.app/bridge/internal/http/router"
	"callbridge.app/bridge/internal/notify"
	"callbridge.app/bridge/internal/queue"
	"callbridge.app/bridge/internal/relay"
	"callbridge.app/bridge/internal/session"
	"callbridge.app/bridge/internal/store"
	"callbridge.app/bridge/internal/summary"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "bridge starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	loc, err := cfg.Location()
	if err != nil {
		slog.ErrorContext(ctx, "invalid time zone", "error", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	// Without redis the bridge still takes calls: transcripts stay in memory
	// and cross-call conflict detection is off.
	var (
		transcripts store.TranscriptStore
		notifier    notify.Notifier
	)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "redis unavailable, running without shared transcripts", "error", err)
		transcripts = store.DisabledTranscriptStore{}
		notifier = notify.LogNotifier{}
	} else {
		slog.InfoContext(ctx, "redis connected", "stream", cfg.Redis.NotificationStream)
		transcripts = store.NewRedisTranscriptStore(redisClient, cfg.Redis.ConversationPrefix, cfg.Redis.TranscriptTTL)
		notifier = notify.NewStreamNotifier(queue.NewRedisProducer(redisClient, cfg.Redis.NotificationStream))
	}

	var archive store.SummaryArchive
	if cfg.DB.Enabled() {
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		if err := database.EnsureSchema(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to apply schema", "error", err)
			os.Exit(1)
		}
		archive = store.NewPgSummaryArchive(database.Pool())
		slog.InfoContext(ctx, "database connected, archiving summaries")
	}

	summaries := store.NewMemorySummaryStore()

	pipelineCfg := session.PipelineConfig{
		Summaries:     summaries,
		Archive:       archive,
		Notifier:      notifier,
		NotifyTimeout: cfg.Relay.NotifyTimeout,
		DetectTimeout: cfg.Relay.DetectTimeout,
	}
	if cfg.ExtractionLLM.Enabled() {
		llmClient, err := llm.New(llm.Config{
			APIKey:  cfg.ExtractionLLM.APIKey,
			BaseURL: cfg.ExtractionLLM.BaseURL,
			Model:   cfg.ExtractionLLM.Model,
			Timeout: 30 * time.Second,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to create llm client", "error", err)
			os.Exit(1)
		}
		extractor := appointment.NewLLMExtractor(llmClient, loc)
		pipelineCfg.Extractor = extractor
		pipelineCfg.Detector = appointment.NewDetector(transcripts, extractor, loc)
		pipelineCfg.Summarizer = summary.NewLLMSummarizer(llmClient)
		slog.InfoContext(ctx, "appointment extraction enabled", "model", llmClient.Model())
	} else {
		slog.InfoContext(ctx, "appointment extraction disabled (no llm api key)")
	}

	manager := session.NewManager(transcripts, session.NewPipeline(pipelineCfg))

	resetter := daily.NewResetter(summaries, transcripts, notifier, loc)
	scheduler := daily.NewScheduler(cfg.Daily.Hour, cfg.Daily.Minute, loc, resetter.Reset)
	go scheduler.Run(ctx)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, httprouter.Handlers{
		Call: handler.NewCallHandler(handler.CallConfig{
			OwnerName:       cfg.Owner.Name,
			PublicHost:      cfg.PublicHost,
			MaxFrameBytes:   cfg.Relay.MaxFrameBytes,
			FinalizeTimeout: cfg.Relay.FinalizeTimeout,
		}, manager, relay.New(relay.Config{
			ReadTimeout:         cfg.Relay.ReadTimeout,
			WriteTimeout:        cfg.Relay.WriteTimeout,
			PingInterval:        cfg.Relay.PingInterval,
			QueueSize:           cfg.Relay.OutboundQueueSize,
			BackpressureTimeout: cfg.Relay.BackpressureTimeout,
		}), backendDialer(cfg)),
		Health:  handler.NewHealthHandler(transcripts),
		Summary: handler.NewSummaryHandler(summaries, archive),
	})

	// No WriteTimeout: media stream requests last as long as the call.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Relay.FinalizeTimeout+10*time.Second)
	defer cancel()

	scheduler.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	// Hijacked media streams are not tracked by the http server.
	manager.CancelAll(shutdownCtx)
	if err := manager.Wait(shutdownCtx); err != nil {
		slog.WarnContext(shutdownCtx, "sessions still finalizing at shutdown", "count", manager.Count())
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func backendDialer(cfg config.Config) handler.BackendDialer {
	instructions := cfg.Realtime.Instructions
	if instructions == "" {
		instructions = backend.DefaultInstructions(cfg.Owner.Name, cfg.Owner.Info)
	}

	dial := backend.DialConfig{
		URL:              cfg.Realtime.URL,
		Model:            cfg.Realtime.Model,
		APIKey:           cfg.Realtime.APIKey,
		HandshakeTimeout: cfg.Relay.HandshakeTimeout,
		Options: backend.Options{
			ReadTimeout:  cfg.Relay.ReadTimeout,
			WriteTimeout: cfg.Relay.WriteTimeout,
		},
	}
	sess := backend.SessionConfig{
		Instructions: instructions,
		Voice:        cfg.Realtime.Voice,
	}

	return func(ctx context.Context) (relay.Backend, error) {
		return backend.Connect(ctx, dial, sess)
	}
}

func setupRouter(cfg config.Config, handlers httprouter.Handlers) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, handlers)

	return router
}

const banner = `
 ██████╗ █████╗ ██╗     ██╗     ██████╗ ██████╗ ██╗██████╗  ██████╗ ███████╗
██╔════╝██╔══██╗██║     ██║     ██╔══██╗██╔══██╗██║██╔══██╗██╔════╝ ██╔════╝
██║     ███████║██║     ██║     ██████╔╝██████╔╝██║██║  ██║██║  ███╗█████╗
██║     ██╔══██║██║     ██║     ██╔══██╗██╔══██╗██║██║  ██║██║   ██║██╔══╝
╚██████╗██║  ██║███████╗███████╗██████╔╝██║  ██║██║██████╔╝╚██████╔╝███████╗
 ╚═════╝╚═╝  ╚═╝╚══════╝╚══════╝╚═════╝ ╚═╝  ╚═╝╚═╝╚═════╝  ╚═════╝ ╚══════╝
`
