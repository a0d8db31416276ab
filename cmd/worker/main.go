package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callbridge.app/bridge/common/id"
	"callbridge.app/bridge/common/logger"
	"callbridge.app/bridge/common/otel"
	"callbridge.app/bridge/core/config"
	"callbridge.app/bridge/internal/notify"
	"callbridge.app/bridge/internal/queue"
	"callbridge.app/bridge/internal/worker"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Setup(cfg)

	slog.InfoContext(ctx, "notification worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Redis.NotificationGroup,
		"consumer_name", cfg.Redis.Consumer)

	// Initialize snowflake ID generator (use different node ID than server)
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	// Initialize Redis
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Redis.NotificationStream)

	consumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:       cfg.Redis.NotificationStream,
		Group:        cfg.Redis.NotificationGroup,
		Consumer:     cfg.Redis.Consumer,
		DLQStream:    cfg.Redis.NotificationDLQ,
		BatchSize:    10,
		Block:        5 * time.Second,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.Mail.Enabled() {
		notifier = notify.NewMailer(cfg.Mail)
		slog.InfoContext(ctx, "smtp delivery enabled", "host", cfg.Mail.SMTPHost, "to", cfg.Mail.To)
	} else {
		slog.InfoContext(ctx, "smtp not configured, notifications will be logged")
	}

	w := worker.New(consumer, notifier, worker.Config{
		MaxAttempts:     5,
		DeliveryTimeout: 30 * time.Second,
	})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Redis.NotificationStream,
		Group:     cfg.Redis.NotificationGroup,
		Consumer:  cfg.Redis.Consumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reclaimer.Stop()
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
 ██████╗ █████╗ ██╗     ██╗         ███╗   ██╗ ██████╗ ████████╗██╗███████╗██╗   ██╗
██╔════╝██╔══██╗██║     ██║         ████╗  ██║██╔═══██╗╚══██╔══╝██║██╔════╝╚██╗ ██╔╝
██║     ███████║██║     ██║         ██╔██╗ ██║██║   ██║   ██║   ██║█████╗   ╚████╔╝
██║     ██╔══██║██║     ██║         ██║╚██╗██║██║   ██║   ██║   ██║██╔══╝    ╚██╔╝
╚██████╗██║  ██║███████╗███████╗    ██║ ╚████║╚██████╔╝   ██║   ██║██║        ██║
 ╚═════╝╚═╝  ╚═╝╚══════╝╚══════╝    ╚═╝  ╚═══╝ ╚═════╝    ╚═╝   ╚═╝╚═╝        ╚═╝
`
