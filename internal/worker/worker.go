// Package worker delivers queued notifications.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"callbridge.app/bridge/common/logger"
	"callbridge.app/bridge/internal/notify"
	"callbridge.app/bridge/internal/queue"
	"go.opentelemetry.io/otel/attribute"
)

// Consumer is the subset of *queue.RedisConsumer the worker drives.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

type Config struct {
	MaxAttempts     int
	DeliveryTimeout time.Duration
}

type Worker struct {
	consumer Consumer
	notifier notify.Notifier
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, notifier notify.Notifier, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Worker{
		consumer:  consumer,
		notifier:  notifier,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "bridge.worker",
	})

	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "worker started", "max_attempts", w.cfg.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				select {
				case <-ctx.Done():
				case <-w.stopCh:
				case <-time.After(time.Second):
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.ProcessMessage(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "notification delivery failed",
				"error", err,
				"message_id", msg.ID,
				"attempt", msg.Attempt)
			w.handleFailedMessage(ctx, msg, err)
		}
	}
	return nil
}

// ProcessMessage delivers one notification and acks it. Exported so the
// reclaimer can reuse it.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	msgID := msg.ID
	ctx = logger.WithLogFields(ctx, logger.LogFields{MessageID: &msgID})
	if msg.Notification.CallID != "" {
		ctx = logger.WithLogFields(ctx, logger.LogFields{CallID: logger.Ptr(msg.Notification.CallID)})
	}

	sc := logger.StartSpan(ctx, "worker.deliver_notification")
	defer sc.End()
	ctx = sc.Context()
	sc.SetAttributes(
		attribute.String("notification.kind", string(msg.Notification.Kind)),
		attribute.Int("notification.attempt", msg.Attempt),
	)

	if err := w.deliverSafe(ctx, msg); err != nil {
		sc.RecordError(err)
		return err
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// Unacked messages get reclaimed; a duplicate email beats a lost one.
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
	}

	slog.InfoContext(ctx, "notification delivered",
		"kind", string(msg.Notification.Kind),
		"attempt", msg.Attempt)
	return nil
}

func (w *Worker) deliverSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in notification delivery", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if w.cfg.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.DeliveryTimeout)
		defer cancel()
	}
	return w.notifier.Notify(ctx, msg.Notification)
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", msg.ID,
			"attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr, "message_id", msg.ID)
		}
		return
	}

	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr, "message_id", msg.ID)
	}
}
