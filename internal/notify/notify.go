// Package notify hands finished call summaries to the owner.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"callbridge.app/bridge/common/logger"
	"callbridge.app/bridge/internal/model"
	"callbridge.app/bridge/internal/queue"
)

type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// StreamNotifier enqueues notifications for the worker to deliver.
type StreamNotifier struct {
	producer queue.Producer
}

func NewStreamNotifier(producer queue.Producer) *StreamNotifier {
	return &StreamNotifier{producer: producer}
}

func (s *StreamNotifier) Notify(ctx context.Context, n model.Notification) error {
	if err := s.producer.Enqueue(ctx, n); err != nil {
		return fmt.Errorf("enqueue %s notification: %w", n.Kind, err)
	}
	return nil
}

// LogNotifier only logs. Used when there is no queue or no mail transport.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n model.Notification) error {
	slog.InfoContext(ctx, "notification",
		"kind", string(n.Kind),
		"summary_call_id", n.CallID,
		"has_conflict", n.HasConflict,
		"conflicting_call_id", n.ConflictingCallID,
		"conflicting_time", n.ConflictingTime,
		"summary", logger.Truncate(n.SummaryText, 500))
	return nil
}
