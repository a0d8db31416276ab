package queue

import (
	"context"
	"fmt"
	"log/slog"

	"callbridge.app/bridge/internal/model"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

type Producer interface {
	Enqueue(ctx context.Context, n model.Notification) error
}

type redisProducer struct {
	client *redis.Client
	stream string
}

func NewRedisProducer(client *redis.Client, stream string) Producer {
	return &redisProducer{
		client: client,
		stream: stream,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, n model.Notification) error {
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	values, err := messageValues(n, 1, traceID)
	if err != nil {
		return err
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	slog.InfoContext(ctx, "notification enqueued",
		"kind", string(n.Kind),
		"stream", p.stream,
		"message_id", id)
	return nil
}
