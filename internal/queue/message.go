package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"callbridge.app/bridge/internal/model"
	"github.com/redis/go-redis/v9"
)

// Message is one notification read back from the stream.
type Message struct {
	ID           string
	Notification model.Notification
	Attempt      int
	TraceID      string
	Raw          redis.XMessage
}

// MessageProcessor delivers a queue message.
type MessageProcessor func(ctx context.Context, msg Message) error

func ParseMessage(msg redis.XMessage) (Message, error) {
	payload, err := parseString(msg.Values, "payload")
	if err != nil {
		return Message{}, err
	}

	var n model.Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Message{}, fmt.Errorf("decoding payload: %w", err)
	}
	switch n.Kind {
	case model.NotificationCall:
		if n.CallID == "" {
			return Message{}, fmt.Errorf("missing call_id")
		}
	case model.NotificationDigest:
	default:
		return Message{}, fmt.Errorf("unknown notification kind %q", n.Kind)
	}

	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	traceID, err := parseOptionalString(msg.Values, "trace_id")
	if err != nil {
		return Message{}, err
	}

	return Message{
		ID:           msg.ID,
		Notification: n,
		Attempt:      attempt,
		TraceID:      traceID,
		Raw:          msg,
	}, nil
}

func messageValues(n model.Notification, attempt int, traceID string) (map[string]any, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encoding notification: %w", err)
	}

	values := map[string]any{
		"kind":    string(n.Kind),
		"payload": string(payload),
		"attempt": attempt,
	}
	if n.CallID != "" {
		values["call_id"] = n.CallID
	}
	if traceID != "" {
		values["trace_id"] = traceID
	}
	return values, nil
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	return fmt.Sprint(raw), nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", nil
	}
	return fmt.Sprint(raw), nil
}
