package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so a call's id and stream id only need to be
// attached once at the session boundary to show up in every relay, aggregator and
// finalization log line.
type LogFields struct {
	SessionID *int64  // Local session id (snowflake)
	CallID    *string // Telephony call id (Twilio CallSid)
	StreamID  *string // Telephony stream id (Twilio StreamSid)
	MessageID *string // Redis stream message ID
	State     *string // Session lifecycle state
	Component string  // Component name (OTel semantic convention style, e.g., "bridge.relay.inbound")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.SessionID != nil {
		result.SessionID = new.SessionID
	}
	if new.CallID != nil {
		result.CallID = new.CallID
	}
	if new.StreamID != nil {
		result.StreamID = new.StreamID
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.State != nil {
		result.State = new.State
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{CallID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging utterances and LLM output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
