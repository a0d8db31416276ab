// Package appointment derives a proposed appointment from a call transcript
// and checks it against the other calls recorded today.
package appointment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"callbridge.app/bridge/common/llm"
	"callbridge.app/bridge/internal/model"
)

type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeFound
	// OutcomeFailed behaves like OutcomeNone; Err says why.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeFailed:
		return "failed"
	default:
		return "none"
	}
}

type Result struct {
	Outcome     Outcome
	Appointment *model.Appointment
	Err         error
}

type Extractor interface {
	Extract(ctx context.Context, callID string, entries []model.TranscriptEntry) Result
}

const maxAppointmentDuration = 24 * time.Hour

type extraction struct {
	HasAppointment  bool   `json:"has_appointment" jsonschema_description:"True only if the caller and agent discussed a specific appointment or meeting time"`
	Date            string `json:"date" jsonschema_description:"Appointment date as YYYY-MM-DD, empty when there is no appointment"`
	Time            string `json:"time" jsonschema_description:"Appointment start time as HH:MM in 24h format, empty when there is no appointment"`
	DurationMinutes int    `json:"duration_minutes" jsonschema_description:"Appointment length in minutes, 0 when not mentioned"`
}

var extractionSchema = llm.GenerateSchema[extraction]()

const extractionSystemPrompt = `You read phone call transcripts and extract the single appointment the caller proposed or agreed to.
Resolve relative dates ("tomorrow", "next Tuesday") against the date given in the prompt.
If no concrete date and time were discussed, set has_appointment to false.`

type LLMExtractor struct {
	llm llm.Client
	loc *time.Location
	now func() time.Time
}

func NewLLMExtractor(client llm.Client, loc *time.Location) *LLMExtractor {
	if loc == nil {
		loc = time.Local
	}
	return &LLMExtractor{llm: client, loc: loc, now: time.Now}
}

func (e *LLMExtractor) WithClock(now func() time.Time) *LLMExtractor {
	e.now = now
	return e
}

// Extract makes a single capability call. It is never retried.
func (e *LLMExtractor) Extract(ctx context.Context, callID string, entries []model.TranscriptEntry) Result {
	if len(entries) == 0 {
		return Result{Outcome: OutcomeNone}
	}

	var resp extraction
	start := time.Now()
	_, err := e.llm.Chat(ctx, llm.Request{
		SystemPrompt: extractionSystemPrompt,
		UserPrompt:   e.buildPrompt(entries),
		SchemaName:   "appointment_extraction",
		Schema:       extractionSchema,
		MaxTokens:    200,
		Temperature:  llm.Temp(0),
	}, &resp)
	if err != nil {
		slog.WarnContext(ctx, "appointment extraction failed",
			"transcript_call_id", callID,
			"error", err,
			"error_kind", llm.DescribeError(err))
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("appointment extraction: %w", err)}
	}

	result := e.validate(callID, resp)
	slog.DebugContext(ctx, "appointment extracted",
		"transcript_call_id", callID,
		"outcome", result.Outcome.String(),
		"latency_ms", time.Since(start).Milliseconds())
	return result
}

func (e *LLMExtractor) validate(callID string, resp extraction) Result {
	if !resp.HasAppointment {
		return Result{Outcome: OutcomeNone}
	}

	start, err := time.ParseInLocation(model.DateLayout+" "+model.TimeLayout,
		strings.TrimSpace(resp.Date)+" "+strings.TrimSpace(resp.Time), e.loc)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("invalid appointment date/time %q %q: %w", resp.Date, resp.Time, err)}
	}

	duration := time.Duration(resp.DurationMinutes) * time.Minute
	switch {
	case duration <= 0:
		duration = model.DefaultAppointmentDuration
	case duration > maxAppointmentDuration:
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("implausible appointment duration %d minutes", resp.DurationMinutes)}
	}

	return Result{
		Outcome: OutcomeFound,
		Appointment: &model.Appointment{
			CallID:   callID,
			Start:    start,
			Duration: duration,
		},
	}
}

func (e *LLMExtractor) buildPrompt(entries []model.TranscriptEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today is %s.\n\nTranscript:\n", e.now().In(e.loc).Format("Monday, 2006-01-02"))
	for _, entry := range entries {
		fmt.Fprintf(&b, "%s: %s\n", entry.Role, entry.Text)
	}
	return b.String()
}
