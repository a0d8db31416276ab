// Package summary produces the human-readable text of a call summary.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"callbridge.app/bridge/common/llm"
	"callbridge.app/bridge/internal/model"
)

// Summarizer never fails; implementations degrade to a transcript listing.
type Summarizer interface {
	Summarize(ctx context.Context, callID string, entries []model.TranscriptEntry) string
}

// TranscriptSummarizer lists the conversation line by line.
type TranscriptSummarizer struct{}

func (TranscriptSummarizer) Summarize(_ context.Context, _ string, entries []model.TranscriptEntry) string {
	if len(entries) == 0 {
		return "No conversation was recorded."
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("- %s: %s", strings.ToUpper(string(e.Role)), e.Text))
	}
	return "Call Conversation:\n\n" + strings.Join(lines, "\n")
}

type llmSummary struct {
	Summary     string   `json:"summary" jsonschema_description:"Two or three sentences on who called and why"`
	ActionItems []string `json:"action_items" jsonschema_description:"Follow-ups the owner has to take care of, empty when there are none"`
}

var summarySchema = llm.GenerateSchema[llmSummary]()

const summarySystemPrompt = `You summarize phone calls answered by an assistant on behalf of its owner.
Write for the owner. Be brief and factual, and never invent details that are not in the transcript.`

// LLMSummarizer asks the model for a short summary and appends the transcript
// listing. Any capability failure yields the listing alone.
type LLMSummarizer struct {
	llm      llm.Client
	fallback TranscriptSummarizer
}

func NewLLMSummarizer(client llm.Client) *LLMSummarizer {
	return &LLMSummarizer{llm: client}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, callID string, entries []model.TranscriptEntry) string {
	listing := s.fallback.Summarize(ctx, callID, entries)
	if len(entries) == 0 {
		return listing
	}

	var resp llmSummary
	_, err := s.llm.Chat(ctx, llm.Request{
		SystemPrompt: summarySystemPrompt,
		UserPrompt:   listing,
		SchemaName:   "call_summary",
		Schema:       summarySchema,
		MaxTokens:    400,
		Temperature:  llm.Temp(0.2),
	}, &resp)
	if err != nil {
		slog.WarnContext(ctx, "summary generation failed, using transcript listing",
			"error", err,
			"error_kind", llm.DescribeError(err))
		return listing
	}

	text := strings.TrimSpace(resp.Summary)
	if text == "" {
		return listing
	}

	var b strings.Builder
	b.WriteString(text)
	if len(resp.ActionItems) > 0 {
		b.WriteString("\n\nAction items:\n")
		for _, item := range resp.ActionItems {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(item))
		}
	}
	b.WriteString("\n\n")
	b.WriteString(listing)
	return strings.TrimRight(b.String(), "\n")
}
