package dto

import (
	"time"

	"callbridge.app/bridge/internal/model"
)

type TranscriptEntryResponse struct {
	Sequence   int       `json:"sequence"`
	Role       string    `json:"role"`
	Text       string    `json:"text"`
	RecordedAt time.Time `json:"recorded_at"`
}

type AppointmentResponse struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
}

type SummaryResponse struct {
	CallID            string                    `json:"call_id"`
	Timestamp         time.Time                 `json:"timestamp"`
	TerminalState     string                    `json:"terminal_state"`
	SummaryText       string                    `json:"summary_text"`
	Appointment       *AppointmentResponse      `json:"appointment,omitempty"`
	HasConflict       bool                      `json:"has_conflict"`
	ConflictingCallID string                    `json:"conflicting_call_id,omitempty"`
	ConflictingTime   string                    `json:"conflicting_time,omitempty"`
	Transcript        []TranscriptEntryResponse `json:"transcript"`
}

type SummaryListResponse struct {
	Summaries []SummaryResponse `json:"summaries"`
	Count     int               `json:"count"`
}

func ToSummaryResponse(s model.CallSummary) SummaryResponse {
	resp := SummaryResponse{
		CallID:            s.CallID,
		Timestamp:         s.Timestamp,
		TerminalState:     s.TerminalState,
		SummaryText:       s.SummaryText,
		HasConflict:       s.HasConflict,
		ConflictingCallID: s.ConflictingCallID,
		ConflictingTime:   s.ConflictingTime,
		Transcript:        make([]TranscriptEntryResponse, 0, len(s.Transcript)),
	}
	if s.Appointment != nil {
		resp.Appointment = &AppointmentResponse{
			Date:            s.Appointment.Date(),
			Time:            s.Appointment.TimeOfDay(),
			DurationMinutes: s.Appointment.DurationMinutes(),
		}
	}
	for _, e := range s.Transcript {
		resp.Transcript = append(resp.Transcript, TranscriptEntryResponse{
			Sequence:   e.Sequence,
			Role:       string(e.Role),
			Text:       e.Text,
			RecordedAt: e.RecordedAt,
		})
	}
	return resp
}

func ToSummaryListResponse(summaries []model.CallSummary) SummaryListResponse {
	out := SummaryListResponse{Summaries: make([]SummaryResponse, 0, len(summaries)), Count: len(summaries)}
	for _, s := range summaries {
		out.Summaries = append(out.Summaries, ToSummaryResponse(s))
	}
	return out
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Redis     string    `json:"redis"`
	Timestamp time.Time `json:"timestamp"`
}
