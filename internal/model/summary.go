package model

import "time"

// CallSummary is produced at most once per call, during finalization.
type CallSummary struct {
	CallID            string            `json:"call_id"`
	Timestamp         time.Time         `json:"timestamp"`
	TerminalState     string            `json:"terminal_state"`
	Transcript        []TranscriptEntry `json:"transcript"`
	SummaryText       string            `json:"summary_text"`
	Appointment       *Appointment      `json:"appointment,omitempty"`
	HasConflict       bool              `json:"has_conflict"`
	ConflictingCallID string            `json:"conflicting_call_id,omitempty"`
	ConflictingTime   string            `json:"conflicting_time,omitempty"`
}

// NotificationKind distinguishes per-call notices from the daily digest.
type NotificationKind string

const (
	NotificationCall   NotificationKind = "call_summary"
	NotificationDigest NotificationKind = "daily_digest"
)

// Notification is what the core hands to the notification collaborator.
type Notification struct {
	Kind              NotificationKind `json:"kind"`
	CallID            string           `json:"call_id,omitempty"`
	SummaryText       string           `json:"summary_text"`
	HasConflict       bool             `json:"has_conflict"`
	ConflictingCallID string           `json:"conflicting_call_id,omitempty"`
	ConflictingTime   string           `json:"conflicting_time,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

func NotificationFromSummary(s CallSummary) Notification {
	return Notification{
		Kind:              NotificationCall,
		CallID:            s.CallID,
		SummaryText:       s.SummaryText,
		HasConflict:       s.HasConflict,
		ConflictingCallID: s.ConflictingCallID,
		ConflictingTime:   s.ConflictingTime,
		CreatedAt:         s.Timestamp,
	}
}
