package model

import "time"

// Role attributes an utterance to one side of the call.
type Role string

const (
	RoleCaller Role = "caller"
	RoleAgent  Role = "agent"
)

func (r Role) Valid() bool {
	return r == RoleCaller || r == RoleAgent
}

// TranscriptEntry is one utterance. Entries are append-only: once appended
// they are never mutated, and Sequence strictly increases within a call.
type TranscriptEntry struct {
	Sequence   int       `json:"sequence"`
	Role       Role      `json:"role"`
	Text       string    `json:"text"`
	ItemID     string    `json:"item_id,omitempty"` // backend item id, used for dedup
	RecordedAt time.Time `json:"recorded_at"`
}

// TranscriptRecord is the unit persisted in the shared transcript store,
// always written as a whole (atomic replace).
type TranscriptRecord struct {
	CallID    string            `json:"call_id"`
	StartedAt time.Time         `json:"started_at"`
	Entries   []TranscriptEntry `json:"entries"`
}

// CloneEntries returns a copy safe to hand to another goroutine.
func CloneEntries(entries []TranscriptEntry) []TranscriptEntry {
	if len(entries) == 0 {
		return []TranscriptEntry{}
	}
	out := make([]TranscriptEntry, len(entries))
	copy(out, entries)
	return out
}
