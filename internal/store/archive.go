package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"callbridge.app/bridge/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgSummaryArchive struct {
	db Querier
}

func NewPgSummaryArchive(db Querier) *PgSummaryArchive {
	return &PgSummaryArchive{db: db}
}

const insertSummarySQL = `
INSERT INTO call_summaries (
    call_id, recorded_at, terminal_state, summary_text, transcript,
    has_conflict, conflicting_call_id, conflicting_time,
    appointment_start, appointment_minutes
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (call_id) DO NOTHING`

const selectSummarySQL = `
SELECT call_id, recorded_at, terminal_state, summary_text, transcript,
       has_conflict, conflicting_call_id, conflicting_time,
       appointment_start, appointment_minutes
FROM call_summaries
WHERE call_id = $1`

// Insert archives a summary. A second insert for the same call is a no-op.
func (a *PgSummaryArchive) Insert(ctx context.Context, s model.CallSummary) error {
	transcript, err := json.Marshal(model.CloneEntries(s.Transcript))
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}

	var (
		apptStart   *time.Time
		apptMinutes *int32
	)
	if s.Appointment != nil {
		start := s.Appointment.Start
		minutes := int32(s.Appointment.DurationMinutes())
		apptStart, apptMinutes = &start, &minutes
	}

	if _, err := a.db.Exec(ctx, insertSummarySQL,
		s.CallID,
		s.Timestamp,
		s.TerminalState,
		s.SummaryText,
		transcript,
		s.HasConflict,
		nullableString(s.ConflictingCallID),
		nullableString(s.ConflictingTime),
		apptStart,
		apptMinutes,
	); err != nil {
		return fmt.Errorf("archiving summary (call=%s): %w", s.CallID, err)
	}
	return nil
}

func (a *PgSummaryArchive) Get(ctx context.Context, callID string) (*model.CallSummary, error) {
	var (
		s           model.CallSummary
		transcript  []byte
		conflictID  *string
		conflictAt  *string
		apptStart   *time.Time
		apptMinutes *int32
	)

	err := a.db.QueryRow(ctx, selectSummarySQL, callID).Scan(
		&s.CallID,
		&s.Timestamp,
		&s.TerminalState,
		&s.SummaryText,
		&transcript,
		&s.HasConflict,
		&conflictID,
		&conflictAt,
		&apptStart,
		&apptMinutes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading archived summary (call=%s): %w", callID, err)
	}

	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &s.Transcript); err != nil {
			return nil, fmt.Errorf("decoding archived transcript (call=%s): %w", callID, err)
		}
	}
	if s.Transcript == nil {
		s.Transcript = []model.TranscriptEntry{}
	}
	if conflictID != nil {
		s.ConflictingCallID = *conflictID
	}
	if conflictAt != nil {
		s.ConflictingTime = *conflictAt
	}
	if apptStart != nil && apptMinutes != nil {
		s.Appointment = &model.Appointment{
			CallID:   s.CallID,
			Start:    *apptStart,
			Duration: time.Duration(*apptMinutes) * time.Minute,
		}
	}
	return &s, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
