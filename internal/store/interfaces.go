package store

import (
	"context"
	"errors"

	"callbridge.app/bridge/internal/model"
)

// ErrNotFound is returned when a requested record does not exist or has expired.
var ErrNotFound = errors.New("not found")

// ErrUnavailable is returned by the disabled transcript store.
var ErrUnavailable = errors.New("transcript store unavailable")

// TranscriptStore is the shared, TTL-bounded store of per-call transcripts.
// Save always replaces the whole record.
type TranscriptStore interface {
	Save(ctx context.Context, rec model.TranscriptRecord) error
	Load(ctx context.Context, callID string) (*model.TranscriptRecord, error)
	// ListCallIDs enumerates stored call ids in ascending order. Keys can
	// expire between enumeration and Load; callers treat that as ErrNotFound.
	ListCallIDs(ctx context.Context) ([]string, error)
	DeleteAll(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// SummaryStore holds the current day's call summaries.
type SummaryStore interface {
	// PutIfAbsent stores s unless a summary for the call already exists.
	PutIfAbsent(ctx context.Context, s model.CallSummary) (bool, error)
	Get(ctx context.Context, callID string) (*model.CallSummary, error)
	List(ctx context.Context) ([]model.CallSummary, error)
	// Drain returns every summary and empties the store.
	Drain(ctx context.Context) ([]model.CallSummary, error)
}

// SummaryArchive is the durable copy of call summaries. Optional.
type SummaryArchive interface {
	Insert(ctx context.Context, s model.CallSummary) error
	Get(ctx context.Context, callID string) (*model.CallSummary, error)
}
