// Package transcript accumulates one call's utterances and mirrors them to the
// shared transcript store.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"callbridge.app/bridge/common/logger"
	"callbridge.app/bridge/internal/model"
	"callbridge.app/bridge/internal/store"
)

// ErrClosed is returned by Append once the call has been finalized.
var ErrClosed = errors.New("transcript closed")

type Aggregator struct {
	store store.TranscriptStore
	now   func() time.Time

	mu        sync.Mutex
	callID    string
	startedAt time.Time
	entries   []model.TranscriptEntry
	seenItems map[string]struct{}
	closed    bool
}

func New(st store.TranscriptStore) *Aggregator {
	return &Aggregator{
		store:     st,
		now:       time.Now,
		entries:   []model.TranscriptEntry{},
		seenItems: make(map[string]struct{}),
	}
}

// WithClock overrides the entry timestamp source.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Bind attaches the telephony call id. Entries appended before binding are
// persisted now. Only the first Bind takes effect.
func (a *Aggregator) Bind(ctx context.Context, callID string, startedAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.callID != "" || callID == "" {
		return
	}
	a.callID = callID
	a.startedAt = startedAt

	if len(a.entries) > 0 {
		a.persistLocked(ctx)
	}
}

// Append records one utterance. It reports false when the utterance was
// dropped as a duplicate or as empty. The store write happens before Append
// returns; a failed write is logged and the entry stays in memory.
func (a *Aggregator) Append(ctx context.Context, role model.Role, text, itemID string) (bool, error) {
	if !role.Valid() {
		return false, fmt.Errorf("invalid role %q", role)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return false, ErrClosed
	}

	if itemID != "" {
		if _, dup := a.seenItems[itemID]; dup {
			return false, nil
		}
	} else if n := len(a.entries); n > 0 {
		last := a.entries[n-1]
		if last.Role == role && last.Text == text {
			return false, nil
		}
	}

	entry := model.TranscriptEntry{
		Sequence:   a.nextSequenceLocked(),
		Role:       role,
		Text:       text,
		ItemID:     itemID,
		RecordedAt: a.now(),
	}
	a.entries = append(a.entries, entry)
	if itemID != "" {
		a.seenItems[itemID] = struct{}{}
	}

	slog.DebugContext(ctx, "utterance appended",
		"sequence", entry.Sequence,
		"role", string(role),
		"text", logger.Truncate(text, 80))

	if a.callID != "" {
		a.persistLocked(ctx)
	}
	return true, nil
}

// Recover adopts the persisted transcript when nothing is held in memory, so a
// call whose in-memory state was lost can still be summarized.
func (a *Aggregator) Recover(ctx context.Context) []model.TranscriptEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.entries) > 0 || a.callID == "" {
		return model.CloneEntries(a.entries)
	}

	rec, err := a.store.Load(ctx, a.callID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "transcript recovery failed", "error", err)
		}
		return model.CloneEntries(a.entries)
	}

	a.entries = model.CloneEntries(rec.Entries)
	for _, e := range a.entries {
		if e.ItemID != "" {
			a.seenItems[e.ItemID] = struct{}{}
		}
	}
	if len(a.entries) > 0 {
		slog.InfoContext(ctx, "transcript recovered from store", "entries", len(a.entries))
	}
	return model.CloneEntries(a.entries)
}

// Load reads another call's persisted transcript. A missing or expired key
// yields an empty slice.
func (a *Aggregator) Load(ctx context.Context, callID string) ([]model.TranscriptEntry, error) {
	rec, err := a.store.Load(ctx, callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []model.TranscriptEntry{}, nil
		}
		return nil, err
	}
	return model.CloneEntries(rec.Entries), nil
}

func (a *Aggregator) Snapshot() []model.TranscriptEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return model.CloneEntries(a.entries)
}

func (a *Aggregator) CallID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.callID
}

func (a *Aggregator) StartedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startedAt
}

// Close rejects all further appends.
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}

func (a *Aggregator) nextSequenceLocked() int {
	if n := len(a.entries); n > 0 {
		return a.entries[n-1].Sequence + 1
	}
	return 1
}

func (a *Aggregator) persistLocked(ctx context.Context) {
	rec := model.TranscriptRecord{
		CallID:    a.callID,
		StartedAt: a.startedAt,
		Entries:   model.CloneEntries(a.entries),
	}
	if err := a.store.Save(ctx, rec); err != nil {
		slog.WarnContext(ctx, "transcript persist failed",
			"error", err,
			"entries", len(rec.Entries))
	}
}
