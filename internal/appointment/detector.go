package appointment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"callbridge.app/bridge/internal/model"
	"callbridge.app/bridge/internal/store"
	"golang.org/x/sync/errgroup"
)

const defaultParallelism = 4

// Conflict identifies another call today whose appointment overlaps.
type Conflict struct {
	CallID      string
	Appointment model.Appointment
}

// Time is the conflicting appointment's start as HH:MM.
func (c Conflict) Time() string {
	return c.Appointment.TimeOfDay()
}

type Detector struct {
	store       store.TranscriptStore
	extractor   Extractor
	loc         *time.Location
	now         func() time.Time
	parallelism int

	mu    sync.Mutex
	cache map[string]cachedExtraction
}

// cachedExtraction is valid while the transcript still has the same length
// and last sequence it had when extracted.
type cachedExtraction struct {
	entries int
	lastSeq int
	result  Result
}

func NewDetector(st store.TranscriptStore, extractor Extractor, loc *time.Location) *Detector {
	if loc == nil {
		loc = time.Local
	}
	return &Detector{
		store:       st,
		extractor:   extractor,
		loc:         loc,
		now:         time.Now,
		parallelism: defaultParallelism,
		cache:       make(map[string]cachedExtraction),
	}
}

func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// WithParallelism bounds how many extractions run at once.
func (d *Detector) WithParallelism(n int) *Detector {
	if n > 0 {
		d.parallelism = n
	}
	return d
}

// Remember records an extraction already made for callID so later scans
// reuse it. Failed extractions are not kept.
func (d *Detector) Remember(callID string, entries []model.TranscriptEntry, res Result) {
	if res.Outcome == OutcomeFailed {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache[callID] = cachedExtraction{entries: len(entries), lastSeq: lastSequence(entries), result: res}
}

func (d *Detector) cached(callID string, entries []model.TranscriptEntry) (Result, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cache[callID]
	if !ok || c.entries != len(entries) || c.lastSeq != lastSequence(entries) {
		return Result{}, false
	}
	return c.result, true
}

// prune drops cached calls that are no longer in the store.
func (d *Detector) prune(ids []string) {
	live := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		live[id] = struct{}{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for id := range d.cache {
		if _, ok := live[id]; !ok {
			delete(d.cache, id)
		}
	}
}

// Detect scans the other transcripts started today and returns the first, in
// call id order, whose appointment overlaps candidate, or nil. Extractions run
// concurrently and cached ones are reused. If ctx expires mid-scan, an
// overlap already found is still reported; otherwise the context error is.
func (d *Detector) Detect(ctx context.Context, candidate model.Appointment) (*Conflict, error) {
	ids, err := d.store.ListCallIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}
	d.prune(ids)

	today := d.now().In(d.loc).Format(model.DateLayout)

	var others []*model.TranscriptRecord
	for _, callID := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if callID == candidate.CallID {
			continue
		}

		rec, err := d.store.Load(ctx, callID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				slog.WarnContext(ctx, "skipping unreadable transcript", "other_call_id", callID, "error", err)
			}
			continue
		}
		if day, ok := d.recordDay(rec); !ok || day != today {
			continue
		}
		others = append(others, rec)
	}

	results := make([]Result, len(others))
	done := make([]bool, len(others))
	extracted := 0

	var g errgroup.Group
	g.SetLimit(d.parallelism)
	for i, rec := range others {
		if res, ok := d.cached(rec.CallID, rec.Entries); ok {
			results[i], done[i] = res, true
			continue
		}
		extracted++
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res := d.extractor.Extract(ctx, rec.CallID, rec.Entries)
			d.Remember(rec.CallID, rec.Entries, res)
			results[i], done[i] = res, true
			return nil
		})
	}
	_ = g.Wait()

	for i, rec := range others {
		result := results[i]
		if !done[i] || result.Outcome != OutcomeFound {
			continue
		}
		if candidate.Overlaps(*result.Appointment) {
			slog.InfoContext(ctx, "appointment conflict detected",
				"other_call_id", rec.CallID,
				"other_time", result.Appointment.TimeOfDay(),
				"candidate_time", candidate.TimeOfDay())
			return &Conflict{CallID: rec.CallID, Appointment: *result.Appointment}, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "no appointment conflict",
		"transcripts_checked", len(others),
		"extractions", extracted)
	return nil, nil
}

func lastSequence(entries []model.TranscriptEntry) int {
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].Sequence
}

// recordDay is the local calendar day the call started, falling back to the
// first entry when the start time was never recorded.
func (d *Detector) recordDay(rec *model.TranscriptRecord) (string, bool) {
	started := rec.StartedAt
	if started.IsZero() && len(rec.Entries) > 0 {
		started = rec.Entries[0].RecordedAt
	}
	if started.IsZero() {
		return "", false
	}
	return started.In(d.loc).Format(model.DateLayout), true
}
