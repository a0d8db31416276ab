// Package daily runs the once-a-day wrap-up: a digest of the day's calls
// followed by a purge of the shared transcript store.
package daily

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"callbridge.app/bridge/common/logger"
	"callbridge.app/bridge/internal/model"
	"callbridge.app/bridge/internal/notify"
	"callbridge.app/bridge/internal/store"
)

// Resetter clears the day's state. Summaries are drained before the digest is
// sent and put back if the notifier rejects it, so a failed digest is retried
// with the next run.
type Resetter struct {
	summaries   store.SummaryStore
	transcripts store.TranscriptStore
	notifier    notify.Notifier
	loc         *time.Location
	now         func() time.Time
}

func NewResetter(summaries store.SummaryStore, transcripts store.TranscriptStore, notifier notify.Notifier, loc *time.Location) *Resetter {
	if loc == nil {
		loc = time.Local
	}
	return &Resetter{
		summaries:   summaries,
		transcripts: transcripts,
		notifier:    notifier,
		loc:         loc,
		now:         time.Now,
	}
}

func (r *Resetter) WithClock(now func() time.Time) *Resetter {
	r.now = now
	return r
}

// Reset sends the digest and purges transcripts. A digest failure does not
// stop the purge; both errors are reported.
func (r *Resetter) Reset(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "bridge.daily"})
	sc := logger.StartSpan(ctx, "daily.reset")
	defer sc.End()
	ctx = sc.Context()

	digestErr := r.sendDigest(ctx)
	if digestErr != nil {
		sc.RecordError(digestErr)
	}

	deleted, err := r.transcripts.DeleteAll(ctx)
	if err != nil {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "transcript purge failed", "error", err)
		if digestErr != nil {
			return fmt.Errorf("daily reset: %w; purge: %w", digestErr, err)
		}
		return fmt.Errorf("purging transcripts: %w", err)
	}
	slog.InfoContext(ctx, "daily reset complete", "transcripts_deleted", deleted)

	return digestErr
}

func (r *Resetter) sendDigest(ctx context.Context) error {
	summaries, err := r.summaries.Drain(ctx)
	if err != nil {
		return fmt.Errorf("draining summaries: %w", err)
	}
	if len(summaries) == 0 {
		slog.InfoContext(ctx, "no calls today, skipping digest")
		return nil
	}

	n := model.Notification{
		Kind:        model.NotificationDigest,
		SummaryText: r.digestText(summaries),
		HasConflict: anyConflict(summaries),
		CreatedAt:   r.now(),
	}
	if err := r.notifier.Notify(ctx, n); err != nil {
		r.restore(ctx, summaries)
		return fmt.Errorf("sending digest: %w", err)
	}

	slog.InfoContext(ctx, "daily digest sent", "calls", len(summaries))
	return nil
}

func (r *Resetter) restore(ctx context.Context, summaries []model.CallSummary) {
	for _, s := range summaries {
		if _, err := r.summaries.PutIfAbsent(ctx, s); err != nil {
			slog.ErrorContext(ctx, "restoring summary after digest failure", "error", err, "summary_call_id", s.CallID)
		}
	}
}

func (r *Resetter) digestText(summaries []model.CallSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d call(s) on %s\n", len(summaries), r.now().In(r.loc).Format(model.DateLayout))
	for _, s := range summaries {
		fmt.Fprintf(&b, "\n[%s] %s (%s)\n", s.Timestamp.In(r.loc).Format(model.TimeLayout), s.CallID, s.TerminalState)
		if s.Appointment != nil {
			fmt.Fprintf(&b, "Appointment: %s %s for %d min\n", s.Appointment.Date(), s.Appointment.TimeOfDay(), s.Appointment.DurationMinutes())
		}
		if s.HasConflict {
			fmt.Fprintf(&b, "Conflict: call %s at %s\n", s.ConflictingCallID, s.ConflictingTime)
		}
		b.WriteString(logger.Truncate(s.SummaryText, 500))
		b.WriteString("\n")
	}
	return b.String()
}

func anyConflict(summaries []model.CallSummary) bool {
	for _, s := range summaries {
		if s.HasConflict {
			return true
		}
	}
	return false
}
