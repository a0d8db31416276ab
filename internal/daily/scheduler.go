package daily

import (
	"context"
	"log/slog"
	"time"

	"callbridge.app/bridge/common/logger"
)

// Job is the work a Scheduler runs once per day.
type Job func(ctx context.Context) error

// Scheduler fires a Job every day at a fixed wall-clock time in loc.
type Scheduler struct {
	hour, minute int
	loc          *time.Location
	job          Job
	now          func() time.Time

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewScheduler(hour, minute int, loc *time.Location, job Job) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		hour:      hour,
		minute:    minute,
		loc:       loc,
		job:       job,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// NextRun returns the first scheduled instant strictly after t.
func (s *Scheduler) NextRun(t time.Time) time.Time {
	local := t.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.hour, s.minute, 0, 0, s.loc)
	}
	return next
}

func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.stoppedCh)
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "bridge.daily.scheduler"})

	for {
		next := s.NextRun(s.now())
		slog.InfoContext(ctx, "daily reset scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.job(ctx); err != nil {
			slog.ErrorContext(ctx, "daily reset failed", "error", err)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}
