package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"callbridge.app/bridge/common/id"
	"callbridge.app/bridge/common/logger"
	"callbridge.app/bridge/internal/appointment"
	"callbridge.app/bridge/internal/model"
	"callbridge.app/bridge/internal/notify"
	"callbridge.app/bridge/internal/store"
	"callbridge.app/bridge/internal/summary"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const unboundPrefix = "unbound-"

// ConflictDetector is satisfied by *appointment.Detector.
type ConflictDetector interface {
	Detect(ctx context.Context, candidate model.Appointment) (*appointment.Conflict, error)
}

// extractionCache is implemented by detectors that can reuse the extraction
// made for a finalized call when later calls scan it.
type extractionCache interface {
	Remember(callID string, entries []model.TranscriptEntry, res appointment.Result)
}

type PipelineConfig struct {
	Extractor  appointment.Extractor
	Detector   ConflictDetector
	Summarizer summary.Summarizer
	Summaries  store.SummaryStore
	// Archive is optional.
	Archive       store.SummaryArchive
	Notifier      notify.Notifier
	NotifyTimeout time.Duration
	// DetectTimeout bounds the conflict scan on its own so it cannot use up
	// the finalize deadline.
	DetectTimeout time.Duration
}

// Pipeline is the production Finalizer: recover, extract, detect, summarize,
// store, archive, notify.
type Pipeline struct {
	cfg PipelineConfig
	now func() time.Time
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Summarizer == nil {
		cfg.Summarizer = summary.TranscriptSummarizer{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.LogNotifier{}
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	if cfg.DetectTimeout <= 0 {
		cfg.DetectTimeout = 20 * time.Second
	}
	return &Pipeline{cfg: cfg, now: time.Now}
}

func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

func (p *Pipeline) Finalize(ctx context.Context, s *Session) (*model.CallSummary, error) {
	sc := logger.StartSpan(ctx, "session.finalize")
	defer sc.End()
	ctx = sc.Context()

	start := time.Now()
	entries := s.Transcript().Recover(ctx)

	callID := s.CallID()
	bound := callID != ""
	if !bound {
		callID = id.NewString(unboundPrefix)
		slog.WarnContext(ctx, "finalizing a call that never started", "synthetic_call_id", callID)
	}
	sc.SetAttributes(
		attribute.String("call.id", callID),
		attribute.Bool("call.bound", bound),
		attribute.Int("transcript.entries", len(entries)),
	)

	result := model.CallSummary{
		CallID:        callID,
		Timestamp:     p.now(),
		TerminalState: string(s.TerminalState()),
		Transcript:    entries,
	}

	// Appointment checks and summarization make independent model calls.
	var g errgroup.Group
	if bound && p.cfg.Extractor != nil {
		g.Go(func() error {
			p.checkAppointment(ctx, &result)
			return nil
		})
	}
	var summaryText string
	g.Go(func() error {
		summaryText = p.cfg.Summarizer.Summarize(ctx, callID, entries)
		return nil
	})
	_ = g.Wait()
	result.SummaryText = summaryText

	stored, err := p.cfg.Summaries.PutIfAbsent(ctx, result)
	if err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("storing summary: %w", err)
	}
	if !stored {
		slog.WarnContext(ctx, "summary already recorded for call, skipping notification")
		existing, err := p.cfg.Summaries.Get(ctx, callID)
		if err != nil {
			return nil, fmt.Errorf("loading existing summary: %w", err)
		}
		return existing, nil
	}

	if p.cfg.Archive != nil {
		if err := p.cfg.Archive.Insert(ctx, result); err != nil {
			slog.WarnContext(ctx, "summary archive failed", "error", err)
		}
	}

	p.notify(ctx, result)

	slog.InfoContext(ctx, "call finalized",
		"entries", len(entries),
		"has_appointment", result.Appointment != nil,
		"has_conflict", result.HasConflict,
		"duration_ms", time.Since(start).Milliseconds())
	return &result, nil
}

func (p *Pipeline) checkAppointment(ctx context.Context, result *model.CallSummary) {
	extracted := p.cfg.Extractor.Extract(ctx, result.CallID, result.Transcript)
	if c, ok := p.cfg.Detector.(extractionCache); ok {
		c.Remember(result.CallID, result.Transcript, extracted)
	}
	switch extracted.Outcome {
	case appointment.OutcomeFailed:
		slog.WarnContext(ctx, "appointment extraction failed, treating as none", "error", extracted.Err)
		return
	case appointment.OutcomeNone:
		return
	}

	result.Appointment = extracted.Appointment
	if p.cfg.Detector == nil {
		return
	}

	dctx, cancel := context.WithTimeout(ctx, p.cfg.DetectTimeout)
	defer cancel()

	conflict, err := p.cfg.Detector.Detect(dctx, *extracted.Appointment)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
		case errors.Is(err, context.DeadlineExceeded):
			slog.WarnContext(ctx, "conflict detection timed out, reporting no conflict",
				"detect_timeout", p.cfg.DetectTimeout)
		default:
			slog.WarnContext(ctx, "conflict detection failed, reporting no conflict", "error", err)
		}
		return
	}
	if conflict != nil {
		result.HasConflict = true
		result.ConflictingCallID = conflict.CallID
		result.ConflictingTime = conflict.Time()
	}
}

func (p *Pipeline) notify(ctx context.Context, result model.CallSummary) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.NotifyTimeout)
	defer cancel()

	if err := p.cfg.Notifier.Notify(ctx, model.NotificationFromSummary(result)); err != nil {
		slog.ErrorContext(ctx, "call notification failed", "error", err)
	}
}
