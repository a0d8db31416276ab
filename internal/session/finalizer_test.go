package session_test

import (
	"context"
	"errors"
	"strings"
	"time"

	"callbridge.app/bridge/internal/appointment"
	"callbridge.app/bridge/internal/model"
	"callbridge.app/bridge/internal/session"
	"callbridge.app/bridge/internal/store"
	"callbridge.app/bridge/internal/summary"
	"callbridge.app/bridge/internal/transcript"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Pipeline", func() {
	var (
		ctx       context.Context
		st        *memTranscriptStore
		summaries *store.MemorySummaryStore
		extractor *mockExtractor
		detector  *mockDetector
		notifier  *mockNotifier
		archive   *mockArchive
		pipeline  *session.Pipeline
		t0        time.Time
		appt      model.Appointment
	)

	newSession := func() *session.Session {
		return session.New(transcript.New(st), pipeline)
	}

	BeforeEach(func() {
		ctx = context.Background()
		st = newMemTranscriptStore()
		summaries = store.NewMemorySummaryStore()
		t0 = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
		appt = model.Appointment{CallID: "CA2", Start: t0.Add(6*time.Hour + 30*time.Minute), Duration: 30 * time.Minute}

		extractor = &mockExtractor{extractFn: func(string, []model.TranscriptEntry) appointment.Result {
			return appointment.Result{Outcome: appointment.OutcomeFound, Appointment: &appt}
		}}
		detector = &mockDetector{detectFn: func(context.Context, model.Appointment) (*appointment.Conflict, error) {
			return &appointment.Conflict{
				CallID:      "CA1",
				Appointment: model.Appointment{CallID: "CA1", Start: t0.Add(6 * time.Hour), Duration: time.Hour},
			}, nil
		}}
		notifier = &mockNotifier{}
		archive = &mockArchive{}

		pipeline = session.NewPipeline(session.PipelineConfig{
			Extractor:  extractor,
			Detector:   detector,
			Summarizer: summary.TranscriptSummarizer{},
			Summaries:  summaries,
			Archive:    archive,
			Notifier:   notifier,
		}).WithClock(func() time.Time { return t0 })
	})

	It("stores, archives and notifies a conflicting booking", func() {
		s := newSession()
		s.Bind(ctx, "CA2", "MZ2", t0)
		_, _ = s.Transcript().Append(ctx, model.RoleCaller, "Can we do 15:30?", "item_1")
		s.End(session.StateStopped)

		result, err := s.Finalize(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.CallID).To(Equal("CA2"))
		Expect(result.TerminalState).To(Equal("stopped"))
		Expect(result.HasConflict).To(BeTrue())
		Expect(result.ConflictingCallID).To(Equal("CA1"))
		Expect(result.ConflictingTime).To(Equal("15:00"))
		Expect(result.Appointment).To(Equal(&appt))
		Expect(result.SummaryText).To(ContainSubstring("CALLER: Can we do 15:30?"))

		stored, err := summaries.Get(ctx, "CA2")
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.HasConflict).To(BeTrue())

		Expect(archive.inserted).To(HaveLen(1))
		Expect(notifier.sent).To(HaveLen(1))
		Expect(notifier.sent[0].Kind).To(Equal(model.NotificationCall))
		Expect(notifier.sent[0].ConflictingTime).To(Equal("15:00"))
	})

	It("reports no conflict when extraction fails", func() {
		extractor.extractFn = func(string, []model.TranscriptEntry) appointment.Result {
			return appointment.Result{Outcome: appointment.OutcomeFailed, Err: errors.New("timeout")}
		}
		s := newSession()
		s.Bind(ctx, "CA2", "MZ2", t0)
		_, _ = s.Transcript().Append(ctx, model.RoleCaller, "hi", "")

		result, err := s.Finalize(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.HasConflict).To(BeFalse())
		Expect(result.Appointment).To(BeNil())
		Expect(detector.calls).To(BeZero())
		Expect(notifier.count()).To(Equal(1))
	})

	It("reports no conflict when detection errors", func() {
		detector.detectFn = func(context.Context, model.Appointment) (*appointment.Conflict, error) {
			return nil, errors.New("scan failed")
		}
		s := newSession()
		s.Bind(ctx, "CA2", "MZ2", t0)
		_, _ = s.Transcript().Append(ctx, model.RoleCaller, "hi", "")

		result, err := s.Finalize(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.HasConflict).To(BeFalse())
		Expect(result.Appointment).NotTo(BeNil())
	})

	It("bounds conflict detection on its own budget so summarization still lands", func() {
		var detectErr, summarizeErr error
		detector.detectFn = func(ctx context.Context, _ model.Appointment) (*appointment.Conflict, error) {
			<-ctx.Done()
			detectErr = ctx.Err()
			return nil, ctx.Err()
		}
		summarizer := &mockSummarizer{summarizeFn: func(ctx context.Context, _ string, _ []model.TranscriptEntry) string {
			summarizeErr = ctx.Err()
			return "model summary"
		}}
		pipeline = session.NewPipeline(session.PipelineConfig{
			Extractor:     extractor,
			Detector:      detector,
			Summarizer:    summarizer,
			Summaries:     summaries,
			Notifier:      notifier,
			DetectTimeout: 50 * time.Millisecond,
		}).WithClock(func() time.Time { return t0 })

		s := newSession()
		s.Bind(ctx, "CA2", "MZ2", t0)
		_, _ = s.Transcript().Append(ctx, model.RoleCaller, "Can we do 15:30?", "item_1")

		fctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		started := time.Now()
		result, err := s.Finalize(fctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(time.Since(started)).To(BeNumerically("<", 2*time.Second))
		Expect(detectErr).To(MatchError(context.DeadlineExceeded))
		Expect(summarizeErr).NotTo(HaveOccurred())
		Expect(result.SummaryText).To(Equal("model summary"))
		Expect(result.Appointment).To(Equal(&appt))
		Expect(result.HasConflict).To(BeFalse())
		Expect(fctx.Err()).NotTo(HaveOccurred())
	})

	It("hands the call's own extraction to the detector for reuse", func() {
		s := newSession()
		s.Bind(ctx, "CA2", "MZ2", t0)
		_, _ = s.Transcript().Append(ctx, model.RoleCaller, "Can we do 15:30?", "item_1")

		_, err := s.Finalize(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(detector.remembered).To(Equal([]string{"CA2"}))
	})

	It("summarizes a call that never started under a synthetic id", func() {
		s := newSession()
		s.End(session.StateDisconnected)

		result, err := s.Finalize(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.HasPrefix(result.CallID, "unbound-")).To(BeTrue())
		Expect(result.HasConflict).To(BeFalse())
		Expect(result.Transcript).To(BeEmpty())
		Expect(extractor.calls).To(BeZero())
		Expect(notifier.count()).To(Equal(1))
	})

	It("recovers the persisted transcript when memory is empty", func() {
		_ = st.Save(ctx, model.TranscriptRecord{
			CallID:  "CA2",
			Entries: []model.TranscriptEntry{{Sequence: 1, Role: model.RoleCaller, Text: "from the store"}},
		})
		s := newSession()
		s.Bind(ctx, "CA2", "MZ2", t0)

		result, err := s.Finalize(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Transcript).To(HaveLen(1))
		Expect(result.SummaryText).To(ContainSubstring("from the store"))
	})

	It("does not notify twice for the same call", func() {
		first := newSession()
		first.Bind(ctx, "CA2", "MZ2", t0)
		_, _ = first.Finalize(ctx)

		second := newSession()
		second.Bind(ctx, "CA2", "MZ2", t0)
		result, err := second.Finalize(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.CallID).To(Equal("CA2"))
		Expect(notifier.count()).To(Equal(1))
	})

	It("completes when notification and archive fail", func() {
		notifier.err = errors.New("redis down")
		archive.err = errors.New("pg down")
		s := newSession()
		s.Bind(ctx, "CA2", "MZ2", t0)

		result, err := s.Finalize(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).NotTo(BeNil())
		_, err = summaries.Get(ctx, "CA2")
		Expect(err).NotTo(HaveOccurred())
	})
})
