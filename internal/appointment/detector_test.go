package appointment_test

import (
	"context"
	"errors"
	"regexp"
	"time"

	"callbridge.app/bridge/common/llm"
	"callbridge.app/bridge/internal/appointment"
	"callbridge.app/bridge/internal/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// Transcripts in these tests carry their appointment as "at HH:MM for N",
// which the fake model reads back.
var slotPattern = regexp.MustCompile(`at (\d\d:\d\d) for (\d+)`)

func slotModel() *mockLLM {
	return &mockLLM{chatFn: func(_ context.Context, req llm.Request) (string, error) {
		m := slotPattern.FindStringSubmatch(req.UserPrompt)
		if m == nil {
			return `{"has_appointment":false,"date":"","time":"","duration_minutes":0}`, nil
		}
		return `{"has_appointment":true,"date":"2026-03-04","time":"` + m[1] + `","duration_minutes":` + m[2] + `}`, nil
	}}
}

var _ = Describe("Detector", func() {
	var (
		ctx       context.Context
		st        *mockTranscriptStore
		client    *mockLLM
		extractor *appointment.LLMExtractor
		detector  *appointment.Detector
		now       time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC)
		st = newMockTranscriptStore()
		client = slotModel()
		extractor = appointment.NewLLMExtractor(client, time.UTC).WithClock(func() time.Time { return now })
		detector = appointment.NewDetector(st, extractor, time.UTC).WithClock(func() time.Time { return now })
	})

	save := func(callID string, started time.Time, text string) {
		_ = st.Save(ctx, model.TranscriptRecord{
			CallID:    callID,
			StartedAt: started,
			Entries:   []model.TranscriptEntry{{Sequence: 1, Role: model.RoleCaller, Text: text}},
		})
	}

	candidateFor := func(callID, text string) model.Appointment {
		result := extractor.Extract(ctx, callID, []model.TranscriptEntry{{Sequence: 1, Role: model.RoleCaller, Text: text}})
		Expect(result.Outcome).To(Equal(appointment.OutcomeFound))
		return *result.Appointment
	}

	morning := func() time.Time { return time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC) }

	It("flags an overlapping booking from an earlier call today", func() {
		save("CA1", morning(), "meet at 15:00 for 60")
		candidate := candidateFor("CA2", "meet at 15:30 for 30")

		conflict, err := detector.Detect(ctx, candidate)
		Expect(err).NotTo(HaveOccurred())
		Expect(conflict).NotTo(BeNil())
		Expect(conflict.CallID).To(Equal("CA1"))
		Expect(conflict.Time()).To(Equal("15:00"))
	})

	It("treats back-to-back bookings as free", func() {
		save("CA1", morning(), "meet at 15:00 for 60")
		candidate := candidateFor("CA3", "meet at 16:00 for 30")

		conflict, err := detector.Detect(ctx, candidate)
		Expect(err).NotTo(HaveOccurred())
		Expect(conflict).To(BeNil())
	})

	It("is symmetric", func() {
		save("CA2", morning(), "meet at 15:30 for 30")
		candidate := candidateFor("CA1", "meet at 15:00 for 60")

		conflict, err := detector.Detect(ctx, candidate)
		Expect(err).NotTo(HaveOccurred())
		Expect(conflict).NotTo(BeNil())
		Expect(conflict.CallID).To(Equal("CA2"))
	})

	It("never compares a call with itself", func() {
		save("CA1", morning(), "meet at 15:00 for 60")
		candidate := candidateFor("CA1", "meet at 15:00 for 60")

		conflict, err := detector.Detect(ctx, candidate)
		Expect(err).NotTo(HaveOccurred())
		Expect(conflict).To(BeNil())
	})

	It("ignores calls from another day", func() {
		save("CA1", morning().Add(-24*time.Hour), "meet at 15:00 for 60")
		candidate := candidateFor("CA2", "meet at 15:30 for 30")

		conflict, err := detector.Detect(ctx, candidate)
		Expect(err).NotTo(HaveOccurred())
		Expect(conflict).To(BeNil())
	})

	It("skips transcripts that expired between listing and loading", func() {
		st.loadErr["CA0"] = errors.New("redis: connection pool timeout")
		save("CA1", morning(), "meet at 15:00 for 60")
		candidate := candidateFor("CA2", "meet at 15:30 for 30")

		conflict, err := detector.Detect(ctx, candidate)
		Expect(err).NotTo(HaveOccurred())
		Expect(conflict.CallID).To(Equal("CA1"))
	})

	It("skips other calls whose extraction finds nothing", func() {
		save("CA1", morning(), "just calling to say hi")
		candidate := candidateFor("CA2", "meet at 15:30 for 30")

		conflict, err := detector.Detect(ctx, candidate)
		Expect(err).NotTo(HaveOccurred())
		Expect(conflict).To(BeNil())
	})

	It("reports the first overlap in call id order", func() {
		save("CA9", morning(), "meet at 15:15 for 30")
		save("CA5", morning(), "meet at 15:00 for 60")
		candidate := candidateFor("CA7", "meet at 15:30 for 30")

		conflict, err := detector.Detect(ctx, candidate)
		Expect(err).NotTo(HaveOccurred())
		Expect(conflict.CallID).To(Equal("CA5"))
	})

	It("falls back to the first entry when the start time is missing", func() {
		_ = st.Save(ctx, model.TranscriptRecord{
			CallID: "CA1",
			Entries: []model.TranscriptEntry{{
				Sequence: 1, Role: model.RoleCaller, Text: "meet at 15:00 for 60", RecordedAt: morning(),
			}},
		})
		candidate := candidateFor("CA2", "meet at 15:30 for 30")

		conflict, err := detector.Detect(ctx, candidate)
		Expect(err).NotTo(HaveOccurred())
		Expect(conflict).NotTo(BeNil())
	})

	It("keeps call id order when extractions run concurrently", func() {
		detector.WithParallelism(2)
		for _, id := range []string{"CA1", "CA2", "CA3", "CA4"} {
			save(id, morning(), "just calling to say hi")
		}
		save("CA6", morning(), "meet at 15:15 for 30")
		save("CA5", morning(), "meet at 15:00 for 60")
		candidate := candidateFor("CA9", "meet at 15:30 for 30")

		conflict, err := detector.Detect(ctx, candidate)
		Expect(err).NotTo(HaveOccurred())
		Expect(conflict.CallID).To(Equal("CA5"))
	})

	It("reuses earlier extractions instead of asking the model again", func() {
		save("CA1", morning(), "meet at 10:00 for 30")
		save("CA2", morning(), "just calling to say hi")
		candidate := candidateFor("CA3", "meet at 15:30 for 30")

		_, err := detector.Detect(ctx, candidate)
		Expect(err).NotTo(HaveOccurred())
		calls := client.callCount()

		conflict, err := detector.Detect(ctx, candidate)
		Expect(err).NotTo(HaveOccurred())
		Expect(conflict).To(BeNil())
		Expect(client.callCount()).To(Equal(calls))
	})

	It("uses a remembered extraction for a finalized call", func() {
		entries := []model.TranscriptEntry{{Sequence: 1, Role: model.RoleCaller, Text: "meet at 15:00 for 60"}}
		_ = st.Save(ctx, model.TranscriptRecord{CallID: "CA1", StartedAt: morning(), Entries: entries})
		detector.Remember("CA1", entries, extractor.Extract(ctx, "CA1", entries))
		candidate := candidateFor("CA2", "meet at 15:30 for 30")
		calls := client.callCount()

		conflict, err := detector.Detect(ctx, candidate)
		Expect(err).NotTo(HaveOccurred())
		Expect(conflict.CallID).To(Equal("CA1"))
		Expect(client.callCount()).To(Equal(calls))
	})

	It("extracts again once a remembered transcript has grown", func() {
		entries := []model.TranscriptEntry{{Sequence: 1, Role: model.RoleCaller, Text: "hello"}}
		detector.Remember("CA1", entries, appointment.Result{Outcome: appointment.OutcomeNone})
		_ = st.Save(ctx, model.TranscriptRecord{
			CallID:    "CA1",
			StartedAt: morning(),
			Entries: append(entries, model.TranscriptEntry{
				Sequence: 2, Role: model.RoleCaller, Text: "meet at 15:00 for 60",
			}),
		})
		candidate := candidateFor("CA2", "meet at 15:30 for 30")

		conflict, err := detector.Detect(ctx, candidate)
		Expect(err).NotTo(HaveOccurred())
		Expect(conflict.CallID).To(Equal("CA1"))
	})

	It("does not remember failed extractions", func() {
		save("CA1", morning(), "meet at 15:00 for 60")
		entries := st.records["CA1"].Entries
		detector.Remember("CA1", entries, appointment.Result{Outcome: appointment.OutcomeFailed, Err: errors.New("timeout")})
		candidate := candidateFor("CA2", "meet at 15:30 for 30")

		conflict, err := detector.Detect(ctx, candidate)
		Expect(err).NotTo(HaveOccurred())
		Expect(conflict.CallID).To(Equal("CA1"))
	})

	It("returns the context error when the budget runs out before any overlap", func() {
		client.chatFn = func(ctx context.Context, _ llm.Request) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}
		save("CA1", morning(), "meet at 15:00 for 60")
		candidate := model.Appointment{CallID: "CA2", Start: morning().Add(6 * time.Hour), Duration: time.Hour}

		tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		conflict, err := detector.Detect(tctx, candidate)
		Expect(err).To(MatchError(context.DeadlineExceeded))
		Expect(conflict).To(BeNil())
	})

	It("surfaces enumeration failures", func() {
		st.listErr = errors.New("scan failed")
		_, err := detector.Detect(ctx, model.Appointment{CallID: "CA1"})
		Expect(err).To(MatchError(ContainSubstring("scan failed")))
	})
})
