package store_test

import (
	"context"
	"errors"
	"time"

	"callbridge.app/bridge/internal/model"
	"callbridge.app/bridge/internal/store"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MemorySummaryStore", func() {
	var (
		ctx context.Context
		s   *store.MemorySummaryStore
		t0  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = store.NewMemorySummaryStore()
		t0 = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	})

	It("keeps the first summary for a call", func() {
		ok, err := s.PutIfAbsent(ctx, model.CallSummary{CallID: "CA1", SummaryText: "first", Timestamp: t0})
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = s.PutIfAbsent(ctx, model.CallSummary{CallID: "CA1", SummaryText: "second", Timestamp: t0})
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		got, err := s.Get(ctx, "CA1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.SummaryText).To(Equal("first"))
	})

	It("returns ErrNotFound for unknown calls", func() {
		_, err := s.Get(ctx, "missing")
		Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
	})

	It("lists oldest first and drains", func() {
		_, _ = s.PutIfAbsent(ctx, model.CallSummary{CallID: "late", Timestamp: t0.Add(time.Hour)})
		_, _ = s.PutIfAbsent(ctx, model.CallSummary{CallID: "early", Timestamp: t0})

		list, err := s.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(2))
		Expect(list[0].CallID).To(Equal("early"))

		drained, err := s.Drain(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(drained).To(HaveLen(2))

		list, err = s.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(BeEmpty())
	})

	It("does not share transcript slices with callers", func() {
		entries := []model.TranscriptEntry{{Sequence: 1, Role: model.RoleCaller, Text: "hi"}}
		_, _ = s.PutIfAbsent(ctx, model.CallSummary{CallID: "CA1", Transcript: entries})
		entries[0].Text = "mutated"

		got, err := s.Get(ctx, "CA1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Transcript[0].Text).To(Equal("hi"))
	})
})
