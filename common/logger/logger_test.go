package logger_test

import (
	"bytes"
	"context"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"callbridge.app/bridge/common/logger"
)

var _ = Describe("LogFields", func() {
	It("returns empty fields for a bare context", func() {
		Expect(logger.GetLogFields(context.Background())).To(Equal(logger.LogFields{}))
	})

	It("merges newer non-empty values over existing ones", func() {
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			CallID:    logger.Ptr("CA1"),
			Component: "bridge.relay",
		})
		ctx = logger.WithLogFields(ctx, logger.LogFields{
			StreamID:  logger.Ptr("MZ1"),
			Component: "bridge.relay.inbound",
		})

		fields := logger.GetLogFields(ctx)
		Expect(*fields.CallID).To(Equal("CA1"))
		Expect(*fields.StreamID).To(Equal("MZ1"))
		Expect(fields.Component).To(Equal("bridge.relay.inbound"))
	})

	It("adds context fields to emitted records", func() {
		var buf bytes.Buffer
		log := slog.New(logger.NewTraceHandler(slog.NewTextHandler(&buf, nil)))
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			CallID: logger.Ptr("CA42"),
			State:  logger.Ptr("streaming"),
		})

		log.InfoContext(ctx, "hello")

		Expect(buf.String()).To(ContainSubstring("call_id=CA42"))
		Expect(buf.String()).To(ContainSubstring("state=streaming"))
	})
})

var _ = DescribeTable("Truncate",
	func(in string, max int, expected string) {
		Expect(logger.Truncate(in, max)).To(Equal(expected))
	},
	Entry("short string unchanged", "hi", 5, "hi"),
	Entry("exact length unchanged", "hello", 5, "hello"),
	Entry("long string truncated", "hello world", 5, "hello..."),
)
