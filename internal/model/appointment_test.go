package model_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"callbridge.app/bridge/internal/model"
)

func at(date, clock string, minutes int) model.Appointment {
	start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, time.UTC)
	if err != nil {
		panic(err)
	}
	return model.Appointment{Start: start, Duration: time.Duration(minutes) * time.Minute}
}

var _ = Describe("Appointment", func() {
	It("exposes its half-open interval", func() {
		a := at("2025-03-01", "14:00", 30)
		Expect(a.End()).To(Equal(a.Start.Add(30 * time.Minute)))
		Expect(a.Date()).To(Equal("2025-03-01"))
		Expect(a.TimeOfDay()).To(Equal("14:00"))
		Expect(a.DurationMinutes()).To(Equal(30))
	})

	DescribeTable("Overlaps is symmetric",
		func(a, b model.Appointment, expected bool) {
			Expect(a.Overlaps(b)).To(Equal(expected))
			Expect(b.Overlaps(a)).To(Equal(expected))
		},
		Entry("partial overlap", at("2025-03-01", "14:00", 30), at("2025-03-01", "14:15", 30), true),
		Entry("containment", at("2025-03-01", "09:00", 120), at("2025-03-01", "10:00", 15), true),
		Entry("identical", at("2025-03-01", "14:00", 30), at("2025-03-01", "14:00", 30), true),
		Entry("touching endpoints", at("2025-03-01", "14:00", 30), at("2025-03-01", "14:30", 30), false),
		Entry("disjoint", at("2025-03-01", "14:00", 30), at("2025-03-01", "15:00", 30), false),
		Entry("same time on different days", at("2025-03-01", "14:00", 30), at("2025-03-02", "14:00", 30), false),
	)
})
