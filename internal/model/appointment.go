package model

import "time"

const (
	DefaultAppointmentDuration = 30 * time.Minute

	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Appointment is derived from a transcript, never observed directly.
// Its effective interval is the half-open range [Start, Start+Duration).
type Appointment struct {
	CallID   string        `json:"call_id"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
}

func (a Appointment) End() time.Time {
	return a.Start.Add(a.Duration)
}

func (a Appointment) Date() string {
	return a.Start.Format(DateLayout)
}

func (a Appointment) TimeOfDay() string {
	return a.Start.Format(TimeLayout)
}

func (a Appointment) DurationMinutes() int {
	return int(a.Duration / time.Minute)
}

// Overlaps reports whether both appointments fall on the same calendar day and
// their half-open intervals intersect. Touching endpoints (a.End == b.Start)
// do not overlap. The relation is symmetric.
func (a Appointment) Overlaps(b Appointment) bool {
	if a.Date() != b.Date() {
		return false
	}
	return a.Start.Before(b.End()) && b.Start.Before(a.End())
}
