package scheduling

import (
	"errors"
	"time"
)

// ErrConflict is returned when a booking would collide with an existing one.
var ErrConflict = errors.New("slot already taken")

// Booking is an existing or candidate reservation of a doctor's time: an
// appointment (End zero, one slot long) or a shift (explicit End).
type Booking struct {
	ID       string
	DoctorID string
	Date     time.Time
	Start    Clock
	End      Clock
	Status   string
}

// Blocking reports whether the booking still holds its time. Cancelled
// appointments and shifts free their slot.
func (b Booking) Blocking() bool {
	return b.Status != CitaCancelada && b.Status != TurnoCancelado
}

// Interval returns [start, end). A booking without End lasts length.
func (b Booking) Interval(length time.Duration) (Clock, Clock) {
	if b.End > b.Start {
		return b.Start, b.End
	}
	if length <= 0 {
		length = DefaultSlotLength
	}
	return b.Start, b.Start.Add(length)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd Clock) bool {
	return aStart < bEnd && bStart < aEnd
}

type MatchMode int

const (
	// MatchOverlap treats bookings as intervals.
	MatchOverlap MatchMode = iota
	// MatchExact only flags an identical doctor, date and start time.
	MatchExact
)

// Checker detects double bookings. The zero value uses interval overlap with
// one-hour appointments.
type Checker struct {
	Mode   MatchMode
	Length time.Duration
}

// FirstConflict returns the first existing booking that collides with
// candidate. Bookings sharing the candidate's ID are skipped so that an
// update does not conflict with itself.
func (c Checker) FirstConflict(existing []Booking, candidate Booking) (Booking, bool) {
	cs, ce := candidate.Interval(c.Length)
	for _, b := range existing {
		if !b.Blocking() {
			continue
		}
		if candidate.ID != "" && b.ID == candidate.ID {
			continue
		}
		if b.DoctorID != candidate.DoctorID || !SameDate(b.Date, candidate.Date) {
			continue
		}
		switch c.Mode {
		case MatchExact:
			if b.Start == candidate.Start {
				return b, true
			}
		default:
			bs, be := b.Interval(c.Length)
			if Overlaps(cs, ce, bs, be) {
				return b, true
			}
		}
	}
	return Booking{}, false
}

func (c Checker) HasConflict(existing []Booking, candidate Booking) bool {
	_, ok := c.FirstConflict(existing, candidate)
	return ok
}

// HasConflict uses the default overlap checker.
func HasConflict(existing []Booking, candidate Booking) bool {
	return Checker{}.HasConflict(existing, candidate)
}
