// Package scheduling holds the booking rules shared by the portal server and
// its API client: wall-clock slot parsing and validation, weekly availability
// resolution, status machines for appointments, shifts and shift-change
// requests, and booking conflict detection.
package scheduling

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date wire format used by every endpoint.
const DateLayout = "2006-01-02"

// DefaultSlotLength is the granularity of bookable appointment slots.
const DefaultSlotLength = time.Hour

var (
	ErrInvalidSlot  = errors.New("invalid slot")
	ErrInvalidClock = errors.New("time must be HH:MM (24h)")
	ErrInvalidDate  = errors.New("date must be YYYY-MM-DD")
)

// Kind distinguishes patient appointments from staff shifts. Only
// appointments are subject to clinic-closed days.
type Kind int

const (
	KindAppointment Kind = iota
	KindShift
)

// ClosedWeekdays are days on which the clinic takes no appointments.
var ClosedWeekdays = map[time.Weekday]bool{
	time.Sunday: true,
}

// Clock is a local wall-clock time of day, stored as minutes since midnight.
// No timezone is attached: comparisons are plain string/minute comparisons.
type Clock int

// ParseClock parses "HH:MM". A trailing ":SS" (as returned by Postgres TIME
// columns) is accepted and discarded.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Clock(h*60 + m), nil
}

// MustClock is ParseClock for constants; it panics on malformed input.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add returns c shifted by d, truncated to whole minutes.
func (c Clock) Add(d time.Duration) Clock {
	return c + Clock(d/time.Minute)
}

// ParseDate parses a calendar date. The result is midnight UTC so that
// Weekday and equality depend only on the calendar day.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// DateOf drops the time-of-day and location of t, keeping its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders the calendar day of t.
func FormatDate(t time.Time) string {
	return DateOf(t).Format(DateLayout)
}

// SameDate reports calendar-day equality.
func SameDate(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}

// Window is a half-open wall-clock interval [Start, End).
type Window struct {
	Start Clock
	End   Clock
}

// Fits reports whether a slot of the given length starting at start lies
// entirely inside the window.
func (w Window) Fits(start Clock, length time.Duration) bool {
	return start >= w.Start && start.Add(length) <= w.End
}

// DefaultWindows is the opening schedule assumed for doctors who have not
// declared any availability for a weekday. Expanded hourly it yields
// DefaultSlate.
var DefaultWindows = []Window{
	{Start: MustClock("08:00"), End: MustClock("13:00")},
	{Start: MustClock("14:00"), End: MustClock("18:00")},
}

// DefaultSlate is the fixed list of hours offered when nothing better is known.
func DefaultSlate() []Clock {
	return []Clock{
		MustClock("08:00"), MustClock("09:00"), MustClock("10:00"), MustClock("11:00"), MustClock("12:00"),
		MustClock("14:00"), MustClock("15:00"), MustClock("16:00"), MustClock("17:00"),
	}
}

// Slot is a single bookable unit for one doctor.
type Slot struct {
	DoctorID string
	Date     time.Time
	Time     Clock
}

// ValidateSlot checks the basic well-formedness of a slot request against the
// doctor's rules. today is the caller's current date. The returned error wraps
// ErrInvalidSlot.
//
// A past date is rejected before rules are consulted. When the doctor has no
// active rule for the weekday, DefaultWindows apply.
func ValidateSlot(today time.Time, s Slot, rules []Rule, kind Kind, length time.Duration) error {
	if DateOf(s.Date).Before(DateOf(today)) {
		return fmt.Errorf("%w: date %s is in the past", ErrInvalidSlot, FormatDate(s.Date))
	}
	day := s.Date.Weekday()
	if kind == KindAppointment && ClosedWeekdays[day] {
		return fmt.Errorf("%w: the clinic is closed on %s", ErrInvalidSlot, day)
	}
	if length <= 0 {
		length = DefaultSlotLength
	}
	windows := WindowsFor(rules, s.DoctorID, day)
	if len(windows) == 0 {
		windows = DefaultWindows
	}
	for _, w := range windows {
		if w.Fits(s.Time, length) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is outside the doctor's availability for %s", ErrInvalidSlot, s.Time, day)
}
