package scheduling

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/rs/zerolog"
)

// Rule is a doctor's recurring weekly availability window.
type Rule struct {
	ID       string
	DoctorID string
	Weekday  time.Weekday
	Start    Clock
	End      Clock
	Active   bool
}

// Validate enforces Start < End. Overlap with the doctor's other rules is not
// checked; overlapping windows are merged when resolving.
func (r Rule) Validate() error {
	if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
		return fmt.Errorf("dia_semana must be between 0 and 6, got %d", r.Weekday)
	}
	if r.Start >= r.End {
		return fmt.Errorf("hora_inicio (%s) must be before hora_fin (%s)", r.Start, r.End)
	}
	return nil
}

// WindowsFor returns the active windows of doctorID on day. An empty doctorID
// matches rules of any doctor.
func WindowsFor(rules []Rule, doctorID string, day time.Weekday) []Window {
	var out []Window
	for _, r := range rules {
		if !r.Active || r.Weekday != day {
			continue
		}
		if doctorID != "" && r.DoctorID != "" && r.DoctorID != doctorID {
			continue
		}
		out = append(out, Window{Start: r.Start, End: r.End})
	}
	return out
}

// RuleSource fetches a doctor's availability rules.
type RuleSource interface {
	RulesFor(ctx context.Context, doctorID string, day time.Weekday) ([]Rule, error)
}

// BookingSource fetches a doctor's existing bookings on a date.
type BookingSource interface {
	BookingsOn(ctx context.Context, doctorID string, date time.Time) ([]Booking, error)
}

// RuleSourceFunc adapts a function to RuleSource.
type RuleSourceFunc func(ctx context.Context, doctorID string, day time.Weekday) ([]Rule, error)

func (f RuleSourceFunc) RulesFor(ctx context.Context, doctorID string, day time.Weekday) ([]Rule, error) {
	return f(ctx, doctorID, day)
}

// BookingSourceFunc adapts a function to BookingSource.
type BookingSourceFunc func(ctx context.Context, doctorID string, date time.Time) ([]Booking, error)

func (f BookingSourceFunc) BookingsOn(ctx context.Context, doctorID string, date time.Time) ([]Booking, error) {
	return f(ctx, doctorID, date)
}

// Resolver computes the free slots a doctor can offer on a date.
type Resolver struct {
	rules    RuleSource
	bookings BookingSource
	step     time.Duration
	logger   zerolog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithStep sets the slot granularity (default one hour).
func WithStep(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.step = d
		}
	}
}

// WithLogger sets the logger used to report fail-open fallbacks.
func WithLogger(l zerolog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

func NewResolver(rules RuleSource, bookings BookingSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		rules:    rules,
		bookings: bookings,
		step:     DefaultSlotLength,
		logger:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolution is the outcome of one Resolve call.
//
// When a source fails, Fallback is true, Err holds the cause and the default
// slate is offered unfiltered, so callers can still tell a failed lookup from
// a day that is simply full.
type Resolution struct {
	DoctorID string
	Date     time.Time
	Fallback bool
	Err      error

	windows []Window
	fixed   []Clock
	booked  []Booking
	step    time.Duration
}

// Resolve never returns an error: source failures degrade to the default
// slate and are reported on the Resolution.
func (r *Resolver) Resolve(ctx context.Context, doctorID string, date time.Time) Resolution {
	date = DateOf(date)
	res := Resolution{DoctorID: doctorID, Date: date, step: r.step}

	rules, err := r.rules.RulesFor(ctx, doctorID, date.Weekday())
	if err != nil {
		return r.fallback(res, fmt.Errorf("fetch availability rules: %w", err))
	}
	booked, err := r.bookings.BookingsOn(ctx, doctorID, date)
	if err != nil {
		return r.fallback(res, fmt.Errorf("fetch bookings: %w", err))
	}

	res.windows = WindowsFor(rules, doctorID, date.Weekday())
	if len(res.windows) == 0 {
		res.fixed = DefaultSlate()
	}
	for _, b := range booked {
		if b.DoctorID != "" && b.DoctorID != doctorID {
			continue
		}
		if !b.Date.IsZero() && !SameDate(b.Date, date) {
			continue
		}
		res.booked = append(res.booked, b)
	}
	return res
}

func (r *Resolver) fallback(res Resolution, err error) Resolution {
	r.logger.Warn().Err(err).
		Str("medico_id", res.DoctorID).
		Str("fecha", FormatDate(res.Date)).
		Msg("availability lookup failed, offering default slate")
	res.Fallback = true
	res.Err = err
	res.fixed = DefaultSlate()
	return res
}

// Seq yields free slot times ("HH:MM") in ascending order. The sequence is
// computed on each iteration and never cached.
func (res Resolution) Seq() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, c := range res.candidates() {
			if res.blocked(c) {
				continue
			}
			if !yield(c.String()) {
				return
			}
		}
	}
}

// Slots collects Seq.
func (res Resolution) Slots() []string {
	return slices.Collect(res.Seq())
}

func (res Resolution) candidates() []Clock {
	if res.fixed != nil {
		return res.fixed
	}
	step := res.step
	if step <= 0 {
		step = DefaultSlotLength
	}
	var out []Clock
	for _, w := range res.windows {
		for c := w.Start; w.Fits(c, step); c = c.Add(step) {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (res Resolution) blocked(c Clock) bool {
	end := c.Add(res.step)
	for _, b := range res.booked {
		if !b.Blocking() {
			continue
		}
		bs, be := b.Interval(res.step)
		if Overlaps(c, end, bs, be) {
			return true
		}
	}
	return false
}
