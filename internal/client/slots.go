package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cesfam/portal/internal/platform/scheduling"
)

type SlotSource string

const (
	// SourceServer: the server computed the slots.
	SourceServer SlotSource = "server"
	// SourceLocal: computed here from the doctor's rules and appointments.
	SourceLocal SlotSource = "local"
	// SourceDefault: nothing could be read, the default slate is offered.
	SourceDefault SlotSource = "default"
	// SourceClosed: the date is in the past or the clinic is closed.
	SourceClosed SlotSource = "closed"
)

// ErrServerFallback is SlotResult.Err when the server answered with its
// default slate because it could not read the doctor's schedule.
var ErrServerFallback = errors.New("server could not read the schedule, default slots offered")

// SlotResult is the outcome of Slots. Err carries the last lookup failure
// when Source is not SourceServer, so a fallback is never silent.
type SlotResult struct {
	MedicoID string
	Fecha    string
	Horarios []string
	Source   SlotSource
	Err      error
}

// Slots returns the free start times of medicoID on fecha. It only fails on
// malformed input; lookup failures degrade to local resolution and then to
// the default slate.
func (c *Client) Slots(ctx context.Context, medicoID, fecha string) (SlotResult, error) {
	date, err := scheduling.ParseDate(fecha)
	if err != nil {
		return SlotResult{}, fmt.Errorf("fecha: %w", err)
	}
	res := SlotResult{MedicoID: medicoID, Fecha: scheduling.FormatDate(date)}

	today := scheduling.DateOf(c.now())
	if date.Before(today) || scheduling.ClosedWeekdays[date.Weekday()] {
		res.Horarios = []string{}
		res.Source = SourceClosed
		return res, nil
	}

	h, err := c.HorariosDisponibles(ctx, medicoID, res.Fecha)
	if err == nil {
		res.Horarios = h.Horarios
		if res.Horarios == nil {
			res.Horarios = []string{}
		}
		res.Source = SourceServer
		if h.Fallback {
			res.Source = SourceDefault
			res.Err = ErrServerFallback
		}
		return res, nil
	}
	c.logger.Warn().Err(err).Str("medico_id", medicoID).Str("fecha", res.Fecha).
		Msg("server slot lookup failed, resolving locally")

	rules := scheduling.RuleSourceFunc(func(ctx context.Context, doctorID string, _ time.Weekday) ([]scheduling.Rule, error) {
		ds, err := c.Disponibilidad(ctx, doctorID)
		if err != nil {
			return nil, err
		}
		out := make([]scheduling.Rule, 0, len(ds))
		for _, d := range ds {
			out = append(out, d.Rule())
		}
		return out, nil
	})
	bookings := scheduling.BookingSourceFunc(func(ctx context.Context, doctorID string, date time.Time) ([]scheduling.Booking, error) {
		citas, err := c.ListCitas(ctx, CitaFilter{MedicoID: doctorID, Fecha: scheduling.FormatDate(date)})
		if err != nil {
			return nil, err
		}
		out := make([]scheduling.Booking, 0, len(citas))
		for _, ct := range citas {
			b, ok := ct.Booking()
			if !ok {
				c.logger.Warn().Str("cita_id", ct.ID).Msg("skipping unreadable appointment")
				continue
			}
			out = append(out, b)
		}
		return out, nil
	})

	r := scheduling.NewResolver(rules, bookings, scheduling.WithStep(c.slotLength), scheduling.WithLogger(c.logger))
	resolution := r.Resolve(ctx, medicoID, date)
	res.Horarios = resolution.Slots()
	if res.Horarios == nil {
		res.Horarios = []string{}
	}
	res.Source = SourceLocal
	res.Err = err
	if resolution.Fallback {
		res.Source = SourceDefault
		res.Err = resolution.Err
	}
	return res, nil
}
