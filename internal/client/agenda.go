package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/cesfam/portal/internal/platform/scheduling"
)

// ErrConflict is returned by Agenda.Book when the slot is taken, whether the
// local check or the server said so.
var ErrConflict = scheduling.ErrConflict

// Bookable is an appointment or shift as the agenda sees it.
type Bookable interface {
	BookingID() string
	// Booking reports false for rows whose date or times are unreadable.
	Booking() (scheduling.Booking, bool)
}

// ErrUnreadable is returned by Agenda.Book for an item whose date or time
// cannot be parsed.
var ErrUnreadable = errors.New("unreadable date or time")

// Entry is one row of an Agenda. Pending rows are optimistic inserts still
// waiting for the server; their ID starts with "temp-".
type Entry[T Bookable] struct {
	ID      string
	Item    T
	Pending bool
}

// Agenda is a client-side list of appointments or shifts with optimistic
// booking. Safe for concurrent use.
type Agenda[T Bookable] struct {
	mu      sync.Mutex
	entries []Entry[T]
	seq     int

	list    func(ctx context.Context) ([]T, error)
	create  func(ctx context.Context, item T) (T, error)
	checker scheduling.Checker
}

func NewAgenda[T Bookable](
	list func(ctx context.Context) ([]T, error),
	create func(ctx context.Context, item T) (T, error),
	checker scheduling.Checker,
) *Agenda[T] {
	return &Agenda[T]{list: list, create: create, checker: checker}
}

// NewCitaAgenda lists appointments matching f and books through CreateCita.
func NewCitaAgenda(c *Client, f CitaFilter) *Agenda[Cita] {
	return NewAgenda(
		func(ctx context.Context) ([]Cita, error) { return c.ListCitas(ctx, f) },
		func(ctx context.Context, in Cita) (Cita, error) {
			out, err := c.CreateCita(ctx, NewCita{
				MedicoID:   in.MedicoID,
				PacienteID: in.PacienteID,
				Fecha:      in.Fecha,
				Hora:       in.Hora,
				Motivo:     in.Motivo,
			})
			if err != nil {
				return in, err
			}
			return *out, nil
		},
		scheduling.Checker{},
	)
}

// NewTurnoAgenda lists shifts matching f and books through CreateTurno.
func NewTurnoAgenda(c *Client, f TurnoFilter) *Agenda[Turno] {
	return NewAgenda(
		func(ctx context.Context) ([]Turno, error) { return c.ListTurnos(ctx, f) },
		func(ctx context.Context, in Turno) (Turno, error) {
			out, err := c.CreateTurno(ctx, NewTurno{
				MedicoID:      in.MedicoID,
				Fecha:         in.Fecha,
				HoraInicio:    in.HoraInicio,
				HoraFin:       in.HoraFin,
				Cargo:         in.Cargo,
				Area:          in.Area,
				TipoTurno:     in.TipoTurno,
				Observaciones: in.Observaciones,
			})
			if err != nil {
				return in, err
			}
			return *out, nil
		},
		scheduling.Checker{},
	)
}

// Entries returns a snapshot of the list.
func (a *Agenda[T]) Entries() []Entry[T] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.entries)
}

// Refresh replaces the confirmed entries with the server's list. Pending
// entries are kept.
func (a *Agenda[T]) Refresh(ctx context.Context) error {
	items, err := a.list(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	next := make([]Entry[T], 0, len(items))
	for _, it := range items {
		next = append(next, Entry[T]{ID: it.BookingID(), Item: it})
	}
	for _, e := range a.entries {
		if e.Pending {
			next = append(next, e)
		}
	}
	a.entries = next
	return nil
}

// Book creates item unless it collides with an entry already in the list.
//
// The item shows up immediately as a pending entry and is replaced by the
// server's copy on success or removed on failure. A 409 from the server
// reloads the list, since the local view was stale.
func (a *Agenda[T]) Book(ctx context.Context, item T) (T, error) {
	var zero T
	candidate, ok := item.Booking()
	if !ok {
		return zero, fmt.Errorf("book %s: %w", item.BookingID(), ErrUnreadable)
	}

	a.mu.Lock()
	existing := make([]scheduling.Booking, 0, len(a.entries))
	for _, e := range a.entries {
		// Unreadable rows cannot be placed on the timeline; the server
		// still checks the slot.
		if b, ok := e.Item.Booking(); ok {
			existing = append(existing, b)
		}
	}
	if hit, ok := a.checker.FirstConflict(existing, candidate); ok {
		a.mu.Unlock()
		return zero, fmt.Errorf("%w: %s %s overlaps %s", ErrConflict,
			scheduling.FormatDate(candidate.Date), candidate.Start, hit.Start)
	}
	a.seq++
	tempID := "temp-" + strconv.Itoa(a.seq)
	a.entries = append(a.entries, Entry[T]{ID: tempID, Item: item, Pending: true})
	a.mu.Unlock()

	created, err := a.create(ctx, item)

	a.mu.Lock()
	i := slices.IndexFunc(a.entries, func(e Entry[T]) bool { return e.ID == tempID })
	if err != nil {
		if i >= 0 {
			a.entries = slices.Delete(a.entries, i, i+1)
		}
		a.mu.Unlock()
		if IsConflict(err) {
			if rerr := a.Refresh(ctx); rerr != nil {
				return zero, fmt.Errorf("%w: %w", ErrConflict, errors.Join(err, rerr))
			}
			return zero, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return zero, err
	}
	entry := Entry[T]{ID: created.BookingID(), Item: created}
	if i >= 0 {
		a.entries[i] = entry
	} else {
		a.entries = append(a.entries, entry)
	}
	a.mu.Unlock()
	return created, nil
}
