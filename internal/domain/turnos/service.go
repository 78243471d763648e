package turnos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cesfam/portal/internal/platform/auth"
	"github.com/cesfam/portal/internal/platform/events"
	"github.com/cesfam/portal/internal/platform/scheduling"
	"github.com/cesfam/portal/internal/platform/validate"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrForbidden       = errors.New("forbidden")
	ErrAlreadyResolved = fmt.Errorf("%w: request already resolved", scheduling.ErrInvalidTransition)
)

type Service struct {
	turnos      TurnoRepository
	solicitudes SolicitudRepository
	tx          Transactor
	medicos     MedicoResolver

	publisher events.Publisher
	logger    zerolog.Logger
	loc       *time.Location
	now       func() time.Time
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewService(turnos TurnoRepository, solicitudes SolicitudRepository, tx Transactor, medicos MedicoResolver, opts ...Option) *Service {
	s := &Service{
		turnos:      turnos,
		solicitudes: solicitudes,
		tx:          tx,
		medicos:     medicos,
		logger:      zerolog.Nop(),
		loc:         time.UTC,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) today() time.Time {
	return scheduling.DateOf(s.now().In(s.loc))
}

func shiftKey(medicoID uuid.UUID, fecha string) string {
	return "turno:" + medicoID.String() + ":" + fecha
}

func requireAdmin(caller auth.Principal) error {
	if !caller.IsAdmin() {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return nil
}

// tipoFor classifies a shift by its start hour.
func tipoFor(start scheduling.Clock) string {
	switch {
	case start < scheduling.MustClock("14:00"):
		return "diurno"
	case start < scheduling.MustClock("20:00"):
		return "vespertino"
	default:
		return "nocturno"
	}
}

// checkSchedule validates a shift's date and times, returning the candidate
// booking used by the overlap check.
func (s *Service) checkSchedule(t *Turno) (scheduling.Booking, error) {
	b, err := t.Booking()
	if err != nil {
		return b, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if b.Start >= b.End {
		return b, fmt.Errorf("%w: hora_inicio must be before hora_fin", ErrValidation)
	}
	if b.Date.Before(s.today()) {
		return b, fmt.Errorf("%w: date %s is in the past", scheduling.ErrInvalidSlot, t.Fecha)
	}
	return b, nil
}

// assertFree must run inside Atomically with the shift's key held.
func (s *Service) assertFree(ctx context.Context, candidate scheduling.Booking, medicoID uuid.UUID, fecha string) error {
	existing, err := s.turnos.ListByMedicoFecha(ctx, medicoID, fecha)
	if err != nil {
		return fmt.Errorf("load shifts: %w", err)
	}
	bookings := make([]scheduling.Booking, 0, len(existing))
	for _, t := range existing {
		b, err := t.Booking()
		if err != nil {
			s.logger.Warn().Err(err).Str("turno_id", t.ID.String()).Msg("skipping unreadable shift")
			continue
		}
		bookings = append(bookings, b)
	}
	if taken, ok := (scheduling.Checker{}).FirstConflict(bookings, candidate); ok {
		return fmt.Errorf("%w: %s %s-%s overlaps shift %s (%s-%s)", scheduling.ErrConflict,
			fecha, candidate.Start, candidate.End, taken.ID, taken.Start, taken.End)
	}
	return nil
}

// Create schedules a shift. The overlap check and the insert run under an
// advisory lock on (medico, fecha).
func (s *Service) Create(ctx context.Context, caller auth.Principal, req *CreateTurnoRequest) (*Turno, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.Status != "" && scheduling.Shifts.Normalize(req.Status) != scheduling.Shifts.Initial() {
		return nil, fmt.Errorf("%w: new shifts start as %s", ErrValidation, scheduling.Shifts.Initial())
	}
	t := &Turno{
		MedicoID:      uuid.MustParse(req.MedicoID),
		Fecha:         req.Fecha,
		HoraInicio:    req.HoraInicio,
		HoraFin:       req.HoraFin,
		Cargo:         req.Cargo,
		Area:          req.Area,
		TipoTurno:     req.TipoTurno,
		Status:        scheduling.Shifts.Initial(),
		Observaciones: req.Observaciones,
	}
	candidate, err := s.checkSchedule(t)
	if err != nil {
		return nil, err
	}
	// drop seconds from "HH:MM:SS"
	t.HoraInicio, t.HoraFin = candidate.Start.String(), candidate.End.String()
	if t.TipoTurno == "" {
		t.TipoTurno = tipoFor(candidate.Start)
	}

	err = s.tx.Atomically(ctx, []string{shiftKey(t.MedicoID, t.Fecha)}, func(ctx context.Context) error {
		if err := s.assertFree(ctx, candidate, t.MedicoID, t.Fecha); err != nil {
			return err
		}
		return s.turnos.Create(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	events.Emit(ctx, s.publisher, s.logger, events.New(events.TurnoCreado, caller.UserID, t))
	return t, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Turno, error) {
	t, err := s.turnos.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.IsAdmin() {
		return t, nil
	}
	if mid, err := s.medicos.MedicoID(ctx, caller); err == nil && mid == t.MedicoID {
		return t, nil
	}
	return nil, ErrForbidden
}

// Update applies a partial change. Status moves through the shift machine;
// a new date or time is re-checked for overlaps, ignoring the shift itself.
func (s *Service) Update(ctx context.Context, caller auth.Principal, id uuid.UUID, req *UpdateTurnoRequest) (*Turno, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	current, err := s.turnos.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *current
	if req.Status != nil {
		to := scheduling.Shifts.Normalize(*req.Status)
		if to != current.Status {
			if err := scheduling.Shifts.Transition(current.Status, to); err != nil {
				if errors.Is(err, scheduling.ErrUnknownStatus) {
					return nil, fmt.Errorf("%w: %v", ErrValidation, err)
				}
				return nil, err
			}
		}
		next.Status = to
	}
	setIf(&next.Fecha, req.Fecha)
	setIf(&next.HoraInicio, req.HoraInicio)
	setIf(&next.HoraFin, req.HoraFin)
	setIf(&next.Cargo, req.Cargo)
	setIf(&next.Area, req.Area)
	setIf(&next.TipoTurno, req.TipoTurno)
	setIf(&next.Observaciones, req.Observaciones)

	if err := s.reschedule(ctx, current, &next); err != nil {
		return nil, err
	}
	events.Emit(ctx, s.publisher, s.logger, events.New(events.TurnoActualizado, caller.UserID, &next))
	return &next, nil
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// reschedule stores next. When the schedule moved, it takes the locks for
// both the old and the new day and re-runs the overlap check.
func (s *Service) reschedule(ctx context.Context, current, next *Turno) error {
	moved := next.Fecha != current.Fecha || next.HoraInicio != current.HoraInicio || next.HoraFin != current.HoraFin
	if !moved {
		return s.turnos.Update(ctx, next)
	}
	if scheduling.Shifts.Terminal(current.Status) {
		return fmt.Errorf("%w: a %s shift cannot be rescheduled", scheduling.ErrInvalidTransition, current.Status)
	}
	candidate, err := s.checkSchedule(next)
	if err != nil {
		return err
	}
	next.HoraInicio, next.HoraFin = candidate.Start.String(), candidate.End.String()

	keys := []string{shiftKey(current.MedicoID, current.Fecha), shiftKey(next.MedicoID, next.Fecha)}
	return s.tx.Atomically(ctx, keys, func(ctx context.Context) error {
		if candidate.Status != scheduling.TurnoCancelado {
			if err := s.assertFree(ctx, candidate, next.MedicoID, next.Fecha); err != nil {
				return err
			}
		}
		return s.turnos.Update(ctx, next)
	})
}

func (s *Service) Delete(ctx context.Context, caller auth.Principal, id uuid.UUID) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if err := s.turnos.Delete(ctx, id); err != nil {
		return err
	}
	events.Emit(ctx, s.publisher, s.logger, events.New(events.TurnoEliminado, caller.UserID, map[string]any{"id": id}))
	return nil
}

// List shows admins every shift and doctors their own.
func (s *Service) List(ctx context.Context, caller auth.Principal, f Filter, limit, offset int) ([]*Turno, int, error) {
	if f.Status != "" {
		f.Status = scheduling.Shifts.Normalize(f.Status)
		if !scheduling.Shifts.Valid(f.Status) {
			return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
		}
	}
	if caller.IsAdmin() {
		return s.turnos.List(ctx, f, limit, offset)
	}
	id, err := s.medicos.MedicoID(ctx, caller)
	if errors.Is(err, auth.ErrNoProfile) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	f.MedicoID = &id
	return s.turnos.List(ctx, f, limit, offset)
}

// MisTurnos lists the calling doctor's shifts from today on.
func (s *Service) MisTurnos(ctx context.Context, caller auth.Principal, limit, offset int) ([]*Turno, int, error) {
	id, err := s.medicos.MedicoID(ctx, caller)
	if errors.Is(err, auth.ErrNoProfile) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return s.turnos.List(ctx, Filter{MedicoID: &id, FechaInicio: scheduling.FormatDate(s.today())}, limit, offset)
}

// AsignarSemana turns a weekly grid into shifts. Either every shift is
// created or none is.
func (s *Service) AsignarSemana(ctx context.Context, caller auth.Principal, req *AsignarSemanaRequest) ([]*Turno, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	week, _ := scheduling.ParseDate(req.Semana)
	length := time.Duration(req.DuracionMin) * time.Minute
	if length == 0 {
		length = time.Hour
	}

	grid := scheduling.NewWeekGrid(week, length)
	for _, a := range req.Asignaciones {
		hora, _ := scheduling.ParseClock(a.Hora)
		cell := scheduling.Cell{Weekday: time.Weekday(a.DiaSemana), Hour: hora}
		if err := grid.Assign(cell, a.MedicoID); err != nil {
			if errors.Is(err, scheduling.ErrCellTaken) {
				return nil, fmt.Errorf("%w: %v", scheduling.ErrConflict, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	var created []*Turno
	var keys []string
	plans := grid.Plans()
	for _, p := range plans {
		if p.Date.Before(s.today()) {
			return nil, fmt.Errorf("%w: %s is in the past", scheduling.ErrInvalidSlot, scheduling.FormatDate(p.Date))
		}
		keys = append(keys, shiftKey(uuid.MustParse(p.DoctorID), scheduling.FormatDate(p.Date)))
	}

	err := s.tx.Atomically(ctx, keys, func(ctx context.Context) error {
		created = created[:0]
		for _, p := range plans {
			t := &Turno{
				MedicoID:   uuid.MustParse(p.DoctorID),
				Fecha:      scheduling.FormatDate(p.Date),
				HoraInicio: p.Start.String(),
				HoraFin:    p.End.String(),
				Cargo:      req.Cargo,
				Area:       req.Area,
				TipoTurno:  req.TipoTurno,
				Status:     scheduling.Shifts.Initial(),
			}
			if t.TipoTurno == "" {
				t.TipoTurno = tipoFor(p.Start)
			}
			candidate, err := t.Booking()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrValidation, err)
			}
			if err := s.assertFree(ctx, candidate, t.MedicoID, t.Fecha); err != nil {
				return err
			}
			if err := s.turnos.Create(ctx, t); err != nil {
				return err
			}
			created = append(created, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, t := range created {
		events.Emit(ctx, s.publisher, s.logger, events.New(events.TurnoCreado, caller.UserID, t))
	}
	return created, nil
}

// -- Solicitudes --

// CreateSolicitud files a change request. Doctors file for themselves and
// only about their own shifts; admins may file on a doctor's behalf.
func (s *Service) CreateSolicitud(ctx context.Context, caller auth.Principal, req *CreateSolicitudRequest) (*Solicitud, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	var medicoID uuid.UUID
	switch {
	case caller.IsAdmin() && req.MedicoID != "":
		medicoID = uuid.MustParse(req.MedicoID)
	case caller.IsAdmin() && req.TurnoID == "":
		return nil, fmt.Errorf("%w: medico_solicitante or turno_original is required", ErrValidation)
	case caller.IsAdmin():
	default:
		id, err := s.medicos.MedicoID(ctx, caller)
		if errors.Is(err, auth.ErrNoProfile) {
			return nil, fmt.Errorf("%w: only doctors can request shift changes", ErrForbidden)
		}
		if err != nil {
			return nil, err
		}
		medicoID = id
	}

	sol := &Solicitud{
		MedicoID:        medicoID,
		Motivo:          req.Motivo,
		FechaNueva:      req.FechaNueva,
		HoraInicioNueva: req.HoraInicioNueva,
		HoraFinNueva:    req.HoraFinNueva,
		Status:          scheduling.Requests.Initial(),
	}
	if req.TurnoID != "" {
		t, err := s.turnos.GetByID(ctx, uuid.MustParse(req.TurnoID))
		if err != nil {
			return nil, err
		}
		if medicoID == uuid.Nil {
			medicoID = t.MedicoID
			sol.MedicoID = medicoID
		}
		if t.MedicoID != medicoID {
			return nil, fmt.Errorf("%w: shift belongs to another doctor", ErrForbidden)
		}
		if scheduling.Shifts.Terminal(t.Status) {
			return nil, fmt.Errorf("%w: shift is %s", scheduling.ErrInvalidTransition, t.Status)
		}
		sol.TurnoID = &t.ID
		if changesSchedule(sol) {
			if _, err := s.checkSchedule(proposed(t, sol)); err != nil {
				return nil, err
			}
		}
	} else if sol.FechaNueva != nil {
		if d, _ := scheduling.ParseDate(*sol.FechaNueva); d.Before(s.today()) {
			return nil, fmt.Errorf("%w: date %s is in the past", scheduling.ErrInvalidSlot, *sol.FechaNueva)
		}
	}

	if err := s.solicitudes.Create(ctx, sol); err != nil {
		return nil, err
	}
	events.Emit(ctx, s.publisher, s.logger, events.New(events.SolicitudCreada, caller.UserID, sol))
	return sol, nil
}

// proposed applies a request's new date and times to a copy of t. A new
// start without a new end keeps the shift's length.
func proposed(t *Turno, sol *Solicitud) *Turno {
	next := *t
	if sol.FechaNueva != nil {
		next.Fecha = *sol.FechaNueva
	}
	if sol.HoraInicioNueva != nil {
		next.HoraInicio = *sol.HoraInicioNueva
		if sol.HoraFinNueva == nil {
			start, err1 := scheduling.ParseClock(t.HoraInicio)
			end, err2 := scheduling.ParseClock(t.HoraFin)
			ns, err3 := scheduling.ParseClock(*sol.HoraInicioNueva)
			if err1 == nil && err2 == nil && err3 == nil {
				next.HoraFin = (ns + (end - start)).String()
			}
		}
	}
	if sol.HoraFinNueva != nil {
		next.HoraFin = *sol.HoraFinNueva
	}
	return &next
}

func changesSchedule(sol *Solicitud) bool {
	return sol.FechaNueva != nil || sol.HoraInicioNueva != nil || sol.HoraFinNueva != nil
}

func (s *Service) GetSolicitud(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Solicitud, error) {
	sol, err := s.solicitudes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.IsAdmin() {
		return sol, nil
	}
	if mid, err := s.medicos.MedicoID(ctx, caller); err == nil && mid == sol.MedicoID {
		return sol, nil
	}
	return nil, ErrForbidden
}

func (s *Service) ListSolicitudes(ctx context.Context, caller auth.Principal, f SolicitudFilter, limit, offset int) ([]*Solicitud, int, error) {
	if f.Status != "" && !scheduling.Requests.Valid(f.Status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
	}
	if caller.IsAdmin() {
		return s.solicitudes.List(ctx, f, limit, offset)
	}
	id, err := s.medicos.MedicoID(ctx, caller)
	if errors.Is(err, auth.ErrNoProfile) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	f.MedicoID = &id
	return s.solicitudes.List(ctx, f, limit, offset)
}

// Aprobar approves a pending request and moves the shift to the proposed
// date and times, after the same overlap check a new shift gets. The shift
// update and the resolution commit together.
func (s *Service) Aprobar(ctx context.Context, caller auth.Principal, id uuid.UUID, req *ResolverSolicitudRequest) (*Solicitud, error) {
	sol, err := s.beginResolve(ctx, caller, id, req, scheduling.SolicitudAprobada)
	if err != nil {
		return nil, err
	}

	var moved *Turno
	if sol.TurnoID != nil && changesSchedule(sol) {
		current, err := s.turnos.GetByID(ctx, *sol.TurnoID)
		if err != nil {
			return nil, err
		}
		next := proposed(current, sol)
		keys := []string{shiftKey(current.MedicoID, current.Fecha), shiftKey(next.MedicoID, next.Fecha)}
		err = s.tx.Atomically(ctx, keys, func(ctx context.Context) error {
			if err := s.reschedule(ctx, current, next); err != nil {
				return err
			}
			return s.solicitudes.Resolve(ctx, sol)
		})
		if err != nil {
			return nil, err
		}
		moved = next
	} else if err := s.solicitudes.Resolve(ctx, sol); err != nil {
		return nil, err
	}

	events.Emit(ctx, s.publisher, s.logger, events.New(events.SolicitudResuelta, caller.UserID, sol))
	if moved != nil {
		events.Emit(ctx, s.publisher, s.logger, events.New(events.TurnoActualizado, caller.UserID, moved))
	}
	return sol, nil
}

func (s *Service) Rechazar(ctx context.Context, caller auth.Principal, id uuid.UUID, req *ResolverSolicitudRequest) (*Solicitud, error) {
	sol, err := s.beginResolve(ctx, caller, id, req, scheduling.SolicitudRechazada)
	if err != nil {
		return nil, err
	}
	if err := s.solicitudes.Resolve(ctx, sol); err != nil {
		return nil, err
	}
	events.Emit(ctx, s.publisher, s.logger, events.New(events.SolicitudResuelta, caller.UserID, sol))
	return sol, nil
}

func (s *Service) beginResolve(ctx context.Context, caller auth.Principal, id uuid.UUID, req *ResolverSolicitudRequest, to string) (*Solicitud, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	sol, err := s.solicitudes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := scheduling.Requests.Transition(sol.Status, to); err != nil {
		return nil, err
	}
	sol.Status = to
	sol.Respuesta = req.Respuesta
	return sol, nil
}
