package citas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cesfam/portal/internal/platform/auth"
	"github.com/cesfam/portal/internal/platform/db"
	"github.com/cesfam/portal/internal/platform/events"
	"github.com/cesfam/portal/internal/platform/locker"
	"github.com/cesfam/portal/internal/platform/scheduling"
	"github.com/cesfam/portal/internal/platform/validate"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failed")
	ErrForbidden   = errors.New("forbidden")
	ErrStaleStatus = fmt.Errorf("%w: status changed concurrently", scheduling.ErrInvalidTransition)

	ErrHistorialExists = fmt.Errorf("%w: appointment already has a clinical record", scheduling.ErrConflict)
)

// DefaultLockTTL bounds how long a crashed request can hold a slot lock.
const DefaultLockTTL = 10 * time.Second

type Service struct {
	citas     CitaRepository
	rules     scheduling.RuleSource
	pacientes PacienteResolver
	medicos   MedicoResolver

	tx        db.Transactor
	locker    locker.Locker
	lockTTL   time.Duration
	publisher events.Publisher
	logger    zerolog.Logger
	slot      time.Duration
	loc       *time.Location
	now       func() time.Time
}

type Option func(*Service)

// WithTransactor sets what serializes bookings of one doctor's day.
func WithTransactor(tx db.Transactor) Option {
	return func(s *Service) {
		if tx != nil {
			s.tx = tx
		}
	}
}

func WithLocker(l locker.Locker, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithSlotLength(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.slot = d
		}
	}
}

// WithClock sets the source of "today" and the clinic's time zone.
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

func NewService(citas CitaRepository, rules scheduling.RuleSource, pacientes PacienteResolver, medicos MedicoResolver, opts ...Option) *Service {
	s := &Service{
		citas:     citas,
		rules:     rules,
		pacientes: pacientes,
		medicos:   medicos,
		tx:        db.NewLocalTransactor(),
		lockTTL:   DefaultLockTTL,
		logger:    zerolog.Nop(),
		slot:      scheduling.DefaultSlotLength,
		loc:       time.UTC,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) today() time.Time {
	return scheduling.DateOf(s.now().In(s.loc))
}

// BookingsOn lists a doctor's appointments on date for the resolver.
func (s *Service) BookingsOn(ctx context.Context, doctorID string, date time.Time) ([]scheduling.Booking, error) {
	id, err := uuid.Parse(doctorID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid medico id %q", ErrValidation, doctorID)
	}
	rows, err := s.citas.ListByMedicoFecha(ctx, id, scheduling.FormatDate(date))
	if err != nil {
		return nil, err
	}
	return toBookings(rows, s.logger), nil
}

var _ scheduling.BookingSource = (*Service)(nil)

func toBookings(rows []*Cita, logger zerolog.Logger) []scheduling.Booking {
	out := make([]scheduling.Booking, 0, len(rows))
	for _, c := range rows {
		b, err := c.Booking()
		if err != nil {
			logger.Warn().Err(err).Str("cita_id", c.ID.String()).Msg("skipping unreadable appointment")
			continue
		}
		out = append(out, b)
	}
	return out
}

// Horarios resolves the free slots of a doctor on fecha. Past dates and days
// the clinic is closed have no slots. Source failures fall back to the
// default slate and set Fallback.
func (s *Service) Horarios(ctx context.Context, medicoID uuid.UUID, fecha string) (*Horarios, error) {
	date, err := scheduling.ParseDate(fecha)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	out := &Horarios{MedicoID: medicoID.String(), Fecha: scheduling.FormatDate(date), Horarios: []string{}}
	if date.Before(s.today()) || scheduling.ClosedWeekdays[date.Weekday()] {
		return out, nil
	}

	res := scheduling.NewResolver(s.rules, s,
		scheduling.WithStep(s.slot),
		scheduling.WithLogger(s.logger),
	).Resolve(ctx, medicoID.String(), date)

	for slot := range res.Seq() {
		out.Horarios = append(out.Horarios, slot)
	}
	out.Fallback = res.Fallback
	return out, nil
}

func agendaKey(medicoID uuid.UUID, fecha string) string {
	return "cita:" + medicoID.String() + ":" + fecha
}

// Create books a slot. The slot is validated against the doctor's rules, then
// the overlap check and the insert run atomically under a lock on the
// doctor's day, so appointments at different start times cannot overlap.
// The Redis slot lock only turns away duplicate requests for the same start
// early.
func (s *Service) Create(ctx context.Context, caller auth.Principal, req *CreateCitaRequest) (*Cita, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.Status != "" && req.Status != scheduling.Appointments.Initial() {
		return nil, fmt.Errorf("%w: new appointments start as %s", ErrValidation, scheduling.Appointments.Initial())
	}
	medicoID := uuid.MustParse(req.MedicoID)
	date, _ := scheduling.ParseDate(req.Fecha)
	hora, _ := scheduling.ParseClock(req.Hora)

	pacienteID, err := s.bookingPatient(ctx, caller, req.PacienteID)
	if err != nil {
		return nil, err
	}

	rules, err := s.rules.RulesFor(ctx, medicoID.String(), date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("fetch availability: %w", err)
	}
	slot := scheduling.Slot{DoctorID: medicoID.String(), Date: date, Time: hora}
	if err := scheduling.ValidateSlot(s.today(), slot, rules, scheduling.KindAppointment, s.slot); err != nil {
		return nil, err
	}

	c := &Cita{
		PacienteID: pacienteID,
		MedicoID:   medicoID,
		Fecha:      scheduling.FormatDate(date),
		Hora:       hora.String(),
		Motivo:     req.Motivo,
		Status:     scheduling.Appointments.Initial(),
	}

	release, err := s.lockSlot(ctx, c)
	if err != nil {
		return nil, err
	}
	defer release()

	candidate, err := c.Booking()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	err = s.tx.Atomically(ctx, []string{agendaKey(medicoID, c.Fecha)}, func(ctx context.Context) error {
		existing, err := s.citas.ListByMedicoFecha(ctx, medicoID, c.Fecha)
		if err != nil {
			return fmt.Errorf("load appointments: %w", err)
		}
		checker := scheduling.Checker{Length: s.slot}
		if taken, ok := checker.FirstConflict(toBookings(existing, s.logger), candidate); ok {
			return fmt.Errorf("%w: %s %s overlaps appointment %s", scheduling.ErrConflict, c.Fecha, c.Hora, taken.ID)
		}
		return s.citas.Create(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	events.Emit(ctx, s.publisher, s.logger, events.New(events.CitaCreada, caller.UserID, c))
	return c, nil
}

func (s *Service) bookingPatient(ctx context.Context, caller auth.Principal, requested string) (uuid.UUID, error) {
	if requested != "" && (caller.IsAdmin() || caller.Has(auth.RoleMedico)) {
		return uuid.MustParse(requested), nil
	}
	if caller.IsAdmin() {
		return uuid.Nil, fmt.Errorf("%w: paciente_id is required", ErrValidation)
	}
	id, err := s.pacientes.PacienteID(ctx, caller)
	if errors.Is(err, auth.ErrNoProfile) {
		return uuid.Nil, fmt.Errorf("%w: only patients can book for themselves", ErrForbidden)
	}
	return id, err
}

// lockSlot takes the Redis lock on the slot. A locker outage is logged and
// the request continues; the day lock in Create still guards the slot.
func (s *Service) lockSlot(ctx context.Context, c *Cita) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	key := locker.SlotKey(c.MedicoID.String(), c.Fecha, c.Hora)
	token, ok, err := s.locker.TryLock(ctx, key, s.lockTTL)
	if err != nil {
		s.logger.Warn().Err(err).Str("lock_key", key).Msg("slot lock unavailable, relying on the agenda lock")
		return noop, nil
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s %s is being booked by another request", scheduling.ErrConflict, c.Fecha, c.Hora)
	}
	return func() {
		// The request context may already be cancelled.
		if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn().Err(err).Str("lock_key", key).Msg("slot unlock failed")
		}
	}, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Cita, error) {
	c, err := s.citas.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, c); err != nil {
		return nil, err
	}
	return c, nil
}

// authorize lets admins through, doctors reach their own agenda and patients
// their own appointments.
func (s *Service) authorize(ctx context.Context, caller auth.Principal, c *Cita) error {
	if caller.IsAdmin() {
		return nil
	}
	if caller.Has(auth.RoleMedico) {
		if id, err := s.medicos.MedicoID(ctx, caller); err == nil && id == c.MedicoID {
			return nil
		}
	}
	if caller.Has(auth.RolePaciente) {
		if id, err := s.pacientes.PacienteID(ctx, caller); err == nil && id == c.PacienteID {
			return nil
		}
	}
	return ErrForbidden
}

// ChangeStatus runs an appointment through the status machine. Patients may
// only cancel their own appointments.
func (s *Service) ChangeStatus(ctx context.Context, caller auth.Principal, id uuid.UUID, req *UpdateEstadoRequest) (*Cita, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	c, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := scheduling.Appointments.Transition(c.Status, req.Status); err != nil {
		if errors.Is(err, scheduling.ErrUnknownStatus) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, err
	}
	if !caller.IsAdmin() && !caller.Has(auth.RoleMedico) && req.Status != scheduling.CitaCancelada {
		return nil, fmt.Errorf("%w: patients can only cancel", ErrForbidden)
	}

	updated, err := s.citas.UpdateStatus(ctx, id, c.Status, req.Status, req.Observaciones)
	if err != nil {
		return nil, err
	}
	events.Emit(ctx, s.publisher, s.logger, events.New(events.CitaEstadoCambiado, caller.UserID, map[string]any{
		"id": id, "medico": c.MedicoID, "paciente": c.PacienteID, "desde": c.Status, "hacia": req.Status,
	}))
	return updated, nil
}

// List scopes the filter to the caller: doctors see their agenda, patients
// their own appointments, admins everything.
func (s *Service) List(ctx context.Context, caller auth.Principal, f Filter, limit, offset int) ([]*Cita, int, error) {
	scoped, ok, err := s.scope(ctx, caller, f)
	if err != nil || !ok {
		return nil, 0, err
	}
	return s.citas.List(ctx, scoped, limit, offset)
}

// MisCitas is the caller's own list. Admins have none.
func (s *Service) MisCitas(ctx context.Context, caller auth.Principal, limit, offset int) ([]*Cita, int, error) {
	if caller.IsAdmin() {
		return nil, 0, nil
	}
	return s.List(ctx, caller, Filter{}, limit, offset)
}

func (s *Service) scope(ctx context.Context, caller auth.Principal, f Filter) (Filter, bool, error) {
	if caller.IsAdmin() {
		return f, true, nil
	}
	if caller.Has(auth.RoleMedico) {
		id, err := s.medicos.MedicoID(ctx, caller)
		if err == nil {
			f.MedicoID = &id
			return f, true, nil
		}
		if !errors.Is(err, auth.ErrNoProfile) {
			return f, false, err
		}
	}
	if caller.Has(auth.RolePaciente) {
		id, err := s.pacientes.PacienteID(ctx, caller)
		if err == nil {
			f.PacienteID = &id
			return f, true, nil
		}
		if !errors.Is(err, auth.ErrNoProfile) {
			return f, false, err
		}
	}
	return f, false, nil
}
