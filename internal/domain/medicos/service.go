package medicos

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
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrDuplicate  = errors.New("duplicate availability rule")
	ErrNoProfile  = fmt.Errorf("doctor: %w", auth.ErrNoProfile)
)

type Service struct {
	medicos        MedicoRepository
	disponibilidad DisponibilidadRepository
	publisher      events.Publisher
	logger         zerolog.Logger
}

func NewService(m MedicoRepository, d DisponibilidadRepository, pub events.Publisher, logger zerolog.Logger) *Service {
	return &Service{medicos: m, disponibilidad: d, publisher: pub, logger: logger}
}

// -- Medico --

func (s *Service) GetMedico(ctx context.Context, id uuid.UUID) (*Medico, error) {
	return s.medicos.GetByID(ctx, id)
}

func (s *Service) ListMedicos(ctx context.Context, f MedicoFilter, limit, offset int) ([]*Medico, int, error) {
	return s.medicos.List(ctx, f, limit, offset)
}

// MiPerfil resolves the doctor profile of the caller.
func (s *Service) MiPerfil(ctx context.Context, caller auth.Principal) (*Medico, error) {
	if caller.MedicoID != "" {
		id, err := uuid.Parse(caller.MedicoID)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed medico id in token", ErrValidation)
		}
		return s.medicos.GetByID(ctx, id)
	}
	m, err := s.medicos.GetByUserID(ctx, caller.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoProfile
	}
	return m, err
}

// MedicoID resolves the caller's doctor id for other domains.
func (s *Service) MedicoID(ctx context.Context, caller auth.Principal) (uuid.UUID, error) {
	if caller.MedicoID != "" {
		if id, err := uuid.Parse(caller.MedicoID); err == nil {
			return id, nil
		}
	}
	m, err := s.MiPerfil(ctx, caller)
	if err != nil {
		return uuid.Nil, err
	}
	return m.ID, nil
}

// -- Disponibilidad --

func (s *Service) ListDisponibilidad(ctx context.Context, medicoID uuid.UUID) ([]*Disponibilidad, error) {
	return s.disponibilidad.ListByMedico(ctx, medicoID)
}

func (s *Service) MiDisponibilidad(ctx context.Context, caller auth.Principal) ([]*Disponibilidad, error) {
	m, err := s.MiPerfil(ctx, caller)
	if err != nil {
		return nil, err
	}
	return s.disponibilidad.ListByMedico(ctx, m.ID)
}

// CreateDisponibilidad adds a weekly rule. Doctors write their own rules;
// admins must name the doctor. Overlapping rules are accepted and merged at
// resolution time.
func (s *Service) CreateDisponibilidad(ctx context.Context, caller auth.Principal, req *CreateDisponibilidadRequest) (*Disponibilidad, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var medicoID uuid.UUID
	switch {
	case caller.IsAdmin():
		if req.MedicoID == nil {
			return nil, fmt.Errorf("%w: medico is required", ErrValidation)
		}
		if _, err := s.medicos.GetByID(ctx, *req.MedicoID); err != nil {
			return nil, err
		}
		medicoID = *req.MedicoID
	default:
		m, err := s.MiPerfil(ctx, caller)
		if err != nil {
			return nil, err
		}
		medicoID = m.ID
	}

	d := &Disponibilidad{
		MedicoID:   medicoID,
		DiaSemana:  *req.DiaSemana,
		HoraInicio: scheduling.MustClock(req.HoraInicio).String(),
		HoraFin:    scheduling.MustClock(req.HoraFin).String(),
		Activo:     req.Activo == nil || *req.Activo,
	}
	rule, err := d.ToRule()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.disponibilidad.Create(ctx, d); err != nil {
		return nil, err
	}
	events.Emit(ctx, s.publisher, s.logger, events.New(events.DisponibilidadCambiada, caller.UserID, d))
	return d, nil
}

// DeleteDisponibilidad removes a rule owned by the caller. Admins may remove
// any rule.
func (s *Service) DeleteDisponibilidad(ctx context.Context, caller auth.Principal, id uuid.UUID) error {
	d, err := s.disponibilidad.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !caller.IsAdmin() {
		m, err := s.MiPerfil(ctx, caller)
		if err != nil {
			return err
		}
		if m.ID != d.MedicoID {
			return ErrForbidden
		}
	}
	if err := s.disponibilidad.Delete(ctx, id); err != nil {
		return err
	}
	events.Emit(ctx, s.publisher, s.logger, events.New(events.DisponibilidadCambiada, caller.UserID, map[string]any{
		"id": id, "medico": d.MedicoID, "eliminada": true,
	}))
	return nil
}

// RulesFor feeds the availability resolver with a doctor's active rules for
// one weekday.
func (s *Service) RulesFor(ctx context.Context, doctorID string, day time.Weekday) ([]scheduling.Rule, error) {
	id, err := uuid.Parse(doctorID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid medico id %q", ErrValidation, doctorID)
	}
	rows, err := s.disponibilidad.ListByMedicoDay(ctx, id, day)
	if err != nil {
		return nil, err
	}
	rules := make([]scheduling.Rule, 0, len(rows))
	for _, d := range rows {
		r, err := d.ToRule()
		if err != nil {
			s.logger.Warn().Err(err).Str("disponibilidad_id", d.ID.String()).Msg("skipping unreadable availability rule")
			continue
		}
		rules = append(rules, r)
	}
	return rules, nil
}

var _ scheduling.RuleSource = (*Service)(nil)
