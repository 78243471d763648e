package citas

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cesfam/portal/internal/platform/auth"
	"github.com/cesfam/portal/internal/platform/events"
	"github.com/cesfam/portal/internal/platform/scheduling"
	"github.com/cesfam/portal/internal/platform/validate"
)

// HistorialService keeps the clinical records written after appointments.
// Access follows the appointment: doctors see their own patients' records,
// patients their own.
type HistorialService struct {
	repo  HistorialRepository
	citas *Service
}

func NewHistorialService(repo HistorialRepository, citas *Service) *HistorialService {
	return &HistorialService{repo: repo, citas: citas}
}

// Create records the outcome of an appointment. Only the appointment's
// doctor, or an admin, may write it; cancelled appointments have none.
func (s *HistorialService) Create(ctx context.Context, caller auth.Principal, req *CreateHistorialRequest) (*Historial, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	cita, err := s.citas.citas.GetByID(ctx, uuid.MustParse(req.CitaID))
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		id, err := s.citas.medicos.MedicoID(ctx, caller)
		if err != nil || id != cita.MedicoID {
			return nil, fmt.Errorf("%w: only the appointment's doctor can write its record", ErrForbidden)
		}
	}
	if cita.Status == scheduling.CitaCancelada {
		return nil, fmt.Errorf("%w: appointment %s was cancelled", ErrValidation, cita.ID)
	}

	h := &Historial{
		CitaID:        cita.ID,
		PacienteID:    cita.PacienteID,
		MedicoID:      cita.MedicoID,
		Fecha:         cita.Fecha,
		Diagnostico:   strings.TrimSpace(req.Diagnostico),
		CodigoCIE10:   strings.ToUpper(strings.TrimSpace(req.CodigoCIE10)),
		Tratamiento:   strings.TrimSpace(req.Tratamiento),
		Observaciones: req.Observaciones,
	}
	if err := s.repo.Create(ctx, h); err != nil {
		return nil, err
	}
	events.Emit(ctx, s.citas.publisher, s.citas.logger, events.New(events.HistorialRegistrado, caller.UserID, map[string]any{
		"id": h.ID, "cita": h.CitaID, "paciente": h.PacienteID, "medico": h.MedicoID,
	}))
	return h, nil
}

func (s *HistorialService) Get(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Historial, error) {
	h, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.citas.authorize(ctx, caller, &Cita{MedicoID: h.MedicoID, PacienteID: h.PacienteID}); err != nil {
		return nil, err
	}
	return h, nil
}

// List narrows f to the caller's records. Callers without a profile get an
// empty list.
func (s *HistorialService) List(ctx context.Context, caller auth.Principal, f HistorialFilter, limit, offset int) ([]*Historial, int, error) {
	scoped, ok, err := s.citas.scope(ctx, caller, Filter{PacienteID: f.PacienteID, MedicoID: f.MedicoID})
	if err != nil || !ok {
		return nil, 0, err
	}
	f.PacienteID, f.MedicoID = scoped.PacienteID, scoped.MedicoID
	return s.repo.List(ctx, f, limit, offset)
}
