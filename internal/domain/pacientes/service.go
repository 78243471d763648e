package pacientes

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cesfam/portal/internal/platform/auth"
	"github.com/cesfam/portal/internal/platform/validate"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("forbidden")
	ErrAlreadyRegistered = errors.New("user already has a patient profile")
)

type Service struct {
	cesfams   CesfamRepository
	pacientes PacienteRepository
}

func NewService(c CesfamRepository, p PacienteRepository) *Service {
	return &Service{cesfams: c, pacientes: p}
}

// -- CESFAM --

func (s *Service) GetCesfam(ctx context.Context, id uuid.UUID) (*Cesfam, error) {
	return s.cesfams.GetByID(ctx, id)
}

func (s *Service) ListCesfams(ctx context.Context, comuna string, limit, offset int) ([]*Cesfam, int, error) {
	return s.cesfams.List(ctx, comuna, limit, offset)
}

// -- Paciente --

// Register creates the patient profile of the calling user.
func (s *Service) Register(ctx context.Context, caller auth.Principal, req *CreatePacienteRequest) (*Paciente, error) {
	if caller.UserID == "" {
		return nil, fmt.Errorf("%w: caller has no user id", ErrValidation)
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.CesfamID != nil {
		if _, err := s.cesfams.GetByID(ctx, *req.CesfamID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown cesfam", ErrValidation)
			}
			return nil, err
		}
	}
	p := req.ToModel(caller.UserID)
	if err := s.pacientes.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Me returns the caller's own profile.
func (s *Service) Me(ctx context.Context, caller auth.Principal) (*Paciente, error) {
	if caller.PacienteID != "" {
		if id, err := uuid.Parse(caller.PacienteID); err == nil {
			return s.pacientes.GetByID(ctx, id)
		}
	}
	return s.pacientes.GetByUserID(ctx, caller.UserID)
}

// PacienteID resolves the caller's patient id for other domains.
func (s *Service) PacienteID(ctx context.Context, caller auth.Principal) (uuid.UUID, error) {
	if caller.PacienteID != "" {
		if id, err := uuid.Parse(caller.PacienteID); err == nil {
			return id, nil
		}
	}
	p, err := s.pacientes.GetByUserID(ctx, caller.UserID)
	if errors.Is(err, ErrNotFound) {
		return uuid.Nil, fmt.Errorf("patient: %w", auth.ErrNoProfile)
	}
	if err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}

// Get lets admins and doctors read any patient; patients only themselves.
func (s *Service) Get(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Paciente, error) {
	p, err := s.pacientes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Has(auth.RoleMedico) || p.ID.String() == caller.PacienteID || p.UserID == caller.UserID {
		return p, nil
	}
	return nil, ErrForbidden
}

// List returns every patient for admins, the caller's own profile for
// patients and nothing for anyone else.
func (s *Service) List(ctx context.Context, caller auth.Principal, limit, offset int) ([]*Paciente, int, error) {
	switch {
	case caller.IsAdmin():
		return s.pacientes.List(ctx, limit, offset)
	case caller.Has(auth.RolePaciente):
		p, err := s.Me(ctx, caller)
		if errors.Is(err, ErrNotFound) {
			return nil, 0, nil
		}
		if err != nil {
			return nil, 0, err
		}
		return []*Paciente{p}, 1, nil
	}
	return nil, 0, nil
}
