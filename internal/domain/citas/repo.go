package citas

import (
	"context"

	"github.com/google/uuid"

	"github.com/cesfam/portal/internal/platform/auth"
)

type CitaRepository interface {
	Create(ctx context.Context, c *Cita) error
	GetByID(ctx context.Context, id uuid.UUID) (*Cita, error)
	// UpdateStatus moves the appointment from one status to another and fails
	// with ErrStaleStatus if it is no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, observaciones *string) (*Cita, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Cita, int, error)
	ListByMedicoFecha(ctx context.Context, medicoID uuid.UUID, fecha string) ([]*Cita, error)
}

type HistorialRepository interface {
	// Create fails with ErrHistorialExists when the appointment already has a
	// record.
	Create(ctx context.Context, h *Historial) error
	GetByID(ctx context.Context, id uuid.UUID) (*Historial, error)
	// List returns the newest records first.
	List(ctx context.Context, f HistorialFilter, limit, offset int) ([]*Historial, int, error)
}

// PacienteResolver and MedicoResolver map the caller to their clinical
// profile. The pacientes and medicos services satisfy them.
type PacienteResolver interface {
	PacienteID(ctx context.Context, caller auth.Principal) (uuid.UUID, error)
}

type MedicoResolver interface {
	MedicoID(ctx context.Context, caller auth.Principal) (uuid.UUID, error)
}
