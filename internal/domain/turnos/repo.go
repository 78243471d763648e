package turnos

import (
	"context"

	"github.com/google/uuid"

	"github.com/cesfam/portal/internal/platform/auth"
	"github.com/cesfam/portal/internal/platform/db"
)

type TurnoRepository interface {
	Create(ctx context.Context, t *Turno) error
	GetByID(ctx context.Context, id uuid.UUID) (*Turno, error)
	Update(ctx context.Context, t *Turno) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Turno, int, error)
	ListByMedicoFecha(ctx context.Context, medicoID uuid.UUID, fecha string) ([]*Turno, error)
}

type SolicitudRepository interface {
	Create(ctx context.Context, s *Solicitud) error
	GetByID(ctx context.Context, id uuid.UUID) (*Solicitud, error)
	// Resolve stores the final status and answer; it fails with
	// ErrAlreadyResolved if the request is no longer pendiente.
	Resolve(ctx context.Context, s *Solicitud) error
	List(ctx context.Context, f SolicitudFilter, limit, offset int) ([]*Solicitud, int, error)
}

// Transactor is satisfied by db.NewTransactor.
type Transactor = db.Transactor

type MedicoResolver interface {
	MedicoID(ctx context.Context, caller auth.Principal) (uuid.UUID, error)
}
