package documentos

import (
	"context"

	"github.com/google/uuid"

	"github.com/cesfam/portal/internal/platform/auth"
)

type DocumentoRepository interface {
	Create(ctx context.Context, d *Documento) error
	GetByID(ctx context.Context, id uuid.UUID) (*Documento, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Documento, int, error)
	CitaParties(ctx context.Context, citaID uuid.UUID) (*CitaParties, error)
}

type PacienteResolver interface {
	PacienteID(ctx context.Context, caller auth.Principal) (uuid.UUID, error)
}

type MedicoResolver interface {
	MedicoID(ctx context.Context, caller auth.Principal) (uuid.UUID, error)
}
