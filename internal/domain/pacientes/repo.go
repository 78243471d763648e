package pacientes

import (
	"context"

	"github.com/google/uuid"
)

type CesfamRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Cesfam, error)
	List(ctx context.Context, comuna string, limit, offset int) ([]*Cesfam, int, error)
}

type PacienteRepository interface {
	Create(ctx context.Context, p *Paciente) error
	GetByID(ctx context.Context, id uuid.UUID) (*Paciente, error)
	GetByUserID(ctx context.Context, userID string) (*Paciente, error)
	List(ctx context.Context, limit, offset int) ([]*Paciente, int, error)
}
