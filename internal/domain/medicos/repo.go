package medicos

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type MedicoRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Medico, error)
	GetByUserID(ctx context.Context, userID string) (*Medico, error)
	List(ctx context.Context, f MedicoFilter, limit, offset int) ([]*Medico, int, error)
}

type DisponibilidadRepository interface {
	Create(ctx context.Context, d *Disponibilidad) error
	GetByID(ctx context.Context, id uuid.UUID) (*Disponibilidad, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByMedico(ctx context.Context, medicoID uuid.UUID) ([]*Disponibilidad, error)
	ListByMedicoDay(ctx context.Context, medicoID uuid.UUID, day time.Weekday) ([]*Disponibilidad, error)
}
