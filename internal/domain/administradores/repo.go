package administradores

import "context"

type StatsRepository interface {
	// Estadisticas counts appointments dated on or after f.Desde. Doctors are
	// active when they have at least one of them.
	Estadisticas(ctx context.Context, f StatsFilter) (*Estadisticas, error)
}
