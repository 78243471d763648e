package administradores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cesfam/portal/internal/platform/auth"
	"github.com/cesfam/portal/internal/platform/scheduling"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
)

type Service struct {
	stats StatsRepository
	loc   *time.Location
	now   func() time.Time
}

type Option func(*Service)

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

func NewService(stats StatsRepository, opts ...Option) *Service {
	s := &Service{stats: stats, loc: time.UTC, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Estadisticas is admin-only. An empty f.Desde means the first day of the
// current month.
func (s *Service) Estadisticas(ctx context.Context, caller auth.Principal, f StatsFilter) (*Estadisticas, error) {
	if !caller.IsAdmin() {
		return nil, fmt.Errorf("%w: statistics are for administrators", ErrForbidden)
	}
	if f.Desde == "" {
		today := scheduling.DateOf(s.now().In(s.loc))
		f.Desde = scheduling.FormatDate(today.AddDate(0, 0, 1-today.Day()))
	} else {
		d, err := scheduling.ParseDate(f.Desde)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		f.Desde = scheduling.FormatDate(d)
	}

	out, err := s.stats.Estadisticas(ctx, f)
	if err != nil {
		return nil, err
	}
	if out.CitasPorEspecialidad == nil {
		out.CitasPorEspecialidad = []EspecialidadCount{}
	}
	return out, nil
}
