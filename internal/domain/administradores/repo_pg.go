package administradores

import (
	"context"
	"fmt"

	"github.com/cesfam/portal/internal/platform/db"
)

type statsRepoPG struct{ pool db.Querier }

func NewStatsRepoPG(pool db.Querier) StatsRepository { return &statsRepoPG{pool: pool} }

func (r *statsRepoPG) Estadisticas(ctx context.Context, f StatsFilter) (*Estadisticas, error) {
	where := ` FROM cita c JOIN medico m ON m.id = c.medico_id WHERE c.fecha >= $1::date`
	args := []any{f.Desde}
	if f.CesfamID != nil {
		where += ` AND m.cesfam_id = $2`
		args = append(args, *f.CesfamID)
	}

	conn := db.Conn(ctx, r.pool)
	out := &Estadisticas{Desde: f.Desde, CitasPorEspecialidad: []EspecialidadCount{}}
	err := conn.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE c.status = 'completada'), COUNT(DISTINCT c.medico_id)`+where, args...).
		Scan(&out.CitasMes, &out.CitasCompletadas, &out.MedicosActivos)
	if err != nil {
		return nil, fmt.Errorf("count citas: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT m.especialidad, COUNT(*)`+where+
		` GROUP BY m.especialidad ORDER BY COUNT(*) DESC, m.especialidad`, args...)
	if err != nil {
		return nil, fmt.Errorf("citas por especialidad: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ec EspecialidadCount
		if err := rows.Scan(&ec.Especialidad, &ec.Total); err != nil {
			return nil, err
		}
		out.CitasPorEspecialidad = append(out.CitasPorEspecialidad, ec)
	}
	return out, rows.Err()
}
