package medicos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cesfam/portal/internal/platform/db"
)

// =========== Medico Repository ===========

type medicoRepoPG struct{ pool db.Querier }

func NewMedicoRepoPG(pool db.Querier) MedicoRepository { return &medicoRepoPG{pool: pool} }

const medicoCols = `m.id, m.user_id, m.nombre, m.apellido, m.especialidad, m.rut_profesional,
	m.telefono, m.cesfam_id, COALESCE(c.nombre, ''), m.created_at`

const medicoFrom = ` FROM medico m LEFT JOIN cesfam c ON c.id = m.cesfam_id`

func scanMedico(row pgx.Row) (*Medico, error) {
	var m Medico
	err := row.Scan(&m.ID, &m.UserID, &m.Nombre, &m.Apellido, &m.Especialidad, &m.RUTProfesional,
		&m.Telefono, &m.CesfamID, &m.CesfamNombre, &m.CreatedAt)
	if db.IsNotFound(err) {
		return nil, fmt.Errorf("medico %w", ErrNotFound)
	}
	return &m, err
}

func (r *medicoRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medico, error) {
	return scanMedico(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+medicoCols+medicoFrom+` WHERE m.id = $1`, id))
}

func (r *medicoRepoPG) GetByUserID(ctx context.Context, userID string) (*Medico, error) {
	return scanMedico(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+medicoCols+medicoFrom+` WHERE m.user_id = $1`, userID))
}

func (r *medicoRepoPG) List(ctx context.Context, f MedicoFilter, limit, offset int) ([]*Medico, int, error) {
	where := ` WHERE 1=1`
	var args []any
	idx := 1

	if f.CesfamID != nil {
		where += fmt.Sprintf(` AND m.cesfam_id = $%d`, idx)
		args = append(args, *f.CesfamID)
		idx++
	}
	if f.Especialidad != "" {
		where += fmt.Sprintf(` AND m.especialidad = $%d`, idx)
		args = append(args, f.Especialidad)
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*)`+medicoFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medico: %w", err)
	}

	query := `SELECT ` + medicoCols + medicoFrom + where +
		fmt.Sprintf(` ORDER BY m.apellido, m.nombre LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list medico: %w", err)
	}
	defer rows.Close()
	var items []*Medico
	for rows.Next() {
		m, err := scanMedico(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

// =========== Disponibilidad Repository ===========

type disponibilidadRepoPG struct{ pool db.Querier }

func NewDisponibilidadRepoPG(pool db.Querier) DisponibilidadRepository {
	return &disponibilidadRepoPG{pool: pool}
}

const dispCols = `id, medico_id, dia_semana, to_char(hora_inicio, 'HH24:MI'), to_char(hora_fin, 'HH24:MI'), activo, created_at`

func scanDisponibilidad(row pgx.Row) (*Disponibilidad, error) {
	var d Disponibilidad
	err := row.Scan(&d.ID, &d.MedicoID, &d.DiaSemana, &d.HoraInicio, &d.HoraFin, &d.Activo, &d.CreatedAt)
	if db.IsNotFound(err) {
		return nil, fmt.Errorf("disponibilidad %w", ErrNotFound)
	}
	return &d, err
}

func (r *disponibilidadRepoPG) Create(ctx context.Context, d *Disponibilidad) error {
	d.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO disponibilidad_medico (id, medico_id, dia_semana, hora_inicio, hora_fin, activo)
		VALUES ($1, $2, $3, $4::time, $5::time, $6)
		RETURNING created_at`,
		d.ID, d.MedicoID, d.DiaSemana, d.HoraInicio, d.HoraFin, d.Activo,
	).Scan(&d.CreatedAt)
	switch {
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: a rule already starts at %s on that day", ErrDuplicate, d.HoraInicio)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("medico %w", ErrNotFound)
	case db.IsCheckViolation(err):
		return fmt.Errorf("%w: hora_inicio must be before hora_fin", ErrValidation)
	case err != nil:
		return fmt.Errorf("insert disponibilidad: %w", err)
	}
	return nil
}

func (r *disponibilidadRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Disponibilidad, error) {
	return scanDisponibilidad(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+dispCols+` FROM disponibilidad_medico WHERE id = $1`, id))
}

func (r *disponibilidadRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM disponibilidad_medico WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete disponibilidad: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("disponibilidad %w", ErrNotFound)
	}
	return nil
}

func (r *disponibilidadRepoPG) ListByMedico(ctx context.Context, medicoID uuid.UUID) ([]*Disponibilidad, error) {
	return r.list(ctx, `SELECT `+dispCols+` FROM disponibilidad_medico
		WHERE medico_id = $1 ORDER BY dia_semana, hora_inicio`, medicoID)
}

func (r *disponibilidadRepoPG) ListByMedicoDay(ctx context.Context, medicoID uuid.UUID, day time.Weekday) ([]*Disponibilidad, error) {
	return r.list(ctx, `SELECT `+dispCols+` FROM disponibilidad_medico
		WHERE medico_id = $1 AND dia_semana = $2 AND activo ORDER BY hora_inicio`, medicoID, int(day))
}

func (r *disponibilidadRepoPG) list(ctx context.Context, query string, args ...any) ([]*Disponibilidad, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list disponibilidad: %w", err)
	}
	defer rows.Close()
	var items []*Disponibilidad
	for rows.Next() {
		d, err := scanDisponibilidad(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}
