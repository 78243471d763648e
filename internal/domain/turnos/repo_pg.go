package turnos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cesfam/portal/internal/platform/db"
)

// -- Turno --

type turnoRepoPG struct{ pool db.Querier }

func NewTurnoRepoPG(pool db.Querier) TurnoRepository { return &turnoRepoPG{pool: pool} }

const turnoCols = `t.id, t.medico_id, COALESCE(TRIM(m.nombre || ' ' || m.apellido), ''),
	to_char(t.fecha, 'YYYY-MM-DD'), to_char(t.hora_inicio, 'HH24:MI'), to_char(t.hora_fin, 'HH24:MI'),
	t.cargo, t.area, t.tipo_turno, t.status, t.observaciones, t.created_at, t.updated_at`

const turnoFrom = ` FROM turno t LEFT JOIN medico m ON m.id = t.medico_id`

func scanTurno(row pgx.Row) (*Turno, error) {
	var t Turno
	err := row.Scan(&t.ID, &t.MedicoID, &t.MedicoNombre, &t.Fecha, &t.HoraInicio, &t.HoraFin,
		&t.Cargo, &t.Area, &t.TipoTurno, &t.Status, &t.Observaciones, &t.CreatedAt, &t.UpdatedAt)
	if db.IsNotFound(err) {
		return nil, fmt.Errorf("turno %w", ErrNotFound)
	}
	return &t, err
}

func writeErr(op string, err error) error {
	switch {
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("medico %w", ErrNotFound)
	case db.IsCheckViolation(err):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return fmt.Errorf("%s turno: %w", op, err)
}

func (r *turnoRepoPG) Create(ctx context.Context, t *Turno) error {
	t.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO turno (id, medico_id, fecha, hora_inicio, hora_fin, cargo, area, tipo_turno, status, observaciones)
		VALUES ($1, $2, $3::date, $4::time, $5::time, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		t.ID, t.MedicoID, t.Fecha, t.HoraInicio, t.HoraFin, t.Cargo, t.Area, t.TipoTurno, t.Status, t.Observaciones,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return writeErr("insert", err)
	}
	return nil
}

func (r *turnoRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Turno, error) {
	return scanTurno(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+turnoCols+turnoFrom+` WHERE t.id = $1`, id))
}

func (r *turnoRepoPG) Update(ctx context.Context, t *Turno) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE turno SET fecha = $2::date, hora_inicio = $3::time, hora_fin = $4::time, cargo = $5, area = $6,
			tipo_turno = $7, status = $8, observaciones = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Fecha, t.HoraInicio, t.HoraFin, t.Cargo, t.Area, t.TipoTurno, t.Status, t.Observaciones,
	).Scan(&t.UpdatedAt)
	if db.IsNotFound(err) {
		return fmt.Errorf("turno %w", ErrNotFound)
	}
	if err != nil {
		return writeErr("update", err)
	}
	return nil
}

func (r *turnoRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM turno WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete turno: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("turno %w", ErrNotFound)
	}
	return nil
}

func (r *turnoRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Turno, int, error) {
	where := ` WHERE 1=1`
	var args []any
	idx := 1
	add := func(cond string, v any) {
		where += fmt.Sprintf(" AND "+cond, idx)
		args = append(args, v)
		idx++
	}

	if f.MedicoID != nil {
		add(`t.medico_id = $%d`, *f.MedicoID)
	}
	if f.FechaInicio != "" {
		add(`t.fecha >= $%d::date`, f.FechaInicio)
	}
	if f.FechaFin != "" {
		add(`t.fecha <= $%d::date`, f.FechaFin)
	}
	if f.Status != "" {
		add(`t.status = $%d`, f.Status)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM turno t`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count turno: %w", err)
	}

	query := `SELECT ` + turnoCols + turnoFrom + where +
		fmt.Sprintf(` ORDER BY t.fecha, t.hora_inicio LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	items, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *turnoRepoPG) ListByMedicoFecha(ctx context.Context, medicoID uuid.UUID, fecha string) ([]*Turno, error) {
	return r.query(ctx, `SELECT `+turnoCols+turnoFrom+`
		WHERE t.medico_id = $1 AND t.fecha = $2::date ORDER BY t.hora_inicio`, medicoID, fecha)
}

func (r *turnoRepoPG) query(ctx context.Context, query string, args ...any) ([]*Turno, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list turno: %w", err)
	}
	defer rows.Close()
	var items []*Turno
	for rows.Next() {
		t, err := scanTurno(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// -- Solicitud --

type solicitudRepoPG struct{ pool db.Querier }

func NewSolicitudRepoPG(pool db.Querier) SolicitudRepository { return &solicitudRepoPG{pool: pool} }

const solicitudCols = `s.id, s.turno_id, s.medico_id, COALESCE(TRIM(m.nombre || ' ' || m.apellido), ''), s.motivo,
	to_char(s.fecha_nueva, 'YYYY-MM-DD'), to_char(s.hora_inicio_nueva, 'HH24:MI'), to_char(s.hora_fin_nueva, 'HH24:MI'),
	s.status, s.respuesta, s.created_at, s.resuelta_at`

const solicitudFrom = ` FROM solicitud_cambio_turno s LEFT JOIN medico m ON m.id = s.medico_id`

func scanSolicitud(row pgx.Row) (*Solicitud, error) {
	var s Solicitud
	err := row.Scan(&s.ID, &s.TurnoID, &s.MedicoID, &s.MedicoNombre, &s.Motivo,
		&s.FechaNueva, &s.HoraInicioNueva, &s.HoraFinNueva,
		&s.Status, &s.Respuesta, &s.CreatedAt, &s.ResueltaAt)
	if db.IsNotFound(err) {
		return nil, fmt.Errorf("solicitud %w", ErrNotFound)
	}
	return &s, err
}

func (r *solicitudRepoPG) Create(ctx context.Context, s *Solicitud) error {
	s.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO solicitud_cambio_turno (id, turno_id, medico_id, motivo, fecha_nueva, hora_inicio_nueva, hora_fin_nueva, status)
		VALUES ($1, $2, $3, $4, $5::date, $6::time, $7::time, $8)
		RETURNING created_at`,
		s.ID, s.TurnoID, s.MedicoID, s.Motivo, s.FechaNueva, s.HoraInicioNueva, s.HoraFinNueva, s.Status,
	).Scan(&s.CreatedAt)
	switch {
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("turno or medico %w", ErrNotFound)
	case err != nil:
		return fmt.Errorf("insert solicitud: %w", err)
	}
	return nil
}

func (r *solicitudRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Solicitud, error) {
	return scanSolicitud(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+solicitudCols+solicitudFrom+` WHERE s.id = $1`, id))
}

func (r *solicitudRepoPG) Resolve(ctx context.Context, s *Solicitud) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE solicitud_cambio_turno SET status = $2, respuesta = $3, resuelta_at = NOW()
		WHERE id = $1 AND status = 'pendiente'
		RETURNING resuelta_at`,
		s.ID, s.Status, s.Respuesta,
	).Scan(&s.ResueltaAt)
	if db.IsNotFound(err) {
		return ErrAlreadyResolved
	}
	if err != nil {
		return fmt.Errorf("resolve solicitud: %w", err)
	}
	return nil
}

func (r *solicitudRepoPG) List(ctx context.Context, f SolicitudFilter, limit, offset int) ([]*Solicitud, int, error) {
	where := ` WHERE 1=1`
	var args []any
	idx := 1
	if f.MedicoID != nil {
		where += fmt.Sprintf(` AND s.medico_id = $%d`, idx)
		args = append(args, *f.MedicoID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND s.status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM solicitud_cambio_turno s`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count solicitud: %w", err)
	}

	query := `SELECT ` + solicitudCols + solicitudFrom + where +
		fmt.Sprintf(` ORDER BY s.created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list solicitud: %w", err)
	}
	defer rows.Close()
	var items []*Solicitud
	for rows.Next() {
		s, err := scanSolicitud(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}
