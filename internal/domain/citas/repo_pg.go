package citas

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cesfam/portal/internal/platform/db"
	"github.com/cesfam/portal/internal/platform/scheduling"
)

type citaRepoPG struct{ pool db.Querier }

func NewCitaRepoPG(pool db.Querier) CitaRepository { return &citaRepoPG{pool: pool} }

const citaCols = `c.id, c.paciente_id, c.medico_id, to_char(c.fecha, 'YYYY-MM-DD'), to_char(c.hora, 'HH24:MI'),
	c.motivo, c.status, c.observaciones,
	COALESCE(TRIM(p.nombre || ' ' || p.apellido), ''), COALESCE(TRIM(m.nombre || ' ' || m.apellido), ''),
	COALESCE(m.especialidad, ''), c.created_at, c.updated_at`

const citaFrom = ` FROM cita c
	LEFT JOIN paciente p ON p.id = c.paciente_id
	LEFT JOIN medico m ON m.id = c.medico_id`

func scanCita(row pgx.Row) (*Cita, error) {
	var c Cita
	err := row.Scan(&c.ID, &c.PacienteID, &c.MedicoID, &c.Fecha, &c.Hora,
		&c.Motivo, &c.Status, &c.Observaciones,
		&c.PacienteNombre, &c.MedicoNombre, &c.Especialidad, &c.CreatedAt, &c.UpdatedAt)
	if db.IsNotFound(err) {
		return nil, fmt.Errorf("cita %w", ErrNotFound)
	}
	return &c, err
}

func (r *citaRepoPG) Create(ctx context.Context, c *Cita) error {
	c.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO cita (id, paciente_id, medico_id, fecha, hora, motivo, status, observaciones)
		VALUES ($1, $2, $3, $4::date, $5::time, $6, $7, $8)
		RETURNING created_at, updated_at`,
		c.ID, c.PacienteID, c.MedicoID, c.Fecha, c.Hora, c.Motivo, c.Status, c.Observaciones,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err):
		// uq_cita_slot: another live appointment holds the slot.
		return fmt.Errorf("%w: %s %s", scheduling.ErrConflict, c.Fecha, c.Hora)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("medico or paciente %w", ErrNotFound)
	case err != nil:
		return fmt.Errorf("insert cita: %w", err)
	}
	return nil
}

func (r *citaRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Cita, error) {
	return scanCita(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+citaCols+citaFrom+` WHERE c.id = $1`, id))
}

func (r *citaRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, observaciones *string) (*Cita, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE cita SET status = $3, observaciones = COALESCE($4, observaciones), updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, from, to, observaciones)
	switch {
	case err != nil:
		return nil, fmt.Errorf("update cita status: %w", err)
	case tag.RowsAffected() == 0:
		return nil, ErrStaleStatus
	}
	return r.GetByID(ctx, id)
}

func (r *citaRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Cita, int, error) {
	where := ` WHERE 1=1`
	var args []any
	idx := 1
	add := func(cond string, v any) {
		where += fmt.Sprintf(" AND "+cond, idx)
		args = append(args, v)
		idx++
	}

	if f.PacienteID != nil {
		add(`c.paciente_id = $%d`, *f.PacienteID)
	}
	if f.MedicoID != nil {
		add(`c.medico_id = $%d`, *f.MedicoID)
	}
	if f.Fecha != "" {
		add(`c.fecha = $%d::date`, f.Fecha)
	}
	if f.Desde != "" {
		add(`c.fecha >= $%d::date`, f.Desde)
	}
	if f.Hasta != "" {
		add(`c.fecha <= $%d::date`, f.Hasta)
	}
	if f.Status != "" {
		add(`c.status = $%d`, f.Status)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM cita c`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cita: %w", err)
	}

	query := `SELECT ` + citaCols + citaFrom + where +
		fmt.Sprintf(` ORDER BY c.fecha, c.hora LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	items, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *citaRepoPG) ListByMedicoFecha(ctx context.Context, medicoID uuid.UUID, fecha string) ([]*Cita, error) {
	return r.query(ctx, `SELECT `+citaCols+citaFrom+`
		WHERE c.medico_id = $1 AND c.fecha = $2::date ORDER BY c.hora`, medicoID, fecha)
}

func (r *citaRepoPG) query(ctx context.Context, query string, args ...any) ([]*Cita, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cita: %w", err)
	}
	defer rows.Close()
	var items []*Cita
	for rows.Next() {
		c, err := scanCita(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

type historialRepoPG struct{ pool db.Querier }

func NewHistorialRepoPG(pool db.Querier) HistorialRepository { return &historialRepoPG{pool: pool} }

const historialCols = `h.id, h.cita_id, h.paciente_id, h.medico_id, to_char(c.fecha, 'YYYY-MM-DD'),
	h.diagnostico, h.codigo_cie10, h.tratamiento, h.observaciones,
	COALESCE(TRIM(p.nombre || ' ' || p.apellido), ''), COALESCE(TRIM(m.nombre || ' ' || m.apellido), ''),
	h.created_at, h.updated_at`

const historialFrom = ` FROM historial_clinico h
	JOIN cita c ON c.id = h.cita_id
	LEFT JOIN paciente p ON p.id = h.paciente_id
	LEFT JOIN medico m ON m.id = h.medico_id`

func scanHistorial(row pgx.Row) (*Historial, error) {
	var h Historial
	err := row.Scan(&h.ID, &h.CitaID, &h.PacienteID, &h.MedicoID, &h.Fecha,
		&h.Diagnostico, &h.CodigoCIE10, &h.Tratamiento, &h.Observaciones,
		&h.PacienteNombre, &h.MedicoNombre, &h.CreatedAt, &h.UpdatedAt)
	if db.IsNotFound(err) {
		return nil, fmt.Errorf("historial %w", ErrNotFound)
	}
	return &h, err
}

func (r *historialRepoPG) Create(ctx context.Context, h *Historial) error {
	h.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO historial_clinico (id, cita_id, paciente_id, medico_id, diagnostico, codigo_cie10, tratamiento, observaciones)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		h.ID, h.CitaID, h.PacienteID, h.MedicoID, h.Diagnostico, h.CodigoCIE10, h.Tratamiento, h.Observaciones,
	).Scan(&h.CreatedAt, &h.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err):
		return ErrHistorialExists
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("cita %w", ErrNotFound)
	case err != nil:
		return fmt.Errorf("insert historial: %w", err)
	}
	return nil
}

func (r *historialRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Historial, error) {
	return scanHistorial(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+historialCols+historialFrom+` WHERE h.id = $1`, id))
}

func (r *historialRepoPG) List(ctx context.Context, f HistorialFilter, limit, offset int) ([]*Historial, int, error) {
	where := ` WHERE 1=1`
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where += fmt.Sprintf(" AND "+cond, len(args))
	}
	if f.PacienteID != nil {
		add(`h.paciente_id = $%d`, *f.PacienteID)
	}
	if f.MedicoID != nil {
		add(`h.medico_id = $%d`, *f.MedicoID)
	}
	if f.CitaID != nil {
		add(`h.cita_id = $%d`, *f.CitaID)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM historial_clinico h`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count historial: %w", err)
	}

	query := `SELECT ` + historialCols + historialFrom + where +
		fmt.Sprintf(` ORDER BY h.created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list historial: %w", err)
	}
	defer rows.Close()
	var items []*Historial
	for rows.Next() {
		h, err := scanHistorial(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, h)
	}
	return items, total, rows.Err()
}
