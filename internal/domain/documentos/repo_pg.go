package documentos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cesfam/portal/internal/platform/db"
)

type documentoRepoPG struct{ pool db.Querier }

func NewDocumentoRepoPG(pool db.Querier) DocumentoRepository { return &documentoRepoPG{pool: pool} }

const documentoCols = `d.id, d.tipo, d.paciente_id, COALESCE(TRIM(p.nombre || ' ' || p.apellido), ''),
	d.cita_id, d.medico_id, COALESCE(TRIM(m.nombre || ' ' || m.apellido), ''),
	d.titulo, d.contenido, d.archivo_key, d.archivo_nombre, d.archivo_tipo, d.archivo_size, d.created_at`

const documentoFrom = ` FROM documento d
	LEFT JOIN paciente p ON p.id = d.paciente_id
	LEFT JOIN medico m ON m.id = d.medico_id`

func scanDocumento(row pgx.Row) (*Documento, error) {
	var d Documento
	err := row.Scan(&d.ID, &d.Tipo, &d.PacienteID, &d.PacienteNombre,
		&d.CitaID, &d.MedicoID, &d.MedicoNombre,
		&d.Titulo, &d.Contenido, &d.ArchivoKey, &d.ArchivoNombre, &d.ArchivoTipo, &d.ArchivoSize, &d.CreatedAt)
	if db.IsNotFound(err) {
		return nil, fmt.Errorf("documento %w", ErrNotFound)
	}
	return &d, err
}

func (r *documentoRepoPG) Create(ctx context.Context, d *Documento) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO documento (id, tipo, paciente_id, cita_id, medico_id, titulo, contenido,
			archivo_key, archivo_nombre, archivo_tipo, archivo_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		d.ID, d.Tipo, d.PacienteID, d.CitaID, d.MedicoID, d.Titulo, d.Contenido,
		d.ArchivoKey, d.ArchivoNombre, d.ArchivoTipo, d.ArchivoSize,
	).Scan(&d.CreatedAt)
	switch {
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("paciente, cita or medico %w", ErrNotFound)
	case db.IsCheckViolation(err):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	case err != nil:
		return fmt.Errorf("insert documento: %w", err)
	}
	return nil
}

func (r *documentoRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Documento, error) {
	return scanDocumento(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+documentoCols+documentoFrom+` WHERE d.id = $1`, id))
}

func (r *documentoRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM documento WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete documento: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("documento %w", ErrNotFound)
	}
	return nil
}

func (r *documentoRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Documento, int, error) {
	where := ` WHERE 1=1`
	var args []any
	idx := 1
	add := func(cond string, v any) {
		where += fmt.Sprintf(" AND "+cond, idx)
		args = append(args, v)
		idx++
	}

	if f.Tipo != "" {
		add(`d.tipo = $%d`, f.Tipo)
	}
	if f.PacienteID != nil {
		add(`d.paciente_id = $%d`, *f.PacienteID)
	}
	if f.CitaID != nil {
		add(`d.cita_id = $%d`, *f.CitaID)
	}
	if f.MedicoID != nil {
		add(`d.medico_id = $%d`, *f.MedicoID)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM documento d`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documento: %w", err)
	}

	query := `SELECT ` + documentoCols + documentoFrom + where +
		fmt.Sprintf(` ORDER BY d.created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documento: %w", err)
	}
	defer rows.Close()
	var items []*Documento
	for rows.Next() {
		d, err := scanDocumento(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *documentoRepoPG) CitaParties(ctx context.Context, citaID uuid.UUID) (*CitaParties, error) {
	var p CitaParties
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT paciente_id, medico_id FROM cita WHERE id = $1`, citaID).Scan(&p.PacienteID, &p.MedicoID)
	if db.IsNotFound(err) {
		return nil, fmt.Errorf("cita %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load cita: %w", err)
	}
	return &p, nil
}
