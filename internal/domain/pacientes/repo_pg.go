package pacientes

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cesfam/portal/internal/platform/db"
)

// =========== CESFAM Repository ===========

type cesfamRepoPG struct{ pool db.Querier }

func NewCesfamRepoPG(pool db.Querier) CesfamRepository { return &cesfamRepoPG{pool: pool} }

const cesfamCols = `id, nombre, direccion, comuna, telefono, latitud::float8, longitud::float8, created_at`

func scanCesfam(row pgx.Row) (*Cesfam, error) {
	var c Cesfam
	err := row.Scan(&c.ID, &c.Nombre, &c.Direccion, &c.Comuna, &c.Telefono, &c.Latitud, &c.Longitud, &c.CreatedAt)
	if db.IsNotFound(err) {
		return nil, fmt.Errorf("cesfam %w", ErrNotFound)
	}
	return &c, err
}

func (r *cesfamRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Cesfam, error) {
	return scanCesfam(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+cesfamCols+` FROM cesfam WHERE id = $1`, id))
}

func (r *cesfamRepoPG) List(ctx context.Context, comuna string, limit, offset int) ([]*Cesfam, int, error) {
	conn := db.Conn(ctx, r.pool)
	where := ` WHERE ($1 = '' OR comuna ILIKE $1)`

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM cesfam`+where, comuna).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cesfam: %w", err)
	}
	rows, err := conn.Query(ctx, `SELECT `+cesfamCols+` FROM cesfam`+where+` ORDER BY nombre LIMIT $2 OFFSET $3`, comuna, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list cesfam: %w", err)
	}
	defer rows.Close()
	var items []*Cesfam
	for rows.Next() {
		c, err := scanCesfam(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

// =========== Paciente Repository ===========

type pacienteRepoPG struct{ pool db.Querier }

func NewPacienteRepoPG(pool db.Querier) PacienteRepository { return &pacienteRepoPG{pool: pool} }

const pacienteCols = `p.id, p.user_id, p.nombre, p.apellido, p.rut, to_char(p.fecha_nacimiento, 'YYYY-MM-DD'),
	p.telefono, p.direccion, p.comuna, p.grupo_sanguineo, p.alergias, p.enfermedades_cronicas,
	p.cesfam_id, COALESCE(c.nombre, ''), p.created_at, p.updated_at`

const pacienteFrom = ` FROM paciente p LEFT JOIN cesfam c ON c.id = p.cesfam_id`

func scanPaciente(row pgx.Row) (*Paciente, error) {
	var p Paciente
	err := row.Scan(&p.ID, &p.UserID, &p.Nombre, &p.Apellido, &p.RUT, &p.FechaNacimiento,
		&p.Telefono, &p.Direccion, &p.Comuna, &p.GrupoSanguineo, &p.Alergias, &p.EnfermedadesCronicas,
		&p.CesfamID, &p.CesfamNombre, &p.CreatedAt, &p.UpdatedAt)
	if db.IsNotFound(err) {
		return nil, fmt.Errorf("paciente %w", ErrNotFound)
	}
	return &p, err
}

func (r *pacienteRepoPG) Create(ctx context.Context, p *Paciente) error {
	p.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO paciente (id, user_id, nombre, apellido, rut, fecha_nacimiento, telefono,
			direccion, comuna, grupo_sanguineo, alergias, enfermedades_cronicas, cesfam_id)
		VALUES ($1,$2,$3,$4,$5,$6::date,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.Nombre, p.Apellido, p.RUT, p.FechaNacimiento, p.Telefono,
		p.Direccion, p.Comuna, p.GrupoSanguineo, p.Alergias, p.EnfermedadesCronicas, p.CesfamID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err):
		return ErrAlreadyRegistered
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: unknown cesfam", ErrValidation)
	case err != nil:
		return fmt.Errorf("insert paciente: %w", err)
	}
	return nil
}

func (r *pacienteRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Paciente, error) {
	return scanPaciente(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+pacienteCols+pacienteFrom+` WHERE p.id = $1`, id))
}

func (r *pacienteRepoPG) GetByUserID(ctx context.Context, userID string) (*Paciente, error) {
	return scanPaciente(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+pacienteCols+pacienteFrom+` WHERE p.user_id = $1`, userID))
}

func (r *pacienteRepoPG) List(ctx context.Context, limit, offset int) ([]*Paciente, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM paciente`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count paciente: %w", err)
	}
	rows, err := conn.Query(ctx, `SELECT `+pacienteCols+pacienteFrom+` ORDER BY p.apellido, p.nombre LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list paciente: %w", err)
	}
	defer rows.Close()
	var items []*Paciente
	for rows.Next() {
		p, err := scanPaciente(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
