package pacientes

import (
	"time"

	"github.com/google/uuid"
)

// Cesfam is a family health centre. Read-only through the API.
type Cesfam struct {
	ID        uuid.UUID `json:"id"`
	Nombre    string    `json:"nombre"`
	Direccion string    `json:"direccion"`
	Comuna    string    `json:"comuna"`
	Telefono  string    `json:"telefono"`
	Latitud   *float64  `json:"latitud"`
	Longitud  *float64  `json:"longitud"`
	CreatedAt time.Time `json:"created_at"`
}

type Paciente struct {
	ID                   uuid.UUID  `json:"id"`
	UserID               string     `json:"user_id"`
	Nombre               string     `json:"nombre"`
	Apellido             string     `json:"apellido"`
	RUT                  string     `json:"rut"`
	FechaNacimiento      *string    `json:"fecha_nacimiento"`
	Telefono             string     `json:"telefono"`
	Direccion            string     `json:"direccion"`
	Comuna               string     `json:"comuna"`
	GrupoSanguineo       string     `json:"grupo_sanguineo"`
	Alergias             string     `json:"alergias"`
	EnfermedadesCronicas string     `json:"enfermedades_cronicas"`
	CesfamID             *uuid.UUID `json:"cesfam"`
	CesfamNombre         string     `json:"cesfam_nombre,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NombreCompleto joins first and last name.
func (p *Paciente) NombreCompleto() string {
	if p.Apellido == "" {
		return p.Nombre
	}
	return p.Nombre + " " + p.Apellido
}

// CreatePacienteRequest registers the caller as a patient.
type CreatePacienteRequest struct {
	Nombre               string     `json:"nombre" validate:"required,max=100"`
	Apellido             string     `json:"apellido" validate:"max=100"`
	RUT                  string     `json:"rut" validate:"omitempty,rut"`
	FechaNacimiento      *string    `json:"fecha_nacimiento" validate:"omitempty,date"`
	Telefono             string     `json:"telefono" validate:"max=30"`
	Direccion            string     `json:"direccion" validate:"max=255"`
	Comuna               string     `json:"comuna" validate:"max=100"`
	GrupoSanguineo       string     `json:"grupo_sanguineo" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Alergias             string     `json:"alergias"`
	EnfermedadesCronicas string     `json:"enfermedades_cronicas"`
	CesfamID             *uuid.UUID `json:"cesfam"`
}

func (r *CreatePacienteRequest) ToModel(userID string) *Paciente {
	return &Paciente{
		UserID:               userID,
		Nombre:               r.Nombre,
		Apellido:             r.Apellido,
		RUT:                  r.RUT,
		FechaNacimiento:      r.FechaNacimiento,
		Telefono:             r.Telefono,
		Direccion:            r.Direccion,
		Comuna:               r.Comuna,
		GrupoSanguineo:       r.GrupoSanguineo,
		Alergias:             r.Alergias,
		EnfermedadesCronicas: r.EnfermedadesCronicas,
		CesfamID:             r.CesfamID,
	}
}
