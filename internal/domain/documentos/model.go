package documentos

import (
	"io"
	"time"

	"github.com/google/uuid"
)

var Tipos = []string{"receta", "diagnostico", "licencia", "examen", "reporte"}

// Documento is a clinical document issued to a patient. Documents are
// append-only; only admins delete them.
type Documento struct {
	ID             uuid.UUID  `json:"id"`
	Tipo           string     `json:"tipo"`
	PacienteID     uuid.UUID  `json:"paciente"`
	PacienteNombre string     `json:"paciente_nombre,omitempty"`
	CitaID         *uuid.UUID `json:"cita"`
	MedicoID       *uuid.UUID `json:"medico"`
	MedicoNombre   string     `json:"medico_nombre,omitempty"`
	Titulo         string     `json:"titulo"`
	Contenido      string     `json:"contenido"`
	ArchivoKey     string     `json:"-"`
	ArchivoNombre  string     `json:"archivo_nombre,omitempty"`
	ArchivoTipo    string     `json:"archivo_tipo,omitempty"`
	ArchivoSize    int64      `json:"archivo_size,omitempty"`
	ArchivoURL     string     `json:"archivo_url"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (d *Documento) HasArchivo() bool { return d.ArchivoKey != "" }

// CreateDocumentoRequest is accepted as JSON or as multipart form fields.
type CreateDocumentoRequest struct {
	Tipo       string `json:"tipo" form:"tipo" validate:"required,oneof=receta diagnostico licencia examen reporte"`
	PacienteID string `json:"paciente" form:"paciente" validate:"omitempty,uuid"`
	CitaID     string `json:"cita" form:"cita" validate:"omitempty,uuid"`
	MedicoID   string `json:"medico" form:"medico" validate:"omitempty,uuid"`
	Titulo     string `json:"titulo" form:"titulo" validate:"max=200"`
	Contenido  string `json:"contenido" form:"contenido" validate:"max=20000"`
}

// Upload is a file attached to a new document.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Filter struct {
	Tipo       string
	PacienteID *uuid.UUID
	CitaID     *uuid.UUID
	MedicoID   *uuid.UUID
}

// CitaParties are the patient and doctor of an appointment.
type CitaParties struct {
	PacienteID uuid.UUID
	MedicoID   uuid.UUID
}
