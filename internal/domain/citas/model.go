package citas

import (
	"time"

	"github.com/google/uuid"

	"github.com/cesfam/portal/internal/platform/scheduling"
)

// Cita is a patient appointment in a doctor's slot. Fecha is YYYY-MM-DD and
// Hora is HH:MM.
type Cita struct {
	ID             uuid.UUID `json:"id"`
	PacienteID     uuid.UUID `json:"paciente"`
	MedicoID       uuid.UUID `json:"medico"`
	Fecha          string    `json:"fecha"`
	Hora           string    `json:"hora"`
	Motivo         string    `json:"motivo"`
	Status         string    `json:"status"`
	Observaciones  string    `json:"observaciones"`
	PacienteNombre string    `json:"paciente_nombre,omitempty"`
	MedicoNombre   string    `json:"medico_nombre,omitempty"`
	Especialidad   string    `json:"especialidad,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Booking converts the appointment for the conflict checker. Appointments
// carry no end; the checker applies the slot length.
func (c *Cita) Booking() (scheduling.Booking, error) {
	date, err := scheduling.ParseDate(c.Fecha)
	if err != nil {
		return scheduling.Booking{}, err
	}
	start, err := scheduling.ParseClock(c.Hora)
	if err != nil {
		return scheduling.Booking{}, err
	}
	return scheduling.Booking{
		ID:       c.ID.String(),
		DoctorID: c.MedicoID.String(),
		Date:     date,
		Start:    start,
		Status:   c.Status,
	}, nil
}

type CreateCitaRequest struct {
	MedicoID string `json:"medico_id" validate:"required,uuid"`
	// PacienteID is honoured for doctors and admins booking on a patient's
	// behalf. Patients always book for themselves.
	PacienteID string `json:"paciente_id" validate:"omitempty,uuid"`
	Fecha      string `json:"fecha" validate:"required,date"`
	Hora       string `json:"hora" validate:"required,clock"`
	Motivo     string `json:"motivo" validate:"max=500"`
	Status     string `json:"status"`
}

type UpdateEstadoRequest struct {
	Status        string  `json:"status" validate:"required"`
	Observaciones *string `json:"observaciones"`
}

type Filter struct {
	PacienteID *uuid.UUID
	MedicoID   *uuid.UUID
	Fecha      string
	Desde      string
	Hasta      string
	Status     string
}

// Horarios is the free-slot answer for one doctor and date.
type Horarios struct {
	MedicoID string   `json:"medico_id"`
	Fecha    string   `json:"fecha"`
	Horarios []string `json:"horarios"`
	// Fallback is set when the rules or bookings could not be read and the
	// default slate was offered instead.
	Fallback bool `json:"fallback"`
}

// Historial is the clinical record written for an attended appointment. An
// appointment has at most one.
type Historial struct {
	ID             uuid.UUID `json:"id"`
	CitaID         uuid.UUID `json:"cita"`
	PacienteID     uuid.UUID `json:"paciente"`
	MedicoID       uuid.UUID `json:"medico"`
	Fecha          string    `json:"fecha"`
	Diagnostico    string    `json:"diagnostico"`
	CodigoCIE10    string    `json:"codigo_cie10"`
	Tratamiento    string    `json:"tratamiento"`
	Observaciones  string    `json:"observaciones"`
	PacienteNombre string    `json:"paciente_nombre,omitempty"`
	MedicoNombre   string    `json:"medico_nombre,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CreateHistorialRequest struct {
	CitaID        string `json:"cita" validate:"required,uuid"`
	Diagnostico   string `json:"diagnostico" validate:"required,max=2000"`
	CodigoCIE10   string `json:"codigo_cie10" validate:"omitempty,cie10"`
	Tratamiento   string `json:"tratamiento" validate:"required,max=2000"`
	Observaciones string `json:"observaciones" validate:"max=2000"`
}

type HistorialFilter struct {
	PacienteID *uuid.UUID
	MedicoID   *uuid.UUID
	CitaID     *uuid.UUID
}
