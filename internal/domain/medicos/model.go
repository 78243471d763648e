package medicos

import (
	"time"

	"github.com/google/uuid"

	"github.com/cesfam/portal/internal/platform/scheduling"
)

type Medico struct {
	ID             uuid.UUID  `json:"id"`
	UserID         string     `json:"user_id"`
	Nombre         string     `json:"nombre"`
	Apellido       string     `json:"apellido"`
	Especialidad   string     `json:"especialidad"`
	RUTProfesional string     `json:"rut_profesional"`
	Telefono       string     `json:"telefono"`
	CesfamID       *uuid.UUID `json:"cesfam"`
	CesfamNombre   string     `json:"cesfam_nombre,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (m *Medico) NombreCompleto() string {
	if m.Apellido == "" {
		return m.Nombre
	}
	return m.Nombre + " " + m.Apellido
}

// Disponibilidad is a weekly availability rule. DiaSemana counts from
// Sunday = 0.
type Disponibilidad struct {
	ID         uuid.UUID `json:"id"`
	MedicoID   uuid.UUID `json:"medico"`
	DiaSemana  int       `json:"dia_semana"`
	HoraInicio string    `json:"hora_inicio"`
	HoraFin    string    `json:"hora_fin"`
	Activo     bool      `json:"activo"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToRule converts the stored row into a resolver rule. Rows are validated on
// write, so parse failures only happen on hand-edited data.
func (d *Disponibilidad) ToRule() (scheduling.Rule, error) {
	start, err := scheduling.ParseClock(d.HoraInicio)
	if err != nil {
		return scheduling.Rule{}, err
	}
	end, err := scheduling.ParseClock(d.HoraFin)
	if err != nil {
		return scheduling.Rule{}, err
	}
	return scheduling.Rule{
		ID:       d.ID.String(),
		DoctorID: d.MedicoID.String(),
		Weekday:  time.Weekday(d.DiaSemana),
		Start:    start,
		End:      end,
		Active:   d.Activo,
	}, nil
}

type CreateDisponibilidadRequest struct {
	// MedicoID is only honoured for admins; doctors always write their own.
	MedicoID   *uuid.UUID `json:"medico"`
	DiaSemana  *int       `json:"dia_semana" validate:"required,min=0,max=6"`
	HoraInicio string     `json:"hora_inicio" validate:"required,clock"`
	HoraFin    string     `json:"hora_fin" validate:"required,clock"`
	Activo     *bool      `json:"activo"`
}

type MedicoFilter struct {
	CesfamID     *uuid.UUID
	Especialidad string
}
