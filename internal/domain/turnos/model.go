package turnos

import (
	"time"

	"github.com/google/uuid"

	"github.com/cesfam/portal/internal/platform/scheduling"
)

var TiposTurno = map[string]bool{"diurno": true, "vespertino": true, "nocturno": true}

// Turno is a doctor's shift. Fecha is YYYY-MM-DD; HoraInicio and HoraFin
// are HH:MM with HoraInicio < HoraFin.
type Turno struct {
	ID            uuid.UUID `json:"id"`
	MedicoID      uuid.UUID `json:"medico"`
	MedicoNombre  string    `json:"medico_nombre,omitempty"`
	Fecha         string    `json:"fecha"`
	HoraInicio    string    `json:"hora_inicio"`
	HoraFin       string    `json:"hora_fin"`
	Cargo         string    `json:"cargo"`
	Area          string    `json:"area"`
	TipoTurno     string    `json:"tipo_turno"`
	Status        string    `json:"status"`
	Observaciones string    `json:"observaciones"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (t *Turno) Booking() (scheduling.Booking, error) {
	date, err := scheduling.ParseDate(t.Fecha)
	if err != nil {
		return scheduling.Booking{}, err
	}
	start, err := scheduling.ParseClock(t.HoraInicio)
	if err != nil {
		return scheduling.Booking{}, err
	}
	end, err := scheduling.ParseClock(t.HoraFin)
	if err != nil {
		return scheduling.Booking{}, err
	}
	return scheduling.Booking{
		ID:       t.ID.String(),
		DoctorID: t.MedicoID.String(),
		Date:     date,
		Start:    start,
		End:      end,
		Status:   t.Status,
	}, nil
}

type CreateTurnoRequest struct {
	MedicoID      string `json:"medico" validate:"required,uuid"`
	Fecha         string `json:"fecha" validate:"required,date"`
	HoraInicio    string `json:"hora_inicio" validate:"required,clock"`
	HoraFin       string `json:"hora_fin" validate:"required,clock"`
	Cargo         string `json:"cargo" validate:"required,max=100"`
	Area          string `json:"area" validate:"required,max=100"`
	TipoTurno     string `json:"tipo_turno" validate:"omitempty,oneof=diurno vespertino nocturno"`
	Status        string `json:"status"`
	Observaciones string `json:"observaciones"`
}

// UpdateTurnoRequest is a partial update; nil fields are left alone.
type UpdateTurnoRequest struct {
	Fecha         *string `json:"fecha" validate:"omitempty,date"`
	HoraInicio    *string `json:"hora_inicio" validate:"omitempty,clock"`
	HoraFin       *string `json:"hora_fin" validate:"omitempty,clock"`
	Cargo         *string `json:"cargo" validate:"omitempty,max=100"`
	Area          *string `json:"area" validate:"omitempty,max=100"`
	TipoTurno     *string `json:"tipo_turno" validate:"omitempty,oneof=diurno vespertino nocturno"`
	Status        *string `json:"status"`
	Observaciones *string `json:"observaciones"`
}

type Filter struct {
	MedicoID    *uuid.UUID
	FechaInicio string
	FechaFin    string
	Status      string
}

// Asignacion places one doctor in one cell of the weekly grid.
type Asignacion struct {
	DiaSemana int    `json:"dia_semana" validate:"min=0,max=6"`
	Hora      string `json:"hora" validate:"required,clock"`
	MedicoID  string `json:"medico" validate:"required,uuid"`
}

// AsignarSemanaRequest creates one shift per grid cell for the week that
// contains Semana.
type AsignarSemanaRequest struct {
	Semana       string       `json:"semana" validate:"required,date"`
	DuracionMin  int          `json:"duracion_minutos" validate:"omitempty,min=15,max=720"`
	Cargo        string       `json:"cargo" validate:"required,max=100"`
	Area         string       `json:"area" validate:"required,max=100"`
	TipoTurno    string       `json:"tipo_turno" validate:"omitempty,oneof=diurno vespertino nocturno"`
	Asignaciones []Asignacion `json:"asignaciones" validate:"required,min=1,dive"`
}

// Solicitud asks an admin to move or change a shift.
type Solicitud struct {
	ID              uuid.UUID  `json:"id"`
	TurnoID         *uuid.UUID `json:"turno_original"`
	MedicoID        uuid.UUID  `json:"medico_solicitante"`
	MedicoNombre    string     `json:"medico_solicitante_nombre,omitempty"`
	Motivo          string     `json:"motivo"`
	FechaNueva      *string    `json:"fecha_nueva"`
	HoraInicioNueva *string    `json:"hora_inicio_nueva"`
	HoraFinNueva    *string    `json:"hora_fin_nueva"`
	Status          string     `json:"status"`
	Respuesta       string     `json:"respuesta"`
	CreatedAt       time.Time  `json:"created_at"`
	ResueltaAt      *time.Time `json:"resuelta_at"`
}

type CreateSolicitudRequest struct {
	TurnoID         string  `json:"turno_original" validate:"omitempty,uuid"`
	MedicoID        string  `json:"medico_solicitante" validate:"omitempty,uuid"`
	Motivo          string  `json:"motivo" validate:"required,max=2000"`
	FechaNueva      *string `json:"fecha_nueva" validate:"omitempty,date"`
	HoraInicioNueva *string `json:"hora_inicio_nueva" validate:"omitempty,clock"`
	HoraFinNueva    *string `json:"hora_fin_nueva" validate:"omitempty,clock"`
}

type ResolverSolicitudRequest struct {
	Respuesta string `json:"respuesta" validate:"max=2000"`
}

type SolicitudFilter struct {
	MedicoID *uuid.UUID
	Status   string
}
