package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/cesfam/portal/internal/platform/scheduling"
)

type Medico struct {
	ID           string `json:"id"`
	Nombre       string `json:"nombre"`
	Apellido     string `json:"apellido"`
	Especialidad string `json:"especialidad"`
	CesfamID     string `json:"cesfam"`
}

type Disponibilidad struct {
	ID         string `json:"id"`
	MedicoID   string `json:"medico"`
	DiaSemana  int    `json:"dia_semana"`
	HoraInicio string `json:"hora_inicio"`
	HoraFin    string `json:"hora_fin"`
	Activo     bool   `json:"activo"`
}

// Rule converts the record for the local resolver. Malformed times yield an
// inactive rule.
func (d Disponibilidad) Rule() scheduling.Rule {
	r := scheduling.Rule{ID: d.ID, DoctorID: d.MedicoID, Weekday: time.Weekday(d.DiaSemana), Active: d.Activo}
	start, err1 := scheduling.ParseClock(d.HoraInicio)
	end, err2 := scheduling.ParseClock(d.HoraFin)
	if err1 != nil || err2 != nil {
		r.Active = false
		return r
	}
	r.Start, r.End = start, end
	return r
}

type NewDisponibilidad struct {
	MedicoID   string `json:"medico,omitempty"`
	DiaSemana  int    `json:"dia_semana"`
	HoraInicio string `json:"hora_inicio"`
	HoraFin    string `json:"hora_fin"`
	Activo     *bool  `json:"activo,omitempty"`
}

type Cita struct {
	ID             string `json:"id"`
	PacienteID     string `json:"paciente"`
	MedicoID       string `json:"medico"`
	Fecha          string `json:"fecha"`
	Hora           string `json:"hora"`
	Motivo         string `json:"motivo"`
	Status         string `json:"status"`
	Observaciones  string `json:"observaciones"`
	PacienteNombre string `json:"paciente_nombre,omitempty"`
	MedicoNombre   string `json:"medico_nombre,omitempty"`
}

func (c Cita) BookingID() string { return c.ID }

// Booking reports false when fecha or hora cannot be parsed.
func (c Cita) Booking() (scheduling.Booking, bool) {
	date, err := scheduling.ParseDate(c.Fecha)
	if err != nil {
		return scheduling.Booking{}, false
	}
	start, err := scheduling.ParseClock(c.Hora)
	if err != nil {
		return scheduling.Booking{}, false
	}
	return scheduling.Booking{ID: c.ID, DoctorID: c.MedicoID, Date: date, Start: start, Status: c.Status}, true
}

type NewCita struct {
	MedicoID   string `json:"medico_id"`
	PacienteID string `json:"paciente_id,omitempty"`
	Fecha      string `json:"fecha"`
	Hora       string `json:"hora"`
	Motivo     string `json:"motivo,omitempty"`
}

type Turno struct {
	ID            string `json:"id"`
	MedicoID      string `json:"medico"`
	MedicoNombre  string `json:"medico_nombre,omitempty"`
	Fecha         string `json:"fecha"`
	HoraInicio    string `json:"hora_inicio"`
	HoraFin       string `json:"hora_fin"`
	Cargo         string `json:"cargo"`
	Area          string `json:"area"`
	TipoTurno     string `json:"tipo_turno"`
	Status        string `json:"status"`
	Observaciones string `json:"observaciones"`
}

func (t Turno) BookingID() string { return t.ID }

func (t Turno) Booking() (scheduling.Booking, bool) {
	date, err := scheduling.ParseDate(t.Fecha)
	if err != nil {
		return scheduling.Booking{}, false
	}
	start, err := scheduling.ParseClock(t.HoraInicio)
	if err != nil {
		return scheduling.Booking{}, false
	}
	end, err := scheduling.ParseClock(t.HoraFin)
	if err != nil {
		return scheduling.Booking{}, false
	}
	return scheduling.Booking{ID: t.ID, DoctorID: t.MedicoID, Date: date, Start: start, End: end, Status: t.Status}, true
}

type NewTurno struct {
	MedicoID      string `json:"medico"`
	Fecha         string `json:"fecha"`
	HoraInicio    string `json:"hora_inicio"`
	HoraFin       string `json:"hora_fin"`
	Cargo         string `json:"cargo"`
	Area          string `json:"area"`
	TipoTurno     string `json:"tipo_turno,omitempty"`
	Observaciones string `json:"observaciones,omitempty"`
}

// TurnoPatch holds the fields to change; nil fields are left alone.
type TurnoPatch struct {
	Fecha         *string `json:"fecha,omitempty"`
	HoraInicio    *string `json:"hora_inicio,omitempty"`
	HoraFin       *string `json:"hora_fin,omitempty"`
	Cargo         *string `json:"cargo,omitempty"`
	Area          *string `json:"area,omitempty"`
	TipoTurno     *string `json:"tipo_turno,omitempty"`
	Status        *string `json:"status,omitempty"`
	Observaciones *string `json:"observaciones,omitempty"`
}

type Solicitud struct {
	ID              string  `json:"id"`
	TurnoID         *string `json:"turno_original"`
	MedicoID        string  `json:"medico_solicitante"`
	Motivo          string  `json:"motivo"`
	FechaNueva      *string `json:"fecha_nueva"`
	HoraInicioNueva *string `json:"hora_inicio_nueva"`
	HoraFinNueva    *string `json:"hora_fin_nueva"`
	Status          string  `json:"status"`
	Respuesta       string  `json:"respuesta"`
}

type NewSolicitud struct {
	TurnoID         string  `json:"turno_original,omitempty"`
	MedicoID        string  `json:"medico_solicitante,omitempty"`
	Motivo          string  `json:"motivo"`
	FechaNueva      *string `json:"fecha_nueva,omitempty"`
	HoraInicioNueva *string `json:"hora_inicio_nueva,omitempty"`
	HoraFinNueva    *string `json:"hora_fin_nueva,omitempty"`
}

// Horarios is the server's free-slot answer.
type Horarios struct {
	MedicoID string   `json:"medico_id"`
	Fecha    string   `json:"fecha"`
	Horarios []string `json:"horarios"`
	Fallback bool     `json:"fallback"`
}

// CitaFilter narrows ListCitas. Empty fields are not sent.
type CitaFilter struct {
	MedicoID   string
	PacienteID string
	Fecha      string
	Desde      string
	Hasta      string
	Status     string
}

type TurnoFilter struct {
	MedicoID    string
	FechaInicio string
	FechaFin    string
	Status      string
}

func (c *Client) ListMedicos(ctx context.Context, cesfamID string) ([]Medico, error) {
	q := url.Values{}
	setIf(q, "cesfam", cesfamID)
	return getList[Medico](ctx, c, "list medicos", "/medicos", q)
}

func (c *Client) Disponibilidad(ctx context.Context, medicoID string) ([]Disponibilidad, error) {
	q := url.Values{}
	setIf(q, "medico", medicoID)
	return getList[Disponibilidad](ctx, c, "list disponibilidad", "/medicos/disponibilidad", q)
}

func (c *Client) MiDisponibilidad(ctx context.Context) ([]Disponibilidad, error) {
	return getList[Disponibilidad](ctx, c, "list disponibilidad", "/medicos/disponibilidad/mi_disponibilidad", nil)
}

func (c *Client) CreateDisponibilidad(ctx context.Context, in NewDisponibilidad) (*Disponibilidad, error) {
	var out Disponibilidad
	if err := c.do(ctx, "create disponibilidad", http.MethodPost, "/medicos/disponibilidad", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) HorariosDisponibles(ctx context.Context, medicoID, fecha string) (*Horarios, error) {
	q := url.Values{"medico_id": {medicoID}, "fecha": {fecha}}
	var out Horarios
	if err := c.do(ctx, "horarios disponibles", http.MethodGet, "/citas/horarios-disponibles", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListCitas(ctx context.Context, f CitaFilter) ([]Cita, error) {
	q := url.Values{}
	setIf(q, "medico", f.MedicoID)
	setIf(q, "paciente", f.PacienteID)
	setIf(q, "fecha", f.Fecha)
	setIf(q, "desde", f.Desde)
	setIf(q, "hasta", f.Hasta)
	setIf(q, "status", f.Status)
	return getList[Cita](ctx, c, "list citas", "/citas", q)
}

func (c *Client) MisCitas(ctx context.Context) ([]Cita, error) {
	return getList[Cita](ctx, c, "list citas", "/citas/mis_citas", nil)
}

func (c *Client) CreateCita(ctx context.Context, in NewCita) (*Cita, error) {
	var out Cita
	if err := c.do(ctx, "create cita", http.MethodPost, "/citas", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateCitaEstado(ctx context.Context, id, status string, observaciones *string) (*Cita, error) {
	body := struct {
		Status        string  `json:"status"`
		Observaciones *string `json:"observaciones,omitempty"`
	}{status, observaciones}
	var out Cita
	if err := c.do(ctx, "update cita", http.MethodPatch, "/citas/"+url.PathEscape(id)+"/estado", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTurnos(ctx context.Context, f TurnoFilter) ([]Turno, error) {
	q := url.Values{}
	setIf(q, "medico", f.MedicoID)
	setIf(q, "fecha_inicio", f.FechaInicio)
	setIf(q, "fecha_fin", f.FechaFin)
	setIf(q, "status", f.Status)
	return getList[Turno](ctx, c, "list turnos", "/turnos", q)
}

func (c *Client) MisTurnos(ctx context.Context) ([]Turno, error) {
	return getList[Turno](ctx, c, "list turnos", "/turnos/mis_turnos", nil)
}

func (c *Client) CreateTurno(ctx context.Context, in NewTurno) (*Turno, error) {
	var out Turno
	if err := c.do(ctx, "create turno", http.MethodPost, "/turnos", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateTurno(ctx context.Context, id string, patch TurnoPatch) (*Turno, error) {
	var out Turno
	if err := c.do(ctx, "update turno", http.MethodPatch, "/turnos/"+url.PathEscape(id), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTurno(ctx context.Context, id string) error {
	return c.do(ctx, "delete turno", http.MethodDelete, "/turnos/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) ListSolicitudes(ctx context.Context, status string) ([]Solicitud, error) {
	q := url.Values{}
	setIf(q, "status", status)
	return getList[Solicitud](ctx, c, "list solicitudes", "/turnos/solicitudes", q)
}

func (c *Client) CreateSolicitud(ctx context.Context, in NewSolicitud) (*Solicitud, error) {
	var out Solicitud
	if err := c.do(ctx, "create solicitud", http.MethodPost, "/turnos/solicitudes", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AprobarSolicitud(ctx context.Context, id, respuesta string) (*Solicitud, error) {
	return c.resolve(ctx, id, "aprobar", respuesta)
}

func (c *Client) RechazarSolicitud(ctx context.Context, id, respuesta string) (*Solicitud, error) {
	return c.resolve(ctx, id, "rechazar", respuesta)
}

func (c *Client) resolve(ctx context.Context, id, action, respuesta string) (*Solicitud, error) {
	body := map[string]string{"respuesta": respuesta}
	var out Solicitud
	path := "/turnos/solicitudes/" + url.PathEscape(id) + "/" + action
	if err := c.do(ctx, "resolve solicitud", http.MethodPost, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type Asignacion struct {
	DiaSemana int    `json:"dia_semana"`
	Hora      string `json:"hora"`
	MedicoID  string `json:"medico"`
}

// Semana is a weekly grid submission: each assignment becomes one shift.
type Semana struct {
	Semana       string       `json:"semana"`
	DuracionMin  int          `json:"duracion_minutos,omitempty"`
	Cargo        string       `json:"cargo"`
	Area         string       `json:"area"`
	TipoTurno    string       `json:"tipo_turno,omitempty"`
	Asignaciones []Asignacion `json:"asignaciones"`
}

// AsignarSemana creates every shift of the grid or none of them.
func (c *Client) AsignarSemana(ctx context.Context, in Semana) ([]Turno, error) {
	var out listBody[Turno]
	if err := c.do(ctx, "create turno", http.MethodPost, "/turnos/asignar-semana", nil, in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type Historial struct {
	ID            string `json:"id"`
	CitaID        string `json:"cita"`
	PacienteID    string `json:"paciente"`
	MedicoID      string `json:"medico"`
	Fecha         string `json:"fecha"`
	Diagnostico   string `json:"diagnostico"`
	CodigoCIE10   string `json:"codigo_cie10,omitempty"`
	Tratamiento   string `json:"tratamiento"`
	Observaciones string `json:"observaciones,omitempty"`
}

type NewHistorial struct {
	CitaID        string `json:"cita"`
	Diagnostico   string `json:"diagnostico"`
	CodigoCIE10   string `json:"codigo_cie10,omitempty"`
	Tratamiento   string `json:"tratamiento"`
	Observaciones string `json:"observaciones,omitempty"`
}

func (c *Client) ListHistorial(ctx context.Context, pacienteID string) ([]Historial, error) {
	q := url.Values{}
	setIf(q, "paciente", pacienteID)
	return getList[Historial](ctx, c, "list historial", "/citas/historial", q)
}

func (c *Client) CreateHistorial(ctx context.Context, in NewHistorial) (*Historial, error) {
	var out Historial
	if err := c.do(ctx, "create historial", http.MethodPost, "/citas/historial", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type Estadisticas struct {
	Desde                string `json:"desde"`
	CitasMes             int    `json:"citas_mes"`
	CitasCompletadas     int    `json:"citas_completadas"`
	CitasPorEspecialidad []struct {
		Especialidad string `json:"especialidad"`
		Total        int    `json:"total"`
	} `json:"citas_por_especialidad"`
	MedicosActivos int `json:"medicos_activos"`
}

// Estadisticas is admin-only; an empty desde means the current month.
func (c *Client) Estadisticas(ctx context.Context, desde string) (*Estadisticas, error) {
	q := url.Values{}
	setIf(q, "desde", desde)
	var out Estadisticas
	if err := c.do(ctx, "estadisticas", http.MethodGet, "/administradores/estadisticas", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
