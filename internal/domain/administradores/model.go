package administradores

import "github.com/google/uuid"

// Estadisticas summarises appointment activity from Desde on, for the admin
// dashboard.
type Estadisticas struct {
	Desde                string              `json:"desde"`
	CitasMes             int                 `json:"citas_mes"`
	CitasCompletadas     int                 `json:"citas_completadas"`
	CitasPorEspecialidad []EspecialidadCount `json:"citas_por_especialidad"`
	MedicosActivos       int                 `json:"medicos_activos"`
}

type EspecialidadCount struct {
	Especialidad string `json:"especialidad"`
	Total        int    `json:"total"`
}

type StatsFilter struct {
	Desde    string
	CesfamID *uuid.UUID
}
