package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStatus     = errors.New("unknown status")
)

// Appointment statuses.
const (
	CitaPendiente  = "pendiente"
	CitaConfirmada = "confirmada"
	CitaCompletada = "completada"
	CitaCancelada  = "cancelada"
)

// Shift statuses. "pendiente" is accepted as an alias of programado.
const (
	TurnoProgramado = "programado"
	TurnoActivo     = "activo"
	TurnoCompletado = "completado"
	TurnoCancelado  = "cancelado"
)

// Shift-change request statuses.
const (
	SolicitudPendiente = "pendiente"
	SolicitudAprobada  = "aprobada"
	SolicitudRechazada = "rechazada"
)

// Machine is a small finite-state machine over string statuses. States with
// no outgoing edges are terminal.
type Machine struct {
	name    string
	initial string
	edges   map[string][]string
	aliases map[string]string
}

var (
	Appointments = Machine{
		name:    "cita",
		initial: CitaPendiente,
		edges: map[string][]string{
			CitaPendiente:  {CitaConfirmada, CitaCancelada},
			CitaConfirmada: {CitaCompletada, CitaCancelada},
			CitaCompletada: nil,
			CitaCancelada:  nil,
		},
	}

	Shifts = Machine{
		name:    "turno",
		initial: TurnoProgramado,
		edges: map[string][]string{
			TurnoProgramado: {TurnoActivo, TurnoCancelado},
			TurnoActivo:     {TurnoCompletado, TurnoCancelado},
			TurnoCompletado: nil,
			TurnoCancelado:  nil,
		},
		aliases: map[string]string{"pendiente": TurnoProgramado},
	}

	Requests = Machine{
		name:    "solicitud",
		initial: SolicitudPendiente,
		edges: map[string][]string{
			SolicitudPendiente: {SolicitudAprobada, SolicitudRechazada},
			SolicitudAprobada:  nil,
			SolicitudRechazada: nil,
		},
	}
)

func (m Machine) Initial() string { return m.initial }

// Normalize resolves aliases. Unknown values are returned unchanged.
func (m Machine) Normalize(s string) string {
	if to, ok := m.aliases[s]; ok {
		return to
	}
	return s
}

func (m Machine) Valid(s string) bool {
	_, ok := m.edges[m.Normalize(s)]
	return ok
}

func (m Machine) Terminal(s string) bool {
	next, ok := m.edges[m.Normalize(s)]
	return ok && len(next) == 0
}

// CanTransition reports whether from -> to is a listed edge.
func (m Machine) CanTransition(from, to string) bool {
	return m.Transition(from, to) == nil
}

// Transition validates a status change. Staying in the same state is not a
// transition and is rejected too.
func (m Machine) Transition(from, to string) error {
	from, to = m.Normalize(from), m.Normalize(to)
	next, ok := m.edges[from]
	if !ok {
		return fmt.Errorf("%w: %s status %q", ErrUnknownStatus, m.name, from)
	}
	if _, ok := m.edges[to]; !ok {
		return fmt.Errorf("%w: %s status %q", ErrUnknownStatus, m.name, to)
	}
	for _, n := range next {
		if n == to {
			return nil
		}
	}
	if len(next) == 0 {
		return fmt.Errorf("%w: %s is %s and cannot change", ErrInvalidTransition, m.name, from)
	}
	return fmt.Errorf("%w: %s cannot move from %s to %s", ErrInvalidTransition, m.name, from, to)
}

// Next lists the statuses reachable from s in one step.
func (m Machine) Next(s string) []string {
	next := m.edges[m.Normalize(s)]
	out := make([]string, len(next))
	copy(out, next)
	return out
}
