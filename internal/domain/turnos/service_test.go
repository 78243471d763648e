package turnos

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cesfam/portal/internal/platform/auth"
	"github.com/cesfam/portal/internal/platform/events"
	"github.com/cesfam/portal/internal/platform/scheduling"
)

// -- Mock Repositories --

type mockTurnoRepo struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*Turno
	creates int
}

func newMockTurnoRepo() *mockTurnoRepo {
	return &mockTurnoRepo{items: make(map[uuid.UUID]*Turno)}
}

func (m *mockTurnoRepo) Create(_ context.Context, t *Turno) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	m.items[t.ID] = &cp
	return nil
}

func (m *mockTurnoRepo) put(t *Turno) *Turno {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.New()
	cp := *t
	m.items[t.ID] = &cp
	return t
}

func (m *mockTurnoRepo) GetByID(_ context.Context, id uuid.UUID) (*Turno, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("turno %w", ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *mockTurnoRepo) Update(_ context.Context, t *Turno) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[t.ID]; !ok {
		return fmt.Errorf("turno %w", ErrNotFound)
	}
	t.UpdatedAt = time.Now()
	cp := *t
	m.items[t.ID] = &cp
	return nil
}

func (m *mockTurnoRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return fmt.Errorf("turno %w", ErrNotFound)
	}
	delete(m.items, id)
	return nil
}

func (m *mockTurnoRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Turno, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Turno
	for _, t := range m.items {
		if f.MedicoID != nil && t.MedicoID != *f.MedicoID {
			continue
		}
		if f.FechaInicio != "" && t.Fecha < f.FechaInicio {
			continue
		}
		if f.FechaFin != "" && t.Fecha > f.FechaFin {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fecha+out[i].HoraInicio < out[j].Fecha+out[j].HoraInicio })
	return out, len(out), nil
}

func (m *mockTurnoRepo) ListByMedicoFecha(_ context.Context, medicoID uuid.UUID, fecha string) ([]*Turno, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Turno
	for _, t := range m.items {
		if t.MedicoID == medicoID && t.Fecha == fecha {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockTurnoRepo) snapshot() map[uuid.UUID]Turno {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]Turno, len(m.items))
	for id, t := range m.items {
		out[id] = *t
	}
	return out
}

func (m *mockTurnoRepo) restore(snap map[uuid.UUID]Turno) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[uuid.UUID]*Turno, len(snap))
	for id, t := range snap {
		cp := t
		m.items[id] = &cp
	}
}

type mockSolicitudRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Solicitud
}

func newMockSolicitudRepo() *mockSolicitudRepo {
	return &mockSolicitudRepo{items: make(map[uuid.UUID]*Solicitud)}
}

func (m *mockSolicitudRepo) Create(_ context.Context, s *Solicitud) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

func (m *mockSolicitudRepo) GetByID(_ context.Context, id uuid.UUID) (*Solicitud, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("solicitud %w", ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *mockSolicitudRepo) Resolve(_ context.Context, s *Solicitud) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[s.ID]
	if !ok {
		return fmt.Errorf("solicitud %w", ErrNotFound)
	}
	if cur.Status != scheduling.SolicitudPendiente {
		return ErrAlreadyResolved
	}
	now := time.Now()
	s.ResueltaAt = &now
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

func (m *mockSolicitudRepo) List(_ context.Context, f SolicitudFilter, limit, offset int) ([]*Solicitud, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Solicitud
	for _, s := range m.items {
		if f.MedicoID != nil && s.MedicoID != *f.MedicoID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockSolicitudRepo) status(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Status
}

// rollbackTx restores the turno repository when fn fails, like a
// transaction would, and records the keys it was asked to lock.
type rollbackTx struct {
	repo  *mockTurnoRepo
	mu    sync.Mutex
	keys  [][]string
	depth int
}

func (r *rollbackTx) Atomically(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	r.keys = append(r.keys, keys)
	outer := r.depth == 0
	r.depth++
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.depth--
		r.mu.Unlock()
	}()

	if !outer {
		return fn(ctx)
	}
	snap := r.repo.snapshot()
	if err := fn(ctx); err != nil {
		r.repo.restore(snap)
		return err
	}
	return nil
}

type profileStub struct{}

func (profileStub) MedicoID(_ context.Context, p auth.Principal) (uuid.UUID, error) {
	if p.MedicoID == "" {
		return uuid.Nil, auth.ErrNoProfile
	}
	return uuid.Parse(p.MedicoID)
}

// -- Fixture --

// 2025-01-15 is a Wednesday; the next week starts on 2025-01-20.
var fixedNow = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc         *Service
	turnos      *mockTurnoRepo
	solicitudes *mockSolicitudRepo
	tx          *rollbackTx
	events      *events.Recorder

	medico uuid.UUID
	other  uuid.UUID
	doctor auth.Principal
	admin  auth.Principal
}

func newFixture() *fixture {
	f := &fixture{
		turnos:      newMockTurnoRepo(),
		solicitudes: newMockSolicitudRepo(),
		events:      &events.Recorder{},
		medico:      uuid.New(),
		other:       uuid.New(),
	}
	f.tx = &rollbackTx{repo: f.turnos}
	f.doctor = auth.Principal{UserID: "doc", Roles: []string{auth.RoleMedico}, MedicoID: f.medico.String()}
	f.admin = auth.Principal{UserID: "root", Roles: []string{auth.RoleAdmin}}
	f.svc = NewService(f.turnos, f.solicitudes, f.tx, profileStub{},
		WithPublisher(f.events),
		WithLogger(zerolog.Nop()),
		WithClock(func() time.Time { return fixedNow }, time.UTC),
	)
	return f
}

func (f *fixture) shift(medico uuid.UUID, fecha, start, end, status string) *Turno {
	return f.turnos.put(&Turno{
		MedicoID: medico, Fecha: fecha, HoraInicio: start, HoraFin: end,
		Cargo: "Medico general", Area: "Urgencia", TipoTurno: "diurno", Status: status,
	})
}

func (f *fixture) request(fecha, start, end string) *CreateTurnoRequest {
	return &CreateTurnoRequest{
		MedicoID: f.medico.String(), Fecha: fecha, HoraInicio: start, HoraFin: end,
		Cargo: "Medico general", Area: "Urgencia",
	}
}

// -- Create --

func TestCreate(t *testing.T) {
	f := newFixture()

	got, err := f.svc.Create(context.Background(), f.admin, f.request("2025-01-20", "08:00:00", "12:00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != scheduling.TurnoProgramado {
		t.Errorf("expected programado, got %s", got.Status)
	}
	if got.HoraInicio != "08:00" {
		t.Errorf("expected seconds dropped, got %s", got.HoraInicio)
	}
	if got.TipoTurno != "diurno" {
		t.Errorf("expected diurno, got %s", got.TipoTurno)
	}
	if types := f.events.Types(); len(types) != 1 || types[0] != events.TurnoCreado {
		t.Errorf("expected turno.creado event, got %v", types)
	}
	want := "turno:" + f.medico.String() + ":2025-01-20"
	if len(f.tx.keys) != 1 || f.tx.keys[0][0] != want {
		t.Errorf("expected lock on %s, got %v", want, f.tx.keys)
	}
}

func TestCreate_PendienteAliasAccepted(t *testing.T) {
	f := newFixture()
	req := f.request("2025-01-20", "14:00", "18:00")
	req.Status = "pendiente"
	got, err := f.svc.Create(context.Background(), f.admin, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != scheduling.TurnoProgramado || got.TipoTurno != "vespertino" {
		t.Errorf("unexpected shift %+v", got)
	}
}

func TestCreate_Overlap(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		conflict   bool
	}{
		{"starts inside", "09:00", "10:00", true},
		{"covers", "07:00", "13:00", true},
		{"touches end", "12:00", "14:00", false},
		{"before", "06:00", "08:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.shift(f.medico, "2025-01-20", "08:00", "12:00", scheduling.TurnoProgramado)

			_, err := f.svc.Create(context.Background(), f.admin, f.request("2025-01-20", tt.start, tt.end))
			if tt.conflict && !errors.Is(err, scheduling.ErrConflict) {
				t.Errorf("expected ErrConflict, got %v", err)
			}
			if !tt.conflict && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreate_OtherDoctorAndCancelledDoNotBlock(t *testing.T) {
	f := newFixture()
	f.shift(f.other, "2025-01-20", "08:00", "12:00", scheduling.TurnoProgramado)
	f.shift(f.medico, "2025-01-20", "08:00", "12:00", scheduling.TurnoCancelado)

	if _, err := f.svc.Create(context.Background(), f.admin, f.request("2025-01-20", "08:00", "12:00")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name   string
		caller auth.Principal
		req    *CreateTurnoRequest
		want   error
	}{
		{"doctor cannot create", f.doctor, f.request("2025-01-20", "08:00", "12:00"), ErrForbidden},
		{"end before start", f.admin, f.request("2025-01-20", "12:00", "08:00"), ErrValidation},
		{"equal times", f.admin, f.request("2025-01-20", "08:00", "08:00"), ErrValidation},
		{"past date", f.admin, f.request("2025-01-10", "08:00", "12:00"), scheduling.ErrInvalidSlot},
		{"bad tipo", f.admin, func() *CreateTurnoRequest {
			r := f.request("2025-01-20", "08:00", "12:00")
			r.TipoTurno = "madrugada"
			return r
		}(), ErrValidation},
		{"non-initial status", f.admin, func() *CreateTurnoRequest {
			r := f.request("2025-01-20", "08:00", "12:00")
			r.Status = scheduling.TurnoActivo
			return r
		}(), ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Create(context.Background(), tt.caller, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if f.turnos.creates != 0 {
		t.Errorf("expected no create call, got %d", f.turnos.creates)
	}
}

// -- Update --

func TestUpdate_StatusMachine(t *testing.T) {
	f := newFixture()
	turno := f.shift(f.medico, "2025-01-20", "08:00", "12:00", scheduling.TurnoProgramado)
	activo, completado, borrado := scheduling.TurnoActivo, scheduling.TurnoCompletado, "borrado"

	got, err := f.svc.Update(context.Background(), f.admin, turno.ID, &UpdateTurnoRequest{Status: &activo})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != activo {
		t.Errorf("expected activo, got %s", got.Status)
	}
	if _, err := f.svc.Update(context.Background(), f.admin, turno.ID, &UpdateTurnoRequest{Status: &completado}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.Update(context.Background(), f.admin, turno.ID, &UpdateTurnoRequest{Status: &activo}); !errors.Is(err, scheduling.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition leaving completado, got %v", err)
	}
	if _, err := f.svc.Update(context.Background(), f.admin, turno.ID, &UpdateTurnoRequest{Status: &borrado}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for unknown status, got %v", err)
	}
}

func TestUpdate_RescheduleIgnoresItself(t *testing.T) {
	f := newFixture()
	turno := f.shift(f.medico, "2025-01-20", "08:00", "12:00", scheduling.TurnoProgramado)
	start := "10:00"
	end := "14:00"

	got, err := f.svc.Update(context.Background(), f.admin, turno.ID, &UpdateTurnoRequest{HoraInicio: &start, HoraFin: &end})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.HoraInicio != "10:00" || got.HoraFin != "14:00" {
		t.Errorf("expected 10:00-14:00, got %s-%s", got.HoraInicio, got.HoraFin)
	}
}

func TestUpdate_RescheduleIntoOverlap(t *testing.T) {
	f := newFixture()
	f.shift(f.medico, "2025-01-21", "08:00", "12:00", scheduling.TurnoProgramado)
	turno := f.shift(f.medico, "2025-01-20", "08:00", "12:00", scheduling.TurnoProgramado)
	fecha := "2025-01-21"

	_, err := f.svc.Update(context.Background(), f.admin, turno.ID, &UpdateTurnoRequest{Fecha: &fecha})
	if !errors.Is(err, scheduling.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	stored, _ := f.turnos.GetByID(context.Background(), turno.ID)
	if stored.Fecha != "2025-01-20" {
		t.Errorf("expected shift to stay on 2025-01-20, got %s", stored.Fecha)
	}
	if keys := f.tx.keys[len(f.tx.keys)-1]; len(keys) != 2 {
		t.Errorf("expected locks on both days, got %v", keys)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture()
	turno := f.shift(f.medico, "2025-01-20", "08:00", "12:00", scheduling.TurnoProgramado)

	if err := f.svc.Delete(context.Background(), f.doctor, turno.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if err := f.svc.Delete(context.Background(), f.admin, turno.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.Delete(context.Background(), f.admin, turno.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// -- Listing --

func TestList_DoctorSeesOwnShifts(t *testing.T) {
	f := newFixture()
	f.shift(f.medico, "2025-01-20", "08:00", "12:00", scheduling.TurnoProgramado)
	f.shift(f.other, "2025-01-20", "08:00", "12:00", scheduling.TurnoProgramado)

	items, total, err := f.svc.List(context.Background(), f.doctor, Filter{MedicoID: &f.other}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || items[0].MedicoID != f.medico {
		t.Errorf("expected only the doctor's own shift, got %d", total)
	}
	if _, total, _ := f.svc.List(context.Background(), f.admin, Filter{}, 20, 0); total != 2 {
		t.Errorf("expected admin to see 2, got %d", total)
	}
	patient := auth.Principal{UserID: "p", Roles: []string{auth.RolePaciente}}
	if _, total, _ := f.svc.List(context.Background(), patient, Filter{}, 20, 0); total != 0 {
		t.Errorf("expected patient to see none, got %d", total)
	}
}

func TestList_StatusAlias(t *testing.T) {
	f := newFixture()
	f.shift(f.medico, "2025-01-20", "08:00", "12:00", scheduling.TurnoProgramado)

	_, total, err := f.svc.List(context.Background(), f.admin, Filter{Status: "pendiente"}, 20, 0)
	if err != nil || total != 1 {
		t.Errorf("expected pendiente to match programado, got %d (%v)", total, err)
	}
	if _, _, err := f.svc.List(context.Background(), f.admin, Filter{Status: "x"}, 20, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestMisTurnos_FromToday(t *testing.T) {
	f := newFixture()
	f.shift(f.medico, "2025-01-10", "08:00", "12:00", scheduling.TurnoCompletado)
	f.shift(f.medico, "2025-01-15", "08:00", "12:00", scheduling.TurnoActivo)
	f.shift(f.medico, "2025-01-20", "08:00", "12:00", scheduling.TurnoProgramado)

	items, total, err := f.svc.MisTurnos(context.Background(), f.doctor, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || items[0].Fecha != "2025-01-15" {
		t.Errorf("expected today's and next week's shift, got %d", total)
	}
	if _, total, _ := f.svc.MisTurnos(context.Background(), f.admin, 20, 0); total != 0 {
		t.Errorf("expected admin without profile to get none, got %d", total)
	}
}

// -- Weekly grid --

func (f *fixture) semana(asignaciones ...Asignacion) *AsignarSemanaRequest {
	return &AsignarSemanaRequest{
		Semana: "2025-01-22", Cargo: "Medico general", Area: "Policlinico",
		Asignaciones: asignaciones,
	}
}

func TestAsignarSemana(t *testing.T) {
	f := newFixture()
	req := f.semana(
		Asignacion{DiaSemana: 1, Hora: "08:00", MedicoID: f.medico.String()},
		Asignacion{DiaSemana: 1, Hora: "09:00", MedicoID: f.medico.String()},
		Asignacion{DiaSemana: 5, Hora: "15:00", MedicoID: f.other.String()},
	)

	got, err := f.svc.AsignarSemana(context.Background(), f.admin, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 shifts, got %d", len(got))
	}
	if got[0].Fecha != "2025-01-20" || got[0].HoraFin != "09:00" {
		t.Errorf("expected Monday 08:00-09:00, got %s %s-%s", got[0].Fecha, got[0].HoraInicio, got[0].HoraFin)
	}
	if got[2].Fecha != "2025-01-24" || got[2].TipoTurno != "vespertino" {
		t.Errorf("expected Friday vespertino, got %s %s", got[2].Fecha, got[2].TipoTurno)
	}
	if n := len(f.events.Types()); n != 3 {
		t.Errorf("expected 3 events, got %d", n)
	}
}

func TestAsignarSemana_DuplicateCell(t *testing.T) {
	f := newFixture()
	req := f.semana(
		Asignacion{DiaSemana: 2, Hora: "08:00", MedicoID: f.medico.String()},
		Asignacion{DiaSemana: 2, Hora: "08:00", MedicoID: f.other.String()},
	)
	if _, err := f.svc.AsignarSemana(context.Background(), f.admin, req); !errors.Is(err, scheduling.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestAsignarSemana_AllOrNothing(t *testing.T) {
	f := newFixture()
	f.shift(f.other, "2025-01-24", "15:00", "16:00", scheduling.TurnoProgramado)
	req := f.semana(
		Asignacion{DiaSemana: 1, Hora: "08:00", MedicoID: f.medico.String()},
		Asignacion{DiaSemana: 5, Hora: "15:00", MedicoID: f.other.String()},
	)

	if _, err := f.svc.AsignarSemana(context.Background(), f.admin, req); !errors.Is(err, scheduling.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, total, _ := f.svc.List(context.Background(), f.admin, Filter{}, 20, 0); total != 1 {
		t.Errorf("expected the Monday shift to be rolled back, got %d shifts", total)
	}
	if n := len(f.events.Types()); n != 0 {
		t.Errorf("expected no events, got %d", n)
	}
}

func TestAsignarSemana_ShiftPastMidnightRejected(t *testing.T) {
	f := newFixture()
	late := f.semana(Asignacion{DiaSemana: 1, Hora: "23:00", MedicoID: f.medico.String()})
	if _, err := f.svc.AsignarSemana(context.Background(), f.admin, late); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for 23:00-24:00, got %v", err)
	}

	long := f.semana(Asignacion{DiaSemana: 1, Hora: "22:00", MedicoID: f.medico.String()})
	long.DuracionMin = 120
	if _, err := f.svc.AsignarSemana(context.Background(), f.admin, long); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for 22:00-24:00, got %v", err)
	}

	if _, total, _ := f.svc.List(context.Background(), f.admin, Filter{}, 20, 0); total != 0 {
		t.Fatalf("expected no stored shifts, got %d", total)
	}
	if _, err := f.svc.Create(context.Background(), f.admin, f.request("2025-01-20", "23:00", "23:30")); err != nil {
		t.Errorf("expected the late slot to stay free, got %v", err)
	}
	if _, err := f.svc.Create(context.Background(), f.admin, f.request("2025-01-20", "23:00", "23:30")); !errors.Is(err, scheduling.ErrConflict) {
		t.Errorf("expected ErrConflict on the second booking, got %v", err)
	}
}

func TestAsignarSemana_PastWeek(t *testing.T) {
	f := newFixture()
	req := f.semana(Asignacion{DiaSemana: 1, Hora: "08:00", MedicoID: f.medico.String()})
	req.Semana = "2025-01-13"
	if _, err := f.svc.AsignarSemana(context.Background(), f.admin, req); !errors.Is(err, scheduling.ErrInvalidSlot) {
		t.Errorf("expected ErrInvalidSlot, got %v", err)
	}
}

// -- Solicitudes --

func ptr(s string) *string { return &s }

func TestCreateSolicitud(t *testing.T) {
	f := newFixture()
	turno := f.shift(f.medico, "2025-01-20", "08:00", "12:00", scheduling.TurnoProgramado)

	sol, err := f.svc.CreateSolicitud(context.Background(), f.doctor, &CreateSolicitudRequest{
		TurnoID: turno.ID.String(), Motivo: "capacitacion", FechaNueva: ptr("2025-01-22"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sol.Status != scheduling.SolicitudPendiente || sol.MedicoID != f.medico {
		t.Errorf("unexpected solicitud %+v", sol)
	}
	if types := f.events.Types(); len(types) != 1 || types[0] != events.SolicitudCreada {
		t.Errorf("expected solicitud.creada, got %v", types)
	}
}

func TestCreateSolicitud_Rejections(t *testing.T) {
	f := newFixture()
	ajeno := f.shift(f.other, "2025-01-20", "08:00", "12:00", scheduling.TurnoProgramado)
	propio := f.shift(f.medico, "2025-01-20", "08:00", "12:00", scheduling.TurnoProgramado)
	cerrado := f.shift(f.medico, "2025-01-21", "08:00", "12:00", scheduling.TurnoCompletado)
	patient := auth.Principal{UserID: "p", Roles: []string{auth.RolePaciente}}

	tests := []struct {
		name   string
		caller auth.Principal
		req    *CreateSolicitudRequest
		want   error
	}{
		{"another doctor's shift", f.doctor, &CreateSolicitudRequest{TurnoID: ajeno.ID.String(), Motivo: "x"}, ErrForbidden},
		{"not a doctor", patient, &CreateSolicitudRequest{Motivo: "x"}, ErrForbidden},
		{"missing motivo", f.doctor, &CreateSolicitudRequest{TurnoID: propio.ID.String()}, ErrValidation},
		{"proposal in the past", f.doctor, &CreateSolicitudRequest{TurnoID: propio.ID.String(), Motivo: "x", FechaNueva: ptr("2025-01-01")}, scheduling.ErrInvalidSlot},
		{"proposal inverted", f.doctor, &CreateSolicitudRequest{TurnoID: propio.ID.String(), Motivo: "x", HoraFinNueva: ptr("07:00")}, ErrValidation},
		{"closed shift", f.doctor, &CreateSolicitudRequest{TurnoID: cerrado.ID.String(), Motivo: "x"}, scheduling.ErrInvalidTransition},
		{"admin without target", f.admin, &CreateSolicitudRequest{Motivo: "x"}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.CreateSolicitud(context.Background(), tt.caller, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAprobar_MovesShift(t *testing.T) {
	f := newFixture()
	turno := f.shift(f.medico, "2025-01-20", "08:00", "12:00", scheduling.TurnoProgramado)
	sol, err := f.svc.CreateSolicitud(context.Background(), f.doctor, &CreateSolicitudRequest{
		TurnoID: turno.ID.String(), Motivo: "cambio", FechaNueva: ptr("2025-01-22"), HoraInicioNueva: ptr("14:00"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := f.svc.Aprobar(context.Background(), f.admin, sol.ID, &ResolverSolicitudRequest{Respuesta: "ok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != scheduling.SolicitudAprobada || got.ResueltaAt == nil || got.Respuesta != "ok" {
		t.Errorf("unexpected solicitud %+v", got)
	}
	moved, _ := f.turnos.GetByID(context.Background(), turno.ID)
	if moved.Fecha != "2025-01-22" || moved.HoraInicio != "14:00" || moved.HoraFin != "18:00" {
		t.Errorf("expected shift moved to 2025-01-22 14:00-18:00, got %s %s-%s", moved.Fecha, moved.HoraInicio, moved.HoraFin)
	}
	types := f.events.Types()
	if types[len(types)-1] != events.TurnoActualizado {
		t.Errorf("expected turno.actualizado last, got %v", types)
	}
}

func TestAprobar_OverlapKeepsRequestPending(t *testing.T) {
	f := newFixture()
	f.shift(f.medico, "2025-01-22", "08:00", "12:00", scheduling.TurnoProgramado)
	turno := f.shift(f.medico, "2025-01-20", "08:00", "12:00", scheduling.TurnoProgramado)
	sol, _ := f.svc.CreateSolicitud(context.Background(), f.doctor, &CreateSolicitudRequest{
		TurnoID: turno.ID.String(), Motivo: "cambio", FechaNueva: ptr("2025-01-22"),
	})

	if _, err := f.svc.Aprobar(context.Background(), f.admin, sol.ID, &ResolverSolicitudRequest{}); !errors.Is(err, scheduling.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if st := f.solicitudes.status(sol.ID); st != scheduling.SolicitudPendiente {
		t.Errorf("expected solicitud still pendiente, got %s", st)
	}
	stored, _ := f.turnos.GetByID(context.Background(), turno.ID)
	if stored.Fecha != "2025-01-20" {
		t.Errorf("expected shift unchanged, got %s", stored.Fecha)
	}
}

func TestRechazar_AndResolveTwice(t *testing.T) {
	f := newFixture()
	sol, _ := f.svc.CreateSolicitud(context.Background(), f.doctor, &CreateSolicitudRequest{Motivo: "vacaciones"})

	if _, err := f.svc.Rechazar(context.Background(), f.doctor, sol.ID, &ResolverSolicitudRequest{}); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for doctor, got %v", err)
	}
	got, err := f.svc.Rechazar(context.Background(), f.admin, sol.ID, &ResolverSolicitudRequest{Respuesta: "sin cobertura"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != scheduling.SolicitudRechazada {
		t.Errorf("expected rechazada, got %s", got.Status)
	}
	if _, err := f.svc.Aprobar(context.Background(), f.admin, sol.ID, &ResolverSolicitudRequest{}); !errors.Is(err, scheduling.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestListSolicitudes_Scope(t *testing.T) {
	f := newFixture()
	otherDoc := auth.Principal{UserID: "doc2", Roles: []string{auth.RoleMedico}, MedicoID: f.other.String()}
	f.svc.CreateSolicitud(context.Background(), f.doctor, &CreateSolicitudRequest{Motivo: "a"})
	f.svc.CreateSolicitud(context.Background(), otherDoc, &CreateSolicitudRequest{Motivo: "b"})

	if _, total, _ := f.svc.ListSolicitudes(context.Background(), f.doctor, SolicitudFilter{}, 20, 0); total != 1 {
		t.Errorf("expected doctor to see 1, got %d", total)
	}
	if _, total, _ := f.svc.ListSolicitudes(context.Background(), f.admin, SolicitudFilter{Status: "pendiente"}, 20, 0); total != 2 {
		t.Errorf("expected admin to see 2, got %d", total)
	}
	if _, _, err := f.svc.ListSolicitudes(context.Background(), f.admin, SolicitudFilter{Status: "x"}, 20, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
