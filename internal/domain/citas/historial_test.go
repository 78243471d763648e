package citas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cesfam/portal/internal/platform/auth"
	"github.com/cesfam/portal/internal/platform/events"
	"github.com/cesfam/portal/internal/platform/scheduling"
)

type mockHistorialRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Historial
}

func newMockHistorialRepo() *mockHistorialRepo {
	return &mockHistorialRepo{items: make(map[uuid.UUID]*Historial)}
}

func (m *mockHistorialRepo) Create(_ context.Context, h *Historial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.items {
		if x.CitaID == h.CitaID {
			return ErrHistorialExists
		}
	}
	h.ID = uuid.New()
	h.CreatedAt = time.Now()
	h.UpdatedAt = h.CreatedAt
	m.items[h.ID] = h
	return nil
}

func (m *mockHistorialRepo) GetByID(_ context.Context, id uuid.UUID) (*Historial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("historial %w", ErrNotFound)
	}
	cp := *h
	return &cp, nil
}

func (m *mockHistorialRepo) List(_ context.Context, f HistorialFilter, limit, offset int) ([]*Historial, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Historial
	for _, h := range m.items {
		if f.PacienteID != nil && h.PacienteID != *f.PacienteID {
			continue
		}
		if f.MedicoID != nil && h.MedicoID != *f.MedicoID {
			continue
		}
		if f.CitaID != nil && h.CitaID != *f.CitaID {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

type historialFixture struct {
	*fixture
	repo *mockHistorialRepo
	hist *HistorialService
	cita *Cita
}

func newHistorialFixture() *historialFixture {
	f := newFixture()
	hf := &historialFixture{fixture: f, repo: newMockHistorialRepo()}
	hf.hist = NewHistorialService(hf.repo, f.svc)
	hf.cita = f.repo.put(&Cita{MedicoID: f.medico, PacienteID: f.paciente, Fecha: "2025-01-13", Hora: "09:00", Status: scheduling.CitaCompletada})
	return hf
}

func (hf *historialFixture) request() *CreateHistorialRequest {
	return &CreateHistorialRequest{
		CitaID:      hf.cita.ID.String(),
		Diagnostico: "Asma bronquial",
		CodigoCIE10: "j45.9",
		Tratamiento: "Salbutamol SOS",
	}
}

func TestHistorial_Create(t *testing.T) {
	hf := newHistorialFixture()

	h, err := hf.hist.Create(context.Background(), hf.doctor, hf.request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.PacienteID != hf.paciente || h.MedicoID != hf.medico || h.Fecha != "2025-01-13" {
		t.Errorf("expected record tied to the appointment, got %+v", h)
	}
	if h.CodigoCIE10 != "J45.9" {
		t.Errorf("expected normalized code J45.9, got %s", h.CodigoCIE10)
	}
	if types := hf.events.Types(); len(types) != 1 || types[0] != events.HistorialRegistrado {
		t.Errorf("expected historial.registrado, got %v", types)
	}
}

func TestHistorial_OnePerAppointment(t *testing.T) {
	hf := newHistorialFixture()
	if _, err := hf.hist.Create(context.Background(), hf.doctor, hf.request()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := hf.hist.Create(context.Background(), hf.admin, hf.request())
	if !errors.Is(err, ErrHistorialExists) || !errors.Is(err, scheduling.ErrConflict) {
		t.Errorf("expected ErrHistorialExists, got %v", err)
	}
}

func TestHistorial_CreateRejections(t *testing.T) {
	hf := newHistorialFixture()
	otherDoctor := auth.Principal{UserID: "doc2", Roles: []string{auth.RoleMedico}, MedicoID: uuid.NewString()}
	cancelled := hf.fixture.repo.put(&Cita{MedicoID: hf.medico, PacienteID: hf.paciente, Fecha: "2025-01-14", Hora: "10:00", Status: scheduling.CitaCancelada})

	tests := []struct {
		name   string
		caller auth.Principal
		mutate func(*CreateHistorialRequest)
		want   error
	}{
		{"other doctor", otherDoctor, func(*CreateHistorialRequest) {}, ErrForbidden},
		{"patient", hf.patient, func(*CreateHistorialRequest) {}, ErrForbidden},
		{"cancelled appointment", hf.doctor, func(r *CreateHistorialRequest) { r.CitaID = cancelled.ID.String() }, ErrValidation},
		{"unknown appointment", hf.doctor, func(r *CreateHistorialRequest) { r.CitaID = uuid.NewString() }, ErrNotFound},
		{"bad code", hf.doctor, func(r *CreateHistorialRequest) { r.CodigoCIE10 = "asma" }, ErrValidation},
		{"missing diagnosis", hf.doctor, func(r *CreateHistorialRequest) { r.Diagnostico = "" }, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := hf.request()
			tt.mutate(req)
			if _, err := hf.hist.Create(context.Background(), tt.caller, req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(hf.repo.items) != 0 {
		t.Errorf("expected nothing stored, got %d", len(hf.repo.items))
	}
}

func TestHistorial_AccessFollowsAppointment(t *testing.T) {
	hf := newHistorialFixture()
	h, err := hf.hist.Create(context.Background(), hf.doctor, hf.request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stranger := auth.Principal{UserID: "pac2", Roles: []string{auth.RolePaciente}, PacienteID: uuid.NewString()}

	if _, err := hf.hist.Get(context.Background(), hf.patient, h.ID); err != nil {
		t.Errorf("patient: unexpected error: %v", err)
	}
	if _, err := hf.hist.Get(context.Background(), stranger, h.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger: expected ErrForbidden, got %v", err)
	}

	if _, total, _ := hf.hist.List(context.Background(), hf.patient, HistorialFilter{}, 20, 0); total != 1 {
		t.Errorf("patient: expected 1 record, got %d", total)
	}
	if _, total, _ := hf.hist.List(context.Background(), stranger, HistorialFilter{}, 20, 0); total != 0 {
		t.Errorf("stranger: expected 0 records, got %d", total)
	}
	// a patient filter cannot widen a patient's scope
	other := uuid.New()
	if _, total, _ := hf.hist.List(context.Background(), stranger, HistorialFilter{PacienteID: &hf.paciente}, 20, 0); total != 0 {
		t.Errorf("stranger with filter: expected 0 records, got %d", total)
	}
	if _, total, _ := hf.hist.List(context.Background(), hf.admin, HistorialFilter{PacienteID: &other}, 20, 0); total != 0 {
		t.Errorf("admin filtered to another patient: expected 0 records, got %d", total)
	}
}

func TestHistorialHandler_CreateAndList(t *testing.T) {
	hf := newHistorialFixture()
	h := NewHistorialHandler(hf.hist)
	e := echo.New()

	body := `{"cita":"` + hf.cita.ID.String() + `","diagnostico":"Asma","codigo_cie10":"J45","tratamiento":"Salbutamol"}`
	req := httptest.NewRequest(http.MethodPost, "/api/citas/historial", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Create(e.NewContext(withCaller(req, hf.doctor), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/citas/historial", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	err := h.Create(e.NewContext(withCaller(req, hf.doctor), rec))
	if got := statusOf(rec, err); got != http.StatusConflict {
		t.Errorf("expected 409 for a second record, got %d", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/citas/historial?paciente="+hf.paciente.String(), nil)
	rec = httptest.NewRecorder()
	if err := h.List(e.NewContext(withCaller(req, hf.doctor), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		Results []Historial `json:"results"`
		Count   int         `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if page.Count != 1 || len(page.Results) != 1 || page.Results[0].Diagnostico != "Asma" {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestHistorialHandler_BadParams(t *testing.T) {
	hf := newHistorialFixture()
	h := NewHistorialHandler(hf.hist)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/citas/historial?cita=nope", nil)
	rec := httptest.NewRecorder()
	if got := statusOf(rec, h.List(e.NewContext(withCaller(req, hf.admin), rec))); got != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad cita filter, got %d", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c := e.NewContext(withCaller(req, hf.admin), rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	if got := statusOf(rec, h.Get(c)); got != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown record, got %d", got)
	}
}
