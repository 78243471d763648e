package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
)

// fakeCitas is an in-memory appointments endpoint. taken holds slots booked by
// someone else that the first list call does not return.
type fakeCitas struct {
	mu      sync.Mutex
	citas   []Cita
	taken   []Cita
	posts   atomic.Int32
	failing bool
}

func (f *fakeCitas) mux(t *testing.T) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/citas", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, page(f.citas))
	})
	mux.HandleFunc("POST /api/citas", func(w http.ResponseWriter, r *http.Request) {
		f.posts.Add(1)
		var in NewCita
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode body: %v", err)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failing {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "database unavailable"})
			return
		}
		for _, c := range f.taken {
			if c.Fecha == in.Fecha && c.Hora == in.Hora {
				f.citas = append(f.citas, c)
				writeJSON(w, http.StatusConflict, map[string]string{"detail": "slot already taken"})
				return
			}
		}
		c := Cita{ID: "srv-" + in.Hora, MedicoID: in.MedicoID, PacienteID: in.PacienteID,
			Fecha: in.Fecha, Hora: in.Hora, Status: "pendiente"}
		f.citas = append(f.citas, c)
		writeJSON(w, http.StatusCreated, c)
	})
	return mux
}

func newAgenda(t *testing.T, f *fakeCitas) *Agenda[Cita] {
	t.Helper()
	a := NewCitaAgenda(newTestClient(t, f.mux(t)), CitaFilter{MedicoID: medicoD})
	if err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return a
}

func candidate(hora string) Cita {
	return Cita{MedicoID: medicoD, PacienteID: "p1", Fecha: "2025-01-20", Hora: hora}
}

func TestAgenda_BookReplacesPendingEntry(t *testing.T) {
	f := &fakeCitas{}
	a := newAgenda(t, f)

	got, err := a.Book(context.Background(), candidate("08:00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "srv-08:00" {
		t.Errorf("expected server id, got %s", got.ID)
	}
	entries := a.Entries()
	if len(entries) != 1 || entries[0].ID != "srv-08:00" || entries[0].Pending {
		t.Errorf("expected one confirmed entry, got %+v", entries)
	}
}

func TestAgenda_LocalConflictSkipsNetwork(t *testing.T) {
	f := &fakeCitas{citas: []Cita{{ID: "c1", MedicoID: medicoD, Fecha: "2025-01-20", Hora: "08:00", Status: "pendiente"}}}
	a := newAgenda(t, f)

	_, err := a.Book(context.Background(), candidate("08:00"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	// a half-hour start still overlaps the one-hour appointment
	if _, err := a.Book(context.Background(), candidate("08:30")); !errors.Is(err, ErrConflict) {
		t.Errorf("expected overlap conflict, got %v", err)
	}
	if f.posts.Load() != 0 {
		t.Errorf("expected no create calls, got %d", f.posts.Load())
	}
	if len(a.Entries()) != 1 {
		t.Errorf("expected list unchanged, got %d entries", len(a.Entries()))
	}
}

func TestAgenda_CancelledDoesNotBlock(t *testing.T) {
	f := &fakeCitas{citas: []Cita{{ID: "c1", MedicoID: medicoD, Fecha: "2025-01-20", Hora: "08:00", Status: "cancelada"}}}
	a := newAgenda(t, f)

	if _, err := a.Book(context.Background(), candidate("08:00")); err != nil {
		t.Errorf("expected cancelled appointment to free the slot, got %v", err)
	}
}

func TestAgenda_RollbackOnFailure(t *testing.T) {
	f := &fakeCitas{failing: true}
	a := newAgenda(t, f)

	_, err := a.Book(context.Background(), candidate("09:00"))
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusInternalServerError || fe.Message != "database unavailable" {
		t.Fatalf("expected 500 fetch error, got %v", err)
	}
	if errors.Is(err, ErrConflict) {
		t.Error("a server failure must not read as a conflict")
	}
	if n := len(a.Entries()); n != 0 {
		t.Errorf("expected optimistic entry rolled back, got %d entries", n)
	}
}

func TestAgenda_ServerConflictRefetches(t *testing.T) {
	f := &fakeCitas{taken: []Cita{{ID: "other", MedicoID: medicoD, Fecha: "2025-01-20", Hora: "10:00", Status: "pendiente"}}}
	a := newAgenda(t, f)

	_, err := a.Book(context.Background(), candidate("10:00"))
	if !errors.Is(err, ErrConflict) || !IsConflict(err) {
		t.Fatalf("expected conflict carrying the 409, got %v", err)
	}
	entries := a.Entries()
	if len(entries) != 1 || entries[0].ID != "other" {
		t.Errorf("expected list re-fetched from server, got %+v", entries)
	}
}

func TestAgenda_ConcurrentBooksOfSameSlot(t *testing.T) {
	f := &fakeCitas{}
	a := newAgenda(t, f)

	var wg sync.WaitGroup
	var ok, conflicts atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Book(context.Background(), candidate("11:00"))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 1 || conflicts.Load() != 7 {
		t.Errorf("expected 1 booking and 7 conflicts, got %d and %d", ok.Load(), conflicts.Load())
	}
}

func TestAgenda_UnreadableRowsAreSkipped(t *testing.T) {
	f := &fakeCitas{citas: []Cita{{ID: "c1", MedicoID: medicoD, Fecha: "2025-01-20", Hora: "25:99", Status: "pendiente"}}}
	a := newAgenda(t, f)

	got, err := a.Book(context.Background(), candidate("00:00"))
	if err != nil {
		t.Fatalf("expected unreadable row not to block 00:00, got %v", err)
	}
	if got.ID != "srv-00:00" {
		t.Errorf("expected server id, got %s", got.ID)
	}
}

func TestAgenda_UnreadableCandidateSkipsNetwork(t *testing.T) {
	f := &fakeCitas{}
	a := newAgenda(t, f)

	if _, err := a.Book(context.Background(), candidate("9am")); !errors.Is(err, ErrUnreadable) {
		t.Errorf("expected ErrUnreadable, got %v", err)
	}
	if f.posts.Load() != 0 {
		t.Errorf("expected no create calls, got %d", f.posts.Load())
	}
}

func TestTurno_BookingRejectsBadTimes(t *testing.T) {
	good := Turno{ID: "t1", MedicoID: medicoD, Fecha: "2025-01-20", HoraInicio: "08:00", HoraFin: "12:00"}
	if b, ok := good.Booking(); !ok || b.End.String() != "12:00" {
		t.Errorf("expected 08:00-12:00, got %v %v", b, ok)
	}
	for _, bad := range []Turno{
		{Fecha: "20-01-2025", HoraInicio: "08:00", HoraFin: "12:00"},
		{Fecha: "2025-01-20", HoraInicio: "", HoraFin: "12:00"},
		{Fecha: "2025-01-20", HoraInicio: "08:00", HoraFin: "24:00"},
	} {
		if _, ok := bad.Booking(); ok {
			t.Errorf("expected %+v to be unreadable", bad)
		}
	}
}
