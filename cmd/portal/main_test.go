package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cesfam/portal/internal/config"
	"github.com/cesfam/portal/internal/platform/blobstore"
	"github.com/cesfam/portal/internal/platform/events"
	"github.com/cesfam/portal/internal/platform/locker"
)

func testServer(mode string) http.Handler {
	cfg := &config.Config{
		Env:            "test",
		AuthMode:       mode,
		AuthSigningKey: "0123456789abcdef0123456789abcdef",
		SlotMinutes:    60,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}
	inf := &infra{
		locker:    locker.NewMemoryLocker(),
		publisher: &events.Recorder{},
		store:     blobstore.NewMemoryStore(),
	}
	return newServer(cfg, zerolog.Nop(), nil, inf)
}

func TestServer_Health(t *testing.T) {
	e := testServer("jwt")
	for _, path := range []string{"/health", "/health/ready"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestServer_APIRequiresToken(t *testing.T) {
	e := testServer("jwt")
	for _, path := range []string{"/api/citas", "/api/turnos/", "/api/documentos", "/api/medicos"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"detail"`) {
			t.Errorf("%s: expected detail body, got %s", path, rec.Body.String())
		}
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	e := testServer("development")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestSlotsCommand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/citas/horarios-disponibles", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"medico_id":"m1","fecha":"2099-01-19","horarios":["08:00","09:00"]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	t.Setenv("PORTAL_API_URL", srv.URL+"/api")
	t.Setenv("PORTAL_TOKEN_FILE", filepath.Join(t.TempDir(), "session.json"))

	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"slots", "--medico", "m1", "--fecha", "2099-01-19"})
	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.String(); got != "08:00\n09:00\n" {
		t.Errorf("expected two slots, got %q", got)
	}
}

func TestBookCommand_Conflict(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/citas", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"id":"c1","medico":"m1","fecha":"2099-01-19","hora":"08:00","status":"confirmada"}]}`))
	})
	var posted atomic.Bool
	mux.HandleFunc("POST /api/citas", func(w http.ResponseWriter, r *http.Request) {
		posted.Store(true)
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	t.Setenv("PORTAL_API_URL", srv.URL+"/api")
	t.Setenv("PORTAL_TOKEN_FILE", filepath.Join(t.TempDir(), "session.json"))

	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"book", "--medico", "m1", "--fecha", "2099-01-19", "--hora", "08:00"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "no longer available") {
		t.Errorf("expected conflict error, got %v", err)
	}
	if posted.Load() {
		t.Error("expected no create request for a taken slot")
	}
}
