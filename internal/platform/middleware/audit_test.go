package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cesfam/portal/internal/platform/auth"
)

func TestAudit_RecordsPatientDataAccess(t *testing.T) {
	var got []AuditEntry
	rec := AuditRecorderFunc(func(e AuditEntry) error {
		got = append(got, e)
		return nil
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPatch, "/api/citas/abc/estado", nil)
	req = req.WithContext(auth.WithPrincipal(context.Background(), auth.Principal{UserID: "u1", Roles: []string{"medico"}}))
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-1")

	h := Audit(zerolog.Nop(), rec)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(got))
	}
	entry := got[0]
	if entry.Resource != "citas" || entry.ResourceID != "abc" {
		t.Errorf("unexpected resource: %s/%s", entry.Resource, entry.ResourceID)
	}
	if entry.Action != "update" || entry.UserID != "u1" || entry.RequestID != "req-1" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestAudit_SkipsOtherResources(t *testing.T) {
	called := false
	rec := AuditRecorderFunc(func(AuditEntry) error {
		called = true
		return nil
	})

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/cesfams/", nil), httptest.NewRecorder())
	_ = Audit(zerolog.Nop(), rec)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)

	if called {
		t.Error("cesfam listing should not be audited")
	}
}

func TestSplitResource(t *testing.T) {
	tests := []struct {
		path, resource, id string
	}{
		{"/api/citas/", "citas", ""},
		{"/api/documentos/42/archivo", "documentos", "42"},
		{"/health", "", ""},
	}
	for _, tt := range tests {
		r, id := splitResource(tt.path)
		if r != tt.resource || id != tt.id {
			t.Errorf("splitResource(%q) = (%q, %q), want (%q, %q)", tt.path, r, id, tt.resource, tt.id)
		}
	}
}
