package administradores

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/cesfam/portal/internal/platform/auth"
)

func statusOf(rec *httptest.ResponseRecorder, err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return rec.Code
}

func TestHandler_Estadisticas(t *testing.T) {
	repo := &mockStatsRepo{out: &Estadisticas{CitasMes: 4, CitasCompletadas: 1, MedicosActivos: 2}}
	h := NewHandler(newTestService(repo))
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/administradores/estadisticas", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), admin))
	rec := httptest.NewRecorder()
	if err := h.Estadisticas(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["citas_mes"] != float64(4) || body["medicos_activos"] != float64(2) || body["desde"] != "2025-01-01" {
		t.Errorf("unexpected body %v", body)
	}
	if _, ok := body["citas_por_especialidad"].([]any); !ok {
		t.Errorf("expected citas_por_especialidad array, got %v", body["citas_por_especialidad"])
	}
}

func TestHandler_Estadisticas_StatusCodes(t *testing.T) {
	h := NewHandler(newTestService(&mockStatsRepo{}))
	e := echo.New()
	tests := []struct {
		name   string
		query  string
		caller auth.Principal
		want   int
	}{
		{"doctor", "", doctor, http.StatusForbidden},
		{"bad cesfam", "?cesfam=x", admin, http.StatusBadRequest},
		{"bad desde", "?desde=enero", admin, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/administradores/estadisticas"+tt.query, nil)
			req = req.WithContext(auth.WithPrincipal(req.Context(), tt.caller))
			rec := httptest.NewRecorder()
			if got := statusOf(rec, h.Estadisticas(e.NewContext(req, rec))); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestHandler_RouteIsAdminOnly(t *testing.T) {
	e := echo.New()
	api := e.Group("/api", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithPrincipal(c.Request().Context(), doctor)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(newTestService(&mockStatsRepo{})).RegisterRoutes(api)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/administradores/estadisticas", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}
