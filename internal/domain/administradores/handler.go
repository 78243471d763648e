package administradores

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cesfam/portal/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/administradores/estadisticas", h.Estadisticas, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) Estadisticas(c echo.Context) error {
	f := StatsFilter{Desde: c.QueryParam("desde")}
	if v := c.QueryParam("cesfam"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid cesfam")
		}
		f.CesfamID = &id
	}
	ctx := c.Request().Context()
	out, err := h.svc.Estadisticas(ctx, auth.PrincipalFromContext(ctx), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return err
}
