package medicos

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cesfam/portal/internal/platform/auth"
	"github.com/cesfam/portal/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/medicos", h.ListMedicos)
	api.GET("/medicos/:id", h.GetMedico)
	api.GET("/medicos/disponibilidad", h.ListDisponibilidad)

	// Doctor self-service; admins pass every role check.
	medico := auth.RequireRole(auth.RoleMedico)
	api.GET("/medicos/mi_perfil", h.MiPerfil, medico)
	api.GET("/medicos/disponibilidad/mi_disponibilidad", h.MiDisponibilidad, medico)
	api.POST("/medicos/disponibilidad", h.CreateDisponibilidad, medico)
	api.DELETE("/medicos/disponibilidad/:id", h.DeleteDisponibilidad, medico)
}

func (h *Handler) ListMedicos(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f MedicoFilter
	if v := c.QueryParam("cesfam"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid cesfam")
		}
		f.CesfamID = &id
	}
	f.Especialidad = c.QueryParam("especialidad")

	items, total, err := h.svc.ListMedicos(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL))
}

func (h *Handler) GetMedico(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.svc.GetMedico(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) MiPerfil(c echo.Context) error {
	ctx := c.Request().Context()
	m, err := h.svc.MiPerfil(ctx, auth.PrincipalFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

// ListDisponibilidad requires ?medico= except for doctors, who get their own
// rules when it is omitted.
func (h *Handler) ListDisponibilidad(c echo.Context) error {
	ctx := c.Request().Context()
	raw := c.QueryParam("medico")
	if raw == "" {
		caller := auth.PrincipalFromContext(ctx)
		if !caller.IsAdmin() && caller.Has(auth.RoleMedico) {
			return h.MiDisponibilidad(c)
		}
		return echo.NewHTTPError(http.StatusBadRequest, "medico is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medico")
	}
	items, err := h.svc.ListDisponibilidad(ctx, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, len(items), pagination.Params{Limit: len(items)}))
}

func (h *Handler) MiDisponibilidad(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.MiDisponibilidad(ctx, auth.PrincipalFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, len(items), pagination.Params{Limit: len(items)}))
}

func (h *Handler) CreateDisponibilidad(c echo.Context) error {
	var req CreateDisponibilidadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	d, err := h.svc.CreateDisponibilidad(ctx, auth.PrincipalFromContext(ctx), &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) DeleteDisponibilidad(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if err := h.svc.DeleteDisponibilidad(ctx, auth.PrincipalFromContext(ctx), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoProfile):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "availability rule belongs to another doctor")
	case errors.Is(err, ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return err
}
