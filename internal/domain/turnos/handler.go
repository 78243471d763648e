package turnos

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cesfam/portal/internal/platform/auth"
	"github.com/cesfam/portal/internal/platform/scheduling"
	"github.com/cesfam/portal/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.RequireRole(auth.RoleMedico)
	admin := auth.RequireRole(auth.RoleAdmin)

	api.GET("/turnos", h.List, staff)
	api.POST("/turnos", h.Create, admin)
	api.GET("/turnos/mis_turnos", h.MisTurnos, staff)
	api.POST("/turnos/asignar-semana", h.AsignarSemana, admin)
	api.GET("/turnos/:id", h.Get, staff)
	api.PATCH("/turnos/:id", h.Update, admin)
	api.DELETE("/turnos/:id", h.Delete, admin)

	api.GET("/turnos/solicitudes", h.ListSolicitudes, staff)
	api.POST("/turnos/solicitudes", h.CreateSolicitud, staff)
	api.GET("/turnos/solicitudes/:id", h.GetSolicitud, staff)
	api.POST("/turnos/solicitudes/:id/aprobar", h.Aprobar, admin)
	api.POST("/turnos/solicitudes/:id/rechazar", h.Rechazar, admin)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		FechaInicio: c.QueryParam("fecha_inicio"),
		FechaFin:    c.QueryParam("fecha_fin"),
		Status:      c.QueryParam("status"),
	}
	for _, d := range []string{f.FechaInicio, f.FechaFin} {
		if d == "" {
			continue
		}
		if _, err := scheduling.ParseDate(d); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if v := c.QueryParam("medico"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid medico")
		}
		f.MedicoID = &id
	}

	ctx := c.Request().Context()
	items, total, err := h.svc.List(ctx, auth.PrincipalFromContext(ctx), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL))
}

func (h *Handler) MisTurnos(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.svc.MisTurnos(ctx, auth.PrincipalFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL))
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateTurnoRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	t, err := h.svc.Create(ctx, auth.PrincipalFromContext(ctx), &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) AsignarSemana(c echo.Context) error {
	var req AsignarSemanaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	items, err := h.svc.AsignarSemana(ctx, auth.PrincipalFromContext(ctx), &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"results": items, "count": len(items)})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	t, err := h.svc.Get(ctx, auth.PrincipalFromContext(ctx), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req UpdateTurnoRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	t, err := h.svc.Update(ctx, auth.PrincipalFromContext(ctx), id, &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if err := h.svc.Delete(ctx, auth.PrincipalFromContext(ctx), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListSolicitudes(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := SolicitudFilter{Status: c.QueryParam("status")}
	if v := c.QueryParam("medico"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid medico")
		}
		f.MedicoID = &id
	}
	ctx := c.Request().Context()
	items, total, err := h.svc.ListSolicitudes(ctx, auth.PrincipalFromContext(ctx), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL))
}

func (h *Handler) CreateSolicitud(c echo.Context) error {
	var req CreateSolicitudRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	sol, err := h.svc.CreateSolicitud(ctx, auth.PrincipalFromContext(ctx), &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sol)
}

func (h *Handler) GetSolicitud(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	sol, err := h.svc.GetSolicitud(ctx, auth.PrincipalFromContext(ctx), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sol)
}

func (h *Handler) Aprobar(c echo.Context) error {
	return h.resolve(c, h.svc.Aprobar)
}

func (h *Handler) Rechazar(c echo.Context) error {
	return h.resolve(c, h.svc.Rechazar)
}

type resolveFunc func(ctx context.Context, caller auth.Principal, id uuid.UUID, req *ResolverSolicitudRequest) (*Solicitud, error)

func (h *Handler) resolve(c echo.Context, fn resolveFunc) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req ResolverSolicitudRequest
	// the body is optional
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	ctx := c.Request().Context()
	sol, err := fn(ctx, auth.PrincipalFromContext(ctx), id, &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sol)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, scheduling.ErrInvalidSlot):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden), errors.Is(err, auth.ErrNoProfile):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, scheduling.ErrConflict), errors.Is(err, scheduling.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return err
}
