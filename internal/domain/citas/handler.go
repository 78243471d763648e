package citas

import (
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
	api.GET("/citas", h.List)
	api.GET("/citas/mis_citas", h.MisCitas)
	api.GET("/citas/horarios-disponibles", h.Horarios)
	api.POST("/citas", h.Create)
	api.GET("/citas/:id", h.Get)
	api.PATCH("/citas/:id/estado", h.ChangeStatus)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	items, total, err := h.svc.List(ctx, auth.PrincipalFromContext(ctx), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL))
}

func filterFromQuery(c echo.Context) (Filter, error) {
	f := Filter{
		Fecha:  c.QueryParam("fecha"),
		Desde:  c.QueryParam("desde"),
		Hasta:  c.QueryParam("hasta"),
		Status: c.QueryParam("status"),
	}
	for _, d := range []string{f.Fecha, f.Desde, f.Hasta} {
		if d == "" {
			continue
		}
		if _, err := scheduling.ParseDate(d); err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if v := c.QueryParam("medico"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid medico")
		}
		f.MedicoID = &id
	}
	if v := c.QueryParam("paciente"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid paciente")
		}
		f.PacienteID = &id
	}
	return f, nil
}

func (h *Handler) MisCitas(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.svc.MisCitas(ctx, auth.PrincipalFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL))
}

func (h *Handler) Horarios(c echo.Context) error {
	medicoID, err := uuid.Parse(c.QueryParam("medico_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "medico_id must be a UUID")
	}
	fecha := c.QueryParam("fecha")
	if fecha == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "fecha is required")
	}
	out, err := h.svc.Horarios(c.Request().Context(), medicoID, fecha)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateCitaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	cita, err := h.svc.Create(ctx, auth.PrincipalFromContext(ctx), &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cita)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	cita, err := h.svc.Get(ctx, auth.PrincipalFromContext(ctx), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cita)
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req UpdateEstadoRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	cita, err := h.svc.ChangeStatus(ctx, auth.PrincipalFromContext(ctx), id, &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cita)
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

type HistorialHandler struct {
	svc *HistorialService
}

func NewHistorialHandler(svc *HistorialService) *HistorialHandler {
	return &HistorialHandler{svc: svc}
}

func (h *HistorialHandler) RegisterRoutes(api *echo.Group) {
	api.GET("/citas/historial", h.List)
	api.POST("/citas/historial", h.Create, auth.RequireRole(auth.RoleMedico))
	api.GET("/citas/historial/:id", h.Get)
}

func (h *HistorialHandler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f HistorialFilter
	for param, dst := range map[string]**uuid.UUID{"paciente": &f.PacienteID, "medico": &f.MedicoID, "cita": &f.CitaID} {
		v := c.QueryParam(param)
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
		}
		*dst = &id
	}
	ctx := c.Request().Context()
	items, total, err := h.svc.List(ctx, auth.PrincipalFromContext(ctx), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL))
}

func (h *HistorialHandler) Create(c echo.Context) error {
	var req CreateHistorialRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	rec, err := h.svc.Create(ctx, auth.PrincipalFromContext(ctx), &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *HistorialHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	rec, err := h.svc.Get(ctx, auth.PrincipalFromContext(ctx), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}
