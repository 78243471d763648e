package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ErrNoProfile is returned by profile lookups when the caller is not linked to
// a patient or doctor record.
var ErrNoProfile = errors.New("caller has no linked profile")

// RequireRole returns middleware that checks the user has at least one of the
// given roles. Admin always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			for _, required := range roles {
				if HasRole(ctx, required) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequireProfile rejects callers whose token does not link them to the
// clinical profile a handler needs ("medico" or "paciente"). Admins pass.
func RequireProfile(profile string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if IsAdmin(ctx) {
				return next(c)
			}
			var id string
			switch profile {
			case RoleMedico:
				id = MedicoIDFromContext(ctx)
			case RolePaciente:
				id = PacienteIDFromContext(ctx)
			}
			if id == "" {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("user has no %s profile", profile))
			}
			return next(c)
		}
	}
}
