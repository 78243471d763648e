package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cesfam/portal/internal/platform/auth"
)

// Logger writes one line per request: error for 5xx, warn for other
// failures, debug for health checks, info otherwise.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			status := c.Response().Status
			var he *echo.HTTPError
			switch {
			case errors.As(err, &he):
				status = he.Code
			case err != nil:
				// rendered as 500 by the error handler after this returns
				status = http.StatusInternalServerError
			}

			level := zerolog.InfoLevel
			switch {
			case status >= 500:
				level = zerolog.ErrorLevel
			case status >= 400:
				level = zerolog.WarnLevel
			case strings.HasPrefix(req.URL.Path, "/health"):
				level = zerolog.DebugLevel
			}

			evt := logger.WithLevel(level)
			if err != nil {
				evt = evt.Err(err)
			}
			p := auth.PrincipalFromContext(req.Context())
			rid, _ := c.Get("request_id").(string)
			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("route", c.Path()).
				Str("user_id", p.UserID).
				Strs("roles", p.Roles).
				Int("status", status).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}
