package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey     contextKey = "user_id"
	UserRolesKey  contextKey = "user_roles"
	MedicoIDKey   contextKey = "medico_id"
	PacienteIDKey contextKey = "paciente_id"
)

// Portal roles.
const (
	RolePaciente = "paciente"
	RoleMedico   = "medico"
	RoleAdmin    = "admin"
)

// Claims are issued by the identity service. A user carries either a single
// "rol" (as stored on the user profile) or a "roles" list; both are honoured.
// MedicoID and PacienteID link the user to its clinical profile.
type Claims struct {
	jwt.RegisteredClaims
	Rol        string   `json:"rol,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	MedicoID   string   `json:"medico_id,omitempty"`
	PacienteID string   `json:"paciente_id,omitempty"`
}

func (c *Claims) AllRoles() []string {
	roles := append([]string(nil), c.Roles...)
	if c.Rol != "" {
		roles = append(roles, c.Rol)
	}
	return roles
}

// Principal is the authenticated caller.
type Principal struct {
	UserID     string
	Roles      []string
	MedicoID   string
	PacienteID string
}

// PrincipalFromContext rebuilds the caller stored by the auth middlewares.
func PrincipalFromContext(ctx context.Context) Principal {
	return Principal{
		UserID:     UserIDFromContext(ctx),
		Roles:      RolesFromContext(ctx),
		MedicoID:   MedicoIDFromContext(ctx),
		PacienteID: PacienteIDFromContext(ctx),
	}
}

// Has reports whether p holds role. Admins hold every role.
func (p Principal) Has(role string) bool {
	for _, r := range p.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

func (p Principal) IsAdmin() bool {
	for _, r := range p.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// WithPrincipal stores p on ctx the same way the middlewares do.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, p.UserID)
	ctx = context.WithValue(ctx, UserRolesKey, p.Roles)
	ctx = context.WithValue(ctx, MedicoIDKey, p.MedicoID)
	ctx = context.WithValue(ctx, PacienteIDKey, p.PacienteID)
	return ctx
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := bearerToken(c.Request())
			if err != nil {
				return err
			}

			claims := &Claims{}
			token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
				return cfg.SigningKey, nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
			}

			ctx := WithPrincipal(c.Request().Context(), Principal{
				UserID:     claims.Subject,
				Roles:      claims.AllRoles(),
				MedicoID:   claims.MedicoID,
				PacienteID: claims.PacienteID,
			})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return token, nil
}

// DevAuthMiddleware lets unauthenticated requests through as an admin. The
// X-Dev-Role, X-Dev-Medico and X-Dev-Paciente headers impersonate other
// profiles for local testing.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			p := Principal{UserID: "dev-user", Roles: []string{RoleAdmin}}
			if role := h.Get("X-Dev-Role"); role != "" {
				p.Roles = []string{role}
			}
			p.MedicoID = h.Get("X-Dev-Medico")
			p.PacienteID = h.Get("X-Dev-Paciente")
			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

func MedicoIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(MedicoIDKey).(string)
	return id
}

func PacienteIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(PacienteIDKey).(string)
	return id
}

// HasRole reports whether the caller holds role. Admins hold every role.
func HasRole(ctx context.Context, role string) bool {
	for _, r := range RolesFromContext(ctx) {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

func IsAdmin(ctx context.Context) bool {
	for _, r := range RolesFromContext(ctx) {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}
