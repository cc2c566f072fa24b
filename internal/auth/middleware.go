package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bizmatters/field-sales/visit-guard/internal/models"
)

var middlewareTracer = otel.Tracer("auth-middleware")

// Gin context keys set by RequireAuth
const (
	AgentIDKey = "agent_id"
	RolesKey   = "agent_roles"
	ClaimsKey  = "claims"
)

// AgentID returns the authenticated agent of the request
func AgentID(c *gin.Context) string {
	return c.GetString(AgentIDKey)
}

// RequireAuth is a Gin middleware that validates JWT tokens. Browsers
// cannot set headers on WebSocket upgrades, so a token query parameter is
// accepted as well.
func RequireAuth(jwtManager *JWTManager, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		ctx, span := middlewareTracer.Start(c.Request.Context(), "auth.require_auth_gin")
		defer span.End()

		token, ok := bearerToken(c)
		if !ok {
			span.SetAttributes(attribute.Bool("auth.token_present", false))
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Missing or invalid authorization header")
			return
		}
		span.SetAttributes(attribute.Bool("auth.token_present", true))

		claims, err := jwtManager.ValidateToken(ctx, token)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.Bool("auth.token_valid", false))
			logger.WarnContext(ctx, "invalid token", "error", err)
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Invalid or expired token")
			return
		}

		span.SetAttributes(
			attribute.Bool("auth.token_valid", true),
			attribute.String("agent.id", claims.Agent()),
		)

		c.Set(AgentIDKey, claims.Agent())
		c.Set(RolesKey, claims.Roles)
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// RequireRole is a Gin middleware that checks if the authenticated agent
// has the required role. Must run after RequireAuth.
func RequireRole(role string, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		_, span := middlewareTracer.Start(c.Request.Context(), "auth.require_role_gin")
		defer span.End()

		span.SetAttributes(attribute.String("required.role", role))

		value, exists := c.Get(ClaimsKey)
		claims, ok := value.(*Claims)
		if !exists || !ok {
			span.SetAttributes(attribute.Bool("auth.role_authorized", false))
			abort(c, http.StatusForbidden, models.ErrCodeForbidden, "User roles not found")
			return
		}

		if !claims.HasRole(role) {
			span.SetAttributes(attribute.Bool("auth.role_authorized", false))
			logger.WarnContext(c.Request.Context(), "insufficient permissions",
				"agent_id", claims.Agent(), "required_role", role)
			abort(c, http.StatusForbidden, models.ErrCodeForbidden, "Insufficient permissions")
			return
		}

		span.SetAttributes(attribute.Bool("auth.role_authorized", true))
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if t := c.Query("token"); t != "" {
			return t, true
		}
		return "", false
	}

	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: message, Code: code})
}
