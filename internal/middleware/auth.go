package middleware

import (
	"context"
	"net/http"
	"strings"

	"esim-service/internal/access"
	"esim-service/internal/model"
	"esim-service/pkg/jwtutil"
	"esim-service/pkg/logger"
	"esim-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type actorKey struct{}

// AuthMiddleware validates the Bearer token and turns its claims into the
// request's actor. The actor is stored on the echo context and on the
// request context.
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromEcho(c)

		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			log.Warn("Missing Authorization header")
			prometheus.RecordAuthAttempt("missing")
			return unauthorized(c, "missing authorization token")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			log.Warn("Invalid Authorization header format")
			prometheus.RecordAuthAttempt("malformed")
			return unauthorized(c, "invalid authorization format, expected Bearer token")
		}

		claims, err := jwtutil.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			log.Warn("Invalid JWT token", zap.Error(err))
			prometheus.RecordAuthAttempt("invalid")
			return unauthorized(c, "invalid or expired token")
		}

		role := model.Role(strings.ToLower(claims.Role))
		if claims.TenantID == "" || access.Rank(role) == 0 {
			log.Warn("JWT token lacks tenant or role",
				zap.String("subject", claims.Subject),
				zap.String("role", claims.Role))
			prometheus.RecordAuthAttempt("invalid")
			return unauthorized(c, "token must carry tenant_id and a known role")
		}

		actor := model.Actor{
			TenantID: claims.TenantID,
			Role:     role,
			Subject:  claims.Subject,
			Email:    claims.Email,
		}
		log = log.With(
			zap.String("tenant_id", actor.TenantID),
			zap.String("subject", actor.Subject),
			zap.String("role", string(actor.Role)))
		c.Set("actor", actor)
		c.Set("tenant_name", claims.TenantName)
		c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), actor)))
		logger.Attach(c, log)

		prometheus.RecordAuthAttempt("success")
		return next(c)
	}
}

// ActorFromEcho returns the authenticated actor of the request
func ActorFromEcho(c echo.Context) (model.Actor, bool) {
	actor, ok := c.Get("actor").(model.Actor)
	return actor, ok
}

// WithActor stores actor in ctx
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by AuthMiddleware
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(model.Actor)
	return actor, ok
}

func unauthorized(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{
		"success": false,
		"message": message,
	})
}
