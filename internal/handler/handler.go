// Package handler exposes the lifecycle engine over REST. Every response is
// an envelope {success, message, ...}.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"esim-service/internal/lifecycle"
	"esim-service/internal/middleware"
	"esim-service/internal/model"
	"esim-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the REST API
type Handler struct {
	engine      *lifecycle.Engine
	store       Pinger
	serviceName string
}

// New creates the handler set
func New(engine *lifecycle.Engine, store Pinger, serviceName string) *Handler {
	return &Handler{engine: engine, store: store, serviceName: serviceName}
}

// Register mounts every route on e
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/", h.Hello)

	api := e.Group("/api")
	api.GET("/health", h.Health)
	api.GET("/providers", h.Providers)

	secured := api.Group("", middleware.AuthMiddleware)

	esim := secured.Group("/esim")
	esim.POST("/create", h.CreateProfile)
	esim.GET("/list", h.ListProfiles)
	esim.PUT("/update/:id", h.UpdateProfile)
	esim.POST("/deploy", h.DeployProfile)
	esim.POST("/validate", h.ValidateProfile)
	esim.POST("/bulk-delete", h.BulkDeleteProfiles)
	esim.POST("/import", h.ImportProfiles)
	esim.GET("/logs/:id", h.ProfileLogs)
	esim.GET("/:id", h.GetProfile)
	esim.DELETE("/:id", h.DeleteProfile)
	esim.POST("/:id/activate", h.ActivateProfile)
	esim.POST("/:id/deactivate", h.DeactivateProfile)
	esim.POST("/:id/reactivate", h.ReactivateProfile)
	esim.GET("/:id/deployment-status", h.DeploymentStatus)

	secured.GET("/qr/:profileId", h.GetQRCode)
	secured.POST("/qr/:profileId/scanned", h.MarkQRScanned)

	secured.POST("/migration/initiate", h.InitiateMigration)
	secured.GET("/migration/:id", h.GetMigration)

	secured.GET("/compliance/logs", h.ComplianceLogs)
	secured.GET("/tenant/stats", h.TenantStats)
}

func actor(c echo.Context) (model.Actor, error) {
	a, ok := middleware.ActorFromEcho(c)
	if !ok {
		return model.Actor{}, model.ErrUnauthenticated
	}
	return a, nil
}

func respond(c echo.Context, status int, message string, payload echo.Map) error {
	body := echo.Map{"success": true, "message": message}
	for k, v := range payload {
		body[k] = v
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": message})
}

// fail maps an engine error onto a status code and writes the envelope.
// extra is merged into the body, e.g. the profile left in error by a gateway failure.
func fail(c echo.Context, err error, extra echo.Map) error {
	status, body := mapError(err)
	for k, v := range extra {
		body[k] = v
	}

	log := logger.FromEcho(c)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.Int("status", status), zap.Error(err))
	} else {
		log.Info("Request rejected", zap.Int("status", status), zap.Error(err))
	}
	return c.JSON(status, body)
}

func mapError(err error) (int, echo.Map) {
	body := echo.Map{"success": false, "message": err.Error()}

	var (
		validationErr *model.ValidationError
		authErr       *model.AuthorizationError
		conflictErr   *model.StateConflictError
		formatErr     *model.FormatError
		transportErr  *model.TransportError
		rejection     *model.BusinessRejection
		gatewayErr    *model.GatewayError
	)
	switch {
	case errors.As(err, &validationErr):
		body["errors"] = validationErr.Fields
		return http.StatusBadRequest, body
	case errors.Is(err, model.ErrUnauthenticated):
		return http.StatusUnauthorized, body
	case errors.As(err, &authErr):
		return http.StatusForbidden, body
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, body
	case errors.As(err, &conflictErr):
		if conflictErr.Current != "" {
			body["currentStatus"] = conflictErr.Current
		}
		return http.StatusConflict, body
	case errors.Is(err, model.ErrVersionConflict):
		return http.StatusConflict, body
	case errors.As(err, &formatErr):
		body["provider"] = formatErr.Provider
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &rejection):
		body["provider"] = rejection.Provider
		body["providerCode"] = rejection.Code
		body["providerResponse"] = rejection.Response
		return http.StatusBadGateway, body
	case errors.As(err, &transportErr):
		body["provider"] = transportErr.Provider
		return http.StatusBadGateway, body
	case errors.As(err, &gatewayErr):
		body["timeout"] = gatewayErr.Timeout
		return http.StatusBadGateway, body
	default:
		body["message"] = "internal server error"
		return http.StatusInternalServerError, body
	}
}

func intParam(c echo.Context, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &model.ValidationError{Fields: map[string]string{name: "must be a non-negative integer"}}
	}
	return n, nil
}

func page(c echo.Context) (int, int, error) {
	skip, err := intParam(c, "skip", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, err := intParam(c, "limit", 0)
	if err != nil {
		return 0, 0, err
	}
	return skip, limit, nil
}
