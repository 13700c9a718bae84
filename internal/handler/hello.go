package handler

import (
	"context"
	"net/http"
	"time"

	"esim-service/internal/provider"
	"esim-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Hello identifies the service
func (h *Handler) Hello(c echo.Context) error {
	return respond(c, http.StatusOK, "hello from "+h.serviceName, echo.Map{"service": h.serviceName})
}

// Health reports liveness and whether the store answers
func (h *Handler) Health(c echo.Context) error {
	storeStatus := "up"
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			logger.FromEcho(c).Warn("Store ping failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, echo.Map{
				"success": false,
				"message": "store unavailable",
				"status":  "degraded",
				"store":   "down",
			})
		}
	}
	return respond(c, http.StatusOK, "", echo.Map{
		"status": "ok",
		"store":  storeStatus,
		"time":   time.Now().UTC(),
	})
}

// Providers lists the supported carriers and their code formats
func (h *Handler) Providers(c echo.Context) error {
	return respond(c, http.StatusOK, "", echo.Map{"providers": provider.Catalog()})
}
