package middleware

import (
	"esim-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const HeaderRequestID = "X-Request-ID"

// RequestIDMiddleware tags each request with an id and a logger carrying it.
// A well-formed incoming X-Request-ID is kept so calls can be traced across services.
func RequestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Request().Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.New().String()
		}

		c.Request().Header.Set(HeaderRequestID, requestID)
		c.Response().Header().Set(HeaderRequestID, requestID)
		c.Set("request_id", requestID)

		c.SetRequest(c.Request().WithContext(logger.WithRequestID(c.Request().Context(), requestID)))
		logger.Attach(c, logger.GetLogger().With(zap.String("request_id", requestID)))

		return next(c)
	}
}
