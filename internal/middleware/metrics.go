package middleware

import (
	"strconv"
	"time"

	"esim-service/prometheus"

	"github.com/labstack/echo/v4"
)

// MetricsMiddleware records request counts and latency per route
func MetricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		err := next(c)

		status := c.Response().Status
		if err != nil {
			// the error handler has not written the response yet
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
		}
		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		prometheus.RecordHTTPRequest(c.Request().Method, path, strconv.Itoa(status), time.Since(start))

		return err
	}
}
