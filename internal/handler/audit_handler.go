package handler

import (
	"net/http"

	"esim-service/internal/model"

	"github.com/labstack/echo/v4"
)

// ComplianceLogs handles GET /api/compliance/logs
func (h *Handler) ComplianceLogs(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	skip, limit, err := page(c)
	if err != nil {
		return fail(c, err, nil)
	}

	var op model.Operation
	if raw := c.QueryParam("operation"); raw != "" {
		parsed, valid := model.ParseOperation(raw)
		if !valid {
			return fail(c, &model.ValidationError{Fields: map[string]string{"operation": "unknown operation"}}, nil)
		}
		op = parsed
	}

	logs, total, err := h.engine.ComplianceLogs(c.Request().Context(), a, op, skip, limit)
	if err != nil {
		return fail(c, err, nil)
	}
	return respond(c, http.StatusOK, "", echo.Map{"logs": logs, "total": total})
}

// TenantStats handles GET /api/tenant/stats
func (h *Handler) TenantStats(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	stats, err := h.engine.TenantStats(c.Request().Context(), a)
	if err != nil {
		return fail(c, err, nil)
	}
	return respond(c, http.StatusOK, "", echo.Map{
		"stats":      stats,
		"tenantName": c.Get("tenant_name"),
	})
}
