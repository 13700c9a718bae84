package handler

import (
	"net/http"

	"esim-service/internal/lifecycle"

	"github.com/labstack/echo/v4"
)

// MigrationRequest is the body of POST /api/migration/initiate
type MigrationRequest struct {
	ProfileID      string `json:"profileId"`
	SourceDeviceID string `json:"sourceDeviceId"`
	TargetDeviceID string `json:"targetDeviceId"`
	MigrationNotes string `json:"migrationNotes"`
}

// InitiateMigration handles POST /api/migration/initiate
func (h *Handler) InitiateMigration(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	var req MigrationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	out, err := h.engine.Migrate(c.Request().Context(), a, lifecycle.MigrationRequest{
		ProfileID:      req.ProfileID,
		SourceDeviceID: req.SourceDeviceID,
		TargetDeviceID: req.TargetDeviceID,
		Notes:          req.MigrationNotes,
	})
	if err != nil {
		extra := echo.Map{}
		if out != nil {
			extra["migrationId"] = out.Migration.ID
			extra["migration"] = out.Migration
			extra["profile"] = out.Profile
		}
		return fail(c, err, extra)
	}
	return respond(c, http.StatusOK, "migration completed", echo.Map{
		"migrationId": out.Migration.ID,
		"migration":   out.Migration,
		"profile":     out.Profile,
	})
}

// GetMigration handles GET /api/migration/:id
func (h *Handler) GetMigration(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	mig, err := h.engine.GetMigration(c.Request().Context(), a, c.Param("id"))
	if err != nil {
		return fail(c, err, nil)
	}
	return respond(c, http.StatusOK, "", echo.Map{
		"migration": mig,
		"status":    mig.Status,
	})
}
