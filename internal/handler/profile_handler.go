package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"esim-service/internal/importer"
	"esim-service/internal/lifecycle"
	"esim-service/internal/model"
	"esim-service/internal/store"
	"esim-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const maxImportSize = 8 << 20

// DeployRequest is the body of POST /api/esim/deploy
type DeployRequest struct {
	ProfileID       string `json:"profileId"`
	TargetDeviceID  string `json:"targetDeviceId"`
	DeploymentNotes string `json:"deploymentNotes"`
}

// ValidateRequest checks a stored profile, or an ad-hoc code when ProfileID is empty
type ValidateRequest struct {
	ProfileID      string `json:"profileId"`
	Provider       string `json:"provider"`
	ActivationCode string `json:"activationCode"`
}

// BulkDeleteRequest is the body of POST /api/esim/bulk-delete
type BulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// CreateProfile handles POST /api/esim/create
func (h *Handler) CreateProfile(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	var req model.ProfileFields
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	p, err := h.engine.Create(c.Request().Context(), a, req)
	if err != nil {
		return fail(c, err, nil)
	}
	return respond(c, http.StatusCreated, "profile created", echo.Map{"profile": p})
}

// ListProfiles handles GET /api/esim/list
func (h *Handler) ListProfiles(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	skip, limit, err := page(c)
	if err != nil {
		return fail(c, err, nil)
	}

	filter := store.ProfileFilter{Skip: skip, Limit: limit}
	if raw := c.QueryParam("provider"); raw != "" {
		p, valid := model.ParseProvider(raw)
		if !valid {
			return fail(c, &model.ValidationError{Fields: map[string]string{"provider": "unknown provider"}}, nil)
		}
		filter.Provider = p
	}
	if raw := c.QueryParam("status"); raw != "" {
		s, valid := model.ParseStatus(raw)
		if !valid {
			return fail(c, &model.ValidationError{Fields: map[string]string{"status": "unknown status"}}, nil)
		}
		filter.Status = s
	}

	profiles, total, err := h.engine.List(c.Request().Context(), a, filter)
	if err != nil {
		return fail(c, err, nil)
	}
	skip, limit = store.NormalizePage(skip, limit)
	return respond(c, http.StatusOK, "", echo.Map{
		"profiles": profiles,
		"total":    total,
		"skip":     skip,
		"limit":    limit,
	})
}

// GetProfile handles GET /api/esim/:id
func (h *Handler) GetProfile(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	p, err := h.engine.Get(c.Request().Context(), a, c.Param("id"))
	if err != nil {
		return fail(c, err, nil)
	}
	return respond(c, http.StatusOK, "", echo.Map{"profile": p})
}

// UpdateProfile handles PUT /api/esim/update/:id
func (h *Handler) UpdateProfile(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	var req model.ProfileUpdate
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.engine.Update(c.Request().Context(), a, c.Param("id"), req)
	if err != nil {
		return fail(c, err, nil)
	}
	message := "profile updated"
	if res.RedeployRequired {
		message = "profile updated; redeploy to apply the changes on devices"
	}
	return respond(c, http.StatusOK, message, echo.Map{
		"profile":          res.Profile,
		"redeployRequired": res.RedeployRequired,
	})
}

// DeleteProfile handles DELETE /api/esim/:id
func (h *Handler) DeleteProfile(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	if err := h.engine.Delete(c.Request().Context(), a, c.Param("id")); err != nil {
		return fail(c, err, nil)
	}
	return respond(c, http.StatusOK, "profile deleted", nil)
}

// DeployProfile handles POST /api/esim/deploy
func (h *Handler) DeployProfile(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	var req DeployRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.ProfileID) == "" {
		return fail(c, &model.ValidationError{Fields: map[string]string{"profileId": "is required"}}, nil)
	}

	out, err := h.engine.Deploy(c.Request().Context(), a, req.ProfileID, lifecycle.DeployRequest{
		TargetDeviceID: req.TargetDeviceID,
		Notes:          req.DeploymentNotes,
	})
	if err != nil {
		extra := echo.Map{}
		if out != nil {
			extra["deploymentStatus"] = out.Profile.Status
			extra["profile"] = out.Profile
		}
		return fail(c, err, extra)
	}
	return respond(c, http.StatusOK, "profile deployed", echo.Map{
		"deploymentStatus": out.Profile.Status,
		"graphId":          out.Result.GraphID,
		"profile":          out.Profile,
	})
}

// ValidateProfile handles POST /api/esim/validate
func (h *Handler) ValidateProfile(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx := c.Request().Context()
	if strings.TrimSpace(req.ProfileID) != "" {
		res, err := h.engine.Validate(ctx, a, req.ProfileID)
		if err != nil {
			return fail(c, err, nil)
		}
		return respond(c, http.StatusOK, "activation code is valid", echo.Map{"result": res})
	}

	res, err := h.engine.ValidateCode(ctx, a, req.Provider, strings.TrimSpace(req.ActivationCode))
	if err != nil {
		return fail(c, err, nil)
	}
	return respond(c, http.StatusOK, "activation code is valid", echo.Map{"result": res})
}

// ActivateProfile handles POST /api/esim/:id/activate
func (h *Handler) ActivateProfile(c echo.Context) error {
	return h.statusChange(c, "profile activated", h.engine.Activate)
}

// DeactivateProfile handles POST /api/esim/:id/deactivate
func (h *Handler) DeactivateProfile(c echo.Context) error {
	return h.statusChange(c, "profile deactivated", h.engine.Deactivate)
}

// ReactivateProfile handles POST /api/esim/:id/reactivate
func (h *Handler) ReactivateProfile(c echo.Context) error {
	return h.statusChange(c, "profile reactivated", h.engine.Reactivate)
}

type statusChangeFunc func(ctx context.Context, a model.Actor, id string) (*model.Profile, error)

func (h *Handler) statusChange(c echo.Context, message string, change statusChangeFunc) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	p, err := change(c.Request().Context(), a, c.Param("id"))
	if err != nil {
		return fail(c, err, nil)
	}
	return respond(c, http.StatusOK, message, echo.Map{"profile": p})
}

// DeploymentStatus handles GET /api/esim/:id/deployment-status
func (h *Handler) DeploymentStatus(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	res, err := h.engine.SyncDeploymentStatus(c.Request().Context(), a, c.Param("id"))
	if err != nil {
		return fail(c, err, nil)
	}
	return respond(c, http.StatusOK, "", echo.Map{
		"profile":          res.Profile,
		"deploymentStatus": res.Status,
		"transitioned":     res.Transitioned,
	})
}

// ProfileLogs handles GET /api/esim/logs/:id
func (h *Handler) ProfileLogs(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	skip, limit, err := page(c)
	if err != nil {
		return fail(c, err, nil)
	}
	logs, total, err := h.engine.Logs(c.Request().Context(), a, c.Param("id"), skip, limit)
	if err != nil {
		return fail(c, err, nil)
	}
	return respond(c, http.StatusOK, "", echo.Map{"logs": logs, "total": total})
}

// BulkDeleteProfiles handles POST /api/esim/bulk-delete
func (h *Handler) BulkDeleteProfiles(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	var req BulkDeleteRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(req.IDs) == 0 {
		return fail(c, &model.ValidationError{Fields: map[string]string{"ids": "at least one id is required"}}, nil)
	}

	results := h.engine.BulkDelete(c.Request().Context(), a, req.IDs)
	return bulkResponse(c, results, "deleted")
}

// ImportProfiles handles POST /api/esim/import with a multipart "file" field
func (h *Handler) ImportProfiles(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	log := logger.FromEcho(c)

	header, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	if header.Size > maxImportSize {
		return badRequest(c, "file is too large")
	}
	file, err := header.Open()
	if err != nil {
		return badRequest(c, "file could not be read")
	}
	defer file.Close()

	payload, err := io.ReadAll(io.LimitReader(file, maxImportSize+1))
	if err != nil {
		return badRequest(c, "file could not be read")
	}
	if len(payload) > maxImportSize {
		return badRequest(c, "file is too large")
	}

	rows, err := importer.Parse(header.Filename, payload)
	if err != nil {
		log.Info("Import rejected", zap.String("file", header.Filename), zap.Error(err))
		return badRequest(c, err.Error())
	}

	fields := make([]model.ProfileFields, len(rows))
	for i, row := range rows {
		fields[i] = row.Fields
	}
	results := h.engine.BulkCreate(c.Request().Context(), a, fields)
	for i := range results {
		results[i].Index = rows[i].Line
	}
	log.Info("Profiles imported", zap.String("file", header.Filename), zap.Int("rows", len(rows)))
	return bulkResponse(c, results, "imported")
}

func bulkResponse(c echo.Context, results []lifecycle.ItemResult, verb string) error {
	var succeeded int
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	failed := len(results) - succeeded
	return c.JSON(http.StatusOK, echo.Map{
		"success":   failed == 0,
		"message":   fmt.Sprintf("%d of %d %s", succeeded, len(results), verb),
		"results":   results,
		"succeeded": succeeded,
		"failed":    failed,
	})
}
