package lifecycle

import (
	"context"
	"errors"
	"strings"

	"esim-service/internal/access"
	"esim-service/internal/model"
	"esim-service/internal/store"
	"esim-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// UpdateResult is an applied update. RedeployRequired is set when the profile
// is already on devices and the edit only reaches them after a new deploy.
type UpdateResult struct {
	Profile          *model.Profile
	RedeployRequired bool
}

// ItemResult is the per-item outcome of a bulk operation
type ItemResult struct {
	Index   int               `json:"index"`
	ID      string            `json:"id,omitempty"`
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Create validates fields and stores a new profile in status created
func (e *Engine) Create(ctx context.Context, actor model.Actor, fields model.ProfileFields) (*model.Profile, error) {
	if err := e.authorize(ctx, actor, access.ActionCreate, actor.TenantID); err != nil {
		return nil, err
	}
	if errs := model.ValidateProfile(fields); len(errs) > 0 {
		return nil, &model.ValidationError{Fields: errs}
	}

	providerName, _ := model.ParseProvider(fields.Provider)
	now := e.now()
	p := &model.Profile{
		ID:             uuid.NewString(),
		TenantID:       actor.TenantID,
		DisplayName:    strings.TrimSpace(fields.DisplayName),
		Description:    fields.Description,
		Provider:       providerName,
		ActivationCode: strings.TrimSpace(fields.ActivationCode),
		SMDPServerURL:  strings.TrimSpace(fields.SMDPServerURL),
		Status:         model.StatusCreated,
		DeviceID:       strings.TrimSpace(fields.DeviceID),
		Version:        1,
		CreatedBy:      actor.Subject,
		UpdatedBy:      actor.Subject,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if len(fields.Metadata) > 0 {
		p.Metadata = make(datatypes.JSONMap, len(fields.Metadata))
		for k, v := range fields.Metadata {
			p.Metadata[k] = v
		}
	}

	entry := e.entry(p, model.OperationCreate, model.LogSuccess, actor, map[string]interface{}{
		"displayName": p.DisplayName,
		"provider":    string(p.Provider),
	})
	if err := e.store.CreateProfile(ctx, p, entry); err != nil {
		return nil, err
	}
	e.recorded(ctx, entry)
	return p, nil
}

// Get returns a profile of the actor's tenant
func (e *Engine) Get(ctx context.Context, actor model.Actor, id string) (*model.Profile, error) {
	return e.load(ctx, actor, access.ActionRead, id)
}

// List pages through the actor's tenant profiles, newest first
func (e *Engine) List(ctx context.Context, actor model.Actor, filter store.ProfileFilter) ([]model.Profile, int64, error) {
	if err := e.authorize(ctx, actor, access.ActionRead, actor.TenantID); err != nil {
		return nil, 0, err
	}
	return e.store.ListProfiles(ctx, actor.TenantID, filter)
}

// Update applies a partial field map. Status is never touched.
func (e *Engine) Update(ctx context.Context, actor model.Actor, id string, upd model.ProfileUpdate) (*UpdateResult, error) {
	p, err := e.load(ctx, actor, access.ActionUpdate, id)
	if err != nil {
		return nil, err
	}
	if upd.Empty() {
		return nil, e.reject(ctx, p, model.OperationUpdate, actor,
			&model.ValidationError{Fields: map[string]string{"fields": "at least one field is required"}}, nil)
	}

	merged := upd.Apply(p.Fields())
	if errs := model.ValidateProfile(merged); len(errs) > 0 {
		verr := &model.ValidationError{Fields: errs}
		return nil, e.reject(ctx, p, model.OperationUpdate, actor, verr, map[string]interface{}{
			"fields": errs,
		})
	}

	activationChanged := upd.ActivationCode != nil || upd.SMDPServerURL != nil || upd.Provider != nil
	providerName, _ := model.ParseProvider(merged.Provider)
	next := p.Clone()
	next.DisplayName = strings.TrimSpace(merged.DisplayName)
	next.Description = merged.Description
	next.Provider = providerName
	next.ActivationCode = strings.TrimSpace(merged.ActivationCode)
	next.SMDPServerURL = strings.TrimSpace(merged.SMDPServerURL)
	next.UpdatedBy = actor.Subject
	next.UpdatedAt = e.now()

	redeploy := RequiresRedeploy(p.Status)
	status := model.LogSuccess
	details := map[string]interface{}{"changedFields": upd.ChangedFields()}
	if redeploy {
		status = model.LogWarning
		details["redeployRequired"] = true
		details["message"] = "profile is " + string(p.Status) + "; changes take effect after redeployment"
	}

	entry := e.entry(next, model.OperationUpdate, status, actor, details)
	if err := e.commit(ctx, next, p.Version, entry); err != nil {
		return nil, err
	}
	if activationChanged {
		e.dropQR(ctx, p.ID)
	}
	return &UpdateResult{Profile: next, RedeployRequired: redeploy}, nil
}

// Delete removes a profile. In-flight deploys and migrations block deletion.
func (e *Engine) Delete(ctx context.Context, actor model.Actor, id string) error {
	p, err := e.load(ctx, actor, access.ActionDelete, id)
	if err != nil {
		return err
	}
	if p.LeaseHeld(e.now()) {
		return e.reject(ctx, p, model.OperationDelete, actor,
			&model.StateConflictError{Current: p.Status, Reason: "profile has an operation in progress"}, nil)
	}
	if p.Status == model.StatusMigrating {
		return e.reject(ctx, p, model.OperationDelete, actor,
			&model.StateConflictError{Current: p.Status, Reason: "profile is migrating"}, nil)
	}

	entry := e.entry(p, model.OperationDelete, model.LogSuccess, actor, map[string]interface{}{
		"displayName": p.DisplayName,
		"status":      string(p.Status),
	})
	if err := e.store.DeleteProfile(ctx, p.TenantID, p.ID, p.Version, entry); err != nil {
		if errors.Is(err, model.ErrVersionConflict) {
			return &model.StateConflictError{Reason: "state changed"}
		}
		return err
	}
	e.recorded(ctx, entry)
	e.dropQR(ctx, p.ID)
	return nil
}

// BulkDelete deletes each id independently and reports per item
func (e *Engine) BulkDelete(ctx context.Context, actor model.Actor, ids []string) []ItemResult {
	results := make([]ItemResult, 0, len(ids))
	for i, id := range ids {
		res := ItemResult{Index: i, ID: id}
		if err := e.Delete(ctx, actor, id); err != nil {
			res.Error = err.Error()
		} else {
			res.Success = true
		}
		results = append(results, res)
	}
	return results
}

// BulkCreate creates each row independently and reports per item
func (e *Engine) BulkCreate(ctx context.Context, actor model.Actor, rows []model.ProfileFields) []ItemResult {
	results := make([]ItemResult, 0, len(rows))
	for i, row := range rows {
		res := ItemResult{Index: i}
		p, err := e.Create(ctx, actor, row)
		if err != nil {
			res.Error = err.Error()
			var verr *model.ValidationError
			if errors.As(err, &verr) {
				res.Fields = verr.Fields
			}
		} else {
			res.ID = p.ID
			res.Success = true
		}
		results = append(results, res)
	}
	return results
}

func (e *Engine) dropQR(ctx context.Context, profileID string) {
	if e.qr == nil {
		return
	}
	if err := e.qr.Invalidate(ctx, profileID); err != nil {
		logger.FromContext(ctx).Warn("Failed to invalidate QR code",
			zap.String("profile_id", profileID),
			zap.Error(err))
	}
}
