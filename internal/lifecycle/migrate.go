package lifecycle

import (
	"context"
	"strings"

	"esim-service/internal/access"
	"esim-service/internal/gateway"
	"esim-service/internal/model"
	"esim-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MigrationRequest moves a profile from one device to another
type MigrationRequest struct {
	ProfileID      string
	SourceDeviceID string
	TargetDeviceID string
	Notes          string
}

// MigrationOutcome is the record and profile after a migration attempt
type MigrationOutcome struct {
	Migration *model.MigrationRecord
	Profile   *model.Profile
}

// Migrate transfers a deployed or active profile to another device in two
// phases. Phase one commits migrating with an "initiated" entry before the
// gateway is called; phase two commits active on the target, or error with
// the prior device binding restored, with a second entry. A profile with no
// device (broadcast deployment) may be migrated from any named source.
func (e *Engine) Migrate(ctx context.Context, actor model.Actor, req MigrationRequest) (*MigrationOutcome, error) {
	p, err := e.load(ctx, actor, access.ActionMigrate, req.ProfileID)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With(zap.String("profile_id", p.ID))

	source := strings.TrimSpace(req.SourceDeviceID)
	target := strings.TrimSpace(req.TargetDeviceID)
	base := map[string]interface{}{
		"sourceDeviceId": source,
		"targetDeviceId": target,
	}

	if fields := migrationFieldErrors(source, target); len(fields) > 0 {
		return nil, e.reject(ctx, p, model.OperationMigrate, actor, &model.ValidationError{Fields: fields}, base)
	}
	if source == target {
		return nil, e.reject(ctx, p, model.OperationMigrate, actor,
			&model.StateConflictError{Current: p.Status, Reason: "source and target cannot match"}, base)
	}
	now := e.now()
	if p.LeaseHeld(now) {
		return nil, e.reject(ctx, p, model.OperationMigrate, actor,
			&model.StateConflictError{Current: p.Status, Reason: "profile has an operation in progress"}, base)
	}
	if !Migratable(p.Status) {
		return nil, e.reject(ctx, p, model.OperationMigrate, actor,
			&model.StateConflictError{Current: p.Status, Reason: "profile is not migratable"}, base)
	}
	if p.DeviceID != "" && p.DeviceID != source {
		return nil, e.reject(ctx, p, model.OperationMigrate, actor,
			&model.StateConflictError{Current: p.Status, Reason: "profile is not on the source device"}, base)
	}

	mig := &model.MigrationRecord{
		ID:             uuid.NewString(),
		ProfileID:      p.ID,
		TenantID:       p.TenantID,
		SourceDeviceID: source,
		TargetDeviceID: target,
		Notes:          req.Notes,
		Status:         model.MigrationPending,
		ProfileStatus:  p.Status,
		InitiatedBy:    actor.Subject,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.SaveMigration(ctx, mig); err != nil {
		return nil, err
	}

	// phase one: the profile leaves service on its current device
	prior := p.DeviceID
	leased := p.Clone()
	leased.Status = model.StatusMigrating
	leased.UpdatedAt = now
	leased.UpdatedBy = actor.Subject
	e.leaseFor(leased, model.OperationMigrate, now)

	initiated := e.entry(leased, model.OperationMigrate, model.LogSuccess, actor, map[string]interface{}{
		"phase":          "initiated",
		"migrationId":    mig.ID,
		"sourceDeviceId": source,
		"targetDeviceId": target,
		"previousStatus": string(p.Status),
		"notes":          req.Notes,
	})
	if err := e.commit(ctx, leased, p.Version, initiated); err != nil {
		mig.AddStep(model.StepDeactivateSource, model.StepFailed, e.now(), err.Error())
		e.finishMigration(ctx, mig, model.MigrationFailed, p.Status, err.Error())
		return nil, e.reject(ctx, p, model.OperationMigrate, actor, err, base)
	}
	mig.AddStep(model.StepDeactivateSource, model.StepCompleted, now, "")
	e.finishMigration(ctx, mig, model.MigrationInProgress, model.StatusMigrating, "")

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
	graphID, callErr := e.assign(callCtx, leased, target)
	cancel()

	// phase two
	commitCtx := context.WithoutCancel(ctx)
	outcome := map[string]interface{}{
		"migrationId":    mig.ID,
		"sourceDeviceId": source,
		"targetDeviceId": target,
	}

	if callErr != nil {
		gwErr := asGatewayError(gateway.CallAssign, callErr)
		outcome["phase"] = "failed"
		outcome["restoredDeviceId"] = prior
		entry := e.entry(leased, model.OperationMigrate, model.LogError, actor, gatewayDetails(gwErr, outcome))
		resolved, err := e.resolve(commitCtx, leased, entry, func(next *model.Profile) {
			next.Status = model.StatusError
			next.DeviceID = prior
			next.UpdatedAt = e.now()
			next.UpdatedBy = actor.Subject
		})
		at := e.now()
		mig.AddStep(model.StepDeployTarget, model.StepFailed, at, gwErr.Error())
		if err != nil {
			e.finishMigration(commitCtx, mig, model.MigrationFailed, model.StatusMigrating, err.Error())
			return nil, err
		}
		mig.AddStep(model.StepDeactivateSource, model.StepReverted, at, "")
		e.finishMigration(commitCtx, mig, model.MigrationRolledBack, model.StatusError, gwErr.Error())
		log.Warn("Migration failed, prior device restored",
			zap.String("migration_id", mig.ID),
			zap.String("device_id", prior),
			zap.Error(gwErr))
		return &MigrationOutcome{Migration: mig, Profile: resolved}, gwErr
	}

	mig.AddStep(model.StepDeployTarget, model.StepCompleted, e.now(), "")
	outcome["phase"] = "completed"
	if graphID != leased.DeploymentID {
		outcome["graphId"] = graphID
	}
	entry := e.entry(leased, model.OperationMigrate, model.LogSuccess, actor, outcome)
	resolved, err := e.resolve(commitCtx, leased, entry, func(next *model.Profile) {
		next.Status = model.StatusActive
		next.DeviceID = target
		next.DeploymentID = graphID
		next.UpdatedAt = e.now()
		next.UpdatedBy = actor.Subject
	})
	if err != nil {
		mig.AddStep(model.StepVerifyActivation, model.StepFailed, e.now(), err.Error())
		e.finishMigration(commitCtx, mig, model.MigrationFailed, model.StatusMigrating, err.Error())
		return nil, err
	}
	mig.AddStep(model.StepVerifyActivation, model.StepCompleted, e.now(), "")
	e.finishMigration(commitCtx, mig, model.MigrationCompleted, model.StatusActive, "")
	log.Info("Migration completed", zap.String("migration_id", mig.ID), zap.String("target_device_id", target))
	return &MigrationOutcome{Migration: mig, Profile: resolved}, nil
}

// assign points the profile's configuration at target and returns the
// configuration id now serving it. A profile deployed without a recorded
// configuration gets a fresh one.
func (e *Engine) assign(ctx context.Context, p *model.Profile, target string) (string, error) {
	if p.DeploymentID != "" {
		if err := e.gateway.Assign(ctx, p.DeploymentID, gateway.Target{DeviceID: target}); err != nil {
			return "", err
		}
		return p.DeploymentID, nil
	}
	moved := p.Clone()
	moved.DeviceID = target
	res, err := e.gateway.Deploy(ctx, moved)
	if err != nil {
		return "", err
	}
	return res.GraphID, nil
}

// GetMigration returns a migration record of the actor's tenant
func (e *Engine) GetMigration(ctx context.Context, actor model.Actor, id string) (*model.MigrationRecord, error) {
	mig, err := e.store.GetMigration(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, actor, access.ActionRead, mig.TenantID); err != nil {
		return nil, err
	}
	return mig, nil
}

func (e *Engine) finishMigration(ctx context.Context, mig *model.MigrationRecord, status model.MigrationStatus, profileStatus model.Status, reason string) {
	mig.Status = status
	mig.ProfileStatus = profileStatus
	mig.Error = reason
	mig.UpdatedAt = e.now()
	if err := e.store.SaveMigration(ctx, mig); err != nil {
		logger.FromContext(ctx).Error("Failed to save migration record",
			zap.String("migration_id", mig.ID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

func migrationFieldErrors(source, target string) map[string]string {
	fields := map[string]string{}
	if source == "" {
		fields["sourceDeviceId"] = "is required"
	}
	if target == "" {
		fields["targetDeviceId"] = "is required"
	}
	return fields
}
