package lifecycle

import (
	"context"
	"errors"
	"strings"

	"esim-service/internal/access"
	"esim-service/internal/gateway"
	"esim-service/internal/model"
	"esim-service/pkg/logger"

	"go.uber.org/zap"
)

// DeployRequest targets a deployment. An empty TargetDeviceID keeps the
// profile's device, and with no device the configuration is broadcast.
type DeployRequest struct {
	TargetDeviceID string
	Notes          string
}

// DeployOutcome is the profile after a deploy attempt that reached the gateway
type DeployOutcome struct {
	Profile *model.Profile
	Result  *gateway.DeployResult
}

// SyncResult reports a deployment status poll
type SyncResult struct {
	Profile      *model.Profile  `json:"profile"`
	Status       *gateway.Status `json:"deploymentStatus"`
	Transitioned bool            `json:"transitioned"`
}

// Deploy pushes a created or errored profile to the gateway. The deploy lease
// is taken before the call so a concurrent deploy cannot reach the gateway
// too. A gateway failure still returns the outcome, with the profile in error.
func (e *Engine) Deploy(ctx context.Context, actor model.Actor, id string, req DeployRequest) (*DeployOutcome, error) {
	log := logger.FromContext(ctx).With(zap.String("profile_id", id))

	p, err := e.load(ctx, actor, access.ActionDeploy, id)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if p.LeaseHeld(now) {
		return nil, e.reject(ctx, p, model.OperationDeploy, actor,
			&model.StateConflictError{Current: p.Status, Reason: "deployment already in progress"}, nil)
	}
	if !Deployable(p.Status) {
		return nil, e.reject(ctx, p, model.OperationDeploy, actor,
			&model.StateConflictError{Current: p.Status, Reason: "profile is not deployable"}, nil)
	}
	if e.providers != nil {
		if err := e.providers.CheckFormat(p.Provider, p.ActivationCode); err != nil {
			return nil, e.reject(ctx, p, model.OperationDeploy, actor, err, map[string]interface{}{
				"provider": string(p.Provider),
				"stage":    "format_check",
			})
		}
	}

	target := strings.TrimSpace(req.TargetDeviceID)
	if target == "" {
		target = p.DeviceID
	}

	// the device binding only changes once the gateway accepted the deployment
	leased := p.Clone()
	e.leaseFor(leased, model.OperationDeploy, now)
	leased.UpdatedAt = now
	leased.UpdatedBy = actor.Subject
	if err := e.store.UpdateProfile(ctx, leased, p.Version, nil); err != nil {
		if errors.Is(err, model.ErrVersionConflict) {
			return nil, e.reject(ctx, p, model.OperationDeploy, actor,
				&model.StateConflictError{Current: p.Status, Reason: "state changed"}, nil)
		}
		return nil, err
	}

	outbound := leased.Clone()
	outbound.DeviceID = target
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
	result, callErr := e.gateway.Deploy(callCtx, outbound)
	cancel()

	// the gateway call happened; its outcome is recorded even if the client went away
	commitCtx := context.WithoutCancel(ctx)
	details := map[string]interface{}{
		"previousStatus": string(p.Status),
		"deviceId":       target,
	}
	if req.Notes != "" {
		details["notes"] = req.Notes
	}

	if callErr != nil {
		gwErr := asGatewayError(gateway.CallDeploy, callErr)
		entry := e.entry(leased, model.OperationDeploy, model.LogError, actor, gatewayDetails(gwErr, details))
		resolved, err := e.resolve(commitCtx, leased, entry, func(next *model.Profile) {
			next.Status = model.StatusError
			next.UpdatedAt = e.now()
			next.UpdatedBy = actor.Subject
		})
		if err != nil {
			return nil, err
		}
		log.Warn("Deployment failed", zap.Error(gwErr))
		return &DeployOutcome{Profile: resolved}, gwErr
	}

	details["graphId"] = result.GraphID
	details["accepted"] = result.Accepted
	entry := e.entry(leased, model.OperationDeploy, model.LogSuccess, actor, details)
	resolved, err := e.resolve(commitCtx, leased, entry, func(next *model.Profile) {
		next.Status = model.StatusDeployed
		next.DeploymentID = result.GraphID
		next.DeviceID = target
		next.UpdatedAt = e.now()
		next.UpdatedBy = actor.Subject
	})
	if err != nil {
		return nil, err
	}
	log.Info("Profile deployed", zap.String("graph_id", result.GraphID))
	return &DeployOutcome{Profile: resolved, Result: result}, nil
}

// SyncDeploymentStatus polls the gateway for a deployed profile. All devices
// succeeded activates it; only failures moves it to error. Anything else is
// reported without a transition or log entry. A failed poll is logged
// against deploy without changing the profile.
func (e *Engine) SyncDeploymentStatus(ctx context.Context, actor model.Actor, id string) (*SyncResult, error) {
	p, err := e.load(ctx, actor, access.ActionActivate, id)
	if err != nil {
		return nil, err
	}
	if p.DeploymentID == "" {
		return nil, &model.StateConflictError{Current: p.Status, Reason: "profile has no deployment"}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
	st, err := e.gateway.GetStatus(callCtx, p.DeploymentID)
	cancel()
	if err != nil {
		gwErr := asGatewayError(gateway.CallGetStatus, err)
		return nil, e.reject(ctx, p, model.OperationDeploy, actor, gwErr, gatewayDetails(gwErr, map[string]interface{}{
			"stage":   "status_poll",
			"graphId": p.DeploymentID,
		}))
	}

	res := &SyncResult{Profile: p, Status: st}
	if p.Status != model.StatusDeployed || p.LeaseHeld(e.now()) {
		return res, nil
	}

	details := map[string]interface{}{
		"source":    "deployment-sync",
		"graphId":   p.DeploymentID,
		"total":     st.Total,
		"succeeded": st.Succeeded,
		"failed":    st.Failed,
		"pending":   st.Pending,
	}

	var entry *model.OperationLogEntry
	next := p.Clone()
	switch {
	case st.Total > 0 && st.Succeeded == st.Total:
		next.Status = model.StatusActive
		entry = e.entry(next, model.OperationActivate, model.LogSuccess, actor, details)
	case st.Failed > 0 && st.Pending == 0 && st.Succeeded == 0:
		next.Status = model.StatusError
		details["error"] = "deployment failed on every targeted device"
		entry = e.entry(next, model.OperationDeploy, model.LogError, actor, details)
	default:
		return res, nil
	}

	next.UpdatedAt = e.now()
	next.UpdatedBy = actor.Subject
	if err := e.commit(ctx, next, p.Version, entry); err != nil {
		return nil, err
	}
	res.Profile = next
	res.Transitioned = true
	return res, nil
}

// Activate confirms a deployed profile is live on its device
func (e *Engine) Activate(ctx context.Context, actor model.Actor, id string) (*model.Profile, error) {
	p, err := e.load(ctx, actor, access.ActionActivate, id)
	if err != nil {
		return nil, err
	}
	if p.LeaseHeld(e.now()) {
		return nil, e.reject(ctx, p, model.OperationActivate, actor,
			&model.StateConflictError{Current: p.Status, Reason: "profile has an operation in progress"}, nil)
	}
	if p.Status != model.StatusDeployed {
		return nil, e.reject(ctx, p, model.OperationActivate, actor,
			&model.StateConflictError{Current: p.Status, Reason: "only deployed profiles can be activated"}, nil)
	}
	return e.transition(ctx, actor, p, model.StatusActive, model.OperationActivate, map[string]interface{}{
		"source": "manual",
	})
}

// Deactivate moves a profile from any status to inactive
func (e *Engine) Deactivate(ctx context.Context, actor model.Actor, id string) (*model.Profile, error) {
	p, err := e.load(ctx, actor, access.ActionDeactivate, id)
	if err != nil {
		return nil, err
	}
	if p.LeaseHeld(e.now()) {
		return nil, e.reject(ctx, p, model.OperationDeactivate, actor,
			&model.StateConflictError{Current: p.Status, Reason: "profile has an operation in progress"}, nil)
	}
	if !CanTransition(p.Status, model.StatusInactive) {
		return nil, e.reject(ctx, p, model.OperationDeactivate, actor,
			&model.StateConflictError{Current: p.Status, Reason: "profile is already inactive"}, nil)
	}
	updated, err := e.transition(ctx, actor, p, model.StatusInactive, model.OperationDeactivate, nil)
	if err == nil {
		e.dropQR(ctx, p.ID)
	}
	return updated, err
}

// Reactivate returns an inactive profile to created so it can be deployed again
func (e *Engine) Reactivate(ctx context.Context, actor model.Actor, id string) (*model.Profile, error) {
	p, err := e.load(ctx, actor, access.ActionReactivate, id)
	if err != nil {
		return nil, err
	}
	if p.Status != model.StatusInactive {
		return nil, e.reject(ctx, p, model.OperationReactivate, actor,
			&model.StateConflictError{Current: p.Status, Reason: "only inactive profiles can be reactivated"}, nil)
	}
	return e.transition(ctx, actor, p, model.StatusCreated, model.OperationReactivate, map[string]interface{}{
		"previousDeploymentId": p.DeploymentID,
	}, func(next *model.Profile) {
		next.DeploymentID = ""
		next.PendingOperation = ""
		next.PendingUntil = nil
	})
}

// transition commits a guarded status change with a success entry
func (e *Engine) transition(ctx context.Context, actor model.Actor, p *model.Profile, to model.Status, op model.Operation, details map[string]interface{}, mutate ...func(*model.Profile)) (*model.Profile, error) {
	if !CanTransition(p.Status, to) {
		return nil, e.reject(ctx, p, op, actor,
			&model.StateConflictError{Current: p.Status, Reason: "transition to " + string(to) + " is not allowed"}, nil)
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	details["from"] = string(p.Status)
	details["to"] = string(to)

	next := p.Clone()
	next.Status = to
	next.UpdatedAt = e.now()
	next.UpdatedBy = actor.Subject
	for _, m := range mutate {
		m(next)
	}

	entry := e.entry(next, op, model.LogSuccess, actor, details)
	if err := e.commit(ctx, next, p.Version, entry); err != nil {
		return nil, err
	}
	return next, nil
}
