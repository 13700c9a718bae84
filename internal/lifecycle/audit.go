package lifecycle

import (
	"context"
	"errors"

	"esim-service/internal/access"
	"esim-service/internal/model"
	"esim-service/internal/store"
)

// TenantStats summarizes a tenant's fleet
type TenantStats struct {
	TenantID string                 `json:"tenantId"`
	Total    int64                  `json:"total"`
	ByStatus map[model.Status]int64 `json:"byStatus"`
}

// Logs returns a profile's operation history, newest first
func (e *Engine) Logs(ctx context.Context, actor model.Actor, profileID string, skip, limit int) ([]model.OperationLogEntry, int64, error) {
	p, err := e.load(ctx, actor, access.ActionRead, profileID)
	if err != nil {
		return nil, 0, err
	}
	return e.store.ListLogs(ctx, store.LogFilter{
		ProfileID: p.ID,
		TenantID:  p.TenantID,
		Skip:      skip,
		Limit:     limit,
	})
}

// ComplianceLogs returns every entry of the actor's tenant, deleted profiles included
func (e *Engine) ComplianceLogs(ctx context.Context, actor model.Actor, operation model.Operation, skip, limit int) ([]model.OperationLogEntry, int64, error) {
	if err := e.authorize(ctx, actor, access.ActionComplianceAudit, actor.TenantID); err != nil {
		return nil, 0, err
	}
	return e.store.ListLogs(ctx, store.LogFilter{
		TenantID:  actor.TenantID,
		Operation: operation,
		Skip:      skip,
		Limit:     limit,
	})
}

// TenantStats counts the actor's tenant profiles by status
func (e *Engine) TenantStats(ctx context.Context, actor model.Actor) (*TenantStats, error) {
	if err := e.authorize(ctx, actor, access.ActionManageTenant, actor.TenantID); err != nil {
		return nil, err
	}
	counts, err := e.store.CountByStatus(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}
	stats := &TenantStats{TenantID: actor.TenantID, ByStatus: map[model.Status]int64{}}
	for _, s := range model.Statuses {
		stats.ByStatus[s] = counts[s]
		stats.Total += counts[s]
	}
	return stats, nil
}

// QRCode returns the profile's current activation QR payload
func (e *Engine) QRCode(ctx context.Context, actor model.Actor, profileID string) (*model.QRCode, error) {
	p, err := e.load(ctx, actor, access.ActionRead, profileID)
	if err != nil {
		return nil, err
	}
	if e.qr == nil {
		return nil, errors.New("qr codes are not configured")
	}
	if p.Status == model.StatusInactive {
		return nil, &model.StateConflictError{Current: p.Status, Reason: "inactive profiles have no QR code"}
	}
	code, _, err := e.qr.Get(ctx, p)
	return code, err
}

// MarkQRScanned retires the profile's current QR code
func (e *Engine) MarkQRScanned(ctx context.Context, actor model.Actor, profileID string) (*model.QRCode, error) {
	p, err := e.load(ctx, actor, access.ActionQRScan, profileID)
	if err != nil {
		return nil, err
	}
	if e.qr == nil {
		return nil, errors.New("qr codes are not configured")
	}
	return e.qr.MarkScanned(ctx, p)
}
