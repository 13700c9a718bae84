// Package lifecycle owns every profile state change. Each operation checks
// access, applies the transition table, performs the external side effect
// and commits the new state together with its operation log entry.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"esim-service/internal/access"
	"esim-service/internal/events"
	"esim-service/internal/gateway"
	"esim-service/internal/model"
	"esim-service/internal/provider"
	"esim-service/internal/qr"
	"esim-service/internal/store"
	"esim-service/pkg/logger"
	"esim-service/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultGatewayTimeout  = 60 * time.Second
	defaultProviderTimeout = 30 * time.Second
	maxResolveAttempts     = 3
	publishTimeout         = 5 * time.Second
)

// Validator checks activation codes; *provider.Adapter implements it
type Validator interface {
	CheckFormat(p model.Provider, code string) error
	ValidateActivationCode(ctx context.Context, p model.Provider, code string) (*provider.Result, error)
}

// Config bounds external calls and the deploy/migrate lease
type Config struct {
	GatewayTimeout  time.Duration
	ProviderTimeout time.Duration
	// LeaseDuration is how long an in-flight deploy or migration blocks other
	// transitions. It is raised to cover GatewayTimeout.
	LeaseDuration time.Duration
}

// Dependencies are the collaborators of the engine
type Dependencies struct {
	Config    Config
	Store     store.Store
	Gateway   gateway.Gateway
	Providers Validator
	QR        *qr.Manager
	Events    events.Publisher
}

// Engine is the lifecycle service
type Engine struct {
	cfg       Config
	store     store.Store
	gateway   gateway.Gateway
	providers Validator
	qr        *qr.Manager
	events    events.Publisher
	nowFn     func() time.Time
}

// NewEngine builds an engine, filling unset timeouts with defaults
func NewEngine(deps Dependencies) *Engine {
	cfg := deps.Config
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaultGatewayTimeout
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	if cfg.LeaseDuration < cfg.GatewayTimeout+30*time.Second {
		cfg.LeaseDuration = cfg.GatewayTimeout + 30*time.Second
	}
	return &Engine{
		cfg:       cfg,
		store:     deps.Store,
		gateway:   deps.Gateway,
		providers: deps.Providers,
		qr:        deps.QR,
		events:    deps.Events,
		nowFn:     time.Now,
	}
}

// now is truncated to milliseconds so timestamps survive every store unchanged
func (e *Engine) now() time.Time {
	return e.nowFn().UTC().Truncate(time.Millisecond)
}

func newLogID() string {
	// v7 ids sort by creation time, which orders entries sharing a timestamp
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// authorize runs the access check and records denials
func (e *Engine) authorize(ctx context.Context, actor model.Actor, action access.Action, tenantID string) error {
	if err := access.Check(actor, action, tenantID); err != nil {
		logger.FromContext(ctx).Warn("Access denied",
			zap.String("action", string(action)),
			zap.String("actor_tenant_id", actor.TenantID),
			zap.String("target_tenant_id", tenantID),
			zap.String("role", string(actor.Role)),
			zap.String("subject", actor.Subject),
			zap.Error(err))
		prometheus.RecordAccessDenied(string(action), string(actor.Role))
		return err
	}
	return nil
}

// load fetches a profile and authorizes action against its tenant. A
// migration left without an outcome past its lease is resolved to error first.
func (e *Engine) load(ctx context.Context, actor model.Actor, action access.Action, id string) (*model.Profile, error) {
	p, err := e.store.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, actor, action, p.TenantID); err != nil {
		return nil, err
	}
	if p.Status == model.StatusMigrating && !p.LeaseHeld(e.now()) {
		return e.expireMigration(ctx, actor, action, p)
	}
	return p, nil
}

// expireMigration moves a stranded migrating profile to error. The device
// binding is untouched: phase one never moves it.
func (e *Engine) expireMigration(ctx context.Context, actor model.Actor, action access.Action, p *model.Profile) (*model.Profile, error) {
	details := map[string]interface{}{
		"phase":        "expired",
		"stateChanged": true,
		"trigger":      string(action),
		"error":        "migration did not complete before its lease expired",
	}
	if p.PendingUntil != nil {
		details["leaseExpiredAt"] = p.PendingUntil.Format(time.RFC3339Nano)
	}

	next := p.Clone()
	next.Status = model.StatusError
	next.PendingOperation = ""
	next.PendingUntil = nil
	next.UpdatedAt = e.now()
	entry := e.entry(next, model.OperationMigrate, model.LogError, actor, details)
	if err := e.commit(ctx, next, p.Version, entry); err != nil {
		var conflict *model.StateConflictError
		if !errors.As(err, &conflict) {
			return nil, err
		}
		// someone else resolved it first
		return e.store.GetProfile(ctx, p.ID)
	}
	logger.FromContext(ctx).Warn("Stranded migration resolved to error",
		zap.String("profile_id", p.ID),
		zap.String("device_id", p.DeviceID))
	return next, nil
}

func (e *Engine) entry(p *model.Profile, op model.Operation, status model.LogStatus, actor model.Actor, details map[string]interface{}) *model.OperationLogEntry {
	if details == nil {
		details = map[string]interface{}{}
	}
	return &model.OperationLogEntry{
		ID:        newLogID(),
		ProfileID: p.ID,
		TenantID:  p.TenantID,
		Operation: op,
		Status:    status,
		Timestamp: e.now(),
		Actor:     actor,
		Details:   details,
	}
}

// commit writes p if nobody changed it since expectedVersion, together with entry
func (e *Engine) commit(ctx context.Context, p *model.Profile, expectedVersion int64, entry *model.OperationLogEntry) error {
	if err := e.store.UpdateProfile(ctx, p, expectedVersion, entry); err != nil {
		if errors.Is(err, model.ErrVersionConflict) {
			return &model.StateConflictError{Reason: "state changed"}
		}
		return err
	}
	if entry != nil {
		e.recorded(ctx, entry)
	}
	return nil
}

// reject logs a failed precondition against the profile and returns cause
func (e *Engine) reject(ctx context.Context, p *model.Profile, op model.Operation, actor model.Actor, cause error, details map[string]interface{}) error {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["error"] = cause.Error()
	details["currentStatus"] = string(p.Status)
	entry := e.entry(p, op, model.LogError, actor, details)
	if err := e.store.AppendLog(ctx, entry); err != nil {
		logger.FromContext(ctx).Error("Failed to append operation log",
			zap.String("profile_id", p.ID),
			zap.String("operation", string(op)),
			zap.Error(err))
		return cause
	}
	e.recorded(ctx, entry)
	return cause
}

// recorded runs after an entry is durable: metrics, log line, event stream
func (e *Engine) recorded(ctx context.Context, entry *model.OperationLogEntry) {
	prometheus.RecordTransition(string(entry.Operation), string(entry.Status))
	logger.FromContext(ctx).Info("Operation recorded",
		zap.String("profile_id", entry.ProfileID),
		zap.String("tenant_id", entry.TenantID),
		zap.String("operation", string(entry.Operation)),
		zap.String("status", string(entry.Status)))

	if e.events == nil {
		return
	}
	published := *entry
	log := logger.FromContext(ctx)
	requestID := logger.RequestID(ctx)
	go func() {
		pubCtx, cancel := context.WithTimeout(logger.WithRequestID(context.Background(), requestID), publishTimeout)
		defer cancel()
		if err := e.events.Publish(pubCtx, published); err != nil {
			log.Warn("Failed to publish operation log event",
				zap.String("entry_id", published.ID),
				zap.Error(err))
		}
	}()
}

// leaseFor marks p as held by op until now+LeaseDuration
func (e *Engine) leaseFor(p *model.Profile, op model.Operation, now time.Time) {
	until := now.Add(e.cfg.LeaseDuration)
	p.PendingOperation = string(op)
	p.PendingUntil = &until
}

func sameLease(a, b *model.Profile) bool {
	return a.PendingOperation == b.PendingOperation &&
		a.PendingUntil != nil && b.PendingUntil != nil &&
		a.PendingUntil.Equal(*b.PendingUntil)
}

// resolve finishes a leased operation: apply runs on the leased profile, the
// lease is released and the result committed with entry. Edits that landed
// while the lease was held are kept by reloading and re-applying. If the
// lease itself was lost the entry is still recorded, flagged stateChanged.
func (e *Engine) resolve(ctx context.Context, leased *model.Profile, entry *model.OperationLogEntry, apply func(p *model.Profile)) (*model.Profile, error) {
	current := leased
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		next := current.Clone()
		apply(next)
		next.PendingOperation = ""
		next.PendingUntil = nil

		err := e.store.UpdateProfile(ctx, next, current.Version, entry)
		if err == nil {
			e.recorded(ctx, entry)
			return next, nil
		}
		if !errors.Is(err, model.ErrVersionConflict) {
			return nil, err
		}

		reloaded, err := e.store.GetProfile(ctx, leased.ID)
		if err != nil {
			return nil, err
		}
		if !sameLease(reloaded, leased) {
			break
		}
		current = reloaded
	}

	entry.Details["stateChanged"] = true
	if err := e.store.AppendLog(ctx, entry); err != nil {
		return nil, err
	}
	e.recorded(ctx, entry)
	logger.FromContext(ctx).Error("Lease lost before the outcome could be committed",
		zap.String("profile_id", leased.ID),
		zap.String("operation", leased.PendingOperation))
	return nil, &model.StateConflictError{Reason: "state changed"}
}

// gatewayDetails describes a gateway failure for the operation log
func gatewayDetails(err error, details map[string]interface{}) map[string]interface{} {
	details["error"] = err.Error()
	var gwErr *model.GatewayError
	if errors.As(err, &gwErr) {
		details["timeout"] = gwErr.Timeout
		details["gatewayCall"] = gwErr.Call
		if gwErr.Timeout {
			details["reason"] = "deployment gateway timed out"
		}
	}
	return details
}

// asGatewayError keeps gateway failures typed for callers
func asGatewayError(call string, err error) error {
	var gwErr *model.GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	timeout := errors.Is(err, context.DeadlineExceeded)
	return &model.GatewayError{Call: call, Timeout: timeout, Err: err}
}
