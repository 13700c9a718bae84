// Package store persists profiles, operation log entries and migration
// records. Every driver implements the same optimistic-concurrency contract:
// a profile write succeeds only when the stored version matches the version
// the caller read, and a write plus its log entry commit together.
package store

import (
	"context"

	"esim-service/internal/model"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// ProfileFilter narrows a tenant's profile listing
type ProfileFilter struct {
	Provider model.Provider
	Status   model.Status
	Skip     int
	Limit    int
}

// LogFilter selects operation log entries. ProfileID or TenantID must be set.
type LogFilter struct {
	ProfileID string
	TenantID  string
	Operation model.Operation
	Skip      int
	Limit     int
}

// Store is the single source of truth for profile state
type Store interface {
	// CreateProfile inserts p together with its creation log entry
	CreateProfile(ctx context.Context, p *model.Profile, entry *model.OperationLogEntry) error
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	ListProfiles(ctx context.Context, tenantID string, filter ProfileFilter) ([]model.Profile, int64, error)
	// UpdateProfile replaces p if the stored version equals expectedVersion and
	// sets p.Version to expectedVersion+1. A non-nil entry is appended in the
	// same commit. Returns model.ErrVersionConflict when the version moved.
	UpdateProfile(ctx context.Context, p *model.Profile, expectedVersion int64, entry *model.OperationLogEntry) error
	DeleteProfile(ctx context.Context, tenantID, id string, expectedVersion int64, entry *model.OperationLogEntry) error
	CountByStatus(ctx context.Context, tenantID string) (map[model.Status]int64, error)

	AppendLog(ctx context.Context, entry *model.OperationLogEntry) error
	ListLogs(ctx context.Context, filter LogFilter) ([]model.OperationLogEntry, int64, error)

	SaveMigration(ctx context.Context, m *model.MigrationRecord) error
	GetMigration(ctx context.Context, id string) (*model.MigrationRecord, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// NormalizePage clamps skip/limit into the allowed range
func NormalizePage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return skip, limit
}
