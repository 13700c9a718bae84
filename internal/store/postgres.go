package store

import (
	"context"
	"errors"
	"time"

	"esim-service/internal/model"
	"esim-service/prometheus"

	"gorm.io/gorm"
)

// PostgresStore persists through gorm; every transition commits in one SQL transaction
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore wraps an opened and migrated gorm handle
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateProfile(ctx context.Context, p *model.Profile, entry *model.OperationLogEntry) error {
	defer prometheus.TrackDBOperation("create_profile")(time.Now())

	if p.Version == 0 {
		p.Version = 1
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return model.ErrVersionConflict
			}
			return err
		}
		if entry != nil {
			return tx.Create(entry).Error
		}
		return nil
	})
}

func (s *PostgresStore) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	defer prometheus.TrackDBOperation("get_profile")(time.Now())

	var p model.Profile
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context, tenantID string, filter ProfileFilter) ([]model.Profile, int64, error) {
	defer prometheus.TrackDBOperation("list_profiles")(time.Now())

	query := s.db.WithContext(ctx).Model(&model.Profile{}).Where("tenant_id = ?", tenantID)
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	skip, limit := NormalizePage(filter.Skip, filter.Limit)
	profiles := []model.Profile{}
	if err := query.Order("created_at DESC, id DESC").Offset(skip).Limit(limit).Find(&profiles).Error; err != nil {
		return nil, 0, err
	}
	return profiles, total, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, p *model.Profile, expectedVersion int64, entry *model.OperationLogEntry) error {
	defer prometheus.TrackDBOperation("update_profile")(time.Now())

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Profile{}).
			Where("id = ? AND version = ?", p.ID, expectedVersion).
			Updates(map[string]interface{}{
				"display_name":      p.DisplayName,
				"description":       p.Description,
				"provider":          p.Provider,
				"activation_code":   p.ActivationCode,
				"smdp_server_url":   p.SMDPServerURL,
				"status":            p.Status,
				"device_id":         p.DeviceID,
				"deployment_id":     p.DeploymentID,
				"metadata":          p.Metadata,
				"pending_operation": p.PendingOperation,
				"pending_until":     p.PendingUntil,
				"updated_by":        p.UpdatedBy,
				"updated_at":        p.UpdatedAt,
				"version":           expectedVersion + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return s.missOrConflict(tx, p.ID)
		}
		p.Version = expectedVersion + 1
		if entry != nil {
			return tx.Create(entry).Error
		}
		return nil
	})
}

func (s *PostgresStore) DeleteProfile(ctx context.Context, tenantID, id string, expectedVersion int64, entry *model.OperationLogEntry) error {
	defer prometheus.TrackDBOperation("delete_profile")(time.Now())

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND tenant_id = ? AND version = ?", id, tenantID, expectedVersion).Delete(&model.Profile{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return s.missOrConflict(tx, id)
		}
		if entry != nil {
			return tx.Create(entry).Error
		}
		return nil
	})
}

func (s *PostgresStore) missOrConflict(tx *gorm.DB, id string) error {
	var count int64
	if err := tx.Model(&model.Profile{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return model.ErrNotFound
	}
	return model.ErrVersionConflict
}

func (s *PostgresStore) CountByStatus(ctx context.Context, tenantID string) (map[model.Status]int64, error) {
	defer prometheus.TrackDBOperation("count_by_status")(time.Now())

	var rows []struct {
		Status model.Status
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&model.Profile{}).
		Select("status, count(*) as count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[model.Status]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *PostgresStore) AppendLog(ctx context.Context, entry *model.OperationLogEntry) error {
	defer prometheus.TrackDBOperation("append_log")(time.Now())
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *PostgresStore) ListLogs(ctx context.Context, filter LogFilter) ([]model.OperationLogEntry, int64, error) {
	defer prometheus.TrackDBOperation("list_logs")(time.Now())

	query := s.db.WithContext(ctx).Model(&model.OperationLogEntry{})
	if filter.ProfileID != "" {
		query = query.Where("profile_id = ?", filter.ProfileID)
	}
	if filter.TenantID != "" {
		query = query.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.Operation != "" {
		query = query.Where("operation = ?", filter.Operation)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	skip, limit := NormalizePage(filter.Skip, filter.Limit)
	entries := []model.OperationLogEntry{}
	if err := query.Order("timestamp DESC, id DESC").Offset(skip).Limit(limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *PostgresStore) SaveMigration(ctx context.Context, m *model.MigrationRecord) error {
	defer prometheus.TrackDBOperation("save_migration")(time.Now())
	return s.db.WithContext(ctx).Save(m).Error
}

func (s *PostgresStore) GetMigration(ctx context.Context, id string) (*model.MigrationRecord, error) {
	defer prometheus.TrackDBOperation("get_migration")(time.Now())

	var m model.MigrationRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
