package model

import (
	"time"

	"gorm.io/datatypes"
)

// MigrationStatus tracks a device-to-device transfer
type MigrationStatus string

const (
	MigrationPending    MigrationStatus = "pending"
	MigrationInProgress MigrationStatus = "in_progress"
	MigrationCompleted  MigrationStatus = "completed"
	MigrationFailed     MigrationStatus = "failed"
	MigrationRolledBack MigrationStatus = "rolled_back"
)

// Migration steps, in the order they run
const (
	StepDeactivateSource = "deactivate_source"
	StepDeployTarget     = "deploy_target"
	StepVerifyActivation = "verify_activation"
)

// Step outcomes
const (
	StepCompleted = "completed"
	StepFailed    = "failed"
	StepReverted  = "reverted"
)

// MigrationStep is one recorded stage of a transfer
type MigrationStep struct {
	Name   string    `json:"name" bson:"name"`
	Status string    `json:"status" bson:"status"`
	At     time.Time `json:"at" bson:"at"`
	Error  string    `json:"error,omitempty" bson:"error,omitempty"`
}

// MigrationRecord describes one transfer of a profile between devices
type MigrationRecord struct {
	ID             string                             `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(36)"`
	ProfileID      string                             `json:"profileId" bson:"profileId" gorm:"type:varchar(36);not null;index"`
	TenantID       string                             `json:"tenantId" bson:"tenantId" gorm:"type:varchar(64);not null;index"`
	SourceDeviceID string                             `json:"sourceDeviceId" bson:"sourceDeviceId" gorm:"type:varchar(128);not null"`
	TargetDeviceID string                             `json:"targetDeviceId" bson:"targetDeviceId" gorm:"type:varchar(128);not null"`
	Notes          string                             `json:"notes,omitempty" bson:"notes,omitempty" gorm:"type:text"`
	Status         MigrationStatus                    `json:"status" bson:"status" gorm:"type:varchar(16);not null"`
	ProfileStatus  Status                             `json:"profileStatus" bson:"profileStatus" gorm:"type:varchar(16)"`
	Error          string                             `json:"error,omitempty" bson:"error,omitempty" gorm:"type:text"`
	InitiatedBy    string                             `json:"initiatedBy" bson:"initiatedBy" gorm:"type:varchar(128)"`
	Steps          datatypes.JSONSlice[MigrationStep] `json:"steps" bson:"steps" gorm:"type:jsonb"`
	CreatedAt      time.Time                          `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time                          `json:"updatedAt" bson:"updatedAt"`
}

// AddStep appends a stage outcome to the trail
func (m *MigrationRecord) AddStep(name, status string, at time.Time, reason string) {
	m.Steps = append(m.Steps, MigrationStep{Name: name, Status: status, At: at, Error: reason})
}

// TableName is shared by the SQL and document stores
func (MigrationRecord) TableName() string {
	return "device_migrations"
}
