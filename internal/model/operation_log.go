package model

import (
	"time"

	"gorm.io/datatypes"
)

// Operation names the kind of action recorded in the operation log
type Operation string

const (
	OperationCreate     Operation = "create"
	OperationUpdate     Operation = "update"
	OperationDeploy     Operation = "deploy"
	OperationDelete     Operation = "delete"
	OperationMigrate    Operation = "migrate"
	OperationValidate   Operation = "validate"
	OperationActivate   Operation = "activate"
	OperationDeactivate Operation = "deactivate"
	OperationReactivate Operation = "reactivate"
)

// ParseOperation converts a query value into a known Operation
func ParseOperation(value string) (Operation, bool) {
	switch op := Operation(value); op {
	case OperationCreate, OperationUpdate, OperationDeploy, OperationDelete, OperationMigrate,
		OperationValidate, OperationActivate, OperationDeactivate, OperationReactivate:
		return op, true
	}
	return "", false
}

// LogStatus is the outcome recorded for an operation attempt
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogError   LogStatus = "error"
	LogWarning LogStatus = "warning"
)

// Role is a caller's role inside its tenant
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// Actor is the authenticated caller of a request
type Actor struct {
	TenantID string `json:"tenantId" bson:"tenantId" gorm:"column:actor_tenant_id;type:varchar(64)"`
	Role     Role   `json:"role" bson:"role" gorm:"column:actor_role;type:varchar(16)"`
	Subject  string `json:"subject" bson:"subject" gorm:"column:actor_subject;type:varchar(128)"`
	Email    string `json:"email,omitempty" bson:"email,omitempty" gorm:"column:actor_email;type:varchar(255)"`
}

// OperationLogEntry is an append-only audit record of one operation attempt.
// Entries are never updated or deleted.
type OperationLogEntry struct {
	ID        string            `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(36)"`
	ProfileID string            `json:"profileId" bson:"profileId" gorm:"type:varchar(36);not null;index:idx_oplog_profile_ts,priority:1"`
	TenantID  string            `json:"tenantId" bson:"tenantId" gorm:"type:varchar(64);not null;index:idx_oplog_tenant_ts,priority:1"`
	Operation Operation         `json:"operation" bson:"operation" gorm:"type:varchar(16);not null;index"`
	Status    LogStatus         `json:"status" bson:"status" gorm:"type:varchar(16);not null"`
	Timestamp time.Time         `json:"timestamp" bson:"timestamp" gorm:"not null;index:idx_oplog_profile_ts,priority:2;index:idx_oplog_tenant_ts,priority:2"`
	Actor     Actor             `json:"actor" bson:"actor" gorm:"embedded"`
	Details   datatypes.JSONMap `json:"details" bson:"details" gorm:"type:jsonb"`
}

// TableName is shared by the SQL and document stores
func (OperationLogEntry) TableName() string {
	return "operation_logs"
}
