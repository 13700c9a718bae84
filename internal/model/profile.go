package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Status is the lifecycle state of an eSIM profile
type Status string

const (
	StatusCreated   Status = "created"
	StatusDeployed  Status = "deployed"
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusError     Status = "error"
	StatusMigrating Status = "migrating"
)

// Statuses lists every status a profile can hold
var Statuses = []Status{
	StatusCreated,
	StatusDeployed,
	StatusActive,
	StatusInactive,
	StatusError,
	StatusMigrating,
}

// Valid reports whether s is one of the enumerated statuses
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus converts a query/string value into a Status
func ParseStatus(value string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	return s, s.Valid()
}

// Provider identifies the Myanmar carrier that issued the activation code
type Provider string

const (
	ProviderMPT     Provider = "MPT"
	ProviderATOM    Provider = "ATOM"
	ProviderOoredoo Provider = "OOREDOO"
	ProviderMytel   Provider = "MYTEL"
)

// Providers lists the supported carriers in display order
var Providers = []Provider{ProviderMPT, ProviderATOM, ProviderOoredoo, ProviderMytel}

// ParseProvider accepts the carrier name in any letter case ("Ooredoo", "mytel")
func ParseProvider(value string) (Provider, bool) {
	p := Provider(strings.ToUpper(strings.TrimSpace(value)))
	for _, known := range Providers {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// Profile represents one eSIM activation unit owned by a tenant
type Profile struct {
	ID               string            `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(36)"`
	TenantID         string            `json:"tenantId" bson:"tenantId" gorm:"type:varchar(64);not null;index:idx_profiles_tenant_created,priority:1"`
	DisplayName      string            `json:"displayName" bson:"displayName" gorm:"type:varchar(100);not null"`
	Description      string            `json:"description" bson:"description" gorm:"type:varchar(500)"`
	Provider         Provider          `json:"provider" bson:"provider" gorm:"type:varchar(16);not null;index"`
	ActivationCode   string            `json:"activationCode" bson:"activationCode" gorm:"type:text;not null"`
	SMDPServerURL    string            `json:"smdpServerUrl" bson:"smdpServerUrl" gorm:"column:smdp_server_url;type:text;not null"`
	Status           Status            `json:"status" bson:"status" gorm:"type:varchar(16);not null;index"`
	DeviceID         string            `json:"deviceId,omitempty" bson:"deviceId,omitempty" gorm:"type:varchar(128)"`
	DeploymentID     string            `json:"deploymentId,omitempty" bson:"deploymentId,omitempty" gorm:"type:varchar(128)"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty" bson:"metadata,omitempty" gorm:"type:jsonb"`
	Version          int64             `json:"version" bson:"version" gorm:"not null;default:1"`
	PendingOperation string            `json:"pendingOperation,omitempty" bson:"pendingOperation,omitempty" gorm:"type:varchar(16)"`
	PendingUntil     *time.Time        `json:"pendingUntil,omitempty" bson:"pendingUntil,omitempty"`
	CreatedBy        string            `json:"createdBy,omitempty" bson:"createdBy,omitempty" gorm:"type:varchar(128)"`
	UpdatedBy        string            `json:"updatedBy,omitempty" bson:"updatedBy,omitempty" gorm:"type:varchar(128)"`
	CreatedAt        time.Time         `json:"createdAt" bson:"createdAt" gorm:"index:idx_profiles_tenant_created,priority:2"`
	UpdatedAt        time.Time         `json:"updatedAt" bson:"updatedAt"`
}

// TableName keeps the collection name shared between the SQL and document stores
func (Profile) TableName() string {
	return "esim_profiles"
}

// Fields returns the user-editable fields of the profile
func (p *Profile) Fields() ProfileFields {
	return ProfileFields{
		DisplayName:    p.DisplayName,
		Description:    p.Description,
		Provider:       string(p.Provider),
		ActivationCode: p.ActivationCode,
		SMDPServerURL:  p.SMDPServerURL,
	}
}

// LeaseHeld reports whether another operation holds the profile at the given time
func (p *Profile) LeaseHeld(now time.Time) bool {
	return p.PendingOperation != "" && p.PendingUntil != nil && now.Before(*p.PendingUntil)
}

// Clone returns a deep copy so callers can mutate without touching stored state
func (p *Profile) Clone() *Profile {
	cp := *p
	if p.Metadata != nil {
		cp.Metadata = make(datatypes.JSONMap, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	if p.PendingUntil != nil {
		until := *p.PendingUntil
		cp.PendingUntil = &until
	}
	return &cp
}

// ProfileFields are the values a client supplies on create
type ProfileFields struct {
	DisplayName    string            `json:"displayName"`
	Description    string            `json:"description"`
	Provider       string            `json:"provider"`
	ActivationCode string            `json:"activationCode"`
	SMDPServerURL  string            `json:"smdpServerUrl"`
	DeviceID       string            `json:"deviceId,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ProfileUpdate is a partial field map; nil pointers are left untouched
type ProfileUpdate struct {
	DisplayName    *string `json:"displayName"`
	Description    *string `json:"description"`
	Provider       *string `json:"provider"`
	ActivationCode *string `json:"activationCode"`
	SMDPServerURL  *string `json:"smdpServerUrl"`
}

// Empty reports whether the update carries no field at all
func (u ProfileUpdate) Empty() bool {
	return u.DisplayName == nil && u.Description == nil && u.Provider == nil &&
		u.ActivationCode == nil && u.SMDPServerURL == nil
}

// Apply overlays the update on top of existing fields
func (u ProfileUpdate) Apply(fields ProfileFields) ProfileFields {
	if u.DisplayName != nil {
		fields.DisplayName = *u.DisplayName
	}
	if u.Description != nil {
		fields.Description = *u.Description
	}
	if u.Provider != nil {
		fields.Provider = *u.Provider
	}
	if u.ActivationCode != nil {
		fields.ActivationCode = *u.ActivationCode
	}
	if u.SMDPServerURL != nil {
		fields.SMDPServerURL = *u.SMDPServerURL
	}
	return fields
}

// ChangedFields lists the names of the fields present in the update
func (u ProfileUpdate) ChangedFields() []string {
	var names []string
	if u.DisplayName != nil {
		names = append(names, "displayName")
	}
	if u.Description != nil {
		names = append(names, "description")
	}
	if u.Provider != nil {
		names = append(names, "provider")
	}
	if u.ActivationCode != nil {
		names = append(names, "activationCode")
	}
	if u.SMDPServerURL != nil {
		names = append(names, "smdpServerUrl")
	}
	return names
}
