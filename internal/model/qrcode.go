package model

import "time"

// QRCode is a derived, expiring LPA activation payload for a profile
type QRCode struct {
	ID        string     `json:"id"`
	ProfileID string     `json:"profileId"`
	TenantID  string     `json:"tenantId"`
	QRData    string     `json:"qrData"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	IsActive  bool       `json:"isActive"`
	ScannedAt *time.Time `json:"scannedAt,omitempty"`
}

// IsExpired reports whether the code can no longer be used at now
func (q *QRCode) IsExpired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}

// Usable reports whether the code is active and unexpired
func (q *QRCode) Usable(now time.Time) bool {
	return q.IsActive && !q.IsExpired(now)
}
