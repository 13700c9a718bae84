// Package qr derives expiring LPA activation payloads for profiles.
package qr

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"esim-service/internal/model"
	"esim-service/pkg/logger"
	"esim-service/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTTL is how long a generated code stays usable
const DefaultTTL = 24 * time.Hour

const lpaPrefix = "LPA:1$"

// Payload builds the LPA string for a profile. Codes already in LPA form are used verbatim.
func Payload(profile *model.Profile) string {
	if strings.HasPrefix(profile.ActivationCode, lpaPrefix) {
		return profile.ActivationCode
	}
	host := profile.SMDPServerURL
	if u, err := url.Parse(profile.SMDPServerURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return lpaPrefix + host + "$" + profile.ActivationCode
}

// Generate creates a fresh active code for the profile
func Generate(profile *model.Profile, now time.Time, ttl time.Duration) *model.QRCode {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	return &model.QRCode{
		ID:        uuid.NewString(),
		ProfileID: profile.ID,
		TenantID:  profile.TenantID,
		QRData:    Payload(profile),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		IsActive:  true,
	}
}

// Manager serves the current code per profile, regenerating inactive,
// expired or stale codes. It never extends an existing code.
type Manager struct {
	cache Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a manager over cache; a zero ttl means DefaultTTL
func NewManager(cache Cache, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{cache: cache, ttl: ttl, now: time.Now}
}

// Get returns the profile's usable code, generating one when needed.
// The bool reports whether a new code was generated.
func (m *Manager) Get(ctx context.Context, profile *model.Profile) (*model.QRCode, bool, error) {
	log := logger.FromContext(ctx).With(zap.String("profile_id", profile.ID))
	now := m.now()

	cached, err := m.cache.Get(ctx, profile.ID)
	if err != nil {
		// a broken cache costs a regeneration, not the request
		log.Warn("QR cache read failed", zap.Error(err))
		cached = nil
	}
	if cached != nil && cached.TenantID == profile.TenantID && cached.Usable(now) && cached.QRData == Payload(profile) {
		prometheus.RecordQREvent("served")
		return cached, false, nil
	}

	code := Generate(profile, now, m.ttl)
	if err := m.cache.Put(ctx, code, code.ExpiresAt.Sub(now)); err != nil {
		return nil, false, fmt.Errorf("store qr code: %w", err)
	}

	event := "generated"
	if cached != nil {
		event = "regenerated"
	}
	prometheus.RecordQREvent(event)
	log.Info("QR code issued", zap.String("event", event), zap.Time("expires_at", code.ExpiresAt))
	return code, true, nil
}

// MarkScanned deactivates the profile's current code. A scanned code is
// replaced on the next Get.
func (m *Manager) MarkScanned(ctx context.Context, profile *model.Profile) (*model.QRCode, error) {
	now := m.now()
	cached, err := m.cache.Get(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("load qr code: %w", err)
	}
	if cached == nil || cached.TenantID != profile.TenantID || cached.IsExpired(now) {
		return nil, model.ErrNotFound
	}
	if !cached.IsActive {
		return cached, nil
	}

	scannedAt := now.UTC()
	cached.ScannedAt = &scannedAt
	cached.IsActive = false
	if err := m.cache.Put(ctx, cached, cached.ExpiresAt.Sub(now)); err != nil {
		return nil, fmt.Errorf("store qr code: %w", err)
	}
	prometheus.RecordQREvent("scanned")
	logger.FromContext(ctx).Info("QR code marked scanned", zap.String("profile_id", profile.ID))
	return cached, nil
}

// Invalidate drops the profile's code, e.g. after its activation data changed or it was deleted
func (m *Manager) Invalidate(ctx context.Context, profileID string) error {
	return m.cache.Delete(ctx, profileID)
}
