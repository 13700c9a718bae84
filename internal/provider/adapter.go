// Package provider validates activation codes against the four Myanmar
// carriers. Each carrier is a row in a fixed catalog carrying its code
// pattern and transport; dispatch is a table lookup.
package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"esim-service/internal/model"
	"esim-service/pkg/logger"
	"esim-service/prometheus"

	"go.uber.org/zap"
)

// Credentials are injected per carrier from configuration
type Credentials struct {
	Endpoint string
	Token    string
	APIKey   string
	Username string
	Password string
}

// Result is a provider's answer for a well-formed activation code
type Result struct {
	Provider    model.Provider `json:"provider"`
	Success     bool           `json:"success"`
	Response    map[string]any `json:"response"`
	ValidatedAt time.Time      `json:"validatedAt"`
}

type transportFunc func(ctx context.Context, a *Adapter, creds Credentials, code string) (map[string]any, error)

var transports = map[Transport]transportFunc{
	TransportTokenREST:  validateTokenREST,
	TransportAPIKeyREST: validateAPIKeyREST,
	TransportSOAP:       validateSOAP,
	TransportForm:       validateForm,
}

// Adapter validates activation codes. It never retries; callers decide.
type Adapter struct {
	credentials map[model.Provider]Credentials
	httpClient  *http.Client
	now         func() time.Time
}

// NewAdapter builds an adapter. A zero timeout keeps the client's own setting.
func NewAdapter(credentials map[model.Provider]Credentials, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{
		credentials: credentials,
		httpClient:  &http.Client{Timeout: timeout},
		now:         time.Now,
	}
}

// CheckFormat is the local pattern check; see the package-level CheckFormat
func (a *Adapter) CheckFormat(p model.Provider, code string) error {
	return CheckFormat(p, code)
}

// ValidateActivationCode checks the code locally, then asks the carrier.
// Errors are *model.FormatError, *model.TransportError or *model.BusinessRejection.
func (a *Adapter) ValidateActivationCode(ctx context.Context, p model.Provider, code string) (*Result, error) {
	log := logger.FromContext(ctx).With(zap.String("provider", string(p)))

	if err := CheckFormat(p, code); err != nil {
		log.Warn("Activation code rejected by local pattern", zap.Error(err))
		prometheus.RecordProviderValidation(string(p), "format_error")
		return nil, err
	}

	spec, _ := Lookup(p)
	creds := a.credentials[p]
	if creds.Endpoint == "" {
		creds.Endpoint = spec.DefaultEndpoint
	}

	call := transports[spec.Transport]
	start := time.Now()
	response, err := call(ctx, a, creds, code)
	log = log.With(zap.String("transport", string(spec.Transport)), zap.Duration("latency", time.Since(start)))
	if err != nil {
		var rejection *model.BusinessRejection
		if errors.As(err, &rejection) {
			log.Info("Activation code rejected by provider", zap.String("code", rejection.Code))
			prometheus.RecordProviderValidation(string(p), "rejected")
			return nil, err
		}
		log.Error("Provider validation call failed", zap.Error(err))
		prometheus.RecordProviderValidation(string(p), "transport_error")
		return nil, err
	}

	log.Info("Activation code validated by provider")
	prometheus.RecordProviderValidation(string(p), "success")
	return &Result{
		Provider:    p,
		Success:     true,
		Response:    response,
		ValidatedAt: a.now().UTC(),
	}, nil
}

func transportError(p model.Provider, status int, err error) error {
	return &model.TransportError{Provider: p, StatusCode: status, Err: err}
}

// isTransportStatus classifies HTTP statuses that say nothing about the code itself
func isTransportStatus(status int) bool {
	return status >= 500 || status == http.StatusUnauthorized || status == http.StatusForbidden ||
		status == http.StatusTooManyRequests || status == http.StatusNotFound
}
