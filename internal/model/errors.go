package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound        = errors.New("resource not found")
	ErrVersionConflict = errors.New("profile was modified concurrently")
	ErrUnauthenticated = errors.New("missing or invalid credentials")
)

// ValidationError carries per-field messages for malformed input
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AuthorizationError is returned when the tenant or role check denies an operation
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "access denied: " + e.Reason
}

// StateConflictError means the requested transition is not valid from the
// current status, or another request changed the profile first
type StateConflictError struct {
	Current Status
	Reason  string
}

func (e *StateConflictError) Error() string {
	if e.Current == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (current status %q)", e.Reason, e.Current)
}

// FormatError is a local activation-code pattern mismatch; no network call was made
type FormatError struct {
	Provider Provider
	Reason   string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid %s activation code: %s", e.Provider, e.Reason)
}

// TransportError is a network, timeout or server failure talking to a provider
type TransportError struct {
	Provider   Provider
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s transport error (HTTP %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BusinessRejection is a well-formed provider answer refusing the activation code
type BusinessRejection struct {
	Provider Provider
	Code     string
	Message  string
	Response map[string]any
}

func (e *BusinessRejection) Error() string {
	return fmt.Sprintf("%s rejected activation code: %s %s", e.Provider, e.Code, e.Message)
}

// GatewayError is a failure of the device-management backend
type GatewayError struct {
	Call    string
	Timeout bool
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("deployment gateway %s timed out: %v", e.Call, e.Err)
	}
	return fmt.Sprintf("deployment gateway %s failed: %v", e.Call, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
