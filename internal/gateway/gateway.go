// Package gateway pushes eSIM profiles to managed devices through Microsoft
// Intune (Graph device configurations) and reads back per-device results.
package gateway

import (
	"context"

	"esim-service/internal/model"
)

// Gateway calls: used as metric labels and GatewayError.Call
const (
	CallDeploy    = "deploy"
	CallAssign    = "assign"
	CallGetStatus = "get_status"
)

// DeployResult is the gateway's acknowledgement of a pushed configuration
type DeployResult struct {
	GraphID  string `json:"graphId"`
	Accepted bool   `json:"accepted"`
}

// Status is the per-device rollout summary for a configuration
type Status struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// Target selects who receives a configuration. An empty DeviceID broadcasts to all devices.
type Target struct {
	DeviceID string `json:"deviceId,omitempty"`
}

// Broadcast reports whether the target is every managed device
func (t Target) Broadcast() bool {
	return t.DeviceID == ""
}

// Gateway is the device-management backend. Calls are not idempotent and
// fail with *model.GatewayError.
type Gateway interface {
	Deploy(ctx context.Context, profile *model.Profile) (*DeployResult, error)
	GetStatus(ctx context.Context, graphID string) (*Status, error)
	Assign(ctx context.Context, graphID string, target Target) error
}
