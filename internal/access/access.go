// Package access decides whether an actor may perform an operation on a
// tenant's resources. Decisions are pure; callers record them.
package access

import (
	"fmt"

	"esim-service/internal/model"
)

// Action is an operation that requires authorization
type Action string

const (
	ActionRead            Action = "read"
	ActionCreate          Action = "create"
	ActionUpdate          Action = "update"
	ActionDeploy          Action = "deploy"
	ActionMigrate         Action = "migrate"
	ActionValidate        Action = "validate"
	ActionActivate        Action = "activate"
	ActionDeactivate      Action = "deactivate"
	ActionImport          Action = "import"
	ActionQRScan          Action = "qr-scan"
	ActionDelete          Action = "delete"
	ActionReactivate      Action = "reactivate"
	ActionManageTenant    Action = "tenant-management"
	ActionComplianceAudit Action = "compliance-audit"
)

// requiredRole is the minimum role for each action
var requiredRole = map[Action]model.Role{
	ActionRead:            model.RoleViewer,
	ActionCreate:          model.RoleOperator,
	ActionUpdate:          model.RoleOperator,
	ActionDeploy:          model.RoleOperator,
	ActionMigrate:         model.RoleOperator,
	ActionValidate:        model.RoleOperator,
	ActionActivate:        model.RoleOperator,
	ActionDeactivate:      model.RoleOperator,
	ActionImport:          model.RoleOperator,
	ActionQRScan:          model.RoleOperator,
	ActionDelete:          model.RoleAdmin,
	ActionReactivate:      model.RoleAdmin,
	ActionManageTenant:    model.RoleAdmin,
	ActionComplianceAudit: model.RoleAdmin,
}

// Rank orders roles: admin > operator > viewer. Unknown roles rank 0.
func Rank(role model.Role) int {
	switch role {
	case model.RoleAdmin:
		return 3
	case model.RoleOperator:
		return 2
	case model.RoleViewer:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether role ranks at or above min
func AtLeast(role, min model.Role) bool {
	return Rank(role) > 0 && Rank(role) >= Rank(min)
}

// RequiredRole returns the minimum role for an action
func RequiredRole(action Action) (model.Role, bool) {
	role, ok := requiredRole[action]
	return role, ok
}

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed bool
	Reason  string
}

// Authorize allows the action only when the actor belongs to targetTenantID
// and its role ranks at least the action's minimum role.
func Authorize(actor model.Actor, action Action, targetTenantID string) Decision {
	min, ok := requiredRole[action]
	if !ok {
		return Decision{Reason: fmt.Sprintf("unknown action %q", action)}
	}
	if actor.TenantID == "" || actor.TenantID != targetTenantID {
		return Decision{Reason: "tenant mismatch"}
	}
	if !AtLeast(actor.Role, min) {
		return Decision{Reason: fmt.Sprintf("role %q cannot %s, requires %s", actor.Role, action, min)}
	}
	return Decision{Allowed: true}
}

// Check is Authorize returning an *model.AuthorizationError on deny
func Check(actor model.Actor, action Action, targetTenantID string) error {
	if d := Authorize(actor, action, targetTenantID); !d.Allowed {
		return &model.AuthorizationError{Reason: d.Reason}
	}
	return nil
}
