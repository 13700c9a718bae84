package lifecycle

import "esim-service/internal/model"

// transitions lists every allowed status change; inactive is reachable from
// any status and handled in CanTransition
var transitions = map[model.Status][]model.Status{
	model.StatusCreated:   {model.StatusDeployed, model.StatusError},
	model.StatusError:     {model.StatusDeployed, model.StatusError},
	model.StatusDeployed:  {model.StatusActive, model.StatusError, model.StatusMigrating},
	model.StatusActive:    {model.StatusError, model.StatusMigrating},
	model.StatusMigrating: {model.StatusActive, model.StatusError},
	model.StatusInactive:  {model.StatusCreated},
}

// CanTransition reports whether from -> to is a legal status change
func CanTransition(from, to model.Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if to == model.StatusInactive {
		return from != model.StatusInactive
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Deployable reports whether deploy may start from status
func Deployable(status model.Status) bool {
	return CanTransition(status, model.StatusDeployed)
}

// Migratable reports whether a device transfer may start from status
func Migratable(status model.Status) bool {
	return CanTransition(status, model.StatusMigrating)
}

// RequiresRedeploy reports whether edits to a profile in status only reach
// devices after another deployment
func RequiresRedeploy(status model.Status) bool {
	return status == model.StatusDeployed || status == model.StatusActive
}
