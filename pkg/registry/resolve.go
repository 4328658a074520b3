package registry

import (
	"github.com/morezero/actions-dispatcher/pkg/action"
)

// Resolve returns the registration for (system, name).
//
// A system with no registrations yields a SYSTEM_NOT_FOUND error; a known system
// without the action yields ACTION_NOT_FOUND.
func (r *Registry) Resolve(system, name string) (*Registration, error) {
	actions, ok := (*r.table.Load())[system]
	if !ok || len(actions) == 0 {
		return nil, action.SystemNotFoundError(system)
	}
	reg, ok := actions[name]
	if !ok {
		return nil, action.ActionNotFoundError(system, name)
	}
	return reg, nil
}
