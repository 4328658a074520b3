// Package registry holds the table of registered actions, keyed by system and action
// name, and resolves dispatch targets against it.
package registry

import (
	"github.com/morezero/actions-dispatcher/pkg/action"
	"github.com/morezero/actions-dispatcher/pkg/contract"
	"github.com/morezero/actions-dispatcher/pkg/format"
)

// Key identifies one registered action.
type Key struct {
	System string `json:"system_name"`
	Action string `json:"action_name"`
}

func (k Key) String() string {
	return k.System + "/" + k.Action
}

// Registration is everything the dispatcher needs to run one action.
type Registration struct {
	SystemName  string
	ActionName  string
	Description string
	Action      action.Action
	// Input validates and decodes the inbound payload. Nil accepts any object.
	Input *contract.Contract
	// Output documents the result shape. Optional.
	Output *contract.Contract
	// Formatter renders the result. Nil means format.Default.
	Formatter format.Formatter
}

// Key returns the registration's lookup key.
func (r *Registration) Key() Key {
	return Key{System: r.SystemName, Action: r.ActionName}
}

// Options configures a typed registration made through Add.
type Options struct {
	System      string
	Action      string
	Description string
	Formatter   format.Formatter
}

// ActionDescription is the catalogue entry for one action.
type ActionDescription struct {
	System       string                 `json:"system_name"`
	Action       string                 `json:"action_name"`
	Description  string                 `json:"description,omitempty"`
	InputSchema  map[string]interface{} `json:"input_schema"`
	OutputSchema map[string]interface{} `json:"output_schema,omitempty"`
	Formatted    bool                   `json:"custom_formatter"`
}

// SystemDescription groups the catalogue entries of one system.
type SystemDescription struct {
	Name    string              `json:"system_name"`
	Actions []ActionDescription `json:"actions"`
}
