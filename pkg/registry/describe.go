package registry

import (
	"fmt"
	"log/slog"
)

const describeLogPrefix = "registry:describe"

// Describe returns the catalogue entry for one action, including JSON schemas of its
// input and output contracts.
func (r *Registry) Describe(system, name string) (*ActionDescription, error) {
	reg, err := r.Resolve(system, name)
	if err != nil {
		return nil, err
	}
	d := describe(reg)
	return &d, nil
}

// DescribeSystem returns the catalogue entries of one system, sorted by action name.
func (r *Registry) DescribeSystem(system string) (*SystemDescription, error) {
	names := r.Actions(system)
	if len(names) == 0 {
		_, err := r.Resolve(system, "")
		return nil, err
	}
	sd := &SystemDescription{Name: system, Actions: make([]ActionDescription, 0, len(names))}
	for _, name := range names {
		reg, err := r.Resolve(system, name)
		if err != nil {
			// table replaced between calls; skip the missing entry
			slog.Warn(fmt.Sprintf("%s - %s/%s vanished while describing", describeLogPrefix, system, name))
			continue
		}
		sd.Actions = append(sd.Actions, describe(reg))
	}
	return sd, nil
}

// Catalogue describes every registered system.
func (r *Registry) Catalogue() []SystemDescription {
	systems := r.Systems()
	out := make([]SystemDescription, 0, len(systems))
	for _, sys := range systems {
		sd, err := r.DescribeSystem(sys)
		if err != nil {
			continue
		}
		out = append(out, *sd)
	}
	return out
}

func describe(reg *Registration) ActionDescription {
	d := ActionDescription{
		System:      reg.SystemName,
		Action:      reg.ActionName,
		Description: reg.Description,
		InputSchema: map[string]interface{}{"type": "object"},
		Formatted:   reg.Formatter != nil,
	}
	if reg.Input != nil {
		d.InputSchema = reg.Input.JSONSchema()
	}
	if reg.Output != nil {
		d.OutputSchema = reg.Output.JSONSchema()
	}
	return d
}
