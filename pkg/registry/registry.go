package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/morezero/actions-dispatcher/pkg/action"
	"github.com/morezero/actions-dispatcher/pkg/contract"
)

const logPrefix = "registry:registry"

// DefaultSystem is used for registrations that do not name a system.
const DefaultSystem = "General"

// Config holds registry configuration.
type Config struct {
	DefaultSystem string
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{DefaultSystem: DefaultSystem}
}

// NewRegistryParams holds parameters for NewRegistry.
type NewRegistryParams struct {
	Config Config
}

type table map[string]map[string]*Registration

// Registry stores registrations by system and action name.
//
// Writes happen during startup and are serialized; each write publishes a fresh copy of
// the table, so Resolve never takes a lock. Freeze ends the write phase.
type Registry struct {
	config Config

	mu     sync.Mutex
	table  atomic.Pointer[table]
	frozen atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry(params NewRegistryParams) *Registry {
	cfg := params.Config
	if cfg.DefaultSystem == "" {
		cfg.DefaultSystem = DefaultSystem
	}
	r := &Registry{config: cfg}
	empty := table{}
	r.table.Store(&empty)
	return r
}

// Register inserts reg, replacing any earlier registration with the same key.
//
// An empty system name falls back to the configured default. An empty action name falls
// back to the handler's ActionName when it implements action.Named.
func (r *Registry) Register(reg Registration) error {
	if r.frozen.Load() {
		return action.ConfigurationError("registry is frozen; cannot register %s/%s", reg.SystemName, reg.ActionName)
	}
	if reg.Action == nil {
		return action.ConfigurationError("action %s/%s has no handler", reg.SystemName, reg.ActionName)
	}
	if reg.SystemName == "" {
		reg.SystemName = r.config.DefaultSystem
	}
	if reg.ActionName == "" {
		if named, ok := reg.Action.(action.Named); ok {
			reg.ActionName = named.ActionName()
		}
	}
	if reg.ActionName == "" {
		return action.ConfigurationError("no action name given for %T in system '%s' and the handler declares none",
			reg.Action, reg.SystemName)
	}
	if reg.Input == nil {
		reg.Input = contract.New(reg.ActionName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.table.Load()
	next := make(table, len(current)+1)
	for sys, actions := range current {
		next[sys] = actions
	}
	actions := make(map[string]*Registration, len(current[reg.SystemName])+1)
	for name, existing := range current[reg.SystemName] {
		actions[name] = existing
	}
	if _, exists := actions[reg.ActionName]; exists {
		slog.Debug(fmt.Sprintf("%s - overwriting registration %s", logPrefix, reg.Key()))
	}
	stored := reg
	actions[reg.ActionName] = &stored
	next[reg.SystemName] = actions
	r.table.Store(&next)

	slog.Debug(fmt.Sprintf("%s - registered %s", logPrefix, reg.Key()))
	return nil
}

// Freeze ends the registration phase. Later Register calls fail.
func (r *Registry) Freeze() {
	if r.frozen.CompareAndSwap(false, true) {
		slog.Info(fmt.Sprintf("%s - frozen with %d actions across %d systems", logPrefix, r.Len(), len(r.Systems())))
	}
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Systems returns the sorted names of systems with at least one action.
func (r *Registry) Systems() []string {
	t := *r.table.Load()
	out := make([]string, 0, len(t))
	for sys := range t {
		out = append(out, sys)
	}
	sort.Strings(out)
	return out
}

// Actions returns the sorted action names of system, or nil when it is unknown.
func (r *Registry) Actions(system string) []string {
	actions := (*r.table.Load())[system]
	if actions == nil {
		return nil
	}
	out := make([]string, 0, len(actions))
	for name := range actions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	n := 0
	for _, actions := range *r.table.Load() {
		n += len(actions)
	}
	return n
}
