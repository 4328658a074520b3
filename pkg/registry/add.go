package registry

import (
	"fmt"
	"reflect"

	"github.com/morezero/actions-dispatcher/pkg/action"
	"github.com/morezero/actions-dispatcher/pkg/contract"
)

// Add registers a typed synchronous handler. The input and output contracts are derived
// from I and O.
func Add[I, O any](r *Registry, opts Options, fn action.TypedFunc[I, O]) error {
	if fn == nil {
		return action.ConfigurationError("action %s/%s has no handler", opts.System, opts.Action)
	}
	return addTyped[I, O](r, opts, action.Typed(fn))
}

// AddAsync registers a handler that returns a future from the blocking pool.
func AddAsync[I, O any](r *Registry, opts Options, fn action.FutureFunc[I, O]) error {
	if fn == nil {
		return action.ConfigurationError("action %s/%s has no handler", opts.System, opts.Action)
	}
	return addTyped[I, O](r, opts, action.Async(fn))
}

// AddAction registers a handler object. When opts.Action is empty the name comes from
// the handler's ActionName.
func AddAction[I, O any](r *Registry, opts Options, a action.Action) error {
	return addTyped[I, O](r, opts, a)
}

func addTyped[I, O any](r *Registry, opts Options, a action.Action) error {
	in, err := contractFor[I]()
	if err != nil {
		return action.ConfigurationError("input contract for %s/%s: %v", opts.System, opts.Action, err)
	}
	out, err := contractFor[O]()
	if err != nil {
		return action.ConfigurationError("output contract for %s/%s: %v", opts.System, opts.Action, err)
	}
	return r.Register(Registration{
		SystemName:  opts.System,
		ActionName:  opts.Action,
		Description: opts.Description,
		Action:      a,
		Input:       in,
		Output:      out,
		Formatter:   opts.Formatter,
	})
}

// contractFor derives a contract from T. Map types produce an open contract that
// accepts any object.
func contractFor[T any]() (*contract.Contract, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		return contract.ForType(t)
	case reflect.Map, reflect.Interface:
		return contract.New(t.String()), nil
	}
	return nil, fmt.Errorf("%s - unsupported contract type %s", logPrefix, t)
}
