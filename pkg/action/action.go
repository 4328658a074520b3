// Package action defines the handler capability every registered action implements,
// the per-request authorization context and the dispatch error taxonomy.
package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/morezero/actions-dispatcher/pkg/blocking"
)

// Action is the single entry point the dispatcher calls for a registered action.
// input is the value produced by the input contract (a pointer to the contract's Go type,
// or a map when the contract has no Go type). The returned value is serialized to a mapping.
type Action interface {
	Execute(ctx context.Context, auth AuthContext, input any) (any, error)
}

// Named is implemented by actions that declare their own default action name.
type Named interface {
	ActionName() string
}

// Func adapts a plain function to Action.
type Func func(ctx context.Context, auth AuthContext, input any) (any, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, auth AuthContext, input any) (any, error) {
	return f(ctx, auth, input)
}

// TypedFunc is a handler with typed input and output.
type TypedFunc[I, O any] func(ctx context.Context, auth AuthContext, input I) (O, error)

// FutureFunc is a handler that hands its work to the blocking pool and returns a future.
type FutureFunc[I, O any] func(ctx context.Context, auth AuthContext, input I) *blocking.Future[O]

type typedAction[I, O any] struct {
	fn TypedFunc[I, O]
}

// Typed wraps a typed synchronous handler.
func Typed[I, O any](fn TypedFunc[I, O]) Action {
	return typedAction[I, O]{fn: fn}
}

func (a typedAction[I, O]) Execute(ctx context.Context, auth AuthContext, input any) (any, error) {
	in, err := As[I](input)
	if err != nil {
		return nil, err
	}
	return a.fn(ctx, auth, in)
}

type futureAction[I, O any] struct {
	fn FutureFunc[I, O]
}

// Async wraps a handler returning a future. Execute waits for the future to settle.
func Async[I, O any](fn FutureFunc[I, O]) Action {
	return futureAction[I, O]{fn: fn}
}

func (a futureAction[I, O]) Execute(ctx context.Context, auth AuthContext, input any) (any, error) {
	in, err := As[I](input)
	if err != nil {
		return nil, err
	}
	f := a.fn(ctx, auth, in)
	if f == nil {
		return nil, fmt.Errorf("action:action - handler returned no future")
	}
	return f.Wait(ctx)
}

// As converts a decoded contract value into I.
func As[I any](input any) (I, error) {
	var out I
	switch v := input.(type) {
	case *I:
		if v != nil {
			return *v, nil
		}
		return out, nil
	case I:
		return v, nil
	}
	data, err := json.Marshal(input)
	if err != nil {
		return out, fmt.Errorf("action:action - failed to encode input: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("action:action - failed to decode input into %T: %w", out, err)
	}
	return out, nil
}
