package transport

import (
	"context"
	"testing"

	"github.com/morezero/actions-dispatcher/pkg/action"
	"github.com/morezero/actions-dispatcher/pkg/dispatcher"
	"github.com/morezero/actions-dispatcher/pkg/registry"
)

type pingInput struct {
	Message string `json:"message"`
}

type issueRef struct {
	Index int64 `json:"index"`
}

func newDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	reg := registry.NewRegistry(registry.NewRegistryParams{})
	err := registry.Add(reg, registry.Options{System: "Test", Action: "ping"},
		func(_ context.Context, _ action.AuthContext, in pingInput) (map[string]any, error) {
			return map[string]any{"message": in.Message}, nil
		})
	if err != nil {
		t.Fatalf("transport:helpers_test - registration failed: %v", err)
	}
	err = registry.Add(reg, registry.Options{System: "GitFlame", Action: "Get issue"},
		func(_ context.Context, _ action.AuthContext, in issueRef) (issueRef, error) {
			return in, nil
		})
	if err != nil {
		t.Fatalf("transport:helpers_test - registration failed: %v", err)
	}
	reg.Freeze()
	return dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{Registry: reg})
}
