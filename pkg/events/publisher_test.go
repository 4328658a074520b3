package events

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func sampleEvent() *ActionDispatchedEvent {
	return &ActionDispatchedEvent{
		InvocationID: "inv-1",
		RequestID:    "req-1",
		SystemName:   "Test",
		ActionName:   "ping",
		Status:       "Success",
		DurationMs:   3,
		Timestamp:    "2025-01-01T00:00:00Z",
	}
}

func TestNoOpPublisher(t *testing.T) {
	pub := &NoOpPublisher{}
	if err := pub.PublishDispatched(context.Background(), sampleEvent()); err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
}

func TestCallbackPublisher(t *testing.T) {
	var captured *ActionDispatchedEvent

	pub := NewCallbackPublisher(func(_ context.Context, event *ActionDispatchedEvent) error {
		captured = event
		return nil
	})

	if err := pub.PublishDispatched(context.Background(), sampleEvent()); err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
	if captured == nil {
		t.Fatal("events:publisher_test - expected callback to be called")
	}
	if captured.SystemName != "Test" || captured.ActionName != "ping" {
		t.Errorf("events:publisher_test - captured = %+v", captured)
	}
}

func TestMultiPublisher(t *testing.T) {
	var calls []string
	record := func(name string, err error) EventPublisher {
		return NewCallbackPublisher(func(context.Context, *ActionDispatchedEvent) error {
			calls = append(calls, name)
			return err
		})
	}

	multi := NewMultiPublisher(
		record("first", nil),
		nil,
		record("second", errors.New("audit store down")),
		record("third", nil),
	)
	if multi.Len() != 3 {
		t.Fatalf("events:publisher_test - Len() = %d, want 3", multi.Len())
	}

	err := multi.PublishDispatched(context.Background(), sampleEvent())
	if err == nil || !strings.Contains(err.Error(), "audit store down") {
		t.Errorf("events:publisher_test - expected joined error, got %v", err)
	}
	if strings.Join(calls, ",") != "first,second,third" {
		t.Errorf("events:publisher_test - calls = %v, a failing publisher must not stop the rest", calls)
	}
}

func TestMultiPublisher_Empty(t *testing.T) {
	if err := NewMultiPublisher().PublishDispatched(context.Background(), sampleEvent()); err != nil {
		t.Errorf("events:publisher_test - empty multi publisher returned %v", err)
	}
}
