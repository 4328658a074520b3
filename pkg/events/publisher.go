package events

import (
	"context"
	"errors"
)

// EventPublisher is the interface for publishing dispatched-action events.
type EventPublisher interface {
	PublishDispatched(ctx context.Context, event *ActionDispatchedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishDispatched is a no-op.
func (p *NoOpPublisher) PublishDispatched(_ context.Context, _ *ActionDispatchedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *ActionDispatchedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *ActionDispatchedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishDispatched calls the callback.
func (p *CallbackPublisher) PublishDispatched(ctx context.Context, event *ActionDispatchedEvent) error {
	return p.callback(ctx, event)
}

// MultiPublisher hands every event to each of its publishers in order. One failing
// publisher does not stop the rest; their errors are joined.
type MultiPublisher struct {
	publishers []EventPublisher
}

// NewMultiPublisher creates a MultiPublisher, skipping nil entries.
func NewMultiPublisher(pubs ...EventPublisher) *MultiPublisher {
	m := &MultiPublisher{}
	for _, p := range pubs {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

// Len returns the number of wrapped publishers.
func (m *MultiPublisher) Len() int {
	return len(m.publishers)
}

// PublishDispatched publishes to every wrapped publisher.
func (m *MultiPublisher) PublishDispatched(ctx context.Context, event *ActionDispatchedEvent) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.PublishDispatched(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
