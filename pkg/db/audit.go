package db

import (
	"context"
	"fmt"
	"time"

	"github.com/morezero/actions-dispatcher/pkg/events"
)

const auditLogPrefix = "db:audit"

// InvocationWriter persists invocations. *Repository implements it.
type InvocationWriter interface {
	InsertInvocation(ctx context.Context, inv *Invocation) error
}

// AuditPublisher is an events.EventPublisher that writes every dispatched event to Postgres.
type AuditPublisher struct {
	writer InvocationWriter
}

// NewAuditPublisher creates an AuditPublisher over writer.
func NewAuditPublisher(writer InvocationWriter) *AuditPublisher {
	return &AuditPublisher{writer: writer}
}

// PublishDispatched inserts the event as an action_invocations row.
func (p *AuditPublisher) PublishDispatched(ctx context.Context, event *events.ActionDispatchedEvent) error {
	if err := p.writer.InsertInvocation(ctx, InvocationFromEvent(event)); err != nil {
		return fmt.Errorf("%s - record invocation %s: %w", auditLogPrefix, event.InvocationID, err)
	}
	return nil
}

// InvocationFromEvent maps a dispatched event to a row. An unparsable timestamp becomes now.
func InvocationFromEvent(event *events.ActionDispatchedEvent) *Invocation {
	inv := &Invocation{
		InvocationID: event.InvocationID,
		RequestID:    event.RequestID,
		SystemName:   event.SystemName,
		ActionName:   event.ActionName,
		Status:       event.Status,
		DurationMs:   event.DurationMs,
	}
	if event.ErrorType != "" {
		et := event.ErrorType
		inv.ErrorType = &et
	}
	if event.ErrorMessage != "" {
		em := event.ErrorMessage
		inv.ErrorMessage = &em
	}
	ts, err := time.Parse(time.RFC3339Nano, event.Timestamp)
	if err != nil {
		ts = time.Now()
	}
	inv.DispatchedAt = ts.UTC()
	return inv
}
