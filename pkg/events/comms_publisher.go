package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/actions-dispatcher/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// GlobalSubject overrides the global dispatched event subject (e.g. from DISPATCHED_EVENT_SUBJECT).
	GlobalSubject string
}

// CommsPublisher publishes dispatched-action events to COMMS subjects.
type CommsPublisher struct {
	nc            *comms.Conn
	globalSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	globalSubject := commsutil.SubjectDispatchedEvent
	if opts != nil && opts.GlobalSubject != "" {
		globalSubject = opts.GlobalSubject
	}
	return &CommsPublisher{nc: nc, globalSubject: globalSubject}
}

// PublishDispatched publishes an ActionDispatchedEvent to both the granular
// and global dispatched event subjects.
func (p *CommsPublisher) PublishDispatched(_ context.Context, event *ActionDispatchedEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	granularSubject := commsutil.BuildDispatchedSubject(event.SystemName, event.ActionName)
	if err := p.nc.Publish(granularSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, granularSubject, err))
		return err
	}

	if err := p.nc.Publish(p.globalSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.globalSubject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published dispatched event for %s/%s", commsPublisherLogPrefix, event.SystemName, event.ActionName))
	return nil
}
