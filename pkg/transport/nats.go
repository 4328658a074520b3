package transport

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"
)

const natsLogPrefix = "transport:nats"

// SubscribeNATS answers requests published to subject. COMMS delivers one message at a
// time per subscription, so requests are processed in arrival order.
func SubscribeNATS(ctx context.Context, nc *comms.Conn, subject string, disp Dispatcher) (*comms.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		reply, err := Process(ctx, disp, msg.Data)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - dropping message on %s: %v", natsLogPrefix, msg.Subject, err))
			return
		}
		if reply == nil || msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to respond on %s: %v", natsLogPrefix, msg.Subject, err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", natsLogPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", natsLogPrefix, subject))
	return sub, nil
}
