// Package commsutil provides COMMS (NATS) connection helpers, subject naming and the
// JSON codec shared by the transports and event publishers.
package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

// ConnectOptions tunes reconnect behaviour. Zero values use the defaults below.
type ConnectOptions struct {
	Timeout       time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
}

const (
	defaultConnectTimeout = 10 * time.Second
	defaultReconnectWait  = 2 * time.Second
	defaultMaxReconnects  = 60
)

// Connect creates a COMMS connection to the given URL.
func Connect(url, name string, opts ConnectOptions) (*comms.Conn, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultConnectTimeout
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = defaultReconnectWait
	}
	if opts.MaxReconnects == 0 {
		opts.MaxReconnects = defaultMaxReconnects
	}

	slog.Info(fmt.Sprintf("%s - Connecting to COMMS at %s as %s", logPrefix, url, name))

	nc, err := comms.Connect(url,
		comms.Name(name),
		comms.Timeout(opts.Timeout),
		comms.ReconnectWait(opts.ReconnectWait),
		comms.MaxReconnects(opts.MaxReconnects),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - COMMS disconnected: %v", logPrefix, err))
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS reconnected to %s", logPrefix, nc.ConnectedUrl()))
		}),
		comms.ClosedHandler(func(_ *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS connection closed", logPrefix))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, nc.ConnectedUrl()))
	return nc, nil
}
