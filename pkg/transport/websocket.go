package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsLogPrefix = "transport:websocket"

// WebsocketConfig configures WebsocketListener.
type WebsocketConfig struct {
	// Endpoint is the base socket URL; the team ID is appended as the last path segment.
	Endpoint    string
	TeamID      string
	AccessToken string
	// ReconnectWait is the pause between connection attempts.
	ReconnectWait time.Duration
	// MaxReconnects bounds consecutive failed attempts; negative means unlimited.
	MaxReconnects int
	Dialer        *websocket.Dialer
}

// WebsocketListener receives requests over one websocket connection and answers each on
// the same connection. Messages are handled strictly one at a time.
type WebsocketListener struct {
	cfg  WebsocketConfig
	disp Dispatcher

	mu        sync.Mutex
	connected bool
}

// NewWebsocketListener creates a listener. It does not connect until Run.
func NewWebsocketListener(cfg WebsocketConfig, disp Dispatcher) *WebsocketListener {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	return &WebsocketListener{cfg: cfg, disp: disp}
}

// URL returns the socket URL for the configured team.
func (l *WebsocketListener) URL() string {
	base := strings.TrimSuffix(l.cfg.Endpoint, "/")
	if l.cfg.TeamID == "" {
		return base
	}
	return base + "/" + l.cfg.TeamID
}

// Connected reports whether a connection is currently open.
func (l *WebsocketListener) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *WebsocketListener) setConnected(v bool) {
	l.mu.Lock()
	l.connected = v
	l.mu.Unlock()
}

// Run opens one connection and serves it until the peer closes it or ctx is done.
// A normal close and a cancelled ctx both return nil.
func (l *WebsocketListener) Run(ctx context.Context) error {
	header := http.Header{}
	if l.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+l.cfg.AccessToken)
	}

	url := l.URL()
	conn, _, err := l.cfg.Dialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("%s - dial %s: %w", wsLogPrefix, url, err)
	}
	l.setConnected(true)
	defer l.setConnected(false)
	slog.Info(fmt.Sprintf("%s - Socket opened at %s, waiting for messages", wsLogPrefix, url))

	// inflight is held while a message is dispatched and answered; shutdown takes it
	// before closing so the reply to the current message still goes out.
	var inflight sync.Mutex
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			inflight.Lock()
			defer inflight.Unlock()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
			conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info(fmt.Sprintf("%s - Socket was closed", wsLogPrefix))
				return nil
			}
			return fmt.Errorf("%s - read: %w", wsLogPrefix, err)
		}

		inflight.Lock()
		if ctx.Err() != nil {
			inflight.Unlock()
			return nil
		}
		err = l.answer(context.WithoutCancel(ctx), conn, data)
		inflight.Unlock()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// answer dispatches one message and writes its reply, if any.
func (l *WebsocketListener) answer(ctx context.Context, conn *websocket.Conn, data []byte) error {
	reply, err := Process(ctx, l.disp, data)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - dropping message: %v", wsLogPrefix, err))
		return nil
	}
	if reply == nil {
		return nil
	}
	if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
		return fmt.Errorf("%s - write: %w", wsLogPrefix, err)
	}
	return nil
}

// ErrReconnectsExhausted is returned by RunWithReconnect once MaxReconnects consecutive
// attempts have failed.
var ErrReconnectsExhausted = errors.New("transport:websocket - reconnect attempts exhausted")

// RunWithReconnect keeps a connection open until ctx is done, reconnecting after drops.
// The failure counter resets whenever a connection is established.
func (l *WebsocketListener) RunWithReconnect(ctx context.Context) error {
	failures := 0
	for {
		err := l.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			failures = 0
			slog.Info(fmt.Sprintf("%s - connection closed by peer, reconnecting", wsLogPrefix))
		} else {
			failures++
			slog.Warn(fmt.Sprintf("%s - connection attempt %d failed: %v", wsLogPrefix, failures, err))
			if l.cfg.MaxReconnects >= 0 && failures > l.cfg.MaxReconnects {
				return fmt.Errorf("%w: %v", ErrReconnectsExhausted, err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.cfg.ReconnectWait):
		}
	}
}
