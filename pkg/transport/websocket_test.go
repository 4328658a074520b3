package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/morezero/actions-dispatcher/pkg/dispatcher"
)

// fakeBackend is a chat backend that pushes requests to the connected dispatcher and
// collects its replies.
type fakeBackend struct {
	t        *testing.T
	upgrader websocket.Upgrader
	send     []string
	closeErr bool

	mu      sync.Mutex
	path    string
	auth    string
	replies []map[string]any
	done    chan struct{}
}

func newFakeBackend(t *testing.T, send ...string) *fakeBackend {
	return &fakeBackend{t: t, send: send, done: make(chan struct{})}
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.t.Errorf("transport:websocket_test - upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	b.mu.Lock()
	b.path = r.URL.Path
	b.auth = r.Header.Get("Authorization")
	b.mu.Unlock()

	expected := 0
	for _, msg := range b.send {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			b.t.Errorf("transport:websocket_test - write failed: %v", err)
			return
		}
		if !strings.Contains(msg, `"error"`) && strings.Contains(msg, `"request_id"`) {
			expected++
		}
	}
	for i := 0; i < expected; i++ {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.t.Errorf("transport:websocket_test - read failed: %v", err)
			return
		}
		var reply map[string]any
		_ = json.Unmarshal(data, &reply)
		b.mu.Lock()
		b.replies = append(b.replies, reply)
		b.mu.Unlock()
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	close(b.done)
	// wait for the client close frame before tearing down
	conn.SetReadDeadline(time.Now().Add(time.Second))
	conn.ReadMessage()
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/actions-ws"
}

func TestWebsocketListener_URL(t *testing.T) {
	l := NewWebsocketListener(WebsocketConfig{Endpoint: "ws://host:8200/actions-ws/", TeamID: "team-1"}, nil)
	if got := l.URL(); got != "ws://host:8200/actions-ws/team-1" {
		t.Errorf("transport:websocket_test - URL() = %q", got)
	}
	l = NewWebsocketListener(WebsocketConfig{Endpoint: "ws://host/actions-ws"}, nil)
	if got := l.URL(); got != "ws://host/actions-ws" {
		t.Errorf("transport:websocket_test - URL() without team = %q", got)
	}
}

func TestWebsocketListener_ServesInOrder(t *testing.T) {
	backend := newFakeBackend(t,
		`{"error":"Returning not all fields"}`,
		`{"request_id":"a","system_name":"Test","action_name":"ping","input_data":{"message":"one"},"system_authorization_data":{}}`,
		`{"request_id":"b","system_name":"Jira","action_name":"x","input_data":{},"system_authorization_data":{}}`,
		`{"request_id":"c","system_name":"Test","action_name":"ping","input_data":{"message":"three"},"system_authorization_data":{}}`,
	)
	srv := httptest.NewServer(backend)
	defer srv.Close()

	l := NewWebsocketListener(WebsocketConfig{Endpoint: wsURL(srv), TeamID: "team-1", AccessToken: "secret"}, newDispatcher(t))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := l.Run(ctx); err != nil {
		t.Fatalf("transport:websocket_test - Run() error: %v", err)
	}
	<-backend.done

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.path != "/actions-ws/team-1" {
		t.Errorf("transport:websocket_test - path = %q", backend.path)
	}
	if backend.auth != "Bearer secret" {
		t.Errorf("transport:websocket_test - Authorization = %q", backend.auth)
	}
	if len(backend.replies) != 3 {
		t.Fatalf("transport:websocket_test - got %d replies, want 3", len(backend.replies))
	}
	wantIDs := []string{"a", "b", "c"}
	wantStatus := []string{"Success", "Fail", "Success"}
	for i, reply := range backend.replies {
		if reply["request_id"] != wantIDs[i] || reply["status"] != wantStatus[i] {
			t.Errorf("transport:websocket_test - reply %d = %v", i, reply)
		}
	}
	if l.Connected() {
		t.Errorf("transport:websocket_test - listener should be disconnected after Run returns")
	}
}

func TestWebsocketListener_CancelStopsRun(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	l := NewWebsocketListener(WebsocketConfig{Endpoint: wsURL(srv)}, newDispatcher(t))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !l.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("transport:websocket_test - Run() after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("transport:websocket_test - Run() did not return after cancel")
	}
}

// gatedDispatcher blocks each dispatch until release is closed.
type gatedDispatcher struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedDispatcher) Dispatch(ctx context.Context, req *dispatcher.DispatchRequest) (*dispatcher.DispatchResponse, error) {
	close(g.started)
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &dispatcher.DispatchResponse{RequestID: req.RequestID, Status: dispatcher.StatusSuccess}, nil
}

func TestWebsocketListener_CancelWaitsForInflightReply(t *testing.T) {
	replies := make(chan map[string]any, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		req := `{"request_id":"slow","system_name":"Test","action_name":"ping","input_data":{}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(req)); err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var reply map[string]any
		_ = json.Unmarshal(data, &reply)
		replies <- reply
		conn.ReadMessage()
	}))
	defer srv.Close()

	gate := &gatedDispatcher{started: make(chan struct{}), release: make(chan struct{})}
	l := NewWebsocketListener(WebsocketConfig{Endpoint: wsURL(srv)}, gate)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	select {
	case <-gate.started:
	case <-time.After(5 * time.Second):
		t.Fatal("transport:websocket_test - dispatch never started")
	}
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(gate.release)

	select {
	case reply := <-replies:
		if reply["request_id"] != "slow" || reply["status"] != "Success" {
			t.Errorf("transport:websocket_test - reply = %v", reply)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("transport:websocket_test - in-flight reply was lost on cancel")
	}
	if err := <-errCh; err != nil {
		t.Errorf("transport:websocket_test - Run() after cancel = %v, want nil", err)
	}
}

func TestWebsocketListener_ReconnectsExhausted(t *testing.T) {
	l := NewWebsocketListener(WebsocketConfig{
		Endpoint:      "ws://127.0.0.1:1/actions-ws",
		ReconnectWait: 10 * time.Millisecond,
		MaxReconnects: 2,
	}, newDispatcher(t))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := l.RunWithReconnect(ctx)
	if !errors.Is(err, ErrReconnectsExhausted) {
		t.Errorf("transport:websocket_test - RunWithReconnect() = %v, want ErrReconnectsExhausted", err)
	}
}

func TestWebsocketListener_ReconnectAfterPeerClose(t *testing.T) {
	var mu sync.Mutex
	connections := 0
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mu.Lock()
		connections++
		mu.Unlock()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.SetReadDeadline(time.Now().Add(time.Second))
		conn.ReadMessage()
	}))
	defer srv.Close()

	l := NewWebsocketListener(WebsocketConfig{
		Endpoint:      wsURL(srv),
		ReconnectWait: 10 * time.Millisecond,
		MaxReconnects: 0,
	}, newDispatcher(t))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.RunWithReconnect(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := connections
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	if err := <-errCh; err != nil {
		t.Errorf("transport:websocket_test - RunWithReconnect() = %v, want nil after cancel", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if connections < 2 {
		t.Errorf("transport:websocket_test - connections = %d, want at least 2", connections)
	}
}
