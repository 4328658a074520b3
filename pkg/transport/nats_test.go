package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
)

func startCommsServer(t *testing.T) (*comms.Conn, func()) {
	t.Helper()
	ns, err := commsserver.NewServer(&commsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("transport:nats_test - failed to create server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("transport:nats_test - server failed to start")
	}
	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("transport:nats_test - failed to connect: %v", err)
	}
	return nc, func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}
}

func TestSubscribeNATS_RequestReply(t *testing.T) {
	nc, cleanup := startCommsServer(t)
	defer cleanup()

	sub, err := SubscribeNATS(context.Background(), nc, "actions.team-1.dispatch", newDispatcher(t))
	if err != nil {
		t.Fatalf("transport:nats_test - SubscribeNATS() error: %v", err)
	}
	defer sub.Unsubscribe()

	req := `{"request_id":"n1","system_name":"Test","action_name":"ping","input_data":{"message":"hi"}}`
	msg, err := nc.Request("actions.team-1.dispatch", []byte(req), 5*time.Second)
	if err != nil {
		t.Fatalf("transport:nats_test - request failed: %v", err)
	}
	var reply map[string]any
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		t.Fatalf("transport:nats_test - bad reply: %v", err)
	}
	if reply["request_id"] != "n1" || reply["status"] != "Success" || reply["formatted_message"] == "" {
		t.Errorf("transport:nats_test - reply = %v", reply)
	}
}

func TestSubscribeNATS_UnanswerableTimesOut(t *testing.T) {
	nc, cleanup := startCommsServer(t)
	defer cleanup()

	sub, err := SubscribeNATS(context.Background(), nc, "actions.dispatch", newDispatcher(t))
	if err != nil {
		t.Fatalf("transport:nats_test - SubscribeNATS() error: %v", err)
	}
	defer sub.Unsubscribe()

	if _, err := nc.Request("actions.dispatch", []byte(`{"error":"notice"}`), 200*time.Millisecond); err == nil {
		t.Errorf("transport:nats_test - notices must not be answered")
	}
}
