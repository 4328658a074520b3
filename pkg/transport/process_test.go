package transport

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/morezero/actions-dispatcher/pkg/dispatcher"
)

func decodeReply(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("transport:process_test - reply is not JSON: %v", err)
	}
	return out
}

func TestProcess_Success(t *testing.T) {
	d := newDispatcher(t)
	in := `{"request_id":"r1","system_name":"Test","action_name":"ping","input_data":{"message":"hi"},"system_authorization_data":{}}`

	reply, err := Process(context.Background(), d, []byte(in))
	if err != nil {
		t.Fatalf("transport:process_test - Process() error: %v", err)
	}
	got := decodeReply(t, reply)
	if got["request_id"] != "r1" || got["status"] != "Success" {
		t.Errorf("transport:process_test - reply = %v", got)
	}
	if result, _ := got["result"].(map[string]any); result["message"] != "hi" {
		t.Errorf("transport:process_test - result = %v", got["result"])
	}
}

func TestProcess_NoticeIsSkipped(t *testing.T) {
	d := newDispatcher(t)
	reply, err := Process(context.Background(), d, []byte(`{"error":"missing required fields"}`))
	if err != nil || reply != nil {
		t.Errorf("transport:process_test - notice should produce no reply, got %s, %v", reply, err)
	}
}

func TestProcess_Unanswerable(t *testing.T) {
	d := newDispatcher(t)
	tests := []struct {
		name string
		data string
	}{
		{"not json", `not json`},
		{"json array", `[1,2]`},
		{"missing request_id", `{"system_name":"Test","action_name":"ping","input_data":{"message":"x"}}`},
		{"bad types without request_id", `{"input_data":"oops"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := Process(context.Background(), d, []byte(tt.data))
			if err == nil {
				t.Errorf("transport:process_test - expected error, got reply %s", reply)
			}
		})
	}
}

func TestProcess_WrongFieldTypesAnsweredWithFail(t *testing.T) {
	d := newDispatcher(t)
	reply, err := Process(context.Background(), d, []byte(`{"request_id":"r9","system_name":"Test","action_name":"ping","input_data":"oops"}`))
	if err != nil {
		t.Fatalf("transport:process_test - Process() error: %v", err)
	}
	var resp dispatcher.DispatchResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		t.Fatalf("transport:process_test - bad reply: %v", err)
	}
	if resp.RequestID != "r9" || resp.Status != dispatcher.StatusFail || resp.ErrorType != "INPUT_VALIDATION" {
		t.Errorf("transport:process_test - reply = %+v", resp)
	}
	if !strings.HasPrefix(resp.ErrorMessage, "Action (system 'Test', action 'ping') failed due to the error: ") {
		t.Errorf("transport:process_test - ErrorMessage = %q", resp.ErrorMessage)
	}
}

func TestProcess_UnknownSystem(t *testing.T) {
	d := newDispatcher(t)
	reply, err := Process(context.Background(), d, []byte(`{"request_id":"r2","system_name":"Jira","action_name":"x","input_data":{}}`))
	if err != nil {
		t.Fatalf("transport:process_test - Process() error: %v", err)
	}
	got := decodeReply(t, reply)
	if got["status"] != "Fail" || got["error_type"] != "SYSTEM_NOT_FOUND" {
		t.Errorf("transport:process_test - reply = %v", got)
	}
	if _, ok := got["result"]; ok {
		t.Errorf("transport:process_test - fail reply must not carry result")
	}
}

func TestProcess_LargeIntegersRoundTrip(t *testing.T) {
	d := newDispatcher(t)
	in := `{"request_id":"r3","system_name":"GitFlame","action_name":"Get issue","input_data":{"index":9007199254740993}}`
	reply, err := Process(context.Background(), d, []byte(in))
	if err != nil {
		t.Fatalf("transport:process_test - Process() error: %v", err)
	}
	for _, want := range []string{`"result":{"index":9007199254740993}`, `"structured_result":{"index":9007199254740993}`} {
		if !strings.Contains(string(reply), want) {
			t.Errorf("transport:process_test - reply %s missing %s", reply, want)
		}
	}
}

// rawDispatcher returns a fixed response, bypassing the dispatcher's own checks.
type rawDispatcher struct {
	resp *dispatcher.DispatchResponse
}

func (r rawDispatcher) Dispatch(context.Context, *dispatcher.DispatchRequest) (*dispatcher.DispatchResponse, error) {
	return r.resp, nil
}

func TestProcess_UnencodableResponseStillAnswered(t *testing.T) {
	d := rawDispatcher{resp: &dispatcher.DispatchResponse{
		RequestID:        "r4",
		Status:           dispatcher.StatusSuccess,
		StructuredResult: map[string]any{"ratio": math.NaN()},
	}}
	reply, err := Process(context.Background(), d, []byte(`{"request_id":"r4","system_name":"Test","action_name":"ratio"}`))
	if err != nil {
		t.Fatalf("transport:process_test - Process() error: %v", err)
	}
	got := decodeReply(t, reply)
	if got["request_id"] != "r4" || got["status"] != "Fail" || got["error_type"] != "ACTION_EXECUTION" {
		t.Errorf("transport:process_test - reply = %v", got)
	}
}
