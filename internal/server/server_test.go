package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/morezero/actions-dispatcher/internal/config"
	"github.com/morezero/actions-dispatcher/pkg/action"
	"github.com/morezero/actions-dispatcher/pkg/blocking"
	"github.com/morezero/actions-dispatcher/pkg/bootstrap"
	"github.com/morezero/actions-dispatcher/pkg/dispatcher"
	"github.com/morezero/actions-dispatcher/pkg/events"
	"github.com/morezero/actions-dispatcher/pkg/metrics"
	"github.com/morezero/actions-dispatcher/pkg/registry"
)

const serverTestPrefix = "server:server_test"

type echoInput struct {
	Message string `json:"message"`
}

type echoOutput struct {
	Message string `json:"message"`
}

// fakeRecent implements recentSource for the home page.
type fakeRecent struct {
	events []events.ActionDispatchedEvent
	err    error
}

func (f *fakeRecent) Recent(context.Context, int) ([]events.ActionDispatchedEvent, error) {
	return f.events, f.err
}

func (f *fakeRecent) CountByStatus(context.Context) (map[string]int, error) {
	counts := map[string]int{}
	for _, e := range f.events {
		counts[e.Status]++
	}
	return counts, nil
}

// testServer returns a Server with a small registry, a real dispatcher and test config.
func testServer(t *testing.T, dispatchEnabled bool) *Server {
	t.Helper()
	reg := registry.NewRegistry(registry.NewRegistryParams{})
	err := registry.Add(reg, registry.Options{System: "GitFlame", Action: "Get repo information", Description: "Repository details"},
		func(_ context.Context, _ action.AuthContext, in echoInput) (echoOutput, error) {
			return echoOutput{Message: in.Message}, nil
		})
	if err != nil {
		t.Fatalf("%s - Add: %v", serverTestPrefix, err)
	}
	reg.Freeze()

	promReg := prometheus.NewRegistry()
	m, err := metrics.New(promReg)
	if err != nil {
		t.Fatalf("%s - metrics.New: %v", serverTestPrefix, err)
	}
	cfg := &config.Config{
		HealthCheckTimeout:  5 * time.Second,
		HTTPDispatchEnabled: dispatchEnabled,
	}
	return &Server{
		cfg:      cfg,
		reg:      reg,
		disp:     dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{Registry: reg, Metrics: m}),
		systems:  bootstrap.CreateResolvedSystems(bootstrap.GetDefaultSystemsConfig()),
		gatherer: promReg,
		checks:   map[string]func(ctx context.Context) error{},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestBuildOpenAPISpec(t *testing.T) {
	sd := &registry.SystemDescription{
		Name: "GitFlame",
		Actions: []registry.ActionDescription{{
			System:       "GitFlame",
			Action:       "Create issue",
			Description:  "Open an issue",
			InputSchema:  map[string]interface{}{"type": "object", "required": []string{"title"}},
			OutputSchema: map[string]interface{}{"type": "object"},
		}},
	}
	spec := buildOpenAPISpec(sd, "", "")

	if spec.OpenAPI != "3.0.0" {
		t.Errorf("%s - OpenAPI = %q, want 3.0.0", serverTestPrefix, spec.OpenAPI)
	}
	if spec.Info.Title != "GitFlame" || spec.Info.Version != "1.0.0" {
		t.Errorf("%s - Info = %+v", serverTestPrefix, spec.Info)
	}
	if spec.Info.Description != "Actions of system GitFlame" {
		t.Errorf("%s - default description = %q", serverTestPrefix, spec.Info.Description)
	}
	item, ok := spec.Paths["/Create%20issue"]
	if !ok || item.Post == nil {
		t.Fatalf("%s - missing path for Create issue: %v", serverTestPrefix, spec.Paths)
	}
	if item.Post.OperationID != "gitflame_create_issue" {
		t.Errorf("%s - OperationID = %q", serverTestPrefix, item.Post.OperationID)
	}
	schema := item.Post.Responses["200"].Content["application/json"].Schema
	props, _ := schema["properties"].(map[string]interface{})
	if _, ok := props["formatted_message"]; !ok {
		t.Errorf("%s - response schema should describe the dispatch envelope: %v", serverTestPrefix, schema)
	}
}

func TestOperationID(t *testing.T) {
	tests := []struct {
		system, name, want string
	}{
		{"Test", "ping", "test_ping"},
		{"GitFlame", "Get  repo information", "gitflame_get_repo_information"},
		{"GitFlame", "extract_issue_title", "gitflame_extract_issue_title"},
	}
	for _, tt := range tests {
		if got := operationID(tt.system, tt.name); got != tt.want {
			t.Errorf("%s - operationID(%q, %q) = %q, want %q", serverTestPrefix, tt.system, tt.name, got, tt.want)
		}
	}
}

func TestHealth(t *testing.T) {
	s := testServer(t, false)
	h := s.health(context.Background())
	if h.Status != "healthy" || h.Actions != 1 {
		t.Errorf("%s - no checks: %+v", serverTestPrefix, h)
	}

	s.checks["database"] = func(context.Context) error { return nil }
	s.checks["transport"] = func(context.Context) error { return errors.New("socket not connected") }
	h = s.health(context.Background())
	if h.Status != "unhealthy" {
		t.Errorf("%s - Status = %q, want unhealthy", serverTestPrefix, h.Status)
	}
	if h.Checks["database"] != "ok" || h.Checks["transport"] != "socket not connected" {
		t.Errorf("%s - Checks = %v", serverTestPrefix, h.Checks)
	}

	rec := get(t, s.Handler(), "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("%s - /health status = %d, want 503", serverTestPrefix, rec.Code)
	}
	var body HealthOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Status != "unhealthy" {
		t.Errorf("%s - /health body = %s (%v)", serverTestPrefix, rec.Body.String(), err)
	}
}

func TestHandler_Ready(t *testing.T) {
	s := testServer(t, false)
	if rec := get(t, s.Handler(), "/ready"); rec.Code != http.StatusOK {
		t.Errorf("%s - frozen registry: /ready = %d", serverTestPrefix, rec.Code)
	}

	s.reg = registry.NewRegistry(registry.NewRegistryParams{})
	if rec := get(t, s.Handler(), "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("%s - open registry: /ready = %d, want 503", serverTestPrefix, rec.Code)
	}
}

func TestHandler_Home(t *testing.T) {
	s := testServer(t, false)
	s.recent = &fakeRecent{events: []events.ActionDispatchedEvent{
		{SystemName: "GitFlame", ActionName: "Get repo information", Status: "Fail", ErrorType: "ACTION_EXECUTION"},
	}}

	rec := get(t, s.Handler(), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("%s - / status = %d", serverTestPrefix, rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"actions-dispatcher-systems@1.0.0",
		"GitFlame repositories and issues",
		`href="/action/GitFlame/Get%20repo%20information"`,
		"ACTION_EXECUTION",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("%s - home page missing %q", serverTestPrefix, want)
		}
	}

	if rec := get(t, s.Handler(), "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("%s - unknown path status = %d, want 404", serverTestPrefix, rec.Code)
	}
}

func TestHandler_HomeRecentError(t *testing.T) {
	s := testServer(t, false)
	s.recent = &fakeRecent{err: errors.New("disk gone")}
	body := get(t, s.Handler(), "/").Body.String()
	if !strings.Contains(body, "Could not load invocations: disk gone") {
		t.Errorf("%s - expected recent error on home page", serverTestPrefix)
	}
}

func TestHandler_ActionDetail(t *testing.T) {
	s := testServer(t, false)
	h := s.Handler()

	rec := get(t, h, "/action/GitFlame/Get%20repo%20information")
	if rec.Code != http.StatusOK {
		t.Fatalf("%s - detail status = %d", serverTestPrefix, rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "Repository details") || !strings.Contains(body, "Input contract") {
		t.Errorf("%s - detail page missing description or contract", serverTestPrefix)
	}

	for _, path := range []string{"/action/GitFlame/Nope", "/action/Jira/Create%20issue"} {
		if rec := get(t, h, path); rec.Code != http.StatusNotFound {
			t.Errorf("%s - %s status = %d, want 404", serverTestPrefix, path, rec.Code)
		}
	}
}

func TestHandler_OpenAPIAndDocs(t *testing.T) {
	s := testServer(t, false)
	h := s.Handler()

	rec := get(t, h, "/system/GitFlame/openapi.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("%s - openapi status = %d", serverTestPrefix, rec.Code)
	}
	var spec openAPI3Spec
	if err := json.Unmarshal(rec.Body.Bytes(), &spec); err != nil {
		t.Fatalf("%s - decode openapi: %v", serverTestPrefix, err)
	}
	if spec.Info.Description != "GitFlame repositories and issues" {
		t.Errorf("%s - description should come from the manifest, got %q", serverTestPrefix, spec.Info.Description)
	}
	if _, ok := spec.Paths["/Get%20repo%20information"]; !ok {
		t.Errorf("%s - paths = %v", serverTestPrefix, spec.Paths)
	}

	if rec := get(t, h, "/system/Jira/openapi.json"); rec.Code != http.StatusNotFound {
		t.Errorf("%s - unknown system openapi = %d, want 404", serverTestPrefix, rec.Code)
	}

	rec = get(t, h, "/system/GitFlame/docs")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/system/GitFlame/openapi.json") {
		t.Errorf("%s - docs page = %d %s", serverTestPrefix, rec.Code, rec.Body.String())
	}
}

func TestHandler_Metrics(t *testing.T) {
	s := testServer(t, true)
	h := s.Handler()

	post(t, h, `{"request_id":"r1","system_name":"GitFlame","action_name":"Get repo information","input_data":{"message":"hi"}}`)

	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("%s - /metrics status = %d", serverTestPrefix, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `actions_dispatch_total{action="Get repo information",error_type="",status="Success",system="GitFlame"} 1`) {
		t.Errorf("%s - /metrics should expose the dispatch series", serverTestPrefix)
	}
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/dispatch", strings.NewReader(body)))
	return rec
}

func TestHandler_Dispatch(t *testing.T) {
	h := testServer(t, true).Handler()

	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantStatus string
	}{
		{
			name:       "success",
			body:       `{"request_id":"r1","system_name":"GitFlame","action_name":"Get repo information","input_data":{"message":"hi"}}`,
			wantCode:   http.StatusOK,
			wantStatus: "Success",
		},
		{
			name:       "unknown system",
			body:       `{"request_id":"r2","system_name":"Jira","action_name":"x","input_data":{}}`,
			wantCode:   http.StatusOK,
			wantStatus: "Fail",
		},
		{name: "notice", body: `{"error":"team disconnected"}`, wantCode: http.StatusNoContent},
		{name: "not json", body: `hello`, wantCode: http.StatusBadRequest},
		{name: "no request id", body: `{"system_name":"Test"}`, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("%s - code = %d, want %d (%s)", serverTestPrefix, rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantStatus == "" {
				return
			}
			var resp map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("%s - decode: %v", serverTestPrefix, err)
			}
			if resp["status"] != tt.wantStatus {
				t.Errorf("%s - status = %v, want %s", serverTestPrefix, resp["status"], tt.wantStatus)
			}
		})
	}
}

func TestHandler_DispatchDisabled(t *testing.T) {
	h := testServer(t, false).Handler()
	rec := post(t, h, `{"request_id":"r1","system_name":"Test","action_name":"ping","input_data":{}}`)
	if rec.Code == http.StatusOK {
		body, _ := io.ReadAll(rec.Body)
		t.Errorf("%s - /dispatch should not be served when disabled: %s", serverTestPrefix, body)
	}
}

func TestBuildRegistry(t *testing.T) {
	t.Setenv(bootstrap.EnvSystemsFile, "")
	cfg := &config.Config{OutboundTimeout: time.Second, LLMEndpoint: "http://127.0.0.1:0/llm"}
	reg, systems, err := BuildRegistry(cfg, blocking.NewPool(1))
	if err != nil {
		t.Fatalf("%s - BuildRegistry: %v", serverTestPrefix, err)
	}
	if !reg.Frozen() {
		t.Errorf("%s - registry should be frozen after startup", serverTestPrefix)
	}
	if systems.Name() != "actions-dispatcher-systems" {
		t.Errorf("%s - manifest name = %q", serverTestPrefix, systems.Name())
	}
	if _, err := reg.Resolve("Test", "ping"); err != nil {
		t.Errorf("%s - Test/ping not registered: %v", serverTestPrefix, err)
	}
	if _, err := reg.Resolve("GitFlame", "extract_issue_body"); err != nil {
		t.Errorf("%s - GitFlame/extract_issue_body not registered: %v", serverTestPrefix, err)
	}
}

func TestSetupLogging(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		SetupLogging(level)
	}
	SetupLogging("info")
}

func TestStopTransport_WaitsForListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		close(finished)
		done <- nil
	}()

	stopTransport(cancel, done, true)
	select {
	case <-finished:
	default:
		t.Errorf("%s - stopTransport returned before the listener finished", serverTestPrefix)
	}
}

func TestStopTransport_NotRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopTransport(cancel, make(chan error), false)
	if ctx.Err() == nil {
		t.Errorf("%s - stopTransport must cancel the transport context", serverTestPrefix)
	}
}
