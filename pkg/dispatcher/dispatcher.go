package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/actions-dispatcher/pkg/action"
	"github.com/morezero/actions-dispatcher/pkg/commsutil"
	"github.com/morezero/actions-dispatcher/pkg/contract"
	"github.com/morezero/actions-dispatcher/pkg/events"
	"github.com/morezero/actions-dispatcher/pkg/format"
	"github.com/morezero/actions-dispatcher/pkg/metrics"
	"github.com/morezero/actions-dispatcher/pkg/registry"
)

const logPrefix = "dispatcher:dispatch"

var (
	// ErrNilRequest is returned by Dispatch for a nil request.
	ErrNilRequest = errors.New("dispatcher:dispatch - nil request")
	// ErrMissingRequestID is returned by Dispatch when the request has no request_id.
	ErrMissingRequestID = errors.New("dispatcher:dispatch - request_id is required")
)

// Dispatcher resolves, validates, executes and formats action requests.
type Dispatcher struct {
	registry  *registry.Registry
	publisher events.EventPublisher
	metrics   *metrics.Metrics
}

// NewDispatcherParams holds parameters for NewDispatcher.
type NewDispatcherParams struct {
	Registry  *registry.Registry
	Publisher events.EventPublisher
	Metrics   *metrics.Metrics
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	return &Dispatcher{
		registry:  params.Registry,
		publisher: pub,
		metrics:   params.Metrics,
	}
}

// Registry returns the registry the dispatcher resolves against.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// Dispatch runs one request to completion and always returns a response for it.
// Every per-request failure becomes a Fail response; the returned error is reserved
// for malformed calls (nil request, missing request_id).
func (d *Dispatcher) Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResponse, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if req.RequestID == "" {
		return nil, ErrMissingRequestID
	}

	slog.Debug(fmt.Sprintf("%s - request_id=%s system=%s action=%s", logPrefix, req.RequestID, req.SystemName, req.ActionName))

	done := d.metrics.Begin()
	start := time.Now()
	resp, resolved := d.run(ctx, req)
	elapsed := time.Since(start)
	done()

	d.metrics.Observe(metrics.Observation{
		System:    req.SystemName,
		Action:    req.ActionName,
		Status:    string(resp.Status),
		ErrorType: string(resp.ErrorType),
		Resolved:  resolved,
		Duration:  elapsed,
	})
	d.publish(ctx, req, resp, elapsed)

	if resp.Ok() {
		slog.Info(fmt.Sprintf("%s - request_id=%s %s/%s succeeded in %s", logPrefix, req.RequestID, req.SystemName, req.ActionName, elapsed))
	} else {
		slog.Warn(fmt.Sprintf("%s - request_id=%s %s/%s failed (%s): %s", logPrefix, req.RequestID, req.SystemName, req.ActionName, resp.ErrorType, resp.ErrorMessage))
	}
	return resp, nil
}

// run reports whether the request resolved to a registration alongside the response.
func (d *Dispatcher) run(ctx context.Context, req *DispatchRequest) (*DispatchResponse, bool) {
	reg, err := d.registry.Resolve(req.SystemName, req.ActionName)
	if err != nil {
		return failResponse(req, err), false
	}

	input, err := reg.Input.Decode(req.InputData)
	if err != nil {
		var verr *contract.ValidationError
		if errors.As(err, &verr) {
			return failResponse(req, action.InputValidationError(err, verr.Problems)), true
		}
		return failResponse(req, action.InputValidationError(err, nil)), true
	}

	auth := req.AuthData
	if auth == nil {
		auth = action.AuthContext{}
	}

	out, err := d.execute(ctx, reg, auth, input)
	if err != nil {
		return failResponse(req, action.ExecutionError(err)), true
	}

	raw, err := commsutil.ToMap(out)
	if err != nil {
		return failResponse(req, action.ExecutionError(err)), true
	}

	msg, structured, err := d.format(reg, raw)
	if err != nil {
		return failResponse(req, action.ExecutionError(err)), true
	}

	return &DispatchResponse{
		RequestID:        req.RequestID,
		Status:           StatusSuccess,
		FormattedMessage: msg,
		StructuredResult: structured,
		Result:           raw,
	}, true
}

func (d *Dispatcher) execute(ctx context.Context, reg *registry.Registration, auth action.AuthContext, input any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = d.recovered(reg, "handler", r)
		}
	}()
	return reg.Action.Execute(ctx, auth, input)
}

func (d *Dispatcher) format(reg *registry.Registration, raw map[string]any) (msg string, structured map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = d.recovered(reg, "formatter", r)
		}
	}()
	msg, structured, err = format.OrDefault(reg.Formatter)(raw)
	if err != nil {
		return "", nil, err
	}
	if structured == nil {
		return msg, raw, nil
	}
	structured, err = commsutil.ToMap(structured)
	if err != nil {
		return "", nil, fmt.Errorf("formatter returned an unencodable structured result: %w", err)
	}
	return msg, structured, nil
}

func (d *Dispatcher) recovered(reg *registry.Registration, where string, r any) error {
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)
	slog.Error(fmt.Sprintf("%s - %s panic in %s: %v\n%s", logPrefix, where, reg.Key(), r, stack[:n]))
	d.metrics.Panic(reg.SystemName, reg.ActionName)
	return fmt.Errorf("%v", r)
}

func (d *Dispatcher) publish(ctx context.Context, req *DispatchRequest, resp *DispatchResponse, elapsed time.Duration) {
	ev := &events.ActionDispatchedEvent{
		InvocationID: uuid.NewString(),
		RequestID:    req.RequestID,
		SystemName:   req.SystemName,
		ActionName:   req.ActionName,
		Status:       string(resp.Status),
		ErrorType:    string(resp.ErrorType),
		ErrorMessage: resp.ErrorMessage,
		DurationMs:   elapsed.Milliseconds(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := d.publisher.PublishDispatched(ctx, ev); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish dispatched event for request_id=%s: %v", logPrefix, req.RequestID, err))
	}
}

// FailMessage renders the caller-facing text for a failed action.
func FailMessage(system, name string, cause string) string {
	return fmt.Sprintf("Action (system '%s', action '%s') failed due to the error: %s", system, name, cause)
}

func failResponse(req *DispatchRequest, err error) *DispatchResponse {
	var aerr *action.Error
	if !errors.As(err, &aerr) {
		aerr = action.ExecutionError(err)
	}
	return &DispatchResponse{
		RequestID:    req.RequestID,
		Status:       StatusFail,
		ErrorMessage: FailMessage(req.SystemName, req.ActionName, aerr.Message),
		ErrorType:    aerr.Code,
		ErrorDetails: aerr.Details,
	}
}
