// Package transport connects the dispatcher to the outside world: a websocket client
// that receives requests from the chat backend, and a COMMS (NATS) request subscription.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/morezero/actions-dispatcher/pkg/action"
	"github.com/morezero/actions-dispatcher/pkg/dispatcher"
)

const logPrefix = "transport:process"

// Dispatcher runs one request to completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *dispatcher.DispatchRequest) (*dispatcher.DispatchResponse, error)
}

// Process handles one inbound message and returns the encoded reply.
//
// A nil reply with a nil error means the message was a server-side notice (it carries
// a top-level "error" key) and needs no answer. An error means no reply could be built,
// because the message is not JSON or lacks a request_id.
func Process(ctx context.Context, d Dispatcher, data []byte) ([]byte, error) {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("%s - inbound message is not a JSON object", logPrefix)
	}
	if notice := gjson.GetBytes(data, "error"); notice.Exists() {
		slog.Warn(fmt.Sprintf("%s - server notice: %s", logPrefix, notice.Raw))
		return nil, nil
	}

	var req dispatcher.DispatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		resp, rerr := malformed(data, err)
		if rerr != nil {
			return nil, rerr
		}
		return encode(resp)
	}

	resp, err := d.Dispatch(ctx, &req)
	if err != nil {
		return nil, err
	}
	out, err := encode(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - request_id=%s: %v", logPrefix, req.RequestID, err))
		return encode(&dispatcher.DispatchResponse{
			RequestID:    req.RequestID,
			Status:       dispatcher.StatusFail,
			ErrorMessage: dispatcher.FailMessage(req.SystemName, req.ActionName, err.Error()),
			ErrorType:    action.CodeActionExecution,
		})
	}
	return out, nil
}

// malformed builds a Fail reply for a message whose fields have the wrong JSON types,
// reading the identifying fields leniently.
func malformed(data []byte, cause error) (*dispatcher.DispatchResponse, error) {
	requestID := gjson.GetBytes(data, "request_id")
	if requestID.Type != gjson.String || requestID.Str == "" {
		return nil, fmt.Errorf("%s - undecodable message without request_id: %w", logPrefix, cause)
	}
	system := gjson.GetBytes(data, "system_name").String()
	name := gjson.GetBytes(data, "action_name").String()
	slog.Warn(fmt.Sprintf("%s - request_id=%s undecodable: %v", logPrefix, requestID.Str, cause))
	return &dispatcher.DispatchResponse{
		RequestID:    requestID.Str,
		Status:       dispatcher.StatusFail,
		ErrorMessage: dispatcher.FailMessage(system, name, cause.Error()),
		ErrorType:    action.CodeInputValidation,
	}, nil
}

func encode(resp *dispatcher.DispatchResponse) ([]byte, error) {
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode response: %w", logPrefix, err)
	}
	return out, nil
}
