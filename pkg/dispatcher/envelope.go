// Package dispatcher routes inbound action requests to registered handlers and builds
// the response envelope returned to the caller.
package dispatcher

import (
	"encoding/json"

	"github.com/morezero/actions-dispatcher/pkg/action"
	"github.com/morezero/actions-dispatcher/pkg/commsutil"
)

// Status is the outcome of one dispatch.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFail    Status = "Fail"
)

// DispatchRequest is the inbound envelope.
type DispatchRequest struct {
	RequestID  string             `json:"request_id"`
	SystemName string             `json:"system_name"`
	ActionName string             `json:"action_name"`
	InputData  map[string]any     `json:"input_data"`
	AuthData   action.AuthContext `json:"system_authorization_data,omitempty"`
}

// UnmarshalJSON keeps input_data numbers as json.Number so large integers reach the
// input contract intact.
func (r *DispatchRequest) UnmarshalJSON(data []byte) error {
	type plain DispatchRequest
	var p plain
	if err := commsutil.DecodeNumbers(data, &p); err != nil {
		return err
	}
	*r = DispatchRequest(p)
	return nil
}

// DispatchResponse is the outbound envelope. A Success carries the formatted message,
// the structured result and the raw result; a Fail carries the error fields only.
type DispatchResponse struct {
	RequestID        string
	Status           Status
	FormattedMessage string
	StructuredResult map[string]any
	Result           map[string]any
	ErrorMessage     string
	ErrorType        action.Code
	ErrorDetails     any
}

type wireResponse struct {
	RequestID        string          `json:"request_id"`
	Status           Status          `json:"status"`
	FormattedMessage *string         `json:"formatted_message,omitempty"`
	StructuredResult *map[string]any `json:"structured_result,omitempty"`
	Result           *map[string]any `json:"result,omitempty"`
	ErrorMessage     *string         `json:"error_message,omitempty"`
	ErrorType        action.Code     `json:"error_type,omitempty"`
	ErrorDetails     any             `json:"error_details,omitempty"`
}

// MarshalJSON writes only the fields that belong to the response status. An empty
// success result is still written as {}.
func (r DispatchResponse) MarshalJSON() ([]byte, error) {
	w := wireResponse{RequestID: r.RequestID, Status: r.Status}
	if r.Status == StatusSuccess {
		msg := r.FormattedMessage
		structured := nonNil(r.StructuredResult)
		result := nonNil(r.Result)
		w.FormattedMessage = &msg
		w.StructuredResult = &structured
		w.Result = &result
	} else {
		msg := r.ErrorMessage
		w.ErrorMessage = &msg
		w.ErrorType = r.ErrorType
		w.ErrorDetails = r.ErrorDetails
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads a response written by MarshalJSON.
func (r *DispatchResponse) UnmarshalJSON(data []byte) error {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = DispatchResponse{
		RequestID:    w.RequestID,
		Status:       w.Status,
		ErrorType:    w.ErrorType,
		ErrorDetails: w.ErrorDetails,
	}
	if w.FormattedMessage != nil {
		r.FormattedMessage = *w.FormattedMessage
	}
	if w.StructuredResult != nil {
		r.StructuredResult = *w.StructuredResult
	}
	if w.Result != nil {
		r.Result = *w.Result
	}
	if w.ErrorMessage != nil {
		r.ErrorMessage = *w.ErrorMessage
	}
	return nil
}

// Ok reports whether the dispatch succeeded.
func (r *DispatchResponse) Ok() bool {
	return r.Status == StatusSuccess
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
