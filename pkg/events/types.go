// Package events defines the dispatched-action event and the publishers that fan it out
// to COMMS subjects, audit stores and tests.
package events

// ActionDispatchedEvent is emitted once per completed dispatch. It never carries input
// data, credentials or result payloads.
type ActionDispatchedEvent struct {
	InvocationID string `json:"invocationId"`
	RequestID    string `json:"requestId"`
	SystemName   string `json:"systemName"`
	ActionName   string `json:"actionName"`
	Status       string `json:"status"`
	ErrorType    string `json:"errorType,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	DurationMs   int64  `json:"durationMs"`
	Timestamp    string `json:"timestamp"`
}
