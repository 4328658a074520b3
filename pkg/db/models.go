package db

import "time"

// Invocation represents a row in the action_invocations table.
type Invocation struct {
	InvocationID string    `json:"invocation_id"`
	RequestID    string    `json:"request_id"`
	SystemName   string    `json:"system_name"`
	ActionName   string    `json:"action_name"`
	Status       string    `json:"status"`
	ErrorType    *string   `json:"error_type,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// InvocationStat aggregates invocations per (system, action, status).
type InvocationStat struct {
	SystemName    string  `json:"system_name"`
	ActionName    string  `json:"action_name"`
	Status        string  `json:"status"`
	Count         int     `json:"count"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// Migration is a single SQL migration file.
type Migration struct {
	Name string
	SQL  string
}
