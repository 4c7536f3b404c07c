package domain

import "time"

// TraceEvent is a broadcast notification describing a single lifecycle
// mutation. Data carries the full updated Run or Step, or a StatusChange.
type TraceEvent struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusChange is the Data payload of a status:change event.
type StatusChange struct {
	Status   RunStatus      `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
