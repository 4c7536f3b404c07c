package domain

// StartRunParams carries the inputs to start a new run.
type StartRunParams struct {
	AgentID         string         `json:"agent_id"`
	AgentName       string         `json:"agent_name"`
	AgentType       AgentType      `json:"agent_type"`
	UserID          string         `json:"user_id"`
	SessionID       string         `json:"session_id,omitempty"`
	CustomerID      string         `json:"customer_id,omitempty"`
	CustomerContext map[string]any `json:"customer_context,omitempty"`
	Input           string         `json:"input"`
	ParentRunID     string         `json:"parent_run_id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// EndRunParams carries the final state of a run.
type EndRunParams struct {
	Status RunStatus `json:"status"`
	Output string    `json:"output,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// StepParams carries the inputs to start a step.
type StepParams struct {
	Type         StepType       `json:"type"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Input        string         `json:"input,omitempty"`
	ParentStepID string         `json:"parent_step_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// EndStepParams carries the results of a finished step.
type EndStepParams struct {
	Output string      `json:"output,omitempty"`
	Tokens *TokenUsage `json:"tokens,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// LogStepParams records a complete step in one call. Semantically equivalent
// to StartStep immediately followed by EndStep with the same fields.
type LogStepParams struct {
	StepParams
	Output   string      `json:"output,omitempty"`
	Duration *int64      `json:"duration,omitempty"` // milliseconds
	Tokens   *TokenUsage `json:"tokens,omitempty"`
	Error    string      `json:"error,omitempty"`
}
