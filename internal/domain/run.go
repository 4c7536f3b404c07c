package domain

import "time"

// TokenUsage counts tokens consumed by a step or accumulated over a run.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Run represents a single execution of an agent task.
type Run struct {
	ID              string         `json:"id"`
	AgentID         string         `json:"agent_id"`
	AgentName       string         `json:"agent_name"`
	AgentType       AgentType      `json:"agent_type"`
	UserID          string         `json:"user_id"`
	SessionID       string         `json:"session_id,omitempty"`
	CustomerID      string         `json:"customer_id,omitempty"`
	CustomerContext map[string]any `json:"customer_context,omitempty"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         *time.Time     `json:"end_time,omitempty"`
	Status          RunStatus      `json:"status"`
	Input           string         `json:"input"`
	Output          string         `json:"output,omitempty"`
	Error           string         `json:"error,omitempty"`
	Steps           []Step         `json:"steps"`
	TotalTokens     TokenUsage     `json:"total_tokens"`
	ChildRuns       []string       `json:"child_runs,omitempty"`
	ParentRunID     string         `json:"parent_run_id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Step represents one unit of work inside a run.
type Step struct {
	ID           string         `json:"id"`
	RunID        string         `json:"run_id"`
	Type         StepType       `json:"type"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Input        string         `json:"input,omitempty"`
	Output       string         `json:"output,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Duration     *int64         `json:"duration,omitempty"` // milliseconds
	ParentStepID string         `json:"parent_step_id,omitempty"`
	Tokens       *TokenUsage    `json:"tokens,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the run. The tracer hands out copies so no
// caller can mutate the canonical record in place.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	out := *r
	if r.EndTime != nil {
		t := *r.EndTime
		out.EndTime = &t
	}
	if r.Steps != nil {
		out.Steps = make([]Step, len(r.Steps))
		for i := range r.Steps {
			out.Steps[i] = *r.Steps[i].Clone()
		}
	}
	if r.ChildRuns != nil {
		out.ChildRuns = append([]string(nil), r.ChildRuns...)
	}
	out.CustomerContext = cloneMap(r.CustomerContext)
	out.Metadata = cloneMap(r.Metadata)
	return &out
}

// Clone returns a deep copy of the step.
func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	out := *s
	if s.Duration != nil {
		d := *s.Duration
		out.Duration = &d
	}
	if s.Tokens != nil {
		tk := *s.Tokens
		out.Tokens = &tk
	}
	out.Metadata = cloneMap(s.Metadata)
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MergeMetadata merges src into dst, newer keys overriding older ones.
// A nil dst is allocated on first write.
func MergeMetadata(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
