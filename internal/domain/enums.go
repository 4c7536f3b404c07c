// Package domain defines the core domain models for the execution tracer.
package domain

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusRunning         RunStatus = "running"
	RunStatusCompleted       RunStatus = "completed"
	RunStatusFailed          RunStatus = "failed"
	RunStatusWaitingApproval RunStatus = "waiting_approval"
)

// Terminal reports whether the status permits no further mutation.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Valid reports whether the status is one of the known run states.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusWaitingApproval:
		return true
	}
	return false
}

// AgentType classifies the agent owning a run.
type AgentType string

const (
	AgentTypeOrchestrator AgentType = "orchestrator"
	AgentTypeSpecialist   AgentType = "specialist"
	AgentTypeSupport      AgentType = "support"
)

// StepType represents the kind of work a step records.
type StepType string

const (
	StepTypeThinking    StepType = "thinking"
	StepTypeToolCall    StepType = "tool_call"
	StepTypeToolResult  StepType = "tool_result"
	StepTypeLLMCall     StepType = "llm_call"
	StepTypeLLMResponse StepType = "llm_response"
	StepTypeDecision    StepType = "decision"
	StepTypeHandoff     StepType = "handoff"
	StepTypeApproval    StepType = "approval"
	StepTypeResponse    StepType = "response"
	StepTypeError       StepType = "error"
)

// EventType represents the type of a trace event.
type EventType string

const (
	EventTypeRunStart     EventType = "run:start"
	EventTypeRunEnd       EventType = "run:end"
	EventTypeStepStart    EventType = "step:start"
	EventTypeStepEnd      EventType = "step:end"
	EventTypeStatusChange EventType = "status:change"
)

// NodeStatus represents the status of a node in a trace visualization.
type NodeStatus string

const (
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusError     NodeStatus = "error"
)
