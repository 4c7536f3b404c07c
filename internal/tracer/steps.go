package tracer

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/aacamara/cscx-mvp6-sub017/internal/domain"
	"github.com/aacamara/cscx-mvp6-sub017/policy"
)

// StartStep appends a step to a run and starts its duration timer. Returns
// nil when the run is unknown.
func (t *Tracer) StartStep(ctx context.Context, runID string, params domain.StepParams) *domain.Step {
	userID, agentType, ok := t.runIdentity(runID)
	if !ok {
		return nil
	}

	requireApproval := false
	if params.Type == domain.StepTypeToolCall {
		params, requireApproval = t.applyToolPolicy(ctx, userID, agentType, params)
	}

	now := time.Now()
	step := domain.Step{
		ID:           "step_" + uuid.New().String()[:8],
		RunID:        runID,
		Type:         params.Type,
		Name:         params.Name,
		Description:  params.Description,
		Input:        params.Input,
		Timestamp:    now,
		ParentStepID: params.ParentStepID,
		Metadata:     domain.MergeMetadata(nil, params.Metadata),
	}

	t.mu.Lock()
	run, ok := t.runs[runID]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	run.Steps = append(run.Steps, step)
	t.stepIndex[step.ID] = runID
	t.stepTimers[step.ID] = now
	snapshot := step.Clone()
	t.publish(domain.EventTypeStepStart, runID, snapshot)
	t.mu.Unlock()

	t.persist("insert step "+step.ID, func(ctx context.Context) error {
		return t.store.InsertStep(ctx, snapshot)
	})

	if requireApproval {
		t.UpdateStatus(ctx, runID, domain.RunStatusWaitingApproval, map[string]any{
			"pending_tool":    step.Name,
			"pending_step_id": step.ID,
		})
	}
	return snapshot
}

// EndStep completes a previously started step: computes its duration from the
// timer, records output and tokens, and folds an error into the step
// metadata. Returns nil when the step id is unknown.
func (t *Tracer) EndStep(ctx context.Context, stepID string, params domain.EndStepParams) *domain.Step {
	t.mu.Lock()
	runID, ok := t.stepIndex[stepID]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	run := t.runs[runID]
	if run == nil {
		delete(t.stepIndex, stepID)
		t.mu.Unlock()
		return nil
	}
	var step *domain.Step
	for i := range run.Steps {
		if run.Steps[i].ID == stepID {
			step = &run.Steps[i]
			break
		}
	}
	if step == nil {
		t.mu.Unlock()
		return nil
	}

	if started, timed := t.stepTimers[stepID]; timed {
		d := time.Since(started).Milliseconds()
		step.Duration = &d
		delete(t.stepTimers, stepID)
	}
	step.Output = params.Output
	// Tokens contribute to the run total exactly once.
	if params.Tokens != nil && step.Tokens == nil {
		tokens := *params.Tokens
		step.Tokens = &tokens
		run.TotalTokens.Input += tokens.Input
		run.TotalTokens.Output += tokens.Output
	}
	if params.Error != "" {
		step.Metadata = domain.MergeMetadata(step.Metadata, map[string]any{"error": params.Error})
	}

	stepSnapshot := step.Clone()
	runSnapshot := run.Clone()
	t.publish(domain.EventTypeStepEnd, runID, stepSnapshot)
	t.mu.Unlock()

	t.persist("update step "+stepID, func(ctx context.Context) error {
		return t.store.UpdateStep(ctx, stepSnapshot)
	})
	t.persist("update run "+runID, func(ctx context.Context) error {
		return t.store.UpdateRun(ctx, runSnapshot)
	})
	return stepSnapshot
}

// LogStep records a complete step in one call, with output, duration, and
// tokens supplied directly. Produces the same final step shape and the same
// token total contribution as StartStep followed by EndStep.
func (t *Tracer) LogStep(ctx context.Context, runID string, params domain.LogStepParams) *domain.Step {
	userID, agentType, ok := t.runIdentity(runID)
	if !ok {
		return nil
	}

	if params.Type == domain.StepTypeToolCall {
		var requireApproval bool
		params.StepParams, requireApproval = t.applyToolPolicy(ctx, userID, agentType, params.StepParams)
		if requireApproval {
			defer t.UpdateStatus(ctx, runID, domain.RunStatusWaitingApproval, map[string]any{
				"pending_tool": params.Name,
			})
		}
	}

	metadata := domain.MergeMetadata(nil, params.Metadata)
	if params.Error != "" {
		metadata = domain.MergeMetadata(metadata, map[string]any{"error": params.Error})
	}
	step := domain.Step{
		ID:           "step_" + uuid.New().String()[:8],
		RunID:        runID,
		Type:         params.Type,
		Name:         params.Name,
		Description:  params.Description,
		Input:        params.Input,
		Output:       params.Output,
		Timestamp:    time.Now(),
		ParentStepID: params.ParentStepID,
		Metadata:     metadata,
	}
	if params.Duration != nil {
		d := *params.Duration
		step.Duration = &d
	}
	if params.Tokens != nil {
		tokens := *params.Tokens
		step.Tokens = &tokens
	}

	t.mu.Lock()
	run, ok := t.runs[runID]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	run.Steps = append(run.Steps, step)
	t.stepIndex[step.ID] = runID
	if step.Tokens != nil {
		run.TotalTokens.Input += step.Tokens.Input
		run.TotalTokens.Output += step.Tokens.Output
	}
	snapshot := step.Clone()
	runSnapshot := run.Clone()
	t.publish(domain.EventTypeStepStart, runID, snapshot)
	t.publish(domain.EventTypeStepEnd, runID, snapshot)
	t.mu.Unlock()

	t.persist("insert step "+step.ID, func(ctx context.Context) error {
		return t.store.InsertStep(ctx, snapshot)
	})
	t.persist("update run "+runID, func(ctx context.Context) error {
		return t.store.UpdateRun(ctx, runSnapshot)
	})
	return snapshot
}

// runIdentity fetches the fields policy evaluation needs, and reports whether
// the run exists.
func (t *Tracer) runIdentity(runID string) (userID string, agentType domain.AgentType, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[runID]
	if !ok {
		return "", "", false
	}
	return run.UserID, run.AgentType, true
}

// applyToolPolicy evaluates a tool-call step against the approval policy. A
// block decision marks the step metadata; a require_approval decision is
// reported to the caller. Evaluation failures never block step recording.
func (t *Tracer) applyToolPolicy(ctx context.Context, userID string, agentType domain.AgentType, params domain.StepParams) (domain.StepParams, bool) {
	if t.policy == nil {
		return params, false
	}
	decision, err := t.policy.Evaluate(ctx, map[string]any{
		"tool_name":  params.Name,
		"input":      params.Input,
		"user_id":    userID,
		"agent_type": string(agentType),
	})
	if err != nil {
		log.Printf("WARN: policy evaluation failed for %s: %v", params.Name, err)
		return params, false
	}

	switch decision {
	case policy.DecisionBlock:
		merged := domain.MergeMetadata(nil, params.Metadata)
		params.Metadata = domain.MergeMetadata(merged, map[string]any{
			"error": "blocked by policy: " + params.Name,
		})
	case policy.DecisionRequireApproval:
		return params, true
	}
	return params, false
}
