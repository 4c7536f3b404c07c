package tracer

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aacamara/cscx-mvp6-sub017/internal/domain"
	"github.com/aacamara/cscx-mvp6-sub017/policy"
)

func TestStepOrderPreserved(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracer(t)
	run := startTestRun(t, tr, domain.StartRunParams{})

	for i := 0; i < 10; i++ {
		step := tr.StartStep(ctx, run.ID, domain.StepParams{
			Type: domain.StepTypeThinking,
			Name: fmt.Sprintf("step-%d", i),
		})
		if step == nil {
			t.Fatalf("StartStep %d returned nil", i)
		}
	}

	got := tr.GetRun(ctx, run.ID)
	if len(got.Steps) != 10 {
		t.Fatalf("expected 10 steps, got %d", len(got.Steps))
	}
	for i, step := range got.Steps {
		if step.Name != fmt.Sprintf("step-%d", i) {
			t.Fatalf("step %d out of order: %s", i, step.Name)
		}
	}
}

func TestConcurrentStepAppends(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracer(t)
	run := startTestRun(t, tr, domain.StartRunParams{})

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			tr.LogStep(ctx, run.ID, domain.LogStepParams{
				StepParams: domain.StepParams{Type: domain.StepTypeToolCall, Name: fmt.Sprintf("tool-%d", i)},
				Tokens:     &domain.TokenUsage{Input: 1, Output: 2},
			})
		}(i)
	}
	wg.Wait()

	got := tr.GetRun(ctx, run.ID)
	if len(got.Steps) != workers {
		t.Fatalf("expected %d steps, got %d", workers, len(got.Steps))
	}
	if got.TotalTokens.Input != workers || got.TotalTokens.Output != 2*workers {
		t.Fatalf("unexpected totals: %+v", got.TotalTokens)
	}
}

func TestStartEndStepDuration(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracer(t)
	run := startTestRun(t, tr, domain.StartRunParams{})

	step := tr.StartStep(ctx, run.ID, domain.StepParams{Type: domain.StepTypeLLMCall, Name: "draft"})
	if step.Duration != nil {
		t.Fatalf("duration must be unset before EndStep")
	}

	ended := tr.EndStep(ctx, step.ID, domain.EndStepParams{
		Output: "draft text",
		Tokens: &domain.TokenUsage{Input: 100, Output: 40},
	})
	if ended == nil {
		t.Fatalf("EndStep returned nil")
	}
	if ended.Duration == nil || *ended.Duration < 0 {
		t.Fatalf("unexpected duration: %v", ended.Duration)
	}
	if ended.Output != "draft text" {
		t.Fatalf("unexpected output: %q", ended.Output)
	}

	got := tr.GetRun(ctx, run.ID)
	if got.TotalTokens.Input != 100 || got.TotalTokens.Output != 40 {
		t.Fatalf("unexpected totals: %+v", got.TotalTokens)
	}
}

func TestEndStepUnknownIDIsNoOp(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracer(t)
	run := startTestRun(t, tr, domain.StartRunParams{})

	if tr.EndStep(ctx, "step_missing", domain.EndStepParams{Output: "x"}) != nil {
		t.Fatalf("EndStep on unknown id must return nil")
	}

	got := tr.GetRun(ctx, run.ID)
	if len(got.Steps) != 0 || got.TotalTokens != (domain.TokenUsage{}) {
		t.Fatalf("run mutated by unknown EndStep: %+v", got)
	}
}

func TestEndStepTokensCountedOnce(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracer(t)
	run := startTestRun(t, tr, domain.StartRunParams{})

	step := tr.StartStep(ctx, run.ID, domain.StepParams{Type: domain.StepTypeToolCall, Name: "lookup"})
	tr.EndStep(ctx, step.ID, domain.EndStepParams{Tokens: &domain.TokenUsage{Input: 5, Output: 5}})
	tr.EndStep(ctx, step.ID, domain.EndStepParams{Tokens: &domain.TokenUsage{Input: 5, Output: 5}})

	got := tr.GetRun(ctx, run.ID)
	if got.TotalTokens.Input != 5 || got.TotalTokens.Output != 5 {
		t.Fatalf("tokens counted more than once: %+v", got.TotalTokens)
	}
}

func TestEndStepErrorMergedIntoMetadata(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracer(t)
	run := startTestRun(t, tr, domain.StartRunParams{})

	step := tr.StartStep(ctx, run.ID, domain.StepParams{
		Type:     domain.StepTypeToolCall,
		Name:     "lookup",
		Metadata: map[string]any{"attempt": 1},
	})
	ended := tr.EndStep(ctx, step.ID, domain.EndStepParams{Error: "timeout"})
	if ended.Metadata["error"] != "timeout" || ended.Metadata["attempt"] != 1 {
		t.Fatalf("unexpected metadata: %+v", ended.Metadata)
	}
}

func TestLogStepEquivalentToStartEnd(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracer(t)
	runA := startTestRun(t, tr, domain.StartRunParams{})
	runB := startTestRun(t, tr, domain.StartRunParams{})

	tokens := domain.TokenUsage{Input: 30, Output: 12}

	started := tr.StartStep(ctx, runA.ID, domain.StepParams{
		Type:  domain.StepTypeToolCall,
		Name:  "fetch_usage",
		Input: "account X",
	})
	twoPhase := tr.EndStep(ctx, started.ID, domain.EndStepParams{
		Output: "usage data",
		Tokens: &tokens,
		Error:  "rate limited",
	})

	logged := tr.LogStep(ctx, runB.ID, domain.LogStepParams{
		StepParams: domain.StepParams{
			Type:  domain.StepTypeToolCall,
			Name:  "fetch_usage",
			Input: "account X",
		},
		Output: "usage data",
		Tokens: &tokens,
		Error:  "rate limited",
	})

	if twoPhase.Type != logged.Type || twoPhase.Name != logged.Name || twoPhase.Input != logged.Input ||
		twoPhase.Output != logged.Output {
		t.Fatalf("step shapes differ: %+v vs %+v", twoPhase, logged)
	}
	if *twoPhase.Tokens != *logged.Tokens {
		t.Fatalf("token shapes differ")
	}
	if twoPhase.Metadata["error"] != logged.Metadata["error"] {
		t.Fatalf("metadata differs: %+v vs %+v", twoPhase.Metadata, logged.Metadata)
	}

	totalsA := tr.GetRun(ctx, runA.ID).TotalTokens
	totalsB := tr.GetRun(ctx, runB.ID).TotalTokens
	if totalsA != totalsB {
		t.Fatalf("token contributions differ: %+v vs %+v", totalsA, totalsB)
	}
}

func TestLogStepSuppliedDuration(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracer(t)
	run := startTestRun(t, tr, domain.StartRunParams{})

	duration := int64(123)
	step := tr.LogStep(ctx, run.ID, domain.LogStepParams{
		StepParams: domain.StepParams{Type: domain.StepTypeDecision, Name: "route"},
		Duration:   &duration,
	})
	if step.Duration == nil || *step.Duration != 123 {
		t.Fatalf("unexpected duration: %v", step.Duration)
	}
}

func TestToolPolicyBlockAndApproval(t *testing.T) {
	ctx := context.Background()
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	tr := New(nil, engine)
	t.Cleanup(tr.Close)

	run := startTestRun(t, tr, domain.StartRunParams{})

	blocked := tr.LogStep(ctx, run.ID, domain.LogStepParams{
		StepParams: domain.StepParams{Type: domain.StepTypeToolCall, Name: "crm.delete_account"},
	})
	if blocked.Metadata["error"] == nil {
		t.Fatalf("blocked tool call missing error metadata: %+v", blocked.Metadata)
	}

	allowed := tr.LogStep(ctx, run.ID, domain.LogStepParams{
		StepParams: domain.StepParams{Type: domain.StepTypeToolCall, Name: "crm.get_account"},
	})
	if allowed.Metadata["error"] != nil {
		t.Fatalf("allowed tool call gained error metadata: %+v", allowed.Metadata)
	}
	if tr.GetRun(ctx, run.ID).Status != domain.RunStatusRunning {
		t.Fatalf("allowed tool must not pause the run")
	}

	tr.StartStep(ctx, run.ID, domain.StepParams{Type: domain.StepTypeToolCall, Name: "mail.send_bulk"})
	got := tr.GetRun(ctx, run.ID)
	if got.Status != domain.RunStatusWaitingApproval {
		t.Fatalf("expected waiting_approval, got %s", got.Status)
	}
	if got.Metadata["pending_tool"] != "mail.send_bulk" {
		t.Fatalf("unexpected metadata: %+v", got.Metadata)
	}
}

func TestNonToolStepsSkipPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	tr := New(nil, engine)
	t.Cleanup(tr.Close)

	run := startTestRun(t, tr, domain.StartRunParams{})
	step := tr.LogStep(ctx, run.ID, domain.LogStepParams{
		StepParams: domain.StepParams{Type: domain.StepTypeThinking, Name: "mail.send_bulk"},
	})
	if step.Metadata["error"] != nil {
		t.Fatalf("non-tool step must skip policy: %+v", step.Metadata)
	}
	if tr.GetRun(ctx, run.ID).Status != domain.RunStatusRunning {
		t.Fatalf("non-tool step must not pause the run")
	}
}
