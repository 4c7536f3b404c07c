package tracer

import (
	"context"
	"testing"

	"github.com/aacamara/cscx-mvp6-sub017/internal/domain"
	"github.com/aacamara/cscx-mvp6-sub017/tests/helpers"
)

func seedStatsRuns(t *testing.T, tr *Tracer) {
	t.Helper()
	ctx := context.Background()

	a := startTestRun(t, tr, domain.StartRunParams{AgentName: "renewal-agent"})
	tr.LogStep(ctx, a.ID, domain.LogStepParams{
		StepParams: domain.StepParams{Type: domain.StepTypeLLMCall, Name: "draft"},
		Tokens:     &domain.TokenUsage{Input: 100, Output: 50},
	})
	tr.EndRun(ctx, a.ID, domain.EndRunParams{Status: domain.RunStatusCompleted, Output: "done"})

	b := startTestRun(t, tr, domain.StartRunParams{AgentName: "renewal-agent"})
	tr.EndRun(ctx, b.ID, domain.EndRunParams{Status: domain.RunStatusFailed, Error: "boom"})

	startTestRun(t, tr, domain.StartRunParams{AgentName: "onboarding-agent"})
}

func verifyStats(t *testing.T, stats domain.TraceStats) {
	t.Helper()
	if stats.TotalRuns != 3 {
		t.Fatalf("expected 3 total runs, got %d", stats.TotalRuns)
	}
	if stats.ActiveRuns != 1 {
		t.Fatalf("expected 1 active run, got %d", stats.ActiveRuns)
	}
	if stats.TotalTokens.Input != 100 || stats.TotalTokens.Output != 50 {
		t.Fatalf("unexpected token totals: %+v", stats.TotalTokens)
	}
	if stats.RunsByAgent["renewal-agent"] != 2 || stats.RunsByAgent["onboarding-agent"] != 1 {
		t.Fatalf("unexpected agent breakdown: %+v", stats.RunsByAgent)
	}
	if stats.RunsByStatus["completed"] != 1 || stats.RunsByStatus["failed"] != 1 || stats.RunsByStatus["running"] != 1 {
		t.Fatalf("unexpected status breakdown: %+v", stats.RunsByStatus)
	}
	if stats.AvgDurationMs < 0 {
		t.Fatalf("negative average duration")
	}
}

func TestGetStatsFromMemory(t *testing.T) {
	tr := newTestTracer(t)
	seedStatsRuns(t, tr)
	verifyStats(t, tr.GetStats(context.Background()))
}

func TestGetStatsFromStoreSameShape(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	tr := New(store, nil)
	t.Cleanup(tr.Close)

	seedStatsRuns(t, tr)
	tr.Flush()

	verifyStats(t, tr.GetStats(context.Background()))
}

func TestGetStatsActiveCountAlwaysFromMemory(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	tr := New(store, nil)
	t.Cleanup(tr.Close)

	run := startTestRun(t, tr, domain.StartRunParams{})
	tr.Flush()

	stats := tr.GetStats(context.Background())
	if stats.ActiveRuns != 1 {
		t.Fatalf("expected 1 active run, got %d", stats.ActiveRuns)
	}

	tr.EndRun(context.Background(), run.ID, domain.EndRunParams{Status: domain.RunStatusCompleted})
	stats = tr.GetStats(context.Background())
	if stats.ActiveRuns != 0 {
		t.Fatalf("expected 0 active runs, got %d", stats.ActiveRuns)
	}
}
