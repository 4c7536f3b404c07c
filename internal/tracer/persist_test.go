package tracer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aacamara/cscx-mvp6-sub017/internal/domain"
	"github.com/aacamara/cscx-mvp6-sub017/tests/helpers"
)

type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) InsertRun(context.Context, *domain.Run) error   { return errStoreDown }
func (failingStore) UpdateRun(context.Context, *domain.Run) error   { return errStoreDown }
func (failingStore) InsertStep(context.Context, *domain.Step) error { return errStoreDown }
func (failingStore) UpdateStep(context.Context, *domain.Step) error { return errStoreDown }
func (failingStore) SelectRunWithSteps(context.Context, string) (*domain.Run, error) {
	return nil, errStoreDown
}
func (failingStore) SelectRunsByUser(context.Context, string, int) ([]*domain.Run, error) {
	return nil, errStoreDown
}
func (failingStore) SelectRecentRuns(context.Context, int) ([]*domain.Run, error) {
	return nil, errStoreDown
}

func TestRunMirroredToStore(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	tr := New(store, nil)
	t.Cleanup(tr.Close)
	ctx := context.Background()

	run := startTestRun(t, tr, domain.StartRunParams{Input: "renew the contract"})
	step := tr.StartStep(ctx, run.ID, domain.StepParams{
		Type: domain.StepTypeToolCall,
		Name: "crm.get_account",
	})
	tr.EndStep(ctx, step.ID, domain.EndStepParams{
		Output: "account found",
		Tokens: &domain.TokenUsage{Input: 12, Output: 7},
	})
	tr.EndRun(ctx, run.ID, domain.EndRunParams{Status: domain.RunStatusCompleted, Output: "renewed"})
	tr.Flush()

	stored, err := store.SelectRunWithSteps(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to read stored run: %v", err)
	}
	if stored == nil {
		t.Fatalf("run %s not mirrored to store", run.ID)
	}
	if stored.Status != domain.RunStatusCompleted || stored.Output != "renewed" {
		t.Fatalf("stored run out of date: status=%s output=%q", stored.Status, stored.Output)
	}
	if stored.EndTime == nil {
		t.Fatalf("stored run missing end time")
	}
	if len(stored.Steps) != 1 {
		t.Fatalf("expected 1 stored step, got %d", len(stored.Steps))
	}
	got := stored.Steps[0]
	if got.Output != "account found" || got.Tokens == nil || got.Tokens.Input != 12 {
		t.Fatalf("stored step out of date: %+v", got)
	}
	if stored.TotalTokens.Input != 12 || stored.TotalTokens.Output != 7 {
		t.Fatalf("stored run token totals out of date: %+v", stored.TotalTokens)
	}
}

func TestGetRunFallsBackToStoreAfterEviction(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	tr := New(store, nil)
	t.Cleanup(tr.Close)
	ctx := context.Background()

	run := startTestRun(t, tr, domain.StartRunParams{})
	tr.LogStep(ctx, run.ID, domain.LogStepParams{
		StepParams: domain.StepParams{Type: domain.StepTypeThinking, Name: "plan"},
		Output:     "ok",
	})
	tr.EndRun(ctx, run.ID, domain.EndRunParams{Status: domain.RunStatusCompleted})
	tr.Flush()

	if evicted := tr.Cleanup(0, time.Nanosecond); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}

	got := tr.GetRun(ctx, run.ID)
	if got == nil {
		t.Fatalf("evicted run not readable from store")
	}
	if got.ID != run.ID || len(got.Steps) != 1 {
		t.Fatalf("store read incomplete: %+v", got)
	}
}

func TestFailingStoreDoesNotAffectOperations(t *testing.T) {
	tr := New(failingStore{}, nil)
	t.Cleanup(tr.Close)
	ctx := context.Background()

	run := startTestRun(t, tr, domain.StartRunParams{UserID: "u1"})
	step := tr.StartStep(ctx, run.ID, domain.StepParams{Type: domain.StepTypeThinking, Name: "plan"})
	if step == nil {
		t.Fatalf("step rejected with failing store")
	}
	tr.EndStep(ctx, step.ID, domain.EndStepParams{Output: "done"})
	tr.Flush()

	got := tr.GetRun(ctx, run.ID)
	if got == nil || len(got.Steps) != 1 {
		t.Fatalf("in-memory run damaged by failing store")
	}

	userRuns := tr.GetUserRuns(ctx, "u1", 10)
	if len(userRuns) != 1 || userRuns[0].ID != run.ID {
		t.Fatalf("user run query did not fall back to memory: %+v", userRuns)
	}

	ended := tr.EndRun(ctx, run.ID, domain.EndRunParams{Status: domain.RunStatusCompleted})
	if ended == nil || ended.Status != domain.RunStatusCompleted {
		t.Fatalf("run could not be ended with failing store")
	}
}
