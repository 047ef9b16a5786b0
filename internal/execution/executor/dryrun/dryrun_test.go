package dryrun

import (
	"context"
	"testing"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
	"github.com/aeolus-labs/aeolus-go/internal/execution/executor"
)

func TestExecuteIsDeterministic(t *testing.T) {
	e := New()
	input := executor.ScriptInput{
		RunID:      "run-1",
		Diagnostic: "diagnostic1",
		Script:     domain.PlanScript{Name: "script1a", Script: "a.py"},
	}

	first, err := e.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := e.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Status != second.Status {
		t.Fatalf("outcome changed between runs: %s vs %s", first.Status, second.Status)
	}
	if len(first.Output) == 0 {
		t.Fatal("expected a result payload")
	}
}

func TestExecuteForcedOutcomes(t *testing.T) {
	e := New()
	e.decide = func(runID, diagnostic, script string) float64 { return 0.99 }
	result, err := e.Execute(context.Background(), executor.ScriptInput{
		RunID:      "run-1",
		Diagnostic: "d1",
		Script:     domain.PlanScript{Name: "a"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.ScriptStateFailed {
		t.Fatalf("expected failure above threshold, got %s", result.Status)
	}

	e.decide = func(runID, diagnostic, script string) float64 { return 0.1 }
	result, err = e.Execute(context.Background(), executor.ScriptInput{
		RunID:      "run-1",
		Diagnostic: "d1",
		Script:     domain.PlanScript{Name: "a"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.ScriptStateSucceeded {
		t.Fatalf("expected success below threshold, got %s", result.Status)
	}
}

func TestExecuteValidatesInput(t *testing.T) {
	e := New()
	if _, err := e.Execute(context.Background(), executor.ScriptInput{}); err == nil {
		t.Fatal("expected error for empty input")
	}
}
