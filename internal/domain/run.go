package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RunState is the lifecycle state of a recipe run.
type RunState string

const (
	RunStateCreated   RunState = "created"
	RunStatePlanned   RunState = "planned"
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
)

// ScriptState is the terminal outcome of a single script execution.
type ScriptState string

const (
	ScriptStateSucceeded ScriptState = "succeeded"
	ScriptStateFailed    ScriptState = "failed"
	ScriptStateSkipped   ScriptState = "skipped"
)

// Run is one execution of a recipe.
type Run struct {
	ID         string
	RecipeID   string
	Status     RunState
	CreatedAt  time.Time
	CreatedBy  string
	FinishedAt *time.Time
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.RecipeID) == "" {
		return errors.New("recipe id is required")
	}
	if NormalizeRunState(string(r.Status)) == "" {
		return fmt.Errorf("invalid run status %q", r.Status)
	}
	return nil
}

func NormalizeRunState(value string) RunState {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(RunStateCreated):
		return RunStateCreated
	case string(RunStatePlanned):
		return RunStatePlanned
	case string(RunStateRunning):
		return RunStateRunning
	case string(RunStateSucceeded):
		return RunStateSucceeded
	case string(RunStateFailed):
		return RunStateFailed
	default:
		return ""
	}
}

func NormalizeScriptState(value string) (ScriptState, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(ScriptStateSucceeded):
		return ScriptStateSucceeded, true
	case string(ScriptStateFailed):
		return ScriptStateFailed, true
	case string(ScriptStateSkipped):
		return ScriptStateSkipped, true
	default:
		return "", false
	}
}
