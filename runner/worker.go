package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
	"github.com/aeolus-labs/aeolus-go/internal/execution/plan"
	"github.com/aeolus-labs/aeolus-go/internal/execution/scheduler"
	"github.com/aeolus-labs/aeolus-go/internal/execution/state"
	"github.com/aeolus-labs/aeolus-go/internal/platform/provenance"
	"github.com/aeolus-labs/aeolus-go/internal/repo"
)

type outputStore interface {
	PutScriptOutput(ctx context.Context, runID, diagnostic, script string, raw []byte) (string, error)
}

type runnerConfig struct {
	Interval   time.Duration
	ClaimBatch int
	Workers    int
}

// runnerWorker claims planned runs, drives their plans through the scheduler,
// and records the derived terminal state. Claiming uses row locks, so several
// runner replicas can poll the same database.
type runnerWorker struct {
	logger  *slog.Logger
	runs    repo.RunRepository
	plans   repo.PlanRepository
	records repo.ScriptExecutionRepository
	sched   *scheduler.Scheduler
	outputs outputStore
	db      *sql.DB

	interval   time.Duration
	claimBatch int
	now        func() time.Time
}

func newRunnerWorker(logger *slog.Logger, runs repo.RunRepository, plans repo.PlanRepository, records repo.ScriptExecutionRepository, sched *scheduler.Scheduler, outputs outputStore, db *sql.DB, cfg runnerConfig) *runnerWorker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	claimBatch := cfg.ClaimBatch
	if claimBatch <= 0 {
		claimBatch = 5
	}
	return &runnerWorker{
		logger:     logger,
		runs:       runs,
		plans:      plans,
		records:    records,
		sched:      sched,
		outputs:    outputs,
		db:         db,
		interval:   interval,
		claimBatch: claimBatch,
		now:        time.Now,
	}
}

func (w *runnerWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *runnerWorker) pollOnce(ctx context.Context) {
	claimed, err := w.runs.ClaimPlanned(ctx, w.claimBatch)
	if err != nil {
		w.logger.Error("claim planned runs", "error", err)
		return
	}
	for _, run := range claimed {
		if err := w.processRun(ctx, run); err != nil {
			w.logger.Error("process run", "run_id", run.ID, "error", err)
			w.finishRun(ctx, run.ID, domain.RunStateFailed)
		}
	}
}

func (w *runnerWorker) processRun(ctx context.Context, run domain.Run) error {
	record, err := w.plans.GetPlan(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	built, err := plan.UnmarshalExecutionPlan(record.Plan)
	if err != nil {
		return fmt.Errorf("decode plan: %w", err)
	}

	w.logger.Info("run started", "run_id", run.ID, "recipe_id", run.RecipeID, "scripts", built.ScriptCount())
	if err := w.sched.Run(ctx, built); err != nil {
		return fmt.Errorf("execute plan: %w", err)
	}

	executions, err := w.records.ListByRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("list script executions: %w", err)
	}
	w.storeOutputs(ctx, run, executions)

	derived := state.DeriveRunState(&built, executions)
	w.finishRun(ctx, run.ID, derived)
	w.appendProvenance(ctx, provenance.Event{
		OccurredAt:  w.now().UTC(),
		Actor:       "runner",
		SubjectType: provenance.TypeRun,
		SubjectID:   run.ID,
		Predicate:   provenance.PredicateExecutedBy,
		ObjectType:  provenance.TypeRecipe,
		ObjectID:    run.RecipeID,
		Metadata: map[string]any{
			"state":   string(derived),
			"scripts": len(executions),
		},
	})
	w.logger.Info("run finished", "run_id", run.ID, "state", string(derived))
	return nil
}

// storeOutputs persists each script result and links it to the run. Output
// storage is best effort: a failed upload never overrides the derived state.
func (w *runnerWorker) storeOutputs(ctx context.Context, run domain.Run, executions []repo.ScriptExecutionRecord) {
	if w.outputs == nil {
		return
	}
	for _, execution := range executions {
		if len(execution.Result) == 0 {
			continue
		}
		key, err := w.outputs.PutScriptOutput(ctx, run.ID, execution.Diagnostic, execution.ScriptName, execution.Result)
		if err != nil {
			w.logger.Error("store script output", "run_id", run.ID, "script", execution.ScriptName, "error", err)
			continue
		}
		w.appendProvenance(ctx, provenance.Event{
			OccurredAt:  w.now().UTC(),
			Actor:       "runner",
			SubjectType: provenance.TypeScript,
			SubjectID:   execution.Diagnostic + "/" + execution.ScriptName,
			Predicate:   provenance.PredicateProduced,
			ObjectType:  provenance.TypeScriptOutput,
			ObjectID:    key,
			Metadata: map[string]any{
				"run_id": run.ID,
				"status": execution.Status,
			},
		})
	}
}

func (w *runnerWorker) finishRun(ctx context.Context, runID string, derived domain.RunState) {
	switch derived {
	case domain.RunStateSucceeded, domain.RunStateFailed:
	default:
		// The scheduler records every script before returning, so anything
		// short of a terminal state means the run was interrupted.
		derived = domain.RunStateFailed
	}
	finishedAt := w.now().UTC()
	if err := w.runs.UpdateRunStatus(ctx, runID, string(derived), &finishedAt); err != nil {
		w.logger.Error("update run status", "run_id", runID, "error", err)
	}
}

func (w *runnerWorker) appendProvenance(ctx context.Context, event provenance.Event) {
	if w.db == nil {
		return
	}
	provCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
	defer cancel()
	_, _ = provenance.Insert(provCtx, w.db, event)
}
