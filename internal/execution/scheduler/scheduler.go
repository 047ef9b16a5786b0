// Package scheduler executes a plan's scripts with a bounded worker pool.
// A script starts only after every ancestor succeeded; scripts downstream of
// a failure are recorded as skipped instead of executed.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
	"github.com/aeolus-labs/aeolus-go/internal/execution/executor"
	"github.com/aeolus-labs/aeolus-go/internal/repo"
)

const DefaultWorkers = 4

type Scheduler struct {
	executor executor.ScriptExecutor
	records  repo.ScriptExecutionRepository
	logger   *slog.Logger
	workers  int
	now      func() time.Time
}

func New(exec executor.ScriptExecutor, records repo.ScriptExecutionRepository, logger *slog.Logger, workers int) *Scheduler {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		executor: exec,
		records:  records,
		logger:   logger,
		workers:  workers,
		now:      time.Now,
	}
}

type task struct {
	key        string
	diagnostic string
	script     domain.PlanScript
	deps       []string
}

// Run executes every script in the plan and records each outcome. It returns
// once all scripts are terminal, or when the context is cancelled.
func (s *Scheduler) Run(ctx context.Context, plan domain.ExecutionPlan) error {
	if s == nil || s.executor == nil || s.records == nil {
		return fmt.Errorf("scheduler not initialized")
	}

	tasks := make(map[string]*task)
	dependents := make(map[string][]string)
	order := make([]string, 0, plan.ScriptCount())

	for _, diagnostic := range plan.Diagnostics {
		for _, script := range diagnostic.Scripts {
			key := taskKey(diagnostic.Name, script.Name)
			tasks[key] = &task{key: key, diagnostic: diagnostic.Name, script: script}
			order = append(order, key)
		}
		for _, edge := range diagnostic.Edges {
			from := taskKey(diagnostic.Name, edge.From)
			to := taskKey(diagnostic.Name, edge.To)
			tasks[to].deps = append(tasks[to].deps, from)
			dependents[from] = append(dependents[from], to)
		}
	}

	remaining := make(map[string]int, len(tasks))
	for key, t := range tasks {
		remaining[key] = len(t.deps)
	}

	// Plan order is already topological within each diagnostic, so the
	// initial ready queue is deterministic.
	ready := make([]string, 0, len(order))
	for _, key := range order {
		if remaining[key] == 0 {
			ready = append(ready, key)
		}
	}

	statuses := make(map[string]domain.ScriptState, len(tasks))
	type outcome struct {
		key   string
		state domain.ScriptState
	}
	results := make(chan outcome, len(tasks))
	inFlight := 0

	finish := func(key string, state domain.ScriptState) {
		statuses[key] = state
		for _, dependent := range dependents[key] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	for len(statuses) < len(tasks) {
		for inFlight < s.workers && len(ready) > 0 {
			key := ready[0]
			ready = ready[1:]
			t := tasks[key]

			if !depsSucceeded(t, statuses) {
				if err := s.recordSkip(ctx, plan.RunID, t); err != nil {
					return err
				}
				finish(key, domain.ScriptStateSkipped)
				continue
			}

			inFlight++
			go func(t *task) {
				results <- outcome{key: t.key, state: s.executeAndRecord(ctx, plan, t)}
			}(t)
		}

		if inFlight == 0 {
			if len(ready) == 0 && len(statuses) < len(tasks) {
				return fmt.Errorf("plan for run %s has unreachable scripts", plan.RunID)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-results:
			inFlight--
			finish(r.key, r.state)
		}
	}
	return nil
}

func depsSucceeded(t *task, statuses map[string]domain.ScriptState) bool {
	for _, dep := range t.deps {
		if statuses[dep] != domain.ScriptStateSucceeded {
			return false
		}
	}
	return true
}

func (s *Scheduler) executeAndRecord(ctx context.Context, plan domain.ExecutionPlan, t *task) domain.ScriptState {
	startedAt := s.now().UTC()
	result, err := s.executor.Execute(ctx, executor.ScriptInput{
		RunID:      plan.RunID,
		RecipeID:   plan.RecipeID,
		Diagnostic: t.diagnostic,
		Script:     t.script,
	})
	finishedAt := s.now().UTC()

	record := repo.ScriptExecutionRecord{
		RunID:      plan.RunID,
		Diagnostic: t.diagnostic,
		ScriptName: t.script.Name,
		StartedAt:  startedAt,
		FinishedAt: &finishedAt,
	}
	if err != nil {
		record.Status = string(domain.ScriptStateFailed)
		record.ErrorMessage = err.Error()
		s.logger.Error("script execution failed",
			"run_id", plan.RunID, "diagnostic", t.diagnostic, "script", t.script.Name, "error", err)
	} else {
		record.Status = string(result.Status)
		record.ErrorMessage = result.Message
		record.Result = result.Output
	}

	if _, _, insertErr := s.records.Insert(ctx, record); insertErr != nil {
		s.logger.Error("record script execution",
			"run_id", plan.RunID, "diagnostic", t.diagnostic, "script", t.script.Name, "error", insertErr)
		return domain.ScriptStateFailed
	}

	state, ok := domain.NormalizeScriptState(record.Status)
	if !ok {
		return domain.ScriptStateFailed
	}
	return state
}

func (s *Scheduler) recordSkip(ctx context.Context, runID string, t *task) error {
	now := s.now().UTC()
	record := repo.ScriptExecutionRecord{
		RunID:        runID,
		Diagnostic:   t.diagnostic,
		ScriptName:   t.script.Name,
		Status:       string(domain.ScriptStateSkipped),
		StartedAt:    now,
		FinishedAt:   &now,
		ErrorMessage: "ancestor did not succeed",
	}
	if _, _, err := s.records.Insert(ctx, record); err != nil {
		return fmt.Errorf("record skipped script %s/%s: %w", t.diagnostic, t.script.Name, err)
	}
	return nil
}

func taskKey(diagnostic, script string) string {
	return diagnostic + "/" + script
}
