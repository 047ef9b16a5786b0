package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
	"github.com/aeolus-labs/aeolus-go/internal/execution/executor"
	"github.com/aeolus-labs/aeolus-go/internal/execution/plan"
	"github.com/aeolus-labs/aeolus-go/internal/execution/scheduler"
	"github.com/aeolus-labs/aeolus-go/internal/repo"
)

type fakeRunStore struct {
	mu   sync.Mutex
	runs map[string]domain.Run
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: map[string]domain.Run{}}
}

func (f *fakeRunStore) CreateRun(_ context.Context, run domain.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRunStore) GetRun(_ context.Context, id string) (domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return domain.Run{}, repo.ErrNotFound
	}
	return run, nil
}

func (f *fakeRunStore) ListRuns(_ context.Context, _ repo.RunFilter) ([]domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Run, 0, len(f.runs))
	for _, run := range f.runs {
		out = append(out, run)
	}
	return out, nil
}

func (f *fakeRunStore) UpdateRunStatus(_ context.Context, id string, status string, finishedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	run.Status = domain.NormalizeRunState(status)
	run.FinishedAt = finishedAt
	f.runs[id] = run
	return nil
}

func (f *fakeRunStore) ClaimPlanned(_ context.Context, limit int) ([]domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.runs))
	for id, run := range f.runs {
		if run.Status == domain.RunStatePlanned {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	claimed := make([]domain.Run, 0, len(ids))
	for _, id := range ids {
		run := f.runs[id]
		run.Status = domain.RunStateRunning
		f.runs[id] = run
		claimed = append(claimed, run)
	}
	return claimed, nil
}

type fakePlanStore struct {
	mu    sync.Mutex
	plans map[string]repo.PlanRecord
}

func newFakePlanStore() *fakePlanStore {
	return &fakePlanStore{plans: map[string]repo.PlanRecord{}}
}

func (f *fakePlanStore) UpsertPlan(_ context.Context, runID, recipeID string, planJSON []byte) (repo.PlanRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record := repo.PlanRecord{ID: runID, RunID: runID, RecipeID: recipeID, Plan: append([]byte(nil), planJSON...)}
	f.plans[runID] = record
	return record, nil
}

func (f *fakePlanStore) GetPlan(_ context.Context, runID string) (repo.PlanRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.plans[runID]
	if !ok {
		return repo.PlanRecord{}, repo.ErrNotFound
	}
	return record, nil
}

type fakeExecutionStore struct {
	mu      sync.Mutex
	records []repo.ScriptExecutionRecord
}

func (f *fakeExecutionStore) Insert(_ context.Context, record repo.ScriptExecutionRecord) (repo.ScriptExecutionRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.records {
		if existing.RunID == record.RunID && existing.Diagnostic == record.Diagnostic && existing.ScriptName == record.ScriptName {
			return existing, false, nil
		}
	}
	f.records = append(f.records, record)
	return record, true, nil
}

func (f *fakeExecutionStore) ListByRun(_ context.Context, runID string) ([]repo.ScriptExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]repo.ScriptExecutionRecord, 0, len(f.records))
	for _, record := range f.records {
		if record.RunID == runID {
			out = append(out, record)
		}
	}
	return out, nil
}

type fakeOutputStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeOutputStore() *fakeOutputStore {
	return &fakeOutputStore{objects: map[string][]byte{}}
}

func (f *fakeOutputStore) PutScriptOutput(_ context.Context, runID, diagnostic, script string, raw []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := "runs/" + runID + "/" + diagnostic + "/" + script + ".json"
	f.objects[key] = append([]byte(nil), raw...)
	return key, nil
}

type stubExecutor struct {
	mu       sync.Mutex
	failures map[string]bool
	executed []string
}

func (e *stubExecutor) Execute(_ context.Context, input executor.ScriptInput) (executor.ScriptResult, error) {
	e.mu.Lock()
	e.executed = append(e.executed, input.Diagnostic+"/"+input.Script.Name)
	fail := e.failures[input.Script.Name]
	e.mu.Unlock()
	if fail {
		return executor.ScriptResult{}, errors.New("script exited with status 1")
	}
	return executor.ScriptResult{Status: domain.ScriptStateSucceeded, Output: []byte(`{"ok":true}`)}, nil
}

type workerFixture struct {
	worker     *runnerWorker
	runs       *fakeRunStore
	plans      *fakePlanStore
	executions *fakeExecutionStore
	outputs    *fakeOutputStore
	exec       *stubExecutor
}

func newWorkerFixture(t *testing.T) workerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runs := newFakeRunStore()
	plans := newFakePlanStore()
	executions := &fakeExecutionStore{}
	outputs := newFakeOutputStore()
	exec := &stubExecutor{failures: map[string]bool{}}
	sched := scheduler.New(exec, executions, logger, 2)
	worker := newRunnerWorker(logger, runs, plans, executions, sched, outputs, nil, runnerConfig{Interval: time.Second, ClaimBatch: 5, Workers: 2})
	return workerFixture{worker: worker, runs: runs, plans: plans, executions: executions, outputs: outputs, exec: exec}
}

func seedPlannedRun(t *testing.T, fx workerFixture, runID string) domain.ExecutionPlan {
	t.Helper()
	built := domain.ExecutionPlan{
		RunID:    runID,
		RecipeID: "recipe-1",
		Diagnostics: []domain.PlanDiagnostic{
			{
				Name: "diagnostic1",
				Scripts: []domain.PlanScript{
					{Name: "preprocess", Script: "examples/preprocess.py"},
					{Name: "plot", Script: "examples/plot.py"},
				},
				Edges: []domain.PlanEdge{{From: "preprocess", To: "plot"}},
			},
		},
	}
	planJSON, err := plan.MarshalExecutionPlan(built)
	if err != nil {
		t.Fatalf("marshal plan: %v", err)
	}
	if _, err := fx.plans.UpsertPlan(context.Background(), runID, built.RecipeID, planJSON); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	if err := fx.runs.CreateRun(context.Background(), domain.Run{
		ID:        runID,
		RecipeID:  built.RecipeID,
		Status:    domain.RunStatePlanned,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	return built
}

func TestPollOnceFinishesClaimedRun(t *testing.T) {
	fx := newWorkerFixture(t)
	seedPlannedRun(t, fx, "run-1")

	fx.worker.pollOnce(context.Background())

	run, err := fx.runs.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != domain.RunStateSucceeded {
		t.Fatalf("run state = %q, want succeeded", run.Status)
	}
	if run.FinishedAt == nil {
		t.Fatalf("expected finished timestamp")
	}

	records, err := fx.executions.ListByRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("execution records = %d, want 2", len(records))
	}
	if len(fx.exec.executed) != 2 || fx.exec.executed[0] != "diagnostic1/preprocess" {
		t.Fatalf("execution order = %v", fx.exec.executed)
	}
	if len(fx.outputs.objects) != 2 {
		t.Fatalf("stored outputs = %d, want 2", len(fx.outputs.objects))
	}
	if _, ok := fx.outputs.objects["runs/run-1/diagnostic1/plot.json"]; !ok {
		t.Fatalf("missing plot output, have %v", keysOf(fx.outputs.objects))
	}
}

func TestPollOnceFailedScriptSkipsDependentsAndFailsRun(t *testing.T) {
	fx := newWorkerFixture(t)
	fx.exec.failures["preprocess"] = true
	seedPlannedRun(t, fx, "run-2")

	fx.worker.pollOnce(context.Background())

	run, err := fx.runs.GetRun(context.Background(), "run-2")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != domain.RunStateFailed {
		t.Fatalf("run state = %q, want failed", run.Status)
	}

	records, _ := fx.executions.ListByRun(context.Background(), "run-2")
	statuses := map[string]string{}
	for _, record := range records {
		statuses[record.ScriptName] = record.Status
	}
	if statuses["preprocess"] != string(domain.ScriptStateFailed) {
		t.Fatalf("preprocess status = %q", statuses["preprocess"])
	}
	if statuses["plot"] != string(domain.ScriptStateSkipped) {
		t.Fatalf("plot status = %q", statuses["plot"])
	}
	if len(fx.exec.executed) != 1 {
		t.Fatalf("skipped script must not execute, got %v", fx.exec.executed)
	}
}

func TestPollOnceScriptlessPlanSucceeds(t *testing.T) {
	fx := newWorkerFixture(t)
	built := domain.ExecutionPlan{
		RunID:    "run-4",
		RecipeID: "recipe-1",
		Diagnostics: []domain.PlanDiagnostic{
			{Name: "variables_only"},
		},
	}
	planJSON, err := plan.MarshalExecutionPlan(built)
	if err != nil {
		t.Fatalf("marshal plan: %v", err)
	}
	if _, err := fx.plans.UpsertPlan(context.Background(), "run-4", built.RecipeID, planJSON); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	if err := fx.runs.CreateRun(context.Background(), domain.Run{
		ID:        "run-4",
		RecipeID:  built.RecipeID,
		Status:    domain.RunStatePlanned,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	fx.worker.pollOnce(context.Background())

	run, err := fx.runs.GetRun(context.Background(), "run-4")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != domain.RunStateSucceeded {
		t.Fatalf("run status = %q, want succeeded", run.Status)
	}
	if run.FinishedAt == nil {
		t.Fatalf("expected finished timestamp")
	}
	if len(fx.exec.executed) != 0 {
		t.Fatalf("executed = %v, want none", fx.exec.executed)
	}
}

func TestPollOnceWithNothingPlanned(t *testing.T) {
	fx := newWorkerFixture(t)

	fx.worker.pollOnce(context.Background())

	if len(fx.exec.executed) != 0 {
		t.Fatalf("executed = %v, want none", fx.exec.executed)
	}
}

func TestPollOnceMissingPlanFailsRun(t *testing.T) {
	fx := newWorkerFixture(t)
	if err := fx.runs.CreateRun(context.Background(), domain.Run{
		ID:        "run-3",
		RecipeID:  "recipe-1",
		Status:    domain.RunStatePlanned,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	fx.worker.pollOnce(context.Background())

	run, err := fx.runs.GetRun(context.Background(), "run-3")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != domain.RunStateFailed {
		t.Fatalf("run state = %q, want failed", run.Status)
	}
}

func keysOf(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
