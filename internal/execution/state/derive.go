// Package state derives run state from the persisted plan and the recorded
// script outcomes. The derivation is pure so the registry and the runner
// always agree on what state a run is in.
package state

import (
	"strings"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
	"github.com/aeolus-labs/aeolus-go/internal/repo"
)

// DeriveRunState computes the deterministic run state from the plan and the
// script executions recorded so far.
func DeriveRunState(plan *domain.ExecutionPlan, executions []repo.ScriptExecutionRecord) domain.RunState {
	if plan == nil {
		return domain.RunStateCreated
	}
	// A plan with no scripts has nothing left to execute.
	if plan.ScriptCount() == 0 {
		return domain.RunStateSucceeded
	}
	if len(executions) == 0 {
		return domain.RunStatePlanned
	}

	outcomes := groupByScript(executions)
	incomplete := false
	anyFailed := false

	for _, diagnostic := range plan.Diagnostics {
		failed := map[string]struct{}{}
		skipped := map[string]struct{}{}
		for _, script := range diagnostic.Scripts {
			outcome, ok := outcomes[scriptKey(diagnostic.Name, script.Name)]
			if !ok {
				incomplete = true
				continue
			}
			switch outcome {
			case domain.ScriptStateFailed:
				failed[script.Name] = struct{}{}
			case domain.ScriptStateSkipped:
				skipped[script.Name] = struct{}{}
			}
		}
		if len(failed) > 0 {
			anyFailed = true
		}
		// A skip without a failed ancestor means the runner dropped a
		// script it should have executed.
		if len(skipped) > 0 && !skipsHaveFailedAncestor(diagnostic, failed, skipped) {
			anyFailed = true
		}
	}

	if anyFailed {
		return domain.RunStateFailed
	}
	if incomplete {
		return domain.RunStateRunning
	}
	return domain.RunStateSucceeded
}

// ScriptOutcome returns the recorded terminal state of one script, if any.
func ScriptOutcome(executions []repo.ScriptExecutionRecord, diagnostic, script string) (domain.ScriptState, bool) {
	outcome, ok := groupByScript(executions)[scriptKey(diagnostic, script)]
	return outcome, ok
}

func groupByScript(executions []repo.ScriptExecutionRecord) map[string]domain.ScriptState {
	out := make(map[string]domain.ScriptState, len(executions))
	for _, record := range executions {
		diagnostic := strings.TrimSpace(record.Diagnostic)
		script := strings.TrimSpace(record.ScriptName)
		if diagnostic == "" || script == "" {
			continue
		}
		state, ok := domain.NormalizeScriptState(record.Status)
		if !ok {
			continue
		}
		out[scriptKey(diagnostic, script)] = state
	}
	return out
}

func scriptKey(diagnostic, script string) string {
	return diagnostic + "/" + script
}

func skipsHaveFailedAncestor(diagnostic domain.PlanDiagnostic, failed, skipped map[string]struct{}) bool {
	deps := reverseDependencies(diagnostic.Edges)
	for script := range skipped {
		if !hasFailedAncestor(script, deps, failed, skipped, map[string]struct{}{}) {
			return false
		}
	}
	return true
}

func reverseDependencies(edges []domain.PlanEdge) map[string][]string {
	out := make(map[string][]string)
	for _, edge := range edges {
		from := strings.TrimSpace(edge.From)
		to := strings.TrimSpace(edge.To)
		if from == "" || to == "" {
			continue
		}
		out[to] = append(out[to], from)
	}
	return out
}

func hasFailedAncestor(script string, deps map[string][]string, failed, skipped, visited map[string]struct{}) bool {
	if _, ok := visited[script]; ok {
		return false
	}
	visited[script] = struct{}{}
	for _, parent := range deps[script] {
		if _, ok := failed[parent]; ok {
			return true
		}
		// A skipped ancestor justifies a skip when the chain leads back to
		// a failure.
		if _, ok := skipped[parent]; ok {
			if hasFailedAncestor(parent, deps, failed, skipped, visited) {
				return true
			}
			continue
		}
		if hasFailedAncestor(parent, deps, failed, skipped, visited) {
			return true
		}
	}
	return false
}
