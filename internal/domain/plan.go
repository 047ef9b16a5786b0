package domain

// ExecutionPlan is the deterministic schedule derived from a recipe's
// diagnostics. Scripts within a diagnostic are listed in topological order of
// the ancestor relation; diagnostics are independent of each other.
type ExecutionPlan struct {
	RunID       string
	RecipeID    string
	Diagnostics []PlanDiagnostic
}

type PlanDiagnostic struct {
	Name    string
	Scripts []PlanScript
	Edges   []PlanEdge
}

type PlanScript struct {
	Name   string
	Script string
}

// PlanEdge is an execution-order constraint: From completes before To starts.
type PlanEdge struct {
	From string
	To   string
}

// Diagnostic returns the planned diagnostic with the given name.
func (p ExecutionPlan) Diagnostic(name string) (PlanDiagnostic, bool) {
	for _, d := range p.Diagnostics {
		if d.Name == name {
			return d, true
		}
	}
	return PlanDiagnostic{}, false
}

// ScriptCount returns the total number of scripts across all diagnostics.
func (p ExecutionPlan) ScriptCount() int {
	n := 0
	for _, d := range p.Diagnostics {
		n += len(d.Scripts)
	}
	return n
}
