// Package plan derives deterministic execution plans from validated recipes.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
	"github.com/aeolus-labs/aeolus-go/internal/recipe/validate"
)

// BuildPlan generates a deterministic execution plan from a recipe. Scripts
// within each diagnostic are ordered topologically by the ancestor relation;
// ties break alphabetically so the same recipe always yields the same plan.
func BuildPlan(rec domain.Recipe, runID, recipeID string) (domain.ExecutionPlan, error) {
	runID = strings.TrimSpace(runID)
	recipeID = strings.TrimSpace(recipeID)
	if runID == "" {
		return domain.ExecutionPlan{}, fmt.Errorf("run id is required")
	}
	if recipeID == "" {
		return domain.ExecutionPlan{}, fmt.Errorf("recipe id is required")
	}

	if err := validate.ValidateRecipe(rec); err != nil {
		return domain.ExecutionPlan{}, err
	}

	diagnostics := make([]domain.PlanDiagnostic, 0, len(rec.Diagnostics))
	for _, diagnostic := range rec.Diagnostics {
		planned, err := planDiagnostic(diagnostic)
		if err != nil {
			return domain.ExecutionPlan{}, fmt.Errorf("diagnostic %s: %w", diagnostic.Name, err)
		}
		diagnostics = append(diagnostics, planned)
	}

	return domain.ExecutionPlan{
		RunID:       runID,
		RecipeID:    recipeID,
		Diagnostics: diagnostics,
	}, nil
}

func planDiagnostic(diagnostic domain.Diagnostic) (domain.PlanDiagnostic, error) {
	ordered, err := topoSortScripts(diagnostic)
	if err != nil {
		return domain.PlanDiagnostic{}, err
	}

	scripts := make([]domain.PlanScript, 0, len(ordered))
	for _, script := range ordered {
		scripts = append(scripts, domain.PlanScript{
			Name:   script.Name,
			Script: script.Script,
		})
	}

	ancestorEdges := diagnostic.AncestorEdges()
	edges := make([]domain.PlanEdge, 0, len(ancestorEdges))
	for _, edge := range ancestorEdges {
		edges = append(edges, domain.PlanEdge{From: edge.From, To: edge.To})
	}

	return domain.PlanDiagnostic{
		Name:    diagnostic.Name,
		Scripts: scripts,
		Edges:   edges,
	}, nil
}

func topoSortScripts(diagnostic domain.Diagnostic) ([]domain.Script, error) {
	scriptMap := make(map[string]domain.Script, len(diagnostic.Scripts))
	for _, script := range diagnostic.Scripts {
		scriptMap[script.Name] = script
	}

	inDegree := make(map[string]int, len(scriptMap))
	adj := make(map[string][]string, len(scriptMap))
	for name := range scriptMap {
		inDegree[name] = 0
	}
	for _, edge := range diagnostic.AncestorEdges() {
		adj[edge.From] = append(adj[edge.From], edge.To)
		inDegree[edge.To]++
	}

	ready := make([]string, 0, len(scriptMap))
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	ordered := make([]domain.Script, 0, len(scriptMap))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, scriptMap[name])
		for _, neighbor := range adj[name] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				ready = append(ready, neighbor)
				sort.Strings(ready)
			}
		}
	}

	if len(ordered) != len(scriptMap) {
		return nil, fmt.Errorf("ancestor graph contains a cycle")
	}
	return ordered, nil
}
