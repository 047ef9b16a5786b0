package plan

import (
	"encoding/json"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
)

// MarshalExecutionPlan serializes an execution plan with stable field names.
func MarshalExecutionPlan(plan domain.ExecutionPlan) ([]byte, error) {
	payload := executionPlanPayload{
		RunID:       plan.RunID,
		RecipeID:    plan.RecipeID,
		Diagnostics: make([]planDiagnosticPayload, 0, len(plan.Diagnostics)),
	}
	for _, diagnostic := range plan.Diagnostics {
		dp := planDiagnosticPayload{
			Name:    diagnostic.Name,
			Scripts: make([]planScriptPayload, 0, len(diagnostic.Scripts)),
			Edges:   make([]planEdgePayload, 0, len(diagnostic.Edges)),
		}
		for _, script := range diagnostic.Scripts {
			dp.Scripts = append(dp.Scripts, planScriptPayload{
				Name:   script.Name,
				Script: script.Script,
			})
		}
		for _, edge := range diagnostic.Edges {
			dp.Edges = append(dp.Edges, planEdgePayload{From: edge.From, To: edge.To})
		}
		payload.Diagnostics = append(payload.Diagnostics, dp)
	}
	return json.Marshal(payload)
}

// UnmarshalExecutionPlan parses a persisted plan JSON into a domain ExecutionPlan.
func UnmarshalExecutionPlan(raw []byte) (domain.ExecutionPlan, error) {
	var payload executionPlanPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.ExecutionPlan{}, err
	}
	diagnostics := make([]domain.PlanDiagnostic, 0, len(payload.Diagnostics))
	for _, dp := range payload.Diagnostics {
		diagnostic := domain.PlanDiagnostic{
			Name:    dp.Name,
			Scripts: make([]domain.PlanScript, 0, len(dp.Scripts)),
			Edges:   make([]domain.PlanEdge, 0, len(dp.Edges)),
		}
		for _, script := range dp.Scripts {
			diagnostic.Scripts = append(diagnostic.Scripts, domain.PlanScript{
				Name:   script.Name,
				Script: script.Script,
			})
		}
		for _, edge := range dp.Edges {
			diagnostic.Edges = append(diagnostic.Edges, domain.PlanEdge{From: edge.From, To: edge.To})
		}
		diagnostics = append(diagnostics, diagnostic)
	}
	return domain.ExecutionPlan{
		RunID:       payload.RunID,
		RecipeID:    payload.RecipeID,
		Diagnostics: diagnostics,
	}, nil
}

type executionPlanPayload struct {
	RunID       string                  `json:"runId"`
	RecipeID    string                  `json:"recipeId"`
	Diagnostics []planDiagnosticPayload `json:"diagnostics"`
}

type planDiagnosticPayload struct {
	Name    string              `json:"name"`
	Scripts []planScriptPayload `json:"scripts"`
	Edges   []planEdgePayload   `json:"edges"`
}

type planScriptPayload struct {
	Name   string `json:"name"`
	Script string `json:"script"`
}

type planEdgePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}
