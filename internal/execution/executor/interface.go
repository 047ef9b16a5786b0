// Package executor defines how individual diagnostic scripts are run.
package executor

import (
	"context"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
)

// ScriptExecutor runs one diagnostic script and reports its outcome. The
// scheduler guarantees every ancestor succeeded before Execute is called.
type ScriptExecutor interface {
	Execute(ctx context.Context, input ScriptInput) (ScriptResult, error)
}

type ScriptInput struct {
	RunID      string
	RecipeID   string
	Diagnostic string
	Script     domain.PlanScript
}

type ScriptResult struct {
	Status  domain.ScriptState
	Message string
	Output  []byte
}
