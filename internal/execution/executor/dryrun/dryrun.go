// Package dryrun simulates script execution without running diagnostic code.
// Outcomes are derived deterministically from the run and script identity so
// repeated dry runs of the same run agree.
package dryrun

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
	"github.com/aeolus-labs/aeolus-go/internal/execution/executor"
)

const successThreshold = 0.95

type outcomeDecider func(runID, diagnostic, script string) float64

type Executor struct {
	decide outcomeDecider
}

func New() *Executor {
	return &Executor{decide: deterministicScore}
}

func (e *Executor) Execute(ctx context.Context, input executor.ScriptInput) (executor.ScriptResult, error) {
	runID := strings.TrimSpace(input.RunID)
	diagnostic := strings.TrimSpace(input.Diagnostic)
	script := strings.TrimSpace(input.Script.Name)
	if runID == "" {
		return executor.ScriptResult{}, fmt.Errorf("run id is required")
	}
	if diagnostic == "" {
		return executor.ScriptResult{}, fmt.Errorf("diagnostic is required")
	}
	if script == "" {
		return executor.ScriptResult{}, fmt.Errorf("script name is required")
	}
	if err := ctx.Err(); err != nil {
		return executor.ScriptResult{}, err
	}

	score := e.decide(runID, diagnostic, script)
	payload := map[string]any{
		"dry_run":    true,
		"diagnostic": diagnostic,
		"script":     script,
		"score":      score,
	}
	output, err := json.Marshal(payload)
	if err != nil {
		return executor.ScriptResult{}, fmt.Errorf("encode dry run result: %w", err)
	}

	if score >= successThreshold {
		return executor.ScriptResult{
			Status:  domain.ScriptStateFailed,
			Message: "simulated failure",
			Output:  output,
		}, nil
	}
	return executor.ScriptResult{
		Status: domain.ScriptStateSucceeded,
		Output: output,
	}, nil
}

func deterministicScore(runID, diagnostic, script string) float64 {
	seed := fmt.Sprintf("%s:%s:%s", runID, diagnostic, script)
	sum := sha256.Sum256([]byte(seed))
	value := binary.BigEndian.Uint64(sum[:8])
	return float64(value) / float64(math.MaxUint64)
}
