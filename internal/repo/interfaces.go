// Package repo declares the persistence interfaces the services depend on.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// RecipeRecord is a registered recipe: identifying metadata in the database,
// the document itself in the object store under DocumentKey.
type RecipeRecord struct {
	ID             string
	Title          string
	Description    string
	DocumentKey    string
	DocumentSHA256 string
	CreatedAt      time.Time
	CreatedBy      string
}

type RecipeFilter struct {
	Title     string
	CreatedBy string
	Limit     int
}

type RunFilter struct {
	RecipeID string
	Status   string
	Limit    int
}

type CatalogFilter struct {
	Project string
	Dataset string
	Mip     string
	Limit   int
}

// PlanRecord is a persisted execution plan, stored as JSON.
type PlanRecord struct {
	ID        string
	RunID     string
	RecipeID  string
	Plan      []byte
	CreatedAt time.Time
}

// ScriptExecutionRecord is one script outcome within a run. The pair
// (run, diagnostic, script) is unique; inserts are idempotent.
type ScriptExecutionRecord struct {
	ID           string
	RunID        string
	Diagnostic   string
	ScriptName   string
	Status       string
	StartedAt    time.Time
	FinishedAt   *time.Time
	ErrorMessage string
	Result       []byte
}

// RecipeRepository manages registered recipes.
type RecipeRepository interface {
	CreateRecipe(ctx context.Context, record RecipeRecord) error
	GetRecipe(ctx context.Context, id string) (RecipeRecord, error)
	ListRecipes(ctx context.Context, filter RecipeFilter) ([]RecipeRecord, error)
}

// RunRepository manages run state with immutable identity.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.Run) error
	GetRun(ctx context.Context, id string) (domain.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]domain.Run, error)
	UpdateRunStatus(ctx context.Context, id string, status string, finishedAt *time.Time) error
	// ClaimPlanned atomically moves up to limit planned runs to running and
	// returns them. Concurrent claimers never receive the same run.
	ClaimPlanned(ctx context.Context, limit int) ([]domain.Run, error)
}

// PlanRepository manages execution plans, one per run.
type PlanRepository interface {
	UpsertPlan(ctx context.Context, runID, recipeID string, planJSON []byte) (PlanRecord, error)
	GetPlan(ctx context.Context, runID string) (PlanRecord, error)
}

// ScriptExecutionRepository records script outcomes.
type ScriptExecutionRepository interface {
	Insert(ctx context.Context, record ScriptExecutionRecord) (ScriptExecutionRecord, bool, error)
	ListByRun(ctx context.Context, runID string) ([]ScriptExecutionRecord, error)
}

// DatasetCatalog manages the registry of known dataset descriptors.
type DatasetCatalog interface {
	Register(ctx context.Context, entry domain.CatalogEntry) error
	Get(ctx context.Context, id string) (domain.CatalogEntry, error)
	List(ctx context.Context, filter CatalogFilter) ([]domain.CatalogEntry, error)
}
