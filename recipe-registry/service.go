package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
	"github.com/aeolus-labs/aeolus-go/internal/execution/plan"
	"github.com/aeolus-labs/aeolus-go/internal/platform/auditlog"
	"github.com/aeolus-labs/aeolus-go/internal/platform/provenance"
	"github.com/aeolus-labs/aeolus-go/internal/recipe"
	"github.com/aeolus-labs/aeolus-go/internal/recipe/validate"
	"github.com/aeolus-labs/aeolus-go/internal/repo"
)

// Malformed-input sentinels. Handlers map these to 4xx responses; every
// other error out of the service is a downstream fault.
var (
	errRecipeUnparseable = errors.New("recipe document is not parseable")
	errDatasetInvalid    = errors.New("invalid dataset descriptor")
)

type auditContext struct {
	Actor     string
	RequestID string
	Path      string
}

type documentStore interface {
	PutRecipeDocument(ctx context.Context, recipeID string, raw []byte) (string, error)
	GetRecipeDocument(ctx context.Context, key string) ([]byte, error)
	PresignRecipeDocument(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type registryService struct {
	recipes   repo.RecipeRepository
	runs      repo.RunRepository
	plans     repo.PlanRepository
	catalog   repo.DatasetCatalog
	documents documentStore
	db        *sql.DB
	now       func() time.Time
}

func newRegistryService(recipes repo.RecipeRepository, runs repo.RunRepository, plans repo.PlanRepository, catalog repo.DatasetCatalog, documents documentStore, db *sql.DB) *registryService {
	return &registryService{
		recipes:   recipes,
		runs:      runs,
		plans:     plans,
		catalog:   catalog,
		documents: documents,
		db:        db,
		now:       time.Now,
	}
}

// RegisterRecipe parses and validates a recipe document, stores the document
// verbatim, and records the registration. Validation failures, including
// ancestor cycles, are reported before anything is stored.
func (s *registryService) RegisterRecipe(ctx context.Context, raw []byte, auditCtx auditContext) (repo.RecipeRecord, error) {
	if s == nil || s.recipes == nil || s.documents == nil {
		return repo.RecipeRecord{}, fmt.Errorf("registry service not initialized")
	}
	if len(raw) == 0 {
		return repo.RecipeRecord{}, fmt.Errorf("recipe document is empty")
	}

	doc, err := recipe.Parse(raw)
	if err != nil {
		return repo.RecipeRecord{}, fmt.Errorf("%w: %v", errRecipeUnparseable, err)
	}
	if err := validate.ValidateRecipe(doc.Recipe); err != nil {
		return repo.RecipeRecord{}, err
	}

	recipeID := uuid.NewString()
	key, err := s.documents.PutRecipeDocument(ctx, recipeID, raw)
	if err != nil {
		return repo.RecipeRecord{}, err
	}

	sum := sha256.Sum256(raw)
	now := s.now().UTC()
	record := repo.RecipeRecord{
		ID:             recipeID,
		Title:          recipeTitle(doc.Recipe),
		Description:    strings.TrimSpace(doc.Recipe.Documentation.Description),
		DocumentKey:    key,
		DocumentSHA256: hex.EncodeToString(sum[:]),
		CreatedAt:      now,
		CreatedBy:      auditCtx.Actor,
	}
	if err := s.recipes.CreateRecipe(ctx, record); err != nil {
		return repo.RecipeRecord{}, err
	}

	s.appendAudit(ctx, auditlog.Event{
		OccurredAt:   now,
		Actor:        auditCtx.Actor,
		Action:       "recipe.create",
		ResourceType: "recipe",
		ResourceID:   recipeID,
		RequestID:    auditCtx.RequestID,
		Payload: map[string]any{
			"title":           record.Title,
			"document_key":    key,
			"document_sha256": record.DocumentSHA256,
			"request_path":    auditCtx.Path,
		},
	})
	return record, nil
}

func recipeTitle(rec domain.Recipe) string {
	title := strings.TrimSpace(rec.Documentation.Title)
	if title != "" {
		return title
	}
	// Older recipes carry only a description. Cut on a rune boundary so a
	// multi-byte character is never split.
	description := []rune(strings.TrimSpace(rec.Documentation.Description))
	if len(description) > 80 {
		description = description[:80]
	}
	return string(description)
}

func (s *registryService) GetRecipe(ctx context.Context, id string) (repo.RecipeRecord, error) {
	if s == nil || s.recipes == nil {
		return repo.RecipeRecord{}, fmt.Errorf("registry service not initialized")
	}
	return s.recipes.GetRecipe(ctx, id)
}

func (s *registryService) ListRecipes(ctx context.Context, filter repo.RecipeFilter) ([]repo.RecipeRecord, error) {
	if s == nil || s.recipes == nil {
		return nil, fmt.Errorf("registry service not initialized")
	}
	return s.recipes.ListRecipes(ctx, filter)
}

// RecipeDocument returns the stored document exactly as it was registered.
func (s *registryService) RecipeDocument(ctx context.Context, id string) ([]byte, error) {
	record, err := s.GetRecipe(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.documents.GetRecipeDocument(ctx, record.DocumentKey)
}

// RecipeDocumentURL returns a time-limited download URL for the stored
// document.
func (s *registryService) RecipeDocumentURL(ctx context.Context, id string, ttl time.Duration) (string, error) {
	record, err := s.GetRecipe(ctx, id)
	if err != nil {
		return "", err
	}
	return s.documents.PresignRecipeDocument(ctx, record.DocumentKey, ttl)
}

// CreateRun plans a new run for a registered recipe. The stored document is
// re-parsed and re-validated so the plan always reflects the document as
// registered, and the run starts in the planned state.
func (s *registryService) CreateRun(ctx context.Context, recipeID string, auditCtx auditContext) (domain.Run, domain.ExecutionPlan, error) {
	if s == nil || s.runs == nil || s.plans == nil {
		return domain.Run{}, domain.ExecutionPlan{}, fmt.Errorf("registry service not initialized")
	}

	raw, err := s.RecipeDocument(ctx, recipeID)
	if err != nil {
		return domain.Run{}, domain.ExecutionPlan{}, err
	}
	doc, err := recipe.Parse(raw)
	if err != nil {
		return domain.Run{}, domain.ExecutionPlan{}, err
	}

	runID := uuid.NewString()
	built, err := plan.BuildPlan(doc.Recipe, runID, recipeID)
	if err != nil {
		return domain.Run{}, domain.ExecutionPlan{}, err
	}
	planJSON, err := plan.MarshalExecutionPlan(built)
	if err != nil {
		return domain.Run{}, domain.ExecutionPlan{}, err
	}

	now := s.now().UTC()
	run := domain.Run{
		ID:        runID,
		RecipeID:  recipeID,
		Status:    domain.RunStatePlanned,
		CreatedAt: now,
		CreatedBy: auditCtx.Actor,
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return domain.Run{}, domain.ExecutionPlan{}, err
	}
	if _, err := s.plans.UpsertPlan(ctx, runID, recipeID, planJSON); err != nil {
		return domain.Run{}, domain.ExecutionPlan{}, err
	}

	s.appendAudit(ctx, auditlog.Event{
		OccurredAt:   now,
		Actor:        auditCtx.Actor,
		Action:       "run.create",
		ResourceType: "run",
		ResourceID:   runID,
		RequestID:    auditCtx.RequestID,
		Payload: map[string]any{
			"recipe_id":    recipeID,
			"scripts":      built.ScriptCount(),
			"request_path": auditCtx.Path,
		},
	})
	s.appendProvenance(ctx, provenance.Event{
		OccurredAt:  now,
		Actor:       auditCtx.Actor,
		RequestID:   auditCtx.RequestID,
		SubjectType: provenance.TypeRun,
		SubjectID:   runID,
		Predicate:   provenance.PredicatePlannedFrom,
		ObjectType:  provenance.TypeRecipe,
		ObjectID:    recipeID,
		Metadata: map[string]any{
			"scripts": built.ScriptCount(),
		},
	})
	return run, built, nil
}

func (s *registryService) GetRun(ctx context.Context, id string) (domain.Run, error) {
	if s == nil || s.runs == nil {
		return domain.Run{}, fmt.Errorf("registry service not initialized")
	}
	return s.runs.GetRun(ctx, id)
}

func (s *registryService) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	if s == nil || s.runs == nil {
		return nil, fmt.Errorf("registry service not initialized")
	}
	return s.runs.ListRuns(ctx, filter)
}

func (s *registryService) RunPlan(ctx context.Context, runID string) (domain.ExecutionPlan, error) {
	if s == nil || s.plans == nil {
		return domain.ExecutionPlan{}, fmt.Errorf("registry service not initialized")
	}
	record, err := s.plans.GetPlan(ctx, runID)
	if err != nil {
		return domain.ExecutionPlan{}, err
	}
	return plan.UnmarshalExecutionPlan(record.Plan)
}

// RegisterDataset adds a dataset descriptor to the catalog.
func (s *registryService) RegisterDataset(ctx context.Context, descriptor domain.Dataset, metadata map[string]any, auditCtx auditContext) (domain.CatalogEntry, error) {
	if s == nil || s.catalog == nil {
		return domain.CatalogEntry{}, fmt.Errorf("registry service not initialized")
	}
	now := s.now().UTC()
	entry := domain.CatalogEntry{
		ID:         uuid.NewString(),
		Descriptor: descriptor,
		Metadata:   domain.Metadata(metadata).Clone(),
		CreatedAt:  now,
		CreatedBy:  auditCtx.Actor,
	}
	if err := entry.Validate(); err != nil {
		return domain.CatalogEntry{}, fmt.Errorf("%w: %v", errDatasetInvalid, err)
	}
	if _, known := recipe.RequiredFacets(descriptor.Project); !known {
		return domain.CatalogEntry{}, fmt.Errorf("%w: unknown project %q", errDatasetInvalid, descriptor.Project)
	}
	if err := s.catalog.Register(ctx, entry); err != nil {
		return domain.CatalogEntry{}, err
	}

	s.appendAudit(ctx, auditlog.Event{
		OccurredAt:   now,
		Actor:        auditCtx.Actor,
		Action:       "catalog.register",
		ResourceType: "dataset",
		ResourceID:   entry.ID,
		RequestID:    auditCtx.RequestID,
		Payload: map[string]any{
			"dataset":      descriptor.Dataset,
			"project":      descriptor.Project,
			"request_path": auditCtx.Path,
		},
	})
	return entry, nil
}

func (s *registryService) GetCatalogEntry(ctx context.Context, id string) (domain.CatalogEntry, error) {
	if s == nil || s.catalog == nil {
		return domain.CatalogEntry{}, fmt.Errorf("registry service not initialized")
	}
	return s.catalog.Get(ctx, id)
}

func (s *registryService) ListCatalog(ctx context.Context, filter repo.CatalogFilter) ([]domain.CatalogEntry, error) {
	if s == nil || s.catalog == nil {
		return nil, fmt.Errorf("registry service not initialized")
	}
	return s.catalog.List(ctx, filter)
}

func (s *registryService) appendAudit(ctx context.Context, event auditlog.Event) {
	if s.db == nil {
		return
	}
	auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
	defer cancel()
	_, _ = auditlog.Insert(auditCtx, s.db, event)
}

func (s *registryService) appendProvenance(ctx context.Context, event provenance.Event) {
	if s.db == nil {
		return
	}
	provCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
	defer cancel()
	_, _ = provenance.Insert(provCtx, s.db, event)
}
