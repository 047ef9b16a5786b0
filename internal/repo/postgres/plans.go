package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aeolus-labs/aeolus-go/internal/repo"
)

type PlanStore struct {
	db DB
}

func NewPlanStore(db DB) *PlanStore {
	if db == nil {
		return nil
	}
	return &PlanStore{db: db}
}

func (s *PlanStore) UpsertPlan(ctx context.Context, runID, recipeID string, planJSON []byte) (repo.PlanRecord, error) {
	if s == nil || s.db == nil {
		return repo.PlanRecord{}, fmt.Errorf("plan store not initialized")
	}
	runID = strings.TrimSpace(runID)
	recipeID = strings.TrimSpace(recipeID)
	if runID == "" {
		return repo.PlanRecord{}, fmt.Errorf("run id is required")
	}
	if recipeID == "" {
		return repo.PlanRecord{}, fmt.Errorf("recipe id is required")
	}
	if len(planJSON) == 0 {
		return repo.PlanRecord{}, fmt.Errorf("plan is required")
	}

	planID := uuid.NewString()
	var record repo.PlanRecord
	err := s.db.QueryRowContext(
		ctx,
		`INSERT INTO execution_plans (
			plan_id,
			run_id,
			recipe_id,
			plan
		) VALUES ($1,$2,$3,$4)
		ON CONFLICT (run_id) DO NOTHING
		RETURNING plan_id, run_id, recipe_id, plan, created_at`,
		planID,
		runID,
		recipeID,
		planJSON,
	).Scan(&record.ID, &record.RunID, &record.RecipeID, &record.Plan, &record.CreatedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return repo.PlanRecord{}, fmt.Errorf("insert plan: %w", err)
		}
		existing, err := s.GetPlan(ctx, runID)
		if err != nil {
			return repo.PlanRecord{}, err
		}
		if !bytes.Equal(existing.Plan, planJSON) {
			return repo.PlanRecord{}, fmt.Errorf("execution plan already exists for run %s", runID)
		}
		return existing, nil
	}
	return record, nil
}

func (s *PlanStore) GetPlan(ctx context.Context, runID string) (repo.PlanRecord, error) {
	if s == nil || s.db == nil {
		return repo.PlanRecord{}, fmt.Errorf("plan store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return repo.PlanRecord{}, fmt.Errorf("run id is required")
	}

	var record repo.PlanRecord
	row := s.db.QueryRowContext(
		ctx,
		`SELECT plan_id, run_id, recipe_id, plan, created_at
		 FROM execution_plans
		 WHERE run_id = $1`,
		runID,
	)
	if err := row.Scan(&record.ID, &record.RunID, &record.RecipeID, &record.Plan, &record.CreatedAt); err != nil {
		return repo.PlanRecord{}, handleNotFound(err)
	}
	return record, nil
}
