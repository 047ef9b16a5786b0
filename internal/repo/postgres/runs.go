package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
	"github.com/aeolus-labs/aeolus-go/internal/repo"
)

type RunStore struct {
	db DB
}

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

func (s *RunStore) CreateRun(ctx context.Context, run domain.Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}

	var finishedAt sql.NullTime
	if run.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (
			run_id,
			recipe_id,
			status,
			created_at,
			created_by,
			finished_at
		) VALUES ($1,$2,$3,$4,$5,$6)`,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.RecipeID),
		string(run.Status),
		normalizeTime(run.CreatedAt),
		nullIfEmpty(run.CreatedBy),
		finishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, id string) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Run{}, fmt.Errorf("run id is required")
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT run_id, recipe_id, status, created_at, created_by, finished_at
		 FROM runs
		 WHERE run_id = $1`,
		id,
	)
	return scanRun(row)
}

func (s *RunStore) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}

	query, args := buildRunListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func buildRunListQuery(filter repo.RunFilter) (string, []any) {
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 3)

	if strings.TrimSpace(filter.RecipeID) != "" {
		args = append(args, strings.TrimSpace(filter.RecipeID))
		clauses = append(clauses, fmt.Sprintf("recipe_id = $%d", len(args)))
	}
	if strings.TrimSpace(filter.Status) != "" {
		args = append(args, strings.TrimSpace(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT run_id, recipe_id, status, created_at, created_by, finished_at
		FROM runs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func (s *RunStore) UpdateRunStatus(ctx context.Context, id string, status string, finishedAt *time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	status = strings.TrimSpace(status)
	if domain.NormalizeRunState(status) == "" {
		return fmt.Errorf("invalid run status %q", status)
	}

	var finished sql.NullTime
	if finishedAt != nil {
		finished = sql.NullTime{Time: finishedAt.UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = $1, finished_at = $2 WHERE run_id = $3`,
		status,
		finished,
		id,
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if rows == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ClaimPlanned atomically transitions up to limit planned runs to running.
// The FOR UPDATE SKIP LOCKED subquery keeps concurrent runners from claiming
// the same run.
func (s *RunStore) ClaimPlanned(ctx context.Context, limit int) ([]domain.Run, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	if limit < 1 {
		limit = 1
	}

	rows, err := s.db.QueryContext(
		ctx,
		`UPDATE runs SET status = $1
		 WHERE run_id IN (
			SELECT run_id FROM runs
			WHERE status = $2
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING run_id, recipe_id, status, created_at, created_by, finished_at`,
		string(domain.RunStateRunning),
		string(domain.RunStatePlanned),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim planned runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim planned runs: %w", err)
	}
	return runs, nil
}

type runScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner runScanner) (domain.Run, error) {
	var run domain.Run
	var status string
	var createdBy sql.NullString
	var finishedAt sql.NullTime
	if err := scanner.Scan(
		&run.ID,
		&run.RecipeID,
		&status,
		&run.CreatedAt,
		&createdBy,
		&finishedAt,
	); err != nil {
		return domain.Run{}, handleNotFound(err)
	}
	run.Status = domain.NormalizeRunState(status)
	run.CreatedBy = createdBy.String
	if finishedAt.Valid {
		finished := finishedAt.Time.UTC()
		run.FinishedAt = &finished
	}
	return run, nil
}
