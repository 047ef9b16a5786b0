package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aeolus-labs/aeolus-go/internal/repo"
)

type RecipeStore struct {
	db DB
}

func NewRecipeStore(db DB) *RecipeStore {
	if db == nil {
		return nil
	}
	return &RecipeStore{db: db}
}

func (s *RecipeStore) CreateRecipe(ctx context.Context, record repo.RecipeRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("recipe store not initialized")
	}
	if strings.TrimSpace(record.ID) == "" {
		return errors.New("recipe id is required")
	}
	if strings.TrimSpace(record.Title) == "" {
		return errors.New("recipe title is required")
	}
	if strings.TrimSpace(record.DocumentKey) == "" {
		return errors.New("document key is required")
	}
	if strings.TrimSpace(record.DocumentSHA256) == "" {
		return errors.New("document sha256 is required")
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO recipes (
			recipe_id,
			title,
			description,
			document_key,
			document_sha256,
			created_at,
			created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		strings.TrimSpace(record.ID),
		strings.TrimSpace(record.Title),
		nullIfEmpty(record.Description),
		strings.TrimSpace(record.DocumentKey),
		strings.TrimSpace(record.DocumentSHA256),
		normalizeTime(record.CreatedAt),
		nullIfEmpty(record.CreatedBy),
	)
	if err != nil {
		return fmt.Errorf("insert recipe: %w", err)
	}
	return nil
}

func (s *RecipeStore) GetRecipe(ctx context.Context, id string) (repo.RecipeRecord, error) {
	if s == nil || s.db == nil {
		return repo.RecipeRecord{}, fmt.Errorf("recipe store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return repo.RecipeRecord{}, errors.New("recipe id is required")
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT recipe_id, title, description, document_key, document_sha256, created_at, created_by
		 FROM recipes
		 WHERE recipe_id = $1`,
		id,
	)
	return scanRecipe(row)
}

func (s *RecipeStore) ListRecipes(ctx context.Context, filter repo.RecipeFilter) ([]repo.RecipeRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("recipe store not initialized")
	}

	query, args := buildRecipeListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	defer rows.Close()

	records := make([]repo.RecipeRecord, 0)
	for rows.Next() {
		record, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	return records, nil
}

func buildRecipeListQuery(filter repo.RecipeFilter) (string, []any) {
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 3)

	if strings.TrimSpace(filter.Title) != "" {
		args = append(args, strings.TrimSpace(filter.Title))
		clauses = append(clauses, fmt.Sprintf("title = $%d", len(args)))
	}
	if strings.TrimSpace(filter.CreatedBy) != "" {
		args = append(args, strings.TrimSpace(filter.CreatedBy))
		clauses = append(clauses, fmt.Sprintf("created_by = $%d", len(args)))
	}

	query := `SELECT recipe_id, title, description, document_key, document_sha256, created_at, created_by
		FROM recipes`
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

type recipeScanner interface {
	Scan(dest ...any) error
}

func scanRecipe(scanner recipeScanner) (repo.RecipeRecord, error) {
	var record repo.RecipeRecord
	var description, createdBy sql.NullString
	if err := scanner.Scan(
		&record.ID,
		&record.Title,
		&description,
		&record.DocumentKey,
		&record.DocumentSHA256,
		&record.CreatedAt,
		&createdBy,
	); err != nil {
		return repo.RecipeRecord{}, handleNotFound(err)
	}
	record.Description = description.String
	record.CreatedBy = createdBy.String
	return record, nil
}
