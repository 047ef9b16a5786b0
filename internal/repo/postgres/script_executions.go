package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aeolus-labs/aeolus-go/internal/repo"
)

type ScriptExecutionStore struct {
	db DB
}

const (
	insertScriptExecutionQuery = `INSERT INTO script_executions (
		execution_id,
		run_id,
		diagnostic,
		script_name,
		status,
		started_at,
		finished_at,
		error_message,
		result
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	ON CONFLICT (run_id, diagnostic, script_name) DO NOTHING
	RETURNING execution_id, run_id, diagnostic, script_name, status, started_at, finished_at, error_message, result`

	selectScriptExecutionQuery = `SELECT execution_id, run_id, diagnostic, script_name, status, started_at, finished_at, error_message, result
	 FROM script_executions
	 WHERE run_id = $1 AND diagnostic = $2 AND script_name = $3`

	listScriptExecutionsByRunQuery = `SELECT execution_id, run_id, diagnostic, script_name, status, started_at, finished_at, error_message, result
	 FROM script_executions
	 WHERE run_id = $1
	 ORDER BY started_at ASC, diagnostic ASC, script_name ASC`
)

func NewScriptExecutionStore(db DB) *ScriptExecutionStore {
	if db == nil {
		return nil
	}
	return &ScriptExecutionStore{db: db}
}

func (s *ScriptExecutionStore) Insert(ctx context.Context, record repo.ScriptExecutionRecord) (repo.ScriptExecutionRecord, bool, error) {
	if s == nil || s.db == nil {
		return repo.ScriptExecutionRecord{}, false, fmt.Errorf("script execution store not initialized")
	}
	runID := strings.TrimSpace(record.RunID)
	diagnostic := strings.TrimSpace(record.Diagnostic)
	scriptName := strings.TrimSpace(record.ScriptName)
	status := strings.TrimSpace(record.Status)

	if runID == "" {
		return repo.ScriptExecutionRecord{}, false, fmt.Errorf("run id is required")
	}
	if diagnostic == "" {
		return repo.ScriptExecutionRecord{}, false, fmt.Errorf("diagnostic is required")
	}
	if scriptName == "" {
		return repo.ScriptExecutionRecord{}, false, fmt.Errorf("script name is required")
	}
	if status == "" {
		return repo.ScriptExecutionRecord{}, false, fmt.Errorf("status is required")
	}

	startedAt := record.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	var finishedAt sql.NullTime
	if record.FinishedAt != nil && !record.FinishedAt.IsZero() {
		finishedAt = sql.NullTime{Time: record.FinishedAt.UTC(), Valid: true}
	}

	id := record.ID
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}

	var inserted repo.ScriptExecutionRecord
	var errorMessage sql.NullString
	err := s.db.QueryRowContext(
		ctx,
		insertScriptExecutionQuery,
		id,
		runID,
		diagnostic,
		scriptName,
		status,
		startedAt,
		finishedAt,
		nullIfEmpty(record.ErrorMessage),
		record.Result,
	).Scan(
		&inserted.ID,
		&inserted.RunID,
		&inserted.Diagnostic,
		&inserted.ScriptName,
		&inserted.Status,
		&inserted.StartedAt,
		&finishedAt,
		&errorMessage,
		&inserted.Result,
	)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return repo.ScriptExecutionRecord{}, false, fmt.Errorf("insert script execution: %w", err)
		}
		existing, err := s.getExecution(ctx, runID, diagnostic, scriptName)
		if err != nil {
			return repo.ScriptExecutionRecord{}, false, err
		}
		return existing, false, nil
	}

	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		inserted.FinishedAt = &t
	}
	inserted.ErrorMessage = strings.TrimSpace(errorMessage.String)
	return inserted, true, nil
}

func (s *ScriptExecutionStore) ListByRun(ctx context.Context, runID string) ([]repo.ScriptExecutionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("script execution store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}

	rows, err := s.db.QueryContext(ctx, listScriptExecutionsByRunQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("list script executions: %w", err)
	}
	defer rows.Close()

	records := make([]repo.ScriptExecutionRecord, 0)
	for rows.Next() {
		record, err := scanScriptExecution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list script executions: %w", err)
	}
	return records, nil
}

func (s *ScriptExecutionStore) getExecution(ctx context.Context, runID, diagnostic, scriptName string) (repo.ScriptExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, selectScriptExecutionQuery, runID, diagnostic, scriptName)
	return scanScriptExecution(row)
}

type scriptExecutionScanner interface {
	Scan(dest ...any) error
}

func scanScriptExecution(scanner scriptExecutionScanner) (repo.ScriptExecutionRecord, error) {
	var record repo.ScriptExecutionRecord
	var finishedAt sql.NullTime
	var errorMessage sql.NullString
	if err := scanner.Scan(
		&record.ID,
		&record.RunID,
		&record.Diagnostic,
		&record.ScriptName,
		&record.Status,
		&record.StartedAt,
		&finishedAt,
		&errorMessage,
		&record.Result,
	); err != nil {
		return repo.ScriptExecutionRecord{}, handleNotFound(err)
	}
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		record.FinishedAt = &t
	}
	record.ErrorMessage = strings.TrimSpace(errorMessage.String)
	return record, nil
}
