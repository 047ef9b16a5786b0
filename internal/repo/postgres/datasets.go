package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
	"github.com/aeolus-labs/aeolus-go/internal/repo"
)

type DatasetCatalogStore struct {
	db DB
}

func NewDatasetCatalogStore(db DB) *DatasetCatalogStore {
	if db == nil {
		return nil
	}
	return &DatasetCatalogStore{db: db}
}

const datasetCatalogColumns = `entry_id, dataset, project, mip, exp, ensemble, grid, dataset_type, tier, version, start_year, end_year, metadata, created_at, created_by`

func (s *DatasetCatalogStore) Register(ctx context.Context, entry domain.CatalogEntry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("dataset catalog store not initialized")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	metadataJSON, err := encodeMetadata(entry.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	d := entry.Descriptor
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO dataset_catalog (`+datasetCatalogColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		strings.TrimSpace(entry.ID),
		strings.TrimSpace(d.Dataset),
		strings.TrimSpace(d.Project),
		nullIfEmpty(d.Mip),
		nullIfEmpty(d.Exp),
		nullIfEmpty(d.Ensemble),
		nullIfEmpty(d.Grid),
		nullIfEmpty(d.Type),
		nullIfZero(d.Tier),
		nullIfEmpty(d.Version),
		nullIfZero(d.StartYear),
		nullIfZero(d.EndYear),
		metadataJSON,
		normalizeTime(entry.CreatedAt),
		nullIfEmpty(entry.CreatedBy),
	)
	if err != nil {
		return fmt.Errorf("insert catalog entry: %w", err)
	}
	return nil
}

func (s *DatasetCatalogStore) Get(ctx context.Context, id string) (domain.CatalogEntry, error) {
	if s == nil || s.db == nil {
		return domain.CatalogEntry{}, fmt.Errorf("dataset catalog store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.CatalogEntry{}, fmt.Errorf("catalog entry id is required")
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+datasetCatalogColumns+` FROM dataset_catalog WHERE entry_id = $1`,
		id,
	)
	return scanCatalogEntry(row)
}

func (s *DatasetCatalogStore) List(ctx context.Context, filter repo.CatalogFilter) ([]domain.CatalogEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("dataset catalog store not initialized")
	}

	query, args := buildCatalogListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list catalog entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.CatalogEntry, 0)
	for rows.Next() {
		entry, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list catalog entries: %w", err)
	}
	return entries, nil
}

func buildCatalogListQuery(filter repo.CatalogFilter) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 4)

	if strings.TrimSpace(filter.Project) != "" {
		args = append(args, strings.TrimSpace(filter.Project))
		clauses = append(clauses, fmt.Sprintf("project = $%d", len(args)))
	}
	if strings.TrimSpace(filter.Dataset) != "" {
		args = append(args, strings.TrimSpace(filter.Dataset))
		clauses = append(clauses, fmt.Sprintf("dataset = $%d", len(args)))
	}
	if strings.TrimSpace(filter.Mip) != "" {
		args = append(args, strings.TrimSpace(filter.Mip))
		clauses = append(clauses, fmt.Sprintf("mip = $%d", len(args)))
	}

	query := `SELECT ` + datasetCatalogColumns + ` FROM dataset_catalog`
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

type catalogEntryScanner interface {
	Scan(dest ...any) error
}

func scanCatalogEntry(scanner catalogEntryScanner) (domain.CatalogEntry, error) {
	var entry domain.CatalogEntry
	var mip, exp, ensemble, grid, datasetType, version, createdBy sql.NullString
	var tier, startYear, endYear sql.NullInt64
	var metadataJSON []byte
	if err := scanner.Scan(
		&entry.ID,
		&entry.Descriptor.Dataset,
		&entry.Descriptor.Project,
		&mip,
		&exp,
		&ensemble,
		&grid,
		&datasetType,
		&tier,
		&version,
		&startYear,
		&endYear,
		&metadataJSON,
		&entry.CreatedAt,
		&createdBy,
	); err != nil {
		return domain.CatalogEntry{}, handleNotFound(err)
	}
	entry.Descriptor.Mip = mip.String
	entry.Descriptor.Exp = exp.String
	entry.Descriptor.Ensemble = ensemble.String
	entry.Descriptor.Grid = grid.String
	entry.Descriptor.Type = datasetType.String
	entry.Descriptor.Version = version.String
	entry.Descriptor.Tier = int(tier.Int64)
	entry.Descriptor.StartYear = int(startYear.Int64)
	entry.Descriptor.EndYear = int(endYear.Int64)
	entry.CreatedBy = createdBy.String

	metadata, err := decodeMetadata(metadataJSON)
	if err != nil {
		return domain.CatalogEntry{}, fmt.Errorf("decode metadata: %w", err)
	}
	entry.Metadata = metadata
	return entry, nil
}

func nullIfZero(value int) sql.NullInt64 {
	if value == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(value), Valid: true}
}
