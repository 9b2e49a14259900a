package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryTimeout bounds individual store queries so a slow database cannot
// pin an HTTP worker past its own deadline.
const queryTimeout = 10 * time.Second

// Store manages analyzed script persistence with a PostgreSQL backend.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a new Store instance. logger may be nil (defaults to
// slog.Default).
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Ping verifies database connectivity. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

const insertScript = `
INSERT INTO analyzed_scripts (
    filename, original_filename, file_size_bytes, status, analysis,
    total_scenes, total_characters, total_locations,
    estimated_budget, budget_category,
    processing_time_seconds, api_calls_used
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id, created_at, updated_at`

// Save persists a new analyzed script and returns the stored record.
func (s *Store) Save(ctx context.Context, p SaveParams) (*AnalyzedScript, error) {
	if p.Status == "" {
		p.Status = StatusCompleted
	}
	if len(p.Analysis) == 0 {
		return nil, errors.New("analysis payload is required")
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rec := &AnalyzedScript{
		Filename:              p.Filename,
		OriginalFilename:      p.OriginalFilename,
		FileSizeBytes:         p.FileSizeBytes,
		Status:                p.Status,
		Analysis:              p.Analysis,
		TotalScenes:           p.TotalScenes,
		TotalCharacters:       p.TotalCharacters,
		TotalLocations:        p.TotalLocations,
		EstimatedBudget:       p.EstimatedBudget,
		BudgetCategory:        p.BudgetCategory,
		ProcessingTimeSeconds: p.ProcessingTimeSeconds,
		APICallsUsed:          p.APICallsUsed,
	}

	var id pgtype.UUID
	err := s.pool.QueryRow(ctx, insertScript,
		p.Filename, p.OriginalFilename, p.FileSizeBytes, p.Status, p.Analysis,
		p.TotalScenes, p.TotalCharacters, p.TotalLocations,
		p.EstimatedBudget, p.BudgetCategory,
		p.ProcessingTimeSeconds, p.APICallsUsed,
	).Scan(&id, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("saving analyzed script: %w", err)
	}
	rec.ID = uuid.UUID(id.Bytes)

	s.logger.Debug("saved analyzed script",
		"id", rec.ID, "filename", rec.Filename, "scenes", rec.TotalScenes)
	return rec, nil
}

const selectScript = `
SELECT id, filename, original_filename, file_size_bytes, status, analysis,
       total_scenes, total_characters, total_locations,
       estimated_budget, budget_category,
       processing_time_seconds, api_calls_used,
       created_at, updated_at
FROM analyzed_scripts
WHERE id = $1`

// Get retrieves a full record by ID. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*AnalyzedScript, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		rec  AnalyzedScript
		pgID pgtype.UUID
	)
	err := s.pool.QueryRow(ctx, selectScript, pgtype.UUID{Bytes: id, Valid: true}).Scan(
		&pgID, &rec.Filename, &rec.OriginalFilename, &rec.FileSizeBytes,
		&rec.Status, &rec.Analysis,
		&rec.TotalScenes, &rec.TotalCharacters, &rec.TotalLocations,
		&rec.EstimatedBudget, &rec.BudgetCategory,
		&rec.ProcessingTimeSeconds, &rec.APICallsUsed,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting analyzed script %s: %w", id, err)
	}
	rec.ID = uuid.UUID(pgID.Bytes)
	return &rec, nil
}

// Delete removes a record by ID. Returns ErrNotFound if absent.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM analyzed_scripts WHERE id = $1`,
		pgtype.UUID{Bytes: id, Valid: true})
	if err != nil {
		return fmt.Errorf("deleting analyzed script %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted analyzed script", "id", id)
	return nil
}

const selectSummaries = `
SELECT id, filename, original_filename, file_size_bytes, status,
       total_scenes, total_characters, total_locations,
       estimated_budget, budget_category,
       processing_time_seconds, api_calls_used, created_at
FROM analyzed_scripts`

// List returns summaries ordered and paginated per params.
// The sort column is whitelist-validated; unknown columns return
// ErrInvalidOrderBy.
func (s *Store) List(ctx context.Context, p ListParams) ([]*Summary, error) {
	p.normalize()
	if !orderColumns[p.OrderBy] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrderBy, p.OrderBy)
	}

	dir := "DESC"
	if p.OrderDir == OrderAsc {
		dir = "ASC"
	}

	// OrderBy passed whitelist validation above; only the literal column
	// name is interpolated.
	query := fmt.Sprintf("%s ORDER BY %s %s LIMIT $1 OFFSET $2",
		selectSummaries, p.OrderBy, dir)

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, p.Limit, p.Skip)
	if err != nil {
		return nil, fmt.Errorf("listing analyzed scripts: %w", err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// Search returns summaries whose filename matches the term
// (case-insensitive substring), newest first.
func (s *Store) Search(ctx context.Context, term string, skip, limit int) ([]*Summary, error) {
	p := ListParams{Skip: skip, Limit: limit}
	p.normalize()

	query := selectSummaries + `
WHERE filename ILIKE '%' || $1 || '%' OR original_filename ILIKE '%' || $1 || '%'
ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, term, p.Limit, p.Skip)
	if err != nil {
		return nil, fmt.Errorf("searching analyzed scripts: %w", err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// ByStatus returns summaries filtered by status, newest first.
func (s *Store) ByStatus(ctx context.Context, status string, skip, limit int) ([]*Summary, error) {
	p := ListParams{Skip: skip, Limit: limit}
	p.normalize()

	query := selectSummaries + `
WHERE status = $1
ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, status, p.Limit, p.Skip)
	if err != nil {
		return nil, fmt.Errorf("listing analyzed scripts by status: %w", err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// Count returns the number of records, optionally filtered by status
// (empty string = all).
func (s *Store) Count(ctx context.Context, status string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		count int64
		err   error
	)
	if status == "" {
		err = s.pool.QueryRow(ctx,
			`SELECT count(*) FROM analyzed_scripts`).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx,
			`SELECT count(*) FROM analyzed_scripts WHERE status = $1`, status).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("counting analyzed scripts: %w", err)
	}
	return count, nil
}

// scanSummaries drains rows into summary records.
func scanSummaries(rows pgx.Rows) ([]*Summary, error) {
	var out []*Summary
	for rows.Next() {
		var (
			sum  Summary
			pgID pgtype.UUID
		)
		err := rows.Scan(
			&pgID, &sum.Filename, &sum.OriginalFilename, &sum.FileSizeBytes,
			&sum.Status,
			&sum.TotalScenes, &sum.TotalCharacters, &sum.TotalLocations,
			&sum.EstimatedBudget, &sum.BudgetCategory,
			&sum.ProcessingTimeSeconds, &sum.APICallsUsed, &sum.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning analyzed script row: %w", err)
		}
		sum.ID = uuid.UUID(pgID.Bytes)
		out = append(out, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading analyzed script rows: %w", err)
	}
	return out, nil
}
