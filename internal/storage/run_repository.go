package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nft-repin/internal/models"
	"github.com/nft-repin/internal/types"
)

// ErrRunNotFound is returned when a run id has no persisted record
var ErrRunNotFound = errors.New("migration run not found")

// RunRepository handles migration run persistence
type RunRepository struct {
	db *PostgresDB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *PostgresDB) *RunRepository {
	return &RunRepository{db: db}
}

// Create persists a new migration run
func (r *RunRepository) Create(ctx context.Context, run *models.MigrationRun) error {
	query := `
		INSERT INTO migration_runs (
			id, collection_address, provider, status, topology,
			total_assets, unique_cids, pinned, failed, skipped, from_cache,
			started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		run.ID,
		run.CollectionAddress,
		run.Provider,
		run.Status,
		run.Topology,
		run.TotalAssets,
		run.UniqueCIDs,
		run.Pinned,
		run.Failed,
		run.Skipped,
		run.FromCache,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration run: %w", err)
	}
	return nil
}

// Update persists the run's current counts and status
func (r *RunRepository) Update(ctx context.Context, run *models.MigrationRun) error {
	query := `
		UPDATE migration_runs
		SET status = $2, topology = $3, total_assets = $4, unique_cids = $5,
		    pinned = $6, failed = $7, skipped = $8, from_cache = $9, finished_at = $10
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		run.ID,
		run.Status,
		run.Topology,
		run.TotalAssets,
		run.UniqueCIDs,
		run.Pinned,
		run.Failed,
		run.Skipped,
		run.FromCache,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update migration run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Get returns the run with the given id
func (r *RunRepository) Get(ctx context.Context, id string) (*models.MigrationRun, error) {
	query := `
		SELECT id, collection_address, provider, status, topology,
		       total_assets, unique_cids, pinned, failed, skipped, from_cache,
		       started_at, finished_at
		FROM migration_runs
		WHERE id = $1
	`

	run := &models.MigrationRun{}
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.CollectionAddress,
		&run.Provider,
		&run.Status,
		&run.Topology,
		&run.TotalAssets,
		&run.UniqueCIDs,
		&run.Pinned,
		&run.Failed,
		&run.Skipped,
		&run.FromCache,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get migration run: %w", err)
	}
	return run, nil
}

// ListByCollection returns the runs for a collection address, newest first
func (r *RunRepository) ListByCollection(ctx context.Context, address string, limit int) ([]*models.MigrationRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, collection_address, provider, status, topology,
		       total_assets, unique_cids, pinned, failed, skipped, from_cache,
		       started_at, finished_at
		FROM migration_runs
		WHERE collection_address = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.MigrationRun
	for rows.Next() {
		run := &models.MigrationRun{}
		if err := rows.Scan(
			&run.ID,
			&run.CollectionAddress,
			&run.Provider,
			&run.Status,
			&run.Topology,
			&run.TotalAssets,
			&run.UniqueCIDs,
			&run.Pinned,
			&run.Failed,
			&run.Skipped,
			&run.FromCache,
			&run.StartedAt,
			&run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan migration run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkAborted flags still-running runs as aborted, used on startup recovery
func (r *RunRepository) MarkAborted(ctx context.Context, id string) error {
	query := `
		UPDATE migration_runs
		SET status = $2, finished_at = NOW()
		WHERE id = $1 AND status = $3
	`
	_, err := r.db.Pool().Exec(ctx, query, id, types.RunAborted, types.RunRunning)
	if err != nil {
		return fmt.Errorf("failed to mark run aborted: %w", err)
	}
	return nil
}
