package storage

import (
	"context"
	"fmt"

	"github.com/nft-repin/internal/models"
	"github.com/nft-repin/internal/types"
)

// TaskRepository persists per-run migration tasks
type TaskRepository struct {
	db *PostgresDB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *PostgresDB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Save upserts one task's current state
func (r *TaskRepository) Save(ctx context.Context, runID string, task *models.MigrationTask) error {
	query := `
		INSERT INTO migration_tasks (
			run_id, cid, status, attempts, last_attempt_at,
			provider, request_id, repin_cid, verified, from_cache,
			error_kind, error_message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id, cid) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			last_attempt_at = EXCLUDED.last_attempt_at,
			provider = EXCLUDED.provider,
			request_id = EXCLUDED.request_id,
			repin_cid = EXCLUDED.repin_cid,
			verified = EXCLUDED.verified,
			from_cache = EXCLUDED.from_cache,
			error_kind = EXCLUDED.error_kind,
			error_message = EXCLUDED.error_message
	`

	var provider, requestID, repinCID, errKind, errMessage string
	var verified, fromCache bool
	if task.Outcome != nil {
		provider = task.Outcome.Provider
		requestID = task.Outcome.RequestID
		repinCID = task.Outcome.RepinCID
		verified = task.Outcome.Verified
		fromCache = task.Outcome.FromCache
		if task.Outcome.Err != nil {
			errKind = task.Outcome.Err.Kind
			errMessage = task.Outcome.Err.Message
		}
	}

	_, err := r.db.Pool().Exec(ctx, query,
		runID,
		task.CID,
		task.Status,
		task.Attempts,
		task.LastAttemptAt,
		provider,
		requestID,
		repinCID,
		verified,
		fromCache,
		errKind,
		errMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save migration task: %w", err)
	}
	return nil
}

// ListByRun returns the run's tasks ordered by CID
func (r *TaskRepository) ListByRun(ctx context.Context, runID string) ([]*models.MigrationTask, error) {
	query := `
		SELECT cid, status, attempts, last_attempt_at,
		       provider, request_id, repin_cid, verified, from_cache,
		       error_kind, error_message
		FROM migration_tasks
		WHERE run_id = $1
		ORDER BY cid ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.MigrationTask
	for rows.Next() {
		task := &models.MigrationTask{}
		var provider, requestID, repinCID, errKind, errMessage string
		var verified, fromCache bool
		if err := rows.Scan(
			&task.CID,
			&task.Status,
			&task.Attempts,
			&task.LastAttemptAt,
			&provider,
			&requestID,
			&repinCID,
			&verified,
			&fromCache,
			&errKind,
			&errMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan migration task: %w", err)
		}
		if provider != "" || repinCID != "" || errKind != "" {
			task.Outcome = &models.TaskOutcome{
				Provider:  provider,
				RequestID: requestID,
				RepinCID:  repinCID,
				Verified:  verified,
				FromCache: fromCache,
			}
			if errKind != "" || errMessage != "" {
				task.Outcome.Err = &types.ErrorDetail{Kind: errKind, Message: errMessage}
			}
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
