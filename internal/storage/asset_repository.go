package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nft-repin/internal/models"
	"github.com/nft-repin/internal/types"
)

// AssetRepository persists per-run asset records
type AssetRepository struct {
	db *PostgresDB
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db *PostgresDB) *AssetRepository {
	return &AssetRepository{db: db}
}

// SaveAll upserts the run's asset records in one batch
func (r *AssetRepository) SaveAll(ctx context.Context, runID string, assets []*models.AssetRecord) error {
	if len(assets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO run_assets (
			run_id, asset_id, asset_name, asset_url, cid, status,
			error_kind, error_message,
			repin_provider, repin_request_id, repin_cid, verified
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id, asset_id) DO UPDATE SET
			cid = EXCLUDED.cid,
			status = EXCLUDED.status,
			error_kind = EXCLUDED.error_kind,
			error_message = EXCLUDED.error_message,
			repin_provider = EXCLUDED.repin_provider,
			repin_request_id = EXCLUDED.repin_request_id,
			repin_cid = EXCLUDED.repin_cid,
			verified = EXCLUDED.verified
	`

	for _, asset := range assets {
		var errKind, errMessage string
		if asset.LastError != nil {
			errKind = asset.LastError.Kind
			errMessage = asset.LastError.Message
		}
		var provider, requestID, repinCID string
		var verified bool
		if asset.RepinResult != nil {
			provider = asset.RepinResult.Provider
			requestID = asset.RepinResult.RequestID
			repinCID = asset.RepinResult.CID
			verified = asset.RepinResult.Verified
		}
		batch.Queue(query,
			runID,
			asset.AssetID,
			asset.Name,
			asset.URL,
			asset.CID,
			asset.Status,
			errKind,
			errMessage,
			provider,
			requestID,
			repinCID,
			verified,
		)
	}

	results := r.db.Pool().SendBatch(ctx, batch)
	defer results.Close()

	for range assets {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save asset records: %w", err)
		}
	}
	return nil
}

// ListByRun returns the run's asset records ordered by asset id
func (r *AssetRepository) ListByRun(ctx context.Context, runID string) ([]*models.AssetRecord, error) {
	query := `
		SELECT asset_id, asset_name, asset_url, cid, status,
		       error_kind, error_message,
		       repin_provider, repin_request_id, repin_cid, verified
		FROM run_assets
		WHERE run_id = $1
		ORDER BY asset_id ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset records: %w", err)
	}
	defer rows.Close()

	var assets []*models.AssetRecord
	for rows.Next() {
		asset := &models.AssetRecord{}
		var errKind, errMessage string
		var provider, requestID, repinCID string
		var verified bool
		if err := rows.Scan(
			&asset.AssetID,
			&asset.Name,
			&asset.URL,
			&asset.CID,
			&asset.Status,
			&errKind,
			&errMessage,
			&provider,
			&requestID,
			&repinCID,
			&verified,
		); err != nil {
			return nil, fmt.Errorf("failed to scan asset record: %w", err)
		}
		if errKind != "" || errMessage != "" {
			asset.LastError = &types.ErrorDetail{Kind: errKind, Message: errMessage}
		}
		if provider != "" {
			asset.RepinResult = &models.RepinResult{
				Provider:  provider,
				RequestID: requestID,
				CID:       repinCID,
				Verified:  verified,
			}
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}
