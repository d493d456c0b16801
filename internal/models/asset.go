package models

import (
	"time"

	"github.com/nft-repin/internal/types"
)

// AssetRecord represents one Algorand NFT in a collection under migration.
// The record's Status is a projection of the migration task that owns its CID:
// only the migration engine transitions it after decoding.
type AssetRecord struct {
	AssetID       uint64                       `json:"assetId" db:"asset_id"`
	Name          string                       `json:"assetName" db:"asset_name"`
	URL           string                       `json:"assetUrl" db:"asset_url"`
	AddressFields map[types.AddressRole]string `json:"-" db:"-"`
	CID           string                       `json:"cid,omitempty" db:"cid"`
	Status        types.AssetStatus            `json:"status" db:"status"`
	RepinResult   *RepinResult                 `json:"repinResult,omitempty" db:"-"`
	LastError     *types.ErrorDetail           `json:"lastError,omitempty" db:"-"`
}

// RepinResult records the destination provider's acknowledgement for an asset
type RepinResult struct {
	Provider  string `json:"provider"`
	RequestID string `json:"requestId,omitempty"`
	CID       string `json:"cid"`
	Verified  bool   `json:"verified"`
}

// HasCID reports whether ARC-19 decoding succeeded for this asset
func (a *AssetRecord) HasCID() bool {
	return a.CID != ""
}

// CollectionPlan is the output of collection analysis: the reduced worklist
// the migration engine operates on. Every asset with a decoded CID appears in
// exactly one CIDToAssets bucket.
type CollectionPlan struct {
	Topology        types.Topology      `json:"topology"`
	UniqueCIDs      []string            `json:"uniqueCids"`
	CIDToAssets     map[string][]uint64 `json:"cidToAssets"`
	SkippedAssetIDs []uint64            `json:"skippedAssetIds,omitempty"`
	TotalAssets     int                 `json:"totalAssets"`
}

// MigrationTask is one unit of pinning work, keyed by CID rather than by
// asset since many assets may share one CID. Mutated only by the migration
// engine's worker loop.
type MigrationTask struct {
	CID            string           `json:"cid" db:"cid"`
	TargetAssetIDs []uint64         `json:"targetAssetIds" db:"-"`
	Status         types.TaskStatus `json:"status" db:"status"`
	Attempts       int              `json:"attempts" db:"attempts"`
	LastAttemptAt  time.Time        `json:"lastAttemptAt,omitempty" db:"last_attempt_at"`
	Outcome        *TaskOutcome     `json:"outcome,omitempty" db:"-"`
}

// TaskOutcome captures how a migration task reached its terminal state
type TaskOutcome struct {
	Provider  string             `json:"provider,omitempty"`
	RequestID string             `json:"requestId,omitempty"`
	RepinCID  string             `json:"repinCid,omitempty"`
	Verified  bool               `json:"verified"`
	FromCache bool               `json:"fromCache"`
	Err       *types.ErrorDetail `json:"error,omitempty"`
}

// Clone returns a deep copy of the task, used when emitting event snapshots
// so consumers never observe later mutations.
func (t *MigrationTask) Clone() *MigrationTask {
	cp := *t
	cp.TargetAssetIDs = append([]uint64(nil), t.TargetAssetIDs...)
	if t.Outcome != nil {
		out := *t.Outcome
		if t.Outcome.Err != nil {
			errDetail := *t.Outcome.Err
			out.Err = &errDetail
		}
		cp.Outcome = &out
	}
	return &cp
}
