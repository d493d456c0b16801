package models

import (
	"time"

	"github.com/nft-repin/internal/types"
)

// MigrationRun is one end-to-end migration of a collection to a destination
// provider. Counts are filled in as tasks settle and become final when the
// run reaches a terminal status.
type MigrationRun struct {
	ID                string          `json:"id" db:"id"`
	CollectionAddress string          `json:"collectionAddress" db:"collection_address"`
	Provider          string          `json:"provider" db:"provider"`
	Status            types.RunStatus `json:"status" db:"status"`
	Topology          types.Topology  `json:"topology" db:"topology"`
	TotalAssets       int             `json:"totalAssets" db:"total_assets"`
	UniqueCIDs        int             `json:"uniqueCids" db:"unique_cids"`
	Pinned            int             `json:"pinned" db:"pinned"`
	Failed            int             `json:"failed" db:"failed"`
	Skipped           int             `json:"skipped" db:"skipped"`
	FromCache         int             `json:"fromCache" db:"from_cache"`
	StartedAt         time.Time       `json:"startedAt" db:"started_at"`
	FinishedAt        *time.Time      `json:"finishedAt,omitempty" db:"finished_at"`
}

// Terminal reports whether the run has stopped processing
func (r *MigrationRun) Terminal() bool {
	return r.Status == types.RunCompleted || r.Status == types.RunAborted
}
