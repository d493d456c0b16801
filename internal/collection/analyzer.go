// Package collection turns a fetched asset list into a migration plan:
// decode every asset's CID, deduplicate, and classify the collection's
// content topology.
package collection

import (
	"context"
	"sort"

	"github.com/nft-repin/internal/arc19"
	"github.com/nft-repin/internal/logging"
	"github.com/nft-repin/internal/models"
	"github.com/nft-repin/internal/types"
)

// DecodeAll resolves the IPFS CID for every asset in place. Assets whose URL
// yields no CID are marked skipped with the decode failure attached; all
// others start pending. The input slice is annotated and returned.
func DecodeAll(ctx context.Context, assets []*models.AssetRecord) []*models.AssetRecord {
	logger := logging.FromContext(ctx)

	decoded := 0
	for _, asset := range assets {
		cid, err := arc19.ExtractCID(asset.URL, asset.AddressFields)
		if err != nil {
			asset.Status = types.AssetSkipped
			asset.LastError = arc19.Detail(err)
			logger.WithFields(map[string]interface{}{
				"assetId": asset.AssetID,
				"url":     asset.URL,
			}).WithError(err).Debug("asset has no decodable CID, skipping")
			continue
		}
		asset.CID = cid
		asset.Status = types.AssetPending
		decoded++
	}

	logger.WithFields(map[string]interface{}{
		"total":   len(assets),
		"decoded": decoded,
		"skipped": len(assets) - decoded,
	}).Info("decoded collection asset URLs")

	return assets
}

// Analyze reduces annotated assets to the unique-CID worklist and classifies
// the topology. UniqueCIDs and every CIDToAssets bucket are sorted so the
// same input always yields the same plan.
func Analyze(assets []*models.AssetRecord) *models.CollectionPlan {
	plan := &models.CollectionPlan{
		CIDToAssets: make(map[string][]uint64),
		TotalAssets: len(assets),
	}

	for _, asset := range assets {
		if !asset.HasCID() {
			plan.SkippedAssetIDs = append(plan.SkippedAssetIDs, asset.AssetID)
			continue
		}
		plan.CIDToAssets[asset.CID] = append(plan.CIDToAssets[asset.CID], asset.AssetID)
	}

	plan.UniqueCIDs = make([]string, 0, len(plan.CIDToAssets))
	for cid, ids := range plan.CIDToAssets {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		plan.UniqueCIDs = append(plan.UniqueCIDs, cid)
	}
	sort.Strings(plan.UniqueCIDs)
	sort.Slice(plan.SkippedAssetIDs, func(i, j int) bool {
		return plan.SkippedAssetIDs[i] < plan.SkippedAssetIDs[j]
	})

	plan.Topology = classify(len(plan.UniqueCIDs), plan.TotalAssets-len(plan.SkippedAssetIDs))
	return plan
}

// classify maps CID cardinality onto the topology taxonomy. One CID backing
// several assets indicates a folder CID with per-asset paths.
func classify(uniqueCIDs, decodedAssets int) types.Topology {
	switch {
	case decodedAssets == 0:
		return types.TopologyIndividual
	case uniqueCIDs == 1 && decodedAssets > 1:
		return types.TopologyDirectory
	case uniqueCIDs == decodedAssets:
		return types.TopologyIndividual
	default:
		return types.TopologyMixed
	}
}
