// Package export renders migration results as CSV and JSON reports.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/nft-repin/internal/models"
)

// csvHeader is the stable column set; consumers diff exports between runs,
// so order never changes.
var csvHeader = []string{
	"asset_id",
	"asset_name",
	"asset_url",
	"cid",
	"status",
	"repin_cid",
	"error_message",
}

// WriteCSV writes one row per asset in the order given
func WriteCSV(w io.Writer, assets []*models.AssetRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, asset := range assets {
		var repinCID, errMessage string
		if asset.RepinResult != nil {
			repinCID = asset.RepinResult.CID
		}
		if asset.LastError != nil {
			errMessage = asset.LastError.Message
		}
		row := []string{
			strconv.FormatUint(asset.AssetID, 10),
			asset.Name,
			asset.URL,
			asset.CID,
			string(asset.Status),
			repinCID,
			errMessage,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// jsonRow mirrors the CSV columns field for field
type jsonRow struct {
	AssetID      uint64 `json:"asset_id"`
	AssetName    string `json:"asset_name"`
	AssetURL     string `json:"asset_url"`
	CID          string `json:"cid"`
	Status       string `json:"status"`
	RepinCID     string `json:"repin_cid,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// WriteJSON writes the same report as a JSON array
func WriteJSON(w io.Writer, assets []*models.AssetRecord) error {
	rows := make([]jsonRow, 0, len(assets))
	for _, asset := range assets {
		row := jsonRow{
			AssetID:   asset.AssetID,
			AssetName: asset.Name,
			AssetURL:  asset.URL,
			CID:       asset.CID,
			Status:    string(asset.Status),
		}
		if asset.RepinResult != nil {
			row.RepinCID = asset.RepinResult.CID
		}
		if asset.LastError != nil {
			row.ErrorMessage = asset.LastError.Message
		}
		rows = append(rows, row)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("failed to encode JSON report: %w", err)
	}
	return nil
}
