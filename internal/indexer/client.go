// Package indexer provides a read-only client for the Algorand indexer API.
// It fetches every asset created by a wallet address, following the
// indexer's next-token pagination sequentially.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nft-repin/internal/arc19"
	"github.com/nft-repin/internal/logging"
	"github.com/nft-repin/internal/models"
	"github.com/nft-repin/internal/types"
)

// DefaultBaseURL is the public mainnet indexer endpoint
const DefaultBaseURL = "https://mainnet-idx.algonode.cloud"

// Client handles API calls to an Algorand indexer
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new indexer client. An empty baseURL selects the
// public mainnet endpoint.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// createdAssetsResponse represents one page of the created-assets endpoint
type createdAssetsResponse struct {
	Assets    []indexerAsset `json:"assets"`
	NextToken string         `json:"next-token"`
}

// indexerAsset represents a single asset as published by the indexer
type indexerAsset struct {
	Index   uint64      `json:"index"`
	Deleted bool        `json:"deleted"`
	Params  assetParams `json:"params"`
}

// assetParams holds the on-chain asset parameters the decoder needs
type assetParams struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Reserve  string `json:"reserve"`
	Manager  string `json:"manager"`
	Freeze   string `json:"freeze"`
	Clawback string `json:"clawback"`
}

// FetchCreatedAssets fetches all assets created by the given wallet address,
// page by page. Pagination is sequential: each page depends on the previous
// page's continuation token. Deleted assets are dropped. An empty result with
// a nil error means the address genuinely created zero assets.
func (c *Client) FetchCreatedAssets(ctx context.Context, address string) ([]*models.AssetRecord, error) {
	logger := logging.FromContext(ctx)

	if !arc19.ValidAddress(address) {
		return nil, &FetchError{
			Kind:    ErrKindInvalidAddress,
			Message: fmt.Sprintf("not a valid Algorand address: %s", address),
		}
	}

	var records []*models.AssetRecord
	nextToken := ""
	page := 0

	for {
		select {
		case <-ctx.Done():
			return nil, &FetchError{Kind: ErrKindNetworkFailure, Message: "fetch cancelled", Cause: ctx.Err()}
		default:
		}

		resp, err := c.fetchPage(ctx, address, nextToken)
		if err != nil {
			return nil, err
		}

		logger.WithFields(map[string]interface{}{
			"address": address,
			"page":    page,
			"assets":  len(resp.Assets),
		}).Debug("Fetched created-assets page")

		for _, asset := range resp.Assets {
			if asset.Deleted {
				continue
			}
			records = append(records, toAssetRecord(asset))
		}

		if resp.NextToken == "" {
			break
		}
		nextToken = resp.NextToken
		page++
	}

	logger.WithFields(map[string]interface{}{
		"address": address,
		"assets":  len(records),
		"pages":   page + 1,
	}).Info("Fetched collection from indexer")

	return records, nil
}

// fetchPage requests a single page of created assets
func (c *Client) fetchPage(ctx context.Context, address, nextToken string) (*createdAssetsResponse, error) {
	reqURL := fmt.Sprintf("%s/v2/accounts/%s/created-assets?include-all=true", c.baseURL, address)
	if nextToken != "" {
		reqURL += "&next=" + url.QueryEscape(nextToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: ErrKindNetworkFailure, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: ErrKindNetworkFailure, Message: "indexer request failed", Cause: err}
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, &FetchError{Kind: ErrKindNetworkFailure, Message: "failed to read indexer response", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Kind:    ErrKindNetworkFailure,
			Message: fmt.Sprintf("indexer returned HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	var page createdAssetsResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &FetchError{Kind: ErrKindNetworkFailure, Message: "failed to parse indexer response", Cause: err}
	}

	return &page, nil
}

// toAssetRecord converts an indexer asset into the internal record shape
func toAssetRecord(asset indexerAsset) *models.AssetRecord {
	fields := make(map[types.AddressRole]string, 4)
	if asset.Params.Reserve != "" {
		fields[types.RoleReserve] = asset.Params.Reserve
	}
	if asset.Params.Manager != "" {
		fields[types.RoleManager] = asset.Params.Manager
	}
	if asset.Params.Freeze != "" {
		fields[types.RoleFreeze] = asset.Params.Freeze
	}
	if asset.Params.Clawback != "" {
		fields[types.RoleClawback] = asset.Params.Clawback
	}

	return &models.AssetRecord{
		AssetID:       asset.Index,
		Name:          asset.Params.Name,
		URL:           asset.Params.URL,
		AddressFields: fields,
		Status:        types.AssetPending,
	}
}
