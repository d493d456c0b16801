// Package gateway reads collection content through public IPFS gateways:
// metadata retrieval, content sizing, and availability probing for CIDs
// hosted on services that are shutting down.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nft-repin/internal/logging"
)

// DefaultGateways are the public gateways tried in order
var DefaultGateways = []string{
	"https://ipfs.io/ipfs/",
	"https://gateway.ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
}

// legacyGateways serve content pinned only on the retiring old.web3.storage
// infrastructure. Availability here without public-gateway availability
// means the content disappears when that service unpins.
var legacyGateways = []string{
	"https://nftstorage.link/ipfs/",
	"https://w3s.link/ipfs/",
}

// probeGateways are the wider public set used for redundancy probing
var probeGateways = []string{
	"https://ipfs.io/ipfs/",
	"https://gateway.ipfs.io/ipfs/",
	"https://dweb.link/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://cf-ipfs.com/ipfs/",
	"https://gateway.pinata.cloud/ipfs/",
}

// maxMetadataSize caps the metadata document size read from a gateway
const maxMetadataSize = 1 << 20

// Risk classifies a CID's redundancy across public gateways
type Risk string

const (
	// RiskHigh means the content is only reachable through retiring gateways
	RiskHigh Risk = "high"
	// RiskMedium means the content is on two or fewer public gateways
	RiskMedium Risk = "medium"
	// RiskLow means the content is well distributed
	RiskLow Risk = "low"
	// RiskUnreachable means no tested gateway served the content
	RiskUnreachable Risk = "unreachable"
)

// Client fetches IPFS content through an ordered gateway list
type Client struct {
	gateways []string
	probe    []string
	legacy   []string
	client   *http.Client
}

// NewClient creates a gateway client. An empty gateway list uses the defaults.
func NewClient(gateways []string, timeout time.Duration) *Client {
	if len(gateways) == 0 {
		gateways = DefaultGateways
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		gateways: gateways,
		probe:    probeGateways,
		legacy:   legacyGateways,
		client:   &http.Client{Timeout: timeout},
	}
}

// Metadata is a fetched NFT metadata document. ImageCID is set when the
// document's image field is an ipfs:// URL.
type Metadata struct {
	Raw      json.RawMessage `json:"raw"`
	Name     string          `json:"name,omitempty"`
	Image    string          `json:"image,omitempty"`
	ImageCID string          `json:"imageCid,omitempty"`
}

type metadataDoc struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// FetchMetadata fetches the metadata document behind a CID, trying each
// gateway in order until one answers.
func (c *Client) FetchMetadata(ctx context.Context, cid string) (*Metadata, error) {
	logger := logging.FromContext(ctx).WithField("cid", cid)

	var lastErr error
	for _, gw := range c.gateways {
		raw, err := c.fetch(ctx, gw+cid)
		if err != nil {
			logger.WithError(err).WithField("gateway", gw).Debug("metadata fetch failed, trying next gateway")
			lastErr = err
			continue
		}

		var doc metadataDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			lastErr = fmt.Errorf("invalid metadata JSON from %s: %w", gw, err)
			continue
		}

		meta := &Metadata{
			Raw:   raw,
			Name:  doc.Name,
			Image: doc.Image,
		}
		if cid, ok := imageCID(doc.Image); ok {
			meta.ImageCID = cid
		}
		return meta, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no gateways configured")
	}
	return nil, fmt.Errorf("failed to fetch metadata for %s: %w", cid, lastErr)
}

// imageCID extracts the CID from an ipfs:// image URL
func imageCID(image string) (string, bool) {
	rest, ok := strings.CutPrefix(image, "ipfs://")
	if !ok {
		return "", false
	}
	rest, _, _ = strings.Cut(rest, "#")
	rest, _, _ = strings.Cut(rest, "/")
	if rest == "" {
		return "", false
	}
	return rest, true
}

// ContentSize reports the byte size of a CID's content. HEAD is tried on
// each gateway first; gateways that omit Content-Length get a one-byte
// range request so the size can be read from Content-Range.
func (c *Client) ContentSize(ctx context.Context, cid string) (int64, error) {
	for _, gw := range c.gateways {
		size, err := c.headSize(ctx, gw+cid)
		if err == nil && size > 0 {
			return size, nil
		}
	}

	for _, gw := range c.gateways {
		size, err := c.rangeSize(ctx, gw+cid)
		if err == nil && size > 0 {
			return size, nil
		}
	}

	return 0, fmt.Errorf("could not determine content size for %s", cid)
}

// SampleSize is the measured footprint of one sampled CID. ImageBytes is
// nonzero only when the metadata referenced a sizable ipfs:// image.
type SampleSize struct {
	CID           string `json:"cid"`
	MetadataBytes int64  `json:"metadataBytes"`
	ImageBytes    int64  `json:"imageBytes"`
}

// SizeEstimate extrapolates a collection's storage footprint from a sample
type SizeEstimate struct {
	SampleCount   int          `json:"sampleCount"`
	AverageBytes  int64        `json:"averageBytes"`
	EstimateBytes int64        `json:"estimateBytes"`
	Samples       []SampleSize `json:"samples"`
}

// defaultSampleCount bounds how many CIDs get downloaded for sizing
const defaultSampleCount = 3

// EstimateCollectionSize sizes the first few CIDs of a collection, including
// the image each metadata document points at, and extrapolates the average
// over the whole collection. CIDs that cannot be sized are recorded but do
// not contribute to the average.
func (c *Client) EstimateCollectionSize(ctx context.Context, cids []string, sampleCount int) (*SizeEstimate, error) {
	if len(cids) == 0 {
		return &SizeEstimate{}, nil
	}
	if sampleCount <= 0 {
		sampleCount = defaultSampleCount
	}
	if sampleCount > len(cids) {
		sampleCount = len(cids)
	}

	logger := logging.FromContext(ctx)
	estimate := &SizeEstimate{SampleCount: sampleCount}

	var totalBytes int64
	var sized int
	for _, cid := range cids[:sampleCount] {
		sample := SampleSize{CID: cid}

		if size, err := c.ContentSize(ctx, cid); err == nil {
			sample.MetadataBytes = size
		} else {
			logger.WithError(err).WithField("cid", cid).Debug("could not size metadata")
		}

		if meta, err := c.FetchMetadata(ctx, cid); err == nil && meta.ImageCID != "" {
			if size, err := c.ContentSize(ctx, meta.ImageCID); err == nil {
				sample.ImageBytes = size
			}
		}

		if total := sample.MetadataBytes + sample.ImageBytes; total > 0 {
			totalBytes += total
			sized++
		}
		estimate.Samples = append(estimate.Samples, sample)
	}

	if sized == 0 {
		return estimate, fmt.Errorf("no sampled CID could be sized")
	}

	estimate.AverageBytes = totalBytes / int64(sized)
	estimate.EstimateBytes = estimate.AverageBytes * int64(len(cids))
	return estimate, nil
}

// ProbeResult is the availability report for one CID
type ProbeResult struct {
	CID             string `json:"cid"`
	PublicAvailable int    `json:"publicAvailable"`
	LegacyAvailable int    `json:"legacyAvailable"`
	Risk            Risk   `json:"risk"`
}

// Probe tests a CID across the public and retiring gateway sets and
// classifies its redundancy.
func (c *Client) Probe(ctx context.Context, cid string) *ProbeResult {
	result := &ProbeResult{CID: cid}

	for _, gw := range c.probe {
		if c.available(ctx, gw+cid) {
			result.PublicAvailable++
		}
	}
	for _, gw := range c.legacy {
		if c.available(ctx, gw+cid) {
			result.LegacyAvailable++
		}
	}

	switch {
	case result.PublicAvailable == 0 && result.LegacyAvailable > 0:
		result.Risk = RiskHigh
	case result.PublicAvailable == 0:
		result.Risk = RiskUnreachable
	case result.PublicAvailable <= 2:
		result.Risk = RiskMedium
	default:
		result.Risk = RiskLow
	}
	return result
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
}

func (c *Client) headSize(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.ContentLength, nil
}

func (c *Client) rangeSize(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	// Content-Range: bytes 0-0/12345
	contentRange := resp.Header.Get("Content-Range")
	_, total, ok := strings.Cut(contentRange, "/")
	if !ok {
		return 0, fmt.Errorf("no content range in response")
	}
	return strconv.ParseInt(total, 10, 64)
}

func (c *Client) available(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
