package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nft-repin/internal/export"
	"github.com/nft-repin/internal/gateway"
	"github.com/nft-repin/internal/indexer"
	"github.com/nft-repin/internal/models"
	"github.com/nft-repin/internal/pinning"
	"github.com/nft-repin/internal/service"
	"github.com/nft-repin/internal/types"
)

// stubService is a scriptable CollectionServiceInterface
type stubService struct {
	preview  *service.Preview
	run      *models.MigrationRun
	runs     []*models.MigrationRun
	assets   []*models.AssetRecord
	err      error
	lastArgs struct {
		address  string
		provider string
		creds    pinning.Credentials
	}
}

func (s *stubService) AnalyzeCollection(ctx context.Context, address string) (*service.Preview, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.preview, nil
}

func (s *stubService) StartMigration(ctx context.Context, address, provider string, creds pinning.Credentials) (*models.MigrationRun, error) {
	s.lastArgs.address = address
	s.lastArgs.provider = provider
	s.lastArgs.creds = creds
	if s.err != nil {
		return nil, s.err
	}
	return s.run, nil
}

func (s *stubService) RetryRun(ctx context.Context, runID string) (*models.MigrationRun, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.run, nil
}

func (s *stubService) CancelRun(runID string) error { return s.err }

func (s *stubService) GetRun(runID string) (*models.MigrationRun, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.run, nil
}

func (s *stubService) ListRuns() []*models.MigrationRun { return s.runs }

func (s *stubService) RunAssets(runID string) ([]*models.AssetRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.assets, nil
}

func (s *stubService) ExportRun(runID string, format service.ExportFormat, w io.Writer) error {
	if s.err != nil {
		return s.err
	}
	if format == service.FormatJSON {
		return export.WriteJSON(w, s.assets)
	}
	return export.WriteCSV(w, s.assets)
}

func sampleRun() *models.MigrationRun {
	return &models.MigrationRun{
		ID:                "run-1",
		CollectionAddress: "ADDR",
		Provider:          "filebase",
		Status:            types.RunRunning,
		Topology:          types.TopologyIndividual,
		TotalAssets:       2,
		UniqueCIDs:        2,
		StartedAt:         time.Now().UTC(),
	}
}

func newTestServer(svc CollectionServiceInterface, gw GatewayClientInterface) *Server {
	return NewServer(DefaultServerConfig("127.0.0.1", "0"), svc, gw)
}

func doRequest(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer(&stubService{}, nil)

	rec := doRequest(t, server, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestHandleAnalyzeCollection(t *testing.T) {
	svc := &stubService{preview: &service.Preview{
		Address: "ADDR",
		Plan: &models.CollectionPlan{
			Topology:    types.TopologyDirectory,
			UniqueCIDs:  []string{"bafkreione"},
			TotalAssets: 5,
		},
	}}
	server := newTestServer(svc, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/collections/ADDR/analysis", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var preview service.Preview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.Equal(t, types.TopologyDirectory, preview.Plan.Topology)
}

func TestHandleAnalyzeCollectionInvalidAddress(t *testing.T) {
	svc := &stubService{err: &indexer.FetchError{
		Kind:    indexer.ErrKindInvalidAddress,
		Message: "address must be 58 characters",
	}}
	server := newTestServer(svc, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/collections/notanaddress/analysis", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrCodeInvalidInput)
}

func TestHandleStartMigration(t *testing.T) {
	svc := &stubService{run: sampleRun()}
	server := newTestServer(svc, nil)

	rec := doRequest(t, server, http.MethodPost, "/api/migrations", map[string]interface{}{
		"address":  "ADDR",
		"provider": "filebase",
		"credentials": map[string]string{
			"token": "tok",
		},
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ADDR", svc.lastArgs.address)
	assert.Equal(t, "filebase", svc.lastArgs.provider)
	assert.Equal(t, "tok", svc.lastArgs.creds.Token)

	var run models.MigrationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "run-1", run.ID)
}

func TestHandleStartMigrationValidation(t *testing.T) {
	server := newTestServer(&stubService{}, nil)

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "missing fields", body: map[string]string{"address": "ADDR"}},
		{name: "unknown field", body: map[string]string{"address": "ADDR", "provider": "filebase", "bogus": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, server, http.MethodPost, "/api/migrations", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleStartMigrationAuthFailure(t *testing.T) {
	svc := &stubService{err: &pinning.PinError{
		Kind:     pinning.ErrKindAuthFailed,
		Provider: "filebase",
		Message:  "HTTP 401",
	}}
	server := newTestServer(svc, nil)

	rec := doRequest(t, server, http.MethodPost, "/api/migrations", map[string]interface{}{
		"address":  "ADDR",
		"provider": "filebase",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrCodeAuthFailed)
}

func TestHandleGetRun(t *testing.T) {
	svc := &stubService{run: sampleRun()}
	server := newTestServer(svc, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/migrations/run-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var run models.MigrationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "run-1", run.ID)
}

func TestHandleGetRunNotFound(t *testing.T) {
	svc := &stubService{err: service.ErrRunNotFound}
	server := newTestServer(svc, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/migrations/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrCodeNotFound)
}

func TestHandleRetryRunConflict(t *testing.T) {
	svc := &stubService{err: service.ErrRunActive}
	server := newTestServer(svc, nil)

	rec := doRequest(t, server, http.MethodPost, "/api/migrations/run-1/retry", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleExportRunCSV(t *testing.T) {
	svc := &stubService{
		run: sampleRun(),
		assets: []*models.AssetRecord{
			{AssetID: 1, Name: "one", CID: "bafkreione", Status: types.AssetPinned},
		},
	}
	server := newTestServer(svc, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/migrations/run-1/export?format=csv", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "asset_id,"))
}

func TestHandleExportRunUnsupportedFormat(t *testing.T) {
	svc := &stubService{run: sampleRun()}
	server := newTestServer(svc, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/migrations/run-1/export?format=xml", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListProviders(t *testing.T) {
	server := newTestServer(&stubService{}, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/providers", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Providers []string `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Providers, "filebase")
	assert.Contains(t, resp.Providers, "pinata")
}

// stubGateway is a canned GatewayClientInterface
type stubGateway struct {
	result   *gateway.ProbeResult
	size     int64
	sizeErr  error
	estimate *gateway.SizeEstimate
}

func (s *stubGateway) Probe(ctx context.Context, cid string) *gateway.ProbeResult {
	return s.result
}

func (s *stubGateway) ContentSize(ctx context.Context, cid string) (int64, error) {
	return s.size, s.sizeErr
}

func (s *stubGateway) EstimateCollectionSize(ctx context.Context, cids []string, sampleCount int) (*gateway.SizeEstimate, error) {
	if s.estimate == nil {
		return nil, errors.New("no samples")
	}
	return s.estimate, nil
}

func TestHandleProbeCID(t *testing.T) {
	gw := &stubGateway{result: &gateway.ProbeResult{
		CID:             "bafkreione",
		PublicAvailable: 4,
		Risk:            gateway.RiskLow,
	}}
	server := newTestServer(&stubService{}, gw)

	rec := doRequest(t, server, http.MethodGet, "/api/cids/bafkreione/risk", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var result gateway.ProbeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, gateway.RiskLow, result.Risk)
}

func TestHandleProbeCIDUnconfigured(t *testing.T) {
	server := newTestServer(&stubService{}, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/cids/bafkreione/risk", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleContentSize(t *testing.T) {
	server := newTestServer(&stubService{}, &stubGateway{size: 123456})

	rec := doRequest(t, server, http.MethodGet, "/api/cids/bafkreione/size", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		CID  string `json:"cid"`
		Size int64  `json:"size"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bafkreione", resp.CID)
	assert.Equal(t, int64(123456), resp.Size)
}

func TestHandleContentSizeUnavailable(t *testing.T) {
	gw := &stubGateway{sizeErr: errors.New("all gateways failed")}
	server := newTestServer(&stubService{}, gw)

	rec := doRequest(t, server, http.MethodGet, "/api/cids/bafkreione/size", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSizeEstimate(t *testing.T) {
	svc := &stubService{preview: &service.Preview{
		Address: "ADDR",
		Plan: &models.CollectionPlan{
			Topology:    types.TopologyIndividual,
			UniqueCIDs:  []string{"bafkreione", "bafkreitwo"},
			TotalAssets: 2,
		},
	}}
	gw := &stubGateway{estimate: &gateway.SizeEstimate{
		SampleCount:   2,
		AverageBytes:  1000,
		EstimateBytes: 2000,
	}}
	server := newTestServer(svc, gw)

	rec := doRequest(t, server, http.MethodGet, "/api/collections/ADDR/size-estimate", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var estimate gateway.SizeEstimate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &estimate))
	assert.Equal(t, int64(2000), estimate.EstimateBytes)
}

func TestHandleSizeEstimateInvalidSample(t *testing.T) {
	server := newTestServer(&stubService{}, &stubGateway{})

	rec := doRequest(t, server, http.MethodGet, "/api/collections/ADDR/size-estimate?sample=zero", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
