package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/nft-repin/internal/pinning"
	"github.com/nft-repin/internal/service"
)

// handleAnalyzeCollection fetches and analyzes a collection without pinning
func (s *Server) handleAnalyzeCollection(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	preview, err := s.collection.AnalyzeCollection(r.Context(), address)
	if err != nil {
		respondMappedError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, preview)
}

// startMigrationRequest is the migration submission body
type startMigrationRequest struct {
	Address     string `json:"address"`
	Provider    string `json:"provider"`
	Credentials struct {
		Token  string `json:"token,omitempty"`
		Key    string `json:"key,omitempty"`
		Secret string `json:"secret,omitempty"`
	} `json:"credentials"`
}

// handleStartMigration starts an asynchronous migration run
func (s *Server) handleStartMigration(w http.ResponseWriter, r *http.Request) {
	var req startMigrationRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body: "+err.Error(), nil)
		return
	}
	if req.Address == "" || req.Provider == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "address and provider are required", nil)
		return
	}

	run, err := s.collection.StartMigration(r.Context(), req.Address, req.Provider, pinning.Credentials{
		Token:  req.Credentials.Token,
		Key:    req.Credentials.Key,
		Secret: req.Credentials.Secret,
	})
	if err != nil {
		respondMappedError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, run)
}

// handleListRuns lists known migration runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs": s.collection.ListRuns(),
	})
}

// handleGetRun returns one run's current state
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.collection.GetRun(mux.Vars(r)["id"])
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// handleRetryRun re-runs a settled run's failed tasks
func (s *Server) handleRetryRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.collection.RetryRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, run)
}

// handleCancelRun stops a running migration
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	if err := s.collection.CancelRun(mux.Vars(r)["id"]); err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// handleRunAssets returns the run's per-asset records
func (s *Server) handleRunAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.collection.RunAssets(mux.Vars(r)["id"])
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"assets": assets,
	})
}

// handleExportRun streams the run report as CSV or JSON
func (s *Server) handleExportRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	format := service.ExportFormat(r.URL.Query().Get("format"))

	// Resolve the run before any headers go out.
	if _, err := s.collection.GetRun(runID); err != nil {
		respondMappedError(w, err)
		return
	}

	switch format {
	case service.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case service.FormatCSV, "":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "repin-"+runID+".csv"))
	default:
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "unsupported export format: "+string(format), nil)
		return
	}

	if err := s.collection.ExportRun(runID, format, w); err != nil {
		respondMappedError(w, err)
		return
	}
}

// handleListProviders lists the supported pinning services
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"providers": pinning.Supported(),
	})
}

// handleProbeCID reports a CID's gateway redundancy
func (s *Server) handleProbeCID(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "content probing is not configured", nil)
		return
	}

	result := s.gateway.Probe(r.Context(), mux.Vars(r)["cid"])
	respondJSON(w, http.StatusOK, result)
}

// handleContentSize reports the byte size of a CID's content
func (s *Server) handleContentSize(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "content probing is not configured", nil)
		return
	}

	cid := mux.Vars(r)["cid"]
	size, err := s.gateway.ContentSize(r.Context(), cid)
	if err != nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "could not determine content size", map[string]interface{}{"cid": cid})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"cid":  cid,
		"size": size,
	})
}

// handleSizeEstimate samples a collection's CIDs and extrapolates its
// storage footprint.
func (s *Server) handleSizeEstimate(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "content probing is not configured", nil)
		return
	}

	preview, err := s.collection.AnalyzeCollection(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		respondMappedError(w, err)
		return
	}

	sampleCount := 0
	if v := r.URL.Query().Get("sample"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "sample must be a positive integer", nil)
			return
		}
		sampleCount = n
	}

	estimate, err := s.gateway.EstimateCollectionSize(r.Context(), preview.Plan.UniqueCIDs, sampleCount)
	if err != nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "could not estimate collection size", nil)
		return
	}
	respondJSON(w, http.StatusOK, estimate)
}
