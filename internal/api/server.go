// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nft-repin/internal/gateway"
	"github.com/nft-repin/internal/logging"
	"github.com/nft-repin/internal/models"
	"github.com/nft-repin/internal/pinning"
	"github.com/nft-repin/internal/service"
)

// CollectionServiceInterface defines the orchestration operations the API exposes
type CollectionServiceInterface interface {
	AnalyzeCollection(ctx context.Context, address string) (*service.Preview, error)
	StartMigration(ctx context.Context, address, provider string, creds pinning.Credentials) (*models.MigrationRun, error)
	RetryRun(ctx context.Context, runID string) (*models.MigrationRun, error)
	CancelRun(runID string) error
	GetRun(runID string) (*models.MigrationRun, error)
	ListRuns() []*models.MigrationRun
	RunAssets(runID string) ([]*models.AssetRecord, error)
	ExportRun(runID string, format service.ExportFormat, w io.Writer) error
}

// GatewayClientInterface defines the content probing operations the API exposes
type GatewayClientInterface interface {
	Probe(ctx context.Context, cid string) *gateway.ProbeResult
	ContentSize(ctx context.Context, cid string) (int64, error)
	EstimateCollectionSize(ctx context.Context, cids []string, sampleCount int) (*gateway.SizeEstimate, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	collection CollectionServiceInterface
	gateway    GatewayClientInterface
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns the standard timeouts
func DefaultServerConfig(host, port string) *ServerConfig {
	return &ServerConfig{
		Host:            host,
		Port:            port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, collection CollectionServiceInterface, gw GatewayClientInterface) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		collection: collection,
		gateway:    gw,
		config:     config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Collection endpoints
	api.HandleFunc("/collections/{address}/analysis", s.handleAnalyzeCollection).Methods("GET")
	api.HandleFunc("/collections/{address}/size-estimate", s.handleSizeEstimate).Methods("GET")

	// Migration run endpoints
	api.HandleFunc("/migrations", s.handleStartMigration).Methods("POST")
	api.HandleFunc("/migrations", s.handleListRuns).Methods("GET")
	api.HandleFunc("/migrations/{id}", s.handleGetRun).Methods("GET")
	api.HandleFunc("/migrations/{id}/retry", s.handleRetryRun).Methods("POST")
	api.HandleFunc("/migrations/{id}/cancel", s.handleCancelRun).Methods("POST")
	api.HandleFunc("/migrations/{id}/assets", s.handleRunAssets).Methods("GET")
	api.HandleFunc("/migrations/{id}/export", s.handleExportRun).Methods("GET")

	// Provider and content endpoints
	api.HandleFunc("/providers", s.handleListProviders).Methods("GET")
	api.HandleFunc("/cids/{cid}/risk", s.handleProbeCID).Methods("GET")
	api.HandleFunc("/cids/{cid}/size", s.handleContentSize).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "nft-repin",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Default().WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Default().Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the configured router, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}
