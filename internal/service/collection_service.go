// Package service orchestrates the repinning workflow: fetch a collection
// from the indexer, analyze it, and drive migration runs against a
// destination provider.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nft-repin/internal/collection"
	"github.com/nft-repin/internal/engine"
	"github.com/nft-repin/internal/export"
	"github.com/nft-repin/internal/logging"
	"github.com/nft-repin/internal/models"
	"github.com/nft-repin/internal/pinning"
	"github.com/nft-repin/internal/storage"
	"github.com/nft-repin/internal/types"
)

// ErrRunNotFound is returned when a run id is unknown
var ErrRunNotFound = errors.New("migration run not found")

// ErrRunActive is returned when an operation needs a settled run
var ErrRunActive = errors.New("migration run still active")

// AssetFetcher lists the assets created by a collection address
type AssetFetcher interface {
	FetchCreatedAssets(ctx context.Context, address string) ([]*models.AssetRecord, error)
}

// RunStore persists migration runs; nil disables persistence
type RunStore interface {
	Create(ctx context.Context, run *models.MigrationRun) error
	Update(ctx context.Context, run *models.MigrationRun) error
}

// AssetStore persists per-run asset records; nil disables persistence
type AssetStore interface {
	SaveAll(ctx context.Context, runID string, assets []*models.AssetRecord) error
}

// TaskStore persists per-run migration tasks; nil disables persistence
type TaskStore interface {
	Save(ctx context.Context, runID string, task *models.MigrationTask) error
}

// ProviderFactory constructs a pinning provider by service name
type ProviderFactory func(service string, creds pinning.Credentials) (pinning.Provider, error)

// CollectionService is the orchestration layer behind the API and CLI
type CollectionService struct {
	fetcher     AssetFetcher
	cache       storage.OutcomeCache
	engineOpts  engine.Options
	newProvider ProviderFactory
	runStore    RunStore
	assetStore  AssetStore
	taskStore   TaskStore

	mu   sync.RWMutex
	runs map[string]*runState
}

// runState is the in-memory record of one run
type runState struct {
	mu     sync.RWMutex
	run    *models.MigrationRun
	creds  pinning.Credentials
	assets []*models.AssetRecord
	tasks  []*models.MigrationTask
	cancel context.CancelFunc
	done   chan struct{}
}

// Deps are the service's collaborators. The stores may be nil; a nil
// NewProvider uses the pinning factory.
type Deps struct {
	Fetcher     AssetFetcher
	Cache       storage.OutcomeCache
	EngineOpts  engine.Options
	NewProvider ProviderFactory
	RunStore    RunStore
	AssetStore  AssetStore
	TaskStore   TaskStore
}

// NewCollectionService creates the orchestration service
func NewCollectionService(deps Deps) *CollectionService {
	if deps.NewProvider == nil {
		deps.NewProvider = pinning.New
	}
	return &CollectionService{
		fetcher:     deps.Fetcher,
		cache:       deps.Cache,
		engineOpts:  deps.EngineOpts,
		newProvider: deps.NewProvider,
		runStore:    deps.RunStore,
		assetStore:  deps.AssetStore,
		taskStore:   deps.TaskStore,
		runs:        make(map[string]*runState),
	}
}

// Preview is the analysis of a collection before any pinning happens
type Preview struct {
	Address string                 `json:"address"`
	Assets  []*models.AssetRecord  `json:"assets"`
	Plan    *models.CollectionPlan `json:"plan"`
}

// AnalyzeCollection fetches a collection and computes its migration plan
// without submitting any pins.
func (s *CollectionService) AnalyzeCollection(ctx context.Context, address string) (*Preview, error) {
	assets, err := s.fetcher.FetchCreatedAssets(ctx, address)
	if err != nil {
		return nil, err
	}

	collection.DecodeAll(ctx, assets)
	plan := collection.Analyze(assets)

	return &Preview{Address: address, Assets: assets, Plan: plan}, nil
}

// StartMigration analyzes a collection and starts an asynchronous migration
// run against the named provider. The returned run is a snapshot; progress
// is observed through GetRun.
func (s *CollectionService) StartMigration(ctx context.Context, address, providerName string, creds pinning.Credentials) (*models.MigrationRun, error) {
	provider, err := s.newProvider(providerName, creds)
	if err != nil {
		return nil, err
	}

	preview, err := s.AnalyzeCollection(ctx, address)
	if err != nil {
		return nil, err
	}

	run := &models.MigrationRun{
		ID:                uuid.New().String(),
		CollectionAddress: address,
		Provider:          provider.Name(),
		Status:            types.RunRunning,
		Topology:          preview.Plan.Topology,
		TotalAssets:       preview.Plan.TotalAssets,
		UniqueCIDs:        len(preview.Plan.UniqueCIDs),
		Skipped:           len(preview.Plan.SkippedAssetIDs),
		StartedAt:         time.Now().UTC(),
	}

	state := &runState{
		run:    run,
		creds:  creds,
		assets: preview.Assets,
		tasks:  engine.BuildTasks(preview.Plan),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.runs[run.ID] = state
	s.mu.Unlock()

	if s.runStore != nil {
		if err := s.runStore.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to persist run: %w", err)
		}
	}

	s.launch(state, provider)

	return snapshot(state), nil
}

// RetryRun flips a settled run's failed tasks back to pending and runs them
// again with the same provider and credentials.
func (s *CollectionService) RetryRun(ctx context.Context, runID string) (*models.MigrationRun, error) {
	state, err := s.state(runID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	if !state.run.Terminal() {
		state.mu.Unlock()
		return nil, ErrRunActive
	}
	reset := engine.ResetFailed(state.tasks)
	state.run.Status = types.RunRunning
	state.run.FinishedAt = nil
	provider, perr := s.newProvider(state.run.Provider, state.creds)
	state.mu.Unlock()

	if perr != nil {
		return nil, perr
	}
	if reset == 0 {
		// Nothing to do; settle immediately.
		state.mu.Lock()
		state.run.Status = types.RunCompleted
		now := time.Now().UTC()
		state.run.FinishedAt = &now
		state.mu.Unlock()
		return snapshot(state), nil
	}

	state.mu.Lock()
	state.done = make(chan struct{})
	state.mu.Unlock()
	s.launch(state, provider)

	return snapshot(state), nil
}

// launch runs the engine for a run state in the background
func (s *CollectionService) launch(state *runState, provider pinning.Provider) {
	runCtx, cancel := context.WithCancel(context.Background())
	state.mu.Lock()
	state.cancel = cancel
	done := state.done
	state.mu.Unlock()

	logger := logging.Default().WithFields(map[string]interface{}{
		"runId":    state.run.ID,
		"provider": provider.Name(),
	})
	runCtx = logging.WithLogger(runCtx, logger)

	opts := s.engineOpts
	opts.OnEvent = func(e engine.Event) {
		if e.Type != engine.EventTaskCompleted || e.Task == nil {
			return
		}
		s.onTaskSettled(state, e.Task)
	}

	eng := engine.New(provider, s.cache, opts)

	go func() {
		defer close(done)

		summary, err := eng.Run(runCtx, state.tasks)
		if err != nil {
			logger.WithError(err).Error("migration run aborted")
		}

		state.mu.Lock()
		engine.ProjectAssets(state.tasks, state.assets)
		state.run.Status = summary.Status
		state.run.Pinned = summary.Pinned
		state.run.Failed = summary.Failed
		state.run.FromCache = summary.FromCache
		now := time.Now().UTC()
		state.run.FinishedAt = &now
		state.mu.Unlock()

		s.persist(state)
	}()
}

// onTaskSettled keeps live counts current while the run progresses
func (s *CollectionService) onTaskSettled(state *runState, task *models.MigrationTask) {
	state.mu.Lock()
	switch task.Status {
	case types.TaskPinned:
		state.run.Pinned++
		if task.Outcome != nil && task.Outcome.FromCache {
			state.run.FromCache++
		}
	case types.TaskFailed:
		state.run.Failed++
	}
	state.mu.Unlock()

	if s.taskStore != nil {
		if err := s.taskStore.Save(context.Background(), state.run.ID, task); err != nil {
			logging.Default().WithError(err).WithField("cid", task.CID).Warn("failed to persist task")
		}
	}
}

// persist writes the run's final state to the stores
func (s *CollectionService) persist(state *runState) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	state.mu.RLock()
	run := *state.run
	assets := state.assets
	state.mu.RUnlock()

	if s.runStore != nil {
		if err := s.runStore.Update(ctx, &run); err != nil {
			logging.Default().WithError(err).WithField("runId", run.ID).Warn("failed to persist run")
		}
	}
	if s.assetStore != nil {
		if err := s.assetStore.SaveAll(ctx, run.ID, assets); err != nil {
			logging.Default().WithError(err).WithField("runId", run.ID).Warn("failed to persist assets")
		}
	}
}

// GetRun returns a snapshot of a run's current state
func (s *CollectionService) GetRun(runID string) (*models.MigrationRun, error) {
	state, err := s.state(runID)
	if err != nil {
		return nil, err
	}
	return snapshot(state), nil
}

// ListRuns returns snapshots of every known run, newest first
func (s *CollectionService) ListRuns() []*models.MigrationRun {
	s.mu.RLock()
	states := make([]*runState, 0, len(s.runs))
	for _, state := range s.runs {
		states = append(states, state)
	}
	s.mu.RUnlock()

	runs := make([]*models.MigrationRun, 0, len(states))
	for _, state := range states {
		runs = append(runs, snapshot(state))
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs
}

// RunAssets returns the run's asset records
func (s *CollectionService) RunAssets(runID string) ([]*models.AssetRecord, error) {
	state, err := s.state(runID)
	if err != nil {
		return nil, err
	}

	state.mu.RLock()
	defer state.mu.RUnlock()

	assets := make([]*models.AssetRecord, len(state.assets))
	copy(assets, state.assets)
	return assets, nil
}

// CancelRun stops a running migration
func (s *CollectionService) CancelRun(runID string) error {
	state, err := s.state(runID)
	if err != nil {
		return err
	}

	state.mu.RLock()
	cancel := state.cancel
	state.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// Wait blocks until the run settles, used by the CLI and tests
func (s *CollectionService) Wait(ctx context.Context, runID string) error {
	state, err := s.state(runID)
	if err != nil {
		return err
	}
	state.mu.RLock()
	done := state.done
	state.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExportFormat selects the report encoding
type ExportFormat string

const (
	// FormatCSV renders the report as CSV
	FormatCSV ExportFormat = "csv"
	// FormatJSON renders the report as JSON
	FormatJSON ExportFormat = "json"
)

// ExportRun writes the run's asset report in the requested format
func (s *CollectionService) ExportRun(runID string, format ExportFormat, w io.Writer) error {
	assets, err := s.RunAssets(runID)
	if err != nil {
		return err
	}

	switch format {
	case FormatJSON:
		return export.WriteJSON(w, assets)
	case FormatCSV, "":
		return export.WriteCSV(w, assets)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

func (s *CollectionService) state(runID string) (*runState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return state, nil
}

// snapshot copies the run record under its lock
func snapshot(state *runState) *models.MigrationRun {
	state.mu.RLock()
	defer state.mu.RUnlock()

	run := *state.run
	return &run
}
