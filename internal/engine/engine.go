// Package engine runs the pin migration: one task per unique CID, a bounded
// worker pool, retry with backoff, and a pinned-wins outcome cache consulted
// before every provider call.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/nft-repin/internal/logging"
	"github.com/nft-repin/internal/models"
	"github.com/nft-repin/internal/pinning"
	"github.com/nft-repin/internal/ratelimit"
	"github.com/nft-repin/internal/retry"
	"github.com/nft-repin/internal/storage"
	"github.com/nft-repin/internal/types"
)

// DefaultWorkers is the worker pool size when Options leaves it unset
const DefaultWorkers = 4

// Options configures a migration run
type Options struct {
	// Workers bounds concurrent pin submissions
	Workers int
	// Retry is the per-task retry policy; nil uses retry.DefaultPolicy
	Retry *retry.Policy
	// PerCallTimeout bounds each individual provider call; zero disables
	PerCallTimeout time.Duration
	// Verify runs a status check pass over pinned tasks after submission
	Verify bool
	// RateLimit throttles provider calls across all workers; nil disables
	RateLimit *ratelimit.Limiter
	// ReuseCachedFailures lets a cached failure settle a task without a new
	// provider call. Off by default so re-runs give failed CIDs another try.
	ReuseCachedFailures bool
	// OnEvent receives progress events; nil disables
	OnEvent EventHandler
}

// Engine migrates a prepared worklist to one destination provider
type Engine struct {
	provider pinning.Provider
	cache    storage.OutcomeCache
	opts     Options
}

// New creates a migration engine. A nil cache disables outcome caching.
func New(provider pinning.Provider, cache storage.OutcomeCache, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Retry == nil {
		opts.Retry = retry.DefaultPolicy()
	}
	if cache == nil {
		cache = storage.NewMemoryOutcomeCache()
	}
	return &Engine{provider: provider, cache: cache, opts: opts}
}

// BuildTasks converts a collection plan into pending migration tasks,
// ordered by CID so runs are reproducible.
func BuildTasks(plan *models.CollectionPlan) []*models.MigrationTask {
	tasks := make([]*models.MigrationTask, 0, len(plan.UniqueCIDs))
	for _, cid := range plan.UniqueCIDs {
		tasks = append(tasks, &models.MigrationTask{
			CID:            cid,
			TargetAssetIDs: append([]uint64(nil), plan.CIDToAssets[cid]...),
			Status:         types.TaskPending,
		})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CID < tasks[j].CID })
	return tasks
}

// ResetFailed flips failed tasks back to pending for an explicit retry run
// and returns how many were reset.
func ResetFailed(tasks []*models.MigrationTask) int {
	reset := 0
	for _, task := range tasks {
		if task.Status == types.TaskFailed {
			task.Status = types.TaskPending
			task.Outcome = nil
			reset++
		}
	}
	return reset
}

// Run drives every pending task to a terminal state. Credentials are probed
// once before any task runs; an auth failure there, or on any task attempt,
// aborts the whole run since every other call would fail the same way.
func (e *Engine) Run(ctx context.Context, tasks []*models.MigrationTask) (*Summary, error) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"provider": e.provider.Name(),
		"tasks":    len(tasks),
		"workers":  e.opts.Workers,
	})
	started := time.Now()

	if err := e.provider.Authenticate(ctx); err != nil {
		logger.WithError(err).Error("credential check failed, aborting run")
		e.emit(Event{Type: EventRunAborted, Timestamp: time.Now()})
		return &Summary{
			Status:     types.RunAborted,
			TotalTasks: len(tasks),
			Duration:   time.Since(started),
		}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		sem       = make(chan struct{}, e.opts.Workers)
		abortOnce sync.Once
		abortErr  error
	)
	abort := func(err error) {
		abortOnce.Do(func() {
			abortErr = err
			e.emit(Event{Type: EventRunAborted, Timestamp: time.Now()})
			cancel()
		})
	}

	logger.Info("starting migration run")

	for _, task := range tasks {
		if task.Status != types.TaskPending {
			continue
		}

		select {
		case <-runCtx.Done():
		case sem <- struct{}{}:
		}
		if runCtx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(task *models.MigrationTask) {
			defer wg.Done()
			defer func() { <-sem }()
			e.runTask(runCtx, task, abort)
		}(task)
	}
	wg.Wait()

	if abortErr == nil && e.opts.Verify {
		e.verify(ctx, tasks)
	}

	summary := e.summarize(tasks, started, abortErr != nil || ctx.Err() != nil)
	logger.WithFields(map[string]interface{}{
		"status":    summary.Status,
		"pinned":    summary.Pinned,
		"failed":    summary.Failed,
		"fromCache": summary.FromCache,
	}).Info("migration run finished")

	return summary, abortErr
}

// runTask drives one task from pending to a terminal state
func (e *Engine) runTask(ctx context.Context, task *models.MigrationTask, abort func(error)) {
	logger := logging.FromContext(ctx).WithField("cid", task.CID)

	task.Status = types.TaskInProgress
	e.emit(Event{Type: EventTaskStarted, Task: task.Clone(), Timestamp: time.Now()})

	// A prior pinned outcome for this provider settles the task without a
	// provider call.
	if cached, err := e.cache.Get(ctx, e.provider.Name(), task.CID); err != nil {
		logger.WithError(err).Warn("outcome cache read failed, pinning anyway")
	} else if cached != nil {
		if cached.Pinned {
			e.completeFromCache(task, cached)
			return
		}
		if e.opts.ReuseCachedFailures {
			e.failFromCache(task, cached)
			return
		}
	}

	var receipt *pinning.PinReceipt
	result := retry.Do(ctx, e.opts.Retry, func(err error) bool {
		var pinErr *pinning.PinError
		if errors.As(err, &pinErr) && pinErr.Kind == pinning.ErrKindAuthFailed {
			abort(err)
			return false
		}
		return pinning.Retryable(err)
	}, func(ctx context.Context, _ int) error {
		if e.opts.RateLimit != nil {
			if err := e.opts.RateLimit.Wait(ctx); err != nil {
				return err
			}
		}
		callCtx := ctx
		if e.opts.PerCallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.opts.PerCallTimeout)
			defer cancel()
		}
		r, err := e.provider.Pin(callCtx, task.CID)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})

	task.Attempts = result.Attempts
	task.LastAttemptAt = time.Now().UTC()

	if !result.Success {
		e.fail(task, result.LastError)
		logger.WithError(result.LastError).WithField("attempts", task.Attempts).Warn("pin failed")
		return
	}

	task.Status = types.TaskPinned
	task.Outcome = &models.TaskOutcome{
		Provider:  receipt.Provider,
		RequestID: receipt.RequestID,
		RepinCID:  receipt.CID,
	}
	e.putOutcome(task, nil)
	e.emit(Event{Type: EventTaskCompleted, Task: task.Clone(), Timestamp: time.Now()})
	logger.WithField("requestId", receipt.RequestID).Debug("pin submitted")
}

// completeFromCache settles a task from a cached pinned outcome
func (e *Engine) completeFromCache(task *models.MigrationTask, cached *storage.Outcome) {
	task.Status = types.TaskPinned
	task.Outcome = &models.TaskOutcome{
		Provider:  cached.Provider,
		RequestID: cached.RequestID,
		RepinCID:  cached.CID,
		Verified:  cached.Verified,
		FromCache: true,
	}
	e.emit(Event{Type: EventTaskCompleted, Task: task.Clone(), Timestamp: time.Now()})
}

// failFromCache settles a task from a cached failure
func (e *Engine) failFromCache(task *models.MigrationTask, cached *storage.Outcome) {
	task.Status = types.TaskFailed
	task.Outcome = &models.TaskOutcome{
		Provider:  cached.Provider,
		FromCache: true,
		Err:       cached.Err,
	}
	e.emit(Event{Type: EventTaskCompleted, Task: task.Clone(), Timestamp: time.Now()})
}

// fail records a terminal failure and caches it
func (e *Engine) fail(task *models.MigrationTask, err error) {
	detail := &types.ErrorDetail{Kind: string(pinning.KindOf(err)), Message: "pin failed"}
	if err != nil {
		detail.Message = err.Error()
	}
	task.Status = types.TaskFailed
	task.Outcome = &models.TaskOutcome{
		Provider: e.provider.Name(),
		Err:      detail,
	}
	// Auth failures describe the credentials, not the CID, so they are
	// never cached against it.
	if pinning.KindOf(err) != pinning.ErrKindAuthFailed {
		e.putOutcome(task, detail)
	}
	e.emit(Event{Type: EventTaskCompleted, Task: task.Clone(), Timestamp: time.Now()})
}

// putOutcome records the task's terminal state in the outcome cache
func (e *Engine) putOutcome(task *models.MigrationTask, errDetail *types.ErrorDetail) {
	outcome := &storage.Outcome{
		CID:      task.CID,
		Provider: e.provider.Name(),
		Pinned:   task.Status == types.TaskPinned,
		Err:      errDetail,
		At:       time.Now().UTC(),
	}
	if task.Outcome != nil {
		outcome.RequestID = task.Outcome.RequestID
		outcome.Verified = task.Outcome.Verified
	}
	// Cache writes are best effort; the task itself carries the result.
	if err := e.cache.Put(context.Background(), outcome); err != nil {
		logging.Default().WithError(err).WithField("cid", task.CID).Warn("outcome cache write failed")
	}
}

// verify asks the provider for the state of every newly pinned CID. A pin
// the provider cannot confirm stays unverified with a warning; verification
// never fails a run.
func (e *Engine) verify(ctx context.Context, tasks []*models.MigrationTask) {
	logger := logging.FromContext(ctx).WithField("provider", e.provider.Name())

	for _, task := range tasks {
		if task.Status != types.TaskPinned || task.Outcome == nil || task.Outcome.FromCache {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if e.opts.RateLimit != nil {
			if err := e.opts.RateLimit.Wait(ctx); err != nil {
				return
			}
		}

		state, err := e.provider.CheckStatus(ctx, task.CID)
		if err != nil {
			logger.WithError(err).WithField("cid", task.CID).Warn("verification check failed")
			continue
		}
		if state.Accepted() {
			task.Outcome.Verified = true
			e.putOutcome(task, nil)
		} else {
			logger.WithFields(map[string]interface{}{
				"cid":   task.CID,
				"state": state,
			}).Warn("pin not confirmed by provider")
		}
	}
}

// summarize computes the run's final accounting
func (e *Engine) summarize(tasks []*models.MigrationTask, started time.Time, aborted bool) *Summary {
	summary := &Summary{
		Status:     types.RunCompleted,
		TotalTasks: len(tasks),
		Duration:   time.Since(started),
	}
	if aborted {
		summary.Status = types.RunAborted
	}
	for _, task := range tasks {
		switch task.Status {
		case types.TaskPinned:
			summary.Pinned++
			if task.Outcome != nil && task.Outcome.FromCache {
				summary.FromCache++
			}
			if task.Outcome != nil && !task.Outcome.Verified {
				summary.Unverified++
			}
		case types.TaskFailed:
			summary.Failed++
		}
	}
	return summary
}

// ProjectAssets copies task outcomes onto the asset records that share each
// task's CID. Assets without a CID are left untouched.
func ProjectAssets(tasks []*models.MigrationTask, assets []*models.AssetRecord) {
	byCID := make(map[string]*models.MigrationTask, len(tasks))
	for _, task := range tasks {
		byCID[task.CID] = task
	}

	for _, asset := range assets {
		if !asset.HasCID() {
			continue
		}
		task, ok := byCID[asset.CID]
		if !ok {
			continue
		}
		switch task.Status {
		case types.TaskPinned:
			asset.Status = types.AssetPinned
			asset.LastError = nil
			if task.Outcome != nil {
				asset.RepinResult = &models.RepinResult{
					Provider:  task.Outcome.Provider,
					RequestID: task.Outcome.RequestID,
					CID:       task.Outcome.RepinCID,
					Verified:  task.Outcome.Verified,
				}
			}
		case types.TaskFailed:
			asset.Status = types.AssetFailed
			if task.Outcome != nil {
				asset.LastError = task.Outcome.Err
			}
		case types.TaskInProgress:
			asset.Status = types.AssetInProgress
		default:
			asset.Status = types.AssetPending
		}
	}
}

// emit delivers an event if a handler is set
func (e *Engine) emit(event Event) {
	if e.opts.OnEvent != nil {
		e.opts.OnEvent(event)
	}
}
