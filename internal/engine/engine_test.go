package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nft-repin/internal/models"
	"github.com/nft-repin/internal/pinning"
	"github.com/nft-repin/internal/retry"
	"github.com/nft-repin/internal/storage"
	"github.com/nft-repin/internal/types"
)

// fakeProvider is a scriptable pinning backend for engine tests
type fakeProvider struct {
	mu          sync.Mutex
	pinCalls    int32
	statusCalls int32
	authErr     error
	pinErr      map[string]error // per-CID scripted failure
	pinErrOnce  map[string]error // fails the first attempt only
	statusState types.PinState
	concurrent  int32
	maxSeen     int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		pinErr:      make(map[string]error),
		pinErrOnce:  make(map[string]error),
		statusState: types.PinStatePinned,
	}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Authenticate(ctx context.Context) error { return f.authErr }

func (f *fakeProvider) Pin(ctx context.Context, cid string) (*pinning.PinReceipt, error) {
	cur := atomic.AddInt32(&f.concurrent, 1)
	defer atomic.AddInt32(&f.concurrent, -1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, cur) {
			break
		}
	}
	atomic.AddInt32(&f.pinCalls, 1)

	f.mu.Lock()
	if err, ok := f.pinErrOnce[cid]; ok {
		delete(f.pinErrOnce, cid)
		f.mu.Unlock()
		return nil, err
	}
	err := f.pinErr[cid]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return &pinning.PinReceipt{
		Provider:  "fake",
		RequestID: "req-" + cid[:8],
		CID:       cid,
		State:     types.PinStateQueued,
	}, nil
}

func (f *fakeProvider) CheckStatus(ctx context.Context, cid string) (types.PinState, error) {
	atomic.AddInt32(&f.statusCalls, 1)
	return f.statusState, nil
}

func fastPolicy() *retry.Policy {
	return &retry.Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func cidFor(i int) string {
	return fmt.Sprintf("bafkreitestcid%050d", i)
}

func planFor(cidToAssets map[string][]uint64) *models.CollectionPlan {
	plan := &models.CollectionPlan{CIDToAssets: cidToAssets}
	for cid, ids := range cidToAssets {
		plan.UniqueCIDs = append(plan.UniqueCIDs, cid)
		plan.TotalAssets += len(ids)
	}
	return plan
}

func TestBuildTasks(t *testing.T) {
	plan := planFor(map[string][]uint64{
		cidFor(2): {20, 21},
		cidFor(1): {10},
	})

	tasks := BuildTasks(plan)

	require.Len(t, tasks, 2)
	assert.Equal(t, cidFor(1), tasks[0].CID)
	assert.Equal(t, cidFor(2), tasks[1].CID)
	assert.Equal(t, []uint64{20, 21}, tasks[1].TargetAssetIDs)
	for _, task := range tasks {
		assert.Equal(t, types.TaskPending, task.Status)
	}
}

func TestRunPinsEveryUniqueCIDOnce(t *testing.T) {
	provider := newFakeProvider()
	eng := New(provider, nil, Options{Retry: fastPolicy()})

	// A directory-shaped collection: 150 assets behind one CID means one
	// provider call, not 150.
	assetIDs := make([]uint64, 150)
	for i := range assetIDs {
		assetIDs[i] = uint64(i + 1)
	}
	tasks := BuildTasks(planFor(map[string][]uint64{cidFor(1): assetIDs}))

	summary, err := eng.Run(context.Background(), tasks)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.pinCalls))
	assert.Equal(t, types.RunCompleted, summary.Status)
	assert.Equal(t, 1, summary.Pinned)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, types.TaskPinned, tasks[0].Status)
	require.NotNil(t, tasks[0].Outcome)
	assert.NotEmpty(t, tasks[0].Outcome.RequestID)
}

func TestRunIndividualCollection(t *testing.T) {
	provider := newFakeProvider()
	eng := New(provider, nil, Options{Retry: fastPolicy(), Workers: 2})

	tasks := BuildTasks(planFor(map[string][]uint64{
		cidFor(1): {1},
		cidFor(2): {2},
		cidFor(3): {3},
	}))

	summary, err := eng.Run(context.Background(), tasks)
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&provider.pinCalls))
	assert.Equal(t, 3, summary.Pinned)
	assert.LessOrEqual(t, atomic.LoadInt32(&provider.maxSeen), int32(2))
}

func TestRunSecondRunHitsCache(t *testing.T) {
	provider := newFakeProvider()
	cache := storage.NewMemoryOutcomeCache()

	plan := planFor(map[string][]uint64{cidFor(1): {1}, cidFor(2): {2}})

	eng := New(provider, cache, Options{Retry: fastPolicy()})
	_, err := eng.Run(context.Background(), BuildTasks(plan))
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&provider.pinCalls))

	// Re-running the same plan against the same cache makes zero calls.
	tasks := BuildTasks(plan)
	summary, err := eng.Run(context.Background(), tasks)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&provider.pinCalls))
	assert.Equal(t, 2, summary.Pinned)
	assert.Equal(t, 2, summary.FromCache)
	for _, task := range tasks {
		require.NotNil(t, task.Outcome)
		assert.True(t, task.Outcome.FromCache)
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	provider := newFakeProvider()
	provider.pinErrOnce[cidFor(1)] = &pinning.PinError{Kind: pinning.ErrKindRateLimited, Provider: "fake", Message: "HTTP 429"}

	eng := New(provider, nil, Options{Retry: fastPolicy()})
	tasks := BuildTasks(planFor(map[string][]uint64{cidFor(1): {1}}))

	summary, err := eng.Run(context.Background(), tasks)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Pinned)
	assert.Equal(t, 2, tasks[0].Attempts)
}

func TestRunRejectedFailsWithoutRetry(t *testing.T) {
	provider := newFakeProvider()
	provider.pinErr[cidFor(1)] = &pinning.PinError{Kind: pinning.ErrKindRejected, Provider: "fake", Message: "HTTP 400"}

	eng := New(provider, nil, Options{Retry: fastPolicy()})
	tasks := BuildTasks(planFor(map[string][]uint64{cidFor(1): {1}}))

	summary, err := eng.Run(context.Background(), tasks)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, tasks[0].Attempts)
	assert.Equal(t, types.TaskFailed, tasks[0].Status)
	require.NotNil(t, tasks[0].Outcome.Err)
	assert.Equal(t, string(pinning.ErrKindRejected), tasks[0].Outcome.Err.Kind)
}

func TestRunExhaustsRetriesThenFails(t *testing.T) {
	provider := newFakeProvider()
	provider.pinErr[cidFor(1)] = &pinning.PinError{Kind: pinning.ErrKindUnreachable, Provider: "fake", Message: "HTTP 503"}

	eng := New(provider, nil, Options{Retry: fastPolicy()})
	tasks := BuildTasks(planFor(map[string][]uint64{cidFor(1): {1}}))

	summary, err := eng.Run(context.Background(), tasks)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, tasks[0].Attempts)
}

func TestRunAuthFailureAbortsBeforeAnyTask(t *testing.T) {
	provider := newFakeProvider()
	provider.authErr = &pinning.PinError{Kind: pinning.ErrKindAuthFailed, Provider: "fake", Message: "HTTP 401"}

	eng := New(provider, nil, Options{Retry: fastPolicy()})
	tasks := BuildTasks(planFor(map[string][]uint64{cidFor(1): {1}, cidFor(2): {2}}))

	summary, err := eng.Run(context.Background(), tasks)
	require.Error(t, err)
	assert.Equal(t, pinning.ErrKindAuthFailed, pinning.KindOf(err))

	assert.Equal(t, types.RunAborted, summary.Status)
	assert.Equal(t, int32(0), atomic.LoadInt32(&provider.pinCalls))
	for _, task := range tasks {
		assert.Equal(t, types.TaskPending, task.Status)
	}
}

func TestRunMidRunAuthFailureAborts(t *testing.T) {
	provider := newFakeProvider()
	authErr := &pinning.PinError{Kind: pinning.ErrKindAuthFailed, Provider: "fake", Message: "HTTP 403"}
	for i := 0; i < 20; i++ {
		provider.pinErr[cidFor(i)] = authErr
	}

	cidToAssets := make(map[string][]uint64)
	for i := 0; i < 20; i++ {
		cidToAssets[cidFor(i)] = []uint64{uint64(i)}
	}
	eng := New(provider, nil, Options{Retry: fastPolicy(), Workers: 1})
	tasks := BuildTasks(planFor(cidToAssets))

	summary, err := eng.Run(context.Background(), tasks)
	require.Error(t, err)
	assert.Equal(t, types.RunAborted, summary.Status)

	// The abort stops the pool early; nothing is left mid-flight.
	for _, task := range tasks {
		assert.NotEqual(t, types.TaskInProgress, task.Status)
	}
	assert.Less(t, atomic.LoadInt32(&provider.pinCalls), int32(20))
}

func TestRunVerification(t *testing.T) {
	provider := newFakeProvider()
	eng := New(provider, nil, Options{Retry: fastPolicy(), Verify: true})
	tasks := BuildTasks(planFor(map[string][]uint64{cidFor(1): {1}, cidFor(2): {2}}))

	summary, err := eng.Run(context.Background(), tasks)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&provider.statusCalls))
	assert.Equal(t, 0, summary.Unverified)
	for _, task := range tasks {
		assert.True(t, task.Outcome.Verified)
	}
}

func TestRunVerificationSoftFailure(t *testing.T) {
	provider := newFakeProvider()
	provider.statusState = types.PinStateFailed

	eng := New(provider, nil, Options{Retry: fastPolicy(), Verify: true})
	tasks := BuildTasks(planFor(map[string][]uint64{cidFor(1): {1}}))

	summary, err := eng.Run(context.Background(), tasks)
	require.NoError(t, err)

	// An unconfirmed pin stays pinned but unverified.
	assert.Equal(t, 1, summary.Pinned)
	assert.Equal(t, 1, summary.Unverified)
	assert.False(t, tasks[0].Outcome.Verified)
}

func TestResetFailed(t *testing.T) {
	tasks := []*models.MigrationTask{
		{CID: cidFor(1), Status: types.TaskPinned, Outcome: &models.TaskOutcome{Provider: "fake"}},
		{CID: cidFor(2), Status: types.TaskFailed, Outcome: &models.TaskOutcome{Err: &types.ErrorDetail{Kind: "Unreachable"}}},
	}

	reset := ResetFailed(tasks)

	assert.Equal(t, 1, reset)
	assert.Equal(t, types.TaskPinned, tasks[0].Status)
	assert.Equal(t, types.TaskPending, tasks[1].Status)
	assert.Nil(t, tasks[1].Outcome)
}

func TestRunEmitsEvents(t *testing.T) {
	provider := newFakeProvider()

	var mu sync.Mutex
	var completed []string
	eng := New(provider, nil, Options{
		Retry: fastPolicy(),
		OnEvent: func(e Event) {
			if e.Type == EventTaskCompleted {
				mu.Lock()
				completed = append(completed, e.Task.CID)
				mu.Unlock()
			}
		},
	})

	tasks := BuildTasks(planFor(map[string][]uint64{cidFor(1): {1}, cidFor(2): {2}}))
	_, err := eng.Run(context.Background(), tasks)
	require.NoError(t, err)

	assert.Len(t, completed, 2)
}

func TestProjectAssets(t *testing.T) {
	tasks := []*models.MigrationTask{
		{
			CID:    cidFor(1),
			Status: types.TaskPinned,
			Outcome: &models.TaskOutcome{
				Provider:  "fake",
				RequestID: "req-1",
				RepinCID:  cidFor(1),
				Verified:  true,
			},
		},
		{
			CID:     cidFor(2),
			Status:  types.TaskFailed,
			Outcome: &models.TaskOutcome{Err: &types.ErrorDetail{Kind: "Unreachable", Message: "HTTP 503"}},
		},
	}
	assets := []*models.AssetRecord{
		{AssetID: 1, CID: cidFor(1), Status: types.AssetPending},
		{AssetID: 2, CID: cidFor(1), Status: types.AssetPending},
		{AssetID: 3, CID: cidFor(2), Status: types.AssetPending},
		{AssetID: 4, Status: types.AssetSkipped},
	}

	ProjectAssets(tasks, assets)

	assert.Equal(t, types.AssetPinned, assets[0].Status)
	assert.Equal(t, types.AssetPinned, assets[1].Status)
	require.NotNil(t, assets[0].RepinResult)
	assert.Equal(t, "req-1", assets[0].RepinResult.RequestID)
	assert.True(t, assets[0].RepinResult.Verified)

	assert.Equal(t, types.AssetFailed, assets[2].Status)
	require.NotNil(t, assets[2].LastError)
	assert.Equal(t, "Unreachable", assets[2].LastError.Kind)

	assert.Equal(t, types.AssetSkipped, assets[3].Status)
	assert.Nil(t, assets[3].RepinResult)
}

func TestRunReuseCachedFailures(t *testing.T) {
	provider := newFakeProvider()
	cache := storage.NewMemoryOutcomeCache()
	require.NoError(t, cache.Put(context.Background(), &storage.Outcome{
		CID:      cidFor(1),
		Provider: "fake",
		Pinned:   false,
		Err:      &types.ErrorDetail{Kind: "Rejected", Message: "HTTP 422"},
		At:       time.Now(),
	}))

	eng := New(provider, cache, Options{Retry: fastPolicy(), ReuseCachedFailures: true})
	tasks := BuildTasks(planFor(map[string][]uint64{cidFor(1): {1}}))

	summary, err := eng.Run(context.Background(), tasks)
	require.NoError(t, err)

	assert.Equal(t, int32(0), atomic.LoadInt32(&provider.pinCalls))
	assert.Equal(t, 1, summary.Failed)
	assert.True(t, tasks[0].Outcome.FromCache)
}
