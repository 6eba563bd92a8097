package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
	apperrors "github.com/dannyviti/gh-pr-analyzer/internal/errors"
)

// fakeItemFetcher returns canned bundles keyed by PR number.
type fakeItemFetcher struct {
	mu           sync.Mutex
	callsPerItem int
	status       map[int]domain.FetchStatus
	jitter       map[int]time.Duration
	fetched      []int
}

func (f *fakeItemFetcher) FetchPR(ctx context.Context, pr *domain.PullRequest) *domain.PRBundle {
	if d, ok := f.jitter[pr.Number]; ok {
		time.Sleep(d)
	}
	f.mu.Lock()
	f.fetched = append(f.fetched, pr.Number)
	f.mu.Unlock()

	status := domain.FetchComplete
	if s, ok := f.status[pr.Number]; ok {
		status = s
	}
	return &domain.PRBundle{PR: pr, Status: status}
}

func (f *fakeItemFetcher) CallsPerItem() int {
	if f.callsPerItem > 0 {
		return f.callsPerItem
	}
	return 5
}

func makePRs(numbers ...int) []*domain.PullRequest {
	prs := make([]*domain.PullRequest, len(numbers))
	for i, n := range numbers {
		prs[i] = &domain.PullRequest{Number: n}
	}
	return prs
}

func TestBatchSchedulerSplitsIntoGroups(t *testing.T) {
	fetcher := &fakeItemFetcher{}
	tracker := NewQuotaTracker(zap.NewNop())

	var progress []domain.Progress
	scheduler := NewBatchScheduler(fetcher, tracker, 2, 10*time.Millisecond, zap.NewNop(),
		WithProgress(func(p domain.Progress) { progress = append(progress, p) }))

	var pauses []time.Duration
	scheduler.sleep = func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}

	bundles, err := scheduler.Run(context.Background(), makePRs(1, 2, 3, 4, 5))

	require.NoError(t, err)
	require.Len(t, bundles, 5)

	// Three batches of sizes 2, 2, 1 with a pause between each pair of
	// batches, never after the last.
	require.Len(t, progress, 3)
	assert.Equal(t, 3, progress[0].TotalBatches)
	assert.Equal(t, 2, progress[0].Completed)
	assert.Equal(t, 4, progress[1].Completed)
	assert.Equal(t, 5, progress[2].Completed)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}, pauses)
}

func TestBatchSchedulerPreservesInputOrder(t *testing.T) {
	// Items earlier in a batch finish later than their neighbors.
	fetcher := &fakeItemFetcher{jitter: map[int]time.Duration{
		1: 20 * time.Millisecond,
		3: 15 * time.Millisecond,
	}}
	tracker := NewQuotaTracker(zap.NewNop())
	scheduler := NewBatchScheduler(fetcher, tracker, 2, 0, zap.NewNop())

	bundles, err := scheduler.Run(context.Background(), makePRs(1, 2, 3, 4))

	require.NoError(t, err)
	require.Len(t, bundles, 4)
	for i, want := range []int{1, 2, 3, 4} {
		assert.Equal(t, want, bundles[i].Number())
	}
}

func TestBatchSchedulerCountsOutcomes(t *testing.T) {
	fetcher := &fakeItemFetcher{status: map[int]domain.FetchStatus{
		2: domain.FetchPartial,
		3: domain.FetchFailed,
	}}
	tracker := NewQuotaTracker(zap.NewNop())

	var last domain.Progress
	scheduler := NewBatchScheduler(fetcher, tracker, 10, 0, zap.NewNop(),
		WithProgress(func(p domain.Progress) { last = p }))

	_, err := scheduler.Run(context.Background(), makePRs(1, 2, 3))

	require.NoError(t, err)
	assert.Equal(t, 1, last.Completed)
	assert.Equal(t, 1, last.Partial)
	assert.Equal(t, 1, last.Failed)
}

func TestBatchSchedulerQuotaPrecheckAborts(t *testing.T) {
	fetcher := &fakeItemFetcher{callsPerItem: 5}
	tracker := newTestTracker(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	tracker.Observe(rate(5000, 3, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)))

	scheduler := NewBatchScheduler(fetcher, tracker, 2, 0, zap.NewNop())

	bundles, err := scheduler.Run(context.Background(), makePRs(1, 2))

	require.Error(t, err)
	assert.True(t, apperrors.IsQuotaExceeded(err))
	assert.Empty(t, bundles)
	assert.Empty(t, fetcher.fetched)
}

func TestBatchSchedulerWaitsForReset(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	current := start
	tracker := NewQuotaTracker(zap.NewNop())
	tracker.now = func() time.Time { return current }
	tracker.Observe(rate(5000, 0, start.Add(15*time.Minute)))

	fetcher := &fakeItemFetcher{}
	scheduler := NewBatchScheduler(fetcher, tracker, 2, 0, zap.NewNop(), WithWaitForReset())

	var waited []time.Duration
	scheduler.sleep = func(ctx context.Context, d time.Duration) error {
		waited = append(waited, d)
		current = current.Add(d)
		return nil
	}

	bundles, err := scheduler.Run(context.Background(), makePRs(1, 2))

	require.NoError(t, err)
	assert.Len(t, bundles, 2)
	assert.Equal(t, []time.Duration{15 * time.Minute}, waited)
	assert.Len(t, fetcher.fetched, 2)
}

func TestBatchSchedulerStopsAtBatchBoundaryOnCancel(t *testing.T) {
	fetcher := &fakeItemFetcher{}
	tracker := NewQuotaTracker(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	scheduler := NewBatchScheduler(fetcher, tracker, 2, 0, zap.NewNop(),
		WithProgress(func(p domain.Progress) { cancel() }))

	bundles, err := scheduler.Run(ctx, makePRs(1, 2, 3, 4))

	assert.ErrorIs(t, err, context.Canceled)
	// The in-flight batch completed; the next one never started.
	assert.Len(t, bundles, 2)
	assert.Len(t, fetcher.fetched, 2)
}

func TestBatchSchedulerEmptyInput(t *testing.T) {
	fetcher := &fakeItemFetcher{}
	scheduler := NewBatchScheduler(fetcher, NewQuotaTracker(zap.NewNop()), 10, 0, zap.NewNop())

	bundles, err := scheduler.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, bundles)
}
