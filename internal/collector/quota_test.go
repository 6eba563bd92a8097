package collector

import (
	"testing"
	"time"

	"github.com/google/go-github/v55/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/dannyviti/gh-pr-analyzer/internal/errors"
)

func newTestTracker(t *testing.T, now time.Time) *QuotaTracker {
	t.Helper()
	tracker := NewQuotaTracker(zap.NewNop())
	tracker.now = func() time.Time { return now }
	return tracker
}

func rate(limit, remaining int, reset time.Time) github.Rate {
	return github.Rate{
		Limit:     limit,
		Remaining: remaining,
		Reset:     github.Timestamp{Time: reset},
	}
}

func TestQuotaTrackerSeedsDefaultBudget(t *testing.T) {
	tracker := NewQuotaTracker(zap.NewNop())

	state := tracker.Snapshot()
	assert.Equal(t, 5000, state.Limit)
	assert.Equal(t, 5000, state.Remaining)
	require.NoError(t, tracker.Require(5000))
}

func TestQuotaTrackerObserveReplacesSnapshot(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reset := now.Add(30 * time.Minute)
	tracker := newTestTracker(t, now)

	tracker.Observe(rate(5000, 4200, reset))

	state := tracker.Snapshot()
	assert.Equal(t, 4200, state.Remaining)
	assert.True(t, state.ResetAt.Equal(reset))
}

func TestQuotaTrackerIgnoresEmptyRate(t *testing.T) {
	tracker := newTestTracker(t, time.Now())
	before := tracker.Snapshot()

	tracker.Observe(github.Rate{})

	assert.Equal(t, before, tracker.Snapshot())
}

func TestQuotaTrackerRejectsStaleObservationInSameWindow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reset := now.Add(30 * time.Minute)
	tracker := newTestTracker(t, now)

	tracker.Observe(rate(5000, 4000, reset))
	// An out-of-order response reporting a higher remaining count must not
	// raise the budget within the same window.
	tracker.Observe(rate(5000, 4500, reset))
	assert.Equal(t, 4000, tracker.Snapshot().Remaining)

	// Replaying the identical observation is harmless.
	tracker.Observe(rate(5000, 4000, reset))
	assert.Equal(t, 4000, tracker.Snapshot().Remaining)
}

func TestQuotaTrackerNewWindowRaisesBudget(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, now)

	tracker.Observe(rate(5000, 10, now.Add(10*time.Minute)))
	tracker.Observe(rate(5000, 4999, now.Add(70*time.Minute)))

	assert.Equal(t, 4999, tracker.Snapshot().Remaining)
}

func TestQuotaTrackerRequireShortfall(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reset := now.Add(20 * time.Minute)
	tracker := newTestTracker(t, now)
	tracker.Observe(rate(5000, 30, reset))

	require.NoError(t, tracker.Require(30))

	err := tracker.Require(50)
	require.Error(t, err)
	qe, ok := apperrors.AsQuotaExceeded(err)
	require.True(t, ok)
	assert.Equal(t, 30, qe.Remaining)
	assert.Equal(t, 20*time.Minute, qe.Wait)
	assert.True(t, qe.ResetAt.Equal(reset))
}

func TestQuotaTrackerRequireZeroRemainingAlwaysFails(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, now)
	tracker.Observe(rate(5000, 0, now.Add(time.Hour)))

	assert.Error(t, tracker.Require(1))
	assert.Error(t, tracker.Require(0))
}

func TestQuotaTrackerRequirePassesAfterReset(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	current := start
	tracker := NewQuotaTracker(zap.NewNop())
	tracker.now = func() time.Time { return current }

	tracker.Observe(rate(5000, 0, start.Add(10*time.Minute)))
	require.Error(t, tracker.Require(1))

	current = start.Add(11 * time.Minute)
	assert.NoError(t, tracker.Require(1))
	assert.Equal(t, 5000, tracker.Remaining())
}

func TestQuotaTrackerThresholds(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, now)
	reset := now.Add(time.Hour)

	tracker.Observe(rate(5000, 499, reset))
	assert.True(t, tracker.BelowWarning())
	assert.False(t, tracker.BelowCritical())

	tracker.Observe(rate(5000, 99, reset))
	assert.True(t, tracker.BelowCritical())
}
