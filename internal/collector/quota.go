package collector

import (
	"sync"
	"time"

	"github.com/google/go-github/v55/github"
	"go.uber.org/zap"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
	apperrors "github.com/dannyviti/gh-pr-analyzer/internal/errors"
)

// Advisory thresholds for remaining-budget logging.
const (
	defaultWarningThreshold  = 500
	defaultCriticalThreshold = 100
)

// QuotaTracker maintains the authoritative view of the remaining API budget,
// derived from the most recent response metadata. The server is the source of
// truth: every observation replaces the snapshot rather than decrementing a
// local counter.
type QuotaTracker struct {
	mu    sync.Mutex
	state domain.QuotaState

	warningThreshold  int
	criticalThreshold int

	now    func() time.Time
	logger *zap.Logger
}

// NewQuotaTracker creates a tracker seeded with the GitHub default budget so
// the first batch can proceed before any response has been observed.
func NewQuotaTracker(logger *zap.Logger) *QuotaTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now()
	return &QuotaTracker{
		state: domain.QuotaState{
			Limit:      5000, // GitHub API default limit
			Remaining:  5000,
			ResetAt:    now.Add(time.Hour),
			ObservedAt: now,
		},
		warningThreshold:  defaultWarningThreshold,
		criticalThreshold: defaultCriticalThreshold,
		now:               time.Now,
		logger:            logger,
	}
}

// Observe updates the snapshot from response metadata. A zero-value rate
// (response without rate headers) leaves the prior snapshot in place. Within
// one reset window an observation that would increase the remaining count is
// ignored as a stale or out-of-order response; only a new reset window may
// raise it.
func (t *QuotaTracker) Observe(rate github.Rate) {
	if rate.Limit == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sameWindow := rate.Reset.Time.Equal(t.state.ResetAt)
	if sameWindow && rate.Remaining > t.state.Remaining {
		return
	}

	prev := t.state
	t.state = domain.QuotaState{
		Limit:      rate.Limit,
		Remaining:  rate.Remaining,
		ResetAt:    rate.Reset.Time,
		ObservedAt: t.now(),
	}

	t.logThresholds(prev)
}

// logThresholds emits advisory events on threshold crossings. Callers hold mu.
func (t *QuotaTracker) logThresholds(prev domain.QuotaState) {
	cur := t.state
	switch {
	case cur.Remaining < t.criticalThreshold && prev.Remaining >= t.criticalThreshold:
		t.logger.Error("GitHub API rate limit critically low",
			zap.Int("remaining", cur.Remaining),
			zap.Int("limit", cur.Limit),
			zap.Time("reset_at", cur.ResetAt))
	case cur.Remaining < t.warningThreshold && prev.Remaining >= t.warningThreshold:
		t.logger.Warn("GitHub API rate limit running low",
			zap.Int("remaining", cur.Remaining),
			zap.Int("limit", cur.Limit),
			zap.Time("reset_at", cur.ResetAt))
	}
}

// Snapshot returns the latest fully written quota state.
func (t *QuotaTracker) Snapshot() domain.QuotaState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Remaining returns the last server-reported remaining budget. A snapshot
// whose reset time has passed reports the full limit again.
func (t *QuotaTracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.now().Before(t.state.ResetAt) {
		return t.state.Limit
	}
	return t.state.Remaining
}

// UntilReset returns how long until the budget replenishes.
func (t *QuotaTracker) UntilReset() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.UntilReset(t.now())
}

// BelowWarning reports whether remaining budget is under the warning threshold.
func (t *QuotaTracker) BelowWarning() bool {
	return t.Remaining() < t.warningThreshold
}

// BelowCritical reports whether remaining budget is under the critical threshold.
func (t *QuotaTracker) BelowCritical() bool {
	return t.Remaining() < t.criticalThreshold
}

// Require returns a QuotaExceededError carrying the resolved wait duration if
// fewer than calls requests remain in the current window. A zero remaining
// budget always fails, even for a single call.
func (t *QuotaTracker) Require(calls int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !now.Before(t.state.ResetAt) {
		// Window already rolled over; the next response re-syncs the state.
		return nil
	}
	if t.state.Remaining >= calls && t.state.Remaining > 0 {
		return nil
	}
	return &apperrors.QuotaExceededError{
		Limit:     t.state.Limit,
		Remaining: t.state.Remaining,
		ResetAt:   t.state.ResetAt,
		Wait:      t.state.UntilReset(now),
	}
}
