package collector

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
	apperrors "github.com/dannyviti/gh-pr-analyzer/internal/errors"
)

// BatchScheduler paces the composite fetch across an ordered sequence of
// pull requests: fixed-size batches, bounded in-batch parallelism, a pause
// between batches, and a quota pre-check before every batch so a group is
// never attempted that cannot complete.
type BatchScheduler struct {
	fetcher      ItemFetcher
	quota        *QuotaTracker
	batchSize    int
	delay        time.Duration
	waitForReset bool
	sleep        SleepFunc
	onProgress   ProgressFunc
	logger       *zap.Logger
}

// SchedulerOption configures optional scheduler behavior.
type SchedulerOption func(*BatchScheduler)

// WithProgress registers an observer receiving cumulative counts and the
// current quota snapshot after each batch.
func WithProgress(fn ProgressFunc) SchedulerOption {
	return func(s *BatchScheduler) { s.onProgress = fn }
}

// WithWaitForReset makes the scheduler sleep until the quota window resets
// instead of aborting when the next batch cannot be afforded.
func WithWaitForReset() SchedulerOption {
	return func(s *BatchScheduler) { s.waitForReset = true }
}

// NewBatchScheduler creates a scheduler. batchSize bounds both the group
// size and the in-group parallelism; delay is slept between groups.
func NewBatchScheduler(fetcher ItemFetcher, quota *QuotaTracker, batchSize int, delay time.Duration, logger *zap.Logger, opts ...SchedulerOption) *BatchScheduler {
	if batchSize < 1 {
		batchSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &BatchScheduler{
		fetcher:   fetcher,
		quota:     quota,
		batchSize: batchSize,
		delay:     delay,
		sleep:     sleepWithContext,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run fetches every pull request and returns one bundle per input item,
// index-aligned with the input order regardless of completion order inside a
// batch. Cancellation is honored at batch boundaries: an in-flight batch
// completes, then no further batches start.
func (s *BatchScheduler) Run(ctx context.Context, prs []*domain.PullRequest) ([]*domain.PRBundle, error) {
	results := make([]*domain.PRBundle, len(prs))
	totalBatches := (len(prs) + s.batchSize - 1) / s.batchSize

	var completed, partial, failed int

	for start, batchIndex := 0, 0; start < len(prs); start, batchIndex = start+s.batchSize, batchIndex+1 {
		if err := ctx.Err(); err != nil {
			return results[:start], err
		}

		end := start + s.batchSize
		if end > len(prs) {
			end = len(prs)
		}
		group := prs[start:end]

		if err := s.ensureBudget(ctx, len(group)); err != nil {
			return results[:start], err
		}

		s.logger.Info("processing batch",
			zap.Int("batch", batchIndex+1),
			zap.Int("total_batches", totalBatches),
			zap.Int("items", len(group)))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.batchSize)
		for i, pr := range group {
			idx, pr := start+i, pr
			g.Go(func() error {
				results[idx] = s.fetcher.FetchPR(gctx, pr)
				return nil
			})
		}
		// Fetch outcomes are carried on the bundles, never as errors.
		_ = g.Wait()

		for _, b := range results[start:end] {
			switch b.Status {
			case domain.FetchComplete:
				completed++
			case domain.FetchPartial:
				partial++
			case domain.FetchFailed:
				failed++
			}
		}

		state := s.quota.Snapshot()
		s.logger.Info("batch complete",
			zap.Int("batch", batchIndex+1),
			zap.Int("completed", completed),
			zap.Int("partial", partial),
			zap.Int("failed", failed),
			zap.Int("quota_remaining", state.Remaining))
		if s.onProgress != nil {
			s.onProgress(domain.Progress{
				BatchIndex:   batchIndex,
				TotalBatches: totalBatches,
				Completed:    completed,
				Partial:      partial,
				Failed:       failed,
				Quota:        state,
			})
		}

		if end < len(prs) && s.delay > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				return results[:end], err
			}
		}
	}

	return results, nil
}

// ensureBudget verifies the batch can be afforded before any of its calls
// are issued. When waiting is enabled a depleted budget suspends the run
// until the reset; otherwise the structured quota error aborts it.
func (s *BatchScheduler) ensureBudget(ctx context.Context, groupSize int) error {
	required := s.fetcher.CallsPerItem() * groupSize

	err := s.quota.Require(required)
	if err == nil {
		return nil
	}

	qe, ok := apperrors.AsQuotaExceeded(err)
	if !ok || !s.waitForReset {
		return err
	}

	s.logger.Warn("quota insufficient for next batch, waiting for reset",
		zap.Int("required", required),
		zap.Int("remaining", qe.Remaining),
		zap.Duration("wait", qe.Wait))
	if serr := s.sleep(ctx, qe.Wait); serr != nil {
		return serr
	}
	// The window has rolled over; the next response re-syncs the tracker.
	return s.quota.Require(0)
}
