package collector

import (
	"context"
	"errors"
	"time"

	"github.com/google/go-github/v55/github"
	"go.uber.org/zap"

	apperrors "github.com/dannyviti/gh-pr-analyzer/internal/errors"
)

// outcome is the closed classification of one attempt. Every consumer
// switches over this finite set instead of probing response shapes ad hoc.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeQuotaExceeded
	outcomeTransient
	outcomeFatal
)

// CallFunc performs one logical API call and returns the response carrying
// quota metadata. Implementations must be safe to invoke more than once.
type CallFunc func(ctx context.Context) (*github.Response, error)

// SleepFunc suspends for the given duration, honoring context cancellation.
// Injected so backoff schedules are testable without real waits.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Caller executes logical API calls with classification-aware retry and
// exponential backoff, updating the quota tracker after every attempt.
type Caller struct {
	quota      *QuotaTracker
	maxRetries int
	baseDelay  time.Duration
	sleep      SleepFunc
	logger     *zap.Logger
}

// NewCaller creates a retrying caller. maxRetries caps the total number of
// attempts; baseDelay seeds the exponential backoff between them.
func NewCaller(quota *QuotaTracker, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *Caller {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{
		quota:      quota,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sleep:      sleepWithContext,
		logger:     logger,
	}
}

// Do executes fn, retrying transient failures with delays of
// baseDelay * 2^(n-1) after the n-th attempt. Quota-exceeded and fatal
// outcomes are never retried. After maxRetries transient attempts the call
// resolves as an ExhaustedError preserving the last cause.
func (c *Caller) Do(ctx context.Context, op string, fn CallFunc) error {
	if err := c.quota.Require(1); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		resp, err := fn(ctx)
		c.observe(resp, err)

		switch classify(resp, err) {
		case outcomeSuccess:
			if attempt > 1 {
				c.logger.Info("API request succeeded after retries",
					zap.String("op", op), zap.Int("attempt", attempt))
			}
			return nil

		case outcomeQuotaExceeded:
			return c.quotaError()

		case outcomeFatal:
			return fatalError(resp, err)

		case outcomeTransient:
			lastErr = err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt < c.maxRetries {
			delay := c.baseDelay << (attempt - 1)
			c.logger.Warn("API request failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.maxRetries),
				zap.Duration("backoff", delay),
				zap.Error(err))
			if serr := c.sleep(ctx, delay); serr != nil {
				return serr
			}
		}
	}

	c.logger.Error("API request exhausted retries",
		zap.String("op", op), zap.Int("attempts", c.maxRetries), zap.Error(lastErr))
	return &apperrors.ExhaustedError{Op: op, Attempts: c.maxRetries, Last: lastErr}
}

// observe feeds the attempt's quota metadata into the tracker so budget state
// reflects reality even when the logical call ultimately fails.
func (c *Caller) observe(resp *github.Response, err error) {
	if resp != nil {
		c.quota.Observe(resp.Rate)
		return
	}
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		c.quota.Observe(rle.Rate)
	}
}

func (c *Caller) quotaError() error {
	state := c.quota.Snapshot()
	return &apperrors.QuotaExceededError{
		Limit:     state.Limit,
		Remaining: state.Remaining,
		ResetAt:   state.ResetAt,
		Wait:      c.quota.UntilReset(),
	}
}

// classify maps one attempt's result onto the closed outcome set, evaluated
// in policy order: quota depletion, plain authorization failure, transient
// server or network trouble, then any other non-2xx as fatal.
func classify(resp *github.Response, err error) outcome {
	if err == nil {
		return outcomeSuccess
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return outcomeQuotaExceeded
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return outcomeQuotaExceeded
	}

	var apiErr *github.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		status := apiErr.Response.StatusCode
		switch {
		case status == 429 && resp != nil && resp.Rate.Limit > 0 && resp.Rate.Remaining == 0:
			return outcomeQuotaExceeded
		case status >= 500:
			return outcomeTransient
		default:
			// 403 without a quota-depletion signal and every other non-2xx
			// status are not worth retrying.
			return outcomeFatal
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return outcomeFatal
	}

	// Connection resets, DNS failures, timeouts from the transport.
	return outcomeTransient
}

func fatalError(resp *github.Response, err error) error {
	var apiErr *github.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		return &apperrors.FatalError{
			StatusCode: apiErr.Response.StatusCode,
			Message:    apiErr.Message,
		}
	}
	if resp != nil {
		return &apperrors.FatalError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	return err
}
