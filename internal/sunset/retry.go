package sunset

import (
	"context"
	"fmt"
	"time"

	"solar-clock/internal/metrics"

	"go.uber.org/zap"
)

type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	// Backoff is the wait before the second attempt; it doubles after that.
	Backoff time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Timeout:  10 * time.Second,
		Backoff:  2 * time.Second,
	}
}

type retrying struct {
	next   Provider
	policy RetryPolicy
	log    *zap.SugaredLogger
}

// WithRetry bounds every attempt of next with a timeout and retries failed
// attempts up to policy.Attempts. The final failure wraps ErrFetchFailed.
func WithRetry(next Provider, policy RetryPolicy, log *zap.SugaredLogger) Provider {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &retrying{next: next, policy: policy, log: log}
}

func (r *retrying) Name() string {
	return r.next.Name()
}

func (r *retrying) SunTimes(ctx context.Context, lat, lon float64, date time.Time) (*Times, error) {
	fetches := metrics.Get().SunsetFetches
	backoff := r.policy.Backoff

	var lastErr error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		times, err := r.attempt(ctx, lat, lon, date)
		if err == nil {
			fetches.WithLabelValues(r.Name(), "ok").Inc()
			return times, nil
		}
		lastErr = err
		fetches.WithLabelValues(r.Name(), "error").Inc()
		r.log.Warnf("Sunset fetch attempt %d/%d from %s failed: %v", attempt, r.policy.Attempts, r.Name(), err)

		if attempt == r.policy.Attempts || ctx.Err() != nil {
			break
		}
		if backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("%w: %v", ErrFetchFailed, ctx.Err())
			case <-timer.C:
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrFetchFailed, lastErr)
}

func (r *retrying) attempt(ctx context.Context, lat, lon float64, date time.Time) (*Times, error) {
	if r.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
	}
	return r.next.SunTimes(ctx, lat, lon, date)
}
