package gateway

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/plantops/opsbrief/errs"
	"github.com/plantops/opsbrief/opsmodel"
)

// RetryPolicy wraps a Gateway with a bounded, backoff-paced retry for
// ConnectivityError only. ConfigurationError and QueryError are never
// retried. Both attempts and total duration are capped so a retry loop
// cannot starve a caller's deadline (per the concurrency model: the core
// never retries by itself beyond this bounded Gateway-level policy).
type RetryPolicy struct {
	inner Gateway

	maxAttempts int
	maxElapsed  time.Duration
	baseDelay   time.Duration
	limiter     *rate.Limiter
	pacer       *AdaptiveLimiter
}

// RetryOption configures a RetryPolicy.
type RetryOption func(*RetryPolicy)

// WithMaxAttempts bounds the number of attempts (including the first). Default 3.
func WithMaxAttempts(n int) RetryOption {
	return func(p *RetryPolicy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithMaxElapsed bounds the total wall-clock time spent retrying. Default 2s.
func WithMaxElapsed(d time.Duration) RetryOption {
	return func(p *RetryPolicy) {
		if d > 0 {
			p.maxElapsed = d
		}
	}
}

// WithBaseDelay sets the first retry delay; subsequent delays double. Default 50ms.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(p *RetryPolicy) {
		if d > 0 {
			p.baseDelay = d
		}
	}
}

// WithAdaptiveLimiter paces every attempt through l and feeds call outcomes
// back into its AIMD budget, so a throttling store slows this process (and,
// when l is cluster-coordinated, the whole fleet) instead of being hammered
// by retries.
func WithAdaptiveLimiter(l *AdaptiveLimiter) RetryOption {
	return func(p *RetryPolicy) { p.pacer = l }
}

// NewRetryPolicy wraps inner with bounded retry-on-connectivity-error behavior.
func NewRetryPolicy(inner Gateway, opts ...RetryOption) *RetryPolicy {
	p := &RetryPolicy{
		inner:       inner,
		maxAttempts: 3,
		maxElapsed:  2 * time.Second,
		baseDelay:   50 * time.Millisecond,
	}
	for _, o := range opts {
		o(p)
	}
	// One retry permit per baseDelay on average; bursts up to maxAttempts so a
	// single call's own backoff is never additionally throttled by the limiter.
	p.limiter = rate.NewLimiter(rate.Every(p.baseDelay), p.maxAttempts)
	return p
}

func (p *RetryPolicy) do(ctx context.Context, fn func(context.Context) (opsmodel.DataResult, error)) (opsmodel.DataResult, error) {
	deadline := time.Now().Add(p.maxElapsed)
	var lastResult opsmodel.DataResult
	var lastErr error
	delay := p.baseDelay
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if p.pacer != nil {
			if err := p.pacer.Wait(ctx); err != nil {
				return lastResult, err
			}
		}
		lastResult, lastErr = fn(ctx)
		if p.pacer != nil {
			p.pacer.Observe(lastErr)
		}
		if lastErr == nil || !errs.Retryable(lastErr) {
			return lastResult, lastErr
		}
		if attempt == p.maxAttempts || time.Now().Add(delay).After(deadline) {
			break
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return lastResult, lastErr
		}
		select {
		case <-ctx.Done():
			return lastResult, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastResult, lastErr
}

func (p *RetryPolicy) GetAsset(ctx context.Context, id string) (opsmodel.DataResult, error) {
	return p.do(ctx, func(ctx context.Context) (opsmodel.DataResult, error) { return p.inner.GetAsset(ctx, id) })
}

func (p *RetryPolicy) GetAssetByName(ctx context.Context, name string) (opsmodel.DataResult, error) {
	return p.do(ctx, func(ctx context.Context) (opsmodel.DataResult, error) { return p.inner.GetAssetByName(ctx, name) })
}

func (p *RetryPolicy) GetSimilarAssets(ctx context.Context, name string, limit int) (opsmodel.DataResult, error) {
	return p.do(ctx, func(ctx context.Context) (opsmodel.DataResult, error) {
		return p.inner.GetSimilarAssets(ctx, name, limit)
	})
}

func (p *RetryPolicy) GetAssetsByArea(ctx context.Context, area string) (opsmodel.DataResult, error) {
	return p.do(ctx, func(ctx context.Context) (opsmodel.DataResult, error) { return p.inner.GetAssetsByArea(ctx, area) })
}

func (p *RetryPolicy) GetAllAssets(ctx context.Context) (opsmodel.DataResult, error) {
	return p.do(ctx, func(ctx context.Context) (opsmodel.DataResult, error) { return p.inner.GetAllAssets(ctx) })
}

func (p *RetryPolicy) GetOEE(ctx context.Context, assetID string, start, end time.Time) (opsmodel.DataResult, error) {
	return p.do(ctx, func(ctx context.Context) (opsmodel.DataResult, error) {
		return p.inner.GetOEE(ctx, assetID, start, end)
	})
}

func (p *RetryPolicy) GetOEEByArea(ctx context.Context, area string, start, end time.Time) (opsmodel.DataResult, error) {
	return p.do(ctx, func(ctx context.Context) (opsmodel.DataResult, error) {
		return p.inner.GetOEEByArea(ctx, area, start, end)
	})
}

func (p *RetryPolicy) GetDowntime(ctx context.Context, assetID string, start, end time.Time) (opsmodel.DataResult, error) {
	return p.do(ctx, func(ctx context.Context) (opsmodel.DataResult, error) {
		return p.inner.GetDowntime(ctx, assetID, start, end)
	})
}

func (p *RetryPolicy) GetLiveSnapshot(ctx context.Context, assetID string) (opsmodel.DataResult, error) {
	return p.do(ctx, func(ctx context.Context) (opsmodel.DataResult, error) { return p.inner.GetLiveSnapshot(ctx, assetID) })
}

func (p *RetryPolicy) GetLiveSnapshotsByArea(ctx context.Context, area string) (opsmodel.DataResult, error) {
	return p.do(ctx, func(ctx context.Context) (opsmodel.DataResult, error) {
		return p.inner.GetLiveSnapshotsByArea(ctx, area)
	})
}

func (p *RetryPolicy) GetShiftTarget(ctx context.Context, assetID string) (opsmodel.DataResult, error) {
	return p.do(ctx, func(ctx context.Context) (opsmodel.DataResult, error) { return p.inner.GetShiftTarget(ctx, assetID) })
}

func (p *RetryPolicy) GetSafetyEvents(ctx context.Context, q SafetyEventsQuery) (opsmodel.DataResult, error) {
	return p.do(ctx, func(ctx context.Context) (opsmodel.DataResult, error) { return p.inner.GetSafetyEvents(ctx, q) })
}

func (p *RetryPolicy) GetFinancialMetrics(ctx context.Context, q ScopedDateQuery) (opsmodel.DataResult, error) {
	return p.do(ctx, func(ctx context.Context) (opsmodel.DataResult, error) { return p.inner.GetFinancialMetrics(ctx, q) })
}

func (p *RetryPolicy) GetCostOfLoss(ctx context.Context, q ScopedDateQuery) (opsmodel.DataResult, error) {
	return p.do(ctx, func(ctx context.Context) (opsmodel.DataResult, error) { return p.inner.GetCostOfLoss(ctx, q) })
}

func (p *RetryPolicy) GetTrendData(ctx context.Context, q TrendQuery) (opsmodel.DataResult, error) {
	return p.do(ctx, func(ctx context.Context) (opsmodel.DataResult, error) { return p.inner.GetTrendData(ctx, q) })
}

func (p *RetryPolicy) RecordAudit(ctx context.Context, entry opsmodel.AuditTrailEntry) {
	p.inner.RecordAudit(ctx, entry)
}

var _ Gateway = (*RetryPolicy)(nil)
