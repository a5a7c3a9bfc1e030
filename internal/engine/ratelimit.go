package engine

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// QuotaLimiter paces Data API calls. The API key is shared by every
// concurrent ingestion, so one limiter is shared process-wide.
type QuotaLimiter struct {
	lim *rate.Limiter
}

// NewQuotaLimiter allows qps calls per second with the given burst.
// qps <= 0 disables pacing.
func NewQuotaLimiter(qps float64, burst int) *QuotaLimiter {
	if qps <= 0 {
		return &QuotaLimiter{lim: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &QuotaLimiter{lim: rate.NewLimiter(rate.Limit(qps), burst)}
}

// Wait blocks until a call may proceed or ctx is done.
func (q *QuotaLimiter) Wait(ctx context.Context) error {
	if q == nil {
		return nil
	}
	return q.lim.Wait(ctx)
}

var (
	apiLimiter     *QuotaLimiter
	apiLimiterOnce sync.Once
)

// APILimiter returns the process-wide limiter built from Cfg.
func APILimiter() *QuotaLimiter {
	apiLimiterOnce.Do(func() {
		apiLimiter = NewQuotaLimiter(Cfg.YouTubeQPS, Cfg.YouTubeBurst)
	})
	return apiLimiter
}
