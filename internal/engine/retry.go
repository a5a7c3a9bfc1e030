package engine

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
)

// RetryConfig is an exponential backoff policy. MaxRetries counts retries,
// so fn runs at most MaxRetries+1 times.
type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultRetryConfig paces Data API calls and caption fetches.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:  3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     10 * time.Second,
	Multiplier:  2.0,
}

// delay is the wait before retry number attempt (0-based).
func (rc RetryConfig) delay(attempt int) time.Duration {
	wait := float64(rc.InitialWait)
	for range attempt {
		wait *= rc.Multiplier
		if rc.MaxWait > 0 && wait >= float64(rc.MaxWait) {
			return rc.MaxWait
		}
	}
	if rc.MaxWait > 0 && time.Duration(wait) > rc.MaxWait {
		return rc.MaxWait
	}
	return time.Duration(wait)
}

// RetryDo runs fn until it succeeds, returns a permanent error, or the
// policy is exhausted. A server-provided Retry-After replaces the computed
// backoff when it is longer, still bounded by MaxWait.
func RetryDo[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := fn()
		if err == nil {
			return out, nil
		}
		if attempt >= rc.MaxRetries || !isRetryable(err) {
			return zero, err
		}

		wait := rc.delay(attempt)
		if hint := retryAfter(err); hint > wait {
			wait = hint
			if rc.MaxWait > 0 {
				wait = min(wait, rc.MaxWait)
			}
		}
		slog.Debug("retry scheduled",
			slog.Int("attempt", attempt+1),
			slog.Duration("wait", wait),
			slog.Any("error", err))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}
}

// RetryHTTP wraps a request function so that transient status codes are
// retried like transport errors. The final response is returned with its
// body open even when its status is not 2xx.
func RetryHTTP(ctx context.Context, rc RetryConfig, send func() (*http.Response, error)) (*http.Response, error) {
	return RetryDo(ctx, rc, func() (*http.Response, error) {
		resp, err := send()
		if err != nil {
			return nil, err
		}
		if !transientStatus(resp.StatusCode) {
			return resp, nil
		}
		resp.Body.Close()
		return nil, &statusError{
			Code:       resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	})
}

// statusError is a transient HTTP status from a scraped endpoint.
type statusError struct {
	Code       int
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return "HTTP " + strconv.Itoa(e.Code) + " " + http.StatusText(e.Code)
}

// isRetryable classifies err as transient.
func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		// quotaExceeded resets daily, never within a backoff window.
		for _, item := range apiErr.Errors {
			switch item.Reason {
			case "quotaExceeded", "dailyLimitExceeded":
				return false
			case "rateLimitExceeded", "userRateLimitExceeded", "backendError":
				return true
			}
		}
		return transientStatus(apiErr.Code)
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// retryAfter extracts a server pacing hint from err, or 0.
func retryAfter(err error) time.Duration {
	var se *statusError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Header != nil {
		return parseRetryAfter(apiErr.Header.Get("Retry-After"))
	}
	return 0
}

// parseRetryAfter accepts the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// transientStatus reports whether an HTTP status is worth another attempt.
func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
