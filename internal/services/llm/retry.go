// -----------------------------------------------------------------------
// Provider retry helpers - rate-limit detection and backoff
// -----------------------------------------------------------------------

package llm

import (
	"context"
	"regexp"
	"strings"
	"time"
)

const (
	maxRetryAttempts = 3
	baseRetryDelay   = 2 * time.Second
	maxRetryDelay    = 30 * time.Second
)

var retryDelayPattern = regexp.MustCompile(`(?i)retry(?:\s+in|Delay"?:?\s*"?)\s*(\d+(?:\.\d+)?)\s*s`)

// isRateLimitError reports whether an error is a provider rate limit or
// quota exhaustion, which is worth waiting out.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "quota")
}

// extractRetryDelay pulls the server-suggested delay out of a rate-limit
// error message. Returns zero when the message carries none.
func extractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	m := retryDelayPattern.FindStringSubmatch(err.Error())
	if len(m) < 2 {
		return 0
	}
	d, parseErr := time.ParseDuration(m[1] + "s")
	if parseErr != nil {
		return 0
	}
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

// backoffDelay doubles the base delay per attempt, capped at maxRetryDelay.
func backoffDelay(attempt int) time.Duration {
	d := baseRetryDelay << attempt
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

// withRateLimitRetry runs fn, waiting out rate-limit errors up to
// maxRetryAttempts times. Other errors return immediately.
func withRateLimitRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !isRateLimitError(err) {
			return zero, err
		}
		lastErr = err

		delay := extractRetryDelay(err)
		if delay == 0 {
			delay = backoffDelay(attempt)
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}
