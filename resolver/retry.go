package resolver

import (
	"context"
	"log/slog"
	"time"
)

// WithRetry wraps r so transient failures are retried with exponential
// backoff. It respects context cancellation between retries.
//
// Parameters:
//   - maxRetries: maximum number of retry attempts (0 = no retry)
//   - baseBackoff: initial wait between retries, doubled each attempt
//   - logger: used to log retry attempts (may be nil for silent retries)
func WithRetry(r Resolver, maxRetries int, baseBackoff time.Duration, logger *slog.Logger) Resolver {
	return Func(func(ctx context.Context, keyword string) (string, error) {
		var lastErr error
		for attempt := 0; attempt <= maxRetries; attempt++ {
			u, err := r.Resolve(ctx, keyword)
			if err == nil {
				return u, nil
			}
			lastErr = err

			if ctx.Err() != nil || !IsTransient(err) {
				return "", lastErr
			}

			if attempt < maxRetries {
				wait := baseBackoff * (1 << uint(attempt))
				if logger != nil {
					logger.WarnContext(ctx, "resolver: retrying",
						"attempt", attempt+1,
						"max_retries", maxRetries,
						"backoff_ms", wait.Milliseconds(),
						"error", err)
				}
				select {
				case <-ctx.Done():
					return "", lastErr
				case <-time.After(wait):
				}
			}
		}
		return "", lastErr
	})
}
