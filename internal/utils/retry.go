package utils

import (
	"context"
	"fmt"
	"time"

	"dispatch-watch/internal/logging"
)

// Retry calls fn up to maxAttempts times, sleeping delay between attempts.
// It gives up early once ctx is done.
func Retry(ctx context.Context, logger *logging.Logger, maxAttempts int, delay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			logger.Errorf("Attempt %d/%d failed: %v", attempt, maxAttempts, err)
			if attempt < maxAttempts {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return fmt.Errorf("gave up after %d attempts: %w", attempt, ctx.Err())
				case <-timer.C:
				}
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
