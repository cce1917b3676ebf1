package utils

import (
	"context"
	"fmt"
	"time"

	"safety-service/internal/logging"
)

// Retry calls fn up to maxAttempts times. The pause starts at delay and
// doubles after every failure. It gives up early when ctx is done.
func Retry(ctx context.Context, logger *logging.Logger, maxAttempts int, delay time.Duration, fn func() error) error {
	var lastErr error
	wait := delay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		logger.Warnf("Attempt %d/%d failed: %v", attempt, maxAttempts, lastErr)
		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
		case <-timer.C:
		}
		wait *= 2
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
