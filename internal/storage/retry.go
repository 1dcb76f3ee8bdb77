package storage

import (
	"context"
	"time"
)

const (
	retryAttempts  = 3
	retryBaseDelay = 100 * time.Millisecond
)

// Retry runs op up to three times, doubling the pause between attempts. It
// gives up early when ctx is done and returns the last error.
func Retry(ctx context.Context, op func() error) error {
	var lastErr error
	for i := 0; i < retryAttempts; i++ {
		if lastErr = op(); lastErr == nil {
			return nil
		}
		if i == retryAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(retryBaseDelay << i):
		}
	}
	return lastErr
}
