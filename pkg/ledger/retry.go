package ledger

import (
	"context"
	"errors"
	"fmt"
)

// RetryOnConflict runs attempt until it returns something other than ErrStorageConflict,
// or until attempts are exhausted. Every other error is returned immediately.
func RetryOnConflict(ctx context.Context, attempts int, attempt func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for try := 0; try < attempts; try++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = attempt(ctx)
		if !errors.Is(lastErr, ErrStorageConflict) {
			return lastErr
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
