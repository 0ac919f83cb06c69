package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestRetryOnConflictStopsOnSuccess(test *testing.T) {
	test.Parallel()
	calls := 0
	err := RetryOnConflict(context.Background(), 5, func(context.Context) error {
		calls++
		if calls < 3 {
			return WrapError("store", "grant", "duplicate", ErrStorageConflict)
		}
		return nil
	})
	if err != nil {
		test.Fatalf("retry: %v", err)
	}
	if calls != 3 {
		test.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryOnConflictDoesNotRetryBusinessErrors(test *testing.T) {
	test.Parallel()
	calls := 0
	err := RetryOnConflict(context.Background(), 5, func(context.Context) error {
		calls++
		return ErrInsufficientBalance
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if calls != 1 {
		test.Fatalf("expected a single call, got %d", calls)
	}
}

func TestRetryOnConflictHonorsCancellation(test *testing.T) {
	test.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryOnConflict(ctx, 5, func(context.Context) error {
		calls++
		cancel()
		return ErrStorageConflict
	})
	if !errors.Is(err, context.Canceled) {
		test.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		test.Fatalf("expected a single call, got %d", calls)
	}
}
