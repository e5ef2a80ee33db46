package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lucifers-0666/zenopay/internal/domain"
	"github.com/lucifers-0666/zenopay/internal/repository"
)

const (
	maxConflictAttempts = 3
	maxIDAttempts       = 5
	conflictBackoff     = 10 * time.Millisecond
)

// withConflictRetry runs one unit of work, retrying concurrent-modification
// aborts with linear backoff. Terminal business errors pass through
// untouched on the first occurrence.
func withConflictRetry(ctx context.Context, logger *slog.Logger, store repository.Store, fn func(ops repository.Ops) error) error {
	for attempt := 1; ; attempt++ {
		err := store.Atomically(ctx, fn)
		if err == nil || !errors.Is(err, repository.ErrConflict) {
			return err
		}
		if attempt >= maxConflictAttempts {
			return fmt.Errorf("%w: gave up after %d attempts", ErrConflict, attempt)
		}
		logger.Warn("unit of work aborted on conflict, retrying",
			slog.Int("attempt", attempt))
		select {
		case <-time.After(time.Duration(attempt) * conflictBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// insertWithFreshID appends a ledger row, drawing a new identifier on each
// uniqueness violation. Randomness alone is never trusted: the storage
// layer's constraint is the arbiter and the loop is bounded.
func insertWithFreshID(ctx context.Context, ops repository.Ops, ids IDSource, txn *domain.Transaction) error {
	for i := 0; i < maxIDAttempts; i++ {
		txn.ID = ids.Next()
		err := ops.InsertTransaction(ctx, txn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateID) {
			return err
		}
	}
	return fmt.Errorf("%w: could not allocate a unique transaction id in %d attempts", ErrConflict, maxIDAttempts)
}
