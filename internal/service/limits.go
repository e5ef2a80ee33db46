package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lucifers-0666/zenopay/internal/domain"
	"github.com/lucifers-0666/zenopay/internal/repository"
)

// DailyLimitGuard enforces a per-account calendar-day ceiling on outgoing
// amounts. CheckAndReserve must run inside the same atomic unit as the
// balance debit; evaluating it outside would let two concurrent transfers
// both read a stale cumulative sum and both pass.
type DailyLimitGuard struct {
	ceiling int64
}

// NewDailyLimitGuard builds a guard with the given ceiling in minor units.
// A non-positive ceiling disables the check.
func NewDailyLimitGuard(ceiling int64) *DailyLimitGuard {
	return &DailyLimitGuard{ceiling: ceiling}
}

func (g *DailyLimitGuard) CheckAndReserve(ctx context.Context, ops repository.Ops, accountID uint64, amount int64, asOf time.Time) error {
	if g.ceiling <= 0 {
		return nil
	}

	// AddDate, not Add(24h): DST-transition days are 23 or 25 hours long
	// and the window must end at the next calendar midnight.
	start := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	end := start.AddDate(0, 0, 1)

	sent, err := ops.SumSentBetween(ctx, accountID, start, end)
	if err != nil {
		return fmt.Errorf("daily volume query failed: %w", err)
	}
	if sent+amount > g.ceiling {
		return fmt.Errorf("%w: %s sent today, ceiling %s",
			ErrDailyLimitExceeded, domain.FormatAmount(sent), domain.FormatAmount(g.ceiling))
	}
	return nil
}
