package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lucifers-0666/zenopay/internal/domain"
	"github.com/lucifers-0666/zenopay/internal/repository"
	"github.com/lucifers-0666/zenopay/internal/repository/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAccount(t *testing.T, store *memory.Store, balance int64) uint64 {
	t.Helper()
	id, err := store.CreateAccount(context.Background(), &domain.Account{
		OwnerID: "owner",
		Balance: balance,
		Status:  domain.AccountActive,
	})
	if err != nil {
		t.Fatalf("unexpected error creating account: %v", err)
	}
	return id
}

// seqIDs replays a fixed identifier sequence.
type seqIDs struct {
	vals []uint64
	i    int
}

func (s *seqIDs) Next() uint64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

// conflictStore aborts the first n units of work with ErrConflict.
type conflictStore struct {
	repository.Store
	remaining int
}

func (c *conflictStore) Atomically(ctx context.Context, fn func(ops repository.Ops) error) error {
	if c.remaining > 0 {
		c.remaining--
		return repository.ErrConflict
	}
	return c.Store.Atomically(ctx, fn)
}

func TestTransfer_Success(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := newAccount(t, store, 1000)
	b := newAccount(t, store, 200)

	svc := NewTransferService(store, NewDailyLimitGuard(0), nil, testLogger())
	txn, err := svc.Transfer(ctx, a, b, 300, "rent share")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn.Status != domain.StatusSuccess {
		t.Errorf("expected success status, got %s", txn.Status)
	}
	if txn.SenderBefore != 1000 || txn.SenderAfter != 700 {
		t.Errorf("expected sender snapshots 1000/700, got %d/%d", txn.SenderBefore, txn.SenderAfter)
	}
	if txn.ReceiverBefore != 200 || txn.ReceiverAfter != 500 {
		t.Errorf("expected receiver snapshots 200/500, got %d/%d", txn.ReceiverBefore, txn.ReceiverAfter)
	}
	if txn.SenderBefore-txn.Amount != txn.SenderAfter || txn.ReceiverBefore+txn.Amount != txn.ReceiverAfter {
		t.Error("conservation violated in snapshots")
	}

	sender, _ := store.GetAccount(ctx, a)
	receiver, _ := store.GetAccount(ctx, b)
	if sender.Balance != 700 || receiver.Balance != 500 {
		t.Errorf("expected balances 700/500, got %d/%d", sender.Balance, receiver.Balance)
	}

	stored, err := store.GetTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("ledger row missing: %v", err)
	}
	if stored.Amount != 300 {
		t.Errorf("expected stored amount 300, got %d", stored.Amount)
	}
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := newAccount(t, store, 100)
	b := newAccount(t, store, 0)

	svc := NewTransferService(store, NewDailyLimitGuard(0), nil, testLogger())
	_, err := svc.Transfer(ctx, a, b, 300, "too much")

	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	sender, _ := store.GetAccount(ctx, a)
	receiver, _ := store.GetAccount(ctx, b)
	if sender.Balance != 100 || receiver.Balance != 0 {
		t.Errorf("expected balances unchanged, got %d/%d", sender.Balance, receiver.Balance)
	}
}

func TestTransfer_SelfTransferRejected(t *testing.T) {
	store := memory.NewStore()
	a := newAccount(t, store, 1000)

	svc := NewTransferService(store, NewDailyLimitGuard(0), nil, testLogger())
	if _, err := svc.Transfer(context.Background(), a, a, 10, ""); !errors.Is(err, ErrSelfTransfer) {
		t.Errorf("expected ErrSelfTransfer, got %v", err)
	}
}

func TestTransfer_AccountNotFound(t *testing.T) {
	store := memory.NewStore()
	a := newAccount(t, store, 1000)

	svc := NewTransferService(store, NewDailyLimitGuard(0), nil, testLogger())
	if _, err := svc.Transfer(context.Background(), a, 999, 10, ""); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestTransfer_InactiveAccountRejected(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := newAccount(t, store, 1000)
	b, err := store.CreateAccount(ctx, &domain.Account{OwnerID: "x", Balance: 0, Status: domain.AccountSuspended})
	if err != nil {
		t.Fatal(err)
	}

	svc := NewTransferService(store, NewDailyLimitGuard(0), nil, testLogger())
	if _, err := svc.Transfer(ctx, a, b, 10, ""); !errors.Is(err, ErrAccountInactive) {
		t.Errorf("expected ErrAccountInactive, got %v", err)
	}
}

func TestTransfer_InvalidAmount(t *testing.T) {
	store := memory.NewStore()
	a := newAccount(t, store, 1000)
	b := newAccount(t, store, 0)

	svc := NewTransferService(store, NewDailyLimitGuard(0), nil, testLogger())
	for _, amount := range []int64{0, -5} {
		if _, err := svc.Transfer(context.Background(), a, b, amount, ""); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestTransfer_DailyLimitUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := newAccount(t, store, 1_000_000)
	b := newAccount(t, store, 0)

	svc := NewTransferService(store, NewDailyLimitGuard(50_000), nil, testLogger())

	const requests = 10
	var wg sync.WaitGroup
	results := make(chan error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, a, b, 10_000, "concurrent")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, limited int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrDailyLimitExceeded):
			limited++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 5 || limited != 5 {
		t.Errorf("expected 5 successes and 5 limit rejections, got %d/%d", successes, limited)
	}

	sender, _ := store.GetAccount(ctx, a)
	if sender.Balance != 1_000_000-50_000 {
		t.Errorf("expected cumulative sent of exactly 50000, sender balance %d", sender.Balance)
	}
}

func TestTransfer_RetriesOnIdentifierCollision(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := newAccount(t, store, 1000)
	b := newAccount(t, store, 0)

	ids := &seqIDs{vals: []uint64{111_111_111_111, 111_111_111_111, 222_222_222_222}}
	svc := NewTransferService(store, NewDailyLimitGuard(0), ids, testLogger())

	first, err := svc.Transfer(ctx, a, b, 100, "first")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != 111_111_111_111 {
		t.Fatalf("expected first id, got %d", first.ID)
	}

	// Second transfer collides once, then succeeds with a fresh id.
	second, err := svc.Transfer(ctx, a, b, 100, "second")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID != 222_222_222_222 {
		t.Errorf("expected fresh id after collision, got %d", second.ID)
	}
}

func TestTransfer_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	a := newAccount(t, inner, 1000)
	b := newAccount(t, inner, 0)

	store := &conflictStore{Store: inner, remaining: 2}
	svc := NewTransferService(store, NewDailyLimitGuard(0), nil, testLogger())

	txn, err := svc.Transfer(ctx, a, b, 100, "retry me")
	if err != nil {
		t.Fatalf("expected retries to absorb conflicts, got %v", err)
	}
	if txn.SenderAfter != 900 {
		t.Errorf("expected sender balance 900 after retries, got %d", txn.SenderAfter)
	}
}

func TestTransfer_SurfacesConflictAfterExhaustion(t *testing.T) {
	inner := memory.NewStore()
	a := newAccount(t, inner, 1000)
	b := newAccount(t, inner, 0)

	store := &conflictStore{Store: inner, remaining: 100}
	svc := NewTransferService(store, NewDailyLimitGuard(0), nil, testLogger())

	if _, err := svc.Transfer(context.Background(), a, b, 100, ""); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict after bounded retries, got %v", err)
	}
}

func TestRecordFailure_AuditRowWithoutBalanceChange(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := newAccount(t, store, 100)
	b := newAccount(t, store, 0)

	svc := NewTransferService(store, NewDailyLimitGuard(0), nil, testLogger())
	audit, err := svc.RecordFailure(ctx, a, b, 300, "insufficient funds", domain.KindTransfer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if audit.Status != domain.StatusFailed {
		t.Errorf("expected failed status, got %s", audit.Status)
	}
	if audit.Amount != 300 {
		t.Errorf("expected amount 300, got %d", audit.Amount)
	}
	if audit.SenderBefore != audit.SenderAfter || audit.ReceiverBefore != audit.ReceiverAfter {
		t.Error("audit row must not move balances")
	}

	sender, _ := store.GetAccount(ctx, a)
	if sender.Balance != 100 {
		t.Errorf("expected balance unchanged, got %d", sender.Balance)
	}
	if _, err := store.GetTransaction(ctx, audit.ID); err != nil {
		t.Errorf("audit row not persisted: %v", err)
	}
}

func TestDailyLimitGuard_CountsOnlyTodaysSends(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := newAccount(t, store, 1_000_000)
	b := newAccount(t, store, 0)

	svc := NewTransferService(store, NewDailyLimitGuard(500), nil, testLogger())
	yesterday := time.Now().Add(-48 * time.Hour)
	svc.now = func() time.Time { return yesterday }
	if _, err := svc.Transfer(ctx, a, b, 400, "old"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.now = time.Now
	if _, err := svc.Transfer(ctx, a, b, 400, "today"); err != nil {
		t.Errorf("yesterday's volume must not count against today: %v", err)
	}
	if _, err := svc.Transfer(ctx, a, b, 200, "over"); !errors.Is(err, ErrDailyLimitExceeded) {
		t.Errorf("expected ErrDailyLimitExceeded, got %v", err)
	}
}

func TestDailyLimitGuard_WindowEndsAtCalendarMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tz database unavailable")
	}

	ctx := context.Background()
	store := memory.NewStore()
	a := newAccount(t, store, 1_000_000)
	b := newAccount(t, store, 0)

	svc := NewTransferService(store, NewDailyLimitGuard(500), nil, testLogger())

	// 2026-03-08 is a 23-hour day in this zone. A movement just after the
	// following midnight belongs to March 9, and the March 8 window must
	// end at calendar midnight rather than 24 wall-clock hours after its
	// start.
	afterMidnight := time.Date(2026, time.March, 9, 0, 30, 0, 0, loc)
	svc.now = func() time.Time { return afterMidnight }
	if _, err := svc.Transfer(ctx, a, b, 400, "next day"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	shortDayNoon := time.Date(2026, time.March, 8, 12, 0, 0, 0, loc)
	svc.now = func() time.Time { return shortDayNoon }
	if _, err := svc.Transfer(ctx, a, b, 400, "short day"); err != nil {
		t.Errorf("the next day's volume must not count against the short day: %v", err)
	}
}
