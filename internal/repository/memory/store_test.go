package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lucifers-0666/zenopay/internal/domain"
	"github.com/lucifers-0666/zenopay/internal/repository"
)

func TestStore_CreateAndGetAccount(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	id, err := store.CreateAccount(ctx, &domain.Account{OwnerID: "u1", Balance: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.GetAccount(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OwnerID != "u1" || got.Balance != 100 {
		t.Errorf("expected owner u1 with balance 100, got %+v", got)
	}
	if got.Status != domain.AccountActive {
		t.Errorf("expected default active status, got %s", got.Status)
	}
}

func TestStore_GetAccountNotFound(t *testing.T) {
	store := NewStore()
	if _, err := store.GetAccount(context.Background(), 99); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_AtomicallyRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	id, _ := store.CreateAccount(ctx, &domain.Account{OwnerID: "u1", Balance: 100})

	boom := errors.New("boom")
	err := store.Atomically(ctx, func(ops repository.Ops) error {
		if err := ops.SetBalance(ctx, id, 0); err != nil {
			return err
		}
		if err := ops.InsertTransaction(ctx, &domain.Transaction{ID: 1, SenderID: id, Status: domain.StatusSuccess}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected error to propagate, got %v", err)
	}

	account, _ := store.GetAccount(ctx, id)
	if account.Balance != 100 {
		t.Errorf("expected staged debit discarded, balance %d", account.Balance)
	}
	if _, err := store.GetTransaction(ctx, 1); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected staged insert discarded, got %v", err)
	}
}

func TestStore_StagedReadsSeeOwnWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	id, _ := store.CreateAccount(ctx, &domain.Account{OwnerID: "u1", Balance: 100})

	err := store.Atomically(ctx, func(ops repository.Ops) error {
		if err := ops.SetBalance(ctx, id, 40); err != nil {
			return err
		}
		account, err := ops.AccountForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if account.Balance != 40 {
			t.Errorf("expected staged balance 40, got %d", account.Balance)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	account, _ := store.GetAccount(ctx, id)
	if account.Balance != 40 {
		t.Errorf("expected committed balance 40, got %d", account.Balance)
	}
}

func TestStore_InsertTransactionDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	put := func(id uint64) error {
		return store.Atomically(ctx, func(ops repository.Ops) error {
			return ops.InsertTransaction(ctx, &domain.Transaction{ID: id, Status: domain.StatusSuccess, CreatedAt: time.Now()})
		})
	}
	if err := put(7); err != nil {
		t.Fatal(err)
	}
	if err := put(7); !errors.Is(err, repository.ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestStore_SumSentBetween(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	rows := []*domain.Transaction{
		{ID: 1, SenderID: 5, Amount: 50, Status: domain.StatusSuccess, CreatedAt: now},
		{ID: 2, SenderID: 5, Amount: 30, Status: domain.StatusSuccess, CreatedAt: now},
		{ID: 3, SenderID: 5, Amount: 999, Status: domain.StatusFailed, CreatedAt: now},
		{ID: 4, SenderID: 5, Amount: 70, Status: domain.StatusSuccess, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: 5, SenderID: 6, Amount: 20, Status: domain.StatusSuccess, CreatedAt: now},
	}
	err := store.Atomically(ctx, func(ops repository.Ops) error {
		for _, row := range rows {
			if err := ops.InsertTransaction(ctx, row); err != nil {
				return err
			}
		}
		// Staged rows count toward the sum inside the same unit.
		total, err := ops.SumSentBetween(ctx, 5, start, start.Add(24*time.Hour))
		if err != nil {
			return err
		}
		if total != 80 {
			t.Errorf("expected sum 80 (failed, other-day and other-sender rows excluded), got %d", total)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStore_SumRefunds(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.Atomically(ctx, func(ops repository.Ops) error {
		rows := []*domain.Transaction{
			{ID: 10, Amount: 500, Status: domain.StatusSuccess, Kind: domain.KindPayment, CreatedAt: time.Now()},
			{ID: 11, Amount: 200, Status: domain.StatusSuccess, Kind: domain.KindRefund, RefundOf: 10, CreatedAt: time.Now()},
			{ID: 12, Amount: 100, Status: domain.StatusSuccess, Kind: domain.KindRefund, RefundOf: 10, CreatedAt: time.Now()},
			{ID: 13, Amount: 50, Status: domain.StatusSuccess, Kind: domain.KindRefund, RefundOf: 99, CreatedAt: time.Now()},
		}
		for _, row := range rows {
			if err := ops.InsertTransaction(ctx, row); err != nil {
				return err
			}
		}
		total, err := ops.SumRefunds(ctx, 10)
		if err != nil {
			return err
		}
		if total != 300 {
			t.Errorf("expected refund sum 300, got %d", total)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStore_ListAccountTransactions(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Now()

	err := store.Atomically(ctx, func(ops repository.Ops) error {
		for i := uint64(1); i <= 3; i++ {
			txn := &domain.Transaction{ID: i, SenderID: 5, ReceiverID: 6, Amount: int64(i), Status: domain.StatusSuccess, CreatedAt: base.Add(time.Duration(i) * time.Second)}
			if err := ops.InsertTransaction(ctx, txn); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	txns, err := store.ListAccountTransactions(ctx, 5, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(txns))
	}
	if txns[0].ID != 3 {
		t.Errorf("expected newest first, got id %d", txns[0].ID)
	}
}

func TestStore_ListAccountTransactionsNegativePagination(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.Atomically(ctx, func(ops repository.Ops) error {
		return ops.InsertTransaction(ctx, &domain.Transaction{ID: 1, SenderID: 5, Status: domain.StatusSuccess, CreatedAt: time.Now()})
	})
	if err != nil {
		t.Fatal(err)
	}

	// Negative offsets and limits come straight off the query string and
	// must degrade to defaults, never panic.
	txns, err := store.ListAccountTransactions(ctx, 5, 2, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txns) != 1 {
		t.Errorf("expected 1 row with clamped offset, got %d", len(txns))
	}

	txns, err = store.ListAccountTransactions(ctx, 5, -3, -7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txns) != 1 {
		t.Errorf("expected 1 row with clamped limit and offset, got %d", len(txns))
	}
}

func TestChallengeStore_PutGetInvalidate(t *testing.T) {
	ctx := context.Background()
	store := NewChallengeStore()
	ch := domain.Challenge{Code: "123456", IssuedAt: time.Now(), ExpiresAt: time.Now().Add(5 * time.Minute)}

	if err := store.Put(ctx, "transfer:1", ch, 5*time.Minute); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, "transfer:1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Code != "123456" {
		t.Errorf("expected stored code, got %q", got.Code)
	}

	if err := store.Invalidate(ctx, "transfer:1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "transfer:1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound after invalidate, got %v", err)
	}
}

func TestChallengeStore_LazyTTLPurge(t *testing.T) {
	ctx := context.Background()
	store := NewChallengeStore()
	ch := domain.Challenge{Code: "123456"}

	if err := store.Put(ctx, "transfer:1", ch, -time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "transfer:1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected expired entry to be purged, got %v", err)
	}
}

func TestStore_Credentials(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	cred := &domain.MerchantCredential{APIKey: "880123abc", Secret: "s", MerchantOwnerID: "m", SettlementAccountID: 9}

	if err := store.PutCredential(ctx, cred); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetCredential(ctx, "880123abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SettlementAccountID != 9 {
		t.Errorf("expected settlement account 9, got %d", got.SettlementAccountID)
	}
	if _, err := store.GetCredential(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
