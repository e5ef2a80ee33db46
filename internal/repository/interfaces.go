package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lucifers-0666/zenopay/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicateID = errors.New("duplicate identifier")
	ErrConflict    = errors.New("concurrent modification")
)

// Ops is the view of the store available inside one atomic unit of work.
// Every mutation made through it commits or rolls back together with the
// rest of the unit.
type Ops interface {
	// AccountForUpdate reads an account and holds it against concurrent
	// writers until the unit ends. Callers locking more than one account
	// must do so in ascending id order.
	AccountForUpdate(ctx context.Context, id uint64) (*domain.Account, error)
	SetBalance(ctx context.Context, id uint64, balance int64) error
	// InsertTransaction appends a ledger row; ErrDuplicateID signals an
	// id collision with an existing row.
	InsertTransaction(ctx context.Context, txn *domain.Transaction) error
	GetTransaction(ctx context.Context, id uint64) (*domain.Transaction, error)
	// SumSentBetween totals successful amounts sent by the account within
	// [from, to), refund rows included.
	SumSentBetween(ctx context.Context, accountID uint64, from, to time.Time) (int64, error)
	// SumRefunds totals successful refund amounts issued against one
	// original transaction.
	SumRefunds(ctx context.Context, originalID uint64) (int64, error)
}

// Store is the persistence boundary of the money-movement core.
type Store interface {
	// Atomically runs fn inside a single all-or-nothing unit of work.
	// ErrConflict reports a concurrent-modification abort the caller may
	// retry.
	Atomically(ctx context.Context, fn func(ops Ops) error) error

	CreateAccount(ctx context.Context, account *domain.Account) (uint64, error)
	GetAccount(ctx context.Context, id uint64) (*domain.Account, error)
	GetTransaction(ctx context.Context, id uint64) (*domain.Transaction, error)
	ListAccountTransactions(ctx context.Context, accountID uint64, limit, offset int) ([]*domain.Transaction, error)

	GetCredential(ctx context.Context, apiKey string) (*domain.MerchantCredential, error)
	PutCredential(ctx context.Context, cred *domain.MerchantCredential) error
}

// ChallengeStore keeps single-use authorization challenges with a TTL so
// the core behaves behind multiple server instances. Entries disappear on
// Invalidate or once their TTL elapses.
type ChallengeStore interface {
	Put(ctx context.Context, key string, ch domain.Challenge, ttl time.Duration) error
	Get(ctx context.Context, key string) (domain.Challenge, error)
	Invalidate(ctx context.Context, key string) error
}
