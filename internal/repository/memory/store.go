package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lucifers-0666/zenopay/internal/domain"
	"github.com/lucifers-0666/zenopay/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Store is an in-memory implementation of the persistence boundary. One
// store-wide mutex serializes units of work, which trivially satisfies the
// per-account serialization the transfer path requires. Mutations inside a
// unit are staged and only applied on commit.
type Store struct {
	mu            sync.RWMutex
	accounts      map[uint64]*domain.Account
	transactions  map[uint64]*domain.Transaction
	credentials   map[string]*domain.MerchantCredential
	nextAccountID uint64
}

func NewStore() *Store {
	return &Store{
		accounts:      make(map[uint64]*domain.Account),
		transactions:  make(map[uint64]*domain.Transaction),
		credentials:   make(map[string]*domain.MerchantCredential),
		nextAccountID: 1,
	}
}

func (s *Store) Atomically(ctx context.Context, fn func(ops repository.Ops) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit := &txOps{
		store:    s,
		balances: make(map[uint64]int64),
	}
	if err := fn(unit); err != nil {
		return err
	}

	for id, balance := range unit.balances {
		s.accounts[id].Balance = balance
	}
	for _, txn := range unit.inserted {
		s.transactions[txn.ID] = txn
	}
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.ID = s.nextAccountID
	s.nextAccountID++
	if account.Status == "" {
		account.Status = domain.AccountActive
	}
	account.CreatedAt = time.Now()
	copied := *account
	s.accounts[account.ID] = &copied
	return account.ID, nil
}

// ReplaceAccount swaps an account record wholesale. The money-movement
// core never changes identity or status; this exists for the enrollment
// surface and test setup.
func (s *Store) ReplaceAccount(ctx context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; !ok {
		return fmt.Errorf("%w: account %d", repository.ErrNotFound, account.ID)
	}
	copied := *account
	s.accounts[account.ID] = &copied
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uint64) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %d", repository.ErrNotFound, id)
	}
	copied := *account
	return &copied, nil
}

func (s *Store) GetTransaction(ctx context.Context, id uint64) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %d", repository.ErrNotFound, id)
	}
	copied := *txn
	return &copied, nil
}

func (s *Store) ListAccountTransactions(ctx context.Context, accountID uint64, limit, offset int) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, txn := range s.transactions {
		if txn.SenderID == accountID || txn.ReceiverID == accountID {
			copied := *txn
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return []*domain.Transaction{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func (s *Store) GetCredential(ctx context.Context, apiKey string) (*domain.MerchantCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[apiKey]
	if !ok {
		return nil, fmt.Errorf("%w: credential", repository.ErrNotFound)
	}
	copied := *cred
	return &copied, nil
}

func (s *Store) PutCredential(ctx context.Context, cred *domain.MerchantCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *cred
	s.credentials[cred.APIKey] = &copied
	return nil
}

// txOps stages the mutations of one unit of work. The store mutex is held
// for the whole unit, so reads through it are consistent.
type txOps struct {
	store    *Store
	balances map[uint64]int64
	inserted []*domain.Transaction
}

func (t *txOps) AccountForUpdate(ctx context.Context, id uint64) (*domain.Account, error) {
	account, ok := t.store.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %d", repository.ErrNotFound, id)
	}
	copied := *account
	if balance, staged := t.balances[id]; staged {
		copied.Balance = balance
	}
	return &copied, nil
}

func (t *txOps) SetBalance(ctx context.Context, id uint64, balance int64) error {
	if _, ok := t.store.accounts[id]; !ok {
		return fmt.Errorf("%w: account %d", repository.ErrNotFound, id)
	}
	t.balances[id] = balance
	return nil
}

func (t *txOps) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	if _, ok := t.store.transactions[txn.ID]; ok {
		return fmt.Errorf("%w: transaction %d", repository.ErrDuplicateID, txn.ID)
	}
	for _, staged := range t.inserted {
		if staged.ID == txn.ID {
			return fmt.Errorf("%w: transaction %d", repository.ErrDuplicateID, txn.ID)
		}
	}
	copied := *txn
	t.inserted = append(t.inserted, &copied)
	return nil
}

func (t *txOps) GetTransaction(ctx context.Context, id uint64) (*domain.Transaction, error) {
	if txn, ok := t.store.transactions[id]; ok {
		copied := *txn
		return &copied, nil
	}
	for _, staged := range t.inserted {
		if staged.ID == id {
			copied := *staged
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: transaction %d", repository.ErrNotFound, id)
}

func (t *txOps) SumSentBetween(ctx context.Context, accountID uint64, from, to time.Time) (int64, error) {
	var total int64
	sum := func(txn *domain.Transaction) {
		if txn.SenderID == accountID && txn.Status == domain.StatusSuccess &&
			!txn.CreatedAt.Before(from) && txn.CreatedAt.Before(to) {
			total += txn.Amount
		}
	}
	for _, txn := range t.store.transactions {
		sum(txn)
	}
	for _, txn := range t.inserted {
		sum(txn)
	}
	return total, nil
}

func (t *txOps) SumRefunds(ctx context.Context, originalID uint64) (int64, error) {
	var total int64
	sum := func(txn *domain.Transaction) {
		if txn.Kind == domain.KindRefund && txn.RefundOf == originalID && txn.Status == domain.StatusSuccess {
			total += txn.Amount
		}
	}
	for _, txn := range t.store.transactions {
		sum(txn)
	}
	for _, txn := range t.inserted {
		sum(txn)
	}
	return total, nil
}
