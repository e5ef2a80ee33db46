package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lucifers-0666/zenopay/internal/domain"
	"github.com/lucifers-0666/zenopay/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Store is the pgx-backed implementation of the persistence boundary.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{db: pool}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

// Atomically runs fn inside a RepeatableRead transaction. Serialization
// aborts surface as repository.ErrConflict so the caller can retry.
func (s *Store) Atomically(ctx context.Context, fn func(ops repository.Ops) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txOps{tx: tx}); err != nil {
		return mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("tx commit failed: %w", err))
	}
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) (uint64, error) {
	err := s.db.QueryRow(ctx,
		`INSERT INTO accounts (owner_id, bank_name, routing_code, balance, status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		account.OwnerID, account.BankName, account.RoutingCode, account.Balance, string(account.Status),
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("account insert failed: %w", err)
	}
	return account.ID, nil
}

func (s *Store) GetAccount(ctx context.Context, id uint64) (*domain.Account, error) {
	return scanAccount(s.db.QueryRow(ctx, accountColumns+" WHERE id = $1", id), id)
}

func (s *Store) GetTransaction(ctx context.Context, id uint64) (*domain.Transaction, error) {
	return scanTransaction(s.db.QueryRow(ctx, transactionColumns+" WHERE id = $1", id), id)
}

func (s *Store) ListAccountTransactions(ctx context.Context, accountID uint64, limit, offset int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(ctx,
		transactionColumns+` WHERE sender_account_id = $1 OR receiver_account_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("transaction list failed: %w", err)
	}
	defer rows.Close()

	var result []*domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.SenderID, &t.ReceiverID, &t.Amount,
			&t.SenderBefore, &t.SenderAfter, &t.ReceiverBefore, &t.ReceiverAfter,
			&t.Description, &t.Status, &t.Kind, &t.RefundOf, &t.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}

func (s *Store) GetCredential(ctx context.Context, apiKey string) (*domain.MerchantCredential, error) {
	var cred domain.MerchantCredential
	err := s.db.QueryRow(ctx,
		`SELECT api_key, secret, merchant_owner_id, settlement_account_id
		 FROM merchant_credentials WHERE api_key = $1`, apiKey,
	).Scan(&cred.APIKey, &cred.Secret, &cred.MerchantOwnerID, &cred.SettlementAccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: credential", repository.ErrNotFound)
		}
		return nil, err
	}
	return &cred, nil
}

func (s *Store) PutCredential(ctx context.Context, cred *domain.MerchantCredential) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO merchant_credentials (api_key, secret, merchant_owner_id, settlement_account_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (api_key) DO UPDATE SET secret = $2, merchant_owner_id = $3, settlement_account_id = $4`,
		cred.APIKey, cred.Secret, cred.MerchantOwnerID, cred.SettlementAccountID)
	return err
}

const (
	accountColumns = `SELECT id, owner_id, bank_name, routing_code, balance, status, created_at FROM accounts`

	transactionColumns = `SELECT id, sender_account_id, receiver_account_id, amount,
		sender_balance_before, sender_balance_after, receiver_balance_before, receiver_balance_after,
		description, status, kind, refund_of, created_at FROM transactions`
)

type txOps struct {
	tx pgx.Tx
}

func (t *txOps) AccountForUpdate(ctx context.Context, id uint64) (*domain.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, accountColumns+" WHERE id = $1 FOR UPDATE", id), id)
}

func (t *txOps) SetBalance(ctx context.Context, id uint64, balance int64) error {
	tag, err := t.tx.Exec(ctx, "UPDATE accounts SET balance = $1 WHERE id = $2", balance, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %d", repository.ErrNotFound, id)
	}
	return nil
}

func (t *txOps) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO transactions (id, sender_account_id, receiver_account_id, amount,
			sender_balance_before, sender_balance_after, receiver_balance_before, receiver_balance_after,
			description, status, kind, refund_of, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		txn.ID, txn.SenderID, txn.ReceiverID, txn.Amount,
		txn.SenderBefore, txn.SenderAfter, txn.ReceiverBefore, txn.ReceiverAfter,
		txn.Description, string(txn.Status), string(txn.Kind), txn.RefundOf, txn.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: transaction %d", repository.ErrDuplicateID, txn.ID)
		}
		return fmt.Errorf("transaction insert failed: %w", err)
	}
	return nil
}

func (t *txOps) GetTransaction(ctx context.Context, id uint64) (*domain.Transaction, error) {
	return scanTransaction(t.tx.QueryRow(ctx, transactionColumns+" WHERE id = $1", id), id)
}

func (t *txOps) SumSentBetween(ctx context.Context, accountID uint64, from, to time.Time) (int64, error) {
	var total int64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions
		 WHERE sender_account_id = $1 AND status = 'success' AND created_at >= $2 AND created_at < $3`,
		accountID, from, to).Scan(&total)
	return total, err
}

func (t *txOps) SumRefunds(ctx context.Context, originalID uint64) (int64, error) {
	var total int64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions
		 WHERE kind = 'refund' AND refund_of = $1 AND status = 'success'`,
		originalID).Scan(&total)
	return total, err
}

func scanAccount(row pgx.Row, id uint64) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.OwnerID, &a.BankName, &a.RoutingCode, &a.Balance, &a.Status, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %d", repository.ErrNotFound, id)
		}
		return nil, err
	}
	return &a, nil
}

func scanTransaction(row pgx.Row, id uint64) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(&t.ID, &t.SenderID, &t.ReceiverID, &t.Amount,
		&t.SenderBefore, &t.SenderAfter, &t.ReceiverBefore, &t.ReceiverAfter,
		&t.Description, &t.Status, &t.Kind, &t.RefundOf, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %d", repository.ErrNotFound, id)
		}
		return nil, err
	}
	return &t, nil
}

// mapPgError translates serialization aborts into the conflict sentinel.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", repository.ErrConflict, pgErr.Code)
		}
	}
	return err
}
