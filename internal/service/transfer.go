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

// TransferService executes validated, atomic debit/credit pairs and writes
// the corresponding ledger row. Every movement runs in one unit of work:
// re-read balances under lock, funds and daily-limit checks, both balance
// updates and the ledger insert commit or fail together.
type TransferService struct {
	store  repository.Store
	limits *DailyLimitGuard
	ids    IDSource
	logger *slog.Logger
	now    func() time.Time
}

func NewTransferService(store repository.Store, limits *DailyLimitGuard, ids IDSource, logger *slog.Logger) *TransferService {
	if logger == nil {
		logger = slog.Default()
	}
	if ids == nil {
		ids = IDGenerator{}
	}
	return &TransferService{
		store:  store,
		limits: limits,
		ids:    ids,
		logger: logger,
		now:    time.Now,
	}
}

// Transfer moves amount from sender to receiver as a peer-to-peer transfer.
func (s *TransferService) Transfer(ctx context.Context, senderID, receiverID uint64, amount int64, description string) (*domain.Transaction, error) {
	return s.run(ctx, senderID, receiverID, amount, description, domain.KindTransfer)
}

// Capture moves amount from a payer into a merchant settlement account.
func (s *TransferService) Capture(ctx context.Context, payerID, settlementID uint64, amount int64, description string) (*domain.Transaction, error) {
	return s.run(ctx, payerID, settlementID, amount, description, domain.KindPayment)
}

func (s *TransferService) run(ctx context.Context, senderID, receiverID uint64, amount int64, description string, kind domain.TransactionKind) (*domain.Transaction, error) {
	if senderID == receiverID {
		return nil, ErrSelfTransfer
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var result *domain.Transaction
	err := withConflictRetry(ctx, s.logger, s.store, func(ops repository.Ops) error {
		txn, err := s.execute(ctx, ops, senderID, receiverID, amount, description, kind)
		if err != nil {
			return err
		}
		result = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transfer committed",
		slog.Uint64("transaction_id", result.ID),
		slog.Uint64("sender_account_id", senderID),
		slog.Uint64("receiver_account_id", receiverID),
		slog.String("amount", domain.FormatAmount(amount)),
		slog.String("kind", string(kind)))
	return result, nil
}

func (s *TransferService) execute(ctx context.Context, ops repository.Ops, senderID, receiverID uint64, amount int64, description string, kind domain.TransactionKind) (*domain.Transaction, error) {
	sender, receiver, err := lockPair(ctx, ops, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if !sender.IsActive() || !receiver.IsActive() {
		return nil, ErrAccountInactive
	}
	if sender.Balance < amount {
		return nil, ErrInsufficientFunds
	}

	asOf := s.now()
	if err := s.limits.CheckAndReserve(ctx, ops, senderID, amount, asOf); err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Amount:         amount,
		SenderBefore:   sender.Balance,
		SenderAfter:    sender.Balance - amount,
		ReceiverBefore: receiver.Balance,
		ReceiverAfter:  receiver.Balance + amount,
		Description:    description,
		Status:         domain.StatusSuccess,
		Kind:           kind,
		CreatedAt:      asOf,
	}

	if err := ops.SetBalance(ctx, senderID, txn.SenderAfter); err != nil {
		return nil, err
	}
	if err := ops.SetBalance(ctx, receiverID, txn.ReceiverAfter); err != nil {
		return nil, err
	}
	if err := insertWithFreshID(ctx, ops, s.ids, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// RecordFailure writes a failed-status audit row for an attempted movement
// that was rejected after authorization was already granted. Balances are
// untouched; the before/after snapshots are equal.
func (s *TransferService) RecordFailure(ctx context.Context, senderID, receiverID uint64, amount int64, description string, kind domain.TransactionKind) (*domain.Transaction, error) {
	var result *domain.Transaction
	err := withConflictRetry(ctx, s.logger, s.store, func(ops repository.Ops) error {
		sender, receiver, err := lockPair(ctx, ops, senderID, receiverID)
		if err != nil {
			return err
		}
		txn := &domain.Transaction{
			SenderID:       senderID,
			ReceiverID:     receiverID,
			Amount:         amount,
			SenderBefore:   sender.Balance,
			SenderAfter:    sender.Balance,
			ReceiverBefore: receiver.Balance,
			ReceiverAfter:  receiver.Balance,
			Description:    description,
			Status:         domain.StatusFailed,
			Kind:           kind,
			CreatedAt:      s.now(),
		}
		if err := insertWithFreshID(ctx, ops, s.ids, txn); err != nil {
			return err
		}
		result = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("failed attempt recorded",
		slog.Uint64("transaction_id", result.ID),
		slog.Uint64("sender_account_id", senderID),
		slog.String("amount", domain.FormatAmount(amount)))
	return result, nil
}

// lockPair acquires both account locks in ascending id order so two
// concurrent movements over the same pair cannot deadlock.
func lockPair(ctx context.Context, ops repository.Ops, senderID, receiverID uint64) (sender, receiver *domain.Account, err error) {
	first, second := senderID, receiverID
	if first > second {
		first, second = second, first
	}

	a, err := ops.AccountForUpdate(ctx, first)
	if err != nil {
		return nil, nil, asAccountErr(err)
	}
	b, err := ops.AccountForUpdate(ctx, second)
	if err != nil {
		return nil, nil, asAccountErr(err)
	}

	if a.ID == senderID {
		return a, b, nil
	}
	return b, a, nil
}

func asAccountErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrAccountNotFound, err)
	}
	return err
}
