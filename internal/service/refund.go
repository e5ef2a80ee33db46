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

// RefundService reverses a prior successful transaction, partially or in
// full. The original receiver becomes the sender of the refund and vice
// versa; the refund row links back through RefundOf. The sum of refunds
// against one original never exceeds its amount.
type RefundService struct {
	store  repository.Store
	ids    IDSource
	logger *slog.Logger
	now    func() time.Time
}

func NewRefundService(store repository.Store, ids IDSource, logger *slog.Logger) *RefundService {
	if logger == nil {
		logger = slog.Default()
	}
	if ids == nil {
		ids = IDGenerator{}
	}
	return &RefundService{
		store:  store,
		ids:    ids,
		logger: logger,
		now:    time.Now,
	}
}

func (s *RefundService) Refund(ctx context.Context, originalID uint64, amount int64, reason string) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var result *domain.Transaction
	err := withConflictRetry(ctx, s.logger, s.store, func(ops repository.Ops) error {
		txn, err := s.execute(ctx, ops, originalID, amount, reason)
		if err != nil {
			return err
		}
		result = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund committed",
		slog.Uint64("transaction_id", result.ID),
		slog.Uint64("original_transaction_id", originalID),
		slog.String("amount", domain.FormatAmount(amount)))
	return result, nil
}

func (s *RefundService) execute(ctx context.Context, ops repository.Ops, originalID uint64, amount int64, reason string) (*domain.Transaction, error) {
	original, err := ops.GetTransaction(ctx, originalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrTransactionNotFound, originalID)
		}
		return nil, err
	}
	if original.Status != domain.StatusSuccess || original.Kind == domain.KindRefund {
		return nil, ErrNotRefundable
	}

	refunded, err := ops.SumRefunds(ctx, originalID)
	if err != nil {
		return nil, fmt.Errorf("refund sum query failed: %w", err)
	}
	remaining := original.Amount - refunded
	if remaining <= 0 {
		return nil, ErrNotRefundable
	}
	if amount > remaining {
		return nil, fmt.Errorf("%w: %s remaining", ErrRefundExceedsRemaining, domain.FormatAmount(remaining))
	}

	// Roles reverse: the original receiver pays the refund.
	source, target, err := lockPair(ctx, ops, original.ReceiverID, original.SenderID)
	if err != nil {
		return nil, err
	}
	if source.Balance < amount {
		return nil, ErrInsufficientFunds
	}

	txn := &domain.Transaction{
		SenderID:       source.ID,
		ReceiverID:     target.ID,
		Amount:         amount,
		SenderBefore:   source.Balance,
		SenderAfter:    source.Balance - amount,
		ReceiverBefore: target.Balance,
		ReceiverAfter:  target.Balance + amount,
		Description:    reason,
		Status:         domain.StatusSuccess,
		Kind:           domain.KindRefund,
		RefundOf:       originalID,
		CreatedAt:      s.now(),
	}

	if err := ops.SetBalance(ctx, source.ID, txn.SenderAfter); err != nil {
		return nil, err
	}
	if err := ops.SetBalance(ctx, target.ID, txn.ReceiverAfter); err != nil {
		return nil, err
	}
	if err := insertWithFreshID(ctx, ops, s.ids, txn); err != nil {
		return nil, err
	}
	return txn, nil
}
