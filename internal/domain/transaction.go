package domain

import (
	"fmt"
	"time"
)

type TransactionStatus string
type TransactionKind string

const (
	StatusSuccess TransactionStatus = "success"
	StatusFailed  TransactionStatus = "failed"

	KindTransfer TransactionKind = "transfer"
	KindPayment  TransactionKind = "payment"
	KindRefund   TransactionKind = "refund"
)

// Transaction is one immutable ledger row. A failed row records an
// attempted-but-rejected movement for audit purposes; its before/after
// snapshots are equal and no balance is touched.
type Transaction struct {
	ID             uint64            `json:"id"`
	SenderID       uint64            `json:"sender_account_id"`
	ReceiverID     uint64            `json:"receiver_account_id"`
	Amount         int64             `json:"amount"`
	SenderBefore   int64             `json:"sender_balance_before"`
	SenderAfter    int64             `json:"sender_balance_after"`
	ReceiverBefore int64             `json:"receiver_balance_before"`
	ReceiverAfter  int64             `json:"receiver_balance_after"`
	Description    string            `json:"description"`
	Status         TransactionStatus `json:"status"`
	Kind           TransactionKind   `json:"kind"`
	// RefundOf links a refund row back to the original transaction; zero
	// for anything that is not a refund.
	RefundOf  uint64    `json:"refund_of,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FormatAmount renders minor units as a decimal string, e.g. 12345 -> "123.45".
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
