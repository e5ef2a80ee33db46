package service

import "errors"

var (
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrSelfTransfer    = errors.New("cannot transfer to self")
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountInactive = errors.New("account not active")

	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrDailyLimitExceeded = errors.New("daily transfer limit exceeded")

	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrNotRefundable          = errors.New("transaction not refundable")
	ErrRefundExceedsRemaining = errors.New("refund exceeds remaining refundable amount")

	ErrChallengeNotFound = errors.New("no authorization challenge pending")
	ErrChallengeExpired  = errors.New("authorization challenge expired")
	ErrCodeMismatch      = errors.New("authorization code mismatch")

	ErrInvalidCredential = errors.New("invalid merchant credential")

	// ErrConflict is the transient failure surfaced once the bounded
	// conflict/identifier retries are exhausted.
	ErrConflict = errors.New("transient conflict, retry later")
)
