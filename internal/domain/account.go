package domain

import "time"

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountClosed    AccountStatus = "closed"
)

// Account represents a wallet-backed bank account. Balances are stored in
// minor units (two implied decimal places) and are never negative.
type Account struct {
	ID          uint64        `json:"id"`
	OwnerID     string        `json:"owner_id"`
	BankName    string        `json:"bank_name"`
	RoutingCode string        `json:"routing_code"`
	Balance     int64         `json:"balance"`
	Status      AccountStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (a *Account) IsActive() bool {
	return a.Status == AccountActive
}
