package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits kept for ledger amounts.
const MoneyPlaces = 2

// Wallet holds the balances of one account.
type Wallet struct {
	AccountID      string
	SafeBalance    decimal.Decimal
	TradingBalance decimal.Decimal
	UpdatedAt      time.Time
}

// Total returns safe + trading balance.
func (w Wallet) Total() decimal.Decimal {
	return w.SafeBalance.Add(w.TradingBalance)
}

// TransactionKind journal entry kind.
type TransactionKind string

const (
	TransactionDeposit    TransactionKind = "deposit"
	TransactionWithdrawal TransactionKind = "withdrawal"
	TransactionAllocate   TransactionKind = "allocate"
	TransactionDeallocate TransactionKind = "deallocate"
)

// TransactionStatus journal entry status.
type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionSuccess    TransactionStatus = "success"
	TransactionFailed     TransactionStatus = "failed"
	TransactionProcessing TransactionStatus = "processing"
)

// Transaction is an immutable ledger journal entry.
type Transaction struct {
	ID        int64
	AccountID string
	Reference string
	Amount    decimal.Decimal
	// Fee is set for withdrawals only.
	Fee       decimal.Decimal
	Kind      TransactionKind
	Status    TransactionStatus
	CreatedAt time.Time
}
