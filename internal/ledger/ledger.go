// Package ledger owns per-account balances and the transaction journal.
//
// Every mutation runs the sufficiency and duplicate-reference checks and the
// balance update in one database transaction holding the wallet row, under an
// in-process per-account lock. Operations either fully commit or change nothing.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/metrics"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// DefaultWithdrawalFeeRate flat fee applied to the whole withdrawal amount.
var DefaultWithdrawalFeeRate = decimal.RequireFromString("0.35")

// WithdrawalReceipt result of a withdrawal.
type WithdrawalReceipt struct {
	Reference    string
	Requested    decimal.Decimal
	FeeDeducted  decimal.Decimal
	PayoutAmount decimal.Decimal
	SafeBalance  decimal.Decimal
	Status       domain.TransactionStatus
}

// Ledger moves money between the safe and trading balances of accounts.
type Ledger struct {
	store   Store
	locks   *accountLocks
	feeRate decimal.Decimal
	now     func() time.Time
	newRef  func(prefix string) string
	logger  *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithFeeRate overrides the withdrawal fee rate.
func WithFeeRate(rate decimal.Decimal) Option {
	return func(l *Ledger) { l.feeRate = rate }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Ledger on top of store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		locks:   newAccountLocks(),
		feeRate: DefaultWithdrawalFeeRate,
		now:     func() time.Time { return time.Now().UTC() },
		newRef: func(prefix string) string {
			return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Credit adds a verified deposit to the safe balance and returns the new safe balance.
func (l *Ledger) Credit(ctx context.Context, accountID, reference string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validateAccount(accountID); err != nil {
		return decimal.Zero, err
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return decimal.Zero, errors.Wrap(domain.ErrInvalidRequest, "reference is required")
	}
	if err := validateAmount(amount); err != nil {
		return decimal.Zero, err
	}

	var safe decimal.Decimal
	err := l.mutate(ctx, "credit", accountID, func(tx Tx, w *domain.Wallet) (*domain.Transaction, error) {
		exists, err := tx.ReferenceExists(ctx, reference)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, errors.Wrapf(domain.ErrDuplicateReference, "reference %s", reference)
		}

		w.SafeBalance = w.SafeBalance.Add(amount)
		safe = w.SafeBalance
		return &domain.Transaction{
			Reference: reference,
			Amount:    amount,
			Kind:      domain.TransactionDeposit,
			Status:    domain.TransactionSuccess,
		}, nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	l.logger.Info("deposit credited",
		zap.String("account", accountID),
		zap.String("reference", reference),
		zap.String("amount", amount.StringFixed(domain.MoneyPlaces)),
		zap.String("safe_balance", safe.StringFixed(domain.MoneyPlaces)))
	return safe, nil
}

// Withdraw deducts the full amount from the safe balance. The payout is the amount minus the fee.
func (l *Ledger) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (WithdrawalReceipt, error) {
	if err := validateAccount(accountID); err != nil {
		return WithdrawalReceipt{}, err
	}
	if err := validateAmount(amount); err != nil {
		return WithdrawalReceipt{}, err
	}

	fee := amount.Mul(l.feeRate).Round(domain.MoneyPlaces)
	receipt := WithdrawalReceipt{
		Reference:    l.newRef("wd"),
		Requested:    amount,
		FeeDeducted:  fee,
		PayoutAmount: amount.Sub(fee),
		Status:       domain.TransactionProcessing,
	}

	err := l.mutate(ctx, "withdraw", accountID, func(tx Tx, w *domain.Wallet) (*domain.Transaction, error) {
		if w.SafeBalance.LessThan(amount) {
			return nil, errors.Wrapf(domain.ErrInsufficientFunds,
				"safe balance %s is less than %s", w.SafeBalance.StringFixed(domain.MoneyPlaces), amount.StringFixed(domain.MoneyPlaces))
		}

		w.SafeBalance = w.SafeBalance.Sub(amount)
		receipt.SafeBalance = w.SafeBalance
		return &domain.Transaction{
			Reference: receipt.Reference,
			Amount:    amount,
			Fee:       fee,
			Kind:      domain.TransactionWithdrawal,
			Status:    domain.TransactionProcessing,
		}, nil
	})
	if err != nil {
		return WithdrawalReceipt{}, err
	}

	l.logger.Info("withdrawal accepted",
		zap.String("account", accountID),
		zap.String("reference", receipt.Reference),
		zap.String("requested", amount.StringFixed(domain.MoneyPlaces)),
		zap.String("fee", fee.StringFixed(domain.MoneyPlaces)),
		zap.String("payout", receipt.PayoutAmount.StringFixed(domain.MoneyPlaces)))
	return receipt, nil
}

// Allocate moves amount from the safe balance to the trading balance.
func (l *Ledger) Allocate(ctx context.Context, accountID string, amount decimal.Decimal) (domain.Wallet, error) {
	return l.transfer(ctx, accountID, amount, domain.TransactionAllocate)
}

// Deallocate moves amount from the trading balance back to the safe balance.
func (l *Ledger) Deallocate(ctx context.Context, accountID string, amount decimal.Decimal) (domain.Wallet, error) {
	return l.transfer(ctx, accountID, amount, domain.TransactionDeallocate)
}

func (l *Ledger) transfer(ctx context.Context, accountID string, amount decimal.Decimal, kind domain.TransactionKind) (domain.Wallet, error) {
	if err := validateAccount(accountID); err != nil {
		return domain.Wallet{}, err
	}
	if err := validateAmount(amount); err != nil {
		return domain.Wallet{}, err
	}

	var result domain.Wallet
	err := l.mutate(ctx, string(kind), accountID, func(tx Tx, w *domain.Wallet) (*domain.Transaction, error) {
		from, to := &w.SafeBalance, &w.TradingBalance
		if kind == domain.TransactionDeallocate {
			from, to = &w.TradingBalance, &w.SafeBalance
		}
		if from.LessThan(amount) {
			return nil, errors.Wrapf(domain.ErrInsufficientFunds,
				"%s: balance %s is less than %s", kind, from.StringFixed(domain.MoneyPlaces), amount.StringFixed(domain.MoneyPlaces))
		}

		*from = from.Sub(amount)
		*to = to.Add(amount)
		result = *w
		return &domain.Transaction{
			Reference: l.newRef(string(kind)),
			Amount:    amount,
			Kind:      kind,
			Status:    domain.TransactionSuccess,
		}, nil
	})
	if err != nil {
		return domain.Wallet{}, err
	}

	l.logger.Info("funds transferred",
		zap.String("account", accountID),
		zap.String("kind", string(kind)),
		zap.String("amount", amount.StringFixed(domain.MoneyPlaces)),
		zap.String("safe_balance", result.SafeBalance.StringFixed(domain.MoneyPlaces)),
		zap.String("trading_balance", result.TradingBalance.StringFixed(domain.MoneyPlaces)))
	return result, nil
}

// GetBalances returns the wallet, creating an empty one on first access.
func (l *Ledger) GetBalances(ctx context.Context, accountID string) (domain.Wallet, error) {
	if err := validateAccount(accountID); err != nil {
		return domain.Wallet{}, err
	}

	unlock := l.locks.lock(accountID)
	defer unlock()

	var w domain.Wallet
	err := l.store.InTx(ctx, func(tx Tx) error {
		var err error
		w, err = tx.WalletForUpdate(ctx, accountID)
		return err
	})
	if err != nil {
		return domain.Wallet{}, storeError(err, "get balances")
	}
	return w, nil
}

// History returns journal entries of the account, most recent first.
func (l *Ledger) History(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	if err := validateAccount(accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	txs, err := l.store.Transactions(ctx, accountID, limit)
	if err != nil {
		return nil, storeError(err, "transaction history")
	}
	return txs, nil
}

// ReferenceExists reports whether a journal entry with reference was committed.
func (l *Ledger) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	exists, err := l.store.ReferenceExists(ctx, reference)
	if err != nil {
		return false, storeError(err, "reference lookup")
	}
	return exists, nil
}

// mutate runs fn against the locked wallet and persists the wallet and the journal entry fn returns.
func (l *Ledger) mutate(ctx context.Context, op, accountID string, fn func(tx Tx, w *domain.Wallet) (*domain.Transaction, error)) (err error) {
	defer func() {
		metrics.LedgerOperations.WithLabelValues(op, domain.ErrorKindOrOK(err)).Inc()
	}()

	unlock := l.locks.lock(accountID)
	defer unlock()

	err = l.store.InTx(ctx, func(tx Tx) error {
		w, err := tx.WalletForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		entry, err := fn(tx, &w)
		if err != nil {
			return err
		}

		if w.SafeBalance.IsNegative() || w.TradingBalance.IsNegative() {
			return errors.Wrapf(domain.ErrInsufficientFunds, "%s would leave a negative balance", op)
		}

		now := l.now()
		w.UpdatedAt = now
		if err := tx.UpdateWallet(ctx, w); err != nil {
			return err
		}

		entry.AccountID = accountID
		entry.CreatedAt = now
		return tx.InsertTransaction(ctx, entry)
	})
	if err != nil {
		return storeError(err, op)
	}
	return nil
}

func validateAccount(accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return errors.Wrap(domain.ErrInvalidRequest, "account id is required")
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Wrapf(domain.ErrInvalidAmount, "amount must be positive, got %s", amount.String())
	}
	if !amount.Equal(amount.Round(domain.MoneyPlaces)) {
		return errors.Wrapf(domain.ErrInvalidAmount, "amount %s has more than %d decimal places", amount.String(), domain.MoneyPlaces)
	}
	return nil
}

// storeError passes taxonomy errors through and marks everything else as a data store failure.
func storeError(err error, op string) error {
	if domain.ErrorKind(err) != "internal" {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrExternalService, err)
}
