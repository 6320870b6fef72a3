package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/storage/sqldb"
)

// Store is the data-access abstraction behind the ledger.
type Store interface {
	// InTx runs fn in one transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Transactions(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error)
	ReferenceExists(ctx context.Context, reference string) (bool, error)
}

// Tx wallet operations available inside a transaction.
type Tx interface {
	// WalletForUpdate returns the wallet row locked for the rest of the transaction,
	// creating it with zero balances when missing.
	WalletForUpdate(ctx context.Context, accountID string) (domain.Wallet, error)
	UpdateWallet(ctx context.Context, w domain.Wallet) error
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	// InsertTransaction appends a journal entry. A reused reference yields ErrDuplicateReference.
	InsertTransaction(ctx context.Context, t *domain.Transaction) error
}

// SQLStore implements Store on database/sql for Postgres and SQLite.
type SQLStore struct {
	db *sqldb.DB
}

// NewSQLStore creates a SQLStore.
func NewSQLStore(db *sqldb.DB) *SQLStore {
	return &SQLStore{db: db}
}

// InTx implements Store.
func (s *SQLStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&sqlTx{tx: tx, db: s.db}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	committed = true
	return nil
}

// Transactions returns the newest journal entries of an account first.
func (s *SQLStore) Transactions(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT id, account_id, reference, amount, fee, kind, status, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`), accountID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query transactions")
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			t            domain.Transaction
			kind, status string
		)
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Reference, &t.Amount, &t.Fee, &kind, &status, &t.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan transaction")
		}
		t.Kind = domain.TransactionKind(kind)
		t.Status = domain.TransactionStatus(status)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate transactions")
	}
	return out, nil
}

// ReferenceExists implements Store.
func (s *SQLStore) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	return referenceExists(ctx, s.db, s.db.QueryRowContext, reference)
}

// SumTradingBalances returns the sum of trading balances over all wallets.
func (s *SQLStore) SumTradingBalances(ctx context.Context) (decimal.Decimal, error) {
	if s.db.Dialect() == sqldb.Postgres {
		var total decimal.Decimal
		err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(trading_balance), 0) FROM wallets`).Scan(&total)
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "sum trading balances")
		}
		return total, nil
	}

	// sqlite keeps decimals as TEXT; SUM would go through float
	rows, err := s.db.QueryContext(ctx, `SELECT trading_balance FROM wallets`)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "query trading balances")
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var b decimal.Decimal
		if err := rows.Scan(&b); err != nil {
			return decimal.Zero, errors.Wrap(err, "scan trading balance")
		}
		total = total.Add(b)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, errors.Wrap(err, "iterate trading balances")
	}
	return total, nil
}

type sqlTx struct {
	tx *sql.Tx
	db *sqldb.DB
}

func (t *sqlTx) WalletForUpdate(ctx context.Context, accountID string) (domain.Wallet, error) {
	w, err := t.selectWallet(ctx, accountID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Wallet{}, err
	}

	_, err = t.tx.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO wallets (account_id, safe_balance, trading_balance, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id) DO NOTHING`),
		accountID, decimal.Zero, decimal.Zero, time.Now().UTC())
	if err != nil {
		return domain.Wallet{}, errors.Wrap(err, "create wallet")
	}

	return t.selectWallet(ctx, accountID)
}

func (t *sqlTx) selectWallet(ctx context.Context, accountID string) (domain.Wallet, error) {
	var w domain.Wallet
	err := t.tx.QueryRowContext(ctx, t.db.Rebind(`
		SELECT account_id, safe_balance, trading_balance, updated_at
		FROM wallets
		WHERE account_id = $1`+t.db.ForUpdate()), accountID).
		Scan(&w.AccountID, &w.SafeBalance, &w.TradingBalance, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Wallet{}, sql.ErrNoRows
		}
		return domain.Wallet{}, errors.Wrap(err, "select wallet")
	}
	return w, nil
}

func (t *sqlTx) UpdateWallet(ctx context.Context, w domain.Wallet) error {
	res, err := t.tx.ExecContext(ctx, t.db.Rebind(`
		UPDATE wallets
		SET safe_balance = $1, trading_balance = $2, updated_at = $3
		WHERE account_id = $4`),
		w.SafeBalance.StringFixed(domain.MoneyPlaces), w.TradingBalance.StringFixed(domain.MoneyPlaces), w.UpdatedAt, w.AccountID)
	if err != nil {
		return errors.Wrap(err, "update wallet")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update wallet rows affected")
	}
	if n != 1 {
		return fmt.Errorf("update wallet %s: %d rows affected", w.AccountID, n)
	}
	return nil
}

func (t *sqlTx) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	return referenceExists(ctx, t.db, t.tx.QueryRowContext, reference)
}

func (t *sqlTx) InsertTransaction(ctx context.Context, tr *domain.Transaction) error {
	query := t.db.Rebind(`
		INSERT INTO transactions (account_id, reference, amount, fee, kind, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	args := []any{
		tr.AccountID, tr.Reference,
		tr.Amount.StringFixed(domain.MoneyPlaces), tr.Fee.StringFixed(domain.MoneyPlaces),
		string(tr.Kind), string(tr.Status), tr.CreatedAt,
	}

	var err error
	if t.db.Dialect() == sqldb.Postgres {
		err = t.tx.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&tr.ID)
	} else {
		var res sql.Result
		res, err = t.tx.ExecContext(ctx, query, args...)
		if err == nil {
			tr.ID, err = res.LastInsertId()
		}
	}
	if err != nil {
		if t.db.IsUniqueViolation(err) {
			return errors.Wrapf(domain.ErrDuplicateReference, "reference %s", tr.Reference)
		}
		return errors.Wrap(err, "insert transaction")
	}
	return nil
}

type queryRowFunc func(ctx context.Context, query string, args ...any) *sql.Row

func referenceExists(ctx context.Context, db *sqldb.DB, queryRow queryRowFunc, reference string) (bool, error) {
	var one int
	err := queryRow(ctx, db.Rebind(`SELECT 1 FROM transactions WHERE reference = $1`), reference).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "lookup reference")
	}
	return true, nil
}
