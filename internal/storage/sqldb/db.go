// Package sqldb opens the relational store used by the ledger and hides
// the differences between the Postgres and SQLite dialects.
package sqldb

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect SQL flavour of the underlying database.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const pgUniqueViolation = "23505"

// Options connection settings.
type Options struct {
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB is a *sql.DB bound to a dialect.
type DB struct {
	*sql.DB
	dialect Dialect
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, opts Options) (*DB, error) {
	var driver string
	switch opts.Dialect {
	case Postgres:
		driver = "postgres"
	case SQLite:
		driver = "sqlite"
	default:
		return nil, errors.Errorf("unsupported database dialect %q", opts.Dialect)
	}

	conn, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	if opts.Dialect == SQLite {
		// sqlite allows a single writer; one connection serializes every transaction
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
	} else {
		if opts.MaxOpenConns > 0 {
			conn.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			conn.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.ConnMaxLifetime > 0 {
			conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	if opts.Dialect == SQLite {
		if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			_ = conn.Close()
			return nil, errors.Wrap(err, "configure sqlite")
		}
	}

	return &DB{DB: conn, dialect: opts.Dialect}, nil
}

// New wraps an existing connection, used with sqlmock in tests.
func New(conn *sql.DB, dialect Dialect) *DB {
	return &DB{DB: conn, dialect: dialect}
}

// Dialect returns the SQL flavour.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Rebind converts $n placeholders to ? for SQLite. Queries are written in Postgres style.
func (db *DB) Rebind(query string) string {
	if db.dialect != SQLite {
		return query
	}

	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte(c)
			continue
		}
		if _, err := strconv.Atoi(query[i+1 : j]); err == nil {
			b.WriteByte('?')
		}
		i = j - 1
	}
	return b.String()
}

// ForUpdate returns the row-lock clause for SELECT statements run inside a transaction.
// SQLite has no row locks; its single connection already serializes writers.
func (db *DB) ForUpdate() string {
	if db.dialect == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

// IsUniqueViolation reports whether err is a unique constraint failure.
func (db *DB) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE"))
	}

	return false
}
