package config

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/storage/sqldb"
)

const defaultSQLitePath = "poolbot.db"

// DatabaseOptions resolves Database.URL into connection options.
// postgres:// and postgresql:// URLs use lib/pq; sqlite://path, file: URIs
// and bare paths use SQLite. An empty URL selects ./poolbot.db.
func (c Config) DatabaseOptions() (sqldb.Options, error) {
	url := strings.TrimSpace(c.Database.URL)

	switch {
	case url == "":
		return sqldb.Options{Dialect: sqldb.SQLite, DSN: defaultSQLitePath}, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return sqldb.Options{Dialect: sqldb.Postgres, DSN: url, MaxOpenConns: c.Database.MaxOpenConns, MaxIdleConns: c.Database.MaxOpenConns}, nil
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return sqldb.Options{}, errors.Wrap(domain.ErrConfiguration, "sqlite url without a path")
		}
		return sqldb.Options{Dialect: sqldb.SQLite, DSN: path}, nil
	case strings.HasPrefix(url, "file:"):
		return sqldb.Options{Dialect: sqldb.SQLite, DSN: url}, nil
	case strings.Contains(url, "://"):
		return sqldb.Options{}, errors.Wrapf(domain.ErrConfiguration, "unsupported database url scheme in %q", redact(url))
	default:
		return sqldb.Options{Dialect: sqldb.SQLite, DSN: url}, nil
	}
}

// redact drops credentials from a URL before it is logged or returned.
func redact(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}
