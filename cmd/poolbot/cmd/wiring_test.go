package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/config"
	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/web"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	conf, err := config.Load("", "")
	require.NoError(t, err)
	dir := t.TempDir()
	conf.Database.URL = "sqlite://" + filepath.Join(dir, "poolbot.db")
	conf.State.Dir = filepath.Join(dir, "wal")
	conf.Secrets.PaystackSecret = "sk_test_123"
	return conf
}

func TestAPIServerWiring(t *testing.T) {
	ctx := context.Background()
	conf := testConfig(t)

	db, err := openDatabase(ctx, conf)
	require.NoError(t, err)
	defer db.Close()

	snapshots, err := openSnapshots(conf)
	require.NoError(t, err)
	require.NotNil(t, snapshots)
	defer snapshots.Close()

	server, err := newAPIServer(conf, db, snapshots, zap.NewNop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallets", nil)
	req.Header.Set(web.AccountHeader, "acct-1")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"safe_balance":"0.00","trading_balance":"0.00"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pool", nil))
	assert.JSONEq(t, `{"total_pooled_capital":"0.00"}`, rec.Body.String())
}

func TestStandaloneAPIServerHasNoStream(t *testing.T) {
	ctx := context.Background()
	conf := testConfig(t)

	db, err := openDatabase(ctx, conf)
	require.NoError(t, err)
	defer db.Close()

	server, err := newStandaloneAPIServer(conf, db, zap.NewNop())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bot/stream", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIServerRequiresPaystackSecret(t *testing.T) {
	ctx := context.Background()
	conf := testConfig(t)
	conf.Secrets.PaystackSecret = ""

	db, err := openDatabase(ctx, conf)
	require.NoError(t, err)
	defer db.Close()

	_, err = newAPIServer(conf, db, nil, zap.NewNop())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestOpenSnapshotsDisabled(t *testing.T) {
	conf := testConfig(t)
	conf.State.Persist = false

	snapshots, err := openSnapshots(conf)
	require.NoError(t, err)
	assert.Nil(t, snapshots)
}

func TestOpenDatabaseRejectsUnknownScheme(t *testing.T) {
	conf := testConfig(t)
	conf.Database.URL = "mysql://user:pw@localhost/db"

	_, err := openDatabase(context.Background(), conf)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
