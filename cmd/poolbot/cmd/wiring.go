package cmd

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/config"
	"github.com/gapeva/poolbot/internal"
	"github.com/gapeva/poolbot/internal/ledger"
	"github.com/gapeva/poolbot/internal/pool"
	"github.com/gapeva/poolbot/internal/services/funding"
	"github.com/gapeva/poolbot/internal/services/payment"
	"github.com/gapeva/poolbot/internal/storage/equitysnapshots"
	"github.com/gapeva/poolbot/internal/storage/sqldb"
	"github.com/gapeva/poolbot/internal/web"
)

// openDatabase connects to the configured database and applies the schema.
func openDatabase(ctx context.Context, conf config.Config) (*sqldb.DB, error) {
	opts, err := conf.DatabaseOptions()
	if err != nil {
		return nil, err
	}
	db, err := sqldb.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openSnapshots(conf config.Config) (*equitysnapshots.WALStore, error) {
	if !conf.State.Persist {
		return nil, nil
	}
	return equitysnapshots.NewWALStore(filepath.Join(conf.State.Dir, "equity"))
}

func newAPIServer(conf config.Config, db *sqldb.DB, snapshots *equitysnapshots.WALStore, log *zap.Logger) (*web.Server, error) {
	store := ledger.NewSQLStore(db)
	wallets := ledger.New(store,
		ledger.WithFeeRate(conf.Ledger.WithdrawalFee),
		ledger.WithLogger(log.Named("ledger")),
	)

	gateway, err := payment.NewPaystackClient(conf.Paystack.BaseURL, conf.Secrets.PaystackSecret,
		payment.WithLogger(log.Named("paystack")),
	)
	if err != nil {
		return nil, err
	}
	deposits := funding.NewService(gateway, wallets,
		funding.WithMinDeposit(conf.Ledger.MinDeposit),
		funding.WithLogger(log.Named("funding")),
	)

	opts := []web.Option{web.WithLogger(log.Named("api"))}
	if snapshots != nil {
		opts = append(opts, web.WithSnapshots(snapshots))
	}
	return web.NewServer(conf.API.Addr, wallets, deposits, pool.NewAggregator(store, log.Named("pool")), opts...), nil
}

// newStandaloneAPIServer serves the API without the equity stream. The
// snapshot WAL is only readable by the process that writes it, so a separate
// bot process would never show up there.
func newStandaloneAPIServer(conf config.Config, db *sqldb.DB, log *zap.Logger) (*web.Server, error) {
	return newAPIServer(conf, db, nil, log)
}

func newBot(conf config.Config, db *sqldb.DB, snapshots *equitysnapshots.WALStore, log *zap.Logger) (*internal.Bot, error) {
	var extras internal.Extras
	if db != nil {
		extras.Pool = pool.NewAggregator(ledger.NewSQLStore(db), log.Named("pool"))
	}
	if snapshots != nil {
		extras.Snapshots = snapshots
	}
	bot, err := internal.NewBot(conf, extras, log.Named("bot"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create trading bot")
	}
	return bot, nil
}
