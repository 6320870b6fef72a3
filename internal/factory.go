package internal

import (
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/config"
	"github.com/gapeva/poolbot/internal/services/market/collector"
	"github.com/gapeva/poolbot/internal/storage/enginestate"
	"github.com/gapeva/poolbot/internal/storage/tradejournal"
)

// Extras optional collaborators supplied by the caller.
type Extras struct {
	Pool      poolReader
	Snapshots snapshotWriter
}

// Bot is a wired execution loop together with the stores it owns.
type Bot struct {
	*TradingBot
	state   *enginestate.WALStore
	journal *tradejournal.Journal
}

// Close releases the WALs opened for the bot.
func (b *Bot) Close() error {
	var err error
	if b.journal != nil {
		err = b.journal.Close()
	}
	if b.state != nil {
		if serr := b.state.Close(); err == nil {
			err = serr
		}
	}
	return err
}

// NewBot wires the execution loop for conf. Missing exchange credentials are
// reported as ErrConfiguration before anything is opened.
func NewBot(conf config.Config, extras Extras, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := conf.RequireExchangeCredentials(); err != nil {
		return nil, err
	}

	provider, err := newServiceProvider(conf, logger.Named("simulate"))
	if err != nil {
		return nil, err
	}
	tr, err := provider.Trader(conf.Pair)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create trader")
	}

	bot := &Bot{}
	var restored enginestate.State
	if conf.State.Persist {
		if bot.state, err = enginestate.NewWALStore(filepath.Join(conf.State.Dir, "engine"), conf.Pair); err != nil {
			return nil, err
		}
		if restored, err = bot.state.Load(); err != nil {
			_ = bot.Close()
			return nil, err
		}
		if bot.journal, err = tradejournal.Open(filepath.Join(conf.State.Dir, "journal")); err != nil {
			_ = bot.Close()
			return nil, err
		}
		for _, intent := range bot.journal.Pending() {
			logger.Warn("trade intent left pending by a previous run, check the venue",
				zap.String("id", intent.ID),
				zap.String("side", intent.Side),
				zap.String("amount", intent.Amount.String()))
		}
	}

	liquidator := NewLiquidator(tr, conf.Pair, conf.MinOrderBase, logger.Named("liquidator"))
	guardian := newRiskGuardian(conf, liquidator, bot.state, restored.Risk, logger)
	engine := newStrategyEngine(conf, bot.state, restored.Position, logger)
	candles := collector.NewMarketDataCollector(provider.KlineProvider(), conf.Pair, conf.KlineInterval, conf.KlineLimit)

	deps := Deps{
		Trader:    tr,
		Pricer:    provider.Pricer(),
		Candles:   candles,
		Guardian:  guardian,
		Engine:    engine,
		Pool:      extras.Pool,
		Snapshots: extras.Snapshots,
	}
	// a nil *Journal in the interface would not compare equal to nil
	if bot.journal != nil {
		deps.Journal = bot.journal
	}

	bot.TradingBot, err = NewTradingBot(BotConfig{
		Pair:          conf.Pair,
		PollInterval:  conf.PollInterval,
		OrderFraction: conf.OrderFraction,
		MinOrderBase:  conf.MinOrderBase,
	}, deps, logger)
	if err != nil {
		_ = bot.Close()
		return nil, err
	}
	return bot, nil
}
