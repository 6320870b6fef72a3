package internal

import (
	"fmt"
	"path/filepath"

	binance "github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/config"
	"github.com/gapeva/poolbot/internal/clients"
	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/services/market/collector"
	"github.com/gapeva/poolbot/internal/services/pricer"
	"github.com/gapeva/poolbot/internal/services/trader"
	"github.com/gapeva/poolbot/internal/storage/simstate"
)

// serviceProvider creates the venue-specific services for one platform.
type serviceProvider interface {
	Trader(pair domain.Pair) (Trader, error)
	Pricer() Pricer
	KlineProvider() collector.KlineProvider
}

// newServiceProvider builds the exchange client for cfg.Platform. Live
// platforms without credentials fail with ErrConfiguration.
func newServiceProvider(cfg config.Config, logger *zap.Logger) (serviceProvider, error) {
	switch cfg.Platform {
	case config.PlatformBinance:
		client, err := clients.NewBinanceClient(cfg.Secrets.BinanceAPIKey, cfg.Secrets.BinanceAPISecret)
		if err != nil {
			return nil, err
		}
		return &binanceProvider{client: client}, nil
	case config.PlatformBybit:
		client, err := clients.NewBybitClient(cfg.Secrets.BybitAPIKey, cfg.Secrets.BybitAPISecret)
		if err != nil {
			return nil, err
		}
		return &bybitProvider{client: client}, nil
	case config.PlatformSimulate:
		return &simulateProvider{
			client:       clients.NewBinancePublicClient(),
			stateDir:     filepath.Join(cfg.State.Dir, "simulate"),
			initialQuote: cfg.Simulate.InitialQuote,
			logger:       logger,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", cfg.Platform)
	}
}

type binanceProvider struct {
	client *binance.Client
}

func (p *binanceProvider) Trader(pair domain.Pair) (Trader, error) {
	return trader.NewBinanceTrader(p.client, pair), nil
}
func (p *binanceProvider) Pricer() Pricer {
	return pricer.NewBinancePricer(p.client)
}
func (p *binanceProvider) KlineProvider() collector.KlineProvider {
	return collector.NewBinanceKlineProvider(p.client)
}

type bybitProvider struct {
	client *bybit.Client
}

func (p *bybitProvider) Trader(pair domain.Pair) (Trader, error) {
	return trader.NewBybitTrader(p.client, pair), nil
}
func (p *bybitProvider) Pricer() Pricer {
	return pricer.NewBybitPricer(p.client)
}
func (p *bybitProvider) KlineProvider() collector.KlineProvider {
	return collector.NewBybitKlineProvider(p.client)
}

// simulateProvider paper-trades against live Binance prices.
type simulateProvider struct {
	client       *binance.Client
	stateDir     string
	initialQuote decimal.Decimal
	logger       *zap.Logger
}

func (p *simulateProvider) Trader(pair domain.Pair) (Trader, error) {
	store, err := simstate.NewStore(p.stateDir, pair)
	if err != nil {
		return nil, errors.Wrap(err, "open paper wallet store")
	}
	return trader.NewSimulateTrader(pair, p.logger, pricer.NewBinancePricer(p.client), store, p.initialQuote)
}
func (p *simulateProvider) Pricer() Pricer {
	return pricer.NewBinancePricer(p.client)
}
func (p *simulateProvider) KlineProvider() collector.KlineProvider {
	return collector.NewBinanceKlineProvider(p.client)
}
