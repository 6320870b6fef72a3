// Package collector fetches klines (candlestick data) from exchanges.
package collector

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/gapeva/poolbot/internal/domain"
)

const fetchTimeout = 30 * time.Second

// KlineProvider fetches klines for a pair, oldest first.
type KlineProvider interface {
	// GetKlines fetches historical klines. interval uses the Binance notation ("1m", "1h", "4h", "1d").
	GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error)
}

// MarketDataCollector fetches candles for one pair and timeframe.
type MarketDataCollector struct {
	provider KlineProvider
	pair     domain.Pair
	interval string
	limit    int
}

// NewMarketDataCollector creates a new market data collector.
func NewMarketDataCollector(provider KlineProvider, pair domain.Pair, interval string, limit int) *MarketDataCollector {
	return &MarketDataCollector{
		provider: provider,
		pair:     pair,
		interval: interval,
		limit:    limit,
	}
}

// Candles returns the latest candles, oldest first. The last one may still be forming.
func (c *MarketDataCollector) Candles(ctx context.Context) ([]domain.MarketCandle, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	candles, err := c.provider.GetKlines(ctxWithTimeout, c.pair, c.interval, c.limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s klines", c.interval)
	}
	if len(candles) == 0 {
		return nil, errors.Errorf("no kline data returned for %s %s", c.pair.String(), c.interval)
	}

	return candles, nil
}
