package collector

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/gapeva/poolbot/internal/domain"
)

// BinanceKlineProvider implements KlineProvider for Binance exchange.
type BinanceKlineProvider struct {
	client *binance.Client
}

// NewBinanceKlineProvider creates a new Binance kline provider.
func NewBinanceKlineProvider(client *binance.Client) *BinanceKlineProvider {
	return &BinanceKlineProvider{client: client}
}

// GetKlines fetches kline data from Binance.
func (p *BinanceKlineProvider) GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error) {
	klines, err := p.client.NewKlinesService().
		Symbol(pair.Symbol()).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Binance for %s", pair.String())
	}

	result := make([]domain.MarketCandle, len(klines))
	for i, k := range klines {
		c, err := parseCandle(k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "kline at index %d", i)
		}
		c.OpenTime = time.UnixMilli(k.OpenTime).UTC()
		c.CloseTime = time.UnixMilli(k.CloseTime).UTC()
		result[i] = c
	}

	return result, nil
}

func parseCandle(open, high, low, close, volume string) (domain.MarketCandle, error) {
	var (
		c   domain.MarketCandle
		err error
	)
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"open", open, &c.Open},
		{"high", high, &c.High},
		{"low", low, &c.Low},
		{"close", close, &c.Close},
		{"volume", volume, &c.Volume},
	}
	for _, f := range fields {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return domain.MarketCandle{}, errors.Wrapf(err, "failed to parse %s %q", f.name, f.raw)
		}
	}
	return c, nil
}
