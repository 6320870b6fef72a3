// Package pricer reads the last traded price of a pair.
package pricer

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/gapeva/poolbot/internal/domain"
)

// BinancePricer reads prices from the Binance ticker endpoint. It needs no credentials,
// so the paper exchange uses it as well.
type BinancePricer struct {
	client *binance.Client
}

func NewBinancePricer(client *binance.Client) *BinancePricer {
	return &BinancePricer{client: client}
}

// GetPrice fetches the current market price.
func (p *BinancePricer) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	prices, err := p.client.NewListPricesService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "binance price for %s", pair.String())
	}
	if len(prices) == 0 {
		return decimal.Decimal{}, errors.Errorf("binance API returned empty prices for %s", pair.String())
	}

	return parsePrice("binance", pair, prices[0].Price)
}
