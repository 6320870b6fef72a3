package pricer

import (
	"context"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/gapeva/poolbot/internal/domain"
)

// BybitPricer reads the last spot trade price from the Bybit v5 tickers endpoint.
type BybitPricer struct {
	client *bybit.Client
}

func NewBybitPricer(client *bybit.Client) *BybitPricer {
	return &BybitPricer{client: client}
}

// GetPrice fetches the current market price. The bybit client takes no context.
func (p *BybitPricer) GetPrice(_ context.Context, pair domain.Pair) (decimal.Decimal, error) {
	symbol := bybit.SymbolV5(pair.Symbol())

	result, err := p.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
		Symbol:   &symbol,
	})
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "bybit price for %s", pair.String())
	}
	if len(result.Result.Spot.List) == 0 {
		return decimal.Decimal{}, errors.Errorf("bybit API returned empty prices for %s", pair.String())
	}

	return parsePrice("bybit", pair, result.Result.Spot.List[0].LastPrice)
}
