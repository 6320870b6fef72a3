package trader

import (
	"context"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/gapeva/poolbot/internal/domain"
)

// BybitTrader trades one spot pair on Bybit (unified account).
type BybitTrader struct {
	client *bybit.Client
	pair   domain.Pair
}

func NewBybitTrader(client *bybit.Client, pair domain.Pair) *BybitTrader {
	return &BybitTrader{pair: pair, client: client}
}

// Buy spends quoteAmount at market. Bybit market buys on spot are sized in the quote coin.
func (t *BybitTrader) Buy(_ context.Context, quoteAmount decimal.Decimal, clientOrderID string) error {
	quoteAmount = quoteAmount.RoundFloor(quotePrecision)
	_, err := t.client.V5().Order().CreateOrder(bybit.V5CreateOrderParam{
		Category:    "spot",
		Symbol:      bybit.SymbolV5(t.pair.Symbol()),
		Side:        bybit.SideBuy,
		OrderType:   bybit.OrderTypeMarket,
		Qty:         quoteAmount.String(),
		OrderLinkID: &clientOrderID,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create buy order")
	}
	return nil
}

// Sell sells baseAmount at market.
func (t *BybitTrader) Sell(_ context.Context, baseAmount decimal.Decimal, clientOrderID string) error {
	baseAmount = baseAmount.RoundFloor(basePrecision)
	_, err := t.client.V5().Order().CreateOrder(bybit.V5CreateOrderParam{
		Category:    "spot",
		Symbol:      bybit.SymbolV5(t.pair.Symbol()),
		Side:        bybit.SideSell,
		OrderType:   bybit.OrderTypeMarket,
		Qty:         baseAmount.String(),
		OrderLinkID: &clientOrderID,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create sell order")
	}
	return nil
}

// CancelOpenOrders cancels every open spot order on the pair.
func (t *BybitTrader) CancelOpenOrders(context.Context) error {
	symbol := bybit.SymbolV5(t.pair.Symbol())
	_, err := t.client.V5().Order().CancelAllOrders(bybit.V5CancelAllOrdersParam{
		Category: "spot",
		Symbol:   &symbol,
	})
	if err != nil {
		return errors.Wrap(err, "failed to cancel bybit open orders")
	}
	return nil
}

// GetBalance returns the wallet balance of currency in the unified account.
func (t *BybitTrader) GetBalance(_ context.Context, currency string) (decimal.Decimal, error) {
	res, err := t.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get bybit wallet balance")
	}
	if len(res.Result.List) == 0 {
		return decimal.Zero, nil
	}

	for _, coin := range res.Result.List[0].Coin {
		if string(coin.Coin) != currency {
			continue
		}
		if coin.WalletBalance == "" {
			return decimal.Zero, nil
		}
		balance, err := decimal.NewFromString(coin.WalletBalance)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "failed to parse %s balance", currency)
		}
		return balance, nil
	}
	return decimal.Zero, nil
}
