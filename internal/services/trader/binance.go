// Package trader places spot market orders and reads balances on the configured venue.
package trader

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/gapeva/poolbot/internal/domain"
)

const (
	quotePrecision = 2
	basePrecision  = 4
)

// binance answers -2011 when there is nothing to cancel and -2013 for unknown orders
func isNoOrderError(err error) bool {
	apiErr, ok := err.(*common.APIError)
	return ok && (apiErr.Code == -2011 || apiErr.Code == -2013)
}

// BinanceTrader trades one spot pair on Binance.
type BinanceTrader struct {
	client *binance.Client
	pair   domain.Pair
}

func NewBinanceTrader(client *binance.Client, pair domain.Pair) *BinanceTrader {
	return &BinanceTrader{client: client, pair: pair}
}

// Buy spends quoteAmount of the quote asset at market.
func (t *BinanceTrader) Buy(ctx context.Context, quoteAmount decimal.Decimal, clientOrderID string) error {
	quoteAmount = quoteAmount.RoundFloor(quotePrecision)

	_, err := t.client.NewCreateOrderService().Symbol(t.pair.Symbol()).
		Side(binance.SideTypeBuy).Type(binance.OrderTypeMarket).
		QuoteOrderQty(quoteAmount.String()).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "binance market buy for %s %s", quoteAmount.String(), t.pair.To)
	}
	return nil
}

// Sell sells baseAmount of the base asset at market.
func (t *BinanceTrader) Sell(ctx context.Context, baseAmount decimal.Decimal, clientOrderID string) error {
	baseAmount = baseAmount.RoundFloor(basePrecision)

	_, err := t.client.NewCreateOrderService().Symbol(t.pair.Symbol()).
		Side(binance.SideTypeSell).Type(binance.OrderTypeMarket).
		Quantity(baseAmount.String()).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "binance market sell for %s %s", baseAmount.String(), t.pair.From)
	}
	return nil
}

// CancelOpenOrders cancels every open order on the pair.
func (t *BinanceTrader) CancelOpenOrders(ctx context.Context) error {
	_, err := t.client.NewCancelOpenOrdersService().Symbol(t.pair.Symbol()).Do(ctx)
	if err != nil && !isNoOrderError(err) {
		return errors.Wrap(err, "failed to cancel binance open orders")
	}
	return nil
}

// OrderExecuted reports whether the order is done and its executed base quantity.
func (t *BinanceTrader) OrderExecuted(ctx context.Context, clientOrderID string) (bool, decimal.Decimal, error) {
	order, err := t.client.NewGetOrderService().
		Symbol(t.pair.Symbol()).
		OrigClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		if isNoOrderError(err) {
			return false, decimal.Zero, nil
		}
		return false, decimal.Zero, errors.Wrap(err, "failed to query binance order status")
	}

	executedQty, err := decimal.NewFromString(order.ExecutedQuantity)
	if err != nil {
		return false, decimal.Zero, errors.Wrap(err, "failed to parse executed quantity")
	}

	switch order.Status {
	case binance.OrderStatusTypeFilled:
		return true, executedQty, nil
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeRejected, binance.OrderStatusTypeExpired:
		// a cancelled market order may still have filled partially
		return executedQty.IsPositive(), executedQty, nil
	default:
		return false, executedQty, nil
	}
}

// GetBalance returns the free balance of currency.
func (t *BinanceTrader) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	account, err := t.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get binance account balance")
	}

	for _, balance := range account.Balances {
		if balance.Asset == currency {
			free, err := decimal.NewFromString(balance.Free)
			if err != nil {
				return decimal.Zero, errors.Wrap(err, "failed to parse balance")
			}
			return free, nil
		}
	}

	return decimal.Zero, nil
}
