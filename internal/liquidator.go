package internal

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/metrics"
)

// Liquidator flattens the book on a drawdown breach: it cancels the open
// orders of the pair and market-sells the whole base balance.
type Liquidator struct {
	trader       Trader
	pair         domain.Pair
	minOrderBase decimal.Decimal
	logger       *zap.Logger
}

func NewLiquidator(trader Trader, pair domain.Pair, minOrderBase decimal.Decimal, logger *zap.Logger) *Liquidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Liquidator{trader: trader, pair: pair, minOrderBase: minOrderBase, logger: logger}
}

// Liquidate is safe to call repeatedly; it does nothing once the base balance is dust.
func (l *Liquidator) Liquidate(ctx context.Context) error {
	if err := l.trader.CancelOpenOrders(ctx); err != nil {
		return external(err, "cancel open orders")
	}

	base, err := l.trader.GetBalance(ctx, l.pair.From)
	if err != nil {
		return external(err, "get %s balance", l.pair.From)
	}
	if base.LessThan(l.minOrderBase) {
		l.logger.Info("nothing to liquidate", zap.String("base", base.String()))
		return nil
	}

	id := uuid.New().String()
	if err := l.trader.Sell(ctx, base, id); err != nil {
		metrics.Orders.WithLabelValues(domain.SignalSell.String(), "failed").Inc()
		return external(err, "liquidation sell")
	}
	metrics.Orders.WithLabelValues(domain.SignalSell.String(), "ok").Inc()

	l.logger.Warn("position liquidated",
		zap.String("id", id),
		zap.String("sold", base.String()),
		zap.String("asset", l.pair.From))
	return nil
}
