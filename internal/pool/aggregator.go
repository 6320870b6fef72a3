// Package pool reports the capital currently under management.
package pool

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/metrics"
)

// BalanceSource sums trading balances across all wallets.
type BalanceSource interface {
	SumTradingBalances(ctx context.Context) (decimal.Decimal, error)
}

// Aggregator reads the pooled capital for reporting. It never gates trading.
type Aggregator struct {
	source BalanceSource
	logger *zap.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(source BalanceSource, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{source: source, logger: logger}
}

// TotalPooledCapital returns the sum of trading balances, or zero when the store fails.
func (a *Aggregator) TotalPooledCapital(ctx context.Context) decimal.Decimal {
	total, err := a.source.SumTradingBalances(ctx)
	if err != nil {
		metrics.PoolAggregationFailures.Inc()
		a.logger.Error("failed to aggregate pooled capital", zap.Error(err))
		return decimal.Zero
	}

	metrics.PooledCapital.Set(total.InexactFloat64())
	a.logger.Debug("pooled capital", zap.String("total", total.StringFixed(domain.MoneyPlaces)))
	return total
}
