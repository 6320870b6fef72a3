package internal

import (
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/config"
	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/risk"
	"github.com/gapeva/poolbot/internal/services/strategy/trend"
	"github.com/gapeva/poolbot/internal/storage/enginestate"
	"github.com/gapeva/poolbot/pkg/indicators"
)

// newStrategyEngine builds the trend engine, restoring the persisted position when present.
func newStrategyEngine(conf config.Config, state *enginestate.WALStore, restored *domain.PositionState, logger *zap.Logger) *trend.Engine {
	opts := []trend.Option{trend.WithLogger(logger.Named("strategy"))}
	if state != nil {
		opts = append(opts, trend.WithPositionSaver(state))
	}
	if restored != nil {
		opts = append(opts, trend.WithPosition(*restored))
	}

	return trend.NewEngine(trend.Config{
		Indicators: indicators.Params{
			FastEMA:   conf.Strategy.FastEMA,
			SlowEMA:   conf.Strategy.SlowEMA,
			RSI:       conf.Strategy.RSI,
			ATR:       conf.Strategy.ATR,
			Bollinger: conf.Strategy.Bollinger,
		},
		RSICeiling:    conf.Strategy.RSICeiling,
		ATRMultiplier: conf.Strategy.ATRMultiplier,
	}, opts...)
}

// newRiskGuardian builds the drawdown guard, restoring the persisted state when present.
func newRiskGuardian(conf config.Config, liquidator risk.Liquidator, state *enginestate.WALStore, restored *domain.RiskState, logger *zap.Logger) *risk.Guardian {
	opts := []risk.Option{risk.WithLogger(logger.Named("risk"))}
	if state != nil {
		opts = append(opts, risk.WithStateSaver(state))
	}
	if restored != nil {
		opts = append(opts, risk.WithState(*restored))
	}

	return risk.NewGuardian(risk.Config{
		MaxDrawdown: conf.Risk.MaxDrawdown,
		Cooldown:    conf.Risk.Cooldown,
	}, liquidator, opts...)
}
