// Package risk implements the drawdown guard of the execution loop.
//
// The guardian is a two-state machine. While ACTIVE it tracks the
// high-water-mark of pooled equity; a drawdown at or above the configured
// limit liquidates the book and freezes trading for the cooldown period.
package risk

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/metrics"
)

var (
	DefaultMaxDrawdown = decimal.RequireFromString("0.05")
	DefaultCooldown    = 24 * time.Hour
)

// Liquidator flattens the book: cancels open orders and sells the risk asset.
type Liquidator interface {
	Liquidate(ctx context.Context) error
}

// StateSaver persists the guardian state after every change.
type StateSaver interface {
	SaveRisk(state domain.RiskState) error
}

// Config guardian thresholds.
type Config struct {
	MaxDrawdown decimal.Decimal
	Cooldown    time.Duration
}

// Verdict result of one valuation.
type Verdict struct {
	State domain.RiskStatus
	// JustFroze is true on the check that detected the breach.
	JustFroze      bool
	TradingAllowed bool
	Drawdown       decimal.Decimal
	HighWaterMark  decimal.Decimal
}

// Guardian is safe for concurrent use, though the loop calls it from one goroutine.
type Guardian struct {
	mu         sync.Mutex
	cfg        Config
	state      domain.RiskState
	liquidator Liquidator
	saver      StateSaver
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a Guardian.
type Option func(*Guardian)

func WithClock(now func() time.Time) Option {
	return func(g *Guardian) { g.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *Guardian) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithStateSaver(saver StateSaver) Option {
	return func(g *Guardian) { g.saver = saver }
}

// WithState restores a previously persisted state.
func WithState(state domain.RiskState) Option {
	return func(g *Guardian) { g.state = state }
}

// NewGuardian creates a Guardian. Zero config values fall back to the defaults.
func NewGuardian(cfg Config, liquidator Liquidator, opts ...Option) *Guardian {
	if !cfg.MaxDrawdown.IsPositive() {
		cfg.MaxDrawdown = DefaultMaxDrawdown
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}

	g := &Guardian{
		cfg:        cfg,
		liquidator: liquidator,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.publish(decimal.Zero)
	return g
}

// State returns a copy of the current state.
func (g *Guardian) State() domain.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Check feeds one equity valuation into the state machine.
func (g *Guardian) Check(ctx context.Context, equity decimal.Decimal) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.Frozen {
		return g.checkFrozen(ctx)
	}
	return g.checkActive(ctx, equity)
}

func (g *Guardian) checkActive(ctx context.Context, equity decimal.Decimal) Verdict {
	// a cooldown that ended before the book was flattened keeps trading blocked
	if g.state.LiquidationPending {
		if !g.liquidate(ctx) {
			g.publish(decimal.Zero)
			return g.verdict(decimal.Zero, false)
		}
		g.state.LiquidationPending = false
		g.save()
		g.logger.Info("pending liquidation completed, trading resumed")
	}

	if g.state.HighWaterMark.IsZero() {
		if equity.IsPositive() {
			g.state.HighWaterMark = equity
			g.save()
			g.logger.Info("high-water-mark initialized", zap.String("equity", equity.String()))
		}
		g.publish(decimal.Zero)
		return g.verdict(decimal.Zero, false)
	}

	if equity.GreaterThan(g.state.HighWaterMark) {
		g.state.HighWaterMark = equity
		g.save()
	}

	drawdown := g.state.HighWaterMark.Sub(equity).Div(g.state.HighWaterMark)
	if drawdown.LessThan(g.cfg.MaxDrawdown) {
		g.publish(drawdown)
		return g.verdict(drawdown, false)
	}

	g.logger.Warn("drawdown limit breached, freezing trading",
		zap.String("equity", equity.String()),
		zap.String("high_water_mark", g.state.HighWaterMark.String()),
		zap.String("drawdown", drawdown.StringFixed(4)),
		zap.String("limit", g.cfg.MaxDrawdown.String()))

	// the freeze completes even if the sell fails; liquidation is retried while frozen
	g.state.LiquidationPending = !g.liquidate(ctx)
	g.state.Frozen = true
	g.state.FreezeStartedAt = g.now()
	g.state.HighWaterMark = decimal.Zero
	g.save()

	g.publish(drawdown)
	return g.verdict(drawdown, true)
}

func (g *Guardian) checkFrozen(ctx context.Context) Verdict {
	elapsed := g.now().Sub(g.state.FreezeStartedAt)

	if g.state.LiquidationPending && g.liquidate(ctx) {
		g.state.LiquidationPending = false
		g.save()
	}

	if elapsed < g.cfg.Cooldown {
		g.logger.Debug("trading frozen",
			zap.Duration("elapsed", elapsed),
			zap.Duration("remaining", g.cfg.Cooldown-elapsed))
		g.publish(decimal.Zero)
		return g.verdict(decimal.Zero, false)
	}

	pending := g.state.LiquidationPending
	g.state = domain.RiskState{HighWaterMark: decimal.Zero, LiquidationPending: pending}
	g.save()
	if pending {
		g.logger.Error("cooldown over with liquidation still pending, trading stays blocked",
			zap.String("alert", "critical"),
			zap.Duration("elapsed", elapsed))
	} else {
		g.logger.Info("cooldown elapsed, trading resumed", zap.Duration("frozen_for", elapsed))
	}

	g.publish(decimal.Zero)
	return g.verdict(decimal.Zero, false)
}

// liquidate reports whether the liquidation succeeded.
func (g *Guardian) liquidate(ctx context.Context) bool {
	if g.liquidator == nil {
		return true
	}

	if err := g.liquidator.Liquidate(ctx); err != nil {
		metrics.Liquidations.WithLabelValues("failed").Inc()
		g.logger.Error("liquidation failed",
			zap.String("alert", "critical"),
			zap.Error(err))
		return false
	}

	metrics.Liquidations.WithLabelValues("ok").Inc()
	g.logger.Info("position liquidated")
	return true
}

func (g *Guardian) verdict(drawdown decimal.Decimal, justFroze bool) Verdict {
	return Verdict{
		State:          g.state.Status(),
		JustFroze:      justFroze,
		TradingAllowed: !g.state.Frozen && !g.state.LiquidationPending,
		Drawdown:       drawdown,
		HighWaterMark:  g.state.HighWaterMark,
	}
}

func (g *Guardian) save() {
	if g.saver == nil {
		return
	}
	if err := g.saver.SaveRisk(g.state); err != nil {
		g.logger.Error("failed to persist risk state", zap.Error(err))
	}
}

func (g *Guardian) publish(drawdown decimal.Decimal) {
	metrics.HighWaterMark.Set(g.state.HighWaterMark.InexactFloat64())
	metrics.Drawdown.Set(drawdown.InexactFloat64())
	if g.state.Frozen {
		metrics.Frozen.Set(1)
	} else {
		metrics.Frozen.Set(0)
	}
}
