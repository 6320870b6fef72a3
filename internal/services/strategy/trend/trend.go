// Package trend implements the trend-following strategy: EMA trend filter,
// MACD momentum, RSI ceiling, Bollinger breakout and an ATR trailing stop.
package trend

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/metrics"
	"github.com/gapeva/poolbot/pkg/indicators"
)

// ErrNotEnoughData is returned when there are too few closed candles for the slow EMA.
var ErrNotEnoughData = errors.New("not enough closed candles")

var (
	DefaultRSICeiling    = decimal.NewFromInt(75)
	DefaultATRMultiplier = decimal.NewFromInt(2)
)

const (
	ReasonEntryTrend      = "bullish trend with rising momentum"
	ReasonEntryBreakout   = "volatility breakout with rising momentum"
	ReasonStopHit         = "trailing stop hit"
	ReasonTrendReversal   = "fast EMA below slow EMA"
	ReasonMomentumFade    = "momentum fading while overbought"
	ReasonNoSetup         = "no setup"
	ReasonHoldingPosition = "holding position"
)

// PositionSaver persists the position after every change.
type PositionSaver interface {
	SavePosition(p domain.PositionState) error
}

// Config strategy parameters.
type Config struct {
	Indicators    indicators.Params
	RSICeiling    decimal.Decimal
	ATRMultiplier decimal.Decimal
}

// Decision strategy output for one tick.
type Decision struct {
	Signal     domain.Signal
	Reason     string
	Price      decimal.Decimal
	Indicators indicators.Snapshot
	// TrailingStop is the stop after this tick's ratchet, zero when flat.
	TrailingStop decimal.Decimal
}

// Engine keeps the strategy position. One engine trades one pair.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	position domain.PositionState
	saver    PositionSaver
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithPositionSaver(saver PositionSaver) Option {
	return func(e *Engine) { e.saver = saver }
}

// WithPosition restores a persisted position.
func WithPosition(p domain.PositionState) Option {
	return func(e *Engine) { e.position = p }
}

// NewEngine creates an Engine. Zero config values fall back to the defaults.
func NewEngine(cfg Config, opts ...Option) *Engine {
	def := indicators.DefaultParams()
	if cfg.Indicators.FastEMA <= 0 {
		cfg.Indicators.FastEMA = def.FastEMA
	}
	if cfg.Indicators.SlowEMA <= 0 {
		cfg.Indicators.SlowEMA = def.SlowEMA
	}
	if cfg.Indicators.RSI <= 0 {
		cfg.Indicators.RSI = def.RSI
	}
	if cfg.Indicators.ATR <= 0 {
		cfg.Indicators.ATR = def.ATR
	}
	if cfg.Indicators.Bollinger <= 0 {
		cfg.Indicators.Bollinger = def.Bollinger
	}
	if !cfg.RSICeiling.IsPositive() {
		cfg.RSICeiling = DefaultRSICeiling
	}
	if !cfg.ATRMultiplier.IsPositive() {
		cfg.ATRMultiplier = DefaultATRMultiplier
	}

	e := &Engine{
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MinBars number of closed candles Decide needs.
func (e *Engine) MinBars() int {
	return e.cfg.Indicators.MinBars()
}

// Decide evaluates the closed candles and the live price. While in a position
// the trailing stop is ratcheted before the exit rules are checked.
func (e *Engine) Decide(candles []domain.MarketCandle, price decimal.Decimal) (Decision, error) {
	closed := domain.ClosedCandles(candles, e.now())
	if need := e.MinBars(); len(closed) < need {
		return Decision{}, errors.Wrapf(ErrNotEnoughData, "need %d, got %d", need, len(closed))
	}

	priceData := make([]indicators.PriceData, len(closed))
	for i, c := range closed {
		priceData[i] = indicators.PriceData{Open: c.Open, High: c.High, Low: c.Low, Close: c.Close}
	}

	snap, err := indicators.Latest(priceData, e.cfg.Indicators)
	if err != nil {
		return Decision{}, errors.Wrap(err, "compute indicators")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.position.InPosition {
		if e.position.Ratchet(price, snap.ATR.Mul(e.cfg.ATRMultiplier)) {
			e.logger.Debug("trailing stop raised",
				zap.String("stop", e.position.TrailingStopPrice.String()),
				zap.String("price", price.String()))
			e.save()
		}
	}

	signal, reason := evaluate(snap, price, e.position, e.cfg.RSICeiling)
	metrics.Signals.WithLabelValues(signal.String()).Inc()
	metrics.TrailingStop.Set(e.position.TrailingStopPrice.InexactFloat64())

	return Decision{
		Signal:       signal,
		Reason:       reason,
		Price:        price,
		Indicators:   snap,
		TrailingStop: e.position.TrailingStopPrice,
	}, nil
}

// evaluate applies the entry and exit rules. Entry conditions read the last closed bar,
// the stop check reads the live price.
func evaluate(s indicators.Snapshot, price decimal.Decimal, pos domain.PositionState, rsiCeiling decimal.Decimal) (domain.Signal, string) {
	momentumUp := s.MACD.GreaterThan(s.MACDSignal)

	if pos.InPosition {
		switch {
		case price.LessThan(pos.TrailingStopPrice):
			return domain.SignalSell, ReasonStopHit
		case s.FastEMA.LessThan(s.SlowEMA):
			return domain.SignalSell, ReasonTrendReversal
		case s.MACD.LessThan(s.MACDSignal) && s.RSI.GreaterThan(rsiCeiling):
			return domain.SignalSell, ReasonMomentumFade
		default:
			return domain.SignalHold, ReasonHoldingPosition
		}
	}

	bullishTrend := s.FastEMA.GreaterThan(s.SlowEMA)
	safeEntry := s.RSI.LessThan(rsiCeiling)
	breakout := s.Close.GreaterThan(s.UpperBand)

	switch {
	case bullishTrend && momentumUp && safeEntry:
		return domain.SignalBuy, ReasonEntryTrend
	case breakout && momentumUp:
		return domain.SignalBuy, ReasonEntryBreakout
	default:
		return domain.SignalHold, ReasonNoSetup
	}
}

// OnEntryFilled opens the position at price with the initial stop at price - ATR*multiplier.
func (e *Engine) OnEntryFilled(price, atr decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.position.Open(price, atr.Mul(e.cfg.ATRMultiplier), e.now())
	e.save()
	metrics.TrailingStop.Set(e.position.TrailingStopPrice.InexactFloat64())
	e.logger.Info("position opened",
		zap.String("entry", price.String()),
		zap.String("stop", e.position.TrailingStopPrice.String()))
}

// OnExitFilled closes the position.
func (e *Engine) OnExitFilled() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closePosition("position closed")
}

// Reset clears the position without an exit order, used after a liquidation.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.position.InPosition {
		return
	}
	e.closePosition("position reset")
}

func (e *Engine) closePosition(msg string) {
	entry := e.position.EntryPrice
	e.position.Close()
	e.save()
	metrics.TrailingStop.Set(0)
	e.logger.Info(msg, zap.String("entry", entry.String()))
}

// Position returns a copy of the current position.
func (e *Engine) Position() domain.PositionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *Engine) save() {
	if e.saver == nil {
		return
	}
	if err := e.saver.SavePosition(e.position); err != nil {
		e.logger.Error("failed to persist position", zap.Error(err))
	}
}

// String is used in logs.
func (d Decision) String() string {
	return fmt.Sprintf("%s (%s) price=%s stop=%s", d.Signal, d.Reason, d.Price.String(), d.TrailingStop.String())
}
