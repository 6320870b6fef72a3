package internal

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/metrics"
	"github.com/gapeva/poolbot/internal/risk"
	"github.com/gapeva/poolbot/internal/services/strategy/trend"
	"github.com/gapeva/poolbot/internal/storage/tradejournal"
)

// Trader places market orders and reads free balances on one pair.
type Trader interface {
	Buy(ctx context.Context, quoteAmount decimal.Decimal, clientOrderID string) error
	Sell(ctx context.Context, baseAmount decimal.Decimal, clientOrderID string) error
	CancelOpenOrders(ctx context.Context) error
	GetBalance(ctx context.Context, currency string) (decimal.Decimal, error)
}

// fillReporter is implemented by venues that can report the executed quantity of an order.
type fillReporter interface {
	OrderExecuted(ctx context.Context, clientOrderID string) (bool, decimal.Decimal, error)
}

type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

type candleSource interface {
	Candles(ctx context.Context) ([]domain.MarketCandle, error)
}

type riskGuard interface {
	Check(ctx context.Context, equity decimal.Decimal) risk.Verdict
}

type strategyEngine interface {
	Decide(candles []domain.MarketCandle, price decimal.Decimal) (trend.Decision, error)
	OnEntryFilled(price, atr decimal.Decimal)
	OnExitFilled()
	Reset()
	Position() domain.PositionState
}

type poolReader interface {
	TotalPooledCapital(ctx context.Context) decimal.Decimal
}

type tradeJournal interface {
	Prepare(trade domain.TradeEvent) (*tradejournal.Intent, error)
	MarkDone(intent *tradejournal.Intent, filled decimal.Decimal) error
	MarkFailed(intent *tradejournal.Intent, cause error) error
}

type snapshotWriter interface {
	Save(snapshot domain.EquitySnapshot) error
}

// BotConfig execution loop settings.
type BotConfig struct {
	Pair         domain.Pair
	PollInterval time.Duration
	// OrderFraction share of the free quote balance spent on an entry.
	OrderFraction decimal.Decimal
	// MinOrderBase smallest base quantity worth selling.
	MinOrderBase decimal.Decimal
}

// Deps collaborators of the execution loop. Pool, Journal and Snapshots are optional.
type Deps struct {
	Trader    Trader
	Pricer    Pricer
	Candles   candleSource
	Guardian  riskGuard
	Engine    strategyEngine
	Pool      poolReader
	Journal   tradeJournal
	Snapshots snapshotWriter
}

// TradingBot is the execution loop: one sequential tick per poll interval,
// at most one order per tick.
type TradingBot struct {
	cfg  BotConfig
	deps Deps
	now  func() time.Time
	log  *zap.Logger
}

// NewTradingBot validates the collaborators and creates the loop.
func NewTradingBot(cfg BotConfig, deps Deps, logger *zap.Logger) (*TradingBot, error) {
	switch {
	case deps.Trader == nil:
		return nil, errors.New("trader is required")
	case deps.Pricer == nil:
		return nil, errors.New("pricer is required")
	case deps.Candles == nil:
		return nil, errors.New("candle source is required")
	case deps.Guardian == nil:
		return nil, errors.New("risk guardian is required")
	case deps.Engine == nil:
		return nil, errors.New("strategy engine is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, errors.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}
	if !cfg.OrderFraction.IsPositive() || cfg.OrderFraction.GreaterThan(decimal.NewFromInt(1)) {
		return nil, errors.Errorf("order fraction must be in (0, 1], got %s", cfg.OrderFraction)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TradingBot{
		cfg:  cfg,
		deps: deps,
		now:  func() time.Time { return time.Now().UTC() },
		log:  logger.With(zap.String("pair", cfg.Pair.String())),
	}, nil
}

// Run ticks until ctx is cancelled. Tick failures are logged and never stop the loop.
func (b *TradingBot) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	b.log.Info("starting trading loop", zap.Duration("poll_interval", b.cfg.PollInterval))

	for {
		b.safeTick(ctx)

		select {
		case <-ctx.Done():
			b.log.Info("context done, stopping trading loop")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *TradingBot) safeTick(ctx context.Context) {
	start := time.Now()
	outcome := "ok"

	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			b.log.Error("tick panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
		metrics.Ticks.WithLabelValues(outcome).Inc()
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	event, err := b.Tick(ctx)
	switch {
	case err == nil && event != nil:
		outcome = "order"
		b.log.Info("trade event occurred", zap.Stringer("event", event))
	case err == nil:
	case errors.Is(err, trend.ErrNotEnoughData):
		outcome = "no_data"
		b.log.Debug("not enough market data, skipping tick", zap.Error(err))
	case errors.Is(err, context.Canceled):
		outcome = "cancelled"
	default:
		outcome = "error"
		b.log.Error("tick failed", zap.String("kind", domain.ErrorKind(err)), zap.Error(err))
	}
}

// Tick values the pool, consults the risk guardian and, when trading is
// allowed, runs the strategy and places at most one order.
func (b *TradingBot) Tick(ctx context.Context) (*domain.TradeEvent, error) {
	pair := b.cfg.Pair

	quote, err := b.deps.Trader.GetBalance(ctx, pair.To)
	if err != nil {
		return nil, external(err, "get %s balance", pair.To)
	}
	base, err := b.deps.Trader.GetBalance(ctx, pair.From)
	if err != nil {
		return nil, external(err, "get %s balance", pair.From)
	}
	price, err := b.deps.Pricer.GetPrice(ctx, pair)
	if err != nil {
		return nil, external(err, "get %s price", pair.String())
	}

	equity := quote.Add(base.Mul(price))
	metrics.Equity.Set(equity.InexactFloat64())

	pooled := decimal.Zero
	if b.deps.Pool != nil {
		pooled = b.deps.Pool.TotalPooledCapital(ctx)
	}

	verdict := b.deps.Guardian.Check(ctx, equity)
	defer func() {
		b.saveSnapshot(price, equity, pooled, base, quote, verdict)
	}()

	if verdict.JustFroze {
		// the guardian already liquidated; nothing is held any more
		b.deps.Engine.Reset()
		b.log.Warn("trading frozen after drawdown breach",
			zap.String("equity", equity.String()),
			zap.String("drawdown", verdict.Drawdown.String()))
		return nil, nil
	}
	if !verdict.TradingAllowed {
		b.log.Debug("trading frozen, skipping tick")
		return nil, nil
	}

	candles, err := b.deps.Candles.Candles(ctx)
	if err != nil {
		return nil, external(err, "fetch candles")
	}

	decision, err := b.deps.Engine.Decide(candles, price)
	if err != nil {
		return nil, err
	}
	b.log.Debug("strategy decision", zap.Stringer("decision", decision))

	switch decision.Signal {
	case domain.SignalBuy:
		return b.enter(ctx, decision, quote)
	case domain.SignalSell:
		return b.exit(ctx, decision, base)
	default:
		return nil, nil
	}
}

func (b *TradingBot) enter(ctx context.Context, d trend.Decision, quote decimal.Decimal) (*domain.TradeEvent, error) {
	spend := quote.Mul(b.cfg.OrderFraction).RoundDown(domain.MoneyPlaces)
	if !spend.IsPositive() {
		b.log.Warn("buy signal without quote balance", zap.String("quote", quote.String()))
		return nil, nil
	}

	event, err := b.submit(ctx, domain.SignalBuy, spend, d, b.deps.Trader.Buy)
	if err != nil {
		return nil, err
	}
	b.deps.Engine.OnEntryFilled(d.Price, d.Indicators.ATR)
	return event, nil
}

func (b *TradingBot) exit(ctx context.Context, d trend.Decision, base decimal.Decimal) (*domain.TradeEvent, error) {
	if base.LessThan(b.cfg.MinOrderBase) {
		// nothing left to sell, e.g. the asset was moved off the venue
		b.log.Warn("sell signal without base balance, clearing position",
			zap.String("base", base.String()),
			zap.String("min_order", b.cfg.MinOrderBase.String()))
		b.deps.Engine.Reset()
		return nil, nil
	}

	event, err := b.submit(ctx, domain.SignalSell, base, d, b.deps.Trader.Sell)
	if err != nil {
		return nil, err
	}
	b.deps.Engine.OnExitFilled()
	return event, nil
}

type placeFunc func(ctx context.Context, amount decimal.Decimal, clientOrderID string) error

func (b *TradingBot) submit(ctx context.Context, side domain.Signal, amount decimal.Decimal, d trend.Decision, place placeFunc) (*domain.TradeEvent, error) {
	event := &domain.TradeEvent{
		ID:     uuid.New().String(),
		Signal: side,
		Pair:   b.cfg.Pair,
		Amount: amount,
		Price:  d.Price,
		Reason: d.Reason,
		Time:   b.now(),
	}

	var intent *tradejournal.Intent
	if b.deps.Journal != nil {
		var err error
		if intent, err = b.deps.Journal.Prepare(*event); err != nil {
			return nil, errors.Wrap(err, "journal trade intent")
		}
	}

	if err := place(ctx, amount, event.ID); err != nil {
		metrics.Orders.WithLabelValues(side.String(), "failed").Inc()
		if intent != nil {
			if jerr := b.deps.Journal.MarkFailed(intent, err); jerr != nil {
				b.log.Error("failed to journal order failure", zap.String("id", event.ID), zap.Error(jerr))
			}
		}
		return nil, external(err, "place %s order", side.String())
	}
	metrics.Orders.WithLabelValues(side.String(), "ok").Inc()

	filled := decimal.Zero
	if fr, ok := b.deps.Trader.(fillReporter); ok {
		if _, qty, err := fr.OrderExecuted(ctx, event.ID); err != nil {
			b.log.Warn("failed to read order fill", zap.String("id", event.ID), zap.Error(err))
		} else {
			filled = qty
		}
	}
	if intent != nil {
		if err := b.deps.Journal.MarkDone(intent, filled); err != nil {
			b.log.Error("failed to journal order outcome", zap.String("id", event.ID), zap.Error(err))
		}
	}

	return event, nil
}

func (b *TradingBot) saveSnapshot(price, equity, pooled, base, quote decimal.Decimal, v risk.Verdict) {
	if b.deps.Snapshots == nil {
		return
	}

	pos := b.deps.Engine.Position()
	snap := domain.EquitySnapshot{
		Timestamp:     b.now(),
		Pair:          b.cfg.Pair.String(),
		Base:          base.String(),
		Quote:         quote.String(),
		Price:         price.String(),
		Equity:        equity.StringFixed(domain.MoneyPlaces),
		PooledCapital: pooled.StringFixed(domain.MoneyPlaces),
		RiskStatus:    string(v.State),
		HighWaterMark: v.HighWaterMark.StringFixed(domain.MoneyPlaces),
		InPosition:    pos.InPosition,
	}
	if pos.InPosition {
		snap.TrailingStop = pos.TrailingStopPrice.String()
	}
	if err := b.deps.Snapshots.Save(snap); err != nil {
		b.log.Warn("failed to save equity snapshot", zap.Error(err))
	}
}

// external marks err as an exchange failure unless it already carries a taxonomy kind.
func external(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if domain.ErrorKind(err) != "internal" || errors.Is(err, context.Canceled) {
		return errors.Wrap(err, msg)
	}
	return fmt.Errorf("%s: %w: %w", msg, domain.ErrExternalService, err)
}
