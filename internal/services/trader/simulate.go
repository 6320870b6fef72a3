package trader

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/storage/simstate"
)

// DefaultSimulateQuoteBalance initial quote balance of a fresh paper wallet.
var DefaultSimulateQuoteBalance = decimal.NewFromInt(10000)

const simulateBasePrecision = 8

// Pricer returns the last price of a pair.
type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

// SimulateTrader is a paper spot exchange filling market orders at the last price.
type SimulateTrader struct {
	mu         sync.RWMutex
	pair       domain.Pair
	logger     *zap.Logger
	wallet     map[string]decimal.Decimal
	orders     map[string]decimal.Decimal
	ordersSeen int
	pricer     Pricer
	stateStore *simstate.Store
}

// NewSimulateTrader creates a SimulateTrader. store may be nil to keep the wallet in memory only.
func NewSimulateTrader(pair domain.Pair, logger *zap.Logger, pricer Pricer, store *simstate.Store, initialQuote decimal.Decimal) (*SimulateTrader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pricer == nil {
		return nil, errors.New("pricer is required for SimulateTrader")
	}
	if !initialQuote.IsPositive() {
		initialQuote = DefaultSimulateQuoteBalance
	}

	t := &SimulateTrader{
		pair:       pair,
		logger:     logger,
		wallet:     map[string]decimal.Decimal{pair.From: decimal.Zero, pair.To: initialQuote},
		orders:     make(map[string]decimal.Decimal),
		pricer:     pricer,
		stateStore: store,
	}
	if err := t.restoreState(); err != nil {
		logger.Warn("failed to restore simulate state", zap.Error(err))
	}

	logger.Info("simulate init",
		zap.String("pair", pair.String()),
		zap.String("base", t.wallet[pair.From].String()),
		zap.String("quote", t.wallet[pair.To].String()))
	return t, nil
}

// Buy spends quoteAmount at the current price.
func (t *SimulateTrader) Buy(ctx context.Context, quoteAmount decimal.Decimal, clientOrderID string) error {
	if !quoteAmount.IsPositive() {
		return errors.Errorf("buy amount must be positive, got %s", quoteAmount.String())
	}

	price, err := t.pricer.GetPrice(ctx, t.pair)
	if err != nil {
		return errors.Wrap(err, "failed to get price for simulated buy")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.wallet[t.pair.To].LessThan(quoteAmount) {
		return errors.Errorf("insufficient %s balance: have %s need %s",
			t.pair.To, t.wallet[t.pair.To].String(), quoteAmount.String())
	}

	base := quoteAmount.Div(price).RoundFloor(simulateBasePrecision)
	t.wallet[t.pair.To] = t.wallet[t.pair.To].Sub(quoteAmount)
	t.wallet[t.pair.From] = t.wallet[t.pair.From].Add(base)
	t.record(clientOrderID, base)

	t.logger.Info("simulated buy executed",
		zap.String("id", clientOrderID),
		zap.String("quote", quoteAmount.String()),
		zap.String("base", base.String()),
		zap.String("price", price.String()))
	return nil
}

// Sell sells baseAmount at the current price.
func (t *SimulateTrader) Sell(ctx context.Context, baseAmount decimal.Decimal, clientOrderID string) error {
	if !baseAmount.IsPositive() {
		return errors.Errorf("sell amount must be positive, got %s", baseAmount.String())
	}

	price, err := t.pricer.GetPrice(ctx, t.pair)
	if err != nil {
		return errors.Wrap(err, "failed to get price for simulated sell")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.wallet[t.pair.From].LessThan(baseAmount) {
		return errors.Errorf("insufficient %s balance: have %s need %s",
			t.pair.From, t.wallet[t.pair.From].String(), baseAmount.String())
	}

	t.wallet[t.pair.From] = t.wallet[t.pair.From].Sub(baseAmount)
	t.wallet[t.pair.To] = t.wallet[t.pair.To].Add(baseAmount.Mul(price))
	t.record(clientOrderID, baseAmount)

	t.logger.Info("simulated sell executed",
		zap.String("id", clientOrderID),
		zap.String("base", baseAmount.String()),
		zap.String("price", price.String()))
	return nil
}

// CancelOpenOrders is a no-op: simulated market orders fill immediately.
func (t *SimulateTrader) CancelOpenOrders(context.Context) error {
	return nil
}

// OrderExecuted reports the filled base amount of a simulated order.
func (t *SimulateTrader) OrderExecuted(_ context.Context, clientOrderID string) (bool, decimal.Decimal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	filled, ok := t.orders[clientOrderID]
	if !ok {
		return false, decimal.Zero, nil
	}
	return true, filled, nil
}

func (t *SimulateTrader) GetBalance(_ context.Context, currency string) (decimal.Decimal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.wallet[currency], nil
}

// record must be called with mu held.
func (t *SimulateTrader) record(id string, base decimal.Decimal) {
	t.orders[id] = base
	t.ordersSeen++
	t.persist()
}

func (t *SimulateTrader) restoreState() error {
	if t.stateStore == nil {
		return nil
	}
	state, err := t.stateStore.Load()
	if err != nil || state == nil {
		return err
	}
	if state.Pair != "" && state.Pair != t.pair.String() {
		return errors.Errorf("state file belongs to %s", state.Pair)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for currency, raw := range state.Wallet {
		balance := decimal.Zero
		if raw != "" {
			if balance, err = decimal.NewFromString(raw); err != nil {
				return errors.Wrapf(err, "decode %s balance", currency)
			}
		}
		t.wallet[currency] = balance
	}
	t.ordersSeen = state.Orders
	return nil
}

func (t *SimulateTrader) persist() {
	if t.stateStore == nil {
		return
	}

	state := simstate.State{
		Pair:      t.pair.String(),
		Wallet:    make(map[string]string, len(t.wallet)),
		Orders:    t.ordersSeen,
		UpdatedAt: time.Now().UTC(),
	}
	for currency, balance := range t.wallet {
		state.Wallet[currency] = balance.String()
	}

	if err := t.stateStore.Save(state); err != nil {
		t.logger.Warn("failed to persist simulate state", zap.Error(err))
	}
}
