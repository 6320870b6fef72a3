package internal

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gapeva/poolbot/config"
	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/risk"
	"github.com/gapeva/poolbot/internal/services/strategy/trend"
	"github.com/gapeva/poolbot/internal/storage/tradejournal"
	"github.com/gapeva/poolbot/pkg/indicators"
)

var testPair = domain.Pair{From: "BTC", To: "USDT"}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decEq(want string) interface{} {
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(dec(want)) })
}

type traderMock struct{ mock.Mock }

func (m *traderMock) Buy(ctx context.Context, amount decimal.Decimal, id string) error {
	return m.Called(ctx, amount, id).Error(0)
}
func (m *traderMock) Sell(ctx context.Context, amount decimal.Decimal, id string) error {
	return m.Called(ctx, amount, id).Error(0)
}
func (m *traderMock) CancelOpenOrders(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *traderMock) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	args := m.Called(ctx, currency)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type fillingTraderMock struct{ traderMock }

func (m *fillingTraderMock) OrderExecuted(ctx context.Context, id string) (bool, decimal.Decimal, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Get(1).(decimal.Decimal), args.Error(2)
}

type pricerMock struct{ mock.Mock }

func (m *pricerMock) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type candlesMock struct{ mock.Mock }

func (m *candlesMock) Candles(ctx context.Context) ([]domain.MarketCandle, error) {
	args := m.Called(ctx)
	candles, _ := args.Get(0).([]domain.MarketCandle)
	return candles, args.Error(1)
}

type guardMock struct{ mock.Mock }

func (m *guardMock) Check(ctx context.Context, equity decimal.Decimal) risk.Verdict {
	return m.Called(ctx, equity).Get(0).(risk.Verdict)
}

type engineMock struct{ mock.Mock }

func (m *engineMock) Decide(candles []domain.MarketCandle, price decimal.Decimal) (trend.Decision, error) {
	args := m.Called(candles, price)
	return args.Get(0).(trend.Decision), args.Error(1)
}
func (m *engineMock) OnEntryFilled(price, atr decimal.Decimal) { m.Called(price, atr) }
func (m *engineMock) OnExitFilled()                           { m.Called() }
func (m *engineMock) Reset()                                  { m.Called() }
func (m *engineMock) Position() domain.PositionState {
	return m.Called().Get(0).(domain.PositionState)
}

type poolStub struct{ total decimal.Decimal }

func (p poolStub) TotalPooledCapital(context.Context) decimal.Decimal { return p.total }

type journalMock struct{ mock.Mock }

func (m *journalMock) Prepare(trade domain.TradeEvent) (*tradejournal.Intent, error) {
	args := m.Called(trade)
	intent, _ := args.Get(0).(*tradejournal.Intent)
	return intent, args.Error(1)
}
func (m *journalMock) MarkDone(intent *tradejournal.Intent, filled decimal.Decimal) error {
	return m.Called(intent, filled).Error(0)
}
func (m *journalMock) MarkFailed(intent *tradejournal.Intent, cause error) error {
	return m.Called(intent, cause).Error(0)
}

type snapshotRecorder struct {
	saved []domain.EquitySnapshot
}

func (s *snapshotRecorder) Save(snap domain.EquitySnapshot) error {
	s.saved = append(s.saved, snap)
	return nil
}

type fixture struct {
	trader    *traderMock
	pricer    *pricerMock
	candles   *candlesMock
	guard     *guardMock
	engine    *engineMock
	journal   *journalMock
	snapshots *snapshotRecorder
	bot       *TradingBot
}

var activeVerdict = risk.Verdict{State: domain.RiskActive, TradingAllowed: true, HighWaterMark: dec("1000")}

func newFixture(t *testing.T, tr Trader) *fixture {
	t.Helper()

	f := &fixture{
		pricer:    &pricerMock{},
		candles:   &candlesMock{},
		guard:     &guardMock{},
		engine:    &engineMock{},
		journal:   &journalMock{},
		snapshots: &snapshotRecorder{},
	}
	if tr == nil {
		f.trader = &traderMock{}
		tr = f.trader
	}
	f.engine.On("Position").Return(domain.PositionState{}).Maybe()

	bot, err := NewTradingBot(BotConfig{
		Pair:          testPair,
		PollInterval:  time.Minute,
		OrderFraction: dec("0.99"),
		MinOrderBase:  dec("0.0001"),
	}, Deps{
		Trader:    tr,
		Pricer:    f.pricer,
		Candles:   f.candles,
		Guardian:  f.guard,
		Engine:    f.engine,
		Pool:      poolStub{total: dec("750")},
		Journal:   f.journal,
		Snapshots: f.snapshots,
	}, nil)
	require.NoError(t, err)
	f.bot = bot
	return f
}

func (f *fixture) balances(tr *traderMock, quote, base string) {
	tr.On("GetBalance", mock.Anything, "USDT").Return(dec(quote), nil)
	tr.On("GetBalance", mock.Anything, "BTC").Return(dec(base), nil)
}

func TestTickBuy(t *testing.T) {
	f := newFixture(t, nil)
	f.balances(f.trader, "1000", "0")
	f.pricer.On("GetPrice", mock.Anything, testPair).Return(dec("100"), nil)
	f.guard.On("Check", mock.Anything, decEq("1000")).Return(activeVerdict)
	f.candles.On("Candles", mock.Anything).Return([]domain.MarketCandle{{}}, nil)
	f.engine.On("Decide", mock.Anything, decEq("100")).Return(trend.Decision{
		Signal:     domain.SignalBuy,
		Reason:     trend.ReasonEntryTrend,
		Price:      dec("100"),
		Indicators: indicators.Snapshot{ATR: dec("2")},
	}, nil)
	intent := &tradejournal.Intent{ID: "x"}
	f.journal.On("Prepare", mock.MatchedBy(func(e domain.TradeEvent) bool {
		return e.Signal == domain.SignalBuy && e.Amount.Equal(dec("990"))
	})).Return(intent, nil)
	f.trader.On("Buy", mock.Anything, decEq("990"), mock.AnythingOfType("string")).Return(nil).Once()
	f.journal.On("MarkDone", intent, decimal.Zero).Return(nil)
	f.engine.On("OnEntryFilled", decEq("100"), decEq("2")).Once()

	event, err := f.bot.Tick(context.Background())
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, domain.SignalBuy, event.Signal)
	assert.True(t, event.Amount.Equal(dec("990")))
	assert.NotEmpty(t, event.ID)

	f.trader.AssertExpectations(t)
	f.engine.AssertExpectations(t)
	f.journal.AssertExpectations(t)

	require.Len(t, f.snapshots.saved, 1)
	snap := f.snapshots.saved[0]
	assert.Equal(t, "1000.00", snap.Equity)
	assert.Equal(t, "750.00", snap.PooledCapital)
	assert.Equal(t, "ACTIVE", snap.RiskStatus)
}

func TestTickSell(t *testing.T) {
	t.Run("sells the whole base balance", func(t *testing.T) {
		f := newFixture(t, nil)
		f.balances(f.trader, "10", "0.5")
		f.pricer.On("GetPrice", mock.Anything, testPair).Return(dec("200"), nil)
		f.guard.On("Check", mock.Anything, decEq("110")).Return(activeVerdict)
		f.candles.On("Candles", mock.Anything).Return([]domain.MarketCandle{{}}, nil)
		f.engine.On("Decide", mock.Anything, mock.Anything).Return(trend.Decision{
			Signal: domain.SignalSell,
			Reason: trend.ReasonStopHit,
			Price:  dec("200"),
		}, nil)
		f.journal.On("Prepare", mock.Anything).Return(&tradejournal.Intent{}, nil)
		f.journal.On("MarkDone", mock.Anything, mock.Anything).Return(nil)
		f.trader.On("Sell", mock.Anything, decEq("0.5"), mock.Anything).Return(nil).Once()
		f.engine.On("OnExitFilled").Once()

		event, err := f.bot.Tick(context.Background())
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, trend.ReasonStopHit, event.Reason)
		f.trader.AssertExpectations(t)
		f.engine.AssertExpectations(t)
	})

	t.Run("dust balance clears the position without an order", func(t *testing.T) {
		f := newFixture(t, nil)
		f.balances(f.trader, "10", "0.00001")
		f.pricer.On("GetPrice", mock.Anything, testPair).Return(dec("200"), nil)
		f.guard.On("Check", mock.Anything, mock.Anything).Return(activeVerdict)
		f.candles.On("Candles", mock.Anything).Return([]domain.MarketCandle{{}}, nil)
		f.engine.On("Decide", mock.Anything, mock.Anything).Return(trend.Decision{Signal: domain.SignalSell}, nil)
		f.engine.On("Reset").Once()

		event, err := f.bot.Tick(context.Background())
		require.NoError(t, err)
		assert.Nil(t, event)
		f.trader.AssertNotCalled(t, "Sell", mock.Anything, mock.Anything, mock.Anything)
		f.engine.AssertExpectations(t)
	})
}

func TestTickRiskGate(t *testing.T) {
	t.Run("breach resets the position and skips the strategy", func(t *testing.T) {
		f := newFixture(t, nil)
		f.balances(f.trader, "940", "0")
		f.pricer.On("GetPrice", mock.Anything, testPair).Return(dec("100"), nil)
		f.guard.On("Check", mock.Anything, decEq("940")).Return(risk.Verdict{
			State:     domain.RiskFrozen,
			JustFroze: true,
			Drawdown:  dec("0.06"),
		})
		f.engine.On("Reset").Once()

		event, err := f.bot.Tick(context.Background())
		require.NoError(t, err)
		assert.Nil(t, event)
		f.candles.AssertNotCalled(t, "Candles", mock.Anything)
		f.engine.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything)
		f.engine.AssertExpectations(t)
		require.Len(t, f.snapshots.saved, 1)
		assert.Equal(t, "FROZEN", f.snapshots.saved[0].RiskStatus)
	})

	t.Run("cooldown skips the tick", func(t *testing.T) {
		f := newFixture(t, nil)
		f.balances(f.trader, "940", "0")
		f.pricer.On("GetPrice", mock.Anything, testPair).Return(dec("100"), nil)
		f.guard.On("Check", mock.Anything, mock.Anything).Return(risk.Verdict{State: domain.RiskFrozen})

		event, err := f.bot.Tick(context.Background())
		require.NoError(t, err)
		assert.Nil(t, event)
		f.candles.AssertNotCalled(t, "Candles", mock.Anything)
		f.engine.AssertNotCalled(t, "Reset")
	})
}

func TestTickFailures(t *testing.T) {
	t.Run("price failure is an external service error", func(t *testing.T) {
		f := newFixture(t, nil)
		f.balances(f.trader, "1000", "0")
		f.pricer.On("GetPrice", mock.Anything, testPair).Return(decimal.Zero, errors.New("timeout"))

		_, err := f.bot.Tick(context.Background())
		require.ErrorIs(t, err, domain.ErrExternalService)
		f.guard.AssertNotCalled(t, "Check", mock.Anything, mock.Anything)
		assert.Empty(t, f.snapshots.saved)
	})

	t.Run("rejected order is journalled as failed", func(t *testing.T) {
		f := newFixture(t, nil)
		f.balances(f.trader, "1000", "0")
		f.pricer.On("GetPrice", mock.Anything, testPair).Return(dec("100"), nil)
		f.guard.On("Check", mock.Anything, mock.Anything).Return(activeVerdict)
		f.candles.On("Candles", mock.Anything).Return([]domain.MarketCandle{{}}, nil)
		f.engine.On("Decide", mock.Anything, mock.Anything).Return(trend.Decision{Signal: domain.SignalBuy, Price: dec("100")}, nil)
		intent := &tradejournal.Intent{ID: "x"}
		f.journal.On("Prepare", mock.Anything).Return(intent, nil)
		f.journal.On("MarkFailed", intent, mock.Anything).Return(nil).Once()
		f.trader.On("Buy", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("insufficient notional"))

		_, err := f.bot.Tick(context.Background())
		require.ErrorIs(t, err, domain.ErrExternalService)
		f.engine.AssertNotCalled(t, "OnEntryFilled", mock.Anything, mock.Anything)
		f.journal.AssertExpectations(t)
	})

	t.Run("journal failure places no order", func(t *testing.T) {
		f := newFixture(t, nil)
		f.balances(f.trader, "1000", "0")
		f.pricer.On("GetPrice", mock.Anything, testPair).Return(dec("100"), nil)
		f.guard.On("Check", mock.Anything, mock.Anything).Return(activeVerdict)
		f.candles.On("Candles", mock.Anything).Return([]domain.MarketCandle{{}}, nil)
		f.engine.On("Decide", mock.Anything, mock.Anything).Return(trend.Decision{Signal: domain.SignalBuy, Price: dec("100")}, nil)
		f.journal.On("Prepare", mock.Anything).Return(nil, errors.New("disk full"))

		_, err := f.bot.Tick(context.Background())
		require.Error(t, err)
		f.trader.AssertNotCalled(t, "Buy", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("not enough data is passed through", func(t *testing.T) {
		f := newFixture(t, nil)
		f.balances(f.trader, "1000", "0")
		f.pricer.On("GetPrice", mock.Anything, testPair).Return(dec("100"), nil)
		f.guard.On("Check", mock.Anything, mock.Anything).Return(activeVerdict)
		f.candles.On("Candles", mock.Anything).Return([]domain.MarketCandle{{}}, nil)
		f.engine.On("Decide", mock.Anything, mock.Anything).Return(trend.Decision{}, errors.Wrap(trend.ErrNotEnoughData, "need 200"))

		_, err := f.bot.Tick(context.Background())
		require.ErrorIs(t, err, trend.ErrNotEnoughData)
	})
}

func TestTickRecordsFill(t *testing.T) {
	tr := &fillingTraderMock{}
	f := newFixture(t, tr)
	f.balances(&tr.traderMock, "500", "0")
	f.pricer.On("GetPrice", mock.Anything, testPair).Return(dec("100"), nil)
	f.guard.On("Check", mock.Anything, mock.Anything).Return(activeVerdict)
	f.candles.On("Candles", mock.Anything).Return([]domain.MarketCandle{{}}, nil)
	f.engine.On("Decide", mock.Anything, mock.Anything).Return(trend.Decision{Signal: domain.SignalBuy, Price: dec("100"), Indicators: indicators.Snapshot{ATR: dec("1")}}, nil)
	f.engine.On("OnEntryFilled", mock.Anything, mock.Anything)
	intent := &tradejournal.Intent{}
	f.journal.On("Prepare", mock.Anything).Return(intent, nil)
	tr.On("Buy", mock.Anything, decEq("495"), mock.Anything).Return(nil)
	tr.On("OrderExecuted", mock.Anything, mock.Anything).Return(true, dec("4.95"), nil)
	f.journal.On("MarkDone", intent, decEq("4.95")).Return(nil).Once()

	_, err := f.bot.Tick(context.Background())
	require.NoError(t, err)
	f.journal.AssertExpectations(t)
}

type panickingTrader struct {
	traderMock
	calls int
}

func (p *panickingTrader) GetBalance(context.Context, string) (decimal.Decimal, error) {
	p.calls++
	panic("venue client bug")
}

func TestRunSurvivesPanicsAndStopsOnCancel(t *testing.T) {
	tr := &panickingTrader{}
	f := newFixture(t, tr)
	f.bot.cfg.PollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := f.bot.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, tr.calls, 1)
}

func TestNewTradingBotValidation(t *testing.T) {
	deps := Deps{
		Trader:   &traderMock{},
		Pricer:   &pricerMock{},
		Candles:  &candlesMock{},
		Guardian: &guardMock{},
		Engine:   &engineMock{},
	}
	valid := BotConfig{Pair: testPair, PollInterval: time.Second, OrderFraction: dec("0.99")}

	tests := []struct {
		name   string
		cfg    BotConfig
		mutate func(d *Deps)
		want   string
	}{
		{"missing trader", valid, func(d *Deps) { d.Trader = nil }, "trader is required"},
		{"missing engine", valid, func(d *Deps) { d.Engine = nil }, "strategy engine is required"},
		{"zero interval", BotConfig{Pair: testPair, OrderFraction: dec("0.99")}, func(*Deps) {}, "poll interval"},
		{"fraction above one", BotConfig{Pair: testPair, PollInterval: time.Second, OrderFraction: dec("1.1")}, func(*Deps) {}, "order fraction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := deps
			tt.mutate(&d)
			bot, err := NewTradingBot(tt.cfg, d, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Nil(t, bot)
		})
	}

	bot, err := NewTradingBot(valid, deps, nil)
	require.NoError(t, err)
	assert.NotNil(t, bot)
}

func TestNewBot(t *testing.T) {
	t.Run("missing credentials are a configuration error", func(t *testing.T) {
		for _, platform := range []string{config.PlatformBinance, config.PlatformBybit} {
			bot, err := NewBot(config.Config{Platform: platform, Pair: testPair}, Extras{}, nil)
			require.ErrorIs(t, err, domain.ErrConfiguration, platform)
			assert.Nil(t, bot)
		}
	})

	t.Run("unsupported platform", func(t *testing.T) {
		_, err := NewBot(config.Config{Platform: "kraken", Pair: testPair}, Extras{}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported platform: kraken")
	})
}
