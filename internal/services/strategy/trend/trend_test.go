package trend

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/pkg/indicators"
)

var baseTime = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

const barInterval = 4 * time.Hour

func candles(n int, closeAt func(i int) float64) []domain.MarketCandle {
	out := make([]domain.MarketCandle, n)
	for i := range out {
		c := decimal.NewFromFloat(closeAt(i))
		open := baseTime.Add(time.Duration(i) * barInterval)
		out[i] = domain.MarketCandle{
			OpenTime:  open,
			Open:      c,
			High:      c.Add(decimal.NewFromInt(1)),
			Low:       c.Sub(decimal.NewFromInt(1)),
			Close:     c,
			Volume:    decimal.NewFromInt(10),
			CloseTime: open.Add(barInterval - time.Millisecond),
		}
	}
	return out
}

func flat(int) float64 { return 100 }

// clockAfter returns a clock just past the close of the last candle.
func clockAfter(cs []domain.MarketCandle) func() time.Time {
	t := cs[len(cs)-1].CloseTime.Add(time.Second)
	return func() time.Time { return t }
}

type positionRecorder struct {
	saved []domain.PositionState
}

func (r *positionRecorder) SavePosition(p domain.PositionState) error {
	r.saved = append(r.saved, p)
	return nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestEvaluate(t *testing.T) {
	ceiling := DefaultRSICeiling
	open := domain.PositionState{InPosition: true, EntryPrice: d("100"), TrailingStopPrice: d("95")}

	tests := []struct {
		name       string
		snap       indicators.Snapshot
		price      string
		pos        domain.PositionState
		wantSignal domain.Signal
		wantReason string
	}{
		{
			name:       "trend entry",
			snap:       indicators.Snapshot{Close: d("100"), FastEMA: d("101"), SlowEMA: d("99"), MACD: d("1"), MACDSignal: d("0.5"), RSI: d("60"), UpperBand: d("110")},
			price:      "100",
			wantSignal: domain.SignalBuy,
			wantReason: ReasonEntryTrend,
		},
		{
			name:       "overbought blocks trend entry",
			snap:       indicators.Snapshot{Close: d("100"), FastEMA: d("101"), SlowEMA: d("99"), MACD: d("1"), MACDSignal: d("0.5"), RSI: d("75"), UpperBand: d("110")},
			price:      "100",
			wantSignal: domain.SignalHold,
			wantReason: ReasonNoSetup,
		},
		{
			name:       "breakout entry ignores trend and rsi",
			snap:       indicators.Snapshot{Close: d("112"), FastEMA: d("98"), SlowEMA: d("99"), MACD: d("1"), MACDSignal: d("0.5"), RSI: d("85"), UpperBand: d("110")},
			price:      "112",
			wantSignal: domain.SignalBuy,
			wantReason: ReasonEntryBreakout,
		},
		{
			name:       "breakout without momentum",
			snap:       indicators.Snapshot{Close: d("112"), FastEMA: d("101"), SlowEMA: d("99"), MACD: d("0.4"), MACDSignal: d("0.5"), RSI: d("60"), UpperBand: d("110")},
			price:      "112",
			wantSignal: domain.SignalHold,
			wantReason: ReasonNoSetup,
		},
		{
			name:       "no buy while in position",
			snap:       indicators.Snapshot{Close: d("100"), FastEMA: d("101"), SlowEMA: d("99"), MACD: d("1"), MACDSignal: d("0.5"), RSI: d("60"), UpperBand: d("110")},
			price:      "100",
			pos:        open,
			wantSignal: domain.SignalHold,
			wantReason: ReasonHoldingPosition,
		},
		{
			name:       "stop hit",
			snap:       indicators.Snapshot{Close: d("96"), FastEMA: d("101"), SlowEMA: d("99"), MACD: d("1"), MACDSignal: d("0.5"), RSI: d("40"), UpperBand: d("110")},
			price:      "94.99",
			pos:        open,
			wantSignal: domain.SignalSell,
			wantReason: ReasonStopHit,
		},
		{
			name:       "price at the stop holds",
			snap:       indicators.Snapshot{Close: d("96"), FastEMA: d("101"), SlowEMA: d("99"), MACD: d("1"), MACDSignal: d("0.5"), RSI: d("40"), UpperBand: d("110")},
			price:      "95",
			pos:        open,
			wantSignal: domain.SignalHold,
			wantReason: ReasonHoldingPosition,
		},
		{
			name:       "trend reversal",
			snap:       indicators.Snapshot{Close: d("100"), FastEMA: d("98"), SlowEMA: d("99"), MACD: d("1"), MACDSignal: d("0.5"), RSI: d("50"), UpperBand: d("110")},
			price:      "100",
			pos:        open,
			wantSignal: domain.SignalSell,
			wantReason: ReasonTrendReversal,
		},
		{
			name:       "momentum fade while overbought",
			snap:       indicators.Snapshot{Close: d("100"), FastEMA: d("101"), SlowEMA: d("99"), MACD: d("0.4"), MACDSignal: d("0.5"), RSI: d("80"), UpperBand: d("110")},
			price:      "100",
			pos:        open,
			wantSignal: domain.SignalSell,
			wantReason: ReasonMomentumFade,
		},
		{
			name:       "momentum fade below ceiling holds",
			snap:       indicators.Snapshot{Close: d("100"), FastEMA: d("101"), SlowEMA: d("99"), MACD: d("0.4"), MACDSignal: d("0.5"), RSI: d("70"), UpperBand: d("110")},
			price:      "100",
			pos:        open,
			wantSignal: domain.SignalHold,
			wantReason: ReasonHoldingPosition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal, reason := evaluate(tt.snap, d(tt.price), tt.pos, ceiling)
			assert.Equal(t, tt.wantSignal, signal)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestDecideNotEnoughData(t *testing.T) {
	t.Run("short history", func(t *testing.T) {
		cs := candles(120, flat)
		e := NewEngine(Config{}, WithClock(clockAfter(cs)))

		_, err := e.Decide(cs, d("100"))
		require.ErrorIs(t, err, ErrNotEnoughData)
	})

	t.Run("forming candle is not counted", func(t *testing.T) {
		cs := candles(200, flat)
		// the clock sits inside the last bar
		now := cs[len(cs)-1].OpenTime.Add(time.Hour)
		e := NewEngine(Config{}, WithClock(func() time.Time { return now }))

		_, err := e.Decide(cs, d("100"))
		require.ErrorIs(t, err, ErrNotEnoughData)
	})
}

func TestDecideFlatMarketHolds(t *testing.T) {
	cs := candles(250, flat)
	e := NewEngine(Config{}, WithClock(clockAfter(cs)))

	dec, err := e.Decide(cs, d("100"))
	require.NoError(t, err)
	assert.Equal(t, domain.SignalHold, dec.Signal)
	assert.Equal(t, ReasonNoSetup, dec.Reason)
	assert.True(t, dec.TrailingStop.IsZero())
	assert.InDelta(t, 2.0, dec.Indicators.ATR.InexactFloat64(), 1e-6)
}

func TestTrailingStopRatchet(t *testing.T) {
	cs := candles(250, flat)
	rec := &positionRecorder{}
	e := NewEngine(Config{}, WithClock(clockAfter(cs)), WithPositionSaver(rec))

	p := d("100")
	entry, err := e.Decide(cs, p)
	require.NoError(t, err)
	atr := entry.Indicators.ATR

	e.OnEntryFilled(p, atr)
	pos := e.Position()
	require.True(t, pos.InPosition)
	assert.True(t, pos.TrailingStopPrice.Equal(p.Sub(atr.Mul(d("2")))))

	rise, err := e.Decide(cs, p.Add(d("5")))
	require.NoError(t, err)
	wantStop := p.Add(d("5")).Sub(rise.Indicators.ATR.Mul(d("2")))
	assert.True(t, rise.TrailingStop.Equal(wantStop), "stop %s, want %s", rise.TrailingStop, wantStop)
	assert.Equal(t, domain.SignalHold, rise.Signal)

	fall, err := e.Decide(cs, p.Add(d("1")))
	require.NoError(t, err)
	assert.True(t, fall.TrailingStop.Equal(wantStop), "stop moved down to %s", fall.TrailingStop)
	assert.True(t, e.Position().TrailingStopPrice.Equal(wantStop))

	// open + raise were persisted, the fall was not
	require.Len(t, rec.saved, 2)
	assert.True(t, rec.saved[1].TrailingStopPrice.Equal(wantStop))

	e.OnExitFilled()
	pos = e.Position()
	assert.False(t, pos.InPosition)
	assert.True(t, pos.TrailingStopPrice.IsZero())
	require.Len(t, rec.saved, 3)
}

func TestDecideDowntrendExits(t *testing.T) {
	cs := candles(250, func(i int) float64 { return 300 - float64(i)*0.5 })
	e := NewEngine(Config{}, WithClock(clockAfter(cs)))
	e.OnEntryFilled(d("150"), d("1"))

	// price far above the stop isolates the trend rule
	dec, err := e.Decide(cs, d("1000"))
	require.NoError(t, err)
	assert.Equal(t, domain.SignalSell, dec.Signal)
	assert.Equal(t, ReasonTrendReversal, dec.Reason)
	assert.True(t, dec.Indicators.FastEMA.LessThan(dec.Indicators.SlowEMA))
}

func TestReset(t *testing.T) {
	rec := &positionRecorder{}
	e := NewEngine(Config{}, WithPositionSaver(rec),
		WithPosition(domain.PositionState{InPosition: true, EntryPrice: d("10"), TrailingStopPrice: d("9")}))

	e.Reset()
	assert.False(t, e.Position().InPosition)
	require.Len(t, rec.saved, 1)

	// already flat, nothing to persist
	e.Reset()
	assert.Len(t, rec.saved, 1)
}
