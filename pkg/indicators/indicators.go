// Package indicators provides technical analysis indicators (EMA, RSI, MACD, ATR, Bollinger Bands).
package indicators

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/shopspring/decimal"
)

// MACD periods.
const (
	macdShort  = 12
	macdLong   = 26
	macdSignal = 9
)

// PriceData represents OHLC (open, high, low, close) price data.
type PriceData struct {
	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal
}

// Params configures Latest.
type Params struct {
	FastEMA   int
	SlowEMA   int
	RSI       int
	ATR       int
	Bollinger int
}

// DefaultParams EMA 50/200, RSI 14, ATR 14, Bollinger 20.
func DefaultParams() Params {
	return Params{FastEMA: 50, SlowEMA: 200, RSI: 14, ATR: 14, Bollinger: 20}
}

// MinBars returns the number of bars needed to produce every indicator.
func (p Params) MinBars() int {
	need := macdLong + macdSignal - 1
	for _, n := range []int{p.FastEMA, p.SlowEMA, p.RSI + 1, p.ATR + 1, p.Bollinger} {
		if n > need {
			need = n
		}
	}
	return need
}

// Snapshot holds the indicator values at the last bar.
type Snapshot struct {
	Close      decimal.Decimal
	FastEMA    decimal.Decimal
	SlowEMA    decimal.Decimal
	RSI        decimal.Decimal
	MACD       decimal.Decimal
	MACDSignal decimal.Decimal
	ATR        decimal.Decimal
	UpperBand  decimal.Decimal
}

// CalculateEMA calculates the Exponential Moving Average for the given period.
func CalculateEMA(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if len(closes) < period {
		return nil, fmt.Errorf("not enough data points for EMA%d: need %d, got %d", period, period, len(closes))
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	out := ema.Compute(helper.SliceToChan(decimalsToFloat64(closes)))

	return float64ToDecimals(helper.ChanToSlice(out)), nil
}

// CalculateMACD calculates MACD line and signal line values (12/26/9).
func CalculateMACD(closes []decimal.Decimal) (line, signal []decimal.Decimal, err error) {
	need := macdLong + macdSignal - 1
	if len(closes) < need {
		return nil, nil, fmt.Errorf("not enough data points for MACD: need %d, got %d", need, len(closes))
	}

	macd := trend.NewMacd[float64]()
	macdChan, signalChan := macd.Compute(helper.SliceToChan(decimalsToFloat64(closes)))

	// both outputs share one pipeline and must be consumed concurrently
	signalDone := make(chan []float64, 1)
	go func() {
		signalDone <- helper.ChanToSlice(signalChan)
	}()
	lineFloat := helper.ChanToSlice(macdChan)
	signalFloat := <-signalDone

	return float64ToDecimals(lineFloat), float64ToDecimals(signalFloat), nil
}

// CalculateRSI calculates the Relative Strength Index for the given period.
func CalculateRSI(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if len(closes) < period+1 {
		return nil, fmt.Errorf("not enough data points for RSI: need %d, got %d", period+1, len(closes))
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	out := rsi.Compute(helper.SliceToChan(decimalsToFloat64(closes)))

	// a flat window has no gains and no losses; report it as neutral
	return float64ToDecimalsOr(helper.ChanToSlice(out), 50), nil
}

// CalculateATR calculates the Average True Range for the given period.
func CalculateATR(priceData []PriceData, period int) ([]decimal.Decimal, error) {
	if len(priceData) < period+1 {
		return nil, fmt.Errorf("not enough data points for ATR: need %d, got %d", period+1, len(priceData))
	}

	highs := make([]float64, len(priceData))
	lows := make([]float64, len(priceData))
	closes := make([]float64, len(priceData))

	for i, pd := range priceData {
		highs[i], _ = pd.High.Float64()
		lows[i], _ = pd.Low.Float64()
		closes[i], _ = pd.Close.Float64()
	}

	atr := volatility.NewAtrWithPeriod[float64](period)
	out := atr.Compute(helper.SliceToChan(highs), helper.SliceToChan(lows), helper.SliceToChan(closes))

	return float64ToDecimals(helper.ChanToSlice(out)), nil
}

// CalculateBollingerUpper calculates the upper Bollinger band (period, 2 standard deviations).
func CalculateBollingerUpper(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if len(closes) < period {
		return nil, fmt.Errorf("not enough data points for Bollinger bands: need %d, got %d", period, len(closes))
	}

	bb := volatility.NewBollingerBands[float64]()
	bb.Period = period
	upper, middle, lower := bb.Compute(helper.SliceToChan(decimalsToFloat64(closes)))

	// middle and lower are drained so the shared pipeline is not blocked
	done := make(chan struct{}, 2)
	for _, c := range []<-chan float64{middle, lower} {
		go func(c <-chan float64) {
			for range c {
			}
			done <- struct{}{}
		}(c)
	}
	upperFloat := helper.ChanToSlice(upper)
	<-done
	<-done

	return float64ToDecimals(upperFloat), nil
}

// Latest computes all indicators and returns their values at the last bar.
func Latest(priceData []PriceData, p Params) (Snapshot, error) {
	if need := p.MinBars(); len(priceData) < need {
		return Snapshot{}, fmt.Errorf("not enough data points: need at least %d, got %d", need, len(priceData))
	}

	closes := make([]decimal.Decimal, len(priceData))
	for i, pd := range priceData {
		closes[i] = pd.Close
	}

	fast, err := CalculateEMA(closes, p.FastEMA)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to calculate EMA%d: %w", p.FastEMA, err)
	}
	slow, err := CalculateEMA(closes, p.SlowEMA)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to calculate EMA%d: %w", p.SlowEMA, err)
	}
	rsi, err := CalculateRSI(closes, p.RSI)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to calculate RSI%d: %w", p.RSI, err)
	}
	macdLine, macdSig, err := CalculateMACD(closes)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to calculate MACD: %w", err)
	}
	atr, err := CalculateATR(priceData, p.ATR)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to calculate ATR%d: %w", p.ATR, err)
	}
	upper, err := CalculateBollingerUpper(closes, p.Bollinger)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to calculate Bollinger bands: %w", err)
	}

	series := [][]decimal.Decimal{fast, slow, rsi, macdLine, macdSig, atr, upper}
	for _, s := range series {
		if len(s) == 0 {
			return Snapshot{}, fmt.Errorf("indicator warmup exceeds %d bars", len(priceData))
		}
	}

	return Snapshot{
		Close:      closes[len(closes)-1],
		FastEMA:    last(fast),
		SlowEMA:    last(slow),
		RSI:        last(rsi),
		MACD:       last(macdLine),
		MACDSignal: last(macdSig),
		ATR:        last(atr),
		UpperBand:  last(upper),
	}, nil
}

func last(s []decimal.Decimal) decimal.Decimal {
	return s[len(s)-1]
}

// decimalsToFloat64 converts a slice of decimal.Decimal to []float64.
func decimalsToFloat64(decimals []decimal.Decimal) []float64 {
	result := make([]float64, len(decimals))
	for i, d := range decimals {
		result[i], _ = d.Float64()
	}
	return result
}

// float64ToDecimals converts a slice of float64 to []decimal.Decimal.
func float64ToDecimals(floats []float64) []decimal.Decimal {
	return float64ToDecimalsOr(floats, 0)
}

// float64ToDecimalsOr converts floats, replacing NaN with fallback and clamping infinities.
func float64ToDecimalsOr(floats []float64, fallback float64) []decimal.Decimal {
	result := make([]decimal.Decimal, len(floats))
	for i, f := range floats {
		switch {
		case math.IsNaN(f):
			f = fallback
		case math.IsInf(f, 1):
			f = math.MaxFloat32
		case math.IsInf(f, -1):
			f = -math.MaxFloat32
		}
		result[i] = decimal.NewFromFloat(f)
	}
	return result
}
