package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketCandle single OHLCV candlestick.
type MarketCandle struct {
	OpenTime  time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	CloseTime time.Time
}

// ClosedCandles returns the prefix of candles whose close time is not after now.
// Exchanges return the still-forming bar last.
func ClosedCandles(candles []MarketCandle, now time.Time) []MarketCandle {
	end := len(candles)
	for end > 0 && candles[end-1].CloseTime.After(now) {
		end--
	}
	return candles[:end]
}
