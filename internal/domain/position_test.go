package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPositionStateRatchet(t *testing.T) {
	d := decimal.RequireFromString

	t.Run("stop only moves up", func(t *testing.T) {
		var pos PositionState
		pos.Open(d("100"), d("4"), time.Now())
		assert.True(t, pos.TrailingStopPrice.Equal(d("96")))

		// price rises to 105 with atr 1.5, stop = 105 - 3 = 102
		assert.True(t, pos.Ratchet(d("105"), d("3")))
		assert.True(t, pos.TrailingStopPrice.Equal(d("102")))

		// price falls to 101, candidate 98 must be ignored
		assert.False(t, pos.Ratchet(d("101"), d("3")))
		assert.True(t, pos.TrailingStopPrice.Equal(d("102")))

		// atr contraction while price flat does not relax the stop either
		assert.True(t, pos.Ratchet(d("105"), d("1")))
		assert.True(t, pos.TrailingStopPrice.Equal(d("104")))
		assert.False(t, pos.Ratchet(d("105"), d("6")))
		assert.True(t, pos.TrailingStopPrice.Equal(d("104")))
	})

	t.Run("no ratchet without position", func(t *testing.T) {
		var pos PositionState
		assert.False(t, pos.Ratchet(d("100"), d("1")))
		assert.True(t, pos.TrailingStopPrice.IsZero())
	})

	t.Run("close resets stop", func(t *testing.T) {
		var pos PositionState
		pos.Open(d("100"), d("2"), time.Now())
		pos.Close()
		assert.False(t, pos.InPosition)
		assert.True(t, pos.TrailingStopPrice.IsZero())
		assert.True(t, pos.EntryPrice.IsZero())
	})
}

func TestParsePair(t *testing.T) {
	p, err := ParsePair("btc_usdt")
	assert.NoError(t, err)
	assert.Equal(t, Pair{From: "BTC", To: "USDT"}, p)
	assert.Equal(t, "BTCUSDT", p.Symbol())
	assert.Equal(t, "BTC_USDT", p.String())

	_, err = ParsePair("BTCUSDT")
	assert.Error(t, err)
}
