package pricer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gapeva/poolbot/internal/domain"
)

func TestParsePrice(t *testing.T) {
	pair := domain.Pair{From: "BTC", To: "USDT"}

	price, err := parsePrice("binance", pair, "64250.12000000")
	require.NoError(t, err)
	assert.Equal(t, "64250.12", price.String())

	for _, raw := range []string{"0", "0.00000000", "-1", "", "n/a"} {
		_, err := parsePrice("bybit", pair, raw)
		assert.Error(t, err, "raw %q", raw)
	}
}
