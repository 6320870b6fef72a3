package enginestate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gapeva/poolbot/internal/domain"
)

func TestWALStore(t *testing.T) {
	dir := t.TempDir()
	pair := domain.Pair{From: "BTC", To: "USDT"}

	store, err := NewWALStore(dir, pair)
	require.NoError(t, err)

	state, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, state.Risk)
	assert.Nil(t, state.Position)

	frozenAt := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveRisk(domain.RiskState{HighWaterMark: decimal.NewFromInt(1000)}))
	require.NoError(t, store.SavePosition(domain.PositionState{
		InPosition:        true,
		EntryPrice:        decimal.NewFromInt(50000),
		TrailingStopPrice: decimal.NewFromInt(49000),
	}))
	require.NoError(t, store.SaveRisk(domain.RiskState{Frozen: true, FreezeStartedAt: frozenAt, LiquidationPending: true}))
	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir, pair)
	require.NoError(t, err)
	defer reopened.Close()

	state, err = reopened.Load()
	require.NoError(t, err)
	require.NotNil(t, state.Risk)
	require.NotNil(t, state.Position)

	assert.True(t, state.Risk.Frozen)
	assert.True(t, state.Risk.LiquidationPending)
	assert.True(t, frozenAt.Equal(state.Risk.FreezeStartedAt))
	assert.True(t, state.Risk.HighWaterMark.IsZero())

	assert.True(t, state.Position.InPosition)
	assert.True(t, state.Position.TrailingStopPrice.Equal(decimal.NewFromInt(49000)))

	t.Run("pairs are isolated", func(t *testing.T) {
		other, err := NewWALStore(dir, domain.Pair{From: "ETH", To: "USDT"})
		require.NoError(t, err)
		defer other.Close()

		state, err := other.Load()
		require.NoError(t, err)
		assert.Nil(t, state.Risk)
	})
}
