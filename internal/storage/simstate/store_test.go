package simstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gapeva/poolbot/internal/domain"
)

func TestStore(t *testing.T) {
	pair := domain.Pair{From: "BTC", To: "USDT"}

	t.Run("missing file loads nil", func(t *testing.T) {
		s, err := NewStore(t.TempDir(), pair)
		require.NoError(t, err)

		state, err := s.Load()
		require.NoError(t, err)
		assert.Nil(t, state)
	})

	t.Run("save then load", func(t *testing.T) {
		s, err := NewStore(t.TempDir(), pair)
		require.NoError(t, err)

		at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
		require.NoError(t, s.Save(State{
			Pair:      pair.String(),
			Wallet:    map[string]string{"BTC": "0.5", "USDT": "1200.10"},
			Orders:    3,
			UpdatedAt: at,
		}))
		_, err = os.Stat(s.Path() + ".tmp")
		assert.True(t, os.IsNotExist(err))

		state, err := s.Load()
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, "0.5", state.Wallet["BTC"])
		assert.Equal(t, 3, state.Orders)
		assert.True(t, at.Equal(state.UpdatedAt))
	})

	t.Run("env overrides dir", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv(StateDirEnv, dir)

		s, err := NewStore("ignored", pair)
		require.NoError(t, err)
		assert.Equal(t, dir, filepath.Dir(s.Path()))
	})

	t.Run("corrupt file", func(t *testing.T) {
		s, err := NewStore(t.TempDir(), pair)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

		_, err = s.Load()
		assert.Error(t, err)
	})
}

