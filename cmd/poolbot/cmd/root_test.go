package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcommandsRegistered(t *testing.T) {
	for _, name := range []string{"bot", "api", "run", "migrate", "setup", "version"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}

	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.Equal(t, ".env", rootCmd.PersistentFlags().Lookup("env-file").DefValue)
	assert.NotNil(t, apiCmd.Flags().Lookup("addr"))
	assert.NotNil(t, runCmd.Flags().Lookup("addr"))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, Execute())
	assert.Equal(t, "poolbot dev\n", out.String())
}
