package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/config"
	"github.com/gapeva/poolbot/internal/logger"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "poolbot",
	Short: "Pooled-capital spot trading bot with a custodial wallet API",
	Long: `Poolbot trades a single spot pair on behalf of a pool of users.

It provides:
  - A trend-following execution loop guarded by a drawdown circuit breaker
  - A wallet ledger with Paystack-verified deposits and fee-bearing withdrawals
  - An HTTP API exposing wallets, the pooled capital and a live equity stream

Exchange and payment secrets are read from the environment or a .env file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with secrets, ignored when missing")
}

// bootstrap loads the configuration and builds the process logger.
func bootstrap() (config.Config, *zap.Logger, error) {
	conf, err := config.Load(cfgFile, envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(conf.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	zap.ReplaceGlobals(log)
	return conf, log, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
