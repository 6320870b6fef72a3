package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var apiAddr string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the wallet and pool HTTP API",
	Long: `API serves wallet balances, deposits, withdrawals, allocations and the
pooled capital. The bot equity stream answers 503 here; use "run" to serve
it next to the execution loop.

Example:
  poolbot api --addr :8080`,
	RunE: runAPICmd,
}

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.Flags().StringVar(&apiAddr, "addr", "", "listen address, overrides api.addr")
}

func runAPICmd(cmd *cobra.Command, _ []string) error {
	conf, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if apiAddr != "" {
		conf.API.Addr = apiAddr
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	db, err := openDatabase(ctx, conf)
	if err != nil {
		return err
	}
	defer db.Close()

	server, err := newStandaloneAPIServer(conf, db, log)
	if err != nil {
		log.Error("api setup failed", zap.Error(err))
		return err
	}
	return server.Start(ctx)
}
