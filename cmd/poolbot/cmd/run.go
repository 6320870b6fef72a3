package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the API and the execution loop in one process",
	Long: `Run starts the HTTP API and the trading loop together. They share the
database and the equity snapshot log, so the stream endpoint follows the
loop live. Either one failing stops both.`,
	RunE: runAllCmd,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&apiAddr, "addr", "", "listen address, overrides api.addr")
}

func runAllCmd(cmd *cobra.Command, _ []string) error {
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

	snapshots, err := openSnapshots(conf)
	if err != nil {
		return err
	}
	if snapshots != nil {
		defer snapshots.Close()
	}

	server, err := newAPIServer(conf, db, snapshots, log)
	if err != nil {
		return err
	}
	bot, err := newBot(conf, db, snapshots, log)
	if err != nil {
		log.Error("bot setup failed", zap.Error(err))
		return err
	}
	defer bot.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		if err := bot.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}
