package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the execution loop only",
	Long: `Bot runs the trading loop for the configured pair until interrupted.

The pooled capital is read from the database when one is reachable; the
loop keeps trading without it.`,
	RunE: runBotCmd,
}

func init() {
	rootCmd.AddCommand(botCmd)
}

func runBotCmd(cmd *cobra.Command, _ []string) error {
	conf, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	db, err := openDatabase(ctx, conf)
	if err != nil {
		log.Warn("database unavailable, pooled capital will not be reported", zap.Error(err))
		db = nil
	} else {
		defer db.Close()
	}

	snapshots, err := openSnapshots(conf)
	if err != nil {
		return err
	}
	if snapshots != nil {
		defer snapshots.Close()
	}

	bot, err := newBot(conf, db, snapshots, log)
	if err != nil {
		log.Error("bot setup failed", zap.Error(err))
		return err
	}
	defer bot.Close()

	log.Info("starting execution loop",
		zap.String("platform", conf.Platform),
		zap.String("pair", conf.Pair.String()),
		zap.Duration("interval", conf.PollInterval))

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("execution loop stopped")
	return nil
}
