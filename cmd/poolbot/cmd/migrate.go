package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the wallet and transaction tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		conf, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		db, err := openDatabase(cmd.Context(), conf)
		if err != nil {
			return err
		}
		defer db.Close()

		log.Info("schema is up to date", zap.String("dialect", string(db.Dialect())))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
