package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gapeva/poolbot/internal/setup"
)

var setupOut string

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive wizard that writes a config file",
	RunE: func(_ *cobra.Command, _ []string) error {
		return setup.RunTUI(setupOut)
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
	setupCmd.Flags().StringVarP(&setupOut, "out", "o", setup.DefaultConfigFile, "where to write the generated config")
}
