package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/josephlewis42/tacsh/core/config"
)

// initCmd creates the shell configuration
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the shell configuration in the current directory.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		logger := log.New(cmd.ErrOrStderr(), "", 0)

		return config.Initialize(".", logger)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
