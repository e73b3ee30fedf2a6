package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josephlewis42/tacsh/core/config"
	"github.com/josephlewis42/tacsh/core/eval"
)

// builtinsCmd lists the words the evaluator implements natively.
var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "List the shell's structured builtins.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		ev := eval.New(config.Default())
		for _, name := range ev.BuiltinNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(builtinsCmd)
}
