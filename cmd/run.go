package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var commandText string

// runCmd executes script files or a -c command string non-interactively.
var runCmd = &cobra.Command{
	Use:   "run [FILE...]",
	Short: "Run script files, or a command given with -c.",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		if commandText == "" && len(args) == 0 {
			return fmt.Errorf("nothing to run: give script files or -c")
		}

		cfg := loadConfigOrDefault()
		ev, cleanup, err := newEvaluator(cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer cleanup()

		if commandText != "" {
			result, err := ev.EvalString(commandText)
			if err != nil {
				return err
			}
			if result.Output != "" {
				fmt.Fprintln(cmd.OutOrStdout(), result.Output)
			}
			if result.ExitCode != 0 {
				cleanup()
				os.Exit(result.ExitCode)
			}
			return nil
		}

		for _, path := range args {
			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			result, err := ev.EvalString(string(src))
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if result.Output != "" {
				fmt.Fprintln(cmd.OutOrStdout(), result.Output)
			}
			if ev.Exited() || result.ExitCode != 0 {
				cleanup()
				os.Exit(result.ExitCode)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&commandText, "command", "c", "", "Command text to evaluate instead of files.")
}
