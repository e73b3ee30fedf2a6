package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/josephlewis42/tacsh/core/logger"
)

var reportJSON bool

var logsCmd = &cobra.Command{
	Use:     "logs",
	Aliases: []string{"log"},
	Short:   "Explore the shell's trace logs.",
}

// reportCmd summarizes a trace log into usage counts.
var reportCmd = &cobra.Command{
	Use:   "report [FILE]",
	Short: "Summarize command usage from a trace log.",
	Long: `Reads a trace log (plain or gzip-compressed JSON lines) and prints
command counts, unknown words, error classes, and job activity. With no
argument the configured trace log is read.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		var source *os.File
		if len(args) == 1 {
			fd, err := os.Open(args[0])
			if err != nil {
				return err
			}
			source = fd
		}

		report := logger.NewUsageReport()
		if source != nil {
			defer source.Close()
			if err := logger.ReadJSONLinesLog(source, report.Update); err != nil {
				return err
			}
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fd, err := cfg.ReadTraceLog()
			if err != nil {
				return err
			}
			defer fd.Close()
			if err := logger.ReadJSONLinesLog(fd, report.Update); err != nil {
				return err
			}
		}

		if reportJSON {
			return report.WriteJSON(cmd.OutOrStdout())
		}
		return report.WriteText(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(reportCmd)

	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Write the report as JSON.")
}
