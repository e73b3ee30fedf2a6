package cmd

import (
	"errors"
	"io"
	"io/fs"
	"log"

	"github.com/spf13/cobra"

	"github.com/josephlewis42/tacsh/core/config"
	"github.com/josephlewis42/tacsh/core/eval"
	"github.com/josephlewis42/tacsh/core/logger"
)

var cfgPath string

func loadConfig() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// loadConfigOrDefault falls back to the built-in defaults when no config
// file exists, so the shell works without running init first.
func loadConfigOrDefault() *config.Configuration {
	configuration, err := loadConfig()
	if err != nil {
		return config.Default()
	}
	return configuration
}

// newEvaluator builds an evaluator wired to the configured trace log.
// The returned cleanup flushes and closes the log.
func newEvaluator(cfg *config.Configuration, stdin io.Reader, stdout, stderr io.Writer) (*eval.Evaluator, func(), error) {
	record := logger.NewNopLogger()
	cleanup := func() {}

	if cfg.TraceLog != "" {
		fd, err := cfg.OpenTraceLog()
		if err != nil {
			return nil, nil, err
		}
		if cfg.CompressTraceLog {
			var closer io.Closer
			record, closer = logger.NewGzipJSONLinesLogRecorder(fd)
			cleanup = func() {
				closer.Close()
				fd.Close()
			}
		} else {
			record = logger.NewJSONLinesLogRecorder(fd)
			cleanup = func() { fd.Close() }
		}
	}

	ev := eval.New(cfg,
		eval.WithIO(stdin, stdout, stderr),
		eval.WithLogger(record.NewSession()))
	return ev, cleanup, nil
}

// rootCmd represents the base command; without a subcommand it starts
// the interactive shell.
var rootCmd = &cobra.Command{
	Use:   "tacsh",
	Short: "A stack-based command shell",
	Long: `tacsh is a postfix command shell: values push onto a stack and
commands pop their arguments back off of it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runRepl(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
}
