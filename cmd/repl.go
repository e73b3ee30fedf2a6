package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/josephlewis42/tacsh/core/eval"
	"github.com/josephlewis42/tacsh/core/value"
)

// replCmd starts the interactive shell explicitly; the bare root command
// does the same.
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start the interactive shell.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runRepl(cmd)
	},
}

func runRepl(cmd *cobra.Command) error {
	cfg := loadConfigOrDefault()

	ev, cleanup, err := newEvaluator(cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cleanup()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:       expandPrompt(cfg.Prompt, ev),
		HistoryFile:  cfg.HistoryPath(),
		AutoComplete: &wordCompleter{ev: ev},
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	errColor := color.New(color.FgRed)
	printer := &value.Printer{Colorize: true}

	for !ev.Exited() {
		rl.SetPrompt(expandPrompt(cfg.Prompt, ev))
		line, err := rl.Readline()
		switch {
		case err == io.EOF:
			return nil
		case err == readline.ErrInterrupt:
			continue
		case err != nil:
			return err
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		result, err := ev.EvalString(line)
		if err != nil {
			errColor.Fprintln(cmd.ErrOrStderr(), err.Error())
			if result == nil {
				continue
			}
		}
		for _, v := range result.Stack {
			if err := printer.Print(cmd.OutOrStdout(), v); err != nil {
				return err
			}
		}
	}
	return nil
}

// expandPrompt substitutes \w with the home-abbreviated working directory
// and \s with the stack depth.
func expandPrompt(prompt string, ev *eval.Evaluator) string {
	pwd := ev.Getwd()
	if home, err := ev.Env().UserHomeDir(); err == nil && strings.HasPrefix(pwd, home) {
		pwd = "~" + strings.TrimPrefix(pwd, home)
	}

	prompt = strings.ReplaceAll(prompt, `\w`, pwd)
	prompt = strings.ReplaceAll(prompt, `\s`, fmt.Sprintf("%d", ev.StackSize()))
	return prompt
}

// wordCompleter completes the word under the cursor against user
// definitions and builtins.
type wordCompleter struct {
	ev *eval.Evaluator
}

func (c *wordCompleter) Do(line []rune, pos int) ([][]rune, int) {
	start := pos
	for start > 0 && line[start-1] != ' ' && line[start-1] != '[' {
		start--
	}
	prefix := string(line[start:pos])

	var out [][]rune
	for _, name := range append(c.ev.DefinitionNames(), c.ev.BuiltinNames()...) {
		if strings.HasPrefix(name, prefix) {
			out = append(out, []rune(name[len(prefix):]))
		}
	}
	return out, len(prefix)
}

func init() {
	rootCmd.AddCommand(replCmd)
}
