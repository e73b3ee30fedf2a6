package cmd

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephlewis42/tacsh/core/config"
	"github.com/josephlewis42/tacsh/core/eval"
)

func newReplEvaluator(t *testing.T) *eval.Evaluator {
	t.Helper()
	var out bytes.Buffer
	return eval.New(config.Default(), eval.WithIO(strings.NewReader(""), &out, &out))
}

func TestExpandPrompt(t *testing.T) {
	ev := newReplEvaluator(t)
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, ev.Env().Setenv("HOME", dir))
	_, err = ev.EvalString(fmt.Sprintf(`'%s' cd 'a' 'b'`, dir))
	require.NoError(t, err)

	assert.Equal(t, "~ (2)> ", expandPrompt(`\w (\s)> `, ev))
}

func TestExpandPromptOutsideHome(t *testing.T) {
	ev := newReplEvaluator(t)
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, ev.Env().Setenv("HOME", "/nonexistent-home"))
	_, err = ev.EvalString(fmt.Sprintf(`'%s' cd`, dir))
	require.NoError(t, err)

	assert.Equal(t, dir+"> ", expandPrompt(`\w> `, ev))
}

func TestWordCompleter(t *testing.T) {
	ev := newReplEvaluator(t)
	_, err := ev.EvalString(`[ 'x' ] :greet`)
	require.NoError(t, err)

	completer := &wordCompleter{ev: ev}

	t.Run("definitions", func(t *testing.T) {
		line := []rune("gr")
		suggestions, length := completer.Do(line, len(line))
		assert.Equal(t, 2, length)
		assert.Contains(t, suggestions, []rune("eet"))
	})

	t.Run("builtins", func(t *testing.T) {
		line := []rune("upp")
		suggestions, _ := completer.Do(line, len(line))
		assert.Contains(t, suggestions, []rune("er"))
	})

	t.Run("backtracks over block open", func(t *testing.T) {
		line := []rune("[gr")
		suggestions, length := completer.Do(line, len(line))
		assert.Equal(t, 2, length)
		assert.Contains(t, suggestions, []rune("eet"))
	})

	t.Run("no matches", func(t *testing.T) {
		line := []rune("zzzz")
		suggestions, _ := completer.Do(line, len(line))
		assert.Empty(t, suggestions)
	})
}
