package eval

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephlewis42/tacsh/core/config"
	"github.com/josephlewis42/tacsh/core/value"
)

func TestInteractiveExec(t *testing.T) {
	ev, out := newTestEvaluator(t)
	result, err := ev.EvalString(`'hi' echo`)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out.String())
	assert.Empty(t, result.Stack)
	assert.Equal(t, 0, result.ExitCode)
}

func TestCapturedExec(t *testing.T) {
	ev, out := newTestEvaluator(t)

	// upper consumes the output, so echo runs captured.
	result, err := ev.EvalString(`'hello' echo upper`)
	require.NoError(t, err)
	assert.Empty(t, out.String())
	assert.Equal(t, []string{"HELLO"}, stackStrings(result.Stack))
}

func TestExitCodeFromProcess(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	result, err := ev.EvalString(`'--bogus-flag-xyz' 'no/such/dir' ls`)
	require.NoError(t, err)
	assert.NotEqual(t, 0, result.ExitCode)
}

func TestPipe(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	result, err := ev.EvalString(`'hi' [ cat ] |`)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, stackStrings(result.Stack))
	assert.Equal(t, 0, result.ExitCode)
}

func TestPipestatus(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	result, err := ev.EvalString(`'hi' [ cat ] | [ cat ] | pipestatus`)
	require.NoError(t, err)
	require.Len(t, result.Stack, 2)
	assert.Equal(t, "0\n0", result.Stack[1].String())
}

func TestRedirectOut(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	dir := t.TempDir()
	_, err := ev.EvalString(fmt.Sprintf(`'%s' cd`, dir))
	require.NoError(t, err)

	_, err = ev.EvalString(`[ 'hi' echo ] [ out.txt ] >`)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(data))
}

func TestRedirectAppend(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	dir := t.TempDir()
	_, err := ev.EvalString(fmt.Sprintf(`'%s' cd`, dir))
	require.NoError(t, err)

	_, err = ev.EvalString(`[ 'one' echo ] [ log.txt ] >> [ 'two' echo ] [ log.txt ] >>`)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}

func TestRedirectFanOut(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	dir := t.TempDir()
	_, err := ev.EvalString(fmt.Sprintf(`'%s' cd`, dir))
	require.NoError(t, err)

	_, err = ev.EvalString(`[ 'hi' echo ] [ a.txt b.txt ] >`)
	require.NoError(t, err)

	for _, name := range []string{"a.txt", "b.txt"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, "hi\n", string(data))
	}
}

func TestRedirectIn(t *testing.T) {
	ev, out := newTestEvaluator(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.txt"), []byte("from-file\n"), 0644))
	_, err := ev.EvalString(fmt.Sprintf(`'%s' cd`, dir))
	require.NoError(t, err)

	_, err = ev.EvalString(`[ cat ] [ in.txt ] <`)
	require.NoError(t, err)
	assert.Equal(t, "from-file\n", out.String())
}

func TestRedirectInRejectsMultipleFiles(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0644))
	}
	_, err := ev.EvalString(fmt.Sprintf(`'%s' cd`, dir))
	require.NoError(t, err)

	_, err = ev.EvalString(`[ cat ] [ a.txt b.txt ] <`)
	assert.Error(t, err, "a second input file cannot be silently dropped")
}

func TestStderrToStdout(t *testing.T) {
	var stdout, stderr bytes.Buffer
	ev := New(config.Default(), WithIO(strings.NewReader(""), &stdout, &stderr))

	_, err := ev.EvalString(`[ 'no-such-file-xyz' ls ] 2>&1`)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "no-such-file-xyz")
	assert.Empty(t, stderr.String())
}

func TestAndOr(t *testing.T) {
	t.Run("and skips on failure", func(t *testing.T) {
		ev, _ := newTestEvaluator(t)
		result, err := ev.EvalString(`[ false ] [ 'x' ] &&`)
		require.NoError(t, err)
		assert.Empty(t, result.Stack)
		assert.Equal(t, 1, result.ExitCode)
	})

	t.Run("and runs on success", func(t *testing.T) {
		ev, _ := newTestEvaluator(t)
		result, err := ev.EvalString(`[ true ] [ 'ok' ] &&`)
		require.NoError(t, err)
		assert.Equal(t, []string{"ok"}, stackStrings(result.Stack))
	})

	t.Run("or runs on failure", func(t *testing.T) {
		ev, _ := newTestEvaluator(t)
		result, err := ev.EvalString(`[ false ] [ 'fallback' ] ||`)
		require.NoError(t, err)
		assert.Equal(t, []string{"fallback"}, stackStrings(result.Stack))
	})

	t.Run("or skips on success", func(t *testing.T) {
		ev, _ := newTestEvaluator(t)
		result, err := ev.EvalString(`[ true ] [ 'fallback' ] ||`)
		require.NoError(t, err)
		assert.Empty(t, result.Stack)
		assert.Equal(t, 0, result.ExitCode)
	})
}

func TestBackgroundAndWait(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	result, err := ev.EvalString(`[ sleep 0.1 ] & wait`)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, 1, ev.JobCount())

	result, err = ev.EvalString(`jobs`)
	require.NoError(t, err)
	require.Len(t, result.Stack, 1)
	tbl, ok := result.Stack[0].(*value.Table)
	require.True(t, ok)
	require.Len(t, tbl.Rows, 1)

	statusCol := -1
	for i, col := range tbl.Cols {
		if col == "status" {
			statusCol = i
		}
	}
	require.NotEqual(t, -1, statusCol)
	assert.Equal(t, "Done(0)", tbl.Rows[0][statusCol].String())
}

func TestWaitReportsLastExitCode(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	result, err := ev.EvalString(`[ sh -c 'exit 3' ] & wait`)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
}

func TestParallel(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	result, err := ev.EvalString(`[ echo a ] [ echo b ] 2 parallel`)
	require.NoError(t, err)

	// Output joins in block order regardless of completion order.
	assert.Equal(t, []string{"a\nb"}, stackStrings(result.Stack))
	assert.Equal(t, 0, result.ExitCode)
}

func TestParallelPropagatesFailure(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	result, err := ev.EvalString(`[ echo a ] [ sh -c 'exit 7' ] 2 parallel`)
	require.NoError(t, err)
	assert.Equal(t, 7, result.ExitCode)
}

func TestSubst(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	result, err := ev.EvalString(`[ echo hi ] subst`)
	require.NoError(t, err)

	require.Len(t, result.Stack, 1)
	path := result.Stack[0].String()
	t.Cleanup(func() { os.Remove(path) })

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(data))
}

func TestFifo(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	result, err := ev.EvalString(`[ echo hi ] fifo`)
	require.NoError(t, err)

	require.Len(t, result.Stack, 1)
	path := result.Stack[0].String()
	t.Cleanup(func() { os.Remove(path) })

	// Opening the read end unblocks the writer side.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(data))
}

func TestFork(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	result, err := ev.EvalString(`[ sleep 0.1 ] [ sleep 0.1 ] 2 fork wait`)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, 2, ev.JobCount())
}

func TestTimeoutKillsSlowCommand(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	result, err := ev.EvalString(`0.2 [ sleep 5 ] timeout`)
	require.NoError(t, err)
	assert.Equal(t, 124, result.ExitCode)
	assert.Empty(t, result.Stack)
}

func TestTimeoutPassesFastCommand(t *testing.T) {
	ev, out := newTestEvaluator(t)
	result, err := ev.EvalString(`5 [ echo fast ] timeout`)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "fast\n", out.String())
}

func TestGlobExpansion(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	dir := t.TempDir()
	for _, name := range []string{"a.log", "b.log", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	_, err := ev.EvalString(fmt.Sprintf(`'%s' cd`, dir))
	require.NoError(t, err)

	assert.Equal(t, []string{"a.log", "b.log"}, ev.expandArg("*.log"))
	assert.Equal(t, []string{"*.zip"}, ev.expandArg("*.zip"), "no matches stay literal")
}

func TestTildeExpansion(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	require.NoError(t, ev.Env().Setenv("HOME", "/home/probe"))

	assert.Equal(t, []string{"/home/probe/x"}, ev.expandArg("~/x"))
	assert.Equal(t, []string{"/home/probe"}, ev.expandArg("~"))
}

func TestUnknownCommandPushesLiteral(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	result, err := ev.EvalString(`definitely-not-a-command-xyz`)
	require.NoError(t, err)
	assert.Equal(t, []string{"definitely-not-a-command-xyz"}, stackStrings(result.Stack))
}
