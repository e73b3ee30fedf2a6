package eval

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/josephlewis42/tacsh/core/lang"
	"github.com/josephlewis42/tacsh/core/logger"
	"github.com/josephlewis42/tacsh/core/value"
)

// popArgs pops command arguments in LIFO order until a block, marker, or
// the stack bottom is reached. Nil values are skipped, markers are
// consumed, and blocks stay for downstream operators. The returned
// arguments are in original (bottom-to-top) order, tilde- and
// glob-expanded.
func (ev *Evaluator) popArgs() []string {
	var reversed []string
	for {
		top, ok := ev.Peek()
		if !ok || top.Kind() == value.KindBlock {
			break
		}
		v, _ := ev.Pop()
		if v.Kind() == value.KindMarker {
			break
		}
		if v.Kind() == value.KindNil {
			continue
		}
		reversed = append(reversed, v.String())
	}

	var args []string
	for i := len(reversed) - 1; i >= 0; i-- {
		args = append(args, ev.expandArg(reversed[i])...)
	}
	return args
}

// expandArg applies tilde and glob expansion to one argument. Patterns
// with no matches stay literal.
func (ev *Evaluator) expandArg(arg string) []string {
	if arg == "~" || strings.HasPrefix(arg, "~/") {
		if home := ev.env.Getenv("HOME"); home != "" {
			arg = home + arg[1:]
		}
	}

	if !strings.ContainsAny(arg, "*?[") {
		return []string{arg}
	}

	pattern := arg
	prefix := ""
	if !filepath.IsAbs(pattern) {
		prefix = ev.cwd + string(filepath.Separator)
		pattern = filepath.Join(ev.cwd, pattern)
	}

	matches, err := afero.Glob(ev.fs, pattern)
	if err != nil || len(matches) == 0 {
		return []string{arg}
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimPrefix(m, prefix))
	}
	return out
}

// command builds an exec.Cmd bound to the evaluator's working directory
// and owned environment.
func (ev *Evaluator) command(path string, argv []string) *exec.Cmd {
	cmd := &exec.Cmd{
		Path: path,
		Args: argv,
		Dir:  ev.cwd,
		Env:  ev.env.Environ(),
	}
	return cmd
}

// execCommand runs a resolved OS executable, popping its arguments off
// the stack, in either captured or interactive mode.
func (ev *Evaluator) execCommand(word, path string, capture bool) error {
	argv := append([]string{word}, ev.popArgs()...)

	code, out, err := ev.spawn(path, argv, capture)
	if err != nil {
		return err
	}

	ev.lastExit = code
	ev.pipeStatus = []int{code}
	if capture {
		ev.Push(value.Output(strings.TrimRight(out, "\n")))
	}

	ev.log.Record(&logger.LogEntry{CommandRun: &logger.CommandRun{
		Command:  argv,
		Captured: capture,
		ExitCode: code,
	}})
	return nil
}

// spawn runs argv with the evaluator's current IO context. In captured
// mode stdout is piped and decoded as UTF-8 lossily; in interactive mode
// the process inherits the evaluator's streams.
func (ev *Evaluator) spawn(path string, argv []string, capture bool) (int, string, error) {
	cmd := ev.command(path, argv)
	cmd.Stdin = ev.stdin
	cmd.Stderr = ev.stderr

	var buf bytes.Buffer
	if capture {
		cmd.Stdout = &buf
		if ev.stderrToStdout {
			cmd.Stderr = &buf
		}
	} else {
		cmd.Stdout = ev.stdout
		if ev.stderrToStdout {
			cmd.Stderr = ev.stdout
		}
	}

	code, err := runCmd(argv[0], cmd)
	if err != nil {
		return 0, "", err
	}
	return code, strings.ToValidUTF8(buf.String(), "�"), nil
}

// runCmd starts and waits for a command, translating exit statuses.
func runCmd(name string, cmd *exec.Cmd) (int, error) {
	err := cmd.Run()
	switch err := err.(type) {
	case nil:
		return 0, nil
	case *exec.ExitError:
		return err.ExitCode(), nil
	default:
		return 0, execErrf(name, "%v", err)
	}
}

// evalPipe pops a consumer block and a producer value and feeds the
// producer's text into the consumer's stdin, capturing consumer output.
func (ev *Evaluator) evalPipe() error {
	consumer, err := ev.popBlock("|")
	if err != nil {
		return err
	}
	producer, err := ev.popFor("|")
	if err != nil {
		return err
	}

	text := producer.String()
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	savedStdin := ev.stdin
	upstream := ev.pipeStatus
	ev.stdin = strings.NewReader(text)
	ev.pipeStatus = nil

	_, runErr := ev.run(consumer.Body, false, true)

	ev.stdin = savedStdin
	ev.pipeStatus = append(upstream, ev.pipeStatus...)
	return runErr
}

// filenamesFromBlock materializes a redirect target block into file
// names; only words, strings, and variable references are allowed.
func (ev *Evaluator) filenamesFromBlock(op string, block value.Block) ([]string, error) {
	argv, err := ev.argvFromExprs(op, block.Body)
	if err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, execErrf(op, "no file name given")
	}

	for i, name := range argv {
		if !filepath.IsAbs(name) {
			argv[i] = filepath.Join(ev.cwd, name)
		}
	}
	return argv, nil
}

// argvFromExprs materializes a simple-command block into argv text.
func (ev *Evaluator) argvFromExprs(op string, body []lang.Expr) ([]string, error) {
	var out []string
	for _, e := range body {
		switch e.Kind {
		case lang.KindWord:
			out = append(out, e.Text)
		case lang.KindQuoted:
			text := e.Text
			if e.Interp {
				text = ev.interpolate(text)
			}
			out = append(out, text)
		case lang.KindVar:
			out = append(out, ev.env.Getenv(e.Text))
		default:
			return nil, execErrf(op, "expected a simple command, found %s", e)
		}
	}
	return out, nil
}

// evalRedirect routes a command block's stdout/stderr to or from named
// files; multiple output targets fan the same stream out to each.
func (ev *Evaluator) evalRedirect(op lang.Op) error {
	name := op.String()

	if op == lang.OpRedirErrToOut {
		block, err := ev.popBlock(name)
		if err != nil {
			return err
		}
		saved := ev.stderrToStdout
		ev.stderrToStdout = true
		savedStderr := ev.stderr
		ev.stderr = ev.stdout
		_, runErr := ev.run(block.Body, false, false)
		ev.stderrToStdout = saved
		ev.stderr = savedStderr
		return runErr
	}

	fileBlock, err := ev.popBlock(name)
	if err != nil {
		return err
	}
	cmdBlock, err := ev.popBlock(name)
	if err != nil {
		return err
	}
	names, err := ev.filenamesFromBlock(name, fileBlock)
	if err != nil {
		return err
	}

	if op == lang.OpRedirIn {
		if len(names) > 1 {
			return execErrf(name, "expected one input file, got %d", len(names))
		}
		fd, err := ev.fs.Open(names[0])
		if err != nil {
			return ioErr(name, err)
		}
		defer fd.Close()

		saved := ev.stdin
		ev.stdin = fd
		_, runErr := ev.run(cmdBlock.Body, false, false)
		ev.stdin = saved
		return runErr
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if op == lang.OpRedirAppend || op == lang.OpRedirErrAppend {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	var writers []io.Writer
	var files []afero.File
	for _, target := range names {
		fd, err := ev.fs.OpenFile(target, flags, 0644)
		if err != nil {
			for _, open := range files {
				open.Close()
			}
			return ioErr(name, err)
		}
		files = append(files, fd)
		writers = append(writers, fd)
	}
	defer func() {
		for _, fd := range files {
			fd.Close()
		}
	}()
	sink := io.MultiWriter(writers...)

	savedOut, savedErr := ev.stdout, ev.stderr
	switch op {
	case lang.OpRedirOut, lang.OpRedirAppend:
		ev.stdout = sink
	case lang.OpRedirErr, lang.OpRedirErrAppend:
		ev.stderr = sink
	case lang.OpRedirBoth:
		ev.stdout = sink
		ev.stderr = sink
	}

	_, runErr := ev.run(cmdBlock.Body, false, false)
	ev.stdout, ev.stderr = savedOut, savedErr
	return runErr
}

// simpleCommand resolves a block to an executable argv.
func (ev *Evaluator) simpleCommand(op string, block value.Block) (string, []string, error) {
	argv, err := ev.argvFromExprs(op, block.Body)
	if err != nil {
		return "", nil, err
	}
	if len(argv) == 0 {
		return "", nil, execErrf(op, "empty command block")
	}

	var expanded []string
	expanded = append(expanded, argv[0])
	for _, arg := range argv[1:] {
		expanded = append(expanded, ev.expandArg(arg)...)
	}

	path := ev.classifier.findExecutable(expanded[0])
	if path == "" {
		return "", nil, execErrf(expanded[0], "command not found")
	}
	return path, expanded, nil
}

// evalBackground spawns a detached process in its own process group and
// records it as a job; execution continues immediately with exit code 0.
func (ev *Evaluator) evalBackground() error {
	block, err := ev.popBlock("&")
	if err != nil {
		return err
	}
	path, argv, err := ev.simpleCommand("&", block)
	if err != nil {
		return err
	}

	cmd := ev.command(path, argv)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return execErrf(argv[0], "%v", err)
	}

	job := ev.jobs.add(strings.Join(argv, " "), cmd)
	ev.log.Record(&logger.LogEntry{JobEvent: &logger.JobEvent{
		JobID:  job.ID,
		Pid:    job.Pid,
		Status: job.Status.String(),
		Name:   job.Name,
	}})

	ev.lastExit = 0
	return nil
}

// evalAndOr pops the right then left blocks; the right block runs only
// when the left's exit code matches the operator.
func (ev *Evaluator) evalAndOr(and bool, capture bool) (flow, error) {
	name := "||"
	if and {
		name = "&&"
	}

	right, err := ev.popBlock(name)
	if err != nil {
		return flowNext, err
	}
	left, err := ev.popBlock(name)
	if err != nil {
		return flowNext, err
	}

	fl, err := ev.run(left.Body, false, true)
	if err != nil || fl != flowNext {
		return fl, err
	}

	succeeded := ev.lastExit == 0
	if succeeded != and {
		return flowNext, nil
	}
	return ev.run(right.Body, false, capture)
}

// evalParallel runs N command blocks concurrently and joins their
// captured output in block order.
func (ev *Evaluator) evalParallel() error {
	count, err := ev.popNumber("parallel")
	if err != nil {
		return err
	}

	type resolved struct {
		path string
		argv []string
	}

	n := int(count)
	commands := make([]resolved, 0, n)
	for i := 0; i < n; i++ {
		block, err := ev.popBlock("parallel")
		if err != nil {
			return err
		}
		path, argv, err := ev.simpleCommand("parallel", block)
		if err != nil {
			return err
		}
		commands = append(commands, resolved{path: path, argv: argv})
	}
	// Popped LIFO; restore block order.
	for i, j := 0, len(commands)-1; i < j; i, j = i+1, j-1 {
		commands[i], commands[j] = commands[j], commands[i]
	}

	environ := ev.env.Environ()
	outputs := make([]string, len(commands))
	codes := make([]int, len(commands))

	var wg sync.WaitGroup
	for i := range commands {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var buf bytes.Buffer
			cmd := &exec.Cmd{
				Path:   commands[i].path,
				Args:   commands[i].argv,
				Dir:    ev.cwd,
				Env:    environ,
				Stdout: &buf,
				Stderr: ev.stderr,
			}
			code, err := runCmd(commands[i].argv[0], cmd)
			if err != nil {
				code = 127
			}
			codes[i] = code
			outputs[i] = strings.TrimRight(strings.ToValidUTF8(buf.String(), "�"), "\n")
		}(i)
	}
	wg.Wait()

	ev.lastExit = 0
	for _, code := range codes {
		if code != 0 {
			ev.lastExit = code
			break
		}
	}
	ev.pipeStatus = codes

	var parts []string
	for _, out := range outputs {
		if out != "" {
			parts = append(parts, out)
		}
	}
	ev.Push(value.Output(strings.Join(parts, "\n")))
	return nil
}

// evalFork backgrounds N blocks popped off the stack.
func (ev *Evaluator) evalFork() error {
	count, err := ev.popNumber("fork")
	if err != nil {
		return err
	}

	n := int(count)
	blocks := make([]value.Block, 0, n)
	for i := 0; i < n; i++ {
		block, err := ev.popBlock("fork")
		if err != nil {
			return err
		}
		blocks = append(blocks, block)
	}

	// Popped LIFO; launch in block order.
	for i := len(blocks) - 1; i >= 0; i-- {
		ev.Push(blocks[i])
		if err := ev.evalBackground(); err != nil {
			return err
		}
	}
	return nil
}

// evalSubst captures a block's stdout into a uniquely named temp file
// and pushes its path.
func (ev *Evaluator) evalSubst() error {
	block, err := ev.popBlock("subst")
	if err != nil {
		return err
	}
	path, argv, err := ev.simpleCommand("subst", block)
	if err != nil {
		return err
	}

	fd, err := afero.TempFile(ev.fs, "", "tacsh-subst-")
	if err != nil {
		return ioErr("subst", err)
	}
	defer fd.Close()

	cmd := ev.command(path, argv)
	cmd.Stdin = ev.stdin
	cmd.Stdout = fd
	cmd.Stderr = ev.stderr
	code, err := runCmd(argv[0], cmd)
	if err != nil {
		return err
	}

	ev.lastExit = code
	ev.Push(value.Literal(fd.Name()))
	return nil
}

// evalFifo creates a named pipe and streams the block's output into it
// from a spawned thread, for consumers expecting a streaming file.
func (ev *Evaluator) evalFifo() error {
	block, err := ev.popBlock("fifo")
	if err != nil {
		return err
	}
	path, argv, err := ev.simpleCommand("fifo", block)
	if err != nil {
		return err
	}

	fifoPath := filepath.Join(os.TempDir(), fmt.Sprintf("tacsh-fifo-%d-%d", os.Getpid(), time.Now().UnixNano()))
	if err := syscall.Mkfifo(fifoPath, 0600); err != nil {
		return ioErr("fifo", err)
	}

	environ := ev.env.Environ()
	go func() {
		// Opening the write end blocks until a reader appears.
		fd, err := os.OpenFile(fifoPath, os.O_WRONLY, 0)
		if err != nil {
			return
		}
		defer fd.Close()

		cmd := &exec.Cmd{
			Path:   path,
			Args:   argv,
			Dir:    ev.cwd,
			Env:    environ,
			Stdout: fd,
		}
		_, _ = runCmd(argv[0], cmd)
	}()

	ev.Push(value.Literal(fifoPath))
	return nil
}

// evalTimeout spawns a command and polls until it exits or the deadline
// elapses; on timeout the process group is killed and code 124 reported.
func (ev *Evaluator) evalTimeout(capture bool) error {
	block, err := ev.popBlock("timeout")
	if err != nil {
		return err
	}
	seconds, err := ev.popNumber("timeout")
	if err != nil {
		return err
	}
	path, argv, err := ev.simpleCommand("timeout", block)
	if err != nil {
		return err
	}

	cmd := ev.command(path, argv)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = ev.stdin
	cmd.Stderr = ev.stderr

	var buf bytes.Buffer
	if capture {
		cmd.Stdout = &buf
	} else {
		cmd.Stdout = ev.stdout
	}

	if err := cmd.Start(); err != nil {
		return execErrf(argv[0], "%v", err)
	}

	done := make(chan int, 1)
	go func() {
		code := 0
		if err := cmd.Wait(); err != nil {
			if exit, ok := err.(*exec.ExitError); ok {
				code = exit.ExitCode()
			} else {
				code = 127
			}
		}
		done <- code
	}()

	poll := time.Duration(ev.cfg.TimeoutPollMillis) * time.Millisecond
	deadline := time.Now().Add(time.Duration(seconds * float64(time.Second)))
	for {
		select {
		case code := <-done:
			ev.lastExit = code
			if capture {
				ev.Push(value.Output(strings.TrimRight(buf.String(), "\n")))
			}
			return nil
		default:
		}

		if time.Now().After(deadline) {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			<-done
			ev.lastExit = 124
			if capture {
				ev.Push(value.Output(strings.TrimRight(buf.String(), "\n")))
			}
			return nil
		}
		time.Sleep(poll)
	}
}
