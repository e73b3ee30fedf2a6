// Package eval implements the tacsh stack machine: the dispatch loop
// that interprets parsed expression sequences against a value stack,
// deciding per expression whether native processes run interactively or
// captured, and orchestrating blocks, jobs, and user-defined words.
package eval

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/josephlewis42/tacsh/core/config"
	"github.com/josephlewis42/tacsh/core/env"
	"github.com/josephlewis42/tacsh/core/lang"
	"github.com/josephlewis42/tacsh/core/logger"
	"github.com/josephlewis42/tacsh/core/value"
)

// Result is returned once per top-level evaluation call.
type Result struct {
	// Output is the newline-joined stringified residual stack.
	Output string
	// ExitCode is the final exit code.
	ExitCode int
	// Stack is the residual stack, bottom first.
	Stack []value.Value
}

// DebugHook pauses execution before an expression when stepping is
// enabled or a breakpoint matches. Returning false aborts the sequence.
type DebugHook func(expr lang.Expr, stack []value.Value) bool

// Evaluator owns the value stack and drives expression execution.
type Evaluator struct {
	cfg *config.Configuration
	fs  afero.Fs
	log *logger.SessionLogger

	stack []value.Value

	defs    map[string][]lang.Expr
	aliases map[string][]lang.Expr

	env *env.Env
	cwd string

	dirStack []string

	jobs *jobTable

	traps   map[int][]lang.Expr
	pending chan os.Signal

	lastExit   int
	pipeStatus []int

	capture        bool
	stderrToStdout bool
	delivering     bool
	exited         bool

	depth    int
	maxDepth int

	imported map[string]bool

	classifier *classifier

	stdin          io.Reader
	stdout, stderr io.Writer

	trace       io.Writer
	debugHook   DebugHook
	stepping    bool
	breakpoints map[string]bool
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithIO overrides the evaluator's standard streams.
func WithIO(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(ev *Evaluator) {
		ev.stdin = stdin
		ev.stdout = stdout
		ev.stderr = stderr
	}
}

// WithFs overrides the filesystem used for redirects and module loading.
func WithFs(fs afero.Fs) Option {
	return func(ev *Evaluator) { ev.fs = fs }
}

// WithLogger attaches an event logger.
func WithLogger(log *logger.SessionLogger) Option {
	return func(ev *Evaluator) { ev.log = log }
}

// WithEnviron seeds the environment from a KEY=value list instead of the
// process environment.
func WithEnviron(environ []string) Option {
	return func(ev *Evaluator) { ev.env = env.NewFromEnviron(environ) }
}

// New creates an evaluator with the given configuration.
func New(cfg *config.Configuration, opts ...Option) *Evaluator {
	if cfg == nil {
		cfg = config.Default()
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	ev := &Evaluator{
		cfg:      cfg,
		fs:       afero.NewOsFs(),
		log:      logger.NewNopLogger().Sessionless(),
		defs:     make(map[string][]lang.Expr),
		aliases:  make(map[string][]lang.Expr),
		env:      env.NewFromOS(),
		cwd:      cwd,
		jobs:     newJobTable(),
		traps:    make(map[int][]lang.Expr),
		pending:  make(chan os.Signal, 16),
		maxDepth: cfg.MaxCallDepth,
		imported: make(map[string]bool),
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
	ev.classifier = newClassifier(ev)

	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

// Env exposes the evaluator's owned environment.
func (ev *Evaluator) Env() *env.Env { return ev.env }

// Getwd reports the evaluator's working directory.
func (ev *Evaluator) Getwd() string { return ev.cwd }

// LastExit reports the exit code of the last command.
func (ev *Evaluator) LastExit() int { return ev.lastExit }

// HasDefinition reports whether a user definition exists.
func (ev *Evaluator) HasDefinition(name string) bool {
	_, ok := ev.defs[name]
	return ok
}

// DefinitionNames lists user definitions for completion support.
func (ev *Evaluator) DefinitionNames() []string {
	names := make([]string, 0, len(ev.defs))
	for name := range ev.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuiltinNames lists the structured builtins for completion support.
func (ev *Evaluator) BuiltinNames() []string {
	names := make([]string, 0, len(builtinTable))
	for name := range builtinTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JobCount reports the number of tracked jobs.
func (ev *Evaluator) JobCount() int { return ev.jobs.count() }

// Exited reports whether the exit builtin has run.
func (ev *Evaluator) Exited() bool { return ev.exited }

// SetTrace enables expression tracing to the writer; nil disables.
func (ev *Evaluator) SetTrace(w io.Writer) { ev.trace = w }

// SetDebugHook installs a debugger pause callback; nil removes it.
func (ev *Evaluator) SetDebugHook(hook DebugHook) { ev.debugHook = hook }

// SetStepping toggles single-step mode for the debug hook.
func (ev *Evaluator) SetStepping(on bool) { ev.stepping = on }

// SetBreakpoint toggles a breakpoint on a word name.
func (ev *Evaluator) SetBreakpoint(word string, on bool) {
	if ev.breakpoints == nil {
		ev.breakpoints = make(map[string]bool)
	}
	if on {
		ev.breakpoints[word] = true
	} else {
		delete(ev.breakpoints, word)
	}
}

// Evaluate executes an expression sequence against the stack and returns
// the output, exit code, and residual stack. Errors abort the remainder
// of the sequence; the residual stack is still returned alongside them.
func (ev *Evaluator) Evaluate(exprs []lang.Expr) (*Result, error) {
	fl, err := ev.run(exprs, false, false)
	if err == nil && fl == flowBreak {
		// A break that survived to the top level had no enclosing loop.
		err = breakErr()
	}
	if exit, ok := err.(*exitRequest); ok {
		ev.exited = true
		ev.lastExit = exit.code
		err = nil
	}

	if err != nil {
		ev.lastExit = exitCodeFor(err)
		ev.log.Record(&logger.LogEntry{EvalError: &logger.EvalError{
			Class:   string(asErrorValue(err).Class),
			Message: err.Error(),
		}})
	}

	result := &Result{
		Output:   ev.renderStack(),
		ExitCode: ev.lastExit,
		Stack:    ev.SaveStack(),
	}
	return result, err
}

// EvalString parses and evaluates source text.
func (ev *Evaluator) EvalString(src string) (*Result, error) {
	exprs, err := lang.Parse(src)
	if err != nil {
		return nil, err
	}
	return ev.Evaluate(exprs)
}

func exitCodeFor(err error) int {
	if e, ok := err.(*Error); ok && e.Code != 0 {
		return e.Code
	}
	return 1
}

func (ev *Evaluator) renderStack() string {
	parts := make([]string, 0, len(ev.stack))
	for _, v := range ev.stack {
		parts = append(parts, v.String())
	}
	return strings.Join(parts, "\n")
}

// run executes a sequence with single-expression granularity. Capture
// mode is recomputed from the remaining tail before every expression;
// when the tail is empty the inherited tail mode applies. With forced
// set, every expression except the last captures unconditionally, which
// is how condition blocks and non-final branch expressions behave.
func (ev *Evaluator) run(exprs []lang.Expr, forced bool, tail bool) (flow, error) {
	for i := range exprs {
		ev.deliverTraps()

		if err := ev.debugPause(exprs[i]); err != nil {
			return flowNext, err
		}

		var capture bool
		switch {
		case i == len(exprs)-1:
			capture = tail
		case forced:
			capture = true
		default:
			capture = captureNext(exprs[i+1:], ev.resolvesToCommand)
		}

		if ev.trace != nil {
			fmt.Fprintf(ev.trace, "trace: %s (capture=%v)\n", exprs[i], capture)
		}

		fl, err := ev.evalExpr(exprs[i], capture)
		if err != nil {
			return flowNext, err
		}
		if fl != flowNext {
			return fl, nil
		}
	}
	return flowNext, nil
}

func (ev *Evaluator) debugPause(e lang.Expr) error {
	if ev.debugHook == nil {
		return nil
	}
	pause := ev.stepping
	if !pause && e.Kind == lang.KindWord && ev.breakpoints[e.Text] {
		pause = true
	}
	if pause && !ev.debugHook(e, ev.SaveStack()) {
		return execErrf("debug", "aborted by debugger")
	}
	return nil
}

// evalExpr executes a single expression with the given capture mode.
func (ev *Evaluator) evalExpr(e lang.Expr, capture bool) (flow, error) {
	ev.capture = capture

	switch e.Kind {
	case lang.KindQuoted:
		text := e.Text
		if e.Interp {
			text = ev.interpolate(text)
		}
		ev.Push(value.Literal(text))
		return flowNext, nil

	case lang.KindVar:
		// Unset variables push empty text, never an error.
		ev.Push(value.Literal(ev.env.Getenv(e.Text)))
		return flowNext, nil

	case lang.KindBlock:
		ev.Push(value.Block{Body: e.Body})
		return flowNext, nil

	case lang.KindScoped:
		return ev.evalScoped(e, capture)

	case lang.KindDefine:
		block, err := ev.popBlock("define " + e.Text)
		if err != nil {
			return flowNext, err
		}
		ev.defs[e.Text] = block.Body
		return flowNext, nil

	case lang.KindOp:
		return ev.evalOp(e.Op, capture)

	case lang.KindWord:
		return ev.evalWord(e.Text, capture)

	default:
		return flowNext, execErrf("eval", "unhandled expression kind %v", e.Kind)
	}
}

// evalScoped runs a scoped block with temporary assignments; with no body
// the assignments apply persistently.
func (ev *Evaluator) evalScoped(e lang.Expr, capture bool) (flow, error) {
	if e.Body == nil {
		for _, bind := range e.Binds {
			if err := ev.env.Setenv(bind.Name, ev.interpolate(bind.Value)); err != nil {
				return flowNext, ioErr("set", err)
			}
		}
		return flowNext, nil
	}

	ev.env.PushScope()
	defer ev.env.PopScope()
	for _, bind := range e.Binds {
		if err := ev.env.SetLocal(bind.Name, ev.interpolate(bind.Value)); err != nil {
			return flowNext, ioErr("set", err)
		}
	}
	return ev.run(e.Body, false, capture)
}

// evalWord resolves a bare word by fixed precedence: user definition,
// alias, the "." import special case, structured builtin, OS executable,
// and finally a literal push.
func (ev *Evaluator) evalWord(word string, capture bool) (flow, error) {
	if body, ok := ev.defs[word]; ok {
		return ev.callWord(word, body, capture)
	}

	if body, ok := ev.aliases[word]; ok {
		// Aliases expand in place with no scope frame of their own.
		return ev.run(body, false, capture)
	}

	// "." is the import operator only when the stack is non-empty and the
	// top names a readable file; otherwise it stays a directory literal.
	if word == "." {
		if fl, err, handled := ev.evalDotImport(); handled {
			return fl, err
		}
	}

	if fn, ok := builtinTable[word]; ok {
		err := fn(ev)
		if err == nil {
			ev.log.Record(&logger.LogEntry{CommandRun: &logger.CommandRun{
				Command:  []string{word},
				Captured: capture,
				ExitCode: ev.lastExit,
				Builtin:  true,
			}})
		}
		return flowNext, err
	}

	if path := ev.classifier.findExecutable(word); path != "" {
		return flowNext, ev.execCommand(word, path, capture)
	}

	ev.log.Record(&logger.LogEntry{UnknownCommand: &logger.UnknownCommand{Word: word}})
	ev.Push(value.Literal(word))
	return flowNext, nil
}

// callWord invokes a user definition with a fresh scope frame and the
// recursion ceiling enforced.
func (ev *Evaluator) callWord(word string, body []lang.Expr, capture bool) (flow, error) {
	if ev.depth >= ev.maxDepth {
		ev.log.Record(&logger.LogEntry{RecursionDepth: &logger.RecursionDepth{
			Word:  word,
			Depth: ev.depth,
		}})
		return flowNext, execErrf(word, "recursion limit of %d exceeded", ev.maxDepth)
	}

	ev.depth++
	ev.env.PushScope()
	defer func() {
		ev.env.PopScope()
		ev.depth--
	}()

	fl, err := ev.run(body, false, capture)
	if err != nil {
		return flowNext, err
	}
	if fl == flowReturn {
		// return aborts only the word's own body.
		return flowNext, nil
	}
	return fl, nil
}

// resolvesToCommand backs the capture-mode analyzer: a word captures the
// previous output only if it is itself runnable.
func (ev *Evaluator) resolvesToCommand(word string) bool {
	if _, ok := ev.defs[word]; ok {
		return true
	}
	if _, ok := ev.aliases[word]; ok {
		return true
	}
	if _, ok := builtinTable[word]; ok {
		return true
	}
	return ev.classifier.findExecutable(word) != ""
}

// interpolate expands $VAR and ${VAR} references in double-quoted text.
// Only \$ and \\ are escapes; any other backslash pair stays literal.
func (ev *Evaluator) interpolate(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\' && i+1 < len(runes) && (runes[i+1] == '$' || runes[i+1] == '\\'):
			sb.WriteRune(runes[i+1])
			i++

		case r == '$' && i+1 < len(runes):
			name, consumed := scanVarName(runes[i+1:])
			if consumed == 0 {
				sb.WriteRune(r)
				continue
			}
			sb.WriteString(ev.env.Getenv(name))
			i += consumed

		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// scanVarName reads NAME or {NAME} returning the name and rune count
// consumed after the dollar sign.
func scanVarName(runes []rune) (string, int) {
	if len(runes) == 0 {
		return "", 0
	}

	if runes[0] == '{' {
		for i := 1; i < len(runes); i++ {
			if runes[i] == '}' {
				return string(runes[1:i]), i + 1
			}
		}
		return "", 0
	}

	i := 0
	for i < len(runes) && isVarRune(runes[i], i == 0) {
		i++
	}
	return string(runes[:i]), i
}

func isVarRune(r rune, first bool) bool {
	switch {
	case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return !first
	default:
		return false
	}
}

// evalOp dispatches the closed operator set.
func (ev *Evaluator) evalOp(op lang.Op, capture bool) (flow, error) {
	switch op {
	case lang.OpDup, lang.OpSwap, lang.OpDrop, lang.OpOver, lang.OpRot, lang.OpDepth:
		return flowNext, ev.evalStackOp(op)

	case lang.OpMark, lang.OpSpread, lang.OpCollect:
		return flowNext, ev.evalCollectionOp(op)

	case lang.OpEach, lang.OpKeep, lang.OpMap, lang.OpFilter:
		return ev.evalBlockCollectionOp(op, capture)

	case lang.OpIf:
		return ev.evalIf(capture)
	case lang.OpTimes:
		return ev.evalTimes(capture)
	case lang.OpWhile:
		return ev.evalLoop(false, capture)
	case lang.OpUntil:
		return ev.evalLoop(true, capture)
	case lang.OpBreak:
		return flowBreak, nil
	case lang.OpReturn:
		return flowReturn, nil
	case lang.OpTry:
		return ev.evalTry(capture)

	case lang.OpApply:
		block, err := ev.popBlock("apply")
		if err != nil {
			return flowNext, err
		}
		return ev.run(block.Body, false, capture)

	case lang.OpPipe:
		return flowNext, ev.evalPipe()
	case lang.OpRedirOut, lang.OpRedirAppend, lang.OpRedirIn,
		lang.OpRedirErr, lang.OpRedirErrAppend, lang.OpRedirBoth, lang.OpRedirErrToOut:
		return flowNext, ev.evalRedirect(op)
	case lang.OpBackground:
		return flowNext, ev.evalBackground()
	case lang.OpAnd:
		return ev.evalAndOr(true, capture)
	case lang.OpOr:
		return ev.evalAndOr(false, capture)
	case lang.OpParallel:
		return flowNext, ev.evalParallel()
	case lang.OpFork:
		return flowNext, ev.evalFork()
	case lang.OpSubst:
		return flowNext, ev.evalSubst()
	case lang.OpFifo:
		return flowNext, ev.evalFifo()
	case lang.OpTimeout:
		return flowNext, ev.evalTimeout(capture)
	case lang.OpPipestatus:
		statuses := make(value.List, 0, len(ev.pipeStatus))
		for _, code := range ev.pipeStatus {
			statuses = append(statuses, value.Number(code))
		}
		ev.Push(statuses)
		return flowNext, nil

	case lang.OpToJSON:
		v, err := ev.popFor("tojson")
		if err != nil {
			return flowNext, err
		}
		text, err := value.ToJSON(v)
		if err != nil {
			return flowNext, execErrf("tojson", "%v", err)
		}
		ev.Push(value.Output(text))
		return flowNext, nil

	case lang.OpFromJSON:
		text, err := ev.popText("fromjson")
		if err != nil {
			return flowNext, err
		}
		v, err := value.FromJSON(text)
		if err != nil {
			return flowNext, execErrf("fromjson", "%v", err)
		}
		ev.Push(v)
		return flowNext, nil

	default:
		return flowNext, execErrf("eval", "unhandled operator %s", op)
	}
}
