package eval

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/afero"

	"github.com/josephlewis42/tacsh/core/lang"
	"github.com/josephlewis42/tacsh/core/logger"
	"github.com/josephlewis42/tacsh/core/value"
)

// deliverTraps drains pending signals and runs their handler blocks.
// Handlers run between expressions, never mid-expression, and never
// nested inside another handler.
func (ev *Evaluator) deliverTraps() {
	if ev.delivering {
		return
	}
	ev.delivering = true
	defer func() { ev.delivering = false }()

	for {
		select {
		case sig := <-ev.pending:
			num, ok := sig.(syscall.Signal)
			if !ok {
				continue
			}
			body := ev.traps[int(num)]
			if len(body) == 0 {
				continue
			}
			if _, err := ev.run(body, false, false); err != nil {
				fmt.Fprintf(ev.stderr, "trap %d: %v\n", int(num), err)
			}
		default:
			return
		}
	}
}

// builtinTrap installs a handler block for one or more signals. An empty
// block removes the handlers.
func builtinTrap(ev *Evaluator) error {
	args := ev.popArgs()
	block, err := ev.popBlock("trap")
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return execErrf("trap", "no signal names given")
	}

	for _, name := range args {
		sig, ok := lookupSignal(name)
		if !ok {
			return execErrf("trap", "unknown signal %q", name)
		}
		if len(block.Body) == 0 {
			delete(ev.traps, int(sig))
			signal.Reset(sig)
			continue
		}
		ev.traps[int(sig)] = block.Body
		signal.Notify(ev.pending, sig)
	}
	ev.lastExit = 0
	return nil
}

// evalDotImport implements the "." special case: when the stack's top is
// text naming a readable file, pop it and source the file in place.
// Otherwise "." stays an ordinary word (a directory literal). The third
// result reports whether the case applied.
func (ev *Evaluator) evalDotImport() (flow, error, bool) {
	top, ok := ev.Peek()
	if !ok || !value.IsText(top) {
		return flowNext, nil, false
	}

	path := top.String()
	if !filepath.IsAbs(path) {
		path = filepath.Join(ev.cwd, path)
	}
	info, err := ev.fs.Stat(path)
	if err != nil || info.IsDir() {
		return flowNext, nil, false
	}

	ev.Pop()
	fl, err := ev.sourceFile(path)
	return fl, err, true
}

// sourceFile parses and runs a script file in the current namespace.
func (ev *Evaluator) sourceFile(path string) (flow, error) {
	src, err := afero.ReadFile(ev.fs, path)
	if err != nil {
		return flowNext, ioErr("source", err)
	}
	exprs, err := lang.Parse(string(src))
	if err != nil {
		return flowNext, execErrf("source", "%s: %v", path, err)
	}

	ev.log.Record(&logger.LogEntry{ModuleImport: &logger.ModuleImport{Path: path}})
	return ev.run(exprs, false, false)
}

// resolveModule finds a module file by bare name. Names with a path
// separator resolve against the working directory only; bare names search
// the working directory, its lib subdirectory, the configured lib
// directory, and every directory on the module path variable. A name
// without an extension also tries the ".tac" suffix.
func (ev *Evaluator) resolveModule(name string) (string, error) {
	candidates := []string{name}
	if filepath.Ext(name) == "" {
		candidates = append(candidates, name+".tac")
	}

	if strings.ContainsRune(name, '/') {
		for _, candidate := range candidates {
			path := candidate
			if !filepath.IsAbs(path) {
				path = filepath.Join(ev.cwd, path)
			}
			if info, err := ev.fs.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
		return "", execErrf("import", "module %q not found", name)
	}

	dirs := []string{ev.cwd, filepath.Join(ev.cwd, "lib"), ev.cfg.LibDir()}
	if pathVar := ev.env.Getenv(ev.cfg.ModulePathVar); pathVar != "" {
		dirs = append(dirs, filepath.SplitList(pathVar)...)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, candidate := range candidates {
			path := filepath.Join(dir, candidate)
			if info, err := ev.fs.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
	}
	return "", execErrf("import", "module %q not found", name)
}

// canonicalModulePath normalizes a module path for import deduplication.
func canonicalModulePath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

// builtinSource runs a script file in the current namespace, repeating
// the run on every call.
func builtinSource(ev *Evaluator) error {
	name, err := ev.popText("source")
	if err != nil {
		return err
	}
	path, err := ev.resolveModule(name)
	if err != nil {
		return err
	}
	_, err = ev.sourceFile(path)
	return err
}

// builtinImport loads a module once, rebinding its public definitions
// under a "name::" namespace. Definitions starting with an underscore
// stay private, and bindings that existed before the import are restored.
func builtinImport(ev *Evaluator) error {
	name, err := ev.popText("import")
	if err != nil {
		return err
	}
	path, err := ev.resolveModule(name)
	if err != nil {
		return err
	}

	canonical := canonicalModulePath(path)
	if ev.imported[canonical] {
		ev.lastExit = 0
		return nil
	}

	namespace := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	before := make(map[string][]lang.Expr, len(ev.defs))
	for defName, body := range ev.defs {
		before[defName] = body
	}

	src, err := afero.ReadFile(ev.fs, path)
	if err != nil {
		return ioErr("import", err)
	}
	exprs, err := lang.Parse(string(src))
	if err != nil {
		return execErrf("import", "%s: %v", path, err)
	}
	if _, err := ev.run(exprs, false, false); err != nil {
		return err
	}

	after := make(map[string][]lang.Expr, len(ev.defs))
	for defName, body := range ev.defs {
		after[defName] = body
	}

	for defName, body := range after {
		prior, existed := before[defName]
		if existed && sameBody(prior, body) {
			continue
		}

		if !strings.HasPrefix(defName, "_") {
			ev.defs[namespace+"::"+defName] = body
		}
		if existed {
			ev.defs[defName] = prior
		} else {
			delete(ev.defs, defName)
		}
	}

	ev.imported[canonical] = true
	ev.log.Record(&logger.LogEntry{ModuleImport: &logger.ModuleImport{
		Path:      path,
		Namespace: namespace,
	}})
	ev.lastExit = 0
	return nil
}

func sameBody(a, b []lang.Expr) bool {
	return lang.FormatSequence(a) == lang.FormatSequence(b)
}

// builtinLocal binds variables in the innermost scope frame so they are
// dropped when the frame pops.
func builtinLocal(ev *Evaluator) error {
	args := ev.popArgs()
	if ev.env.Depth() == 0 {
		return execErrf("local", "not inside a scoped block or word")
	}
	for _, arg := range args {
		name, val := splitAssign(arg)
		if err := ev.env.SetLocal(name, val); err != nil {
			return ioErr("local", err)
		}
	}
	ev.lastExit = 0
	return nil
}

// builtinExport writes variables through every scope frame into the
// global environment.
func builtinExport(ev *Evaluator) error {
	for _, arg := range ev.popArgs() {
		name, val := splitAssign(arg)
		if !strings.Contains(arg, "=") {
			val = ev.env.Getenv(name)
		}
		if err := ev.env.Setenv(name, val); err != nil {
			return ioErr("export", err)
		}
	}
	ev.lastExit = 0
	return nil
}

// builtinSet assigns NAME=value arguments; with no arguments it pushes
// the flattened environment listing instead.
func builtinSet(ev *Evaluator) error {
	args := ev.popArgs()
	if len(args) == 0 {
		ev.Push(value.Output(strings.Join(ev.env.Environ(), "\n")))
		ev.lastExit = 0
		return nil
	}
	for _, arg := range args {
		name, val := splitAssign(arg)
		if err := ev.env.Setenv(name, val); err != nil {
			return ioErr("set", err)
		}
	}
	ev.lastExit = 0
	return nil
}

func builtinUnset(ev *Evaluator) error {
	for _, name := range ev.popArgs() {
		if err := ev.env.Unsetenv(name); err != nil {
			return ioErr("unset", err)
		}
	}
	ev.lastExit = 0
	return nil
}

func splitAssign(arg string) (string, string) {
	if eq := strings.IndexByte(arg, '='); eq >= 0 {
		return arg[:eq], arg[eq+1:]
	}
	return arg, ""
}

// chdir validates and switches the evaluator's working directory,
// keeping PWD and OLDPWD current.
func (ev *Evaluator) chdir(op, dir string) error {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(ev.cwd, dir)
	}
	dir = filepath.Clean(dir)

	info, err := ev.fs.Stat(dir)
	if err != nil {
		return ioErr(op, err)
	}
	if !info.IsDir() {
		return execErrf(op, "%s: not a directory", dir)
	}

	ev.env.Setenv("OLDPWD", ev.cwd)
	ev.cwd = dir
	ev.env.Setenv("PWD", dir)
	ev.lastExit = 0
	return nil
}

func builtinCd(ev *Evaluator) error {
	args := ev.popArgs()

	var target string
	switch {
	case len(args) == 0:
		home, err := ev.env.UserHomeDir()
		if err != nil {
			return execErrf("cd", "HOME not set")
		}
		target = home
	case args[len(args)-1] == "-":
		target = ev.env.Getenv("OLDPWD")
		if target == "" {
			return execErrf("cd", "OLDPWD not set")
		}
	default:
		target = args[len(args)-1]
	}
	return ev.chdir("cd", target)
}

func builtinPwd(ev *Evaluator) error {
	ev.Push(value.Literal(ev.cwd))
	ev.lastExit = 0
	return nil
}

func builtinPushd(ev *Evaluator) error {
	args := ev.popArgs()
	if len(args) == 0 {
		return execErrf("pushd", "no directory given")
	}

	previous := ev.cwd
	if err := ev.chdir("pushd", args[len(args)-1]); err != nil {
		return err
	}
	ev.dirStack = append(ev.dirStack, previous)
	return nil
}

func builtinPopd(ev *Evaluator) error {
	if len(ev.dirStack) == 0 {
		return execErrf("popd", "directory stack empty")
	}
	target := ev.dirStack[len(ev.dirStack)-1]
	if err := ev.chdir("popd", target); err != nil {
		return err
	}
	ev.dirStack = ev.dirStack[:len(ev.dirStack)-1]
	return nil
}

// builtinDirs pushes the directory stack, current directory first.
func builtinDirs(ev *Evaluator) error {
	lines := []string{ev.cwd}
	for i := len(ev.dirStack) - 1; i >= 0; i-- {
		lines = append(lines, ev.dirStack[i])
	}
	ev.Push(value.Output(strings.Join(lines, "\n")))
	ev.lastExit = 0
	return nil
}

// builtinAlias defines in-place expansions; with no arguments it pushes
// the current alias listing.
func builtinAlias(ev *Evaluator) error {
	args := ev.popArgs()
	if len(args) == 0 {
		names := make([]string, 0, len(ev.aliases))
		for name := range ev.aliases {
			names = append(names, name)
		}
		sort.Strings(names)

		lines := make([]string, 0, len(names))
		for _, name := range names {
			lines = append(lines, fmt.Sprintf("%s: [%s]", name, lang.FormatSequence(ev.aliases[name])))
		}
		ev.Push(value.Output(strings.Join(lines, "\n")))
		ev.lastExit = 0
		return nil
	}

	block, err := ev.popBlock("alias")
	if err != nil {
		return err
	}
	for _, name := range args {
		ev.aliases[name] = block.Body
	}
	ev.lastExit = 0
	return nil
}

func builtinUnalias(ev *Evaluator) error {
	for _, name := range ev.popArgs() {
		delete(ev.aliases, name)
	}
	ev.lastExit = 0
	return nil
}

// builtinUndef removes user word definitions.
func builtinUndef(ev *Evaluator) error {
	for _, name := range ev.popArgs() {
		delete(ev.defs, name)
	}
	ev.lastExit = 0
	return nil
}

// builtinWhich classifies a word the way dispatch would resolve it.
func builtinWhich(ev *Evaluator) error {
	args := ev.popArgs()
	lines := make([]string, 0, len(args))
	code := 0
	for _, word := range args {
		switch ev.classifier.classify(word) {
		case ClassDefinition:
			lines = append(lines, word+": word definition")
		case ClassBuiltin:
			lines = append(lines, word+": builtin")
		case ClassExecutable:
			lines = append(lines, ev.classifier.findExecutable(word))
		default:
			lines = append(lines, word+": not found")
			code = 1
		}
	}
	ev.Push(value.Output(strings.Join(lines, "\n")))
	ev.lastExit = code
	return nil
}

// builtinDefs pushes the names of all user definitions.
func builtinDefs(ev *Evaluator) error {
	ev.Push(value.Output(strings.Join(ev.DefinitionNames(), "\n")))
	ev.lastExit = 0
	return nil
}

func init() {
	registerBuiltin("trap", builtinTrap)
	registerBuiltin("source", builtinSource)
	registerBuiltin("import", builtinImport)
	registerBuiltin("local", builtinLocal)
	registerBuiltin("export", builtinExport)
	registerBuiltin("set", builtinSet)
	registerBuiltin("unset", builtinUnset)
	registerBuiltin("cd", builtinCd)
	registerBuiltin("pwd", builtinPwd)
	registerBuiltin("pushd", builtinPushd)
	registerBuiltin("popd", builtinPopd)
	registerBuiltin("dirs", builtinDirs)
	registerBuiltin("alias", builtinAlias)
	registerBuiltin("unalias", builtinUnalias)
	registerBuiltin("undef", builtinUndef)
	registerBuiltin("which", builtinWhich)
	registerBuiltin("defs", builtinDefs)
}
