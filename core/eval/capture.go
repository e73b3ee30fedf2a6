package eval

import "github.com/josephlewis42/tacsh/core/lang"

// captureNext decides whether the process about to run should have its
// output captured onto the stack (true) or inherit the terminal (false)
// by scanning the expressions that remain after it. It is a pure function
// of the tail and the resolver and is re-run before every expression.
//
// The rule table, in priority order:
//   - any operator or define consumes a value downstream: capture.
//   - a quoted string or variable reference is just data: interactive.
//   - blocks are transparent; look inside them for the first deciding
//     construct, then continue past them.
//   - a bare word captures only if it resolves to a definition, builtin,
//     or PATH executable that would consume the output as an argument.
//   - end of input: nothing consumes the output, run interactively.
func captureNext(tail []lang.Expr, resolves func(word string) bool) bool {
	for i := range tail {
		e := tail[i]
		switch e.Kind {
		case lang.KindOp, lang.KindDefine:
			return true

		case lang.KindQuoted, lang.KindVar:
			return false

		case lang.KindBlock, lang.KindScoped:
			if len(e.Body) > 0 {
				return captureNext(e.Body, resolves)
			}
			// An empty block decides nothing; keep scanning.
			continue

		case lang.KindWord:
			return resolves(e.Text)
		}
	}
	return false
}
