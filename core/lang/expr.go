// Package lang contains the tacsh expression model and the lexer/parser
// that turn source text into expression sequences for the evaluator.
package lang

import (
	"fmt"
	"strings"
)

// Kind discriminates the expression union.
type Kind int

const (
	// KindWord is a bare word: a command name, definition name, or literal.
	KindWord Kind = iota
	// KindQuoted is a quoted string literal.
	KindQuoted
	// KindVar is a $NAME variable reference.
	KindVar
	// KindBlock is a deferred expression sequence.
	KindBlock
	// KindScoped is a block with temporary variable assignments.
	KindScoped
	// KindOp is one of the closed set of shell operators.
	KindOp
	// KindDefine binds the block on top of the stack to a name.
	KindDefine
)

func (k Kind) String() string {
	switch k {
	case KindWord:
		return "word"
	case KindQuoted:
		return "quoted"
	case KindVar:
		return "variable"
	case KindBlock:
		return "block"
	case KindScoped:
		return "scoped block"
	case KindOp:
		return "operator"
	case KindDefine:
		return "define"
	default:
		return "unknown"
	}
}

// Op is the closed set of operators the evaluator dispatches on directly.
type Op int

const (
	OpInvalid Op = iota

	// Stack operators.
	OpDup
	OpSwap
	OpDrop
	OpOver
	OpRot
	OpDepth

	// Collection operators.
	OpMark
	OpSpread
	OpEach
	OpCollect
	OpKeep
	OpMap
	OpFilter

	// Control operators.
	OpIf
	OpTimes
	OpWhile
	OpUntil
	OpBreak
	OpReturn
	OpTry

	// Block application.
	OpApply

	// Process operators.
	OpPipe
	OpRedirOut
	OpRedirAppend
	OpRedirIn
	OpRedirErr
	OpRedirErrAppend
	OpRedirBoth
	OpRedirErrToOut
	OpBackground
	OpAnd
	OpOr
	OpParallel
	OpFork
	OpSubst
	OpFifo
	OpTimeout
	OpPipestatus

	// JSON operators.
	OpToJSON
	OpFromJSON
)

// opWords maps reserved words to operators. Any word not present here
// lexes as a plain KindWord.
var opWords = map[string]Op{
	"dup":   OpDup,
	"swap":  OpSwap,
	"drop":  OpDrop,
	"over":  OpOver,
	"rot":   OpRot,
	"depth": OpDepth,

	"mark":    OpMark,
	"spread":  OpSpread,
	"each":    OpEach,
	"collect": OpCollect,
	"keep":    OpKeep,
	"map":     OpMap,
	"filter":  OpFilter,

	"if":     OpIf,
	"times":  OpTimes,
	"while":  OpWhile,
	"until":  OpUntil,
	"break":  OpBreak,
	"return": OpReturn,
	"try":    OpTry,

	"apply": OpApply,

	"|":          OpPipe,
	">":          OpRedirOut,
	">>":         OpRedirAppend,
	"<":          OpRedirIn,
	"2>":         OpRedirErr,
	"2>>":        OpRedirErrAppend,
	"&>":         OpRedirBoth,
	"2>&1":       OpRedirErrToOut,
	"&":          OpBackground,
	"&&":         OpAnd,
	"||":         OpOr,
	"parallel":   OpParallel,
	"fork":       OpFork,
	"subst":      OpSubst,
	"fifo":       OpFifo,
	"timeout":    OpTimeout,
	"pipestatus": OpPipestatus,

	"tojson":   OpToJSON,
	"fromjson": OpFromJSON,
}

var opNames = func() map[Op]string {
	out := make(map[Op]string, len(opWords))
	for word, op := range opWords {
		out[op] = word
	}
	return out
}()

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// LookupOp reports the operator for a reserved word, if any.
func LookupOp(word string) (Op, bool) {
	op, ok := opWords[word]
	return op, ok
}

// Bind is a single NAME=value assignment attached to a scoped block.
type Bind struct {
	Name  string
	Value string
}

// Expr is one parsed expression. Expressions are immutable once produced
// by the parser; the evaluator never writes to them.
type Expr struct {
	Kind Kind

	// Text holds the word text, quoted string contents, variable name, or
	// definition name depending on Kind.
	Text string

	// Interp is set for double-quoted strings, which expand $VAR
	// references at evaluation time.
	Interp bool

	// Op is set for KindOp expressions.
	Op Op

	// Body holds the sub-expressions of blocks and scoped blocks. A
	// scoped block with a nil Body applies its binds persistently.
	Body []Expr

	// Binds holds the assignments of a scoped block.
	Binds []Bind
}

// Word builds a bare word expression.
func Word(text string) Expr { return Expr{Kind: KindWord, Text: text} }

// Quoted builds a string literal expression.
func Quoted(text string, interp bool) Expr {
	return Expr{Kind: KindQuoted, Text: text, Interp: interp}
}

// Var builds a variable reference expression.
func Var(name string) Expr { return Expr{Kind: KindVar, Text: name} }

// Block builds a deferred block expression.
func Block(body ...Expr) Expr { return Expr{Kind: KindBlock, Body: body} }

// Operator builds an operator expression.
func Operator(op Op) Expr { return Expr{Kind: KindOp, Op: op} }

// Define builds a definition-binding expression.
func Define(name string) Expr { return Expr{Kind: KindDefine, Text: name} }

// String renders the expression roughly as it was written.
func (e Expr) String() string {
	switch e.Kind {
	case KindWord:
		return e.Text
	case KindQuoted:
		if e.Interp {
			return `"` + e.Text + `"`
		}
		return `'` + e.Text + `'`
	case KindVar:
		return "$" + e.Text
	case KindBlock:
		return "[ " + FormatSequence(e.Body) + " ]"
	case KindScoped:
		var parts []string
		for _, b := range e.Binds {
			parts = append(parts, b.Name+"="+b.Value)
		}
		if e.Body != nil {
			parts = append(parts, "[ "+FormatSequence(e.Body)+" ]")
		}
		return strings.Join(parts, " ")
	case KindOp:
		return e.Op.String()
	case KindDefine:
		return ":" + e.Text
	default:
		return fmt.Sprintf("expr(%d)", int(e.Kind))
	}
}

// FormatSequence renders an expression sequence as source-ish text.
func FormatSequence(exprs []Expr) string {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, " ")
}
