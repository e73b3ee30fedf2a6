// Package value defines the tagged union of everything that can sit on
// the evaluator's stack.
package value

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/josephlewis42/tacsh/core/lang"
)

// Kind discriminates the value union.
type Kind int

const (
	KindNil Kind = iota
	KindMarker
	KindLiteral
	KindOutput
	KindNumber
	KindBool
	KindBlock
	KindList
	KindMap
	KindTable
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindMarker:
		return "marker"
	case KindLiteral:
		return "literal"
	case KindOutput:
		return "output"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindBlock:
		return "block"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindTable:
		return "table"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Value is one stack element.
type Value interface {
	Kind() Kind
	// String is the shell-text rendering used for output joining and for
	// materializing process arguments.
	String() string
}

// Literal is uncaptured text: a bare word or quoted string.
type Literal string

func (Literal) Kind() Kind       { return KindLiteral }
func (v Literal) String() string { return string(v) }

// Output is text captured from a process or builtin.
type Output string

func (Output) Kind() Kind       { return KindOutput }
func (v Output) String() string { return string(v) }

// Number is a numeric value.
type Number float64

func (Number) Kind() Kind { return KindNumber }
func (v Number) String() string {
	return strconv.FormatFloat(float64(v), 'g', -1, 64)
}

// Bool is a boolean value.
type Bool bool

func (Bool) Kind() Kind { return KindBool }
func (v Bool) String() string {
	if v {
		return "true"
	}
	return "false"
}

// Block is a deferred expression sequence.
type Block struct {
	Body []lang.Expr
}

func (Block) Kind() Kind { return KindBlock }
func (v Block) String() string {
	return "[ " + lang.FormatSequence(v.Body) + " ]"
}

// List is an ordered value sequence.
type List []Value

func (List) Kind() Kind { return KindList }
func (v List) String() string {
	parts := make([]string, 0, len(v))
	for _, item := range v {
		parts = append(parts, item.String())
	}
	return strings.Join(parts, "\n")
}

// Map is an unordered string-keyed record.
type Map map[string]Value

func (Map) Kind() Kind { return KindMap }
func (v Map) String() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+v[k].String())
	}
	return strings.Join(parts, "\n")
}

// Table is an ordered set of columns with ordered rows.
type Table struct {
	Cols []string
	Rows [][]Value
}

func (*Table) Kind() Kind { return KindTable }
func (v *Table) String() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(v.Cols, "\t"))
	for _, row := range v.Rows {
		sb.WriteByte('\n')
		parts := make([]string, 0, len(row))
		for _, cell := range row {
			parts = append(parts, cell.String())
		}
		sb.WriteString(strings.Join(parts, "\t"))
	}
	return sb.String()
}

// ErrorClass partitions the error taxonomy.
type ErrorClass string

const (
	ErrClassUnderflow ErrorClass = "stack-underflow"
	ErrClassType      ErrorClass = "type-mismatch"
	ErrClassExec      ErrorClass = "execution"
	ErrClassIO        ErrorClass = "io"
	ErrClassBreak     ErrorClass = "break-outside-loop"
)

// Error is a structured failure value, pushed by try instead of
// propagating.
type Error struct {
	Class   ErrorClass
	Message string
	Code    int
	Command string
}

func (*Error) Kind() Kind { return KindError }
func (v *Error) String() string {
	if v.Command != "" {
		return fmt.Sprintf("error(%s): %s: %s", v.Class, v.Command, v.Message)
	}
	return fmt.Sprintf("error(%s): %s", v.Class, v.Message)
}

// Nil denotes "no output"; it is skipped during argument popping.
type Nil struct{}

func (Nil) Kind() Kind     { return KindNil }
func (Nil) String() string { return "" }

// Marker delimits a variable-length stack region for collection
// operations. It is structurally distinct from Nil.
type Marker struct{}

func (Marker) Kind() Kind     { return KindMarker }
func (Marker) String() string { return "mark" }

// AsNumber converts a value to a number, parsing text values.
func AsNumber(v Value) (float64, error) {
	switch v := v.(type) {
	case Number:
		return float64(v), nil
	case Bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case Literal, Output:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v.String())
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected a number, got %s", v.Kind())
	}
}

// IsText reports whether the value is plain or captured text.
func IsText(v Value) bool {
	k := v.Kind()
	return k == KindLiteral || k == KindOutput
}
