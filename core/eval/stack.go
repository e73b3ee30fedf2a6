package eval

import (
	"github.com/josephlewis42/tacsh/core/lang"
	"github.com/josephlewis42/tacsh/core/value"
)

// Push places a value on top of the stack.
func (ev *Evaluator) Push(v value.Value) {
	ev.stack = append(ev.stack, v)
}

// Pop removes and returns the top of the stack.
func (ev *Evaluator) Pop() (value.Value, error) {
	if len(ev.stack) == 0 {
		return nil, underflowErr("pop", 1, 0)
	}
	v := ev.stack[len(ev.stack)-1]
	ev.stack = ev.stack[:len(ev.stack)-1]
	return v, nil
}

// Peek returns the top of the stack without removing it.
func (ev *Evaluator) Peek() (value.Value, bool) {
	if len(ev.stack) == 0 {
		return nil, false
	}
	return ev.stack[len(ev.stack)-1], true
}

// StackSize reports the number of values on the stack.
func (ev *Evaluator) StackSize() int { return len(ev.stack) }

// ClearStack drops every value from the stack.
func (ev *Evaluator) ClearStack() { ev.stack = nil }

// SaveStack returns a copy of the stack, bottom first, for REPL
// undo/history support.
func (ev *Evaluator) SaveStack() []value.Value {
	out := make([]value.Value, len(ev.stack))
	copy(out, ev.stack)
	return out
}

// RestoreStack replaces the stack with a previously saved copy.
func (ev *Evaluator) RestoreStack(saved []value.Value) {
	ev.stack = make([]value.Value, len(saved))
	copy(ev.stack, saved)
}

// popFor removes the top of the stack on behalf of the named operation.
func (ev *Evaluator) popFor(op string) (value.Value, error) {
	if len(ev.stack) == 0 {
		return nil, underflowErr(op, 1, 0)
	}
	return ev.Pop()
}

// popBlock pops the top of the stack, requiring a block.
func (ev *Evaluator) popBlock(op string) (value.Block, error) {
	v, err := ev.popFor(op)
	if err != nil {
		return value.Block{}, err
	}
	block, ok := v.(value.Block)
	if !ok {
		return value.Block{}, typeErr(op, "a block", v)
	}
	return block, nil
}

// popNumber pops the top of the stack, coercing it to a number.
func (ev *Evaluator) popNumber(op string) (float64, error) {
	v, err := ev.popFor(op)
	if err != nil {
		return 0, err
	}
	n, err := value.AsNumber(v)
	if err != nil {
		return 0, typeErr(op, "a number", v)
	}
	return n, nil
}

// popText pops the top of the stack, requiring plain or captured text.
func (ev *Evaluator) popText(op string) (string, error) {
	v, err := ev.popFor(op)
	if err != nil {
		return "", err
	}
	if !value.IsText(v) {
		return "", typeErr(op, "text", v)
	}
	return v.String(), nil
}

// popRegion pops values down to and including the nearest marker, or to
// the stack bottom, returning them in push (bottom-to-top) order.
func (ev *Evaluator) popRegion() []value.Value {
	for i := len(ev.stack) - 1; i >= 0; i-- {
		if ev.stack[i].Kind() == value.KindMarker {
			region := make([]value.Value, len(ev.stack)-i-1)
			copy(region, ev.stack[i+1:])
			ev.stack = ev.stack[:i]
			return region
		}
	}
	region := ev.stack
	ev.stack = nil
	return region
}

// evalStackOp handles the fixed stack manipulation operators.
func (ev *Evaluator) evalStackOp(op lang.Op) error {
	name := op.String()
	switch op {
	case lang.OpDup:
		if len(ev.stack) < 1 {
			return underflowErr(name, 1, len(ev.stack))
		}
		ev.Push(ev.stack[len(ev.stack)-1])

	case lang.OpSwap:
		if len(ev.stack) < 2 {
			return underflowErr(name, 2, len(ev.stack))
		}
		n := len(ev.stack)
		ev.stack[n-1], ev.stack[n-2] = ev.stack[n-2], ev.stack[n-1]

	case lang.OpDrop:
		if len(ev.stack) < 1 {
			return underflowErr(name, 1, len(ev.stack))
		}
		ev.stack = ev.stack[:len(ev.stack)-1]

	case lang.OpOver:
		if len(ev.stack) < 2 {
			return underflowErr(name, 2, len(ev.stack))
		}
		ev.Push(ev.stack[len(ev.stack)-2])

	case lang.OpRot:
		if len(ev.stack) < 3 {
			return underflowErr(name, 3, len(ev.stack))
		}
		n := len(ev.stack)
		third := ev.stack[n-3]
		copy(ev.stack[n-3:], ev.stack[n-2:])
		ev.stack[n-1] = third

	case lang.OpDepth:
		ev.Push(value.Number(len(ev.stack)))
	}
	return nil
}
