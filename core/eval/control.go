package eval

import (
	"sort"
	"strings"

	"github.com/josephlewis42/tacsh/core/lang"
	"github.com/josephlewis42/tacsh/core/value"
)

// evalIf pops else-block, then-block, and condition-block in LIFO order,
// runs the condition with capture forced (the result is judged by exit
// code alone), and executes the selected branch. Only the branch's final
// expression restores the outer capture mode.
func (ev *Evaluator) evalIf(capture bool) (flow, error) {
	elseBlock, err := ev.popBlock("if")
	if err != nil {
		return flowNext, err
	}
	thenBlock, err := ev.popBlock("if")
	if err != nil {
		return flowNext, err
	}
	condBlock, err := ev.popBlock("if")
	if err != nil {
		return flowNext, err
	}

	fl, err := ev.run(condBlock.Body, true, true)
	if err != nil || fl != flowNext {
		return fl, err
	}

	branch := thenBlock
	if ev.lastExit != 0 {
		branch = elseBlock
	}
	return ev.run(branch.Body, true, capture)
}

// evalTimes pops a block then an iteration count and runs the block that
// many times; break unwinds to here.
func (ev *Evaluator) evalTimes(capture bool) (flow, error) {
	block, err := ev.popBlock("times")
	if err != nil {
		return flowNext, err
	}
	count, err := ev.popNumber("times")
	if err != nil {
		return flowNext, err
	}

	for i := 0; i < int(count); i++ {
		fl, err := ev.run(block.Body, false, capture)
		if err != nil {
			return flowNext, err
		}
		switch fl {
		case flowBreak:
			return flowNext, nil
		case flowReturn:
			return flowReturn, nil
		}
	}
	return flowNext, nil
}

// evalLoop implements while and until. Each iteration pushes a marker,
// evaluates the condition, and discards everything down to and including
// the marker so condition stack pollution cannot leak into the body.
func (ev *Evaluator) evalLoop(invert bool, capture bool) (flow, error) {
	name := "while"
	if invert {
		name = "until"
	}

	body, err := ev.popBlock(name)
	if err != nil {
		return flowNext, err
	}
	cond, err := ev.popBlock(name)
	if err != nil {
		return flowNext, err
	}

	for {
		ev.Push(value.Marker{})
		fl, err := ev.run(cond.Body, true, true)
		ev.popRegion()
		if err != nil || fl == flowReturn {
			return fl, err
		}
		if fl == flowBreak {
			return flowNext, nil
		}

		proceed := ev.lastExit == 0
		if invert {
			proceed = !proceed
		}
		if !proceed {
			return flowNext, nil
		}

		fl, err = ev.run(body.Body, false, capture)
		if err != nil {
			return flowNext, err
		}
		switch fl {
		case flowBreak:
			return flowNext, nil
		case flowReturn:
			return flowReturn, nil
		}
	}
}

// evalTry snapshots the stack and runs a block; on failure the snapshot
// is restored and a structured error value is pushed instead of
// propagating.
func (ev *Evaluator) evalTry(capture bool) (flow, error) {
	block, err := ev.popBlock("try")
	if err != nil {
		return flowNext, err
	}

	saved := ev.SaveStack()
	fl, err := ev.run(block.Body, false, capture)
	if err != nil {
		ev.RestoreStack(saved)
		ev.Push(asErrorValue(err))
		ev.lastExit = 1
		return flowNext, nil
	}
	return fl, nil
}

// evalCollectionOp handles mark, spread, and collect.
func (ev *Evaluator) evalCollectionOp(op lang.Op) error {
	switch op {
	case lang.OpMark:
		ev.Push(value.Marker{})
		return nil

	case lang.OpCollect:
		region := ev.popRegion()
		parts := make([]string, 0, len(region))
		for _, v := range region {
			if v.Kind() == value.KindNil {
				continue
			}
			parts = append(parts, v.String())
		}
		ev.Push(value.Output(strings.Join(parts, "\n")))
		return nil

	case lang.OpSpread:
		v, err := ev.popFor("spread")
		if err != nil {
			return err
		}
		return ev.spread(v)

	default:
		return execErrf("eval", "unhandled collection operator %s", op)
	}
}

// spread pushes a marker followed by the elements of a compound value,
// the inverse of the marker-delimited constructors.
func (ev *Evaluator) spread(v value.Value) error {
	ev.Push(value.Marker{})
	switch v := v.(type) {
	case value.List:
		for _, item := range v {
			ev.Push(item)
		}
	case value.Map:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ev.Push(value.Literal(k))
			ev.Push(v[k])
		}
	case *value.Table:
		for _, row := range v.Rows {
			ev.Push(value.List(row))
		}
	case value.Literal, value.Output:
		text := strings.TrimRight(v.String(), "\n")
		if text == "" {
			return nil
		}
		for _, line := range strings.Split(text, "\n") {
			ev.Push(value.Output(line))
		}
	default:
		return typeErr("spread", "a list, map, table, or text", v)
	}
	return nil
}

// evalBlockCollectionOp handles each, keep, map, and filter.
func (ev *Evaluator) evalBlockCollectionOp(op lang.Op, capture bool) (flow, error) {
	name := op.String()
	block, err := ev.popBlock(name)
	if err != nil {
		return flowNext, err
	}

	switch op {
	case lang.OpEach:
		region := ev.popRegion()
		for _, item := range region {
			ev.Push(item)
			fl, err := ev.run(block.Body, true, true)
			if err != nil {
				return flowNext, err
			}
			switch fl {
			case flowBreak:
				return flowNext, nil
			case flowReturn:
				return flowReturn, nil
			}
		}
		return flowNext, nil

	case lang.OpKeep:
		// Run the block on the top value, then push the value back.
		v, err := ev.popFor(name)
		if err != nil {
			return flowNext, err
		}
		ev.Push(v)
		fl, err := ev.run(block.Body, true, true)
		if err != nil || fl != flowNext {
			return fl, err
		}
		ev.Push(v)
		return flowNext, nil

	case lang.OpMap, lang.OpFilter:
		v, err := ev.popFor(name)
		if err != nil {
			return flowNext, err
		}
		items, ok := v.(value.List)
		if !ok {
			return flowNext, typeErr(name, "a list", v)
		}

		var out value.List
		for _, item := range items {
			ev.Push(item)
			fl, err := ev.run(block.Body, true, true)
			if err != nil {
				return flowNext, err
			}
			if fl == flowBreak {
				break
			}
			if fl == flowReturn {
				return flowReturn, nil
			}

			result, err := ev.popFor(name)
			if err != nil {
				return flowNext, err
			}
			if op == lang.OpMap {
				out = append(out, result)
			} else if truthy(result) {
				out = append(out, item)
			}
		}
		ev.Push(out)
		return flowNext, nil

	default:
		return flowNext, execErrf("eval", "unhandled operator %s", op)
	}
}

// truthy reports whether a value selects the "keep" side of a filter.
func truthy(v value.Value) bool {
	switch v := v.(type) {
	case value.Bool:
		return bool(v)
	case value.Number:
		return v != 0
	case value.Nil:
		return false
	default:
		return v.String() != ""
	}
}
