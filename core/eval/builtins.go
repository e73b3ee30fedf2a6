package eval

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/anmitsu/go-shlex"

	"github.com/josephlewis42/tacsh/core/value"
)

// builtinFunc is the signature every structured builtin implements:
// arguments come off the stack, results go back on it.
type builtinFunc func(ev *Evaluator) error

// builtinTable maps word names to builtins. Entries are registered from
// init functions across the package so each concern's builtins live next
// to its implementation.
var builtinTable = map[string]builtinFunc{}

func registerBuiltin(name string, fn builtinFunc) {
	if _, exists := builtinTable[name]; exists {
		panic(fmt.Sprintf("duplicate builtin %q", name))
	}
	builtinTable[name] = fn
}

// exitRequest unwinds evaluation when the exit builtin runs; the
// top-level Evaluate call treats it as a clean termination.
type exitRequest struct {
	code int
}

func (e *exitRequest) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

func builtinExit(ev *Evaluator) error {
	code := ev.lastExit
	if top, ok := ev.Peek(); ok {
		if n, err := value.AsNumber(top); err == nil {
			ev.Pop()
			code = int(n)
		}
	}
	return &exitRequest{code: code}
}

func builtinTrue(ev *Evaluator) error {
	ev.lastExit = 0
	return nil
}

func builtinFalse(ev *Evaluator) error {
	ev.lastExit = 1
	return nil
}

func builtinClear(ev *Evaluator) error {
	ev.ClearStack()
	ev.lastExit = 0
	return nil
}

// binaryNumberOp pops y then x and pushes f(x, y).
func binaryNumberOp(name string, f func(x, y float64) (float64, error)) builtinFunc {
	return func(ev *Evaluator) error {
		y, err := ev.popNumber(name)
		if err != nil {
			return err
		}
		x, err := ev.popNumber(name)
		if err != nil {
			return err
		}
		result, err := f(x, y)
		if err != nil {
			return err
		}
		ev.Push(value.Number(result))
		ev.lastExit = 0
		return nil
	}
}

// comparison pops y then x, pushes the boolean result, and mirrors it in
// the exit code so comparisons drive if and while directly.
func comparison(name string, f func(x, y value.Value) bool) builtinFunc {
	return func(ev *Evaluator) error {
		y, err := ev.popFor(name)
		if err != nil {
			return err
		}
		x, err := ev.popFor(name)
		if err != nil {
			return err
		}
		result := f(x, y)
		ev.Push(value.Bool(result))
		if result {
			ev.lastExit = 0
		} else {
			ev.lastExit = 1
		}
		return nil
	}
}

func compareValues(x, y value.Value) float64 {
	xn, xerr := value.AsNumber(x)
	yn, yerr := value.AsNumber(y)
	if xerr == nil && yerr == nil {
		return xn - yn
	}
	return float64(strings.Compare(x.String(), y.String()))
}

func builtinNot(ev *Evaluator) error {
	v, err := ev.popFor("not")
	if err != nil {
		return err
	}
	result := !truthy(v)
	ev.Push(value.Bool(result))
	if result {
		ev.lastExit = 0
	} else {
		ev.lastExit = 1
	}
	return nil
}

// builtinSplit pops a separator then text and pushes the list of parts.
func builtinSplit(ev *Evaluator) error {
	sep, err := ev.popText("split")
	if err != nil {
		return err
	}
	text, err := ev.popText("split")
	if err != nil {
		return err
	}

	var out value.List
	for _, part := range strings.Split(text, sep) {
		out = append(out, value.Literal(part))
	}
	ev.Push(out)
	ev.lastExit = 0
	return nil
}

// builtinSplit1 splits on the first separator occurrence only, pushing
// the head then the remainder.
func builtinSplit1(ev *Evaluator) error {
	sep, err := ev.popText("split1")
	if err != nil {
		return err
	}
	text, err := ev.popText("split1")
	if err != nil {
		return err
	}

	head, rest, found := strings.Cut(text, sep)
	ev.Push(value.Literal(head))
	if found {
		ev.Push(value.Literal(rest))
		ev.lastExit = 0
	} else {
		ev.Push(value.Literal(""))
		ev.lastExit = 1
	}
	return nil
}

func builtinJoin(ev *Evaluator) error {
	sep, err := ev.popText("join")
	if err != nil {
		return err
	}
	v, err := ev.popFor("join")
	if err != nil {
		return err
	}
	items, ok := v.(value.List)
	if !ok {
		return typeErr("join", "a list", v)
	}

	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, item.String())
	}
	ev.Push(value.Literal(strings.Join(parts, sep)))
	ev.lastExit = 0
	return nil
}

func builtinConcat(ev *Evaluator) error {
	b, err := ev.popText("concat")
	if err != nil {
		return err
	}
	a, err := ev.popText("concat")
	if err != nil {
		return err
	}
	ev.Push(value.Literal(a + b))
	ev.lastExit = 0
	return nil
}

// textOp pops text and pushes f(text).
func textOp(name string, f func(string) string) builtinFunc {
	return func(ev *Evaluator) error {
		text, err := ev.popText(name)
		if err != nil {
			return err
		}
		ev.Push(value.Literal(f(text)))
		ev.lastExit = 0
		return nil
	}
}

func builtinReplace(ev *Evaluator) error {
	replacement, err := ev.popText("replace")
	if err != nil {
		return err
	}
	old, err := ev.popText("replace")
	if err != nil {
		return err
	}
	text, err := ev.popText("replace")
	if err != nil {
		return err
	}
	ev.Push(value.Literal(strings.ReplaceAll(text, old, replacement)))
	ev.lastExit = 0
	return nil
}

func builtinLines(ev *Evaluator) error {
	text, err := ev.popText("lines")
	if err != nil {
		return err
	}

	var out value.List
	trimmed := strings.TrimRight(text, "\n")
	if trimmed != "" {
		for _, line := range strings.Split(trimmed, "\n") {
			out = append(out, value.Literal(line))
		}
	}
	ev.Push(out)
	ev.lastExit = 0
	return nil
}

// builtinWords tokenizes text with shell quoting rules, so quoted spans
// survive as single items.
func builtinWords(ev *Evaluator) error {
	text, err := ev.popText("words")
	if err != nil {
		return err
	}
	tokens, err := shlex.Split(text, true)
	if err != nil {
		return execErrf("words", "%v", err)
	}

	var out value.List
	for _, token := range tokens {
		out = append(out, value.Literal(token))
	}
	ev.Push(out)
	ev.lastExit = 0
	return nil
}

// builtinList collects the marker-delimited region into a list.
func builtinList(ev *Evaluator) error {
	region := ev.popRegion()
	out := make(value.List, 0, len(region))
	for _, v := range region {
		if v.Kind() == value.KindNil {
			continue
		}
		out = append(out, v)
	}
	ev.Push(out)
	ev.lastExit = 0
	return nil
}

// builtinRecord collects the marker-delimited region as key-value pairs
// into a map.
func builtinRecord(ev *Evaluator) error {
	region := ev.popRegion()
	if len(region)%2 != 0 {
		return execErrf("record", "odd number of values; need key-value pairs")
	}

	out := make(value.Map, len(region)/2)
	for i := 0; i < len(region); i += 2 {
		out[region[i].String()] = region[i+1]
	}
	ev.Push(out)
	ev.lastExit = 0
	return nil
}

// builtinMakeTable collects a header list followed by row lists into a
// table.
func builtinMakeTable(ev *Evaluator) error {
	region := ev.popRegion()
	if len(region) == 0 {
		return execErrf("table", "need a column list")
	}

	header, ok := region[0].(value.List)
	if !ok {
		return typeErr("table", "a column list", region[0])
	}
	cols := make([]string, 0, len(header))
	for _, col := range header {
		cols = append(cols, col.String())
	}

	table := &value.Table{Cols: cols}
	for _, rowValue := range region[1:] {
		row, ok := rowValue.(value.List)
		if !ok {
			return typeErr("table", "row lists", rowValue)
		}
		if len(row) != len(cols) {
			return execErrf("table", "row has %d values, want %d", len(row), len(cols))
		}
		table.Rows = append(table.Rows, row)
	}
	ev.Push(table)
	ev.lastExit = 0
	return nil
}

// builtinGet indexes into a map by key, a list by position, or a table
// by column name.
func builtinGet(ev *Evaluator) error {
	key, err := ev.popFor("get")
	if err != nil {
		return err
	}
	container, err := ev.popFor("get")
	if err != nil {
		return err
	}

	switch container := container.(type) {
	case value.Map:
		v, ok := container[key.String()]
		if !ok {
			ev.Push(value.Nil{})
			ev.lastExit = 1
			return nil
		}
		ev.Push(v)

	case value.List:
		idx, err := value.AsNumber(key)
		if err != nil {
			return typeErr("get", "a numeric index", key)
		}
		i := int(idx)
		if i < 0 || i >= len(container) {
			return execErrf("get", "index %d out of range [0, %d)", i, len(container))
		}
		ev.Push(container[i])

	case *value.Table:
		col := -1
		for i, name := range container.Cols {
			if name == key.String() {
				col = i
				break
			}
		}
		if col < 0 {
			return execErrf("get", "no column %q", key.String())
		}
		column := make(value.List, 0, len(container.Rows))
		for _, row := range container.Rows {
			column = append(column, row[col])
		}
		ev.Push(column)

	default:
		return typeErr("get", "a map, list, or table", container)
	}
	ev.lastExit = 0
	return nil
}

// builtinNth pops an index then a container and pushes the element at
// that position. Table rows come back as records keyed by column name.
func builtinNth(ev *Evaluator) error {
	key, err := ev.popFor("nth")
	if err != nil {
		return err
	}
	idx, err := value.AsNumber(key)
	if err != nil {
		return typeErr("nth", "a numeric index", key)
	}
	container, err := ev.popFor("nth")
	if err != nil {
		return err
	}

	i := int(idx)
	switch container := container.(type) {
	case value.List:
		if i < 0 || i >= len(container) {
			return execErrf("nth", "index %d out of range [0, %d)", i, len(container))
		}
		ev.Push(container[i])

	case *value.Table:
		if i < 0 || i >= len(container.Rows) {
			return execErrf("nth", "row %d out of range [0, %d)", i, len(container.Rows))
		}
		row := make(value.Map, len(container.Cols))
		for j, col := range container.Cols {
			row[col] = container.Rows[i][j]
		}
		ev.Push(row)

	default:
		return typeErr("nth", "a list or table", container)
	}
	ev.lastExit = 0
	return nil
}

// builtinPut pops value, key, and container and pushes the updated
// container.
func builtinPut(ev *Evaluator) error {
	v, err := ev.popFor("put")
	if err != nil {
		return err
	}
	key, err := ev.popFor("put")
	if err != nil {
		return err
	}
	container, err := ev.popFor("put")
	if err != nil {
		return err
	}

	switch container := container.(type) {
	case value.Map:
		out := make(value.Map, len(container)+1)
		for k, existing := range container {
			out[k] = existing
		}
		out[key.String()] = v
		ev.Push(out)

	case value.List:
		idx, err := value.AsNumber(key)
		if err != nil {
			return typeErr("put", "a numeric index", key)
		}
		i := int(idx)
		if i < 0 || i > len(container) {
			return execErrf("put", "index %d out of range [0, %d]", i, len(container))
		}
		out := make(value.List, len(container))
		copy(out, container)
		if i == len(out) {
			out = append(out, v)
		} else {
			out[i] = v
		}
		ev.Push(out)

	default:
		return typeErr("put", "a map or list", container)
	}
	ev.lastExit = 0
	return nil
}

func builtinLen(ev *Evaluator) error {
	v, err := ev.popFor("len")
	if err != nil {
		return err
	}

	var n int
	switch v := v.(type) {
	case value.List:
		n = len(v)
	case value.Map:
		n = len(v)
	case *value.Table:
		n = len(v.Rows)
	default:
		if !value.IsText(v) {
			return typeErr("len", "a list, map, table, or text", v)
		}
		n = len(v.String())
	}
	ev.Push(value.Number(n))
	ev.lastExit = 0
	return nil
}

func builtinReverse(ev *Evaluator) error {
	v, err := ev.popFor("reverse")
	if err != nil {
		return err
	}
	items, ok := v.(value.List)
	if !ok {
		return typeErr("reverse", "a list", v)
	}

	out := make(value.List, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}
	ev.Push(out)
	ev.lastExit = 0
	return nil
}

// builtinKeys pushes a map's keys as a sorted list.
func builtinKeys(ev *Evaluator) error {
	v, err := ev.popFor("keys")
	if err != nil {
		return err
	}
	m, ok := v.(value.Map)
	if !ok {
		return typeErr("keys", "a map", v)
	}

	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make(value.List, 0, len(names))
	for _, k := range names {
		out = append(out, value.Literal(k))
	}
	ev.Push(out)
	ev.lastExit = 0
	return nil
}

// builtinFromCSV parses CSV text into a table using the first row as the
// header.
func builtinFromCSV(ev *Evaluator) error {
	text, err := ev.popText("fromcsv")
	if err != nil {
		return err
	}

	records, err := csv.NewReader(strings.NewReader(text)).ReadAll()
	if err != nil {
		return execErrf("fromcsv", "%v", err)
	}
	if len(records) == 0 {
		return execErrf("fromcsv", "empty input")
	}

	table := &value.Table{Cols: records[0]}
	for _, record := range records[1:] {
		row := make(value.List, 0, len(record))
		for _, field := range record {
			row = append(row, value.Literal(field))
		}
		table.Rows = append(table.Rows, row)
	}
	ev.Push(table)
	ev.lastExit = 0
	return nil
}

func builtinToCSV(ev *Evaluator) error {
	v, err := ev.popFor("tocsv")
	if err != nil {
		return err
	}
	table, ok := v.(*value.Table)
	if !ok {
		return typeErr("tocsv", "a table", v)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(table.Cols); err != nil {
		return execErrf("tocsv", "%v", err)
	}
	for _, row := range table.Rows {
		record := make([]string, 0, len(row))
		for _, cell := range row {
			record = append(record, cell.String())
		}
		if err := w.Write(record); err != nil {
			return execErrf("tocsv", "%v", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return execErrf("tocsv", "%v", err)
	}
	ev.Push(value.Output(strings.TrimRight(buf.String(), "\n")))
	ev.lastExit = 0
	return nil
}

// pmapWorkers bounds the concurrency of pmap.
const pmapWorkers = 8

// cloneForWorker builds an isolated evaluator sharing this one's
// definitions and a snapshot of its environment, for concurrent use.
func (ev *Evaluator) cloneForWorker() *Evaluator {
	worker := New(ev.cfg,
		WithFs(ev.fs),
		WithLogger(ev.log),
		WithEnviron(ev.env.Environ()),
		WithIO(ev.stdin, ev.stdout, ev.stderr))
	worker.cwd = ev.cwd
	for name, body := range ev.defs {
		worker.defs[name] = body
	}
	for name, body := range ev.aliases {
		worker.aliases[name] = body
	}
	return worker
}

// builtinPmap maps a block over a list concurrently. Each item runs on
// its own evaluator clone; results keep input order.
func builtinPmap(ev *Evaluator) error {
	block, err := ev.popBlock("pmap")
	if err != nil {
		return err
	}
	v, err := ev.popFor("pmap")
	if err != nil {
		return err
	}
	items, ok := v.(value.List)
	if !ok {
		return typeErr("pmap", "a list", v)
	}

	results := make(value.List, len(items))
	errs := make([]error, len(items))
	sem := make(chan struct{}, pmapWorkers)

	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			worker := ev.cloneForWorker()
			worker.Push(items[i])
			if _, err := worker.run(block.Body, true, true); err != nil {
				errs[i] = err
				return
			}
			result, err := worker.popFor("pmap")
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = result
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	ev.Push(results)
	ev.lastExit = 0
	return nil
}

func init() {
	registerBuiltin("exit", builtinExit)
	registerBuiltin("true", builtinTrue)
	registerBuiltin("false", builtinFalse)
	registerBuiltin("clear", builtinClear)

	registerBuiltin("plus", binaryNumberOp("plus", func(x, y float64) (float64, error) {
		return x + y, nil
	}))
	registerBuiltin("minus", binaryNumberOp("minus", func(x, y float64) (float64, error) {
		return x - y, nil
	}))
	registerBuiltin("mult", binaryNumberOp("mult", func(x, y float64) (float64, error) {
		return x * y, nil
	}))
	registerBuiltin("div", binaryNumberOp("div", func(x, y float64) (float64, error) {
		if y == 0 {
			return 0, execErrf("div", "division by zero")
		}
		return x / y, nil
	}))
	registerBuiltin("mod", binaryNumberOp("mod", func(x, y float64) (float64, error) {
		if y == 0 {
			return 0, execErrf("mod", "division by zero")
		}
		return math.Mod(x, y), nil
	}))

	registerBuiltin("eq", comparison("eq", func(x, y value.Value) bool {
		return compareValues(x, y) == 0
	}))
	registerBuiltin("lt", comparison("lt", func(x, y value.Value) bool {
		return compareValues(x, y) < 0
	}))
	registerBuiltin("gt", comparison("gt", func(x, y value.Value) bool {
		return compareValues(x, y) > 0
	}))
	registerBuiltin("not", builtinNot)

	registerBuiltin("split", builtinSplit)
	registerBuiltin("split1", builtinSplit1)
	registerBuiltin("join", builtinJoin)
	registerBuiltin("concat", builtinConcat)
	registerBuiltin("upper", textOp("upper", strings.ToUpper))
	registerBuiltin("lower", textOp("lower", strings.ToLower))
	registerBuiltin("trim", textOp("trim", strings.TrimSpace))
	registerBuiltin("replace", builtinReplace)
	registerBuiltin("lines", builtinLines)
	registerBuiltin("words", builtinWords)

	registerBuiltin("list", builtinList)
	registerBuiltin("record", builtinRecord)
	registerBuiltin("table", builtinMakeTable)
	registerBuiltin("get", builtinGet)
	registerBuiltin("put", builtinPut)
	registerBuiltin("nth", builtinNth)
	registerBuiltin("len", builtinLen)
	registerBuiltin("reverse", builtinReverse)
	registerBuiltin("keys", builtinKeys)
	registerBuiltin("fromcsv", builtinFromCSV)
	registerBuiltin("tocsv", builtinToCSV)
	registerBuiltin("pmap", builtinPmap)
}
