package value

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	errorColor  = color.New(color.FgRed, color.Bold)
)

// Printer renders values for interactive display.
type Printer struct {
	// Colorize enables ANSI colors; callers should set it based on
	// whether the destination is a terminal.
	Colorize bool
}

func (p *Printer) sprintf(c *color.Color, format string, a ...interface{}) string {
	if p.Colorize {
		return c.Sprintf(format, a...)
	}
	return fmt.Sprintf(format, a...)
}

// Print writes a human-oriented rendering of the value.
func (p *Printer) Print(w io.Writer, v Value) error {
	switch v := v.(type) {
	case *Table:
		return p.printTable(w, v)
	case Map:
		return p.printMap(w, v)
	case *Error:
		_, err := fmt.Fprintln(w, p.sprintf(errorColor, "%s", v.String()))
		return err
	case Nil:
		return nil
	default:
		_, err := fmt.Fprintln(w, v.String())
		return err
	}
}

func (p *Printer) printTable(w io.Writer, t *Table) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	headers := make([]string, 0, len(t.Cols))
	for _, col := range t.Cols {
		headers = append(headers, p.sprintf(headerColor, "%s", strings.ToUpper(col)))
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for _, row := range t.Rows {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, cell.String())
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func (p *Printer) printMap(w io.Writer, m Map) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\n", p.sprintf(headerColor, "%s", k), m[k].String())
	}
	return tw.Flush()
}
