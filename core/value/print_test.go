package value

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
)

func TestPrinterGolden(t *testing.T) {
	cases := map[string]Value{
		"scalar": Literal("hi"),
		"table": &Table{
			Cols: []string{"name", "size"},
			Rows: [][]Value{
				{Literal("a.txt"), Number(10)},
				{Literal("longer-name.txt"), Number(2048)},
			},
		},
		"map": Map{
			"host": Literal("example.com"),
			"port": Number(8080),
		},
		"error": &Error{Class: ErrClassExec, Command: "ls", Message: "boom"},
	}

	g := goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
		goldie.WithTestNameForDir(true),
	)

	printer := &Printer{Colorize: false}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := printer.Print(&buf, v); err != nil {
				t.Fatal(err)
			}
			g.Assert(t, name, buf.Bytes())
		})
	}
}

func TestPrinterNilIsSilent(t *testing.T) {
	var buf bytes.Buffer
	printer := &Printer{}
	if err := printer.Print(&buf, Nil{}); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("want no output for nil, got %q", buf.String())
	}
}
