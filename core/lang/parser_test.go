package lang

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want []Expr
	}{
		{
			name: "words and operators",
			src:  "echo hi dup",
			want: []Expr{Word("echo"), Word("hi"), Operator(OpDup)},
		},
		{
			name: "quoting",
			src:  `'raw $X' "interp $X"`,
			want: []Expr{Quoted("raw $X", false), Quoted("interp $X", true)},
		},
		{
			name: "escaped double quote",
			src:  `"a\"b"`,
			want: []Expr{Quoted(`a"b`, true)},
		},
		{
			name: "other escapes stay raw for interpolation",
			src:  `"a\$b"`,
			want: []Expr{Quoted(`a\$b`, true)},
		},
		{
			name: "variables",
			src:  `$PATH ${X}`,
			want: []Expr{Var("PATH"), Word("${X}")},
		},
		{
			name: "bare dollar is a word",
			src:  `$ $1x`,
			want: []Expr{Word("$"), Word("$1x")},
		},
		{
			name: "define",
			src:  `[ 'hi' ] :greet`,
			want: []Expr{Block(Quoted("hi", false)), Define("greet")},
		},
		{
			name: "nested blocks",
			src:  `[ a [ b ] ]`,
			want: []Expr{Block(Word("a"), Block(Word("b")))},
		},
		{
			name: "empty block",
			src:  `[ ]`,
			want: []Expr{{Kind: KindBlock, Body: []Expr{}}},
		},
		{
			name: "comments run to end of line",
			src:  "a # skip this ]\nb",
			want: []Expr{Word("a"), Word("b")},
		},
		{
			name: "process operators",
			src:  `| > >> < 2> 2>&1 & && || timeout`,
			want: []Expr{
				Operator(OpPipe), Operator(OpRedirOut), Operator(OpRedirAppend),
				Operator(OpRedirIn), Operator(OpRedirErr), Operator(OpRedirErrToOut),
				Operator(OpBackground), Operator(OpAnd), Operator(OpOr),
				Operator(OpTimeout),
			},
		},
		{
			name: "persistent assignment",
			src:  `X=1`,
			want: []Expr{{Kind: KindScoped, Binds: []Bind{{Name: "X", Value: "1"}}}},
		},
		{
			name: "scoped block folds assignment run",
			src:  `X=1 Y=two [ a ]`,
			want: []Expr{{
				Kind:  KindScoped,
				Binds: []Bind{{Name: "X", Value: "1"}, {Name: "Y", Value: "two"}},
				Body:  []Expr{Word("a")},
			}},
		},
		{
			name: "assignment needs a name",
			src:  `=x 2=3`,
			want: []Expr{Word("=x"), Word("2=3")},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.src)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"unterminated block", `[ a`},
		{"unexpected close", `a ]`},
		{"unterminated single quote", `'abc`},
		{"unterminated double quote", `"abc`},
		{"trailing backslash", `"abc\`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.src)
			assert.Error(t, err)
			assert.IsType(t, &SyntaxError{}, err)
		})
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	_, err := Parse("a\nb ]")
	syntaxErr, ok := err.(*SyntaxError)
	if !ok {
		t.Fatalf("want *SyntaxError, got %v", err)
	}
	assert.Equal(t, 2, syntaxErr.Line)
	assert.Equal(t, 3, syntaxErr.Col)
}

func TestFormatSequence(t *testing.T) {
	src := `'a' "b" $X [ c ] :d dup`
	exprs, err := Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, src, FormatSequence(exprs))
}
