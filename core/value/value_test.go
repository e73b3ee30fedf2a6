package value

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumberString(t *testing.T) {
	cases := map[string]struct {
		in   Number
		want string
	}{
		"integer":  {8, "8"},
		"fraction": {3.5, "3.5"},
		"negative": {-2, "-2"},
		"large":    {1000000, "1e+06"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.String())
		})
	}
}

func TestAsNumber(t *testing.T) {
	t.Run("number", func(t *testing.T) {
		n, err := AsNumber(Number(4))
		assert.NoError(t, err)
		assert.Equal(t, 4.0, n)
	})

	t.Run("text parses", func(t *testing.T) {
		n, err := AsNumber(Literal(" 42 "))
		assert.NoError(t, err)
		assert.Equal(t, 42.0, n)
	})

	t.Run("captured output parses", func(t *testing.T) {
		n, err := AsNumber(Output("3.5"))
		assert.NoError(t, err)
		assert.Equal(t, 3.5, n)
	})

	t.Run("bool converts", func(t *testing.T) {
		n, err := AsNumber(Bool(true))
		assert.NoError(t, err)
		assert.Equal(t, 1.0, n)
	})

	t.Run("bad text fails", func(t *testing.T) {
		_, err := AsNumber(Literal("nope"))
		assert.Error(t, err)
	})

	t.Run("block fails", func(t *testing.T) {
		_, err := AsNumber(Block{})
		assert.Error(t, err)
	})
}

func TestIsText(t *testing.T) {
	assert.True(t, IsText(Literal("a")))
	assert.True(t, IsText(Output("a")))
	assert.False(t, IsText(Number(1)))
	assert.False(t, IsText(Marker{}))
}

func ExampleMap_String() {
	m := Map{"b": Number(2), "a": Literal("one")}
	fmt.Println(m)

	// Output: a=one
	// b=2
}

func ExampleTable_String() {
	tbl := &Table{
		Cols: []string{"name", "size"},
		Rows: [][]Value{
			{Literal("a.txt"), Number(10)},
			{Literal("b.txt"), Number(20)},
		},
	}
	fmt.Println(tbl)

	// Output: name	size
	// a.txt	10
	// b.txt	20
}

func TestErrorString(t *testing.T) {
	withCommand := &Error{Class: ErrClassExec, Command: "ls", Message: "boom"}
	assert.Equal(t, "error(execution): ls: boom", withCommand.String())

	bare := &Error{Class: ErrClassUnderflow, Message: "empty"}
	assert.Equal(t, "error(stack-underflow): empty", bare.String())
}
