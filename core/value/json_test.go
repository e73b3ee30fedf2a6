package value

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestToJSON(t *testing.T) {
	cases := map[string]struct {
		in   Value
		want string
	}{
		"text":   {Literal("hi"), `"hi"`},
		"number": {Number(3.5), `3.5`},
		"bool":   {Bool(true), `true`},
		"nil":    {Nil{}, `null`},
		"list":   {List{Number(1), Literal("a")}, `[1,"a"]`},
		"map":    {Map{"k": Literal("v")}, `{"k":"v"}`},
		"table": {
			&Table{Cols: []string{"a", "b"}, Rows: [][]Value{{Number(1), Number(2)}}},
			`[{"a":1,"b":2}]`,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ToJSON(tc.in)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("marker fails", func(t *testing.T) {
		_, err := ToJSON(Marker{})
		assert.Error(t, err)
	})
}

func TestFromJSON(t *testing.T) {
	cases := map[string]struct {
		in   string
		want Value
	}{
		"number": {`42`, Number(42)},
		"string": {`"hi"`, Literal("hi")},
		"null":   {`null`, Nil{}},
		"array":  {`[1,"a"]`, List{Number(1), Literal("a")}},
		"object": {`{"k":true}`, Map{"k": Bool(true)}},
		"uniform object array becomes table": {
			`[{"b":2,"a":1},{"a":3,"b":4}]`,
			&Table{
				Cols: []string{"a", "b"},
				Rows: [][]Value{{Number(1), Number(2)}, {Number(3), Number(4)}},
			},
		},
		"ragged object array stays a list": {
			`[{"a":1},{"a":1,"b":2}]`,
			List{Map{"a": Number(1)}, Map{"a": Number(1), "b": Number(2)}},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := FromJSON(tc.in)
			assert.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("FromJSON() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("bad json", func(t *testing.T) {
		_, err := FromJSON(`{nope`)
		assert.Error(t, err)
	})
}
