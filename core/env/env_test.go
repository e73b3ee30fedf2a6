package env

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ExampleNewFromEnviron() {
	env := NewFromEnviron([]string{"A=B", "C=D", "E", "F=G=H"})

	fmt.Printf("Environ(): %q\n", env.Environ())
	fmt.Printf("Getenv(\"F\"): %q\n", env.Getenv("F"))

	// Output: Environ(): ["A=B" "C=D" "E=" "F=G=H"]
	// Getenv("F"): "G=H"
}

func ExampleEnv_Unsetenv() {
	env := New()
	env.Setenv("A", "B")
	env.Setenv("C", "D")

	fmt.Println("Before:", env.Environ())
	env.Unsetenv("A")
	fmt.Println("After:", env.Environ())

	// Output: Before: [A=B C=D]
	// After: [C=D]
}

func ExampleEnv_LookupEnv() {
	env := New()
	env.Setenv("A", "B")

	val, ok := env.LookupEnv("A")
	fmt.Println("Existing", "val:", val, "ok:", ok)
	val, ok = env.LookupEnv("B")
	fmt.Println("Missing", "val:", val, "ok:", ok)

	// Output: Existing val: B ok: true
	// Missing val:  ok: false
}

func TestScopeShadowing(t *testing.T) {
	env := New()
	env.Setenv("X", "outer")

	env.PushScope()
	assert.NoError(t, env.SetLocal("X", "inner"))
	assert.Equal(t, "inner", env.Getenv("X"))

	env.PopScope()
	assert.Equal(t, "outer", env.Getenv("X"))
}

func TestSetenvWritesInnermostBinding(t *testing.T) {
	env := New()
	env.Setenv("X", "global")

	env.PushScope()
	env.SetLocal("X", "local")

	// Setenv targets the frame that binds X, not the global scope.
	env.Setenv("X", "updated")
	assert.Equal(t, "updated", env.Getenv("X"))

	env.PopScope()
	assert.Equal(t, "global", env.Getenv("X"))
}

func TestSetenvWithoutBindingIsGlobal(t *testing.T) {
	env := New()

	env.PushScope()
	env.Setenv("Y", "value")
	env.PopScope()

	// No frame bound Y, so the write landed globally and survives the pop.
	assert.Equal(t, "value", env.Getenv("Y"))
}

func TestScopedUnset(t *testing.T) {
	env := New()
	env.Setenv("X", "outer")

	env.PushScope()
	env.SetLocal("X", "inner")
	env.Unsetenv("X")

	_, ok := env.LookupEnv("X")
	assert.False(t, ok, "X should read as unset inside the frame")

	env.PopScope()
	assert.Equal(t, "outer", env.Getenv("X"))
}

func TestLocalShadowsWithEmpty(t *testing.T) {
	env := New()
	env.Setenv("X", "outer")

	env.PushScope()
	assert.NoError(t, env.Local("X"))
	assert.Equal(t, "", env.Getenv("X"))
	env.PopScope()

	assert.Equal(t, "outer", env.Getenv("X"))
}

func TestNestedFrames(t *testing.T) {
	env := New()
	env.Setenv("X", "0")

	env.PushScope()
	env.SetLocal("X", "1")
	env.PushScope()
	env.SetLocal("X", "2")

	assert.Equal(t, "2", env.Getenv("X"))
	assert.Equal(t, 2, env.Depth())

	env.PopScope()
	assert.Equal(t, "1", env.Getenv("X"))
	env.PopScope()
	assert.Equal(t, "0", env.Getenv("X"))
	assert.Equal(t, 0, env.Depth())
}

func TestEnvironHidesScopedUnset(t *testing.T) {
	env := New()
	env.Setenv("A", "1")
	env.Setenv("B", "2")

	env.PushScope()
	env.Unsetenv("A")

	assert.Equal(t, []string{"B=2"}, env.Environ())
}

func TestPopScopePanicsWithoutPush(t *testing.T) {
	env := New()
	assert.Panics(t, func() { env.PopScope() })
}

func TestExpandEnv(t *testing.T) {
	env := New()
	env.Setenv("NAME", "world")
	assert.Equal(t, "hello world", env.ExpandEnv("hello $NAME"))
	assert.Equal(t, "hello world", env.ExpandEnv("hello ${NAME}"))
}

func TestUserHomeDir(t *testing.T) {
	env := New()
	_, err := env.UserHomeDir()
	assert.Error(t, err)

	env.Setenv("HOME", "/home/me")
	home, err := env.UserHomeDir()
	assert.NoError(t, err)
	assert.Equal(t, "/home/me", home)
}
