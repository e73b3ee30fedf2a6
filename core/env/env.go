// Package env provides the evaluator's owned environment: a map-backed
// variable store with a dynamic scope-frame stack. The real process
// environment is never mutated; it is only materialized at spawn time via
// Environ.
package env

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// frame holds the bindings introduced by one scope (word invocation or
// scoped block). A nil pointer in values means the name is bound but
// currently unset.
type frame struct {
	values map[string]*string
}

// Env implements a scoped in-memory environment.
type Env struct {
	rw     sync.RWMutex
	global map[string]string
	frames []*frame
}

// New creates an empty environment.
func New() *Env {
	return &Env{global: make(map[string]string)}
}

// NewFromEnviron creates an environment seeded from a KEY=value list such
// as os.Environ().
func NewFromEnviron(environ []string) *Env {
	out := New()
	for _, e := range environ {
		split := strings.SplitN(e, "=", 2)
		key, value := split[0], ""
		if len(split) > 1 {
			value = split[1]
		}
		out.global[key] = value
	}
	return out
}

// NewFromOS creates an environment seeded from the process environment.
func NewFromOS() *Env {
	return NewFromEnviron(os.Environ())
}

// PushScope opens a new scope frame.
func (m *Env) PushScope() {
	m.rw.Lock()
	defer m.rw.Unlock()
	m.frames = append(m.frames, &frame{values: make(map[string]*string)})
}

// PopScope discards the top scope frame, unshadowing every name it bound.
// Popping with no open frame is a programming error.
func (m *Env) PopScope() {
	m.rw.Lock()
	defer m.rw.Unlock()
	if len(m.frames) == 0 {
		panic("env: PopScope without matching PushScope")
	}
	m.frames = m.frames[:len(m.frames)-1]
}

// Depth reports the number of open scope frames.
func (m *Env) Depth() int {
	m.rw.RLock()
	defer m.rw.RUnlock()
	return len(m.frames)
}

// Local binds a name in the innermost frame, shadowing any outer value
// with the empty string. With no open frame it behaves like Setenv.
func (m *Env) Local(key string) error {
	m.rw.Lock()
	defer m.rw.Unlock()
	if len(m.frames) == 0 {
		m.global[key] = ""
		return nil
	}
	empty := ""
	m.frames[len(m.frames)-1].values[key] = &empty
	return nil
}

// Setenv writes to the innermost frame binding the name, or to the global
// scope if no frame binds it.
func (m *Env) Setenv(key, value string) error {
	m.rw.Lock()
	defer m.rw.Unlock()
	for i := len(m.frames) - 1; i >= 0; i-- {
		if _, ok := m.frames[i].values[key]; ok {
			m.frames[i].values[key] = &value
			return nil
		}
	}
	m.global[key] = value
	return nil
}

// SetLocal binds a name with a value in the innermost frame.
func (m *Env) SetLocal(key, value string) error {
	m.rw.Lock()
	defer m.rw.Unlock()
	if len(m.frames) == 0 {
		m.global[key] = value
		return nil
	}
	m.frames[len(m.frames)-1].values[key] = &value
	return nil
}

// Unsetenv removes the innermost binding of the name. Inside a frame that
// binds the name the removal is scoped; otherwise the global value is
// deleted.
func (m *Env) Unsetenv(key string) error {
	m.rw.Lock()
	defer m.rw.Unlock()
	for i := len(m.frames) - 1; i >= 0; i-- {
		if _, ok := m.frames[i].values[key]; ok {
			m.frames[i].values[key] = nil
			return nil
		}
	}
	delete(m.global, key)
	return nil
}

// LookupEnv reads a variable, searching frames innermost-first.
func (m *Env) LookupEnv(key string) (string, bool) {
	m.rw.RLock()
	defer m.rw.RUnlock()
	for i := len(m.frames) - 1; i >= 0; i-- {
		if v, ok := m.frames[i].values[key]; ok {
			if v == nil {
				return "", false
			}
			return *v, true
		}
	}
	v, ok := m.global[key]
	return v, ok
}

// Getenv reads a variable, returning "" when unset.
func (m *Env) Getenv(key string) string {
	v, _ := m.LookupEnv(key)
	return v
}

// ExpandEnv substitutes ${var} or $var references in the string.
func (m *Env) ExpandEnv(s string) string {
	return os.Expand(s, m.Getenv)
}

// UserHomeDir returns the home directory from the environment.
func (m *Env) UserHomeDir() (string, error) {
	if home := m.Getenv("HOME"); home != "" {
		return home, nil
	}
	return "", fmt.Errorf("HOME is not set")
}

// Environ flattens the environment, locals shadowing globals, into a
// sorted KEY=value list suitable for process spawning.
func (m *Env) Environ() []string {
	m.rw.RLock()
	defer m.rw.RUnlock()

	flat := make(map[string]*string, len(m.global))
	for k := range m.global {
		v := m.global[k]
		flat[k] = &v
	}
	for _, f := range m.frames {
		for k, v := range f.values {
			flat[k] = v
		}
	}

	var env []string
	for k, v := range flat {
		if v != nil {
			env = append(env, fmt.Sprintf("%s=%s", k, *v))
		}
	}
	sort.Strings(env)
	return env
}
