package eval

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Classification answers "is this word a runnable command".
type Classification int

const (
	ClassNone Classification = iota
	ClassBuiltin
	ClassDefinition
	ClassExecutable
)

// classifier resolves bare words to executables with a PATH-backed cache.
// The cache is dropped whenever PATH changes.
type classifier struct {
	ev *Evaluator

	mu         sync.Mutex
	cachedPath string
	cache      map[string]string
}

func newClassifier(ev *Evaluator) *classifier {
	return &classifier{ev: ev, cache: make(map[string]string)}
}

// classify places a word in the command taxonomy by the evaluator's
// dispatch precedence.
func (c *classifier) classify(word string) Classification {
	switch {
	case c.ev.HasDefinition(word):
		return ClassDefinition
	case builtinTable[word] != nil:
		return ClassBuiltin
	case c.findExecutable(word) != "":
		return ClassExecutable
	default:
		return ClassNone
	}
}

// findExecutable resolves a command name to an executable path, or ""
// when none exists. Names containing a path separator resolve against
// the working directory without consulting PATH.
func (c *classifier) findExecutable(name string) string {
	if name == "" {
		return ""
	}

	if strings.ContainsRune(name, '/') {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.ev.cwd, path)
		}
		if isExecutable(path) {
			return path
		}
		return ""
	}

	pathEnv := c.ev.env.Getenv("PATH")

	c.mu.Lock()
	defer c.mu.Unlock()
	if pathEnv != c.cachedPath {
		c.cachedPath = pathEnv
		c.cache = make(map[string]string)
	}
	if cached, ok := c.cache[name]; ok {
		return cached
	}

	found := ""
	for _, dir := range filepath.SplitList(pathEnv) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			found = candidate
			break
		}
	}
	c.cache[name] = found
	return found
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
