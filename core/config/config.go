package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
	LibDirName        = "lib"
	HistoryName       = "history"
	TraceLogName      = "trace.jsonl"
)

// Configuration holds the user-tunable shell settings.
type Configuration struct {
	configFs  afero.Fs
	configDir string

	// MaxCallDepth bounds word-call recursion.
	MaxCallDepth int `json:"max_call_depth" validate:"gt=0"`

	// Prompt is the interactive prompt template; \w expands to the
	// working directory and \s to the stack depth.
	Prompt string `json:"prompt" validate:"required"`

	// ModulePathVar names the colon-separated search-path environment
	// variable consulted by import.
	ModulePathVar string `json:"module_path_var" validate:"required"`

	// TraceLog enables event logging to the named file under the config
	// dir when set.
	TraceLog string `json:"trace_log"`

	// CompressTraceLog gzips the trace log stream.
	CompressTraceLog bool `json:"compress_trace_log"`

	// TimeoutPollMillis is the poll interval for the timeout operator.
	TimeoutPollMillis int `json:"timeout_poll_millis" validate:"gt=0"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() afero.Fs {
	if c.configFs == nil {
		c.configFs = afero.NewOsFs()
	}
	return c.configFs
}

// Dir reports the configuration directory.
func (c *Configuration) Dir() string {
	return c.configDir
}

// LibDir reports the module library directory under the config dir.
func (c *Configuration) LibDir() string {
	return filepath.Join(c.configDir, LibDirName)
}

// HistoryPath reports the REPL history file path.
func (c *Configuration) HistoryPath() string {
	return filepath.Join(c.configDir, HistoryName)
}

// OpenTraceLog opens the trace log in an append only state.
func (c *Configuration) OpenTraceLog() (afero.File, error) {
	name := c.TraceLog
	if c.CompressTraceLog && !strings.HasSuffix(name, ".gz") {
		name += ".gz"
	}
	return c.fs().OpenFile(filepath.Join(c.configDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// ReadTraceLog opens the trace log for reading.
func (c *Configuration) ReadTraceLog() (afero.File, error) {
	name := c.TraceLog
	if c.CompressTraceLog && !strings.HasSuffix(name, ".gz") {
		name += ".gz"
	}
	return c.fs().OpenFile(filepath.Join(c.configDir, name), os.O_RDONLY, 0600)
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// Default returns the built-in configuration without touching the
// filesystem.
func Default() *Configuration {
	out := defaultConfig()
	out.configDir = "."
	return out
}
