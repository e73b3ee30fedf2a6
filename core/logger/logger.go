// Package logger is a standardized event logging framework for the shell.
package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/klauspost/compress/gzip"
)

// LogEntry is one newline-delimited JSON event. Exactly one of the event
// fields is set.
type LogEntry struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	SessionID       string `json:"session_id,omitempty"`

	CommandRun      *CommandRun      `json:"command_run,omitempty"`
	JobEvent        *JobEvent        `json:"job_event,omitempty"`
	ModuleImport    *ModuleImport    `json:"module_import,omitempty"`
	EvalError       *EvalError       `json:"eval_error,omitempty"`
	UnknownCommand  *UnknownCommand  `json:"unknown_command,omitempty"`
	RecursionDepth  *RecursionDepth  `json:"recursion_depth,omitempty"`
}

// CommandRun records a process or builtin execution.
type CommandRun struct {
	Command  []string `json:"command"`
	Captured bool     `json:"captured"`
	ExitCode int      `json:"exit_code"`
	Builtin  bool     `json:"builtin,omitempty"`
}

// JobEvent records a background-job lifecycle change.
type JobEvent struct {
	JobID  int    `json:"job_id"`
	Pid    int    `json:"pid"`
	Status string `json:"status"`
	Name   string `json:"name"`
}

// ModuleImport records a module being sourced or imported.
type ModuleImport struct {
	Path      string `json:"path"`
	Namespace string `json:"namespace,omitempty"`
}

// EvalError records a top-level evaluation failure.
type EvalError struct {
	Class   string `json:"class"`
	Message string `json:"message"`
}

// UnknownCommand records a word that fell through to a literal push.
type UnknownCommand struct {
	Word string `json:"word"`
}

// RecursionDepth records a recursion-ceiling violation.
type RecursionDepth struct {
	Word  string `json:"word"`
	Depth int    `json:"depth"`
}

// LogRecorder is a callback that stores events in an external datastore.
type LogRecorder func(le *LogEntry) error

// Logger captures interaction event logs.
type Logger struct {
	Record LogRecorder
}

// NewJSONLinesLogRecorder creates a Logger that exports logs in newline
// delimited JSON object format.
func NewJSONLinesLogRecorder(w io.Writer) *Logger {
	return &Logger{
		Record: func(le *LogEntry) error {
			entry, err := json.Marshal(le)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

// NewGzipJSONLinesLogRecorder wraps the writer in a gzip stream; Close
// must be called to flush the trailing block.
func NewGzipJSONLinesLogRecorder(w io.Writer) (*Logger, io.Closer) {
	zw := gzip.NewWriter(w)
	return NewJSONLinesLogRecorder(zw), zw
}

// NewNopLogger discards all events.
func NewNopLogger() *Logger {
	return &Logger{Record: func(le *LogEntry) error { return nil }}
}

func (l *Logger) record(sessionID string, le *LogEntry) error {
	le.TimestampMicros = time.Now().UnixNano() / int64(time.Microsecond/time.Nanosecond)
	le.SessionID = sessionID
	return l.Record(le)
}

// NewSession creates a logger with attached session ID.
func (l *Logger) NewSession() *SessionLogger {
	return &SessionLogger{logger: l, sessionID: fmt.Sprintf("%d", rand.Uint64())}
}

// Sessionless creates a logger without a session ID.
func (l *Logger) Sessionless() *SessionLogger {
	return &SessionLogger{logger: l}
}

// SessionLogger logs messages with a shared session ID.
type SessionLogger struct {
	logger    *Logger
	sessionID string
}

// Record stores one event.
func (l *SessionLogger) Record(le *LogEntry) error {
	return l.logger.record(l.sessionID, le)
}

// ReadJSONLinesLog parses a newline delimited JSON log, transparently
// handling gzip-compressed streams.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	buffered, isGzip, err := sniffGzip(r)
	if err != nil {
		return err
	}
	if isGzip {
		zr, err := gzip.NewReader(buffered)
		if err != nil {
			return err
		}
		defer zr.Close()
		buffered = zr
	}

	decoder := json.NewDecoder(buffered)
	for decoder.More() {
		var logEntry LogEntry
		if err := decoder.Decode(&logEntry); err != nil {
			return err
		}
		handler(&logEntry)
	}
	return nil
}

func sniffGzip(r io.Reader) (io.Reader, bool, error) {
	header := make([]byte, 2)
	n, err := io.ReadFull(r, header)
	switch {
	case err == io.EOF:
		return bytes.NewReader(nil), false, nil
	case err == io.ErrUnexpectedEOF || err == nil:
		combined := io.MultiReader(bytes.NewReader(header[:n]), r)
		return combined, n == 2 && header[0] == 0x1f && header[1] == 0x8b, nil
	default:
		return nil, false, err
	}
}
