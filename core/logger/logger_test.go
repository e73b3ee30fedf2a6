package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONLinesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSONLinesLogRecorder(&buf).NewSession()

	assert.NoError(t, log.Record(&LogEntry{CommandRun: &CommandRun{
		Command:  []string{"echo", "hi"},
		ExitCode: 0,
	}}))
	assert.NoError(t, log.Record(&LogEntry{UnknownCommand: &UnknownCommand{Word: "frob"}}))

	var got []*LogEntry
	err := ReadJSONLinesLog(&buf, func(le *LogEntry) {
		got = append(got, le)
	})
	assert.NoError(t, err)
	assert.Len(t, got, 2)

	assert.Equal(t, []string{"echo", "hi"}, got[0].CommandRun.Command)
	assert.Equal(t, "frob", got[1].UnknownCommand.Word)
	assert.NotZero(t, got[0].TimestampMicros)
	assert.NotEmpty(t, got[0].SessionID)
	assert.Equal(t, got[0].SessionID, got[1].SessionID)
}

func TestGzipRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log, closer := NewGzipJSONLinesLogRecorder(&buf)
	session := log.Sessionless()

	assert.NoError(t, session.Record(&LogEntry{EvalError: &EvalError{
		Class:   "execution",
		Message: "boom",
	}}))
	assert.NoError(t, closer.Close())

	// The reader sniffs the gzip magic transparently.
	var got []*LogEntry
	err := ReadJSONLinesLog(&buf, func(le *LogEntry) {
		got = append(got, le)
	})
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "boom", got[0].EvalError.Message)
}

func TestReadEmptyLog(t *testing.T) {
	count := 0
	err := ReadJSONLinesLog(bytes.NewReader(nil), func(le *LogEntry) { count++ })
	assert.NoError(t, err)
	assert.Zero(t, count)
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger().Sessionless()
	assert.NoError(t, log.Record(&LogEntry{}))
}

func TestUsageReport(t *testing.T) {
	report := NewUsageReport()

	report.Update(&LogEntry{CommandRun: &CommandRun{Command: []string{"ls", "-la"}}})
	report.Update(&LogEntry{CommandRun: &CommandRun{Command: []string{"ls"}}})
	report.Update(&LogEntry{UnknownCommand: &UnknownCommand{Word: "wat"}})
	report.Update(&LogEntry{EvalError: &EvalError{Class: "type-mismatch"}})
	report.Update(&LogEntry{ModuleImport: &ModuleImport{Path: "/lib/strings.tac"}})
	report.Update(&LogEntry{JobEvent: &JobEvent{Status: "Running"}})
	report.Update(&LogEntry{JobEvent: &JobEvent{Status: "Done"}})

	assert.Equal(t, 7, report.LogEntries)
	assert.Equal(t, 2, report.Commands["ls"])
	assert.Equal(t, 1, report.UnknownWords["wat"])
	assert.Equal(t, 1, report.ErrorsByClass["type-mismatch"])
	assert.Equal(t, 1, report.ImportedModules["/lib/strings.tac"])
	assert.Equal(t, 1, report.JobsStarted)
}

func TestWriteText(t *testing.T) {
	report := NewUsageReport()
	report.Update(&LogEntry{CommandRun: &CommandRun{Command: []string{"cat"}}})
	report.Update(&LogEntry{CommandRun: &CommandRun{Command: []string{"cat"}}})
	report.Update(&LogEntry{CommandRun: &CommandRun{Command: []string{"ls"}}})

	var buf bytes.Buffer
	assert.NoError(t, report.WriteText(&buf))

	out := buf.String()
	assert.Contains(t, out, "log entries: 3")
	// Descending by count.
	assert.Regexp(t, `(?s)cat.*ls`, out)
}
