package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// NewUsageReport creates an empty report.
func NewUsageReport() *UsageReport {
	return &UsageReport{
		Commands:        make(map[string]int),
		UnknownWords:    make(map[string]int),
		ErrorsByClass:   make(map[string]int),
		ImportedModules: make(map[string]int),
	}
}

// UsageReport aggregates shell event logs into per-command statistics.
type UsageReport struct {
	LogEntries int `json:"log_entries"`

	Commands        map[string]int `json:"commands"`
	UnknownWords    map[string]int `json:"unknown_words"`
	ErrorsByClass   map[string]int `json:"errors_by_class"`
	ImportedModules map[string]int `json:"imported_modules"`
	JobsStarted     int            `json:"jobs_started"`
}

// Update folds one log entry into the report.
func (r *UsageReport) Update(le *LogEntry) {
	r.LogEntries++

	switch {
	case le.CommandRun != nil && len(le.CommandRun.Command) > 0:
		r.Commands[le.CommandRun.Command[0]]++
	case le.UnknownCommand != nil:
		r.UnknownWords[le.UnknownCommand.Word]++
	case le.EvalError != nil:
		r.ErrorsByClass[le.EvalError.Class]++
	case le.ModuleImport != nil:
		r.ImportedModules[le.ModuleImport.Path]++
	case le.JobEvent != nil && le.JobEvent.Status == "Running":
		r.JobsStarted++
	}
}

// WriteJSON renders the report as indented JSON.
func (r *UsageReport) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// WriteText renders a plain-text summary ordered by frequency.
func (r *UsageReport) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "log entries: %d\n", r.LogEntries)
	fmt.Fprintf(w, "jobs started: %d\n", r.JobsStarted)

	sections := []struct {
		name   string
		counts map[string]int
	}{
		{"commands", r.Commands},
		{"unknown words", r.UnknownWords},
		{"errors", r.ErrorsByClass},
		{"imported modules", r.ImportedModules},
	}

	for _, section := range sections {
		if len(section.counts) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", section.name)
		for _, line := range sortedCounts(section.counts) {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	return nil
}

func sortedCounts(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	// Descending count, name break ties.
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%6d %s", counts[k], k))
	}
	return out
}
