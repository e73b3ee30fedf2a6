package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFgWaitsForJob(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	result, err := ev.EvalString(`[ sleep 0.3 ] & fg`)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)

	job, ok := ev.jobs.get(1)
	require.True(t, ok)
	assert.Equal(t, JobDone, job.Status)
}

func TestFgWithoutJobs(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	_, err := ev.EvalString(`fg`)
	assert.Error(t, err)
}

func TestKillStopAndBgResume(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	_, err := ev.EvalString(`[ sleep 5 ] &`)
	require.NoError(t, err)
	job, ok := ev.jobs.get(1)
	require.True(t, ok)

	_, err = ev.EvalString(`'-STOP' '%1' kill`)
	require.NoError(t, err)
	assert.Equal(t, JobStopped, job.Status)

	_, err = ev.EvalString(`bg`)
	require.NoError(t, err)
	assert.Equal(t, JobRunning, job.Status)

	_, err = ev.EvalString(`'-KILL' '%1' kill wait`)
	require.NoError(t, err)
	assert.Equal(t, JobDone, job.Status)
}

func TestKillByName(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	_, err := ev.EvalString(`[ sleep 5 ] & '-s' 'TERM' '%1' kill wait`)
	require.NoError(t, err)

	job, ok := ev.jobs.get(1)
	require.True(t, ok)
	assert.Equal(t, JobDone, job.Status)
}

func TestKillListsSignals(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	result, err := ev.EvalString(`'-l' kill`)
	require.NoError(t, err)
	require.Len(t, result.Stack, 1)
	assert.Contains(t, result.Stack[0].String(), "TERM")
	assert.Equal(t, 0, result.ExitCode)
}

func TestKillBadJobspec(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	_, err := ev.EvalString(`'%9' kill`)
	assert.Error(t, err)
}

func TestKillWithoutTargets(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	_, err := ev.EvalString(`kill`)
	assert.Error(t, err)
}

func TestLookupSignal(t *testing.T) {
	cases := map[string]struct {
		name string
		ok   bool
	}{
		"bare name":   {"TERM", true},
		"sig prefix":  {"SIGUSR1", true},
		"lower case":  {"hup", true},
		"numeric":     {"9", true},
		"unknown":     {"NOPE", false},
		"empty":       {"", false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := lookupSignal(tc.name)
			assert.Equal(t, tc.ok, ok)
		})
	}
}
