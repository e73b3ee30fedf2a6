package eval

import (
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/josephlewis42/tacsh/core/logger"
	"github.com/josephlewis42/tacsh/core/value"
)

// JobStatus tracks a background job's lifecycle.
type JobStatus int

const (
	JobRunning JobStatus = iota
	JobStopped
	JobDone
)

func (s JobStatus) String() string {
	switch s {
	case JobRunning:
		return "Running"
	case JobStopped:
		return "Stopped"
	case JobDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Job is one tracked background process. The process group id is the
// signal-delivery target; for jobs this shell spawns directly it equals
// the pid.
type Job struct {
	ID       int
	Pid      int
	Pgid     int
	Name     string
	Status   JobStatus
	ExitCode int

	cmd  *exec.Cmd
	done chan struct{}
}

type jobTable struct {
	mu     sync.Mutex
	nextID int
	jobs   map[int]*Job
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[int]*Job)}
}

// add registers a started command as a job and spawns its reaper.
func (t *jobTable) add(name string, cmd *exec.Cmd) *Job {
	t.mu.Lock()
	t.nextID++
	job := &Job{
		ID:     t.nextID,
		Pid:    cmd.Process.Pid,
		Pgid:   cmd.Process.Pid,
		Name:   name,
		Status: JobRunning,
		cmd:    cmd,
		done:   make(chan struct{}),
	}
	t.jobs[job.ID] = job
	t.mu.Unlock()

	go func() {
		err := cmd.Wait()
		t.mu.Lock()
		job.Status = JobDone
		if exit, ok := err.(*exec.ExitError); ok {
			job.ExitCode = exit.ExitCode()
		}
		t.mu.Unlock()
		close(job.done)
	}()
	return job
}

func (t *jobTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

func (t *jobTable) get(id int) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	return job, ok
}

// list returns all jobs ordered by id.
func (t *jobTable) list() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// newest returns the highest-numbered job matching the filter.
func (t *jobTable) newest(filter func(*Job) bool) (*Job, bool) {
	jobs := t.list()
	for i := len(jobs) - 1; i >= 0; i-- {
		if filter == nil || filter(jobs[i]) {
			return jobs[i], true
		}
	}
	return nil, false
}

func (t *jobTable) setStatus(job *Job, status JobStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job.Status != JobDone {
		job.Status = status
	}
}

var signalNames = map[string]syscall.Signal{
	"HUP":  syscall.SIGHUP,
	"INT":  syscall.SIGINT,
	"QUIT": syscall.SIGQUIT,
	"KILL": syscall.SIGKILL,
	"USR1": syscall.SIGUSR1,
	"USR2": syscall.SIGUSR2,
	"TERM": syscall.SIGTERM,
	"CONT": syscall.SIGCONT,
	"STOP": syscall.SIGSTOP,
}

func lookupSignal(name string) (syscall.Signal, bool) {
	name = strings.ToUpper(strings.TrimPrefix(name, "SIG"))
	if sig, ok := signalNames[name]; ok {
		return sig, true
	}
	if num, err := strconv.Atoi(name); err == nil {
		return syscall.Signal(num), true
	}
	return 0, false
}

// resolveJobspec accepts %N job references and bare job ids.
func (ev *Evaluator) resolveJobspec(op, spec string) (*Job, error) {
	idText := strings.TrimPrefix(spec, "%")
	id, err := strconv.Atoi(idText)
	if err != nil {
		return nil, execErrf(op, "bad job spec %q", spec)
	}
	job, ok := ev.jobs.get(id)
	if !ok {
		return nil, execErrf(op, "no such job %q", spec)
	}
	return job, nil
}

func (ev *Evaluator) logJob(job *Job) {
	ev.log.Record(&logger.LogEntry{JobEvent: &logger.JobEvent{
		JobID:  job.ID,
		Pid:    job.Pid,
		Status: job.Status.String(),
		Name:   job.Name,
	}})
}

// builtinJobs pushes the job table as a table value.
func builtinJobs(ev *Evaluator) error {
	table := &value.Table{Cols: []string{"id", "pid", "status", "command"}}
	for _, job := range ev.jobs.list() {
		status := job.Status.String()
		if job.Status == JobDone {
			status = fmt.Sprintf("Done(%d)", job.ExitCode)
		}
		table.Rows = append(table.Rows, []value.Value{
			value.Number(job.ID),
			value.Number(job.Pid),
			value.Literal(status),
			value.Literal(job.Name),
		})
	}
	ev.Push(table)
	ev.lastExit = 0
	return nil
}

// builtinWait blocks until the given jobs (or all jobs) finish.
func builtinWait(ev *Evaluator) error {
	args := ev.popArgs()

	var targets []*Job
	if len(args) == 0 {
		targets = ev.jobs.list()
	} else {
		for _, arg := range args {
			job, err := ev.resolveJobspec("wait", arg)
			if err != nil {
				return err
			}
			targets = append(targets, job)
		}
	}

	code := 0
	for _, job := range targets {
		<-job.done
		code = job.ExitCode
		ev.logJob(job)
	}
	ev.lastExit = code
	return nil
}

// builtinFg continues a job and waits for it in the foreground.
func builtinFg(ev *Evaluator) error {
	job, err := ev.pickJob("fg")
	if err != nil {
		return err
	}

	_ = syscall.Kill(-job.Pgid, syscall.SIGCONT)
	ev.jobs.setStatus(job, JobRunning)
	<-job.done
	ev.lastExit = job.ExitCode
	ev.logJob(job)
	return nil
}

// builtinBg continues a stopped job in the background.
func builtinBg(ev *Evaluator) error {
	job, err := ev.pickJob("bg")
	if err != nil {
		return err
	}

	if err := syscall.Kill(-job.Pgid, syscall.SIGCONT); err != nil {
		return execErrf("bg", "job %%%d: %v", job.ID, err)
	}
	ev.jobs.setStatus(job, JobRunning)
	ev.lastExit = 0
	ev.logJob(job)
	return nil
}

// pickJob pops an optional jobspec argument, defaulting to the most
// recent job that has not finished.
func (ev *Evaluator) pickJob(op string) (*Job, error) {
	args := ev.popArgs()
	if len(args) > 0 {
		return ev.resolveJobspec(op, args[len(args)-1])
	}

	job, ok := ev.jobs.newest(func(j *Job) bool { return j.Status != JobDone })
	if !ok {
		return nil, execErrf(op, "no current job")
	}
	return job, nil
}

// builtinKill sends a signal to jobs or pids; signals are delivered to a
// job's whole process group.
func builtinKill(ev *Evaluator) error {
	args := ev.popArgs()

	// Split out -NUM / -NAME shorthand before getopt sees it.
	sig := syscall.SIGTERM
	var rest []string
	sawShorthand := false
	for _, arg := range args {
		if !sawShorthand && strings.HasPrefix(arg, "-") && arg != "-s" && arg != "-l" {
			if parsed, ok := lookupSignal(strings.TrimPrefix(arg, "-")); ok {
				sig = parsed
				sawShorthand = true
				continue
			}
		}
		rest = append(rest, arg)
	}

	opts := getopt.New()
	sigName := opts.String('s', "", "signal name to send")
	listSignals := opts.Bool('l', "list signal names")
	if err := opts.Getopt(append([]string{"kill"}, rest...), nil); err != nil {
		return execErrf("kill", "%v", err)
	}

	if *listSignals {
		names := make([]string, 0, len(signalNames))
		for name := range signalNames {
			names = append(names, name)
		}
		sort.Strings(names)
		ev.Push(value.Output(strings.Join(names, "\n")))
		ev.lastExit = 0
		return nil
	}

	if *sigName != "" {
		parsed, ok := lookupSignal(*sigName)
		if !ok {
			return execErrf("kill", "unknown signal %q", *sigName)
		}
		sig = parsed
	}

	targets := opts.Args()
	if len(targets) == 0 {
		return execErrf("kill", "no job or pid given")
	}

	for _, target := range targets {
		if strings.HasPrefix(target, "%") {
			job, err := ev.resolveJobspec("kill", target)
			if err != nil {
				return err
			}
			if err := syscall.Kill(-job.Pgid, sig); err != nil {
				return execErrf("kill", "job %%%d: %v", job.ID, err)
			}
			switch sig {
			case syscall.SIGSTOP, syscall.SIGTSTP:
				ev.jobs.setStatus(job, JobStopped)
			case syscall.SIGCONT:
				ev.jobs.setStatus(job, JobRunning)
			}
			ev.logJob(job)
			continue
		}

		pid, err := strconv.Atoi(target)
		if err != nil {
			return execErrf("kill", "bad pid %q", target)
		}
		if err := syscall.Kill(pid, sig); err != nil {
			return execErrf("kill", "pid %d: %v", pid, err)
		}
	}

	ev.lastExit = 0
	return nil
}

func init() {
	registerBuiltin("jobs", builtinJobs)
	registerBuiltin("wait", builtinWait)
	registerBuiltin("fg", builtinFg)
	registerBuiltin("bg", builtinBg)
	registerBuiltin("kill", builtinKill)
}
