// Package jobctl implements job control for flintsh: a table of
// backgrounded and stopped pipelines, process-group based foregrounding,
// and the signal plumbing an interactive shell needs to support
// fg, bg, jobs, wait, disown and kill.
//
// It is deliberately independent of [flintsh/interp]: a Runner owns a
// *Table and asks it to Start/Foreground/Continue jobs, but jobctl knows
// nothing about the AST or expansion engine. This mirrors how
// mvdan.cc/sh/v3's own interp package keeps handler_unix.go's process-group
// code (Setpgid, killing -pid) free of any syntax or expand dependency.
package jobctl

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"syscall"
)

// State is a Job's position in the lifecycle described by spec.md §4.3:
// Running and Stopped can transition into each other or into Done;
// Done is terminal and only reachable once, after which the table reaps it.
type State int

const (
	Running State = iota
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

var (
	// ErrNoSuchJob is returned by lookups and signaling when a job id is unknown.
	ErrNoSuchJob = errors.New("jobctl: no such job")
	// ErrNotStopped is returned by Continue when the job is not actually stopped.
	ErrNotStopped = errors.New("jobctl: job is not stopped")
)

// Job is one pipeline the shell has placed in the background, or that was
// placed there implicitly by Ctrl-Z. PGID is the process group leading the
// pipeline; for a pipeline made up only of shell builtins (no external
// command ever forked) PGID is 0 and Foreground/Continue become no-ops
// beyond waiting, since there is no real process group to signal.
type Job struct {
	ID         int
	PGID       int
	Command    string
	Background bool

	mu       sync.Mutex
	state    State
	signal   syscall.Signal // set when the job died from a signal
	exitCode int
	notified bool
	wait     chan struct{} // closed once state becomes Done
}

// State returns the job's current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Result returns the exit code and, if the job was killed by a signal, that
// signal. Only meaningful once State() reports Done.
func (j *Job) Result() (code int, sig syscall.Signal) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.exitCode, j.signal
}

func (j *Job) setRunning() {
	j.mu.Lock()
	if j.state != Done {
		j.state = Running
	}
	j.mu.Unlock()
}

func (j *Job) setStopped() {
	j.mu.Lock()
	if j.state != Done {
		j.state = Stopped
		j.notified = false
	}
	j.mu.Unlock()
}

func (j *Job) setDone(code int, sig syscall.Signal) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == Done {
		return
	}
	j.state = Done
	j.exitCode = code
	j.signal = sig
	close(j.wait)
}

// Table is the shell's job table: a sparse id -> *Job map with
// lowest-free-id reuse, as spec.md §9 ("job-table slot reuse") requires.
type Table struct {
	mu      sync.Mutex
	jobs    map[int]*Job
	shellPG int // the shell's own process group, restored after foregrounding

	// ttyFd is the controlling terminal's file descriptor, used for
	// Tcsetpgrp. It is -1 when the shell has no controlling terminal
	// (e.g. running as `flint script.sh` with no tty).
	ttyFd int
}

// New creates an empty job table. ttyFd should be the fd of the controlling
// terminal (typically os.Stdin.Fd()) when running interactively, or -1
// otherwise. shellPG is the shell's own process group id.
func New(ttyFd int, shellPG int) *Table {
	return &Table{
		jobs:    make(map[int]*Job),
		shellPG: shellPG,
		ttyFd:   ttyFd,
	}
}

func (t *Table) nextID() int {
	id := 1
	for {
		if _, ok := t.jobs[id]; !ok {
			return id
		}
		id++
	}
}

// Start registers a newly spawned pipeline as a job and returns it. pgid is
// the pipeline's process group, or 0 if the pipeline never forked an
// external process (all-builtin background statement).
func (t *Table) Start(pgid int, command string, background bool) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	j := &Job{
		ID:         t.nextID(),
		PGID:       pgid,
		Command:    command,
		Background: background,
		state:      Running,
		wait:       make(chan struct{}),
	}
	t.jobs[j.ID] = j
	return j
}

// Finish marks a job Done with the given exit status, reaped from a
// SIGCHLD-driven wait or from a synchronous os/exec.Cmd.Wait. It does not
// remove the job from the table; Notify/Reap do that once observed.
func (t *Table) Finish(j *Job, code int, sig syscall.Signal) {
	j.setDone(code, sig)
}

// Lookup finds a job by id.
func (t *Table) Lookup(id int) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return nil, ErrNoSuchJob
	}
	return j, nil
}

// Current returns the job with the highest id that is not Done, used as
// bash's "%+" / "current job", or nil if every job is Done or the table is
// empty. It does not track which job was most recently backgrounded or
// stopped.
func (t *Table) Current() *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	var best *Job
	for _, j := range t.jobs {
		if j.State() == Done {
			continue
		}
		if best == nil || j.ID > best.ID {
			best = j
		}
	}
	return best
}

// List returns all known jobs sorted by id, for the `jobs` builtin.
func (t *Table) List() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Reap drops Done jobs that have already been notified (or that the caller
// has explicitly acknowledged via Wait) from the table, freeing their ids
// for reuse.
func (t *Table) Reap() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, j := range t.jobs {
		j.mu.Lock()
		done := j.state == Done && j.notified
		j.mu.Unlock()
		if done {
			delete(t.jobs, id)
		}
	}
}

// Disown removes a job from the table without waiting for it or signaling
// it. It has no option to keep a job in the table while exempting it from
// SIGHUP.
func (t *Table) Disown(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, j.ID)
}

// Wait blocks until the given job ids reach Done, returning their results in
// the same order. With no ids, it waits for every currently tracked job.
func (t *Table) Wait(ids ...int) ([]Result, error) {
	var targets []*Job
	if len(ids) == 0 {
		targets = t.List()
	} else {
		for _, id := range ids {
			j, err := t.Lookup(id)
			if err != nil {
				return nil, err
			}
			targets = append(targets, j)
		}
	}
	results := make([]Result, len(targets))
	for i, j := range targets {
		<-j.wait
		code, sig := j.Result()
		results[i] = Result{Job: j, Code: code, Signal: sig}
		j.mu.Lock()
		j.notified = true
		j.mu.Unlock()
	}
	t.Reap()
	return results, nil
}

// Result is the outcome of waiting on a job.
type Result struct {
	Job    *Job
	Code   int
	Signal syscall.Signal
}

// Notify returns "[id]+ State    command" lines for jobs whose state has
// changed since the last Notify call and have not yet been reported,
// matching spec.md §4.3's pre-prompt job-change notification. It also reaps
// any Done job it reports.
func (t *Table) Notify() []string {
	var lines []string
	cur := t.Current()
	for _, j := range t.List() {
		j.mu.Lock()
		if j.notified || j.state == Running {
			j.mu.Unlock()
			continue
		}
		mark := "-"
		if cur != nil && j.ID == cur.ID {
			mark = "+"
		}
		state := j.state.String()
		if j.state == Done && j.signal != 0 {
			state = fmt.Sprintf("Terminated (%s)", j.signal)
		}
		lines = append(lines, fmt.Sprintf("[%d]%s  %-12s %s", j.ID, mark, state, j.Command))
		j.notified = true
		j.mu.Unlock()
	}
	t.Reap()
	return lines
}
