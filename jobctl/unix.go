//go:build unix

package jobctl

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Foreground transfers terminal control to j's process group, waits for the
// underlying call to deliver the job's completion (the caller is expected to
// still be running the blocking os/exec Wait in parallel and call Finish
// when it returns), then restores the shell as the foreground process
// group. It is a no-op beyond bookkeeping when j.PGID is 0 (an all-builtin
// background job that never forked, so there is no real process group to
// hand the terminal to).
func (t *Table) Foreground(j *Job) error {
	hasPG := j.PGID != 0 && t.ttyFd >= 0
	if hasPG {
		if err := unix.IoctlSetPointerInt(t.ttyFd, unix.TIOCSPGRP, j.PGID); err != nil {
			return err
		}
		defer unix.IoctlSetPointerInt(t.ttyFd, unix.TIOCSPGRP, t.shellPG)

		if err := unix.Kill(j.PGID, syscall.SIGCONT); err != nil && err != unix.ESRCH {
			return err
		}
	}
	j.setRunning()
	<-j.wait
	return nil
}

// Continue sends SIGCONT to a stopped job's process group. If background is
// false, terminal control is also transferred (equivalent to `fg`);
// otherwise the job resumes running detached from the terminal (`bg`).
func (t *Table) Continue(j *Job, background bool) error {
	if j.State() != Stopped {
		return ErrNotStopped
	}
	if background {
		j.setRunning()
		if j.PGID == 0 {
			return nil
		}
		return unix.Kill(j.PGID, syscall.SIGCONT)
	}
	return t.Foreground(j)
}

// Signal delivers sig to the job's entire process group, matching the
// teacher's own interruptCommand/killCommand idiom of signaling -pid rather
// than a single process.
func (t *Table) Signal(j *Job, sig syscall.Signal) error {
	if j.PGID == 0 {
		return nil
	}
	return unix.Kill(j.PGID, sig)
}

// HandleSIGCHLD reaps any children that have stopped, continued, or exited
// without blocking, updating the corresponding Job's state. It is meant to
// be called from a goroutine select-looping on a channel registered via
// signal.Notify(ch, syscall.SIGCHLD).
func (t *Table) HandleSIGCHLD() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		if pid <= 0 || err != nil {
			return
		}
		j := t.jobByPID(pid)
		if j == nil {
			continue
		}
		switch {
		case ws.Stopped():
			j.setStopped()
		case ws.Continued():
			j.setRunning()
		case ws.Exited():
			t.Finish(j, ws.ExitStatus(), 0)
		case ws.Signaled():
			t.Finish(j, 128+int(ws.Signal()), ws.Signal())
		}
	}
}

// jobByPID finds the job whose process group leader (or any member, best
// effort) matches pid. Since Go's exec.Cmd only exposes the group leader's
// pid, this matches on PGID == pid, which holds for the leader itself.
func (t *Table) jobByPID(pid int) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.PGID == pid {
			return j
		}
	}
	return nil
}
