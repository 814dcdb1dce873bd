package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"driverd/internal/command"
)

// Exec runs drivers as child processes on the worker host.
type Exec struct{}

// NewExec returns a host process launcher.
func NewExec() *Exec {
	return &Exec{}
}

// Start launches the command in its working directory. The child gets its
// own process group so Terminate reaches helpers it spawned. Output goes
// through OS pipes, so the streams hit EOF when the process group's last
// writer exits.
func (l *Exec) Start(ctx context.Context, c command.Command) (Handle, error) {
	outRead, outWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	errRead, errWrite, err := os.Pipe()
	if err != nil {
		outRead.Close()
		outWrite.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = outWrite
	cmd.Stderr = errWrite
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		outRead.Close()
		outWrite.Close()
		errRead.Close()
		errWrite.Close()
		return nil, fmt.Errorf("failed to start %s: %w", c.Path, err)
	}

	// The child holds its own copies of the write ends.
	outWrite.Close()
	errWrite.Close()

	h := &execHandle{
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		stdout: outRead,
		stderr: errRead,
		done:   make(chan struct{}),
	}
	go h.reap()
	return h, nil
}

// Ready always succeeds; starting host processes needs no daemon.
func (l *Exec) Ready(ctx context.Context) error {
	return nil
}

// execHandle wraps a started os/exec process.
type execHandle struct {
	cmd    *exec.Cmd
	pid    int
	stdout *os.File
	stderr *os.File

	done    chan struct{}
	code    int
	waitErr error

	closeOnce sync.Once
}

// reap collects the exit status exactly once. Every other method observes
// the result through the done channel.
func (h *execHandle) reap() {
	err := h.cmd.Wait()
	if err == nil {
		h.code = h.cmd.ProcessState.ExitCode()
	} else {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit, or -1 for death by signal.
			h.code = exitErr.ExitCode()
		} else {
			h.code = -1
			h.waitErr = err
		}
	}
	close(h.done)
}

func (h *execHandle) Pid() int {
	return h.pid
}

func (h *execHandle) Stdout() io.Reader {
	return h.stdout
}

func (h *execHandle) Stderr() io.Reader {
	return h.stderr
}

func (h *execHandle) Wait() (int, error) {
	<-h.done
	return h.code, h.waitErr
}

// Terminate signals the process group with SIGTERM, waits up to grace for
// exit, then escalates to SIGKILL and waits up to grace again. If the
// process survives SIGKILL the streams are forced closed so no reader
// blocks on an orphan.
func (h *execHandle) Terminate(grace time.Duration) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	h.signal(syscall.SIGTERM)

	select {
	case <-h.done:
		return nil
	case <-time.After(grace):
	}

	h.signal(syscall.SIGKILL)

	select {
	case <-h.done:
		return nil
	case <-time.After(grace):
		h.closeStreams()
		return fmt.Errorf("process %d still running after SIGKILL", h.pid)
	}
}

func (h *execHandle) signal(sig syscall.Signal) {
	// Prefer the process group so grandchildren are signaled too.
	if err := syscall.Kill(-h.pid, sig); err != nil {
		_ = h.cmd.Process.Signal(sig)
	}
}

// closeStreams releases the read ends when nobody will drain them.
func (h *execHandle) closeStreams() {
	h.closeOnce.Do(func() {
		h.stdout.Close()
		h.stderr.Close()
	})
}
