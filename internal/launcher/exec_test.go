package launcher

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"driverd/internal/command"
)

func shCommand(script string) command.Command {
	return command.Command{
		Path: "/bin/sh",
		Args: []string{"-c", script},
	}
}

func TestExec_WaitReturnsZeroExit(t *testing.T) {
	t.Parallel()

	h, err := NewExec().Start(context.Background(), shCommand("exit 0"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	code, err := h.Wait()
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}

func TestExec_WaitReturnsNonZeroExitAsCode(t *testing.T) {
	t.Parallel()

	h, err := NewExec().Start(context.Background(), shCommand("exit 7"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	code, err := h.Wait()
	if err != nil {
		t.Errorf("expected no error for non-zero exit, got %v", err)
	}
	if code != 7 {
		t.Errorf("expected exit code 7, got %d", code)
	}
}

func TestExec_StartUnknownProgram(t *testing.T) {
	t.Parallel()

	_, err := NewExec().Start(context.Background(), command.Command{Path: "/no/such/program"})
	if err == nil {
		t.Fatal("expected error starting unknown program")
	}
}

func TestExec_StreamsReachEOFAfterExit(t *testing.T) {
	t.Parallel()

	h, err := NewExec().Start(context.Background(), shCommand("echo out-line; echo err-line >&2"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stdout, err := io.ReadAll(h.Stdout())
	if err != nil {
		t.Fatalf("reading stdout failed: %v", err)
	}
	stderr, err := io.ReadAll(h.Stderr())
	if err != nil {
		t.Fatalf("reading stderr failed: %v", err)
	}

	if got := string(stdout); got != "out-line\n" {
		t.Errorf("unexpected stdout: %q", got)
	}
	if got := string(stderr); got != "err-line\n" {
		t.Errorf("unexpected stderr: %q", got)
	}

	if code, _ := h.Wait(); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}

func TestExec_RunsInWorkingDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cmd := shCommand("pwd")
	cmd.Dir = dir

	h, err := NewExec().Start(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	out, _ := io.ReadAll(h.Stdout())
	if _, err := h.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if got := strings.TrimSpace(string(out)); got != dir {
		t.Errorf("expected working directory %q, got %q", dir, got)
	}
}

func TestExec_TerminateGraceful(t *testing.T) {
	t.Parallel()

	h, err := NewExec().Start(context.Background(), shCommand("sleep 30"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	start := time.Now()
	if err := h.Terminate(5 * time.Second); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("expected prompt termination, took %v", elapsed)
	}

	code, err := h.Wait()
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if code != -1 {
		t.Errorf("expected exit code -1 for signal death, got %d", code)
	}
}

func TestExec_TerminateEscalatesToKill(t *testing.T) {
	t.Parallel()

	// The script ignores SIGTERM and respawns its sleeps, so only the
	// SIGKILL escalation stops it.
	h, err := NewExec().Start(context.Background(), shCommand(`trap "" TERM; while true; do sleep 1; done`))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let the trap install before signaling.
	time.Sleep(100 * time.Millisecond)

	if err := h.Terminate(200 * time.Millisecond); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}

	code, err := h.Wait()
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if code != -1 {
		t.Errorf("expected exit code -1 for signal death, got %d", code)
	}
}

func TestExec_TerminateAfterExitIsNoop(t *testing.T) {
	t.Parallel()

	h, err := NewExec().Start(context.Background(), shCommand("exit 0"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := h.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if err := h.Terminate(time.Second); err != nil {
		t.Errorf("expected Terminate on exited process to succeed, got %v", err)
	}
}

func TestExec_PidIsSet(t *testing.T) {
	t.Parallel()

	h, err := NewExec().Start(context.Background(), shCommand("exit 0"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if h.Pid() <= 0 {
		t.Errorf("expected positive pid, got %d", h.Pid())
	}
	_, _ = h.Wait()
}

func TestExec_Ready(t *testing.T) {
	t.Parallel()

	if err := NewExec().Ready(context.Background()); err != nil {
		t.Errorf("expected exec launcher to be ready, got %v", err)
	}
}
