//go:build e2e

package dockerlaunch

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"driverd/internal/command"
)

func testImage() string {
	if img := os.Getenv("DOCKER_TEST_IMAGE"); img != "" {
		return img
	}
	return "alpine:3"
}

func newTestLauncher(t *testing.T) *Launcher {
	t.Helper()
	l, err := New(context.Background(), Config{Image: testImage()})
	if err != nil {
		t.Fatalf("failed to create launcher: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestDocker_RunToCompletion(t *testing.T) {
	l := newTestLauncher(t)

	h, err := l.Start(context.Background(), command.Command{
		Path: "/bin/sh",
		Args: []string{"-c", "echo from-container; echo on-stderr >&2"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stdout, _ := io.ReadAll(h.Stdout())
	stderr, _ := io.ReadAll(h.Stderr())

	code, err := h.Wait()
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(string(stdout), "from-container") {
		t.Errorf("unexpected stdout: %q", stdout)
	}
	if !strings.Contains(string(stderr), "on-stderr") {
		t.Errorf("unexpected stderr: %q", stderr)
	}
}

func TestDocker_NonZeroExit(t *testing.T) {
	l := newTestLauncher(t)

	h, err := l.Start(context.Background(), command.Command{
		Path: "/bin/sh",
		Args: []string{"-c", "exit 3"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	go io.Copy(io.Discard, h.Stdout())
	go io.Copy(io.Discard, h.Stderr())

	code, err := h.Wait()
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
}

func TestDocker_Terminate(t *testing.T) {
	l := newTestLauncher(t)

	h, err := l.Start(context.Background(), command.Command{
		Path: "/bin/sh",
		Args: []string{"-c", "sleep 300"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	go io.Copy(io.Discard, h.Stdout())
	go io.Copy(io.Discard, h.Stderr())

	start := time.Now()
	if err := h.Terminate(5 * time.Second); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("termination took too long: %v", elapsed)
	}

	code, _ := h.Wait()
	if code == 0 {
		t.Errorf("expected non-zero exit for stopped container, got %d", code)
	}
}

func TestDocker_Ready(t *testing.T) {
	l := newTestLauncher(t)
	if err := l.Ready(context.Background()); err != nil {
		t.Errorf("expected daemon to be ready, got %v", err)
	}
}
