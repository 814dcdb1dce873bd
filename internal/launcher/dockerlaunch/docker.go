// Package dockerlaunch implements the launcher.Launcher interface using
// the Docker API. Drivers run in containers on the host Docker daemon,
// with their working directory bind-mounted so artifacts and log files
// stay on the worker filesystem.
package dockerlaunch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"driverd/internal/command"
	"driverd/internal/launcher"
)

// Launcher starts driver containers from a single configured image.
type Launcher struct {
	client     *client.Client
	image      string
	extraHosts []string
	binds      []string
}

// New creates a Docker launcher and pulls the driver image if it is not
// present locally.
func New(ctx context.Context, cfg Config) (*Launcher, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("driver image is required")
	}

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	l := &Launcher{
		client:     dockerClient,
		image:      cfg.Image,
		extraHosts: cfg.ExtraHosts,
		binds:      cfg.Binds,
	}

	if err := l.pullImageIfNeeded(ctx, cfg.Image); err != nil {
		dockerClient.Close()
		return nil, fmt.Errorf("failed to pull image %s: %w", cfg.Image, err)
	}

	return l, nil
}

// Start creates and starts a container running the command. The command's
// working directory is bind-mounted at the same path inside the container.
func (l *Launcher) Start(ctx context.Context, c command.Command) (launcher.Handle, error) {
	binds := l.binds
	if c.Dir != "" {
		binds = append([]string{c.Dir + ":" + c.Dir}, binds...)
	}

	containerConfig := &container.Config{
		Image:      l.image,
		Cmd:        c.Line(),
		Env:        c.Env,
		WorkingDir: c.Dir,
		Labels: map[string]string{
			"managed-by": "driverd",
		},
	}

	hostConfig := &container.HostConfig{
		Binds:      binds,
		ExtraHosts: l.extraHosts,
	}
	if c.MemoryMB > 0 {
		hostConfig.Resources = container.Resources{
			Memory: int64(c.MemoryMB) * 1024 * 1024,
		}
	}

	name := ""
	if c.Dir != "" {
		name = "driver-" + filepath.Base(c.Dir)
	}

	resp, err := l.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := l.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = l.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	h := &dockerHandle{
		client:      l.client,
		containerID: resp.ID,
		done:        make(chan struct{}),
		logsDone:    make(chan struct{}),
	}

	if inspect, err := l.client.ContainerInspect(ctx, resp.ID); err == nil && inspect.State != nil {
		h.pid = inspect.State.Pid
	}

	outRead, outWrite := io.Pipe()
	errRead, errWrite := io.Pipe()
	h.stdout = outRead
	h.stderr = errRead

	go h.demuxLogs(outWrite, errWrite)
	go h.watch()

	return h, nil
}

// Ready checks if the Docker daemon is reachable and responsive.
func (l *Launcher) Ready(ctx context.Context) error {
	_, err := l.client.Ping(ctx)
	return err
}

// Close releases the Docker client.
func (l *Launcher) Close() error {
	return l.client.Close()
}

func (l *Launcher) pullImageIfNeeded(ctx context.Context, imageName string) error {
	_, err := l.client.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}

	slog.Info("Pulling driver image", "image", imageName)
	reader, err := l.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// dockerHandle wraps a started driver container.
type dockerHandle struct {
	client      *client.Client
	containerID string
	pid         int

	stdout *io.PipeReader
	stderr *io.PipeReader

	done     chan struct{}
	logsDone chan struct{}
	code     int
	waitErr  error
}

func (h *dockerHandle) Pid() int {
	return h.pid
}

func (h *dockerHandle) Stdout() io.Reader {
	return h.stdout
}

func (h *dockerHandle) Stderr() io.Reader {
	return h.stderr
}

func (h *dockerHandle) Wait() (int, error) {
	<-h.done
	return h.code, h.waitErr
}

// Terminate stops the container. ContainerStop sends SIGTERM and
// escalates to SIGKILL after the grace period.
func (h *dockerHandle) Terminate(grace time.Duration) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	timeout := int(grace.Seconds())
	ctx, cancel := context.WithTimeout(context.Background(), grace+30*time.Second)
	defer cancel()
	if err := h.client.ContainerStop(ctx, h.containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("container %s still running after stop", shortID(h.containerID))
	}
}

// watch waits for the container to exit, records the exit code, lets the
// log stream drain, then removes the container.
func (h *dockerHandle) watch() {
	ctx := context.Background()
	statusCh, errCh := h.client.ContainerWait(ctx, h.containerID, container.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		h.code = -1
		h.waitErr = err
	case status := <-statusCh:
		h.code = int(status.StatusCode)
		if status.Error != nil {
			h.waitErr = fmt.Errorf("%s", status.Error.Message)
		}
	}
	close(h.done)

	select {
	case <-h.logsDone:
	case <-time.After(5 * time.Second):
		// A stalled reader is holding the demux pipes; force them shut.
		h.closeStreams()
		<-h.logsDone
	}

	if err := h.client.ContainerRemove(ctx, h.containerID, container.RemoveOptions{Force: true}); err != nil {
		slog.Warn("Failed to remove driver container", "containerId", shortID(h.containerID), "error", err)
	}
}

// demuxLogs follows the container's multiplexed log stream and splits it
// into the stdout and stderr pipes. Each frame starts with an 8-byte
// header: stream type in byte 0, big-endian payload size in bytes 4-7.
func (h *dockerHandle) demuxLogs(outWrite, errWrite *io.PipeWriter) {
	defer close(h.logsDone)
	defer outWrite.Close()
	defer errWrite.Close()

	logs, err := h.client.ContainerLogs(context.Background(), h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		slog.Warn("Failed to get container logs", "containerId", shortID(h.containerID), "error", err)
		return
	}
	defer logs.Close()

	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(logs, header); err != nil {
			return
		}

		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		if size == 0 {
			continue
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(logs, payload); err != nil {
			return
		}

		w := outWrite
		if header[0] == 2 {
			w = errWrite
		}
		if _, err := w.Write(payload); err != nil {
			return
		}
	}
}

func (h *dockerHandle) closeStreams() {
	h.stdout.CloseWithError(io.ErrClosedPipe)
	h.stderr.CloseWithError(io.ErrClosedPipe)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// Verify Launcher implements launcher.Launcher
var _ launcher.Launcher = (*Launcher)(nil)
