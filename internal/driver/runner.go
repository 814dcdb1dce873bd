package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"driverd/internal/artifact"
	"driverd/internal/command"
	"driverd/internal/hooks"
	"driverd/internal/launcher"
)

// MetricsRecorder records driver lifecycle metrics. Implementations must
// be safe for concurrent use.
type MetricsRecorder interface {
	RecordDriverSubmitted(ctx context.Context)
	RecordDriverLaunched(ctx context.Context)
	RecordDriverCompleted(ctx context.Context, state State, durationSeconds float64)
}

// Runner supervises a single driver from submission to terminal state.
// One goroutine per driver runs the prepare, launch, retry and finalize
// sequence; Kill may be called from any goroutine at any point in that
// lifetime.
type Runner struct {
	id   string
	desc Descriptor

	preparer *artifact.Preparer
	launcher launcher.Launcher
	notifier Notifier
	hooks    *hooks.Registry
	metrics  MetricsRecorder
	clock    Clock
	sleeper  Sleeper
	logger   *slog.Logger

	workerURL   string
	runtimeHome string
	grace       time.Duration
	submittedAt time.Time

	// mu serializes the kill flag and the process handle. Launching a
	// process and recording its handle happen in one critical section,
	// so a concurrent Kill either prevents the launch or finds the
	// handle it must terminate.
	mu         sync.Mutex
	proc       launcher.Handle
	killed     bool
	state      State
	exitCode   int
	finalErr   error
	finishedAt time.Time

	done chan struct{}
}

// newRunner builds a runner for a validated descriptor. Deps must have
// Clock and Sleeper filled in; the Service does that on construction.
func newRunner(desc Descriptor, cfg Config, deps Deps) *Runner {
	return &Runner{
		id:          desc.ID,
		desc:        desc,
		preparer:    deps.Preparer,
		launcher:    deps.Launcher,
		notifier:    deps.Notifier,
		hooks:       deps.Hooks,
		metrics:     deps.Metrics,
		clock:       deps.Clock,
		sleeper:     deps.Sleeper,
		logger:      slog.With("driverId", desc.ID),
		workerURL:   cfg.WorkerURL,
		runtimeHome: cfg.RuntimeHome,
		grace:       cfg.TerminateGrace,
		submittedAt: deps.Clock.Now(),
		state:       StateSubmitted,
		exitCode:    -1,
		done:        make(chan struct{}),
	}
}

// Start begins supervision on its own goroutine and returns immediately.
// Progress is observable through Status, Done and the terminal
// notification.
func (r *Runner) Start() {
	r.mu.Lock()
	if !r.killed {
		r.state = StateRunning
	}
	r.mu.Unlock()

	go r.run()
}

// run is the supervision goroutine. Whatever happens inside, it records
// exactly one terminal state and sends exactly one notification, and the
// shutdown hook never outlives it.
func (r *Runner) run() {
	defer close(r.done)

	hook := r.hooks.Register("kill driver "+r.id, r.Kill)

	exitCode := -1
	var runErr error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				runErr = fmt.Errorf("driver supervision panicked: %v", rec)
			}
		}()
		exitCode, runErr = r.supervise()
	}()

	if runErr != nil {
		r.logger.Error("Driver supervision failed", "error", runErr)
		r.Kill()
	}

	state := r.finalize(exitCode, runErr)
	r.hooks.Deregister(hook)
	r.sendNotification(state, exitCode, runErr)
}

// supervise prepares the driver's working directory, artifact and
// command, then hands off to the retry loop. The returned error marks an
// environment or logic failure, never a process exit.
func (r *Runner) supervise() (int, error) {
	ctx := context.Background()

	localPath, err := r.preparer.Prepare(ctx, r.id, r.desc.ArtifactURL)
	if err != nil {
		return -1, err
	}

	cmd, err := command.Build(r.desc.Command, r.desc.MemoryMB, r.runtimeHome, func(token string) (string, bool) {
		switch token {
		case command.PlaceholderWorkerURL:
			return r.workerURL, true
		case command.PlaceholderArtifactPath:
			return localPath, true
		}
		return "", false
	})
	if err != nil {
		return -1, err
	}
	cmd.Dir = r.preparer.Dir(r.id)

	return r.runWithRetries(cmd)
}

// Kill requests the driver stop. It is safe to call at any time, from
// any goroutine and more than once. Once requested, no further launch
// attempt is made. A tracked process gets a graceful stop escalating to
// a forced kill; failure to confirm death is logged rather than
// returned, since the supervising goroutine still owns the exit status.
func (r *Runner) Kill() {
	r.mu.Lock()
	if !r.killed {
		r.killed = true
		r.logger.Info("Kill requested")
	}
	proc := r.proc
	r.mu.Unlock()

	if proc == nil {
		return
	}
	if err := proc.Terminate(r.grace); err != nil {
		r.logger.Warn("Driver process could not be confirmed dead, it may be orphaned", "pid", proc.Pid(), "error", err)
	}
}

// Killed reports whether a kill has been requested.
func (r *Runner) Killed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.killed
}

// finalize records the terminal state. It runs exactly once, from the
// supervision goroutine, after the retry loop has exited.
func (r *Runner) finalize(exitCode int, runErr error) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case runErr != nil:
		r.state = StateError
		r.finalErr = runErr
	case exitCode == 0:
		r.state = StateFinished
	case r.killed:
		r.state = StateKilled
	default:
		r.state = StateFailed
	}
	r.exitCode = exitCode
	r.finishedAt = r.clock.Now()
	return r.state
}

func (r *Runner) sendNotification(state State, exitCode int, runErr error) {
	duration := r.clock.Now().Sub(r.submittedAt)
	if r.metrics != nil {
		r.metrics.RecordDriverCompleted(context.Background(), state, duration.Seconds())
	}

	n := Notification{
		DriverID: r.id,
		State:    state,
		ExitCode: exitCode,
		Err:      runErr,
		Meta:     r.desc.Meta,
	}
	if r.desc.Callback != nil {
		n.Callback = *r.desc.Callback
	}
	r.notifier.Notify(n)

	r.logger.Info("Driver reached terminal state", "state", state, "exitCode", exitCode, "duration", duration)
}

// Status reports the driver's externally visible state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		ID:          r.id,
		State:       r.state,
		SubmittedAt: r.submittedAt,
	}
	if r.state.Terminal() {
		code := r.exitCode
		st.ExitCode = &code
		finished := r.finishedAt
		st.FinishedAt = &finished
		if r.finalErr != nil {
			st.Error = r.finalErr.Error()
		}
	}
	return st
}

// Done is closed once supervision has finished and the terminal
// notification has been handed to the notifier.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}
