package driver

import (
	"context"
	"fmt"
	"time"

	"driverd/internal/command"
	"driverd/internal/redirect"
)

// resetThreshold is how long an attempt must run for the backoff to
// reset. A run that survived this long counts as healthy, so the next
// failure starts the 1s, 2s, 4s progression over. The comparison is
// against this fixed threshold no matter how large the backoff has
// grown; a single long run resets it even after many fast failures.
const resetThreshold = 5 * time.Second

// runWithRetries launches the driver and, in supervise mode, relaunches
// it after every non-zero exit with doubling backoff. It returns the
// last observed exit code, or -1 if a kill arrived before any launch.
// The error is reserved for launch and redirection failures; a process
// exiting non-zero is an exit code, not an error.
func (r *Runner) runWithRetries(cmd command.Command) (int, error) {
	exitCode := -1
	waitSeconds := 1

	for {
		r.mu.Lock()
		if r.killed {
			r.mu.Unlock()
			return exitCode, nil
		}
		handle, err := r.launcher.Start(context.Background(), cmd)
		if err != nil {
			r.mu.Unlock()
			return exitCode, fmt.Errorf("failed to launch driver: %w", err)
		}
		r.proc = handle
		_, redirectErr := redirect.Attach(handle.Stdout(), handle.Stderr(), cmd.Dir, cmd.Line())
		r.mu.Unlock()
		if redirectErr != nil {
			// The process is up with nowhere to send output. The error
			// path's forced kill terminates it.
			return exitCode, fmt.Errorf("failed to redirect driver output: %w", redirectErr)
		}

		r.logger.Info("Launched driver", "pid", handle.Pid(), "program", cmd.Path)
		if r.metrics != nil {
			r.metrics.RecordDriverLaunched(context.Background())
		}

		startedAt := r.clock.Now()
		code, waitErr := handle.Wait()
		duration := r.clock.Now().Sub(startedAt)

		r.mu.Lock()
		r.proc = nil
		killed := r.killed
		r.mu.Unlock()

		if waitErr != nil {
			return code, fmt.Errorf("failed to collect driver exit status: %w", waitErr)
		}
		exitCode = code

		if !r.desc.Supervise || code == 0 || killed {
			return exitCode, nil
		}

		if duration > resetThreshold {
			waitSeconds = 1
		}
		r.logger.Info("Driver exited non-zero, relaunching", "exitCode", code, "waitSeconds", waitSeconds)
		r.sleeper.Sleep(waitSeconds, r.Killed)
		waitSeconds *= 2
	}
}
