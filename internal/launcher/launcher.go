// Package launcher starts driver processes and exposes narrow handles for
// observing and terminating them. Implementations run drivers either as
// host child processes or inside containers.
package launcher

import (
	"context"
	"io"
	"time"

	"driverd/internal/command"
)

// Handle is a single running driver process.
type Handle interface {
	// Pid returns an identifier for the process, for logging.
	Pid() int

	// Stdout and Stderr stream the process output. Each stream must be
	// read from at most one goroutine and reaches EOF when the process
	// exits.
	Stdout() io.Reader
	Stderr() io.Reader

	// Wait blocks until the process exits and returns its exit code.
	// A non-zero exit is a code, not an error; the error is reserved
	// for failures collecting the status. Death by signal reports -1.
	Wait() (int, error)

	// Terminate asks the process to stop, escalating to a forced kill
	// after grace. It returns an error when the process still cannot
	// be confirmed dead, in which case it may be orphaned.
	Terminate(grace time.Duration) error
}

// Launcher starts driver commands.
type Launcher interface {
	Start(ctx context.Context, cmd command.Command) (Handle, error)

	// Ready reports whether the launcher can currently start processes.
	Ready(ctx context.Context) error
}
