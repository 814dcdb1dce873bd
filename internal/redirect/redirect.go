// Package redirect copies a driver process's output streams into log
// files in the driver's working directory. Files are opened in append
// mode so output from every launch attempt of a driver accumulates.
package redirect

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Log file names created in each driver working directory.
const (
	StdoutFile = "stdout"
	StderrFile = "stderr"
)

const headerSeparator = "========================================"

// Redirector drains one attempt's stdout and stderr into files.
type Redirector struct {
	group *errgroup.Group
}

// Attach opens the stdout and stderr files under dir, writes the launch
// header to the stderr file, and starts draining both streams. It returns
// once the drain goroutines are running; they close the files when the
// streams end. Streams that are closers are closed after draining.
func Attach(stdout, stderr io.Reader, dir string, argv []string) (*Redirector, error) {
	outFile, err := openAppend(filepath.Join(dir, StdoutFile))
	if err != nil {
		return nil, err
	}
	errFile, err := openAppend(filepath.Join(dir, StderrFile))
	if err != nil {
		outFile.Close()
		return nil, err
	}

	// Each attempt's output is preceded by the exact command, so the
	// accumulated file reads attempt by attempt.
	header := fmt.Sprintf("Launch Command: %s\n%s\n\n", quoteArgv(argv), headerSeparator)
	if _, err := errFile.WriteString(header); err != nil {
		outFile.Close()
		errFile.Close()
		return nil, fmt.Errorf("failed to write launch header: %w", err)
	}

	group := &errgroup.Group{}
	group.Go(func() error { return drain(outFile, stdout) })
	group.Go(func() error { return drain(errFile, stderr) })
	return &Redirector{group: group}, nil
}

// Wait blocks until both streams have ended and returns the first copy
// error, if any.
func (r *Redirector) Wait() error {
	return r.group.Wait()
}

func drain(dst *os.File, src io.Reader) error {
	defer dst.Close()
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	if _, err := io.Copy(dst, src); err != nil {
		slog.Warn("Output redirection interrupted", "file", dst.Name(), "error", err)
		return err
	}
	return nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

// quoteArgv renders each argument individually double-quoted.
func quoteArgv(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = `"` + arg + `"`
	}
	return strings.Join(quoted, " ")
}
