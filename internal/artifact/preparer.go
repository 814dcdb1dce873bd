package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ErrMissingAfterFetch distinguishes a fetcher that reported success but
// produced no file from an ordinary transfer failure.
var ErrMissingAfterFetch = errors.New("artifact missing after successful fetch")

// MetricsRecorder records artifact fetch metrics. Implementations must be
// safe for concurrent use.
type MetricsRecorder interface {
	RecordArtifactFetch(ctx context.Context, scheme string, durationSeconds float64)
	RecordArtifactCacheHit(ctx context.Context)
}

// Preparer materializes artifacts under a root working directory, one
// subdirectory per driver.
type Preparer struct {
	root    string
	fetcher Fetcher
	metrics MetricsRecorder
}

// NewPreparer creates a preparer rooted at dir. metrics may be nil.
func NewPreparer(root string, fetcher Fetcher, metrics MetricsRecorder) *Preparer {
	return &Preparer{root: root, fetcher: fetcher, metrics: metrics}
}

// Dir returns the working directory for a driver.
func (p *Preparer) Dir(driverID string) string {
	return filepath.Join(p.root, driverID)
}

// Prepare ensures the driver's working directory exists and its artifact
// is present locally, returning the artifact's local path. A file that is
// already present is not fetched again, so Prepare is safe to call for
// every launch attempt.
func (p *Preparer) Prepare(ctx context.Context, driverID, artifactURL string) (string, error) {
	dir := p.Dir(driverID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create work directory %s: %w", dir, err)
	}

	name, err := FileName(artifactURL)
	if err != nil {
		return "", err
	}
	local := filepath.Join(dir, name)

	if _, err := os.Stat(local); err == nil {
		slog.Debug("Artifact already present, skipping fetch", "driverId", driverID, "path", local)
		if p.metrics != nil {
			p.metrics.RecordArtifactCacheHit(ctx)
		}
		return local, nil
	}

	start := time.Now()
	if err := p.fetcher.Fetch(ctx, artifactURL, dir); err != nil {
		return "", fmt.Errorf("failed to fetch artifact %s: %w", artifactURL, err)
	}
	if p.metrics != nil {
		p.metrics.RecordArtifactFetch(ctx, schemeOf(artifactURL), time.Since(start).Seconds())
	}

	if _, err := os.Stat(local); err != nil {
		return "", fmt.Errorf("%w: expected %s", ErrMissingAfterFetch, local)
	}

	slog.Info("Artifact fetched", "driverId", driverID, "url", artifactURL, "path", local)
	return local, nil
}

// Remove deletes a driver's working directory and everything in it.
func (p *Preparer) Remove(driverID string) error {
	return os.RemoveAll(p.Dir(driverID))
}
