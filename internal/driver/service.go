package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"driverd/internal/apperrors"
	"driverd/internal/artifact"
	"driverd/internal/hooks"
	"driverd/internal/launcher"
)

// Validation limits
const (
	maxDriverIDLength = 128
	maxMemory         = 65536 // MB (64GB)
	maxArgs           = 256
	maxEnvEntries     = 64
	maxMetaKeyLen     = 64
	maxMetaValueLen   = 256
	maxMetaEntries    = 32

	defaultMemoryMB = 1024
)

// driverIDPattern allows alphanumeric, hyphens, and underscores
var driverIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Deps bundles the collaborators the Service hands to each runner.
type Deps struct {
	Launcher  launcher.Launcher
	Preparer  *artifact.Preparer
	Artifacts *artifact.Mux   // used to reject unfetchable artifact URLs at submit time
	Notifier  Notifier
	Hooks     *hooks.Registry
	Metrics   MetricsRecorder // may be nil
	Clock     Clock           // defaults to SystemClock
	Sleeper   Sleeper         // defaults to TickSleeper
}

// Service accepts driver submissions and tracks a runner per driver for
// the life of the daemon. All driver state is in memory; a daemon
// restart loses it, while working directories and log files stay on
// disk.
type Service struct {
	config Config
	deps   Deps
	state  *registry

	closed   atomic.Bool
	shutdown chan struct{}
}

// NewService creates a driver service and starts its retention sweeper.
func NewService(config Config, deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Sleeper == nil {
		deps.Sleeper = TickSleeper{}
	}

	s := &Service{
		config:   config.withDefaults(),
		deps:     deps,
		state:    newRegistry(),
		shutdown: make(chan struct{}),
	}
	go s.runSweeper()
	return s
}

// Submit validates a descriptor and starts supervising it, returning as
// soon as the runner goroutine is up. Everything after that is
// asynchronous and observable through Get and the terminal notification.
func (s *Service) Submit(ctx context.Context, desc *Descriptor) (*SubmitResponse, error) {
	if s.closed.Load() {
		return nil, apperrors.Unavailable("driver.submit", errors.New("worker is shutting down"))
	}

	applyDefaults(desc)
	if err := s.validate(desc); err != nil {
		return nil, err
	}

	logger := slog.With("driverId", desc.ID, "program", desc.Command.Program)

	if err := s.state.reserve(desc.ID); err != nil {
		logger.Warn("Driver rejected", "error", err)
		return nil, err
	}

	runner := newRunner(*desc, s.config, s.deps)
	s.state.commit(desc.ID, runner)
	runner.Start()

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordDriverSubmitted(ctx)
	}

	logger.Info("Driver submitted", "supervise", desc.Supervise, "memoryMb", desc.MemoryMB)

	return &SubmitResponse{
		ID:     desc.ID,
		Status: string(StateSubmitted),
	}, nil
}

// Get returns the status of a driver.
func (s *Service) Get(ctx context.Context, driverID string) (*Status, error) {
	runner, exists := s.state.get(driverID)
	if !exists {
		return nil, apperrors.NotFound("driver", driverID)
	}
	if runner == nil {
		// Reserved but not yet committed.
		return &Status{ID: driverID, State: StateSubmitted}, nil
	}
	st := runner.Status()
	return &st, nil
}

// Kill requests termination of a driver. The request is durable: a
// driver mid-launch or sleeping between attempts still honors it. Kill
// returns once the tracked process is confirmed stopped or given up on;
// the runner goroutine separately finalizes state and notifies.
func (s *Service) Kill(ctx context.Context, driverID string) error {
	runner, exists := s.state.get(driverID)
	if !exists || runner == nil {
		return apperrors.NotFound("driver", driverID)
	}

	runner.Kill()
	slog.Info("Driver kill requested", "driverId", driverID)
	return nil
}

// List returns all known drivers and their statuses, oldest first.
func (s *Service) List(ctx context.Context) (*ListResponse, error) {
	runners := s.state.list()
	statuses := make([]Status, 0, len(runners))
	for _, runner := range runners {
		if runner == nil {
			continue
		}
		statuses = append(statuses, runner.Status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].SubmittedAt.Equal(statuses[j].SubmittedAt) {
			return statuses[i].ID < statuses[j].ID
		}
		return statuses[i].SubmittedAt.Before(statuses[j].SubmittedAt)
	})
	return &ListResponse{Drivers: statuses}, nil
}

// Ready reports whether new drivers can be launched.
func (s *Service) Ready(ctx context.Context) error {
	if s.closed.Load() {
		return errors.New("worker is shutting down")
	}
	return s.deps.Launcher.Ready(ctx)
}

// Shutdown stops accepting submissions and waits for every runner to
// reach its terminal state. Callers that want drivers stopped rather
// than awaited run the shutdown hooks first.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.shutdown)
	}

	for id, runner := range s.state.list() {
		if runner == nil {
			continue
		}
		select {
		case <-runner.Done():
		case <-ctx.Done():
			return fmt.Errorf("driver %s did not finalize: %w", id, ctx.Err())
		}
	}
	return nil
}

// runSweeper periodically retires drivers that have been terminal longer
// than the retention period.
func (s *Service) runSweeper() {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep drops expired terminal drivers from the registry and deletes
// their working directories, logs included.
func (s *Service) sweep() {
	now := s.deps.Clock.Now()
	for id, runner := range s.state.list() {
		if runner == nil {
			continue
		}
		st := runner.Status()
		if !st.State.Terminal() || st.FinishedAt == nil {
			continue
		}
		if now.Sub(*st.FinishedAt) < s.config.Retention {
			continue
		}

		s.state.release(id)
		if err := s.deps.Preparer.Remove(id); err != nil {
			slog.Warn("Failed to remove driver working directory", "driverId", id, "error", err)
		}
		slog.Info("Retired driver", "driverId", id, "state", st.State)
	}
}

// applyDefaults fills unspecified descriptor fields.
func applyDefaults(desc *Descriptor) {
	if desc.ID == "" {
		desc.ID = uuid.NewString()
	}
	if desc.MemoryMB <= 0 {
		desc.MemoryMB = defaultMemoryMB
	}
}

// validate validates a descriptor. Does not modify it.
func (s *Service) validate(desc *Descriptor) error {
	if desc.ID == "" {
		return apperrors.Validation("id", "driver ID is required")
	}
	if len(desc.ID) > maxDriverIDLength {
		return apperrors.Validation("id", fmt.Sprintf("driver ID exceeds maximum length of %d", maxDriverIDLength))
	}
	if !driverIDPattern.MatchString(desc.ID) {
		return apperrors.Validation("id", "driver ID must be alphanumeric (hyphens and underscores allowed, cannot start with hyphen/underscore)")
	}

	if desc.Command.Program == "" {
		return apperrors.Validation("command.program", "command program is required")
	}
	if len(desc.Command.Args) > maxArgs {
		return apperrors.Validation("command.args", fmt.Sprintf("arguments exceed maximum of %d", maxArgs))
	}
	if len(desc.Command.Env) > maxEnvEntries {
		return apperrors.Validation("command.env", fmt.Sprintf("environment exceeds maximum of %d entries", maxEnvEntries))
	}

	if desc.MemoryMB > maxMemory {
		return apperrors.Validation("memoryMb", fmt.Sprintf("memory exceeds maximum of %d MB", maxMemory))
	}

	if desc.ArtifactURL == "" {
		return apperrors.Validation("artifactUrl", "artifact URL is required")
	}
	if _, err := artifact.FileName(desc.ArtifactURL); err != nil {
		return apperrors.Validation("artifactUrl", fmt.Sprintf("invalid artifact URL: %v", err))
	}
	if s.deps.Artifacts != nil && !s.deps.Artifacts.Supports(desc.ArtifactURL) {
		return apperrors.Validation("artifactUrl", "unsupported artifact URL scheme")
	}

	// Validate metadata
	if len(desc.Meta) > maxMetaEntries {
		return apperrors.Validation("meta", fmt.Sprintf("metadata exceeds maximum of %d entries", maxMetaEntries))
	}
	for k, v := range desc.Meta {
		if len(k) > maxMetaKeyLen {
			return apperrors.Validation("meta", fmt.Sprintf("metadata key exceeds maximum length of %d", maxMetaKeyLen))
		}
		if len(v) > maxMetaValueLen {
			return apperrors.Validation("meta", fmt.Sprintf("metadata value exceeds maximum length of %d", maxMetaValueLen))
		}
	}

	// Validate callback
	if desc.Callback != nil && desc.Callback.URL != "" {
		if err := validateURL(desc.Callback.URL); err != nil {
			return apperrors.Validation("callback.url", fmt.Sprintf("invalid callback URL: %v", err))
		}
	}

	return nil
}

func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
