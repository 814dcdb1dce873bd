// Package command turns declarative driver command specs into executable
// commands, resolving launch-time placeholders in arguments.
package command

import (
	"fmt"
	"os"
	"path/filepath"
)

// Placeholder tokens recognized in command arguments. Values are only
// known at launch time, after the artifact has been fetched.
const (
	PlaceholderWorkerURL    = "{{WORKER_URL}}"
	PlaceholderArtifactPath = "{{ARTIFACT_PATH}}"
)

// Spec describes a driver command before placeholder resolution.
type Spec struct {
	Program string            `json:"program"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Command is an executable command: resolved program path, substituted
// arguments, extra environment entries and the directory to run in.
// Env holds only driver-specific entries; launchers decide what base
// environment to combine them with.
type Command struct {
	Path     string
	Args     []string
	Env      []string
	Dir      string
	MemoryMB int
}

// Line returns the full argv including the program path.
func (c Command) Line() []string {
	return append([]string{c.Path}, c.Args...)
}

// Resolver maps a placeholder token to its launch-time value. The boolean
// reports whether the token is recognized.
type Resolver func(token string) (string, bool)

// Substitute returns a copy of args with every recognized placeholder
// replaced. Unrecognized arguments pass through unchanged and argument
// positions are preserved.
func Substitute(args []string, resolve Resolver) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if value, ok := resolve(arg); ok {
			out[i] = value
		} else {
			out[i] = arg
		}
	}
	return out
}

// Build assembles an executable command from a spec.
//
// A bare program name is resolved against runtimeHome/bin when a binary
// exists there, otherwise it is left for PATH lookup. The command's env
// carries the spec's entries plus DRIVER_MEMORY_MB and
// DRIVER_RUNTIME_HOME.
func Build(spec Spec, memoryMB int, runtimeHome string, resolve Resolver) (Command, error) {
	if spec.Program == "" {
		return Command{}, fmt.Errorf("command program is empty")
	}

	path := spec.Program
	if !filepath.IsAbs(path) && runtimeHome != "" {
		candidate := filepath.Join(runtimeHome, "bin", path)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	env := make([]string, 0, len(spec.Env)+2)
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	if memoryMB > 0 {
		env = append(env, fmt.Sprintf("DRIVER_MEMORY_MB=%d", memoryMB))
	}
	if runtimeHome != "" {
		env = append(env, "DRIVER_RUNTIME_HOME="+runtimeHome)
	}

	return Command{
		Path:     path,
		Args:     Substitute(spec.Args, resolve),
		Env:      env,
		MemoryMB: memoryMB,
	}, nil
}
