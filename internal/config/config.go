// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// WorkerConfig holds configuration for the driverd daemon.
type WorkerConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	WorkerURL         string        // Callback address substituted into driver commands
	WorkDir           string        // Root of per-driver working directories
	RuntimeHome       string        // Driver runtime installation, exposed to children
	Launcher          string        // "exec" or "docker"
	TerminateGrace    time.Duration // Grace period before kill escalates
	DriverRetention   time.Duration // How long terminal drivers stay queryable
	SweepInterval     time.Duration // How often the retention sweep runs
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
	ShutdownTimeout   time.Duration // Budget for in-flight drivers to finalize on shutdown
}

// LoadWorkerConfig loads daemon configuration from environment variables.
// The API key may come from a mounted secret file (API_KEY_FILE) or directly
// from API_KEY; the file wins when both are set.
func LoadWorkerConfig() *WorkerConfig {
	apiKey := GetSecretFile(GetEnv("API_KEY_FILE", ""))
	if apiKey == "" {
		apiKey = GetEnv("API_KEY", "")
	}
	return &WorkerConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            apiKey,
		WorkerURL:         GetEnv("WORKER_URL", ""),
		WorkDir:           GetEnv("WORK_DIR", "/var/lib/driverd"),
		RuntimeHome:       GetEnv("RUNTIME_HOME", ""),
		Launcher:          GetEnv("LAUNCHER", "exec"),
		TerminateGrace:    GetDurationEnv("TERMINATE_GRACE", 10*time.Second),
		DriverRetention:   GetDurationEnv("DRIVER_RETENTION", time.Hour),
		SweepInterval:     GetDurationEnv("SWEEP_INTERVAL", time.Minute),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		ShutdownTimeout:   GetDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}
