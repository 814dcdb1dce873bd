package notify

import (
	"time"

	"driverd/internal/config"
)

// Hardcoded delivery defaults - these rarely need tuning.
const (
	defaultMaxRetries       = 3
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultMaxRequeues      = 10
)

// Config holds configuration for the webhook notifier.
type Config struct {
	BufferSize  int           // pending notifications buffer (default: 1000)
	Workers     int           // concurrent delivery goroutines (default: 4)
	HTTPTimeout time.Duration // per-request timeout (default: 10s)
	DefaultURL  string        // destination for drivers without a callback
	DefaultKey  string        // signing key for the default destination
}

// LoadConfigFromEnv loads notifier configuration from environment
// variables.
func LoadConfigFromEnv() Config {
	key := config.GetSecretFile(config.GetEnv("NOTIFY_KEY_FILE", ""))
	if key == "" {
		key = config.GetEnv("NOTIFY_KEY", "")
	}

	cfg := Config{
		BufferSize:  config.GetIntEnv("NOTIFY_BUFFER_SIZE", 1000),
		Workers:     config.GetIntEnv("NOTIFY_WORKERS", 4),
		HTTPTimeout: config.GetDurationEnv("NOTIFY_HTTP_TIMEOUT", 10*time.Second),
		DefaultURL:  config.GetEnv("NOTIFY_URL", ""),
		DefaultKey:  key,
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}
