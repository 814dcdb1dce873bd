package dockerlaunch

import (
	"strings"

	"driverd/internal/config"
)

// Config holds configuration for the Docker launcher.
type Config struct {
	Image      string   // Image driver containers run (required)
	ExtraHosts []string // Extra /etc/hosts entries (e.g., ["worker.test:host-gateway"])
	Binds      []string // Additional host bind mounts in "src:dst" form
}

// LoadConfigFromEnv loads Docker launcher configuration from environment
// variables.
func LoadConfigFromEnv() Config {
	return Config{
		Image:      config.GetEnv("DOCKER_IMAGE", ""),
		ExtraHosts: splitList(config.GetEnv("DOCKER_EXTRA_HOSTS", "")),
		Binds:      splitList(config.GetEnv("DOCKER_BINDS", "")),
	}
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
