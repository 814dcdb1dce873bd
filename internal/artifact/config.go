package artifact

import (
	"time"

	"driverd/internal/config"
)

// Config holds artifact fetch configuration.
type Config struct {
	FetchTimeout time.Duration // Per-fetch HTTP timeout
	FetchToken   string        // Optional bearer token for HTTP fetches
	S3           S3Config
}

// LoadConfigFromEnv loads artifact configuration from environment
// variables.
func LoadConfigFromEnv() Config {
	secretKey := config.GetSecretFile(config.GetEnv("S3_SECRET_KEY_FILE", ""))
	if secretKey == "" {
		secretKey = config.GetEnv("S3_SECRET_KEY", "")
	}

	return Config{
		FetchTimeout: config.GetDurationEnv("FETCH_TIMEOUT", 5*time.Minute),
		FetchToken:   config.GetEnv("FETCH_TOKEN", ""),
		S3: S3Config{
			Endpoint:  config.GetEnv("S3_ENDPOINT", ""),
			AccessKey: config.GetEnv("S3_ACCESS_KEY", ""),
			SecretKey: secretKey,
			Region:    config.GetEnv("S3_REGION", ""),
			Secure:    config.GetBoolEnv("S3_SECURE", true),
		},
	}
}

// NewMuxFromConfig builds the production fetcher mux: HTTP(S) and local
// files always, S3 when an endpoint is configured.
func NewMuxFromConfig(cfg Config) (*Mux, error) {
	m := NewMux()

	httpFetcher := NewHTTPFetcher(cfg.FetchTimeout, cfg.FetchToken)
	m.Register("http", httpFetcher)
	m.Register("https", httpFetcher)
	m.Register("file", FileFetcher{})

	if cfg.S3.Endpoint != "" {
		s3Fetcher, err := NewS3Fetcher(cfg.S3)
		if err != nil {
			return nil, err
		}
		m.Register("s3", s3Fetcher)
	}

	return m, nil
}
