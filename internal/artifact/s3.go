package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds configuration for S3-compatible object storage.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

// S3Fetcher downloads artifacts from S3-compatible object storage. URLs
// use the s3://bucket/key form.
type S3Fetcher struct {
	client *minio.Client
}

// NewS3Fetcher creates an S3 fetcher from config.
func NewS3Fetcher(cfg S3Config) (*S3Fetcher, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	return &S3Fetcher{client: client}, nil
}

// Fetch downloads the object into destDir.
func (f *S3Fetcher) Fetch(ctx context.Context, rawURL, destDir string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid s3 URL %q: %w", rawURL, err)
	}

	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return fmt.Errorf("s3 URL %q must have the form s3://bucket/key", rawURL)
	}

	dest := filepath.Join(destDir, path.Base(key))
	if err := f.client.FGetObject(ctx, bucket, key, dest, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("s3 download failed: %w", err)
	}

	slog.Debug("Downloaded object", "bucket", bucket, "key", key, "path", dest)
	return nil
}
