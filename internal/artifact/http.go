package artifact

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HTTPFetcher downloads artifacts over HTTP(S).
type HTTPFetcher struct {
	client *http.Client
	token  string
}

// NewHTTPFetcher creates an HTTP fetcher. When token is non-empty,
// requests carry it as a bearer token.
func NewHTTPFetcher(timeout time.Duration, token string) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		token:  token,
	}
}

// Fetch downloads the URL into destDir.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL, destDir string) error {
	name, err := FileName(rawURL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	written, err := writeFile(filepath.Join(destDir, name), resp.Body)
	if err != nil {
		return err
	}

	slog.Debug("Downloaded file", "bytes", written, "url", rawURL)
	return nil
}

func writeFile(path string, r io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, r)
	if err != nil {
		return 0, fmt.Errorf("failed to write file: %w", err)
	}

	if err := file.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync file: %w", err)
	}
	return written, nil
}
