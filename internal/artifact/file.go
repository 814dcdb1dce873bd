package artifact

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// FileFetcher copies artifacts that are already on the worker filesystem,
// typically on a shared mount. It handles file:// URLs and bare paths.
type FileFetcher struct{}

// Fetch copies the source file into destDir.
func (FileFetcher) Fetch(ctx context.Context, rawURL, destDir string) error {
	src := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "file" {
		src = u.Path
	}

	name, err := FileName(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	if _, err := writeFile(filepath.Join(destDir, name), in); err != nil {
		return err
	}
	return nil
}
