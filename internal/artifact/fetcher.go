// Package artifact materializes driver artifacts into per-driver working
// directories. Fetchers handle individual URL schemes; the Preparer
// decides when a fetch is needed at all.
package artifact

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
)

// Fetcher downloads the artifact at a URL into destDir. The file keeps
// the name derived from the URL's last path segment.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, destDir string) error
}

// Mux routes fetches to scheme-specific fetchers.
type Mux struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

// NewMux creates an empty fetcher mux.
func NewMux() *Mux {
	return &Mux{fetchers: make(map[string]Fetcher)}
}

// Register installs a fetcher for a URL scheme (e.g. "https").
func (m *Mux) Register(scheme string, f Fetcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchers[strings.ToLower(scheme)] = f
}

// Supports reports whether the URL's scheme has a registered fetcher.
func (m *Mux) Supports(rawURL string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.fetchers[schemeOf(rawURL)]
	return ok
}

// Schemes returns the registered schemes.
func (m *Mux) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	schemes := make([]string, 0, len(m.fetchers))
	for s := range m.fetchers {
		schemes = append(schemes, s)
	}
	return schemes
}

// Fetch dispatches to the fetcher registered for the URL's scheme.
func (m *Mux) Fetch(ctx context.Context, rawURL, destDir string) error {
	scheme := schemeOf(rawURL)
	m.mu.RLock()
	f, ok := m.fetchers[scheme]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no fetcher registered for scheme %q", scheme)
	}
	return f.Fetch(ctx, rawURL, destDir)
}

// schemeOf extracts a URL's scheme. Scheme-less values are treated as
// local file paths.
func schemeOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return "file"
	}
	return strings.ToLower(u.Scheme)
}

// FileName derives the artifact file name from the URL's last path
// segment.
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid artifact URL %q: %w", rawURL, err)
	}

	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	// path.Base("/jobs/") is "jobs"; a URL ending in a slash names a
	// directory, not an artifact.
	if strings.HasSuffix(p, "/") {
		return "", fmt.Errorf("artifact URL %q has no file name", rawURL)
	}
	name := path.Base(p)
	if name == "" || name == "." {
		return "", fmt.Errorf("artifact URL %q has no file name", rawURL)
	}
	return name, nil
}
