package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writingFetcher creates the expected destination file like a real
// transfer would.
type writingFetcher struct {
	calls   int
	content string
	skip    bool // report success without creating the file
}

func (f *writingFetcher) Fetch(ctx context.Context, rawURL, destDir string) error {
	f.calls++
	if f.skip {
		return nil
	}
	name, err := FileName(rawURL)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(destDir, name), []byte(f.content), 0o644)
}

func TestPreparer_CreatesDirAndFetches(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	fetcher := &writingFetcher{content: "jar-bytes"}
	p := NewPreparer(root, fetcher, nil)

	local, err := p.Prepare(context.Background(), "drv-1", "https://host/jobs/app.jar")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	want := filepath.Join(root, "drv-1", "app.jar")
	if local != want {
		t.Errorf("expected path %q, got %q", want, local)
	}
	data, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if string(data) != "jar-bytes" {
		t.Errorf("unexpected artifact content: %q", data)
	}
}

func TestPreparer_SkipsFetchWhenFilePresent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	fetcher := &writingFetcher{content: "jar-bytes"}
	p := NewPreparer(root, fetcher, nil)

	if _, err := p.Prepare(context.Background(), "drv-1", "https://host/app.jar"); err != nil {
		t.Fatalf("first Prepare failed: %v", err)
	}
	if _, err := p.Prepare(context.Background(), "drv-1", "https://host/app.jar"); err != nil {
		t.Fatalf("second Prepare failed: %v", err)
	}

	if fetcher.calls != 1 {
		t.Errorf("expected a single fetch across attempts, got %d", fetcher.calls)
	}
}

func TestPreparer_ExistingDirIsNotAnError(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "drv-1"), 0o755); err != nil {
		t.Fatal(err)
	}

	p := NewPreparer(root, &writingFetcher{content: "x"}, nil)
	if _, err := p.Prepare(context.Background(), "drv-1", "https://host/app.jar"); err != nil {
		t.Fatalf("Prepare failed with pre-existing dir: %v", err)
	}
}

func TestPreparer_FetchError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("network down")
	p := NewPreparer(t.TempDir(), &fakeFetcher{err: wantErr}, nil)

	_, err := p.Prepare(context.Background(), "drv-1", "https://host/app.jar")
	if !errors.Is(err, wantErr) {
		t.Errorf("expected fetch error propagated, got %v", err)
	}
}

func TestPreparer_MissingAfterFetch(t *testing.T) {
	t.Parallel()

	// The fetcher reports success but produces no file.
	p := NewPreparer(t.TempDir(), &writingFetcher{skip: true}, nil)

	_, err := p.Prepare(context.Background(), "drv-1", "https://host/app.jar")
	if !errors.Is(err, ErrMissingAfterFetch) {
		t.Errorf("expected ErrMissingAfterFetch, got %v", err)
	}
}

func TestPreparer_InvalidURL(t *testing.T) {
	t.Parallel()

	p := NewPreparer(t.TempDir(), &writingFetcher{}, nil)
	if _, err := p.Prepare(context.Background(), "drv-1", "https://host/"); err == nil {
		t.Error("expected error for URL without a file name")
	}
}

func TestPreparer_Remove(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	p := NewPreparer(root, &writingFetcher{content: "x"}, nil)

	if _, err := p.Prepare(context.Background(), "drv-1", "https://host/app.jar"); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := p.Remove("drv-1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(p.Dir("drv-1")); !os.IsNotExist(err) {
		t.Error("expected driver directory removed")
	}

	// Removing an absent driver is fine.
	if err := p.Remove("drv-unknown"); err != nil {
		t.Errorf("Remove of unknown driver failed: %v", err)
	}
}

// countingMetrics records preparer metric calls.
type countingMetrics struct {
	fetches   int
	cacheHits int
}

func (m *countingMetrics) RecordArtifactFetch(ctx context.Context, scheme string, durationSeconds float64) {
	m.fetches++
}

func (m *countingMetrics) RecordArtifactCacheHit(ctx context.Context) {
	m.cacheHits++
}

func TestPreparer_RecordsMetrics(t *testing.T) {
	t.Parallel()

	metrics := &countingMetrics{}
	p := NewPreparer(t.TempDir(), &writingFetcher{content: "x"}, metrics)

	if _, err := p.Prepare(context.Background(), "drv-1", "https://host/app.jar"); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if _, err := p.Prepare(context.Background(), "drv-1", "https://host/app.jar"); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if metrics.fetches != 1 {
		t.Errorf("expected 1 fetch recorded, got %d", metrics.fetches)
	}
	if metrics.cacheHits != 1 {
		t.Errorf("expected 1 cache hit recorded, got %d", metrics.cacheHits)
	}
}
