package metacache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestFetchCachesUntilFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "a.txt", "hello")

	var calls int
	cache := New(func(_ context.Context, p string, info os.FileInfo) (string, error) {
		calls++
		return "value-for-" + p, nil
	})

	v1, err := cache.Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	v2, err := cache.Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if v1 != v2 {
		t.Fatalf("values differ across cached fetches: %q vs %q", v1, v2)
	}
	if calls != 1 {
		t.Fatalf("fetcher called %d times, want 1 (second call should hit cache)", calls)
	}

	// Changing the file's content (and therefore its size/mtime) must
	// invalidate the cached entry.
	time.Sleep(2 * time.Millisecond)
	if err := os.WriteFile(path, []byte("a longer replacement body"), 0o644); err != nil {
		t.Fatalf("rewriting file: %v", err)
	}

	if _, err := cache.Fetch(context.Background(), path); err != nil {
		t.Fatalf("third fetch: %v", err)
	}
	if calls != 2 {
		t.Fatalf("fetcher called %d times, want 2 after file changed", calls)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "b.txt", "content")

	var calls int
	cache := New(func(_ context.Context, p string, info os.FileInfo) (int, error) {
		calls++
		return calls, nil
	})

	if _, err := cache.Fetch(context.Background(), path); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	cache.Invalidate(path)
	if _, err := cache.Fetch(context.Background(), path); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if calls != 2 {
		t.Fatalf("fetcher called %d times, want 2 after Invalidate", calls)
	}
}

func TestFetchMissingFileErrors(t *testing.T) {
	cache := New(func(_ context.Context, p string, info os.FileInfo) (int, error) {
		return 0, nil
	})
	if _, err := cache.Fetch(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for a nonexistent path")
	}
}
