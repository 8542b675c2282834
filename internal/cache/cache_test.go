package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"mediacache/internal/cache/taskpool"
)

// fakeInput is a trivial generator input: a string key plus a version
// number standing in for validity.
type fakeInput struct {
	key     string
	version int
}

type fakeMeta struct {
	Len int `json:"len"`
}

type fakeGenerator struct {
	calls int64
}

func (g *fakeGenerator) CacheKey(in fakeInput) string {
	sum := sha256.Sum256([]byte(in.key))
	return hex.EncodeToString(sum[:])[:16]
}

func (g *fakeGenerator) ValidityKey(_ context.Context, in fakeInput) (int, error) {
	return in.version, nil
}

func (g *fakeGenerator) Generate(_ context.Context, in fakeInput) ([]byte, fakeMeta, error) {
	atomic.AddInt64(&g.calls, 1)
	body := []byte(fmt.Sprintf("generated:%s:%d", in.key, in.version))
	return body, fakeMeta{Len: len(body)}, nil
}

func newTestCache(t *testing.T, sizeLimit int64) (*Cache[fakeInput, int, fakeMeta], *fakeGenerator) {
	t.Helper()
	dir := t.TempDir()
	gen := &fakeGenerator{}
	pool := taskpool.New(4)
	c, err := New[fakeInput, int, fakeMeta](gen, dir, sizeLimit, pool)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, gen
}

func TestGetOrGenerateMissThenHit(t *testing.T) {
	c, gen := newTestCache(t, 1<<20)
	ctx := context.Background()
	in := fakeInput{key: "a", version: 1}

	entry, err := c.GetOrGenerate(ctx, in)
	if err != nil {
		t.Fatalf("GetOrGenerate: %v", err)
	}
	if atomic.LoadInt64(&gen.calls) != 1 {
		t.Fatalf("expected 1 generation, got %d", gen.calls)
	}

	hit, err := c.Get(ctx, in)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hit == nil {
		t.Fatal("expected hit after GetOrGenerate")
	}
	if string(hit.Bytes) != string(entry.Bytes) {
		t.Fatalf("hit bytes = %q, want %q", hit.Bytes, entry.Bytes)
	}
	if atomic.LoadInt64(&gen.calls) != 1 {
		t.Fatalf("Get should not regenerate, calls = %d", gen.calls)
	}
}

// TestCoalescedGeneration replays spec scenario S2: two concurrent
// GetOrGenerate calls for the same new input must invoke Generate exactly
// once between them.
func TestCoalescedGeneration(t *testing.T) {
	c, gen := newTestCache(t, 1<<20)
	ctx := context.Background()
	in := fakeInput{key: "coalesce", version: 1}

	var wg sync.WaitGroup
	results := make([][]byte, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := c.GetOrGenerate(ctx, in)
			if err != nil {
				t.Errorf("GetOrGenerate: %v", err)
				return
			}
			results[i] = entry.Bytes
		}(i)
	}
	wg.Wait()

	if atomic.LoadInt64(&gen.calls) != 1 {
		t.Fatalf("expected exactly 1 generation, got %d", gen.calls)
	}
	if string(results[0]) != string(results[1]) {
		t.Fatalf("concurrent callers got different bytes: %q vs %q", results[0], results[1])
	}
}

// TestValidityInvalidation replays spec scenario S3.
func TestValidityInvalidation(t *testing.T) {
	c, gen := newTestCache(t, 1<<20)
	ctx := context.Background()
	in := fakeInput{key: "stale", version: 1}

	if _, err := c.GetOrGenerate(ctx, in); err != nil {
		t.Fatalf("GetOrGenerate v1: %v", err)
	}

	in2 := fakeInput{key: "stale", version: 2}
	hit, err := c.Get(ctx, in2)
	if err != nil {
		t.Fatalf("Get v2: %v", err)
	}
	if hit != nil {
		t.Fatal("expected absent for mismatched validity key")
	}

	if _, err := c.GetOrGenerate(ctx, in2); err != nil {
		t.Fatalf("GetOrGenerate v2: %v", err)
	}
	if atomic.LoadInt64(&gen.calls) != 2 {
		t.Fatalf("expected 2 generations total, got %d", gen.calls)
	}

	hit, err = c.Get(ctx, in2)
	if err != nil {
		t.Fatalf("Get v2 after regenerate: %v", err)
	}
	if hit == nil {
		t.Fatal("expected hit after regeneration")
	}
}

// TestInitCleanup replays spec scenario S4: an orphan payload, an orphan
// sidecar, and one valid pair. Only the valid pair should survive init.
func TestInitCleanup(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "k1"), []byte("orphan-payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "k2.meta.json"), []byte(`{"cache_key":"k2"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	gen := &fakeGenerator{}
	pool := taskpool.New(1)
	seed, err := New[fakeInput, int, fakeMeta](gen, dir, 1<<20, pool)
	if err != nil {
		t.Fatalf("New (seed): %v", err)
	}
	if _, err := seed.GetOrGenerate(context.Background(), fakeInput{key: "valid", version: 1}); err != nil {
		t.Fatalf("seeding valid pair: %v", err)
	}
	validKey := gen.CacheKey(fakeInput{key: "valid", version: 1})

	// The seed New's scanAndReconcile already removed both orphans. Re-open
	// against the same directory to check that the valid pair is reloaded
	// into the tracker and the orphans stay gone.
	gen2 := &fakeGenerator{}
	c2, err := New[fakeInput, int, fakeMeta](gen2, dir, 1<<20, pool)
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}

	if got, want := c2.tracker.Keys(), []string{validKey}; len(got) != 1 || got[0] != want[0] {
		t.Fatalf("tracker.Keys() = %v, want %v", got, want)
	}

	for _, name := range []string{"k1", "k2.meta.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed during init, stat err = %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, validKey)); err != nil {
		t.Fatalf("expected valid payload to survive init: %v", err)
	}
}

// TestEvictionUnderTightenedLimit replays spec scenario S5.
func TestEvictionUnderTightenedLimit(t *testing.T) {
	c, gen := newTestCache(t, 1<<20)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.GetOrGenerate(ctx, fakeInput{key: fmt.Sprintf("k%d", i), version: 1}); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	c.tracker.SetSizeLimit(1)

	if _, err := c.GetOrGenerate(ctx, fakeInput{key: "new", version: 1}); err != nil {
		t.Fatalf("GetOrGenerate new: %v", err)
	}

	keys := c.tracker.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected only the freshly inserted key to survive eviction, got %v", keys)
	}
	newKey := gen.CacheKey(fakeInput{key: "new", version: 1})
	if keys[0] != newKey {
		t.Fatalf("tracker.Keys() = %v, want [%s]", keys, newKey)
	}
	if _, err := os.Stat(filepath.Join(c.cacheDir, newKey)); err != nil {
		t.Fatalf("expected new payload file to exist: %v", err)
	}
}
