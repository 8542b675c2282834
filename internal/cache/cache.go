// Package cache implements the generic content-addressed artifact cache:
// per-key concurrency via keylock, LRU size-bounded eviction via tracker,
// and crash-safe sidecar JSON metadata on disk.
//
// The eviction discipline is grounded on the teacher's hlsCache.Store,
// which pushes to its heap and evicts under its own lock but performs the
// actual file deletions outside that lock so a slow or failing delete for
// one key cannot block bookkeeping for another. This package applies the
// same discipline: Tracker.Insert (in-memory) happens while nothing else
// is blocked on it, and the resulting evicted keys are deleted one at a
// time, each under its own per-key lock, after the generating call's own
// lock has already been released.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"mediacache/internal/cache/keylock"
	"mediacache/internal/cache/taskpool"
	"mediacache/internal/cache/tracker"
)

// Sentinel errors corresponding to spec.md §7's error kinds.
var (
	ErrInvalidSidecar = errors.New("cache: invalid sidecar")
	ErrStaleEntry     = errors.New("cache: stale entry")
	ErrGeneration     = errors.New("cache: generation failed")
	ErrIO             = errors.New("cache: io error")
	ErrInput          = errors.New("cache: invalid input")
)

// Generator is the pluggable artifact-producing strategy a Cache is
// parameterized over. V must be comparable so validity-key equality is a
// plain Go ==, matching spec.md §3's "comparison is structural equality of
// the typed value."
type Generator[I any, V comparable, M any] interface {
	// CacheKey derives the stable filename-safe identity of input.
	CacheKey(input I) string
	// ValidityKey computes the value whose equality determines whether an
	// existing cache entry still matches input.
	ValidityKey(ctx context.Context, input I) (V, error)
	// Generate produces the artifact bytes and its typed metadata. This is
	// the CPU-heavy step that runs behind the task pool.
	Generate(ctx context.Context, input I) ([]byte, M, error)
}

// Entry is a cache hit: the artifact bytes plus its bookkeeping fields.
type Entry[M any] struct {
	Bytes        []byte
	CreationDate time.Time
	Metadata     M
}

// sidecar is the on-disk JSON structure paired with every payload file.
type sidecar[V any, M any] struct {
	CacheKey     string    `json:"cache_key"`
	CreationDate time.Time `json:"creation_date"`
	LastAccessed time.Time `json:"last_accessed"`
	EntrySize    int64     `json:"entry_size"`
	ValidityKey  V         `json:"validity_key"`
	ExtraMeta    M         `json:"extra_metadata"`
}

// Cache is the generic content-addressed artifact cache (C4).
type Cache[I any, V comparable, M any] struct {
	generator Generator[I, V, M]
	cacheDir  string
	pool      *taskpool.Pool
	locks     *keylock.Registry
	tracker   *tracker.Tracker
	logger    *slog.Logger
}

// Option configures a Cache at construction time.
type Option[I any, V comparable, M any] func(*Cache[I, V, M])

// WithTaskPool overrides the task pool used to run generation. By default
// a Cache uses the pool passed to New.
func WithTaskPool[I any, V comparable, M any](p *taskpool.Pool) Option[I, V, M] {
	return func(c *Cache[I, V, M]) { c.pool = p }
}

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger[I any, V comparable, M any](logger *slog.Logger) Option[I, V, M] {
	return func(c *Cache[I, V, M]) { c.logger = logger }
}

// New creates a Cache rooted at cacheDir with sizeLimit bytes, running
// generation through pool. It scans cacheDir for existing valid/invalid
// entries per spec.md §4.4's initialization procedure.
func New[I any, V comparable, M any](
	generator Generator[I, V, M],
	cacheDir string,
	sizeLimit int64,
	pool *taskpool.Pool,
	opts ...Option[I, V, M],
) (*Cache[I, V, M], error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating cache dir: %v", ErrIO, err)
	}

	c := &Cache[I, V, M]{
		generator: generator,
		cacheDir:  cacheDir,
		pool:      pool,
		locks:     keylock.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	entries, err := c.scanAndReconcile()
	if err != nil {
		return nil, err
	}
	c.tracker = tracker.New(entries, sizeLimit)

	return c, nil
}

// scanAndReconcile implements the init-time sweep: valid pairs are kept
// (and returned for tracker seeding), invalid/orphaned files are removed.
func (c *Cache[I, V, M]) scanAndReconcile() ([]tracker.InitialEntry, error) {
	dirEntries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading cache dir: %v", ErrIO, err)
	}

	const metaSuffix = ".meta.json"
	var result []tracker.InitialEntry

	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if len(name) <= len(metaSuffix) || name[len(name)-len(metaSuffix):] != metaSuffix {
			continue
		}
		cacheKey := name[:len(name)-len(metaSuffix)]
		payloadPath := filepath.Join(c.cacheDir, cacheKey)
		sidecarPath := filepath.Join(c.cacheDir, name)

		payloadInfo, payloadErr := os.Stat(payloadPath)
		var sc sidecar[V, M]
		parseErr := readJSON(sidecarPath, &sc)

		if payloadErr == nil && parseErr == nil {
			result = append(result, tracker.InitialEntry{
				Key:          cacheKey,
				Size:         payloadInfo.Size(),
				LastAccessed: sc.LastAccessed.UnixNano(),
			})
			continue
		}

		// Orphaned sidecar (no payload) or unparseable sidecar: remove both.
		c.logger.Debug("cache init: removing invalid entry", slog.String("cache_key", cacheKey))
		_ = os.Remove(payloadPath)
		_ = os.Remove(sidecarPath)
	}

	// Payloads with no sidecar at all are also orphans.
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if len(name) > len(metaSuffix) && name[len(name)-len(metaSuffix):] == metaSuffix {
			continue
		}
		sidecarPath := filepath.Join(c.cacheDir, name+metaSuffix)
		if _, err := os.Stat(sidecarPath); err != nil {
			c.logger.Debug("cache init: removing orphan payload", slog.String("cache_key", name))
			_ = os.Remove(filepath.Join(c.cacheDir, name))
		}
	}

	return result, nil
}

// Get returns the cached entry for input if present and valid, without
// generating it on a miss.
func (c *Cache[I, V, M]) Get(ctx context.Context, input I) (*Entry[M], error) {
	validityKey, err := c.generator.ValidityKey(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInput, err)
	}
	cacheKey := c.generator.CacheKey(input)

	release, err := c.locks.Acquire(ctx, cacheKey)
	if err != nil {
		return nil, err
	}
	defer release()

	entry, _, ok := c.lookup(cacheKey, validityKey)
	if !ok {
		return nil, nil
	}
	return entry, nil
}

// GetOrGenerate returns the cached entry for input, generating and
// persisting it on a miss. At most one generation runs per cache key at a
// time across the process, enforced by the per-key lock.
func (c *Cache[I, V, M]) GetOrGenerate(ctx context.Context, input I) (*Entry[M], error) {
	validityKey, err := c.generator.ValidityKey(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInput, err)
	}
	cacheKey := c.generator.CacheKey(input)

	release, err := c.locks.Acquire(ctx, cacheKey)
	if err != nil {
		return nil, err
	}

	entry, sidecarPath, ok := c.lookup(cacheKey, validityKey)
	if ok {
		release()
		return entry, nil
	}

	type genResult struct {
		bytes []byte
		meta  M
	}
	result, genErr := taskpool.Execute(ctx, c.pool, func(ctx context.Context) (genResult, error) {
		b, m, err := c.generator.Generate(ctx, input)
		return genResult{bytes: b, meta: m}, err
	})
	if genErr != nil {
		release()
		return nil, fmt.Errorf("%w: %v", ErrGeneration, genErr)
	}

	payloadPath := filepath.Join(c.cacheDir, cacheKey)
	now := time.Now().UTC()
	sc := sidecar[V, M]{
		CacheKey:     cacheKey,
		CreationDate: now,
		LastAccessed: now,
		EntrySize:    int64(len(result.bytes)),
		ValidityKey:  validityKey,
		ExtraMeta:    result.meta,
	}

	if err := writeFileAtomic(payloadPath, result.bytes); err != nil {
		release()
		return nil, fmt.Errorf("%w: writing payload: %v", ErrIO, err)
	}
	if err := writeJSONAtomic(sidecarPath, &sc); err != nil {
		_ = os.Remove(payloadPath)
		release()
		return nil, fmt.Errorf("%w: writing sidecar: %v", ErrIO, err)
	}

	evicted := c.tracker.Insert(cacheKey, sc.EntrySize)
	release()

	c.evictKeys(ctx, evicted)

	return &Entry[M]{
		Bytes:        result.bytes,
		CreationDate: now,
		Metadata:     result.meta,
	}, nil
}

// lookup checks the payload+sidecar pair for cacheKey against validityKey.
// Caller must already hold cacheKey's lock. On a hit it promotes the
// tracker entry and refreshes last_accessed on disk.
func (c *Cache[I, V, M]) lookup(cacheKey string, validityKey V) (entry *Entry[M], sidecarPath string, ok bool) {
	payloadPath := filepath.Join(c.cacheDir, cacheKey)
	sidecarPath = payloadPath + ".meta.json"

	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		return nil, sidecarPath, false
	}

	var sc sidecar[V, M]
	if err := readJSON(sidecarPath, &sc); err != nil {
		return nil, sidecarPath, false
	}
	if sc.ValidityKey != validityKey {
		return nil, sidecarPath, false
	}

	c.tracker.Promote(cacheKey)

	sc.LastAccessed = time.Now().UTC()
	if err := writeJSONAtomic(sidecarPath, &sc); err != nil {
		c.logger.Warn("cache: failed to refresh last_accessed", slog.String("cache_key", cacheKey), slog.Any("error", err))
	}

	return &Entry[M]{
		Bytes:        payload,
		CreationDate: sc.CreationDate,
		Metadata:     sc.ExtraMeta,
	}, sidecarPath, true
}

// evictKeys deletes the payload+sidecar pair for each evicted key, taking
// each key's own lock first so an in-flight reader of that key cannot
// observe a half-deleted pair. Delete failures are logged and otherwise
// ignored — spec.md §7 IoError: "eviction I/O errors are swallowed."
func (c *Cache[I, V, M]) evictKeys(ctx context.Context, keys []string) {
	for _, key := range keys {
		release, err := c.locks.Acquire(ctx, key)
		if err != nil {
			c.logger.Warn("cache: eviction lock acquire failed", slog.String("cache_key", key), slog.Any("error", err))
			continue
		}

		payloadPath := filepath.Join(c.cacheDir, key)
		sidecarPath := payloadPath + ".meta.json"
		if err := os.Remove(payloadPath); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("cache: eviction failed to remove payload", slog.String("cache_key", key), slog.Any("error", err))
		}
		if err := os.Remove(sidecarPath); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("cache: eviction failed to remove sidecar", slog.String("cache_key", key), slog.Any("error", err))
		}

		release()
	}
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeFileAtomic writes data to path via a temp file + rename, so a
// crash mid-write never leaves a truncated payload visible under the
// final name.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeJSONAtomic(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}
