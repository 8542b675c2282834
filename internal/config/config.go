// Package config loads the process's environment-variable configuration
// surface (spec.md §6), following the teacher's plain os.Getenv
// load-with-fallback idiom rather than a config-file or flags library.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"mediacache/internal/media/backend"
)

// CacheConfig is the per-cache directory/size-limit pair shared by the
// segments, thumbnail, and sheet caches.
type CacheConfig struct {
	Dir           string
	SizeLimitByte int64
}

// Config is the full process configuration.
type Config struct {
	Backend         backend.Kind
	ConcurrentTasks int
	Segments        CacheConfig
	Thumbnail       CacheConfig
	Sheet           CacheConfig
	Subtitle        CacheConfig
	LogLevel        string
	LogFormat       string
}

// Load reads Config from the environment, applying the same defaults a
// developer running this locally without a .env file would get.
func Load() (Config, error) {
	cfg := Config{
		Backend:         backend.Kind(strings.ToLower(getEnv("MEDIA_BACKEND", "software"))),
		ConcurrentTasks: int(getEnvInt64("MEDIA_CONCURRENT_TASKS", 4)),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	var err error
	if cfg.Segments, err = loadCacheConfig("MEDIA_SEGMENTS_CACHE_DIR", "data/cache/segments", "MEDIA_SEGMENTS_CACHE_SIZE_LIMIT", "10G"); err != nil {
		return Config{}, err
	}
	if cfg.Thumbnail, err = loadCacheConfig("MEDIA_THUMBNAIL_CACHE_DIR", "data/cache/thumbnail", "MEDIA_THUMBNAIL_CACHE_SIZE_LIMIT", "1G"); err != nil {
		return Config{}, err
	}
	if cfg.Sheet, err = loadCacheConfig("MEDIA_SHEET_CACHE_DIR", "data/cache/sheet", "MEDIA_SHEET_CACHE_SIZE_LIMIT", "2G"); err != nil {
		return Config{}, err
	}
	if cfg.Subtitle, err = loadCacheConfig("MEDIA_SUBTITLE_CACHE_DIR", "data/cache/subtitle", "MEDIA_SUBTITLE_CACHE_SIZE_LIMIT", "256M"); err != nil {
		return Config{}, err
	}

	if cfg.ConcurrentTasks <= 0 {
		return Config{}, fmt.Errorf("config: MEDIA_CONCURRENT_TASKS must be positive, got %d", cfg.ConcurrentTasks)
	}

	return cfg, nil
}

func loadCacheConfig(dirKey, dirDefault, sizeKey, sizeDefault string) (CacheConfig, error) {
	limit, err := parseSizeLimit(getEnv(sizeKey, sizeDefault))
	if err != nil {
		return CacheConfig{}, fmt.Errorf("config: %s: %w", sizeKey, err)
	}
	return CacheConfig{
		Dir:           getEnv(dirKey, dirDefault),
		SizeLimitByte: limit,
	}, nil
}

// parseSizeLimit parses suffixed size literals like "10G", "512M", "4096"
// (bytes, when no suffix is present). No ecosystem library in the
// example corpus parses suffixed byte sizes, so this is hand-rolled
// following the teacher's own getEnvInt64 style.
func parseSizeLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size literal")
	}

	multiplier := int64(1)
	suffix := s[len(s)-1]
	numeric := s
	switch suffix {
	case 'k', 'K':
		multiplier = 1 << 10
		numeric = s[:len(s)-1]
	case 'm', 'M':
		multiplier = 1 << 20
		numeric = s[:len(s)-1]
	case 'g', 'G':
		multiplier = 1 << 30
		numeric = s[:len(s)-1]
	case 't', 'T':
		multiplier = 1 << 40
		numeric = s[:len(s)-1]
	}

	value, err := strconv.ParseInt(strings.TrimSpace(numeric), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size literal %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative size literal %q", s)
	}
	return value * multiplier, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
