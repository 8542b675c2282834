package config

import "testing"

func TestParseSizeLimitSuffixes(t *testing.T) {
	cases := map[string]int64{
		"10G":  10 << 30,
		"512M": 512 << 20,
		"4k":   4 << 10,
		"2048": 2048,
		"1T":   1 << 40,
	}
	for input, want := range cases {
		got, err := parseSizeLimit(input)
		if err != nil {
			t.Fatalf("parseSizeLimit(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("parseSizeLimit(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestParseSizeLimitRejectsNegativeAndInvalid(t *testing.T) {
	for _, input := range []string{"-5G", "abc", ""} {
		if _, err := parseSizeLimit(input); err == nil {
			t.Fatalf("parseSizeLimit(%q) expected an error", input)
		}
	}
}

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != "software" {
		t.Fatalf("default backend = %q, want %q", cfg.Backend, "software")
	}
	if cfg.ConcurrentTasks <= 0 {
		t.Fatalf("default concurrent tasks = %d, want positive", cfg.ConcurrentTasks)
	}
	if cfg.Segments.SizeLimitByte != 10<<30 {
		t.Fatalf("default segments size limit = %d, want %d", cfg.Segments.SizeLimitByte, 10<<30)
	}
	if cfg.Subtitle.SizeLimitByte != 256<<20 {
		t.Fatalf("default subtitle size limit = %d, want %d", cfg.Subtitle.SizeLimitByte, 256<<20)
	}
	if cfg.Subtitle.Dir != "data/cache/subtitle" {
		t.Fatalf("default subtitle dir = %q, want %q", cfg.Subtitle.Dir, "data/cache/subtitle")
	}
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("MEDIA_BACKEND", "video_toolbox")
	t.Setenv("MEDIA_CONCURRENT_TASKS", "8")
	t.Setenv("MEDIA_THUMBNAIL_CACHE_SIZE_LIMIT", "256M")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != "video_toolbox" {
		t.Fatalf("backend = %q, want video_toolbox", cfg.Backend)
	}
	if cfg.ConcurrentTasks != 8 {
		t.Fatalf("concurrent tasks = %d, want 8", cfg.ConcurrentTasks)
	}
	if cfg.Thumbnail.SizeLimitByte != 256<<20 {
		t.Fatalf("thumbnail size limit = %d, want %d", cfg.Thumbnail.SizeLimitByte, 256<<20)
	}
}
