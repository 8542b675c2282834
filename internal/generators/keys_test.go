package generators

import "testing"

func TestHashPathIsStableAndDistinct(t *testing.T) {
	a := hashPath("/media/movie.mkv")
	b := hashPath("/media/movie.mkv")
	c := hashPath("/media/other.mkv")
	if a != b {
		t.Fatalf("hashPath not stable: %q != %q", a, b)
	}
	if a == c {
		t.Fatalf("hashPath collided for distinct paths")
	}
	if len(a) != 64 {
		t.Fatalf("hashPath length = %d, want 64 hex chars", len(a))
	}
}

func TestSegmentCacheKeyFormat(t *testing.T) {
	path := "/media/movie.mkv"
	key := segmentCacheKey(path, "720p_8M", 12)
	want := hashPath(path) + "_720p_8M_s12"
	if key != want {
		t.Fatalf("segmentCacheKey = %q, want %q", key, want)
	}
}

func TestCacheKeysDistinctByArtifactKind(t *testing.T) {
	path := "/media/movie.mkv"
	keys := map[string]bool{
		thumbnailCacheKey(path):       true,
		sheetCacheKey(path):           true,
		subtitleCacheKey(path, 0):     true,
		segmentCacheKey(path, "a", 0): true,
	}
	if len(keys) != 4 {
		t.Fatalf("expected 4 distinct cache keys for the same path across artifact kinds, got %d", len(keys))
	}
}

func TestSubtitleCacheKeyVariesByStreamIndex(t *testing.T) {
	path := "/media/movie.mkv"
	if subtitleCacheKey(path, 0) == subtitleCacheKey(path, 1) {
		t.Fatalf("subtitleCacheKey did not vary with stream index")
	}
}
