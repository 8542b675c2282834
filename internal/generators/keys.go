package generators

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// hashPath returns a stable hex digest of path, used as the media_path
// component of every generator's cache_key (spec.md §3: "blake3(media_path)
// || ...").
func hashPath(path string) string {
	sum := blake3.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

func segmentCacheKey(path, rungID string, segmentIndex int) string {
	return fmt.Sprintf("%s_%s_s%d", hashPath(path), rungID, segmentIndex)
}

func thumbnailCacheKey(path string) string {
	return hashPath(path) + "_thumb"
}

func sheetCacheKey(path string) string {
	return hashPath(path) + "_sheet"
}

func subtitleCacheKey(path string, streamIndex int) string {
	return fmt.Sprintf("%s_sub%d", hashPath(path), streamIndex)
}
