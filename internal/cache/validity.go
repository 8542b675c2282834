package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// FileValidityKey is the validity key shared by every generator whose
// output depends solely on a source file's identity: two entries are
// valid for the same input iff source path, size, and modification time
// all match (spec.md §3).
//
// ModTimeUnixNano is stored as an int64 rather than time.Time so the
// struct satisfies Go's comparable constraint and plain == matches
// spec.md's "structural equality of the typed value."
type FileValidityKey struct {
	SourcePath      string `json:"source_path"`
	FileSize        int64  `json:"file_size"`
	ModTimeUnixNano int64  `json:"-"`
}

// FileValidityKeyFromPath stats path and builds its FileValidityKey.
func FileValidityKeyFromPath(path string) (FileValidityKey, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileValidityKey{}, fmt.Errorf("%w: stat %s: %v", ErrInput, path, err)
	}
	return FileValidityKey{
		SourcePath:      path,
		FileSize:        info.Size(),
		ModTimeUnixNano: info.ModTime().UnixNano(),
	}, nil
}

// MarshalJSON emits the current typed form for mod_time, per spec.md §6:
// "emit the system-time form on write."
func (k FileValidityKey) MarshalJSON() ([]byte, error) {
	type wire struct {
		SourcePath string    `json:"source_path"`
		FileSize   int64     `json:"file_size"`
		ModTime    time.Time `json:"mod_time"`
	}
	return json.Marshal(wire{
		SourcePath: k.SourcePath,
		FileSize:   k.FileSize,
		ModTime:    time.Unix(0, k.ModTimeUnixNano).UTC(),
	})
}

// UnmarshalJSON accepts both the current typed (system-time) form and the
// legacy ISO-8601 string form for mod_time, per spec.md §9's back-compat
// note.
func (k *FileValidityKey) UnmarshalJSON(data []byte) error {
	var probe struct {
		SourcePath string          `json:"source_path"`
		FileSize   int64           `json:"file_size"`
		ModTime    json.RawMessage `json:"mod_time"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	k.SourcePath = probe.SourcePath
	k.FileSize = probe.FileSize

	if len(probe.ModTime) == 0 || string(probe.ModTime) == "null" {
		return nil
	}

	var t time.Time
	if err := json.Unmarshal(probe.ModTime, &t); err == nil {
		k.ModTimeUnixNano = t.UnixNano()
		return nil
	}

	var s string
	if err := json.Unmarshal(probe.ModTime, &s); err != nil {
		return fmt.Errorf("%w: unrecognized mod_time shape", ErrInvalidSidecar)
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("%w: parsing legacy mod_time %q: %v", ErrInvalidSidecar, s, err)
	}
	k.ModTimeUnixNano = parsed.UnixNano()
	return nil
}
