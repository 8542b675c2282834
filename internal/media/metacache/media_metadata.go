package metacache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asticode/go-astiav"
)

// BasicMediaMetadata is the cheap, display-oriented metadata surfaced by
// a media browser listing: title, artist, duration, and creation date.
//
// Grounded on original_source/src/web_server/media_metadata.rs'
// BasicMediaMetadata. The Rust original prefers MP4/MKV container tag
// libraries (mp4ameta, matroska) over opening a full demuxer, falling
// back to the demuxer only for other containers. No MP4- or
// MKV-tag-specific library appears anywhere in the example corpus, so
// this implementation always takes the demuxer fallback path; metadata
// quality for MP4/MKV inputs is therefore a subset of the original
// (container-level metadata tags only, no extended atom parsing).
type BasicMediaMetadata struct {
	FileSize     int64     `json:"file_size"`
	PathStem     string    `json:"path_name"`
	DurationMs   int64     `json:"duration_ms"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	CreationDate time.Time `json:"creation_date"`
}

// VideoMetadata describes the best video stream's geometry and rate.
type VideoMetadata struct {
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	FrameRate astiav.Rational `json:"frame_rate"`
}

// SubtitleStream describes one embedded subtitle track.
type SubtitleStream struct {
	Index    int    `json:"index"`
	Language string `json:"language,omitempty"`
	Name     string `json:"name,omitempty"`
}

// AdvancedMediaMetadata carries the fields that require opening a
// demuxer and probing stream parameters, kept separate from
// BasicMediaMetadata so that callers which only need the cheap fields
// never pay the demuxer-open cost.
type AdvancedMediaMetadata struct {
	DurationMs      int64            `json:"duration_ms"`
	Video           *VideoMetadata   `json:"video,omitempty"`
	SubtitleStreams []SubtitleStream `json:"subtitle_streams"`
}

// DemuxerProbe is the minimal surface the fetchers built by NewBasicFetcher
// and NewAdvancedFetcher need from an opened demuxer. An
// internal/generators adapter supplies the real astiav-backed
// implementation.
type DemuxerProbe interface {
	DurationMillis() int64
	ContainerTag(key string) (string, bool)
	BestVideoStream() (width, height int, frameRate astiav.Rational, ok bool)
	SubtitleStreams() []SubtitleStream
	Close()
}

// OpenDemuxer opens path and returns a DemuxerProbe; supplied by a
// caller so this package stays free of process-wide demuxer state.
type OpenDemuxer func(path string) (DemuxerProbe, error)

// NewBasicFetcher returns a Fetcher producing BasicMediaMetadata, opening
// the demuxer via open.
func NewBasicFetcher(open OpenDemuxer) Fetcher[BasicMediaMetadata] {
	return func(_ context.Context, path string, info os.FileInfo) (BasicMediaMetadata, error) {
		var zero BasicMediaMetadata

		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		probe, err := open(path)
		if err != nil {
			return zero, fmt.Errorf("metacache: opening %q: %w", path, err)
		}
		defer probe.Close()

		title, _ := probe.ContainerTag("title")
		if title == "" {
			title = stem
		}
		artist, _ := probe.ContainerTag("artist")

		creationDate := info.ModTime()
		if dateTag, ok := probe.ContainerTag("date"); ok {
			if parsed, err := time.Parse("20060102", dateTag); err == nil {
				creationDate = parsed
			}
		}

		return BasicMediaMetadata{
			FileSize:     info.Size(),
			PathStem:     stem,
			DurationMs:   probe.DurationMillis(),
			Title:        title,
			Artist:       artist,
			CreationDate: creationDate,
		}, nil
	}
}

// NewAdvancedFetcher returns a Fetcher producing AdvancedMediaMetadata,
// opening the demuxer via open.
func NewAdvancedFetcher(open OpenDemuxer) Fetcher[AdvancedMediaMetadata] {
	return func(_ context.Context, path string, _ os.FileInfo) (AdvancedMediaMetadata, error) {
		var zero AdvancedMediaMetadata

		probe, err := open(path)
		if err != nil {
			return zero, fmt.Errorf("metacache: opening %q: %w", path, err)
		}
		defer probe.Close()

		result := AdvancedMediaMetadata{
			DurationMs:      probe.DurationMillis(),
			SubtitleStreams: probe.SubtitleStreams(),
		}
		if w, h, fr, ok := probe.BestVideoStream(); ok {
			result.Video = &VideoMetadata{Width: w, Height: h, FrameRate: fr}
		}
		return result, nil
	}
}
