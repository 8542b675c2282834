// Package hls implements the HLS segment transcoder (spec.md §4.9):
// seeking a time window out of a source file and transcoding it to an
// MPEG-TS segment at one of a fixed quality-ladder rung.
//
// Grounded on original_source/src/media_manipulation/transcoding/{mod,video,audio}.rs.
package hls

// SegmentDuration is the fixed HLS segment length in seconds.
const SegmentDuration = 5

// paddingDelta is the extra seconds of lookback used when seeking and of
// lookahead used when trimming, so the decoder can land on the nearest
// keyframe before the segment boundary and finish flushing frames whose
// PTS lands just past it.
const paddingDelta = 1

// Rung is one predefined HLS quality-ladder entry. IDs are fixed so
// generated cache keys stay stable across restarts.
type Rung struct {
	ID           string
	TargetHeight int
	VideoBitRate int64
	AudioBitRate int64
}

// Ladder lists every supported rung, in descending quality order.
var Ladder = []Rung{
	{ID: "1080p_12M", TargetHeight: 1080, VideoBitRate: 12_000_000, AudioBitRate: 192_000},
	{ID: "720p_8M", TargetHeight: 720, VideoBitRate: 8_000_000, AudioBitRate: 192_000},
	{ID: "480p_2M", TargetHeight: 480, VideoBitRate: 2_000_000, AudioBitRate: 128_000},
	{ID: "360p_1M", TargetHeight: 360, VideoBitRate: 1_000_000, AudioBitRate: 96_000},
}

// RungByID looks up a ladder rung by its fixed ID.
func RungByID(id string) (Rung, bool) {
	for _, r := range Ladder {
		if r.ID == id {
			return r, true
		}
	}
	return Rung{}, false
}

// MaxBandwidth is the HLS multivariant manifest's BANDWIDTH attribute:
// video + audio bitrate plus a fixed container/mux overhead allowance.
func (r Rung) MaxBandwidth() int64 {
	return r.VideoBitRate + r.AudioBitRate + 16_000
}

// Offered reports whether this rung should be offered for a source of
// the given height: only downscale or unchanged, never upscale.
func (r Rung) Offered(sourceHeight int) bool {
	return r.TargetHeight <= sourceHeight
}
