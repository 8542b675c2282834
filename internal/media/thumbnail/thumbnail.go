// Package thumbnail implements the still-thumbnail extractor (spec.md
// §4.10): N deterministically seeded random keyframes, scored by
// compressed JPEG size, best one wins.
//
// Grounded on original_source/src/media_manipulation/thumbnail.rs: 5
// samples drawn uniformly from [duration/10, 9*duration/10), PRNG seeded
// by a hash of the duration, JPEG quality 90 with 4:2:0 subsampling,
// largest-compressed-size wins as an entropy proxy.
package thumbnail

import (
	"bytes"
	"errors"
	"image/jpeg"
	"math/rand/v2"

	"github.com/asticode/go-astiav"
	"lukechampine.com/blake3"

	"mediacache/internal/media/scale"
)

// ErrNoCandidates is returned when no keyframe could be decoded.
var ErrNoCandidates = errors.New("thumbnail: no candidates produced")

const (
	sampleCount  = 5
	targetHeight = 720
	jpegQuality  = 90
)

// Decoder is the minimal demuxer/decoder surface the extractor needs,
// satisfied by internal/generators' keyframeDecoder, which wires an astiav
// decoder to a demuxer.
type Decoder interface {
	// SeekAndDecodeKeyframe seeks to timeMicros (demuxer time base,
	// rescaled internally by the implementation) and returns exactly one
	// decoded video frame from the nearest keyframe, or nil if none could
	// be decoded.
	SeekAndDecodeKeyframe(timeMicros int64) (*astiav.Frame, error)
	// DurationMicros returns the stream's total duration.
	DurationMicros() int64
}

// Extract runs the full thumbnail pipeline against dec, returning the
// winning JPEG bytes.
func Extract(dec Decoder) ([]byte, error) {
	duration := dec.DurationMicros()

	var seed [32]byte
	durationHash := blake3.Sum256(int64LE(duration))
	copy(seed[:], durationHash[:])
	rng := rand.New(rand.NewChaCha8(seed))

	lo := duration / 10
	hi := duration / 10 * 9
	if hi <= lo {
		hi = lo + 1
	}

	scaler := scale.New()
	defer scaler.Close()

	var best []byte
	for i := 0; i < sampleCount; i++ {
		timeMicros := lo + rng.Int64N(hi-lo)

		frame, err := dec.SeekAndDecodeKeyframe(timeMicros)
		if err != nil || frame == nil {
			continue
		}

		outW, outH := scale.TargetSize(frame.Width(), frame.Height(), targetHeight)
		rgbFrame, err := scaler.ScaleToRGB(frame, outW, outH)
		if err != nil {
			continue
		}

		encoded, err := encodeJPEG(rgbFrame, outW, outH)
		if err != nil {
			continue
		}

		// The frame with the largest compressed size should have the
		// highest entropy and be the most visually interesting thumbnail.
		if best == nil || len(encoded) > len(best) {
			best = encoded
		}
	}

	if best == nil {
		return nil, ErrNoCandidates
	}
	return best, nil
}

// encodeJPEG packs an RGB24 astiav frame into image/jpeg output at
// jpegQuality with the frame's native stride respected.
func encodeJPEG(frame *astiav.Frame, w, h int) ([]byte, error) {
	rgb, err := scale.FrameToRGBA(frame, w, h)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func int64LE(v int64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
