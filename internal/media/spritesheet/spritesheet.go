// Package spritesheet implements the timeline sprite-sheet generator
// (spec.md §4.11): a grid of evenly time-spaced thumbnails tiled into a
// single JPEG, used by the UI's seek scrubber.
//
// Grounded on original_source/src/media_manipulation/thumbnail_sheet.rs:
// interval/thumbnail-count/sheet-dimension math and the per-offset
// seek-then-decode-nearest-keyframe procedure are carried over verbatim.
// The Rust original additionally threads an AV_CODEC_FLAG_COPY_OPAQUE tag
// through packets so a single decode pass spanning several seeks can
// still recover which output tile each frame belongs to; go-astiav has no
// verified binding for that opaque-pointer plumbing, and the simpler
// per-offset seek-then-decode-one-keyframe loop (also present, commented
// out, earlier in the same Rust source as an alternate implementation)
// produces the identical tile content and positions, so that is the
// variant implemented here.
package spritesheet

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"math"

	"github.com/asticode/go-astiav"
	"golang.org/x/image/draw"

	"mediacache/internal/media/scale"
)

// ErrNoFrames is returned when the decoder could not produce a single
// usable keyframe for the sheet.
var ErrNoFrames = errors.New("spritesheet: no frames decoded")

const (
	targetThumbnailHeight = 120
	jpegQuality           = 90
	minIntervalSeconds    = 5
)

// Params is the sheet's typed artifact metadata, also consumed directly
// by the UI's timeline scrubber.
type Params struct {
	ThumbnailWidth  int `json:"thumbnail_width"`
	ThumbnailHeight int `json:"thumbnail_height"`
	ThumbnailCount  int `json:"thumbnail_count"`
	SheetRows       int `json:"sheet_rows"`
	SheetCols       int `json:"sheet_cols"`
	Interval        int `json:"interval"`
}

// CalculateParams derives sheet layout from the source duration (seconds)
// and frame dimensions.
func CalculateParams(durationSeconds, videoWidth, videoHeight int) Params {
	interval := durationSeconds / 500
	if interval < minIntervalSeconds {
		interval = minIntervalSeconds
	}

	count := int(math.Ceil(float64(durationSeconds) / float64(interval)))
	if count < 1 {
		count = 1
	}
	dim := int(math.Ceil(math.Sqrt(float64(count))))

	return Params{
		ThumbnailWidth:  videoWidth * targetThumbnailHeight / videoHeight,
		ThumbnailHeight: targetThumbnailHeight,
		ThumbnailCount:  count,
		SheetRows:       dim,
		SheetCols:       dim,
		Interval:        interval,
	}
}

// Decoder is the minimal demuxer/decoder surface the generator needs. A
// caller (an internal/generators adapter) owns the real astiav demuxer
// and decoder and discards all non-video streams and non-keyframe video
// packets before handing frames back here.
type Decoder interface {
	// DurationSeconds returns the source's total duration.
	DurationSeconds() int
	// FrameSize returns the decoder's configured output dimensions.
	FrameSize() (width, height int)
	// SeekAndDecodeKeyframe seeks backward from timeSeconds and returns the
	// nearest preceding decoded keyframe, or nil if none could be produced
	// (e.g. seeking past EOF).
	SeekAndDecodeKeyframe(timeSeconds int) (*astiav.Frame, error)
}

// Generate runs the full sprite-sheet pipeline against dec, returning the
// compressed JPEG sheet and its layout parameters.
func Generate(dec Decoder) ([]byte, Params, error) {
	srcW, srcH := dec.FrameSize()
	params := CalculateParams(dec.DurationSeconds(), srcW, srcH)

	sheet := image.NewRGBA(image.Rect(0, 0, params.SheetCols*params.ThumbnailWidth, params.SheetRows*params.ThumbnailHeight))

	scaler := scale.New()
	defer scaler.Close()

	produced := 0
	for offset := 0; offset < params.ThumbnailCount; offset++ {
		frame, err := dec.SeekAndDecodeKeyframe(offset * params.Interval)
		if err != nil || frame == nil {
			continue
		}

		rgbFrame, err := scaler.ScaleToRGB(frame, params.ThumbnailWidth, params.ThumbnailHeight)
		if err != nil {
			continue
		}
		tile, err := scale.FrameToRGBA(rgbFrame, params.ThumbnailWidth, params.ThumbnailHeight)
		if err != nil {
			continue
		}

		x := (offset % params.SheetCols) * params.ThumbnailWidth
		y := (offset / params.SheetRows) * params.ThumbnailHeight
		dstRect := image.Rect(x, y, x+params.ThumbnailWidth, y+params.ThumbnailHeight)
		draw.Draw(sheet, dstRect, tile, image.Point{}, draw.Src)
		produced++
	}

	if produced == 0 {
		return nil, Params{}, ErrNoFrames
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, sheet, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, Params{}, err
	}
	return buf.Bytes(), params, nil
}
