// Package backend implements the video backend abstraction (spec.md §4.6):
// three variants — software, video_toolbox, intel_quick_sync — that differ
// only in encoder codec selection, pixel format, decoder hardware wiring,
// and filter-chain construction.
package backend

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"mediacache/internal/media/hwdevice"
)

// Kind selects which backend variant to construct, matching the
// configuration surface in spec.md §6.
type Kind string

const (
	KindSoftware     Kind = "software"
	KindVideoToolbox Kind = "video_toolbox"
	KindQuickSync    Kind = "intel_quick_sync"
)

// ErrUnsupported is returned when a requested encoder/decoder codec is not
// available for the selected backend (spec.md §7).
var ErrUnsupported = errors.New("backend: unsupported")

// VideoEncoderParams describes the encoder a backend should construct.
type VideoEncoderParams struct {
	Width        int
	Height       int
	TimeBase     astiav.Rational
	FrameRate    astiav.Rational
	BitRate      int64
	GopSize      int
	GlobalHeader bool

	// HardwareFramesContext is the filtered frame's hw_frames_ctx, when
	// the decode/filter chain stayed on an accelerator. Backends that
	// encode hardware frames (intel_quick_sync) must attach it to the
	// encoder context before Open; software-input backends ignore it.
	HardwareFramesContext *astiav.HardwareFramesContext
}

// VideoDecoderParams describes the decoder a backend should construct
// from a demuxed stream's codec parameters.
type VideoDecoderParams struct {
	CodecParameters *astiav.CodecParameters
	TimeBase        astiav.Rational
}

// Backend is the capability set every variant implements.
type Backend interface {
	// EncoderPixelFormat is the pixel format the encoder expects its input
	// frames to already be in (after the filter chain runs).
	EncoderPixelFormat() astiav.PixelFormat

	// CreateEncoder builds and opens a video encoder context for params.
	CreateEncoder(params VideoEncoderParams) (*astiav.CodecContext, error)

	// CreateDecoder builds and opens a video decoder context for params.
	// Hardware variants attach a pool-borrowed device and install the
	// get_format negotiation needed to keep decoding on the accelerator.
	CreateDecoder(params VideoDecoderParams) (*astiav.CodecContext, func(), error)

	// CreateFilterChain returns the filter-graph description string for
	// scaling decoded frames to (w, h) ready for this backend's encoder.
	CreateFilterChain(w, h int) string

	// Close releases any backend-owned resources (e.g. a borrowed
	// hardware device).
	Close()
}

// New constructs the Backend variant named by kind. Hardware variants use
// devicePool to borrow an accelerator context for their lifetime;
// devicePool may be nil for KindSoftware.
func New(kind Kind, devicePool *hwdevice.Pool) (Backend, error) {
	switch kind {
	case KindSoftware, "":
		return newSoftwareBackend(), nil
	case KindVideoToolbox:
		return newVideoToolboxBackend(devicePool)
	case KindQuickSync:
		return newQuickSyncBackend(devicePool)
	default:
		return nil, fmt.Errorf("%w: backend kind %q", ErrUnsupported, kind)
	}
}

// applyGlobalHeader sets AV_CODEC_FLAG_GLOBAL_HEADER on ctx when the
// target muxer requires stream headers out-of-band (e.g. MPEG-TS with
// PAT/PMT carried separately from keyframes). Must be called before Open.
func applyGlobalHeader(ctx *astiav.CodecContext, global bool) {
	if global {
		ctx.SetFlags(ctx.Flags() | astiav.CodecContextFlagGlobalHeader)
	}
}

func openDecoder(codecID astiav.CodecID, params VideoDecoderParams, configure func(ctx *astiav.CodecContext)) (*astiav.CodecContext, error) {
	decoder := astiav.FindDecoder(codecID)
	if decoder == nil {
		return nil, fmt.Errorf("%w: no decoder for codec %v", ErrUnsupported, codecID)
	}
	ctx := astiav.AllocCodecContext(decoder)
	if ctx == nil {
		return nil, errors.New("backend: AllocCodecContext returned nil")
	}
	if err := params.CodecParameters.ToCodecContext(ctx); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("backend: applying codec parameters: %w", err)
	}
	ctx.SetTimeBase(params.TimeBase)
	if configure != nil {
		configure(ctx)
	}
	if err := ctx.Open(decoder, nil); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("backend: opening decoder: %w", err)
	}
	return ctx, nil
}
