package backend

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

// softwareBackend is the libx264 / no-hardware variant. Grounded on
// original_source/src/media_manipulation/backends/software.rs, which
// picks libx264 with preset/profile/forced-idr defaults and does not own
// any device.
type softwareBackend struct{}

func newSoftwareBackend() *softwareBackend {
	return &softwareBackend{}
}

func (b *softwareBackend) EncoderPixelFormat() astiav.PixelFormat {
	return astiav.PixelFormatYuv420P
}

func (b *softwareBackend) CreateEncoder(params VideoEncoderParams) (*astiav.CodecContext, error) {
	encoder := astiav.FindEncoderByName("libx264")
	if encoder == nil {
		return nil, fmt.Errorf("%w: libx264 encoder not available", ErrUnsupported)
	}
	ctx := astiav.AllocCodecContext(encoder)
	if ctx == nil {
		return nil, fmt.Errorf("backend: AllocCodecContext(libx264) returned nil")
	}
	ctx.SetWidth(params.Width)
	ctx.SetHeight(params.Height)
	ctx.SetTimeBase(params.TimeBase)
	ctx.SetFramerate(params.FrameRate)
	ctx.SetPixelFormat(astiav.PixelFormatYuv420P)
	ctx.SetGopSize(params.GopSize)
	if params.BitRate > 0 {
		ctx.SetBitRate(params.BitRate)
	}
	applyGlobalHeader(ctx, params.GlobalHeader)

	options := astiav.NewDictionary()
	defer options.Free()
	_ = options.Set("preset", "veryfast", 0)
	_ = options.Set("profile", "main", 0)
	_ = options.Set("forced-idr", "1", 0)

	if err := ctx.Open(encoder, options); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("backend: opening libx264 encoder: %w", err)
	}
	return ctx, nil
}

func (b *softwareBackend) CreateDecoder(params VideoDecoderParams) (*astiav.CodecContext, func(), error) {
	ctx, err := openDecoder(params.CodecParameters.CodecID(), params, nil)
	if err != nil {
		return nil, nil, err
	}
	return ctx, func() {}, nil
}

func (b *softwareBackend) CreateFilterChain(w, h int) string {
	return fmt.Sprintf("scale=w=%d:h=%d", w, h)
}

func (b *softwareBackend) Close() {}
