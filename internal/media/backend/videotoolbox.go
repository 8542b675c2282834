package backend

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"mediacache/internal/media/hwdevice"
)

// videoToolboxBackend targets macOS's hardware encoder/decoder, grounded
// on original_source/src/media_manipulation/backends/video_toolbox.rs.
type videoToolboxBackend struct {
	pool     *hwdevice.Pool
	borrowed *hwdevice.Borrowed
}

func newVideoToolboxBackend(pool *hwdevice.Pool) (*videoToolboxBackend, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: video_toolbox backend requires a device pool", ErrUnsupported)
	}
	borrowed, err := pool.Take()
	if err != nil {
		return nil, fmt.Errorf("backend: taking video_toolbox device: %w", err)
	}
	return &videoToolboxBackend{pool: pool, borrowed: borrowed}, nil
}

func (b *videoToolboxBackend) EncoderPixelFormat() astiav.PixelFormat {
	return astiav.PixelFormatYuv420P
}

func (b *videoToolboxBackend) CreateEncoder(params VideoEncoderParams) (*astiav.CodecContext, error) {
	encoder := astiav.FindEncoderByName("h264_videotoolbox")
	if encoder == nil {
		return nil, fmt.Errorf("%w: h264_videotoolbox encoder not available", ErrUnsupported)
	}
	ctx := astiav.AllocCodecContext(encoder)
	if ctx == nil {
		return nil, fmt.Errorf("backend: AllocCodecContext(h264_videotoolbox) returned nil")
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

	if err := ctx.Open(encoder, nil); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("backend: opening h264_videotoolbox encoder: %w", err)
	}
	return ctx, nil
}

func (b *videoToolboxBackend) CreateDecoder(params VideoDecoderParams) (*astiav.CodecContext, func(), error) {
	ctx, err := openDecoder(params.CodecParameters.CodecID(), params, func(c *astiav.CodecContext) {
		c.SetHardwareDeviceContext(b.borrowed.Device())
		c.SetPixelFormatCallback(func(pixelFormats []astiav.PixelFormat) astiav.PixelFormat {
			for _, pf := range pixelFormats {
				if pf == astiav.PixelFormatVideotoolbox {
					return pf
				}
			}
			return astiav.PixelFormatNone
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return ctx, func() {}, nil
}

func (b *videoToolboxBackend) CreateFilterChain(w, h int) string {
	return fmt.Sprintf("scale=w=%d:h=%d", w, h)
}

func (b *videoToolboxBackend) Close() {
	if b.borrowed != nil {
		b.borrowed.Release()
	}
}
