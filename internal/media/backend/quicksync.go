package backend

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"mediacache/internal/media/hwdevice"
)

// quickSyncBackend targets Intel Quick Sync via VAAPI→QSV frame mapping,
// grounded on original_source/src/media_manipulation/backends/intel_quick_sync.rs.
type quickSyncBackend struct {
	pool     *hwdevice.Pool
	borrowed *hwdevice.Borrowed
}

func newQuickSyncBackend(pool *hwdevice.Pool) (*quickSyncBackend, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: intel_quick_sync backend requires a device pool", ErrUnsupported)
	}
	borrowed, err := pool.Take()
	if err != nil {
		return nil, fmt.Errorf("backend: taking quick sync device: %w", err)
	}
	return &quickSyncBackend{pool: pool, borrowed: borrowed}, nil
}

func (b *quickSyncBackend) EncoderPixelFormat() astiav.PixelFormat {
	return astiav.PixelFormatQsv
}

func (b *quickSyncBackend) CreateEncoder(params VideoEncoderParams) (*astiav.CodecContext, error) {
	encoder := astiav.FindEncoderByName("h264_qsv")
	if encoder == nil {
		return nil, fmt.Errorf("%w: h264_qsv encoder not available", ErrUnsupported)
	}
	ctx := astiav.AllocCodecContext(encoder)
	if ctx == nil {
		return nil, fmt.Errorf("backend: AllocCodecContext(h264_qsv) returned nil")
	}
	ctx.SetWidth(params.Width)
	ctx.SetHeight(params.Height)
	ctx.SetTimeBase(params.TimeBase)
	ctx.SetFramerate(params.FrameRate)
	ctx.SetPixelFormat(astiav.PixelFormatQsv)
	ctx.SetGopSize(params.GopSize)
	ctx.SetHardwareDeviceContext(b.borrowed.Device())
	if params.HardwareFramesContext != nil {
		ctx.SetHardwareFramesContext(params.HardwareFramesContext)
	}
	if params.BitRate > 0 {
		ctx.SetBitRate(params.BitRate)
	}
	applyGlobalHeader(ctx, params.GlobalHeader)

	options := astiav.NewDictionary()
	defer options.Free()
	_ = options.Set("low_power", "1", 0)
	_ = options.Set("look_ahead", "1", 0)

	if err := ctx.Open(encoder, options); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("backend: opening h264_qsv encoder: %w", err)
	}
	return ctx, nil
}

func (b *quickSyncBackend) CreateDecoder(params VideoDecoderParams) (*astiav.CodecContext, func(), error) {
	ctx, err := openDecoder(params.CodecParameters.CodecID(), params, func(c *astiav.CodecContext) {
		c.SetHardwareDeviceContext(b.borrowed.Device())
		c.SetPixelFormatCallback(func(pixelFormats []astiav.PixelFormat) astiav.PixelFormat {
			for _, pf := range pixelFormats {
				if pf == astiav.PixelFormatQsv {
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

func (b *quickSyncBackend) CreateFilterChain(w, h int) string {
	return fmt.Sprintf(
		"scale_vaapi=w=%d:h=%d:format=nv12:extra_hw_frames=24,hwmap=derive_device=qsv,format=qsv",
		w, h,
	)
}

func (b *quickSyncBackend) Close() {
	if b.borrowed != nil {
		b.borrowed.Release()
	}
}
