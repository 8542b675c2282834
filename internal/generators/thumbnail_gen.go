package generators

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"

	"mediacache/internal/cache"
	"mediacache/internal/media/thumbnail"
)

// ThumbnailInput identifies a still-thumbnail request (C10).
type ThumbnailInput struct {
	Path string
}

// ThumbnailGenerator adapts internal/media/thumbnail into a
// cache.Generator, opening a fresh demuxer/decoder per generation.
type ThumbnailGenerator struct{}

func NewThumbnailGenerator() *ThumbnailGenerator {
	return &ThumbnailGenerator{}
}

func (g *ThumbnailGenerator) CacheKey(input ThumbnailInput) string {
	return thumbnailCacheKey(input.Path)
}

func (g *ThumbnailGenerator) ValidityKey(_ context.Context, input ThumbnailInput) (cache.FileValidityKey, error) {
	return cache.FileValidityKeyFromPath(input.Path)
}

func (g *ThumbnailGenerator) Generate(_ context.Context, input ThumbnailInput) ([]byte, struct{}, error) {
	var zero struct{}

	in, err := openInput(input.Path)
	if err != nil {
		return nil, zero, err
	}
	defer in.close()

	if in.video == nil {
		return nil, zero, fmt.Errorf("generators: %q has no video stream", input.Path)
	}

	for _, s := range in.format.Streams() {
		if s.Index() == in.video.Index() {
			s.SetDiscard(astiav.DiscardNonKey)
		} else {
			s.SetDiscard(astiav.DiscardAll)
		}
	}

	dec, err := newKeyframeDecoder(in)
	if err != nil {
		return nil, zero, err
	}
	defer dec.close()

	bytes, err := thumbnail.Extract(dec)
	if err != nil {
		return nil, zero, err
	}
	return bytes, zero, nil
}

// keyframeDecoder implements both thumbnail.Decoder and
// spritesheet.Decoder: seek the demuxer's video stream backward to the
// nearest preceding keyframe, decode it, return one frame.
type keyframeDecoder struct {
	in      *openedInput
	decoder *astiav.CodecContext
	packet  *astiav.Packet
	frame   *astiav.Frame
}

func newKeyframeDecoder(in *openedInput) (*keyframeDecoder, error) {
	codec := astiav.FindDecoder(in.video.CodecParameters().CodecID())
	if codec == nil {
		return nil, fmt.Errorf("generators: no decoder for %v", in.video.CodecParameters().CodecID())
	}
	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return nil, fmt.Errorf("generators: allocating decoder context")
	}
	if err := in.video.CodecParameters().ToCodecContext(ctx); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("generators: applying codec parameters: %w", err)
	}
	ctx.SetPktTimeBase(in.video.TimeBase())
	if err := ctx.Open(codec, nil); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("generators: opening decoder: %w", err)
	}

	return &keyframeDecoder{
		in:      in,
		decoder: ctx,
		packet:  astiav.AllocPacket(),
		frame:   astiav.AllocFrame(),
	}, nil
}

func (d *keyframeDecoder) DurationMicros() int64 {
	return d.in.durationMicros()
}

func (d *keyframeDecoder) DurationSeconds() int {
	return d.in.durationSeconds()
}

func (d *keyframeDecoder) FrameSize() (int, int) {
	params := d.in.video.CodecParameters()
	return params.Width(), params.Height()
}

// seekTo seeks the demuxer backward to tsMicros (rescaled to the video
// stream's time base) so the following read lands on the nearest
// preceding keyframe.
func (d *keyframeDecoder) seekTo(tsMicros int64) error {
	ts := astiav.RescaleQ(tsMicros, astiav.NewRational(1, 1000000), d.in.video.TimeBase())
	return d.in.format.SeekFrame(d.in.video.Index(), ts, astiav.NewSeekFlags(astiav.SeekFlagBackward))
}

func (d *keyframeDecoder) decodeOneFrame() (*astiav.Frame, error) {
	for {
		if err := d.in.format.ReadFrame(d.packet); err != nil {
			if err == astiav.ErrEof {
				return nil, nil
			}
			return nil, fmt.Errorf("generators: reading packet: %w", err)
		}
		if d.packet.StreamIndex() != d.in.video.Index() {
			d.packet.Unref()
			continue
		}

		sendErr := d.decoder.SendPacket(d.packet)
		d.packet.Unref()
		if sendErr != nil {
			return nil, fmt.Errorf("generators: sending packet to decoder: %w", sendErr)
		}

		if err := d.decoder.ReceiveFrame(d.frame); err != nil {
			if err == astiav.ErrEagain {
				continue
			}
			if err == astiav.ErrEof {
				return nil, nil
			}
			return nil, fmt.Errorf("generators: decoding frame: %w", err)
		}
		return d.frame, nil
	}
}

func (d *keyframeDecoder) SeekAndDecodeKeyframe(timeMicros int64) (*astiav.Frame, error) {
	if err := d.seekTo(timeMicros); err != nil {
		return nil, fmt.Errorf("generators: seeking to %dus: %w", timeMicros, err)
	}
	d.decoder.FlushBuffers()
	return d.decodeOneFrame()
}

func (d *keyframeDecoder) close() {
	if d.packet != nil {
		d.packet.Free()
	}
	if d.frame != nil {
		d.frame.Free()
	}
	if d.decoder != nil {
		d.decoder.Free()
	}
}
