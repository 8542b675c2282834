package hls

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"mediacache/internal/media/backend"
	"mediacache/internal/media/filter"
)

// videoTranscoder decodes one video stream, runs it through the
// backend's filter chain, and encodes the result, queuing output
// packets that fall inside a caller-supplied time window.
//
// Grounded on original_source/src/media_manipulation/transcoding/video.rs.
type videoTranscoder struct {
	be            backend.Backend
	decoder       *astiav.CodecContext
	decoderCloser func()
	filterChain   *filter.Chain
	encoder       *astiav.CodecContext
	scratchFrame  *astiav.Frame
	scratchPacket *astiav.Packet

	inStreamTimeBase astiav.Rational
	rateTimeBase     astiav.Rational
	firstFrame       bool

	outputCodec  astiav.CodecID
	outputWidth  int
	outputHeight int
	framerate    astiav.Rational
	bitRate      int64
	globalHeader bool

	outputPackets  []*astiav.Packet
	outStreamIndex int
}

func newVideoTranscoder(be backend.Backend, stream *astiav.Stream, outputCodec astiav.CodecID, bitRate int64, targetHeight int, globalHeader bool) (*videoTranscoder, error) {
	decoder, closer, err := be.CreateDecoder(backend.VideoDecoderParams{
		CodecParameters: stream.CodecParameters(),
		TimeBase:        stream.TimeBase(),
	})
	if err != nil {
		return nil, fmt.Errorf("hls: creating video decoder: %w", err)
	}

	framerate := decoder.Framerate()
	if framerate.Num() == 0 {
		framerate = astiav.NewRational(60, 1)
	}
	rateTimeBase := astiav.NewRational(framerate.Den(), framerate.Num()*10)

	outHeight := decoder.Height()
	if targetHeight < outHeight {
		outHeight = targetHeight
	}
	outWidth := decoder.Width() * outHeight / decoder.Height() / 2 * 2

	return &videoTranscoder{
		be:               be,
		decoder:          decoder,
		decoderCloser:    closer,
		scratchFrame:     astiav.AllocFrame(),
		scratchPacket:    astiav.AllocPacket(),
		inStreamTimeBase: stream.TimeBase(),
		rateTimeBase:     rateTimeBase,
		firstFrame:       true,
		outputCodec:      outputCodec,
		outputWidth:      outWidth,
		outputHeight:     outHeight,
		framerate:        framerate,
		bitRate:          bitRate,
		globalHeader:     globalHeader,
	}, nil
}

func (t *videoTranscoder) receiveInputPacket(srcTimeBase astiav.Rational, packet *astiav.Packet, bounds timeBounds) error {
	packet.RescaleTs(srcTimeBase, t.inStreamTimeBase)
	if err := t.decoder.SendPacket(packet); err != nil {
		return fmt.Errorf("hls: sending video packet: %w", err)
	}
	return t.decodeFrames(bounds)
}

func (t *videoTranscoder) decodeFrames(bounds timeBounds) error {
	rateBounds := bounds.scale(t.rateTimeBase)

	for {
		if err := t.decoder.ReceiveFrame(t.scratchFrame); err != nil {
			if err == astiav.ErrEagain || err == astiav.ErrEof {
				return nil
			}
			return fmt.Errorf("hls: decoding video frame: %w", err)
		}

		timestamp := astiav.RescaleQ(t.scratchFrame.Pts(), t.inStreamTimeBase, t.rateTimeBase)
		t.scratchFrame.SetPts(timestamp)

		if !rateBounds.contains(timestamp) {
			t.scratchFrame.Unref()
			continue
		}

		if t.filterChain == nil {
			srcArgs := fmt.Sprintf(
				"width=%d:height=%d:pix_fmt=%d:time_base=%d/%d:sar=1:colorspace=%d:range=%d",
				t.decoder.Width(), t.decoder.Height(), int(t.scratchFrame.PixelFormat()),
				t.rateTimeBase.Num(), t.rateTimeBase.Den(),
				int(t.decoder.ColorSpace()), int(t.decoder.ColorRange()),
			)
			spec := t.be.CreateFilterChain(t.outputWidth, t.outputHeight)
			chain, err := filter.New(srcArgs, spec, t.be.EncoderPixelFormat(), t.decoder.HardwareFramesContext())
			if err != nil {
				return fmt.Errorf("hls: building video filter chain: %w", err)
			}
			t.filterChain = chain
		}

		if err := t.filterChain.Push(t.scratchFrame); err != nil {
			return err
		}
		t.scratchFrame.Unref()

		if err := t.drainFilter(bounds); err != nil {
			return err
		}
	}
}

func (t *videoTranscoder) drainFilter(bounds timeBounds) error {
	rateBounds := bounds.scale(t.rateTimeBase)

	for {
		frame, err := t.filterChain.Pull()
		if err != nil {
			return err
		}
		if frame == nil {
			return nil
		}

		if t.encoder == nil {
			encoder, err := t.be.CreateEncoder(backend.VideoEncoderParams{
				Width:                 t.outputWidth,
				Height:                t.outputHeight,
				TimeBase:              t.rateTimeBase,
				FrameRate:             t.framerate,
				BitRate:               t.bitRate,
				GopSize:               int(t.framerate.Num() / t.framerate.Den()),
				GlobalHeader:          t.globalHeader,
				HardwareFramesContext: frame.HardwareFramesContext(),
			})
			if err != nil {
				return fmt.Errorf("hls: creating video encoder: %w", err)
			}
			t.encoder = encoder
		}

		pts := frame.Pts()
		if !rateBounds.contains(pts) {
			continue
		}

		if t.firstFrame {
			frame.SetPictureType(astiav.PictureTypeI)
			t.firstFrame = false
		} else {
			frame.SetPictureType(astiav.PictureTypeNone)
		}

		if err := t.encoder.SendFrame(frame); err != nil {
			return fmt.Errorf("hls: encoding video frame: %w", err)
		}
		if err := t.processOutputPackets(bounds); err != nil {
			return err
		}
	}
}

func (t *videoTranscoder) processOutputPackets(bounds timeBounds) error {
	rateBounds := bounds.scale(t.rateTimeBase)

	for {
		if err := t.encoder.ReceivePacket(t.scratchPacket); err != nil {
			if err == astiav.ErrEagain || err == astiav.ErrEof {
				return nil
			}
			return fmt.Errorf("hls: receiving video packet: %w", err)
		}
		pts := t.scratchPacket.Pts()
		if rateBounds.contains(pts) {
			t.outputPackets = append(t.outputPackets, t.scratchPacket.Clone())
		}
		t.scratchPacket.Unref()
	}
}

func (t *videoTranscoder) sendEOF(bounds timeBounds) error {
	if err := t.decoder.SendPacket(nil); err != nil && err != astiav.ErrEof {
		return fmt.Errorf("hls: flushing video decoder: %w", err)
	}
	if err := t.decodeFrames(bounds); err != nil {
		return err
	}
	if t.filterChain != nil {
		if err := t.filterChain.PushEOF(); err != nil {
			return err
		}
		if err := t.drainFilter(bounds); err != nil {
			return err
		}
	}
	if t.encoder != nil {
		if err := t.encoder.SendFrame(nil); err != nil && err != astiav.ErrEof {
			return fmt.Errorf("hls: flushing video encoder: %w", err)
		}
		if err := t.processOutputPackets(bounds); err != nil {
			return err
		}
	}
	return nil
}

// addOutputStream registers this transcoder's output stream on mux, once
// the encoder (and therefore its codec parameters) is known. A no-op if
// no encoder was ever created (e.g. every frame fell outside the window).
func (t *videoTranscoder) addOutputStream(mux *astiav.FormatContext) error {
	if t.encoder == nil {
		return nil
	}
	stream := mux.NewStream(nil)
	if stream == nil {
		return fmt.Errorf("hls: allocating video output stream")
	}
	if err := t.encoder.ToCodecParameters(stream.CodecParameters()); err != nil {
		return fmt.Errorf("hls: copying video codec parameters: %w", err)
	}
	stream.SetTimeBase(t.rateTimeBase)
	t.outStreamIndex = stream.Index()
	return nil
}

func (t *videoTranscoder) writeOutputPackets(mux *astiav.FormatContext) error {
	if t.encoder == nil {
		return nil
	}
	dstTimeBase := mux.Streams()[t.outStreamIndex].TimeBase()
	for _, packet := range t.outputPackets {
		packet.SetStreamIndex(t.outStreamIndex)
		packet.RescaleTs(t.rateTimeBase, dstTimeBase)
		if err := mux.WriteInterleavedFrame(packet); err != nil {
			packet.Free()
			return fmt.Errorf("hls: writing video packet: %w", err)
		}
		packet.Free()
	}
	t.outputPackets = nil
	return nil
}

func (t *videoTranscoder) close() {
	for _, p := range t.outputPackets {
		p.Free()
	}
	t.outputPackets = nil
	if t.scratchFrame != nil {
		t.scratchFrame.Free()
	}
	if t.scratchPacket != nil {
		t.scratchPacket.Free()
	}
	if t.filterChain != nil {
		t.filterChain.Close()
	}
	if t.encoder != nil {
		t.encoder.Free()
	}
	if t.decoder != nil {
		t.decoder.Free()
	}
	if t.decoderCloser != nil {
		t.decoderCloser()
	}
}
