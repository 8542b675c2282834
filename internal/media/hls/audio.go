package hls

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

// audioTranscoder decodes one audio stream and re-encodes it to AAC,
// realigning sample boundaries to the encoder's fixed frame size.
//
// Grounded on original_source/src/media_manipulation/transcoding/audio.rs.
// Audio has no backend abstraction in spec.md — every variant uses the
// same software AAC encoder regardless of video backend.
type audioTranscoder struct {
	decoder *astiav.CodecContext
	encoder *astiav.CodecContext

	inStreamTimeBase astiav.Rational
	rateTimeBase     astiav.Rational
	sampleSize       int

	stagingFrame *astiav.Frame
	stagingIndex int
	firstFrame   bool

	scratchFrame  *astiav.Frame
	scratchPacket *astiav.Packet

	outputPackets  []*astiav.Packet
	outStreamIndex int
}

func newAudioTranscoder(stream *astiav.Stream, bitRate int64, globalHeader bool) (*audioTranscoder, error) {
	decoderCodec := astiav.FindDecoder(stream.CodecParameters().CodecID())
	if decoderCodec == nil {
		return nil, fmt.Errorf("hls: no audio decoder for %v", stream.CodecParameters().CodecID())
	}
	decoder := astiav.AllocCodecContext(decoderCodec)
	if decoder == nil {
		return nil, fmt.Errorf("hls: allocating audio decoder context")
	}
	if err := stream.CodecParameters().ToCodecContext(decoder); err != nil {
		decoder.Free()
		return nil, fmt.Errorf("hls: applying audio codec parameters: %w", err)
	}
	decoder.SetPktTimeBase(stream.TimeBase())
	if err := decoder.Open(decoderCodec, nil); err != nil {
		decoder.Free()
		return nil, fmt.Errorf("hls: opening audio decoder: %w", err)
	}

	encoderCodec := astiav.FindEncoderByName("aac")
	if encoderCodec == nil {
		decoder.Free()
		return nil, fmt.Errorf("hls: aac encoder not available")
	}
	encoder := astiav.AllocCodecContext(encoderCodec)
	if encoder == nil {
		decoder.Free()
		return nil, fmt.Errorf("hls: allocating audio encoder context")
	}

	rateTimeBase := astiav.NewRational(1, decoder.SampleRate())

	encoder.SetSampleRate(decoder.SampleRate())
	encoder.SetChannelLayout(decoder.ChannelLayout())
	encoder.SetSampleFormat(decoder.SampleFormat())
	encoder.SetBitRate(bitRate)
	encoder.SetTimeBase(rateTimeBase)
	if globalHeader {
		encoder.SetFlags(encoder.Flags() | astiav.CodecContextFlagGlobalHeader)
	}
	if err := encoder.Open(encoderCodec, nil); err != nil {
		decoder.Free()
		encoder.Free()
		return nil, fmt.Errorf("hls: opening aac encoder: %w", err)
	}

	stagingFrame := astiav.AllocFrame()
	stagingFrame.SetSampleFormat(encoder.SampleFormat())
	stagingFrame.SetChannelLayout(encoder.ChannelLayout())
	stagingFrame.SetSampleRate(encoder.SampleRate())
	stagingFrame.SetNbSamples(encoder.FrameSize())
	if err := stagingFrame.AllocBuffer(0); err != nil {
		decoder.Free()
		encoder.Free()
		stagingFrame.Free()
		return nil, fmt.Errorf("hls: allocating staging audio frame: %w", err)
	}

	sampleSize := astiav.BytesPerSample(encoder.SampleFormat())
	if !encoder.SampleFormat().IsPlanar() {
		sampleSize *= encoder.ChannelLayout().Channels()
	}

	return &audioTranscoder{
		decoder:          decoder,
		encoder:          encoder,
		inStreamTimeBase: stream.TimeBase(),
		rateTimeBase:     rateTimeBase,
		sampleSize:       sampleSize,
		stagingFrame:     stagingFrame,
		firstFrame:       true,
		scratchFrame:     astiav.AllocFrame(),
		scratchPacket:    astiav.AllocPacket(),
	}, nil
}

func (t *audioTranscoder) receiveInputPacket(srcTimeBase astiav.Rational, packet *astiav.Packet, bounds timeBounds) error {
	packet.RescaleTs(srcTimeBase, t.inStreamTimeBase)
	if err := t.decoder.SendPacket(packet); err != nil {
		return fmt.Errorf("hls: sending audio packet: %w", err)
	}
	return t.decodeFrames(bounds)
}

func (t *audioTranscoder) decodeFrames(bounds timeBounds) error {
	outFrameSize := t.encoder.FrameSize()

	for {
		if err := t.decoder.ReceiveFrame(t.scratchFrame); err != nil {
			if err == astiav.ErrEagain || err == astiav.ErrEof {
				return nil
			}
			return fmt.Errorf("hls: decoding audio frame: %w", err)
		}

		inFrameSize := t.scratchFrame.NbSamples()
		timestamp := astiav.RescaleQ(t.scratchFrame.Pts(), t.inStreamTimeBase, t.rateTimeBase)

		inIndex := 0
		if t.firstFrame {
			alignment := outFrameSize * 4
			correction := (alignment - int(timestamp%int64(alignment))) % alignment
			if correction >= inFrameSize {
				t.scratchFrame.Unref()
				continue
			}
			inIndex = correction
			t.firstFrame = false
		}

		for inIndex < inFrameSize {
			if t.stagingIndex == 0 {
				t.stagingFrame.SetPts(timestamp + int64(inIndex))
			}

			copyLen := outFrameSize - t.stagingIndex
			if remaining := inFrameSize - inIndex; remaining < copyLen {
				copyLen = remaining
			}

			for plane := 0; plane < t.scratchFrame.PlanesCount(); plane++ {
				src, err := t.scratchFrame.Data().Bytes(plane)
				if err != nil {
					return fmt.Errorf("hls: reading audio plane %d: %w", plane, err)
				}
				dst, err := t.stagingFrame.Data().Bytes(plane)
				if err != nil {
					return fmt.Errorf("hls: writing audio plane %d: %w", plane, err)
				}
				copy(
					dst[t.stagingIndex*t.sampleSize:(t.stagingIndex+copyLen)*t.sampleSize],
					src[inIndex*t.sampleSize:(inIndex+copyLen)*t.sampleSize],
				)
			}

			inIndex += copyLen
			t.stagingIndex += copyLen

			if t.stagingIndex >= outFrameSize {
				if err := t.encoder.SendFrame(t.stagingFrame); err != nil {
					return fmt.Errorf("hls: encoding audio frame: %w", err)
				}
				if err := t.processOutputPackets(bounds); err != nil {
					return err
				}
				t.stagingIndex = 0
			}
		}

		t.scratchFrame.Unref()
	}
}

func (t *audioTranscoder) processOutputPackets(bounds timeBounds) error {
	rateBounds := bounds.scale(t.rateTimeBase)

	for {
		if err := t.encoder.ReceivePacket(t.scratchPacket); err != nil {
			if err == astiav.ErrEagain || err == astiav.ErrEof {
				return nil
			}
			return fmt.Errorf("hls: receiving audio packet: %w", err)
		}
		if rateBounds.contains(t.scratchPacket.Pts()) {
			t.outputPackets = append(t.outputPackets, t.scratchPacket.Clone())
		}
		t.scratchPacket.Unref()
	}
}

func (t *audioTranscoder) sendEOF(bounds timeBounds) error {
	if err := t.decoder.SendPacket(nil); err != nil && err != astiav.ErrEof {
		return fmt.Errorf("hls: flushing audio decoder: %w", err)
	}
	if err := t.decodeFrames(bounds); err != nil {
		return err
	}

	if t.stagingIndex > 0 {
		t.stagingFrame.SetNbSamples(t.stagingIndex)
		if err := t.encoder.SendFrame(t.stagingFrame); err != nil {
			return fmt.Errorf("hls: encoding final audio frame: %w", err)
		}
		if err := t.processOutputPackets(bounds); err != nil {
			return err
		}
		t.stagingIndex = 0
	}

	if err := t.encoder.SendFrame(nil); err != nil && err != astiav.ErrEof {
		return fmt.Errorf("hls: flushing audio encoder: %w", err)
	}
	return t.processOutputPackets(bounds)
}

func (t *audioTranscoder) addOutputStream(mux *astiav.FormatContext) error {
	stream := mux.NewStream(nil)
	if stream == nil {
		return fmt.Errorf("hls: allocating audio output stream")
	}
	if err := t.encoder.ToCodecParameters(stream.CodecParameters()); err != nil {
		return fmt.Errorf("hls: copying audio codec parameters: %w", err)
	}
	stream.SetTimeBase(t.rateTimeBase)
	t.outStreamIndex = stream.Index()
	return nil
}

func (t *audioTranscoder) writeOutputPackets(mux *astiav.FormatContext) error {
	dstTimeBase := mux.Streams()[t.outStreamIndex].TimeBase()
	for _, packet := range t.outputPackets {
		packet.SetStreamIndex(t.outStreamIndex)
		packet.RescaleTs(t.rateTimeBase, dstTimeBase)
		if err := mux.WriteInterleavedFrame(packet); err != nil {
			packet.Free()
			return fmt.Errorf("hls: writing audio packet: %w", err)
		}
		packet.Free()
	}
	t.outputPackets = nil
	return nil
}

func (t *audioTranscoder) close() {
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
	if t.stagingFrame != nil {
		t.stagingFrame.Free()
	}
	if t.encoder != nil {
		t.encoder.Free()
	}
	if t.decoder != nil {
		t.decoder.Free()
	}
}
