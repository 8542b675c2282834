// Package subtitle implements the WebVTT subtitle transcoder mentioned
// in spec.md §4.13 ("a subtitle transcoder" alongside C9-C11 as a
// cache.Generator instance).
//
// Grounded on original_source/src/media_manipulation/transcoding/subtitle.rs:
// decode each subtitle packet on the target stream, re-encode to WebVTT,
// rescale its PTS/duration to milliseconds, write interleaved.
package subtitle

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"mediacache/internal/media/muxer"
)

// ErrNotSubtitleStream is returned when the requested stream index isn't
// a subtitle stream.
var ErrNotSubtitleStream = errors.New("subtitle: stream is not a subtitle stream")

// Demuxer is the minimal source surface Transcode needs: an opened
// demuxer plus the one subtitle stream to convert. An internal/generators
// adapter opens the real astiav demuxer; Transcode reads its packets
// itself and skips those of every other stream.
type Demuxer struct {
	FormatContext *astiav.FormatContext
	Stream        *astiav.Stream
}

// Transcode converts every subtitle cue on dem.Stream into a WebVTT
// byte stream.
func Transcode(dem Demuxer) ([]byte, error) {
	if dem.Stream.CodecParameters().MediaType() != astiav.MediaTypeSubtitle {
		return nil, ErrNotSubtitleStream
	}

	decoderCodec := astiav.FindDecoder(dem.Stream.CodecParameters().CodecID())
	if decoderCodec == nil {
		return nil, fmt.Errorf("subtitle: no decoder for %v", dem.Stream.CodecParameters().CodecID())
	}
	decoder := astiav.AllocCodecContext(decoderCodec)
	if decoder == nil {
		return nil, fmt.Errorf("subtitle: allocating decoder context")
	}
	defer decoder.Free()
	if err := dem.Stream.CodecParameters().ToCodecContext(decoder); err != nil {
		return nil, fmt.Errorf("subtitle: applying codec parameters: %w", err)
	}
	decoder.SetPktTimeBase(dem.Stream.TimeBase())
	if err := decoder.Open(decoderCodec, nil); err != nil {
		return nil, fmt.Errorf("subtitle: opening decoder: %w", err)
	}

	encoderCodec := astiav.FindEncoder(astiav.CodecIDWebvtt)
	if encoderCodec == nil {
		return nil, fmt.Errorf("subtitle: webvtt encoder not available")
	}
	encoder := astiav.AllocCodecContext(encoderCodec)
	if encoder == nil {
		return nil, fmt.Errorf("subtitle: allocating encoder context")
	}
	defer encoder.Free()
	millisTimeBase := astiav.NewRational(1, 1000)
	encoder.SetTimeBase(astiav.NewRational(1, 1000000))
	if err := encoder.Open(encoderCodec, nil); err != nil {
		return nil, fmt.Errorf("subtitle: opening encoder: %w", err)
	}

	mux, err := muxer.New("webvtt")
	if err != nil {
		return nil, fmt.Errorf("subtitle: opening output muxer: %w", err)
	}
	defer mux.Close()

	outStream := mux.FormatContext().NewStream(nil)
	if outStream == nil {
		return nil, fmt.Errorf("subtitle: allocating output stream")
	}
	if err := encoder.ToCodecParameters(outStream.CodecParameters()); err != nil {
		return nil, fmt.Errorf("subtitle: copying codec parameters: %w", err)
	}
	outStream.SetTimeBase(millisTimeBase)
	outIndex := outStream.Index()

	if err := mux.FormatContext().WriteHeader(nil); err != nil {
		return nil, fmt.Errorf("subtitle: writing header: %w", err)
	}

	packet := astiav.AllocPacket()
	defer packet.Free()
	outPacket := astiav.AllocPacket()
	defer outPacket.Free()

	for {
		if err := dem.FormatContext.ReadFrame(packet); err != nil {
			if err == astiav.ErrEof {
				break
			}
			return nil, fmt.Errorf("subtitle: reading packet: %w", err)
		}
		if packet.StreamIndex() != dem.Stream.Index() {
			packet.Unref()
			continue
		}

		subPTS := astiav.RescaleQ(packet.Pts(), dem.Stream.TimeBase(), millisTimeBase)
		duration := astiav.RescaleQ(packet.Duration(), dem.Stream.TimeBase(), millisTimeBase)
		if subPTS < 0 {
			packet.Unref()
			return nil, fmt.Errorf("subtitle: negative start offset %dms on stream %d", subPTS, dem.Stream.Index())
		}

		cue, encoded, err := decoder.DecodeSubtitle(packet)
		packet.Unref()
		if err != nil {
			return nil, fmt.Errorf("subtitle: decoding packet: %w", err)
		}
		if !decoded(cue, encoded) {
			continue
		}

		payload, err := encoder.EncodeSubtitle(cue)
		if err != nil {
			return nil, fmt.Errorf("subtitle: encoding cue: %w", err)
		}

		outPacket.Unref()
		if err := outPacket.FromData(payload); err != nil {
			return nil, fmt.Errorf("subtitle: building output packet: %w", err)
		}
		outPacket.SetStreamIndex(outIndex)
		outPacket.SetPts(subPTS)
		outPacket.SetDts(subPTS)
		outPacket.SetDuration(duration)

		if err := mux.FormatContext().WriteInterleavedFrame(outPacket); err != nil {
			return nil, fmt.Errorf("subtitle: writing cue: %w", err)
		}
	}

	if err := mux.FormatContext().WriteTrailer(); err != nil {
		return nil, fmt.Errorf("subtitle: writing trailer: %w", err)
	}

	return mux.IntoOutputBuffer(), nil
}

// decoded reports whether DecodeSubtitle actually produced a cue for
// this packet (some packets, e.g. mid-stream header refreshes, don't).
func decoded(cue *astiav.Subtitle, ok bool) bool {
	return ok && cue != nil
}
