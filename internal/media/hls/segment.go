package hls

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"mediacache/internal/media/backend"
	"mediacache/internal/media/muxer"
)

// ErrNoMedia is returned when a source has neither an audio nor a video
// stream to transcode.
var ErrNoMedia = errors.New("hls: source has neither audio nor video")

// Demuxer is the minimal source surface TranscodeSegment needs. An
// internal/generators adapter opens the real astiav demuxer and resolves
// its streams; TranscodeSegment seeks it and runs the packet-reading loop
// itself, dispatching packets to the video or audio transcoder.
type Demuxer struct {
	FormatContext *astiav.FormatContext
	VideoStream   *astiav.Stream // nil if the source has no video
	AudioStream   *astiav.Stream // nil if the source has no audio
}

// TranscodeSegment transcodes the time window
// [segmentIndex*D, (segmentIndex+1)*D) of dem into an MPEG-TS segment at
// rung, returning the muxed bytes.
func TranscodeSegment(dem Demuxer, be backend.Backend, rung Rung, segmentIndex int) ([]byte, error) {
	if dem.VideoStream == nil && dem.AudioStream == nil {
		return nil, ErrNoMedia
	}

	mux, err := muxer.New("mpegts")
	if err != nil {
		return nil, fmt.Errorf("hls: opening output muxer: %w", err)
	}
	defer mux.Close()

	globalHeader := mux.FormatContext().Flags()&astiav.FormatContextFlagGlobalHeader != 0

	var video *videoTranscoder
	var audio *audioTranscoder

	if dem.VideoStream != nil {
		video, err = newVideoTranscoder(be, dem.VideoStream, astiav.CodecIDH264, rung.VideoBitRate, rung.TargetHeight, globalHeader)
		if err != nil {
			return nil, fmt.Errorf("hls: creating video transcoder: %w", err)
		}
		defer video.close()
	}
	if dem.AudioStream != nil {
		audio, err = newAudioTranscoder(dem.AudioStream, rung.AudioBitRate, globalHeader)
		if err != nil {
			return nil, fmt.Errorf("hls: creating audio transcoder: %w", err)
		}
		defer audio.close()
	}

	bounds := timeBounds{
		start: int64(segmentIndex) * SegmentDuration,
		end:   int64(segmentIndex+1) * SegmentDuration,
	}

	seekStart := bounds.start
	if seekStart > 0 {
		seekPos := astiav.RescaleQ(seekStart-paddingDelta, astiav.NewRational(1, 1), astiav.NewRational(1, 1000000))
		if err := dem.FormatContext.SeekFrame(-1, seekPos, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
			return nil, fmt.Errorf("hls: seeking to segment start: %w", err)
		}
	} else {
		seekStart = -10000
	}

	endTime := bounds.end + paddingDelta

	videoIndex := -1
	if dem.VideoStream != nil {
		videoIndex = dem.VideoStream.Index()
	}
	audioIndex := -1
	if dem.AudioStream != nil {
		audioIndex = dem.AudioStream.Index()
	}

	packet := astiav.AllocPacket()
	defer packet.Free()

	for {
		if err := dem.FormatContext.ReadFrame(packet); err != nil {
			if err == astiav.ErrEof {
				break
			}
			return nil, fmt.Errorf("hls: reading packet: %w", err)
		}

		streamIdx := packet.StreamIndex()
		if streamIdx != videoIndex && streamIdx != audioIndex {
			packet.Unref()
			continue
		}

		stream := dem.FormatContext.Streams()[streamIdx]
		endRescaled := astiav.RescaleQ(endTime, astiav.NewRational(1, 1), stream.TimeBase())
		if packet.Pts() > endRescaled {
			packet.Unref()
			break
		}

		var procErr error
		switch streamIdx {
		case videoIndex:
			procErr = video.receiveInputPacket(stream.TimeBase(), packet, bounds)
		case audioIndex:
			procErr = audio.receiveInputPacket(stream.TimeBase(), packet, bounds)
		}
		packet.Unref()
		if procErr != nil {
			return nil, fmt.Errorf("hls: processing packet on stream %d: %w", streamIdx, procErr)
		}
	}

	if video != nil {
		if err := video.sendEOF(bounds); err != nil {
			return nil, fmt.Errorf("hls: flushing video: %w", err)
		}
		if err := video.addOutputStream(mux.FormatContext()); err != nil {
			return nil, err
		}
	}
	if audio != nil {
		if err := audio.sendEOF(bounds); err != nil {
			return nil, fmt.Errorf("hls: flushing audio: %w", err)
		}
		if err := audio.addOutputStream(mux.FormatContext()); err != nil {
			return nil, err
		}
	}

	setMPEGTSInitialDiscontinuity(mux.FormatContext())
	mux.FormatContext().SetMetadata(dem.FormatContext.Metadata())

	if err := mux.FormatContext().WriteHeader(nil); err != nil {
		return nil, fmt.Errorf("hls: writing header: %w", err)
	}

	if video != nil {
		if err := video.writeOutputPackets(mux.FormatContext()); err != nil {
			return nil, err
		}
	}
	if audio != nil {
		if err := audio.writeOutputPackets(mux.FormatContext()); err != nil {
			return nil, err
		}
	}

	if err := mux.FormatContext().WriteTrailer(); err != nil {
		return nil, fmt.Errorf("hls: writing trailer: %w", err)
	}

	return mux.IntoOutputBuffer(), nil
}

// setMPEGTSInitialDiscontinuity sets the "mpegts_flags=+initial_discontinuity"
// private option so the first segment of every ladder level starts a
// fresh discontinuity sequence for HLS players, matching
// original_source/src/media_manipulation/transcoding/mod.rs's raw
// av_opt_set call.
func setMPEGTSInitialDiscontinuity(format *astiav.FormatContext) {
	_ = format.SetPrivateDataOption("mpegts_flags", "+initial_discontinuity")
}
