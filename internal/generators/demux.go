// Package generators wires the media pipelines (internal/media/hls,
// thumbnail, spritesheet, subtitle) into cache.Generator instances: each
// adapter opens a real astiav demuxer against a source file and exposes
// exactly the narrow interface its pipeline package declared.
//
// Grounded on other_examples/e50eb23c_e1z0-QAnotherRTSP__src-video.go.go
// for the open/probe/stream-selection sequence (AllocFormatContext,
// OpenInput, FindStreamInfo, Streams(), CodecParameters(), MediaType()).
package generators

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"mediacache/internal/media/metacache"
)

// openedInput is a demuxer opened against one source path, with its
// video, audio and subtitle streams already resolved: video and audio are
// the first stream of that type in container order (no best-stream
// ranking is applied), subs holds every subtitle stream.
type openedInput struct {
	format *astiav.FormatContext
	video  *astiav.Stream // nil if absent
	audio  *astiav.Stream // nil if absent
	subs   []*astiav.Stream
}

func openInput(path string) (*openedInput, error) {
	format := astiav.AllocFormatContext()
	if format == nil {
		return nil, fmt.Errorf("generators: allocating format context")
	}
	if err := format.OpenInput(path, nil, nil); err != nil {
		format.Free()
		return nil, fmt.Errorf("generators: opening %q: %w", path, err)
	}
	if err := format.FindStreamInfo(nil); err != nil {
		format.CloseInput()
		return nil, fmt.Errorf("generators: probing %q: %w", path, err)
	}

	in := &openedInput{format: format}
	for _, stream := range format.Streams() {
		switch stream.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if in.video == nil {
				in.video = stream
			}
		case astiav.MediaTypeAudio:
			if in.audio == nil {
				in.audio = stream
			}
		case astiav.MediaTypeSubtitle:
			in.subs = append(in.subs, stream)
		}
	}
	return in, nil
}

func (in *openedInput) close() {
	if in.format != nil {
		in.format.CloseInput()
		in.format.Free()
		in.format = nil
	}
}

// avTimeBaseMicros is AV_TIME_BASE: FormatContext.Duration() is always
// expressed in units of 1/AV_TIME_BASE seconds regardless of container.
const avTimeBaseMicros = 1000000

// durationSeconds returns the container duration in whole seconds.
func (in *openedInput) durationSeconds() int {
	return int(in.format.Duration() / avTimeBaseMicros)
}

func (in *openedInput) durationMicros() int64 {
	return in.format.Duration()
}

// metadataProbe adapts an openedInput to metacache.DemuxerProbe.
type metadataProbe struct {
	in *openedInput
}

// openMetadataDemuxer is a metacache.OpenDemuxer backed by a real astiav
// demuxer, supplied to metacache.NewBasicFetcher/NewAdvancedFetcher by
// the generators wiring in cmd/server.
func openMetadataDemuxer(path string) (metacache.DemuxerProbe, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	return &metadataProbe{in: in}, nil
}

func (p *metadataProbe) DurationMillis() int64 {
	return p.in.durationMicros() / 1000
}

func (p *metadataProbe) ContainerTag(key string) (string, bool) {
	entry := p.in.format.Metadata().Get(key, nil, 0)
	if entry == nil {
		return "", false
	}
	return entry.Value(), true
}

func (p *metadataProbe) BestVideoStream() (width, height int, frameRate astiav.Rational, ok bool) {
	if p.in.video == nil {
		return 0, 0, astiav.Rational{}, false
	}
	params := p.in.video.CodecParameters()
	return params.Width(), params.Height(), p.in.video.AvgFrameRate(), true
}

func (p *metadataProbe) SubtitleStreams() []metacache.SubtitleStream {
	out := make([]metacache.SubtitleStream, 0, len(p.in.subs))
	for _, s := range p.in.subs {
		out = append(out, metacache.SubtitleStream{
			Index:    s.Index(),
			Language: streamTag(s, "language"),
			Name:     streamTag(s, "title"),
		})
	}
	return out
}

func streamTag(s *astiav.Stream, key string) string {
	entry := s.Metadata().Get(key, nil, 0)
	if entry == nil {
		return ""
	}
	return entry.Value()
}

func (p *metadataProbe) Close() {
	p.in.close()
}

// NewBasicMetadataFetcher returns a metacache.Fetcher for
// metacache.BasicMediaMetadata backed by a real astiav demuxer.
func NewBasicMetadataFetcher() metacache.Fetcher[metacache.BasicMediaMetadata] {
	return metacache.NewBasicFetcher(openMetadataDemuxer)
}

// NewAdvancedMetadataFetcher returns a metacache.Fetcher for
// metacache.AdvancedMediaMetadata backed by a real astiav demuxer.
func NewAdvancedMetadataFetcher() metacache.Fetcher[metacache.AdvancedMediaMetadata] {
	return metacache.NewAdvancedFetcher(openMetadataDemuxer)
}
