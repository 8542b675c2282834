package generators

import (
	"context"
	"fmt"

	"mediacache/internal/cache"
	"mediacache/internal/media/subtitle"
)

// SubtitleInput identifies one embedded subtitle track to transcode to
// WebVTT.
type SubtitleInput struct {
	Path        string
	StreamIndex int
}

// SubtitleGenerator adapts internal/media/subtitle into a cache.Generator.
type SubtitleGenerator struct{}

func NewSubtitleGenerator() *SubtitleGenerator {
	return &SubtitleGenerator{}
}

func (g *SubtitleGenerator) CacheKey(input SubtitleInput) string {
	return subtitleCacheKey(input.Path, input.StreamIndex)
}

func (g *SubtitleGenerator) ValidityKey(_ context.Context, input SubtitleInput) (cache.FileValidityKey, error) {
	return cache.FileValidityKeyFromPath(input.Path)
}

func (g *SubtitleGenerator) Generate(_ context.Context, input SubtitleInput) ([]byte, struct{}, error) {
	var zero struct{}

	in, err := openInput(input.Path)
	if err != nil {
		return nil, zero, err
	}
	defer in.close()

	var target *subtitle.Demuxer
	for _, s := range in.subs {
		if s.Index() == input.StreamIndex {
			target = &subtitle.Demuxer{FormatContext: in.format, Stream: s}
			break
		}
	}
	if target == nil {
		return nil, zero, fmt.Errorf("generators: %q has no subtitle stream %d", input.Path, input.StreamIndex)
	}

	bytes, err := subtitle.Transcode(*target)
	if err != nil {
		return nil, zero, err
	}
	return bytes, zero, nil
}
