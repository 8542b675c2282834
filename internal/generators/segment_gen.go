package generators

import (
	"context"
	"fmt"

	"mediacache/internal/cache"
	"mediacache/internal/media/backend"
	"mediacache/internal/media/hls"
	"mediacache/internal/media/hwdevice"
)

// SegmentInput identifies one HLS segment request (C9): a source file, a
// quality-ladder rung, and a segment index.
type SegmentInput struct {
	Path         string
	RungID       string
	SegmentIndex int
}

// SegmentGenerator adapts internal/media/hls into a cache.Generator. One
// instance is shared by every rung and segment of every source file; a
// fresh demuxer and backend are opened per generation since segments for
// the same file commonly generate concurrently on different cache keys.
type SegmentGenerator struct {
	backendKind backend.Kind
	devicePool  *hwdevice.Pool
}

func NewSegmentGenerator(kind backend.Kind, devicePool *hwdevice.Pool) *SegmentGenerator {
	return &SegmentGenerator{backendKind: kind, devicePool: devicePool}
}

func (g *SegmentGenerator) CacheKey(input SegmentInput) string {
	return segmentCacheKey(input.Path, input.RungID, input.SegmentIndex)
}

func (g *SegmentGenerator) ValidityKey(_ context.Context, input SegmentInput) (cache.FileValidityKey, error) {
	return cache.FileValidityKeyFromPath(input.Path)
}

func (g *SegmentGenerator) Generate(_ context.Context, input SegmentInput) ([]byte, struct{}, error) {
	var zero struct{}

	rung, ok := hls.RungByID(input.RungID)
	if !ok {
		return nil, zero, fmt.Errorf("generators: unknown rung %q", input.RungID)
	}

	in, err := openInput(input.Path)
	if err != nil {
		return nil, zero, err
	}
	defer in.close()

	if in.video == nil && in.audio == nil {
		return nil, zero, hls.ErrNoMedia
	}

	be, err := backend.New(g.backendKind, g.devicePool)
	if err != nil {
		return nil, zero, fmt.Errorf("generators: creating backend: %w", err)
	}
	defer be.Close()

	dem := hls.Demuxer{
		FormatContext: in.format,
		VideoStream:   in.video,
		AudioStream:   in.audio,
	}

	bytes, err := hls.TranscodeSegment(dem, be, rung, input.SegmentIndex)
	if err != nil {
		return nil, zero, err
	}
	return bytes, zero, nil
}
