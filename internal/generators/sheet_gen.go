package generators

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"

	"mediacache/internal/cache"
	"mediacache/internal/media/spritesheet"
)

// SheetInput identifies a timeline sprite-sheet request (C11).
type SheetInput struct {
	Path string
}

// SheetGenerator adapts internal/media/spritesheet into a cache.Generator.
type SheetGenerator struct{}

func NewSheetGenerator() *SheetGenerator {
	return &SheetGenerator{}
}

func (g *SheetGenerator) CacheKey(input SheetInput) string {
	return sheetCacheKey(input.Path)
}

func (g *SheetGenerator) ValidityKey(_ context.Context, input SheetInput) (cache.FileValidityKey, error) {
	return cache.FileValidityKeyFromPath(input.Path)
}

func (g *SheetGenerator) Generate(_ context.Context, input SheetInput) ([]byte, spritesheet.Params, error) {
	var zero spritesheet.Params

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

	bytes, params, err := spritesheet.Generate(sheetDecoderAdapter{dec})
	if err != nil {
		return nil, zero, err
	}
	return bytes, params, nil
}

// sheetDecoderAdapter reshapes keyframeDecoder's microsecond-granularity
// seek into spritesheet.Decoder's whole-seconds offsets.
type sheetDecoderAdapter struct {
	*keyframeDecoder
}

func (a sheetDecoderAdapter) SeekAndDecodeKeyframe(timeSeconds int) (*astiav.Frame, error) {
	return a.keyframeDecoder.SeekAndDecodeKeyframe(int64(timeSeconds) * 1000000)
}
