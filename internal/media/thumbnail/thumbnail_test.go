package thumbnail

import (
	"testing"

	"github.com/asticode/go-astiav"
)

type fakeDecoder struct {
	duration int64
	seeks    []int64
	frame    func(timeMicros int64) *astiav.Frame
}

func (f *fakeDecoder) SeekAndDecodeKeyframe(timeMicros int64) (*astiav.Frame, error) {
	f.seeks = append(f.seeks, timeMicros)
	return f.frame(timeMicros), nil
}

func (f *fakeDecoder) DurationMicros() int64 {
	return f.duration
}

func TestExtractSamplesWithinExpectedRange(t *testing.T) {
	dec := &fakeDecoder{
		duration: 100_000_000, // 100s in microseconds
		frame: func(int64) *astiav.Frame {
			return nil // forces ErrNoCandidates, but we only assert on seek positions
		},
	}

	if _, err := Extract(dec); err == nil {
		t.Fatal("expected ErrNoCandidates when decoder never returns a frame")
	}

	if len(dec.seeks) != sampleCount {
		t.Fatalf("expected %d seek attempts, got %d", sampleCount, len(dec.seeks))
	}

	lo := dec.duration / 10
	hi := dec.duration / 10 * 9
	for _, s := range dec.seeks {
		if s < lo || s >= hi {
			t.Fatalf("seek position %d outside expected range [%d, %d)", s, lo, hi)
		}
	}
}

func TestExtractDeterministicSeeds(t *testing.T) {
	mk := func() *fakeDecoder {
		return &fakeDecoder{duration: 30_000_000, frame: func(int64) *astiav.Frame { return nil }}
	}

	a, b := mk(), mk()
	_, _ = Extract(a)
	_, _ = Extract(b)

	if len(a.seeks) != len(b.seeks) {
		t.Fatalf("seek count mismatch: %d vs %d", len(a.seeks), len(b.seeks))
	}
	for i := range a.seeks {
		if a.seeks[i] != b.seeks[i] {
			t.Fatalf("seek %d differs across runs: %d vs %d (PRNG seed must be deterministic given duration)", i, a.seeks[i], b.seeks[i])
		}
	}
}
