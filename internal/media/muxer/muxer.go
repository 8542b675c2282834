// Package muxer implements the in-memory muxer (spec.md §4.7): a muxing
// context whose custom I/O callback appends every written byte to an
// internally owned buffer instead of a file.
//
// Grounded on original_source/src/media_manipulation/utils/in_memory_muxer.rs:
// the Rust original boxes/pins a Vec<u8> behind a raw pointer passed as
// the AVIOContext's opaque value because the pointer must survive for the
// muxer's whole lifetime and the buffer itself must never move. Go's
// garbage collector already guarantees a heap-allocated *bytes.Buffer's
// address is stable from the perspective of cgo as long as a live Go
// pointer to it is held for the duration of the call — which the closure
// captured by go-astiav's write callback provides — so no manual pinning
// is required; the discipline that IS carried over is Close() ordering:
// the IO context must be freed before the buffer can be discarded.
package muxer

import (
	"bytes"
	"fmt"

	"github.com/asticode/go-astiav"
)

// InMemoryMuxer wraps an astiav output format context whose packets are
// written into an in-memory buffer rather than a file.
type InMemoryMuxer struct {
	format *astiav.FormatContext
	io     *astiav.IOContext
	buf    bytes.Buffer
	closed bool
}

const ioBufferSize = 4096

// New allocates a muxing context for the named container (e.g. "mpegts",
// "webvtt") with custom I/O installed and AVFMT_FLAG_CUSTOM_IO set.
func New(formatName string) (*InMemoryMuxer, error) {
	m := &InMemoryMuxer{}

	formatCtx, err := astiav.AllocOutputFormatContext(nil, formatName, "")
	if err != nil || formatCtx == nil {
		return nil, fmt.Errorf("muxer: allocating output context for %q: %w", formatName, err)
	}
	m.format = formatCtx

	ioCtx, err := astiav.AllocIOContext(ioBufferSize, true, nil, func(b []byte) (int, error) {
		m.buf.Write(b)
		return len(b), nil
	}, nil)
	if err != nil {
		formatCtx.Free()
		return nil, fmt.Errorf("muxer: allocating custom IO context: %w", err)
	}
	m.io = ioCtx

	formatCtx.SetPb(ioCtx)
	formatCtx.SetFlags(formatCtx.Flags() | astiav.FormatContextFlagCustomIo)

	return m, nil
}

// FormatContext returns the underlying output context for stream/header
// construction by a pipeline.
func (m *InMemoryMuxer) FormatContext() *astiav.FormatContext {
	return m.format
}

// IntoOutputBuffer consumes the muxer and returns its accumulated bytes.
// The muxer must not be used again afterward.
func (m *InMemoryMuxer) IntoOutputBuffer() []byte {
	out := make([]byte, m.buf.Len())
	copy(out, m.buf.Bytes())
	return out
}

// Close releases the custom I/O context and the output format context.
// Safe to call more than once.
func (m *InMemoryMuxer) Close() {
	if m.closed {
		return
	}
	m.closed = true
	if m.io != nil {
		m.io.Free()
		m.io = nil
	}
	if m.format != nil {
		m.format.Free()
		m.format = nil
	}
}
