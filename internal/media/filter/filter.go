// Package filter wraps a minimal buffersrc→...→buffersink libavfilter
// graph, the shape every HLS video sub-transcoder needs to hand decoded
// frames through a backend's filter chain before encoding.
//
// Grounded on original_source/src/media_manipulation/transcoding/video.rs,
// which builds the identical buffer/buffersink graph by hand through
// ffmpeg-next's raw pointer escape hatches. go-astiav exposes the same
// libavfilter graph construction (FilterGraph, FilterInOut, Filter) as
// typed bindings, so no unsafe pointer work is required here.
package filter

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

// Chain is a one-input, one-output filter graph: frames pushed into
// Push emerge (zero or more at a time) from Pull.
type Chain struct {
	graph   *astiav.FilterGraph
	src     *astiav.FilterContext
	sink    *astiav.FilterContext
	scratch *astiav.Frame
}

// New builds a filter graph whose buffer source is configured with
// srcArgs (an "in_params" string of the form
// "width=...:height=...:pix_fmt=...:time_base=.../...:sar=1") and whose
// spec (e.g. "scale=w=1280:h=720") runs between source and sink. sinkPixelFormat
// pins the buffersink's accepted pixel format, matching the target
// backend's expected encoder input format.
//
// hwFramesContext, when non-nil, is attached to the buffer source before
// the graph is configured — mirroring av_buffersrc_parameters_set's
// hw_frames_ctx assignment in original_source/src/media_manipulation/transcoding/video.rs:140-151.
// Hardware-backed decoders (video_toolbox, intel_quick_sync) produce
// frames that only carry valid data relative to this context; a
// hardware filter step (e.g. quicksync's scale_vaapi/hwmap chain) has
// no device to derive from without it.
func New(srcArgs, spec string, sinkPixelFormat astiav.PixelFormat, hwFramesContext *astiav.HardwareFramesContext) (*Chain, error) {
	graph := astiav.AllocFilterGraph()
	if graph == nil {
		return nil, fmt.Errorf("filter: allocating filter graph failed")
	}

	bufferFilter := astiav.FindFilterByName("buffer")
	bufferSinkFilter := astiav.FindFilterByName("buffersink")
	if bufferFilter == nil || bufferSinkFilter == nil {
		graph.Free()
		return nil, fmt.Errorf("filter: buffer/buffersink filters unavailable")
	}

	src, err := graph.NewFilterContext(bufferFilter, "in", srcArgs)
	if err != nil {
		graph.Free()
		return nil, fmt.Errorf("filter: creating buffer source: %w", err)
	}
	if hwFramesContext != nil {
		if err := src.SetHardwareFramesContext(hwFramesContext); err != nil {
			graph.Free()
			return nil, fmt.Errorf("filter: attaching hardware frames context: %w", err)
		}
	}

	sink, err := graph.NewFilterContext(bufferSinkFilter, "out", "")
	if err != nil {
		graph.Free()
		return nil, fmt.Errorf("filter: creating buffer sink: %w", err)
	}
	if err := sink.BuffersinkSetPixelFormats([]astiav.PixelFormat{sinkPixelFormat}); err != nil {
		graph.Free()
		return nil, fmt.Errorf("filter: pinning sink pixel format: %w", err)
	}

	inputs := astiav.AllocFilterInOut()
	defer inputs.Free()
	inputs.SetName("out")
	inputs.SetFilterContext(sink)
	inputs.SetPadIdx(0)

	outputs := astiav.AllocFilterInOut()
	defer outputs.Free()
	outputs.SetName("in")
	outputs.SetFilterContext(src)
	outputs.SetPadIdx(0)

	if err := graph.Parse(spec, inputs, outputs); err != nil {
		graph.Free()
		return nil, fmt.Errorf("filter: parsing chain %q: %w", spec, err)
	}
	if err := graph.Configure(); err != nil {
		graph.Free()
		return nil, fmt.Errorf("filter: configuring graph: %w", err)
	}

	return &Chain{graph: graph, src: src, sink: sink, scratch: astiav.AllocFrame()}, nil
}

// Push submits a decoded frame into the graph's source.
func (c *Chain) Push(frame *astiav.Frame) error {
	if err := c.src.BuffersrcAddFrame(frame, astiav.NewBuffersrcFlags()); err != nil {
		return fmt.Errorf("filter: pushing frame: %w", err)
	}
	return nil
}

// PushEOF signals end-of-stream to the source, causing Pull to drain any
// frames the graph buffered internally.
func (c *Chain) PushEOF() error {
	if err := c.src.BuffersrcAddFrame(nil, astiav.NewBuffersrcFlags()); err != nil {
		return fmt.Errorf("filter: pushing eof: %w", err)
	}
	return nil
}

// Pull returns the next available filtered frame, or (nil, nil) once the
// graph has no more frames buffered for now.
func (c *Chain) Pull() (*astiav.Frame, error) {
	c.scratch.Unref()
	if err := c.sink.BuffersinkGetFrame(c.scratch, astiav.NewBuffersinkFlags()); err != nil {
		if err == astiav.ErrEagain || err == astiav.ErrEof {
			return nil, nil
		}
		return nil, fmt.Errorf("filter: pulling frame: %w", err)
	}
	return c.scratch, nil
}

// Close releases the graph and its scratch frame.
func (c *Chain) Close() {
	if c.scratch != nil {
		c.scratch.Free()
		c.scratch = nil
	}
	if c.graph != nil {
		c.graph.Free()
		c.graph = nil
	}
}
