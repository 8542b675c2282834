// Package scale implements the frame scaler (spec.md §4.8): a stateful
// helper converting an input frame to RGB24 at a target size, caching the
// scale context and transferring hardware frames to system memory first.
//
// Grounded on original_source/src/media_manipulation/frame_scaler.rs
// (cache key = src format/w/h + dst w/h; hw frame readback via
// av_hwframe_transfer_data) and on the bgraScaler type in
// other_examples/e50eb23c_..._video.go.go, which is the pack's only
// example of driving astiav.SoftwareScaleContext from Go.
package scale

import (
	"fmt"
	"image"

	"github.com/asticode/go-astiav"
)

// Scaler converts decoded frames (possibly hardware frames) to RGB24 at a
// chosen output size, reusing its internal scale context and frames
// across calls as long as the relevant dimensions are unchanged.
type Scaler struct {
	ctx *astiav.SoftwareScaleContext

	softwareFrame *astiav.Frame // holds HW->SW transferred frames
	outputFrame   *astiav.Frame

	srcW, srcH int
	srcFormat  astiav.PixelFormat
	dstW, dstH int
}

// New creates an empty Scaler with its two reusable frames. The scale
// context and the output frame's buffer are allocated lazily on first use.
func New() *Scaler {
	return &Scaler{
		softwareFrame: astiav.AllocFrame(),
		outputFrame:   astiav.AllocFrame(),
	}
}

// ScaleToRGB converts in to RGB24 at (outWidth, outHeight), returning the
// internally owned output frame. The returned frame is only valid until
// the next call to ScaleToRGB or Close.
func (s *Scaler) ScaleToRGB(in *astiav.Frame, outWidth, outHeight int) (*astiav.Frame, error) {
	frame := in
	if in.HardwareFramesContext() != nil {
		if err := in.TransferHardwareData(s.softwareFrame); err != nil {
			return nil, fmt.Errorf("scale: transferring hardware frame: %w", err)
		}
		frame = s.softwareFrame
	}

	srcFormat := frame.PixelFormat()
	srcW, srcH := frame.Width(), frame.Height()

	if s.ctx == nil || srcFormat != s.srcFormat || srcW != s.srcW || srcH != s.srcH ||
		outWidth != s.dstW || outHeight != s.dstH {
		if s.ctx != nil {
			s.ctx.Free()
			s.ctx = nil
		}
		ctx, err := astiav.CreateSoftwareScaleContext(
			srcW, srcH, srcFormat,
			outWidth, outHeight, astiav.PixelFormatRgb24,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBicubic),
		)
		if err != nil {
			return nil, fmt.Errorf("scale: creating scale context: %w", err)
		}
		s.ctx = ctx
		s.srcFormat, s.srcW, s.srcH = srcFormat, srcW, srcH
		s.dstW, s.dstH = outWidth, outHeight
	}

	if s.outputFrame.Width() != outWidth || s.outputFrame.Height() != outHeight {
		s.outputFrame.Unref()
		s.outputFrame.SetWidth(outWidth)
		s.outputFrame.SetHeight(outHeight)
		s.outputFrame.SetPixelFormat(astiav.PixelFormatRgb24)
		if err := s.outputFrame.AllocBuffer(1); err != nil {
			return nil, fmt.Errorf("scale: allocating output frame buffer: %w", err)
		}
	}

	if err := s.ctx.ScaleFrame(frame, s.outputFrame); err != nil {
		return nil, fmt.Errorf("scale: converting frame: %w", err)
	}

	return s.outputFrame, nil
}

// Close releases the scaler's internal frames and scale context.
func (s *Scaler) Close() {
	if s.ctx != nil {
		s.ctx.Free()
		s.ctx = nil
	}
	if s.softwareFrame != nil {
		s.softwareFrame.Free()
		s.softwareFrame = nil
	}
	if s.outputFrame != nil {
		s.outputFrame.Free()
		s.outputFrame = nil
	}
}

// FrameToRGBA packs an RGB24 astiav frame's pixel data into a Go
// image.RGBA, respecting the frame's native stride. Used by callers that
// hand frames off to image/jpeg or golang.org/x/image/draw.
func FrameToRGBA(frame *astiav.Frame, w, h int) (*image.RGBA, error) {
	rgb := image.NewRGBA(image.Rect(0, 0, w, h))
	data, err := frame.Data().Bytes(0)
	if err != nil {
		return nil, fmt.Errorf("scale: reading frame plane: %w", err)
	}
	stride := frame.Linesize()[0]
	for y := 0; y < h; y++ {
		srcRow := data[y*stride : y*stride+w*3]
		dstRow := rgb.Pix[y*rgb.Stride : y*rgb.Stride+w*4]
		for x := 0; x < w; x++ {
			dstRow[x*4+0] = srcRow[x*3+0]
			dstRow[x*4+1] = srcRow[x*3+1]
			dstRow[x*4+2] = srcRow[x*3+2]
			dstRow[x*4+3] = 0xff
		}
	}
	return rgb, nil
}

// TargetSize computes (width, height) preserving aspect ratio when the
// output is bounded to maxHeight, per spec.md §4.10/§4.11's "scaled to
// height min(src_h, target) preserving aspect ratio."
func TargetSize(srcW, srcH, maxHeight int) (int, int) {
	outH := srcH
	if maxHeight < outH {
		outH = maxHeight
	}
	outW := srcW * outH / srcH
	return outW, outH
}
