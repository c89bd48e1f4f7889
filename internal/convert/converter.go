package convert

import (
	"errors"
	"fmt"
	"image"

	"github.com/asticode/go-astiav"
)

// ErrNoFrame is returned when Convert is called without a source picture.
var ErrNoFrame = errors.New("convert: no source frame")

// Converter scales decoded frames to packed BGR24 at their native size.
//
// The software scale context is cached and rebuilt only when the source
// width, height or pixel format changes. A Converter is not safe for
// concurrent use.
type Converter struct {
	ssc *astiav.SoftwareScaleContext
	dst *astiav.Frame

	srcW, srcH int
	srcPix     astiav.PixelFormat
}

// NewConverter returns an empty converter. Resources are allocated on the
// first Convert call.
func NewConverter() *Converter {
	return &Converter{}
}

// Close frees the scale context and the destination frame. Safe to call
// more than once.
func (c *Converter) Close() {
	if c.dst != nil {
		c.dst.Free()
		c.dst = nil
	}
	if c.ssc != nil {
		c.ssc.Free()
		c.ssc = nil
	}
	c.srcW, c.srcH = 0, 0
}

func (c *Converter) ensure(src *astiav.Frame) error {
	sw, sh := src.Width(), src.Height()
	sp := src.PixelFormat()

	if c.ssc != nil && sw == c.srcW && sh == c.srcH && sp == c.srcPix {
		return nil
	}

	c.Close()

	if sw <= 0 || sh <= 0 {
		return fmt.Errorf("convert: invalid source size %dx%d", sw, sh)
	}

	flags := astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBicubic)
	ssc, err := astiav.CreateSoftwareScaleContext(
		sw, sh, sp,
		sw, sh, astiav.PixelFormatBgr24,
		flags,
	)
	if err != nil {
		return fmt.Errorf("convert: create scale context %dx%d %s -> bgr24: %w", sw, sh, sp, err)
	}

	dst := astiav.AllocFrame()
	dst.SetWidth(sw)
	dst.SetHeight(sh)
	dst.SetPixelFormat(astiav.PixelFormatBgr24)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return fmt.Errorf("convert: allocate destination buffer: %w", err)
	}

	c.ssc = ssc
	c.dst = dst
	c.srcW, c.srcH, c.srcPix = sw, sh, sp
	return nil
}

// Convert produces a newly allocated BGR image from src. The returned
// image never aliases memory owned by the converter or the decoder.
func (c *Converter) Convert(src *astiav.Frame) (*Image, error) {
	if src == nil {
		return nil, ErrNoFrame
	}
	if err := c.ensure(src); err != nil {
		return nil, err
	}

	if err := c.ssc.ScaleFrame(src, c.dst); err != nil {
		return nil, fmt.Errorf("convert: scale frame: %w", err)
	}

	n, err := c.dst.ImageBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("convert: image buffer size: %w", err)
	}
	pix := make([]byte, n)
	if _, err := c.dst.ImageCopyToBuffer(pix, 1); err != nil {
		return nil, fmt.Errorf("convert: copy image: %w", err)
	}

	return &Image{
		Pix:    pix,
		Stride: c.srcW * Channels,
		Rect:   image.Rect(0, 0, c.srcW, c.srcH),
	}, nil
}
