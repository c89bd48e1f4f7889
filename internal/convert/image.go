// Package convert turns decoded pictures into interleaved BGR 8-bit images.
package convert

import (
	"image"
	"image/color"
)

// Channels is the number of interleaved channels in an Image.
const Channels = 3

// Image is a height x width x 3 BGR image with 8 bits per channel.
//
// Pix holds rows top to bottom; within a row, pixels are stored as
// B, G, R triplets.
type Image struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// NewImage allocates a zeroed image.
func NewImage(width, height int) *Image {
	return &Image{
		Pix:    make([]uint8, width*height*Channels),
		Stride: width * Channels,
		Rect:   image.Rect(0, 0, width, height),
	}
}

// Width returns the image width in pixels.
func (m *Image) Width() int { return m.Rect.Dx() }

// Height returns the image height in pixels.
func (m *Image) Height() int { return m.Rect.Dy() }

// Shape returns (height, width, 3).
func (m *Image) Shape() (h, w, c int) { return m.Rect.Dy(), m.Rect.Dx(), Channels }

// ColorModel implements image.Image.
func (m *Image) ColorModel() color.Model { return color.NRGBAModel }

// Bounds implements image.Image.
func (m *Image) Bounds() image.Rectangle { return m.Rect }

// At implements image.Image.
func (m *Image) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(m.Rect)) {
		return color.NRGBA{}
	}
	i := m.PixOffset(x, y)
	return color.NRGBA{R: m.Pix[i+2], G: m.Pix[i+1], B: m.Pix[i], A: 0xff}
}

// PixOffset returns the index of the first byte of pixel (x, y).
func (m *Image) PixOffset(x, y int) int {
	return (y-m.Rect.Min.Y)*m.Stride + (x-m.Rect.Min.X)*Channels
}

// BGR returns the channels of pixel (x, y).
func (m *Image) BGR(x, y int) (b, g, r uint8) {
	i := m.PixOffset(x, y)
	return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
}

// SetBGR sets pixel (x, y). Points outside the image are ignored.
func (m *Image) SetBGR(x, y int, b, g, r uint8) {
	if !(image.Point{x, y}.In(m.Rect)) {
		return
	}
	i := m.PixOffset(x, y)
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = b, g, r
}

// NRGBA converts the image to an opaque *image.NRGBA.
func (m *Image) NRGBA() *image.NRGBA {
	w, h := m.Rect.Dx(), m.Rect.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := m.Pix[y*m.Stride : y*m.Stride+w*Channels]
		dst := out.Pix[y*out.Stride : y*out.Stride+w*4]
		for x := 0; x < w; x++ {
			dst[x*4+0] = src[x*3+2]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+0]
			dst[x*4+3] = 0xff
		}
	}
	return out
}

// Clone returns a deep copy.
func (m *Image) Clone() *Image {
	pix := make([]uint8, len(m.Pix))
	copy(pix, m.Pix)
	return &Image{Pix: pix, Stride: m.Stride, Rect: m.Rect}
}
