package dump

import (
	"image"
	"math"

	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/convert"
	"github.com/e7canasta/orion-care-sensor/modules/mv-capture/internal/motion"
)

// arrowTip is the arrow head length as a fraction of the arrow length.
const arrowTip = 0.1

// overlayMargin is how far outside the picture an arrow end may lie and
// still be drawn. Unrestricted vectors point slightly out of frame.
const overlayMargin = 256

// DrawMotionVectors returns a copy of img with every vector of t drawn as
// a red arrow from its source to its destination block center.
func DrawMotionVectors(img *convert.Image, t motion.Table) *convert.Image {
	out := img.Clone()
	area := out.Rect.Inset(-overlayMargin)
	for _, r := range t.All() {
		src := image.Pt(int(r[motion.ColSrcX]), int(r[motion.ColSrcY]))
		dst := image.Pt(int(r[motion.ColDstX]), int(r[motion.ColDstY]))
		if !src.In(area) || !dst.In(area) {
			continue
		}
		arrow(out, src.X, src.Y, dst.X, dst.Y)
	}
	return out
}

func arrow(img *convert.Image, x0, y0, x1, y1 int) {
	line(img, x0, y0, x1, y1)

	dx, dy := float64(x1-x0), float64(y1-y0)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	tip := length * arrowTip
	angle := math.Atan2(dy, dx)
	for _, side := range []float64{math.Pi / 4, -math.Pi / 4} {
		hx := float64(x1) - tip*math.Cos(angle+side)
		hy := float64(y1) - tip*math.Sin(angle+side)
		line(img, x1, y1, int(math.Round(hx)), int(math.Round(hy)))
	}
}

// line draws a 1px Bresenham segment in red.
func line(img *convert.Image, x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetBGR(x0, y0, 0, 0, 0xff)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
