// Package canvas provides the small set of rasterization primitives used for
// tile rendering and symbol swatches: even-odd polygon fill, stroked
// polylines and circles over an NRGBA image with source-over blending.
package canvas

import (
	"image"
	"image/color"
	"math"
	"sort"
)

// Point is a pixel-space coordinate.
type Point struct {
	X, Y float64
}

// New returns a fully transparent square canvas.
func New(size int) *image.NRGBA {
	return image.NewNRGBA(image.Rect(0, 0, size, size))
}

// blend paints src over the pixel at (x, y), scaling src alpha by opacity.
func blend(img *image.NRGBA, x, y int, src color.NRGBA, opacity float64) {
	if !(image.Point{X: x, Y: y}).In(img.Rect) {
		return
	}
	if opacity < 0 {
		opacity = 0
	} else if opacity > 1 {
		opacity = 1
	}
	sa := float64(src.A) / 255.0 * opacity
	if sa <= 0 {
		return
	}
	dst := img.NRGBAAt(x, y)
	da := float64(dst.A) / 255.0
	outA := sa + da*(1-sa)
	if outA <= 0 {
		img.SetNRGBA(x, y, color.NRGBA{})
		return
	}
	mix := func(s, d uint8) uint8 {
		v := (float64(s)*sa + float64(d)*da*(1-sa)) / outA
		return uint8(math.Round(v))
	}
	img.SetNRGBA(x, y, color.NRGBA{
		R: mix(src.R, dst.R),
		G: mix(src.G, dst.G),
		B: mix(src.B, dst.B),
		A: uint8(math.Round(outA * 255)),
	})
}

// FillPolygon fills the rings with the even-odd rule. Rings share one parity
// test, so holes subtract.
func FillPolygon(img *image.NRGBA, rings [][]Point, col color.NRGBA, opacity float64) {
	if len(rings) == 0 {
		return
	}
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, ring := range rings {
		for _, p := range ring {
			minY = math.Min(minY, p.Y)
			maxY = math.Max(maxY, p.Y)
		}
	}
	y0 := int(math.Max(math.Floor(minY), float64(img.Rect.Min.Y)))
	y1 := int(math.Min(math.Ceil(maxY), float64(img.Rect.Max.Y-1)))

	var xs []float64
	for y := y0; y <= y1; y++ {
		cy := float64(y) + 0.5
		xs = xs[:0]
		for _, ring := range rings {
			n := len(ring)
			if n < 3 {
				continue
			}
			for i := 0; i < n; i++ {
				a := ring[i]
				b := ring[(i+1)%n]
				if (a.Y <= cy) == (b.Y <= cy) {
					continue
				}
				t := (cy - a.Y) / (b.Y - a.Y)
				xs = append(xs, a.X+t*(b.X-a.X))
			}
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			x0 := int(math.Ceil(xs[i] - 0.5))
			x1 := int(math.Floor(xs[i+1] - 0.5))
			for x := x0; x <= x1; x++ {
				blend(img, x, y, col, opacity)
			}
		}
	}
}

// StrokePolyline draws the open path through pts with the given width.
func StrokePolyline(img *image.NRGBA, pts []Point, col color.NRGBA, width, opacity float64) {
	if len(pts) < 2 || width <= 0 {
		return
	}
	for i := 0; i+1 < len(pts); i++ {
		strokeSegment(img, pts[i], pts[i+1], col, width, opacity)
	}
}

// StrokeRing draws a closed ring outline.
func StrokeRing(img *image.NRGBA, ring []Point, col color.NRGBA, width, opacity float64) {
	if len(ring) < 2 {
		return
	}
	for i := 0; i < len(ring); i++ {
		strokeSegment(img, ring[i], ring[(i+1)%len(ring)], col, width, opacity)
	}
}

func strokeSegment(img *image.NRGBA, a, b Point, col color.NRGBA, width, opacity float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		FillCircle(img, a, width/2, col, opacity)
		return
	}
	half := width / 2
	minX := int(math.Floor(math.Min(a.X, b.X) - half - 1))
	maxX := int(math.Ceil(math.Max(a.X, b.X) + half + 1))
	minY := int(math.Floor(math.Min(a.Y, b.Y) - half - 1))
	maxY := int(math.Ceil(math.Max(a.Y, b.Y) + half + 1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			cx, cy := float64(x)+0.5, float64(y)+0.5
			// distance from pixel center to the segment
			t := ((cx-a.X)*dx + (cy-a.Y)*dy) / (length * length)
			if t < 0 {
				t = 0
			} else if t > 1 {
				t = 1
			}
			px, py := a.X+t*dx, a.Y+t*dy
			if math.Hypot(cx-px, cy-py) <= half {
				blend(img, x, y, col, opacity)
			}
		}
	}
}

// FillCircle draws a filled disc centered at c.
func FillCircle(img *image.NRGBA, c Point, radius float64, col color.NRGBA, opacity float64) {
	if radius <= 0 {
		blend(img, int(c.X), int(c.Y), col, opacity)
		return
	}
	minX := int(math.Floor(c.X - radius - 1))
	maxX := int(math.Ceil(c.X + radius + 1))
	minY := int(math.Floor(c.Y - radius - 1))
	maxY := int(math.Ceil(c.Y + radius + 1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if math.Hypot(float64(x)+0.5-c.X, float64(y)+0.5-c.Y) <= radius {
				blend(img, x, y, col, opacity)
			}
		}
	}
}

// StrokeCircle draws a circle outline.
func StrokeCircle(img *image.NRGBA, c Point, radius, width float64, col color.NRGBA, opacity float64) {
	if radius <= 0 || width <= 0 {
		return
	}
	half := width / 2
	minX := int(math.Floor(c.X - radius - half - 1))
	maxX := int(math.Ceil(c.X + radius + half + 1))
	minY := int(math.Floor(c.Y - radius - half - 1))
	maxY := int(math.Ceil(c.Y + radius + half + 1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			d := math.Hypot(float64(x)+0.5-c.X, float64(y)+0.5-c.Y)
			if math.Abs(d-radius) <= half {
				blend(img, x, y, col, opacity)
			}
		}
	}
}

// Border draws a 1px frame around the image bounds.
func Border(img *image.NRGBA, col color.NRGBA) {
	b := img.Rect
	for x := b.Min.X; x < b.Max.X; x++ {
		img.SetNRGBA(x, b.Min.Y, col)
		img.SetNRGBA(x, b.Max.Y-1, col)
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		img.SetNRGBA(b.Min.X, y, col)
		img.SetNRGBA(b.Max.X-1, y, col)
	}
}

// CropCenter returns the centered dim x dim sub-image as a new image, or the
// input unchanged when dim is not smaller than the canvas.
func CropCenter(img *image.NRGBA, dim int) *image.NRGBA {
	b := img.Rect
	if dim <= 0 || dim >= b.Dx() {
		return img
	}
	off := (b.Dx() - dim) / 2
	out := image.NewNRGBA(image.Rect(0, 0, dim, dim))
	for y := 0; y < dim; y++ {
		for x := 0; x < dim; x++ {
			out.SetNRGBA(x, y, img.NRGBAAt(b.Min.X+off+x, b.Min.Y+off+y))
		}
	}
	return out
}
