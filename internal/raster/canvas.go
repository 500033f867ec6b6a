package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"

	"LiveBoard/internal/state"
)

// ErrNoSurface is returned when a canvas cannot be backed by a pixel buffer.
var ErrNoSurface = errors.New("raster: no drawable surface")

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522847498

// Canvas is the pixel buffer a drawing session paints into. It starts fully
// transparent. A Canvas is not safe for concurrent use; the session that
// owns it serialises access.
type Canvas struct {
	img *image.NRGBA
}

func NewCanvas(width, height int) (*Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrNoSurface, width, height)
	}
	return &Canvas{img: image.NewNRGBA(image.Rect(0, 0, width, height))}, nil
}

func (c *Canvas) Width() int  { return c.img.Rect.Dx() }
func (c *Canvas) Height() int { return c.img.Rect.Dy() }

// PixelAt returns the pixel at the rounded coordinate, or transparent black
// outside the canvas.
func (c *Canvas) PixelAt(x, y float64) color.NRGBA {
	p := image.Pt(int(math.Round(x)), int(math.Round(y)))
	if !p.In(c.img.Rect) {
		return color.NRGBA{}
	}
	return c.img.NRGBAAt(p.X, p.Y)
}

// Clear resets every pixel to transparent.
func (c *Canvas) Clear() {
	clear(c.img.Pix)
}

// Image returns a copy of the current pixels.
func (c *Canvas) Image() *image.NRGBA {
	out := image.NewNRGBA(c.img.Rect)
	copy(out.Pix, c.img.Pix)
	return out
}

// Fill flood fills from (x, y) and returns the number of pixels changed.
func (c *Canvas) Fill(x, y float64, fill color.NRGBA) int {
	return FloodFill(c.img, x, y, fill)
}

// DrawSegment strokes a round-capped line of the given width. Brush paints
// source-over; eraser clears alpha in proportion to coverage.
func (c *Canvas) DrawSegment(tool state.Tool, col color.NRGBA, width int, from, to state.Point) {
	r := float64(width) / 2
	if r < 0.5 {
		r = 0.5
	}
	area := image.Rect(
		int(math.Floor(math.Min(from.X, to.X)-r))-1,
		int(math.Floor(math.Min(from.Y, to.Y)-r))-1,
		int(math.Ceil(math.Max(from.X, to.X)+r))+1,
		int(math.Ceil(math.Max(from.Y, to.Y)+r))+1,
	).Intersect(c.img.Rect)
	if area.Empty() {
		return
	}

	mask := segmentMask(area, from, to, r)
	switch tool {
	case state.ToolEraser:
		c.eraseMask(area, mask)
	default:
		col.A = 0xff
		draw.DrawMask(c.img, area, image.NewUniform(col), image.Point{}, mask, image.Point{}, draw.Over)
	}
}

// eraseMask applies destination-out: alpha becomes alpha*(1-coverage).
func (c *Canvas) eraseMask(area image.Rectangle, mask *image.Alpha) {
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			m := uint32(mask.AlphaAt(x-area.Min.X, y-area.Min.Y).A)
			if m == 0 {
				continue
			}
			i := c.img.PixOffset(x, y)
			a := uint32(c.img.Pix[i+3]) * (0xff - m) / 0xff
			if a == 0 {
				c.img.Pix[i], c.img.Pix[i+1], c.img.Pix[i+2] = 0, 0, 0
			}
			c.img.Pix[i+3] = uint8(a)
		}
	}
}

// segmentMask rasterises the capsule around from-to into a coverage mask
// whose origin is area.Min. Every sub-path winds the same way so that the
// overlapping body and caps accumulate instead of cancelling.
func segmentMask(area image.Rectangle, from, to state.Point, r float64) *image.Alpha {
	w, h := area.Dx(), area.Dy()
	z := vector.NewRasterizer(w, h)
	ox, oy := float64(area.Min.X), float64(area.Min.Y)
	ax, ay := from.X-ox, from.Y-oy
	bx, by := to.X-ox, to.Y-oy

	if l := math.Hypot(bx-ax, by-ay); l > 0 {
		nx, ny := -(by-ay)/l*r, (bx-ax)/l*r
		z.MoveTo(f32(ax+nx), f32(ay+ny))
		z.LineTo(f32(bx+nx), f32(by+ny))
		z.LineTo(f32(bx-nx), f32(by-ny))
		z.LineTo(f32(ax-nx), f32(ay-ny))
		z.ClosePath()
	}
	circle(z, ax, ay, r)
	circle(z, bx, by, r)

	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}

func circle(z *vector.Rasterizer, cx, cy, r float64) {
	k := kappa * r
	z.MoveTo(f32(cx+r), f32(cy))
	z.CubeTo(f32(cx+r), f32(cy-k), f32(cx+k), f32(cy-r), f32(cx), f32(cy-r))
	z.CubeTo(f32(cx-k), f32(cy-r), f32(cx-r), f32(cy-k), f32(cx-r), f32(cy))
	z.CubeTo(f32(cx-r), f32(cy+k), f32(cx-k), f32(cy+r), f32(cx), f32(cy+r))
	z.CubeTo(f32(cx+k), f32(cy+r), f32(cx+r), f32(cy+k), f32(cx+r), f32(cy))
	z.ClosePath()
}

func f32(v float64) float32 { return float32(v) }
