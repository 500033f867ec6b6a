package raster

import (
	"image"
	"image/color"
	"math"

	"github.com/bits-and-blooms/bitset"
)

// FloodFill paints the 4-connected region around (x, y) whose pixels exactly
// match the seed pixel with fill, forced opaque. Matching is exact, with no
// tolerance, so that replaying a drawing reproduces the same regions.
// It returns the number of pixels changed.
func FloodFill(img *image.NRGBA, x, y float64, fill color.NRGBA) int {
	b := img.Bounds()
	sx, sy := int(math.Round(x)), int(math.Round(y))
	if !(image.Point{X: sx, Y: sy}).In(b) {
		return 0
	}

	target := img.NRGBAAt(sx, sy)
	if target.R == fill.R && target.G == fill.G && target.B == fill.B && target.A == 0xff {
		return 0
	}
	fill.A = 0xff

	w, h := b.Dx(), b.Dy()
	visited := bitset.New(uint(w * h))
	queue := []image.Point{{X: sx, Y: sy}}
	changed := 0

	for head := 0; head < len(queue); head++ {
		p := queue[head]
		if !p.In(b) {
			continue
		}
		bit := uint((p.Y-b.Min.Y)*w + (p.X - b.Min.X))
		if visited.Test(bit) {
			continue
		}
		visited.Set(bit)

		i := img.PixOffset(p.X, p.Y)
		px := img.Pix[i : i+4 : i+4]
		if px[0] != target.R || px[1] != target.G || px[2] != target.B || px[3] != target.A {
			continue
		}
		px[0], px[1], px[2], px[3] = fill.R, fill.G, fill.B, fill.A
		changed++

		queue = append(queue,
			image.Point{X: p.X + 1, Y: p.Y},
			image.Point{X: p.X - 1, Y: p.Y},
			image.Point{X: p.X, Y: p.Y + 1},
			image.Point{X: p.X, Y: p.Y - 1},
		)
		// drop the consumed prefix once it dominates the backing array
		if head > 4096 && head > len(queue)/2 {
			queue = append(queue[:0], queue[head+1:]...)
			head = -1
		}
	}
	return changed
}
