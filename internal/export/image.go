package export

import (
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
)

// WritePNG encodes img, scaled down to maxWidth when it is wider and
// maxWidth is positive.
func WritePNG(w io.Writer, img image.Image, maxWidth int) error {
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}
	return imaging.Encode(w, img, imaging.PNG)
}

// Flatten composites the drawing over an opaque background.
func Flatten(img image.Image, bg color.Color) *image.NRGBA {
	b := img.Bounds()
	return imaging.Overlay(imaging.New(b.Dx(), b.Dy(), bg), img, image.Point{}, 1.0)
}
