package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/jung-kurt/gofpdf"

	"LiveBoard/internal/palette"
	"LiveBoard/internal/state"
)

// WritePDF puts the drawing on one page the size of the canvas, in points.
// Brush-only drawings are written as vector lines. Erasers and fills only
// exist on the raster, so any other drawing embeds the flattened image.
func WritePDF(w io.Writer, strokes []state.Stroke, img image.Image) error {
	b := img.Bounds()
	wd, ht := float64(b.Dx()), float64(b.Dy())
	p := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: wd, Ht: ht},
	})
	p.SetMargins(0, 0, 0)
	p.SetAutoPageBreak(false, 0)
	p.AddPage()

	if brushOnly(strokes) {
		p.SetLineCapStyle("round")
		p.SetLineJoinStyle("round")
		for _, st := range strokes {
			c := palette.ParseHex(st.Color)
			p.SetDrawColor(int(c.R), int(c.G), int(c.B))
			p.SetLineWidth(float64(max(st.Width, 1)))
			if len(st.Points) == 1 {
				pt := st.Points[0]
				p.Line(pt.X, pt.Y, pt.X, pt.Y)
			}
			for i := 1; i < len(st.Points); i++ {
				p.Line(st.Points[i-1].X, st.Points[i-1].Y, st.Points[i].X, st.Points[i].Y)
			}
		}
	} else {
		var buf bytes.Buffer
		if err := WritePNG(&buf, Flatten(img, color.White), 0); err != nil {
			return fmt.Errorf("pdf: %w", err)
		}
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		p.RegisterImageOptionsReader("canvas", opts, &buf)
		p.ImageOptions("canvas", 0, 0, wd, ht, false, opts, 0, "")
	}

	if err := p.Output(w); err != nil {
		return fmt.Errorf("pdf: %w", err)
	}
	return nil
}

func brushOnly(strokes []state.Stroke) bool {
	for _, st := range strokes {
		if st.Tool != state.ToolBrush {
			return false
		}
	}
	return true
}
