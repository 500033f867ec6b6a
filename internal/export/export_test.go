package export

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiveBoard/internal/codec"
	"LiveBoard/internal/state"
)

func drawing() []state.Stroke {
	return []state.Stroke{
		{Tool: state.ToolBrush, Color: "#FF0000", Width: 5, Points: []state.Point{{X: 100, Y: 150}, {X: 105, Y: 155}}},
		{Tool: state.ToolEraser, Width: 12, Points: []state.Point{{X: 101, Y: 151}}},
		state.NewFill("#00FF00", state.Point{X: 10, Y: 10}, "#FFFFFF"),
	}
}

func TestEnvelope_RoundTrip(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	f, err := Build(drawing(), 800, 600, now)
	require.NoError(t, err)

	assert.Equal(t, Format, f.Meta.Format)
	assert.Equal(t, codec.Version, f.Meta.Version)
	assert.Equal(t, int64(1_700_000_000_123), f.Meta.Timestamp)
	assert.Equal(t, 3, f.Meta.NumStrokes)
	assert.Equal(t, 800, f.Meta.CanvasWidth)
	assert.Equal(t, 600, f.Meta.CanvasHeight)
	assert.Equal(t, len(f.BinaryDataBase16)/2, f.Meta.SizeBytes)
	assert.Equal(t, []string{"#FF0000", "#00FF00", "#FFFFFF"}, f.Meta.ColorPalette)

	data, err := f.Marshal()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	meta, ok := raw["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "binary-v1", meta["format"])
	assert.Equal(t, f.BinaryDataBase16, raw["binaryDataBase16"])

	back, err := Parse(data)
	require.NoError(t, err)
	strokes, err := back.Strokes()
	require.NoError(t, err)
	assert.Equal(t, drawing(), strokes)
}

func TestEnvelope_PaletteIsAuthoritative(t *testing.T) {
	f, err := Build(drawing(), 10, 10, time.Now())
	require.NoError(t, err)

	// a reader that trusts the meta sees the colors the writer meant even
	// when the indices would mean something else in a fresh palette
	f.Meta.ColorPalette[0] = "#0000FF"
	strokes, err := f.Strokes()
	require.NoError(t, err)
	assert.Equal(t, "#0000FF", strokes[0].Color)
}

func TestEnvelope_Errors(t *testing.T) {
	_, err := Parse([]byte(`{"meta":{"format":"svg"}}`))
	assert.ErrorIs(t, err, ErrFormat)

	_, err = Parse([]byte(`{`))
	assert.Error(t, err)

	_, err = File{Meta: Meta{Format: Format}, BinaryDataBase16: "zz"}.Strokes()
	assert.Error(t, err)

	_, err = File{Meta: Meta{Format: Format}, BinaryDataBase16: "02000000"}.Strokes()
	assert.ErrorIs(t, err, codec.ErrTruncated)

	_, err = Build([]state.Stroke{{Tool: state.ToolFill}}, 1, 1, time.Now())
	assert.ErrorIs(t, err, state.ErrFillPoints)
}

func canvas() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	img.SetNRGBA(3, 4, color.NRGBA{R: 0xff, A: 0xff})
	return img
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, canvas(), 0))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 20), img.Bounds())
	r, _, _, a := img.At(3, 4).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), a)

	buf.Reset()
	require.NoError(t, WritePNG(&buf, canvas(), 10))
	img, err = png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())
	assert.Equal(t, 5, img.Bounds().Dy())
}

func TestFlatten(t *testing.T) {
	out := Flatten(canvas(), color.White)
	assert.Equal(t, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0xff}, out.NRGBAAt(3, 4))
}

func TestWritePDF(t *testing.T) {
	testCases := []struct {
		name    string
		strokes []state.Stroke
	}{
		{"vector", drawing()[:1]},
		{"raster", drawing()},
		{"empty", nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WritePDF(&buf, tc.strokes, canvas()))
			assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
		})
	}
}
