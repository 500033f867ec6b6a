package codec

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiveBoard/internal/palette"
	"LiveBoard/internal/state"
)

func brush(color string, width int, coords ...float64) state.Stroke {
	s := state.Stroke{Tool: state.ToolBrush, Color: color, Width: width}
	for i := 0; i+1 < len(coords); i += 2 {
		s.Points = append(s.Points, state.Point{X: coords[i], Y: coords[i+1]})
	}
	return s
}

func TestCodec_EndToEnd(t *testing.T) {
	pal := palette.New()
	in := []state.Stroke{brush("#FF0000", 5, 100, 150, 105, 155)}

	data, err := Encode(in, pal)
	require.NoError(t, err)

	out, err := Decode(data, pal)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, in[0], out[0])
}

func TestCodec_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	colors := []string{"#FF0000", "#00FF00", "#0000FF", "#123456", "#FFFFFF"}

	var in []state.Stroke
	for i := 0; i < 255; i++ {
		switch i % 3 {
		case 0, 1:
			s := state.Stroke{Tool: state.Tool(i % 2), Width: r.Intn(300)}
			if s.Tool == state.ToolBrush {
				s.Color = colors[r.Intn(len(colors))]
			}
			x, y := float64(r.Intn(800)), float64(r.Intn(600))
			for n := 1 + r.Intn(40); n > 0; n-- {
				s.Points = append(s.Points, state.Point{X: x, Y: y})
				x += float64(r.Intn(255) - 127)
				y += float64(r.Intn(255) - 127)
			}
			in = append(in, s)
		case 2:
			in = append(in, state.NewFill(colors[r.Intn(len(colors))], state.Point{X: float64(r.Intn(800)), Y: float64(r.Intn(600))}, colors[r.Intn(len(colors))]))
		}
	}

	pal := palette.New()
	data, err := Encode(in, pal)
	require.NoError(t, err)
	out, err := Decode(data, pal)
	require.NoError(t, err)
	require.Len(t, out, len(in))

	for i := range in {
		want := in[i]
		want.Width = min(want.Width, 255)
		assert.Equal(t, want, out[i], "stroke %d", i)
	}
}

func TestCodec_RoundsCoordinates(t *testing.T) {
	pal := palette.New()
	data, err := Encode([]state.Stroke{brush("#FF0000", 3, 10.4, 10.6, 12.5, 9.49)}, pal)
	require.NoError(t, err)
	out, err := Decode(data, pal)
	require.NoError(t, err)
	assert.Equal(t, []state.Point{{X: 10, Y: 11}, {X: 13, Y: 9}}, out[0].Points)
}

func TestCodec_DeltaOverflowReanchors(t *testing.T) {
	pal := palette.New()
	in := []state.Stroke{brush("#00FF00", 4, 10, 10, 300, 12, 301, 13, 301, 500, 0, 0)}

	data, err := Encode(in, pal)
	require.NoError(t, err)

	out, err := Decode(data, pal)
	require.NoError(t, err)
	assert.Equal(t, in[0].Points, out[0].Points)

	// header 5, stroke head 5, first point 4, one delta 2, three re-anchors 6 each
	assert.Len(t, data, 5+5+4+2+3*6)

	// the same jump under a modulo-256 scheme would decode to 10+(290-256)=44
	assert.NotEqual(t, 44.0, out[0].Points[1].X)
}

func TestCodec_DeltaBoundary(t *testing.T) {
	pal := palette.New()
	in := []state.Stroke{brush("#00FF00", 4, 200, 200, 327, 73, 200, 200, 72, 327)}

	data, err := Encode(in, pal)
	require.NoError(t, err)
	out, err := Decode(data, pal)
	require.NoError(t, err)
	assert.Equal(t, in[0].Points, out[0].Points)
	assert.Len(t, data, 5+5+4+2+2+6)
}

func TestCodec_ClampsCoordinates(t *testing.T) {
	pal := palette.New()
	data, err := Encode([]state.Stroke{brush("#00FF00", 4, -5, 40000, -40000, 7)}, pal)
	require.NoError(t, err)
	out, err := Decode(data, pal)
	require.NoError(t, err)
	assert.Equal(t, []state.Point{{X: -5, Y: 32767}, {X: -32768, Y: 7}}, out[0].Points)
}

func TestCodec_ManyStrokes(t *testing.T) {
	var in []state.Stroke
	for i := 0; i < 300; i++ {
		in = append(in, brush("#FF0000", 2, float64(i), 1, float64(i)+1, 2))
	}

	pal := palette.New()
	data, err := Encode(in, pal)
	require.NoError(t, err)
	out, err := Decode(data, pal)
	require.NoError(t, err)
	assert.Len(t, out, 300)

	// the legacy header wraps the count to 300&0xFF but decoding reads to the end
	legacy, err := EncodeV1(in, pal)
	require.NoError(t, err)
	assert.Equal(t, byte(300&0xff), legacy[1])
	out, err = Decode(legacy, pal)
	require.NoError(t, err)
	assert.Len(t, out, 300)
	assert.Equal(t, in[299], out[299])
}

func TestCodec_LegacyDeltas(t *testing.T) {
	pal := palette.FromColors([]string{"#000000", "#FF0000"})

	// a version 1 brush whose only delta is (-128, +1)
	data := []byte{Version1, 1, 0, 1, 4, 0, 2, 0, 200, 0, 200, 0x80, 0x01}
	out, err := Decode(data, pal)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "#FF0000", out[0].Color)
	assert.Equal(t, []state.Point{{X: 200, Y: 200}, {X: 72, Y: 201}}, out[0].Points)

	// old writers wrapped large jumps, and so does EncodeV1
	legacy, err := EncodeV1([]state.Stroke{brush("#FF0000", 4, 10, 10, 300, 12)}, pal)
	require.NoError(t, err)
	assert.Len(t, legacy, 2+5+4+2)
	out, err = Decode(legacy, pal)
	require.NoError(t, err)
	assert.Equal(t, []state.Point{{X: 10, Y: 10}, {X: 44, Y: 12}}, out[0].Points)
}

func TestCodec_EraserAndFill(t *testing.T) {
	pal := palette.New()
	in := []state.Stroke{
		{Tool: state.ToolEraser, Width: 20, Points: []state.Point{{X: 1, Y: 1}, {X: 4, Y: 8}}},
		state.NewFill("#00FF00", state.Point{X: 640, Y: 480}, "#FFFFFF"),
	}
	data, err := Encode(in, pal)
	require.NoError(t, err)
	out, err := Decode(data, pal)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// erasers do not register colors
	assert.Equal(t, []string{"#00FF00", "#FFFFFF"}, pal.Colors())
}

func TestCodec_PaletteMustTravel(t *testing.T) {
	pal := palette.New()
	data, err := Encode([]state.Stroke{brush("#ABCDEF", 1, 0, 0)}, pal)
	require.NoError(t, err)

	out, err := Decode(data, palette.New())
	require.NoError(t, err)
	assert.Equal(t, palette.Fallback, out[0].Color)

	out, err = Decode(data, palette.FromColors(pal.Colors()))
	require.NoError(t, err)
	assert.Equal(t, "#ABCDEF", out[0].Color)
}

func TestCodec_BadColorFallsBack(t *testing.T) {
	pal := palette.New()
	data, err := Encode([]state.Stroke{brush("not-a-color", 1, 0, 0)}, pal)
	require.NoError(t, err)
	out, err := Decode(data, pal)
	require.NoError(t, err)
	assert.Equal(t, palette.Fallback, out[0].Color)
	assert.Equal(t, 1, pal.Len())
}

func TestCodec_Errors(t *testing.T) {
	pal := palette.New()
	data, err := Encode([]state.Stroke{brush("#FF0000", 5, 1, 1, 2, 2, 3, 3)}, pal)
	require.NoError(t, err)

	testCases := []struct {
		name string
		in   []byte
		err  error
	}{
		{"empty", nil, ErrTruncated},
		{"short header", []byte{Version2, 0, 0}, ErrTruncated},
		{"truncated stroke", data[:len(data)-1], ErrTruncated},
		{"version", []byte{9, 0}, ErrVersion},
		{"stroke type", []byte{Version2, 0, 0, 0, 1, 7}, ErrStrokeType},
		{"path without points", []byte{Version2, 0, 0, 0, 1, 0, 0, 3, 0, 0}, state.ErrNoPoints},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.in, pal)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	_, err = Encode([]state.Stroke{{Tool: state.ToolBrush}}, pal)
	assert.ErrorIs(t, err, state.ErrNoPoints)
}

func TestCodec_Compact(t *testing.T) {
	var in []state.Stroke
	for i := 0; i < 20; i++ {
		s := state.Stroke{Tool: state.ToolBrush, Color: fmt.Sprintf("#%02X0000", i*10), Width: 4}
		for j := 0; j < 50; j++ {
			s.Points = append(s.Points, state.Point{X: float64(100 + j*3), Y: float64(100 + i*5 + j%4)})
		}
		in = append(in, s)
	}
	data, err := Encode(in, palette.New())
	require.NoError(t, err)
	// roughly two bytes per point
	assert.Less(t, len(data), 20*(9+2*50)+5+1)
}
