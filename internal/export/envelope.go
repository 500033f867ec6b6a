// Package export writes a drawing out of a session: the binary-v1 file
// envelope, PNG snapshots and PDF pages.
package export

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"LiveBoard/internal/codec"
	"LiveBoard/internal/palette"
	"LiveBoard/internal/state"
)

// Format names the envelope layout.
const Format = "binary-v1"

var ErrFormat = errors.New("export: unsupported format")

type Meta struct {
	Format       string   `json:"format"`
	Version      int      `json:"version"`
	Timestamp    int64    `json:"timestamp"`
	CanvasWidth  int      `json:"canvasWidth"`
	CanvasHeight int      `json:"canvasHeight"`
	NumStrokes   int      `json:"numStrokes"`
	SizeBytes    int      `json:"sizeBytes"`
	ColorPalette []string `json:"colorPalette"`
}

// File is an exported drawing. Meta.ColorPalette is the palette the binary
// data was encoded with and is authoritative when reading it back.
type File struct {
	Meta             Meta   `json:"meta"`
	BinaryDataBase16 string `json:"binaryDataBase16"`
}

// Build encodes strokes with a fresh palette that then travels in the meta.
func Build(strokes []state.Stroke, width, height int, now time.Time) (File, error) {
	pal := palette.New()
	data, err := codec.Encode(strokes, pal)
	if err != nil {
		return File{}, fmt.Errorf("export: %w", err)
	}
	return File{
		Meta: Meta{
			Format:       Format,
			Version:      codec.Version,
			Timestamp:    now.UnixMilli(),
			CanvasWidth:  width,
			CanvasHeight: height,
			NumStrokes:   len(strokes),
			SizeBytes:    len(data),
			ColorPalette: pal.Colors(),
		},
		BinaryDataBase16: hex.EncodeToString(data),
	}, nil
}

func (f File) Marshal() ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}

// Parse reads an envelope and checks its format.
func Parse(data []byte) (File, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("export: %w", err)
	}
	if f.Meta.Format != Format {
		return File{}, fmt.Errorf("%w: %q", ErrFormat, f.Meta.Format)
	}
	return f, nil
}

// Strokes decodes the binary data through the palette stored in the meta.
func (f File) Strokes() ([]state.Stroke, error) {
	data, err := hex.DecodeString(f.BinaryDataBase16)
	if err != nil {
		return nil, fmt.Errorf("export: binary data: %w", err)
	}
	strokes, err := codec.Decode(data, palette.FromColors(f.Meta.ColorPalette))
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return strokes, nil
}
