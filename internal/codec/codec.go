// Package codec serialises a stroke list into a compact binary form.
//
// Colors are replaced by palette indices and points after the first are
// stored as one-byte deltas. The palette used to encode must travel with the
// bytes; decoding with another palette silently yields wrong colors.
//
// Layout (all multi-byte values big endian):
//
//	header   [version:1][count:4]            version 2
//	         [version:1][count:1]            version 1, count is count&0xFF
//	fill     [2][fillIndex:1][x:2][y:2][origIndex:1]
//	path     [tool:1][colorIndex:1][width:1][numPoints:2][x:2][y:2] then per point:
//	         [dx:1][dy:1]                    signed, each in [-127,127]
//	         [0x80][0x00][x:2][y:2]          re-anchor at an absolute point
//
// Version 1 has no re-anchor escape: every delta is a plain signed byte and
// larger jumps wrap.
//
// Coordinates are rounded and stored as signed 16-bit values.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/golang/glog"

	"LiveBoard/internal/palette"
	"LiveBoard/internal/state"
)

const (
	Version1 = 1
	Version2 = 2

	// Version is what Encode writes.
	Version = Version2

	anchor   = 0x80
	maxDelta = 127
)

var (
	ErrTruncated  = errors.New("codec: truncated input")
	ErrVersion    = errors.New("codec: unsupported format version")
	ErrStrokeType = errors.New("codec: unknown stroke type")
	ErrTooLong    = errors.New("codec: stroke has too many points")
)

// Encode serialises strokes, registering their colors in pal.
func Encode(strokes []state.Stroke, pal *palette.Palette) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(Version)
	binary.Write(&buf, binary.BigEndian, uint32(len(strokes)))

	for i, s := range strokes {
		if err := encodeStroke(&buf, Version2, s, pal); err != nil {
			return nil, fmt.Errorf("stroke %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// EncodeV1 writes the legacy layout with a one-byte count and wrapping
// deltas, as old writers did. Lists of 256 or more strokes declare a wrapped
// count; Decode reads v1 payloads to the end of the buffer for that reason.
func EncodeV1(strokes []state.Stroke, pal *palette.Palette) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(Version1)
	buf.WriteByte(byte(len(strokes) & 0xff))
	for i, s := range strokes {
		if err := encodeStroke(&buf, Version1, s, pal); err != nil {
			return nil, fmt.Errorf("stroke %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func encodeStroke(buf *bytes.Buffer, version byte, s state.Stroke, pal *palette.Palette) error {
	if err := s.Validate(); err != nil {
		return err
	}

	if s.Tool == state.ToolFill {
		p := s.Seed()
		buf.WriteByte(byte(state.ToolFill))
		buf.WriteByte(colorIndex(pal, s.Color))
		writeCoord(buf, p.X)
		writeCoord(buf, p.Y)
		buf.WriteByte(colorIndex(pal, s.OriginalColor))
		return nil
	}

	if len(s.Points) > math.MaxUint16 {
		return fmt.Errorf("%w: %d", ErrTooLong, len(s.Points))
	}
	buf.WriteByte(byte(s.Tool))
	if s.Tool == state.ToolEraser {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(colorIndex(pal, s.Color))
	}
	buf.WriteByte(byte(min(max(s.Width, 0), 0xff)))
	binary.Write(buf, binary.BigEndian, uint16(len(s.Points)))

	prevX, prevY := coord(s.Points[0].X), coord(s.Points[0].Y)
	binary.Write(buf, binary.BigEndian, prevX)
	binary.Write(buf, binary.BigEndian, prevY)
	for _, p := range s.Points[1:] {
		x, y := coord(p.X), coord(p.Y)
		dx, dy := int(x)-int(prevX), int(y)-int(prevY)
		if version == Version1 {
			buf.WriteByte(byte(dx))
			buf.WriteByte(byte(dy))
		} else if dx < -maxDelta || dx > maxDelta || dy < -maxDelta || dy > maxDelta {
			buf.WriteByte(anchor)
			buf.WriteByte(0)
			binary.Write(buf, binary.BigEndian, x)
			binary.Write(buf, binary.BigEndian, y)
		} else {
			buf.WriteByte(byte(int8(dx)))
			buf.WriteByte(byte(int8(dy)))
		}
		prevX, prevY = x, y
	}
	return nil
}

// Decode parses bytes produced by Encode or EncodeV1, resolving color
// indices through pal.
func Decode(data []byte, pal *palette.Palette) ([]state.Stroke, error) {
	r := &reader{data: data}
	version, err := r.u8()
	if err != nil {
		return nil, err
	}

	count := -1
	switch version {
	case Version1:
		declared, err := r.u8()
		if err != nil {
			return nil, err
		}
		glog.V(2).Infof("[codec] v1 payload declares %d strokes, reading to end", declared)
	case Version2:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		count = int(n)
	default:
		return nil, fmt.Errorf("%w: %d", ErrVersion, version)
	}

	var strokes []state.Stroke
	if count >= 0 {
		strokes = make([]state.Stroke, 0, min(count, len(data)/6))
	}
	for (count < 0 && r.remaining() > 0) || len(strokes) < count {
		s, err := decodeStroke(r, version, pal)
		if err != nil {
			return nil, fmt.Errorf("stroke %d: %w", len(strokes), err)
		}
		strokes = append(strokes, s)
	}
	return strokes, nil
}

func decodeStroke(r *reader, version byte, pal *palette.Palette) (state.Stroke, error) {
	tool, err := r.u8()
	if err != nil {
		return state.Stroke{}, err
	}

	switch state.Tool(tool) {
	case state.ToolFill:
		fillIndex, err := r.u8()
		if err != nil {
			return state.Stroke{}, err
		}
		x, y, err := r.point()
		if err != nil {
			return state.Stroke{}, err
		}
		origIndex, err := r.u8()
		if err != nil {
			return state.Stroke{}, err
		}
		return state.NewFill(pal.ColorOf(int(fillIndex)), point(x, y), pal.ColorOf(int(origIndex))), nil

	case state.ToolBrush, state.ToolEraser:
		ci, err := r.u8()
		if err != nil {
			return state.Stroke{}, err
		}
		width, err := r.u8()
		if err != nil {
			return state.Stroke{}, err
		}
		n, err := r.u16()
		if err != nil {
			return state.Stroke{}, err
		}
		s := state.Stroke{Tool: state.Tool(tool), Width: int(width)}
		if s.Tool == state.ToolBrush {
			s.Color = pal.ColorOf(int(ci))
		}
		if n == 0 {
			return state.Stroke{}, state.ErrNoPoints
		}

		x, y, err := r.point()
		if err != nil {
			return state.Stroke{}, err
		}
		s.Points = make([]state.Point, 0, n)
		s.Points = append(s.Points, point(x, y))
		for i := 1; i < int(n); i++ {
			dx, err := r.u8()
			if err != nil {
				return state.Stroke{}, err
			}
			dy, err := r.u8()
			if err != nil {
				return state.Stroke{}, err
			}
			if version == Version2 && dx == anchor {
				if x, y, err = r.point(); err != nil {
					return state.Stroke{}, err
				}
			} else {
				x += int16(int8(dx))
				y += int16(int8(dy))
			}
			s.Points = append(s.Points, point(x, y))
		}
		return s, nil

	default:
		return state.Stroke{}, fmt.Errorf("%w: %d", ErrStrokeType, tool)
	}
}

func colorIndex(pal *palette.Palette, c string) byte {
	if !palette.Valid(c) {
		c = palette.Fallback
	}
	return byte(pal.IndexOf(c))
}

func coord(v float64) int16 {
	return int16(min(max(math.Round(v), math.MinInt16), math.MaxInt16))
}

func writeCoord(buf *bytes.Buffer, v float64) {
	binary.Write(buf, binary.BigEndian, coord(v))
}

func point(x, y int16) state.Point {
	return state.Point{X: float64(x), Y: float64(y)}
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) remaining() int { return len(r.data) - r.off }

func (r *reader) next(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d", ErrTruncated, n, r.off)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8() (byte, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) point() (int16, int16, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), int16(binary.BigEndian.Uint16(b[2:])), nil
}
