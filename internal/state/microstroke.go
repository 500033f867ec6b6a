package state

import (
	"errors"
	"fmt"
	"math"

	"github.com/goccy/go-json"
	"github.com/golang/glog"
)

var ErrMalformed = errors.New("malformed micro-stroke")

// MicroStroke is the compact wire unit: one line segment or one fill,
// transmitted as a positional JSON array.
//
//	segment:       [type, colorIndex, width, x1, y1, x2, y2, hex?, strokeId?, sequence?]
//	fill:          [2, colorIndex, x, y]
//	extended fill: [2, fillColorIndex, x, y, origColorIndex, fillHex, origHex]
//
// Coordinates are integers. For fills X1/Y1 hold the seed.
type MicroStroke struct {
	Tool       Tool
	ColorIndex int
	Width      int
	X1, Y1     int
	X2, Y2     int
	Hex        string

	StrokeID *StrokeID
	Sequence *uint32

	// extended fill only
	Extended  bool
	OrigIndex int
	OrigHex   string
}

// NewSegment builds a segment with rounded coordinates. id and seq may be nil.
func NewSegment(tool Tool, colorIndex, width int, from, to Point, hex string, id *StrokeID, seq *uint32) MicroStroke {
	from, to = from.Round(), to.Round()
	return MicroStroke{
		Tool:       tool,
		ColorIndex: colorIndex,
		Width:      width,
		X1:         int(from.X),
		Y1:         int(from.Y),
		X2:         int(to.X),
		Y2:         int(to.Y),
		Hex:        hex,
		StrokeID:   id,
		Sequence:   seq,
	}
}

// NewFillMicro builds an extended fill carrying both hex colors.
func NewFillMicro(fillIndex int, at Point, origIndex int, fillHex, origHex string) MicroStroke {
	at = at.Round()
	return MicroStroke{
		Tool:       ToolFill,
		ColorIndex: fillIndex,
		X1:         int(at.X),
		Y1:         int(at.Y),
		Extended:   true,
		OrigIndex:  origIndex,
		Hex:        fillHex,
		OrigHex:    origHex,
	}
}

func (m MicroStroke) IsFill() bool {
	return m.Tool == ToolFill
}

// Ordered reports whether m carries both a stroke id and a sequence number.
func (m MicroStroke) Ordered() bool {
	return m.StrokeID != nil && m.Sequence != nil
}

func (m MicroStroke) From() Point {
	return Point{X: float64(m.X1), Y: float64(m.Y1)}
}

func (m MicroStroke) To() Point {
	return Point{X: float64(m.X2), Y: float64(m.Y2)}
}

// Length returns the Euclidean length of a segment.
func (m MicroStroke) Length() float64 {
	return m.From().Dist(m.To())
}

func (m MicroStroke) MarshalJSON() ([]byte, error) {
	var fields []any
	switch {
	case m.IsFill() && m.Extended:
		fields = []any{ToolFill, m.ColorIndex, m.X1, m.Y1, m.OrigIndex, m.Hex, m.OrigHex}
	case m.IsFill():
		fields = []any{ToolFill, m.ColorIndex, m.X1, m.Y1}
	default:
		fields = []any{m.Tool, m.ColorIndex, m.Width, m.X1, m.Y1, m.X2, m.Y2}
		if m.Hex != "" || m.StrokeID != nil {
			fields = append(fields, m.Hex)
		}
		if m.StrokeID != nil {
			fields = append(fields, uint64(*m.StrokeID))
			if m.Sequence != nil {
				fields = append(fields, *m.Sequence)
			}
		}
	}
	return json.Marshal(fields)
}

func (m *MicroStroke) UnmarshalJSON(b []byte) error {
	var fields []any
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty", ErrMalformed)
	}
	tool, ok := number(fields[0])
	if !ok {
		return fmt.Errorf("%w: type is not a number", ErrMalformed)
	}

	var out MicroStroke
	switch Tool(tool) {
	case ToolFill:
		if len(fields) != 4 && len(fields) != 7 {
			return fmt.Errorf("%w: fill with %d fields", ErrMalformed, len(fields))
		}
		ints, ok := numbers(fields[1:4])
		if !ok {
			return fmt.Errorf("%w: non-numeric fill field", ErrMalformed)
		}
		out = MicroStroke{Tool: ToolFill, ColorIndex: ints[0], X1: ints[1], Y1: ints[2]}
		if len(fields) == 7 {
			orig, ok := number(fields[4])
			if !ok {
				return fmt.Errorf("%w: non-numeric original color index", ErrMalformed)
			}
			out.Extended = true
			out.OrigIndex = orig
			out.Hex, _ = fields[5].(string)
			out.OrigHex, _ = fields[6].(string)
		}
	case ToolBrush, ToolEraser:
		if len(fields) < 7 || len(fields) > 10 {
			return fmt.Errorf("%w: segment with %d fields", ErrMalformed, len(fields))
		}
		ints, ok := numbers(fields[1:7])
		if !ok {
			return fmt.Errorf("%w: non-numeric segment field", ErrMalformed)
		}
		out = MicroStroke{
			Tool:       Tool(tool),
			ColorIndex: ints[0],
			Width:      ints[1],
			X1:         ints[2],
			Y1:         ints[3],
			X2:         ints[4],
			Y2:         ints[5],
		}
		if len(fields) > 7 {
			out.Hex, _ = fields[7].(string)
		}
		if len(fields) > 8 {
			if f, ok := fields[8].(float64); ok && f >= 0 {
				id := StrokeID(f)
				out.StrokeID = &id
			}
		}
		if len(fields) > 9 {
			if f, ok := fields[9].(float64); ok && f >= 0 {
				seq := uint32(f)
				out.Sequence = &seq
			}
		}
	default:
		return fmt.Errorf("%w: unknown type %d", ErrMalformed, tool)
	}
	*m = out
	return nil
}

// MicroStrokes decodes a JSON array leniently: malformed entries are
// dropped instead of failing the whole list.
type MicroStrokes []MicroStroke

func (l *MicroStrokes) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(MicroStrokes, 0, len(raw))
	for i, r := range raw {
		var m MicroStroke
		if err := m.UnmarshalJSON(r); err != nil {
			glog.V(1).Infof("[state] skip entry %d: %v", i, err)
			continue
		}
		out = append(out, m)
	}
	*l = out
	return nil
}

func number(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f)), true
}

func numbers(vs []any) ([]int, bool) {
	out := make([]int, len(vs))
	for i, v := range vs {
		n, ok := number(v)
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}
