package state

import (
	"errors"
	"fmt"
	"math"
)

// Tool selects how a stroke is applied to the raster.
type Tool uint8

const (
	ToolBrush Tool = iota
	ToolEraser
	ToolFill
)

func (t Tool) String() string {
	switch t {
	case ToolBrush:
		return "brush"
	case ToolEraser:
		return "eraser"
	case ToolFill:
		return "fill"
	default:
		return fmt.Sprintf("tool(%d)", uint8(t))
	}
}

type Point struct{ X, Y float64 }

// Round snaps p to integer coordinates, as sent on the wire.
func (p Point) Round() Point {
	return Point{X: math.Round(p.X), Y: math.Round(p.Y)}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

var (
	ErrNoPoints    = errors.New("stroke has no points")
	ErrFillPoints  = errors.New("fill stroke must have exactly one point")
	ErrUnknownTool = errors.New("unknown tool")
)

// Stroke is a completed drawing action in the stroke log.
//
// Brush uses Color, Width and Points. Eraser uses Width and Points.
// Fill uses Color as the fill color, Points[0] as the seed and OriginalColor
// as the color found under the seed when the fill was made.
type Stroke struct {
	ID            StrokeID
	Tool          Tool
	Color         string
	Width         int
	Points        []Point
	OriginalColor string
}

// NewFill builds a fill stroke.
func NewFill(fillColor string, at Point, originalColor string) Stroke {
	return Stroke{
		Tool:          ToolFill,
		Color:         fillColor,
		Points:        []Point{at},
		OriginalColor: originalColor,
	}
}

func (s Stroke) Validate() error {
	switch s.Tool {
	case ToolBrush, ToolEraser:
		if len(s.Points) == 0 {
			return ErrNoPoints
		}
	case ToolFill:
		if len(s.Points) != 1 {
			return ErrFillPoints
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownTool, s.Tool)
	}
	return nil
}

// Seed returns the fill seed point. It is only meaningful for fills.
func (s Stroke) Seed() Point {
	if len(s.Points) == 0 {
		return Point{}
	}
	return s.Points[0]
}

// Clone returns a copy that shares no memory with s.
func (s Stroke) Clone() Stroke {
	c := s
	c.Points = append([]Point(nil), s.Points...)
	return c
}

// Segments expands a brush or eraser stroke into consecutive wire segments
// carrying the stroke id and sequence numbers from 0. A single point
// becomes a zero-length segment so a tap still leaves a dot.
func (s Stroke) Segments(colorIndex int) []MicroStroke {
	if s.Tool == ToolFill || len(s.Points) == 0 {
		return nil
	}
	id := s.ID
	pts := s.Points
	if len(pts) == 1 {
		pts = []Point{pts[0], pts[0]}
	}
	out := make([]MicroStroke, 0, len(pts)-1)
	for i := 1; i < len(pts); i++ {
		seq := uint32(i - 1)
		out = append(out, NewSegment(s.Tool, colorIndex, s.Width, pts[i-1], pts[i], s.Color, &id, &seq))
	}
	return out
}
