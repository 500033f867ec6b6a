package state

// Builder accumulates the points of the gesture in progress. It is owned by
// the active gesture only; Freeze hands out an immutable Stroke and
// detaches the builder from it.
type Builder struct {
	id     StrokeID
	tool   Tool
	color  string
	width  int
	points []Point
	frozen bool
}

func NewBuilder(id StrokeID, tool Tool, color string, width int, start Point) *Builder {
	return &Builder{
		id:     id,
		tool:   tool,
		color:  color,
		width:  width,
		points: []Point{start},
	}
}

func (b *Builder) ID() StrokeID  { return b.id }
func (b *Builder) Tool() Tool    { return b.tool }
func (b *Builder) Color() string { return b.color }
func (b *Builder) Width() int    { return b.width }
func (b *Builder) Len() int      { return len(b.points) }

// Last returns the most recent point.
func (b *Builder) Last() Point {
	return b.points[len(b.points)-1]
}

// Append adds p and returns the previous point, which together with p forms
// the new segment. Appending to a frozen builder is a no-op and reports false.
func (b *Builder) Append(p Point) (prev Point, ok bool) {
	if b.frozen {
		return Point{}, false
	}
	prev = b.Last()
	b.points = append(b.points, p)
	return prev, true
}

// Freeze ends the gesture and returns the finished stroke.
func (b *Builder) Freeze() Stroke {
	b.frozen = true
	s := Stroke{
		ID:     b.id,
		Tool:   b.tool,
		Width:  b.width,
		Points: append([]Point(nil), b.points...),
	}
	if b.tool == ToolBrush {
		s.Color = b.color
	}
	return s
}
