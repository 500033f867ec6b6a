package session

import (
	"fmt"

	"github.com/golang/glog"

	lbnet "LiveBoard/internal/net"
	"LiveBoard/internal/palette"
	"LiveBoard/internal/state"
)

// BeginStroke starts a brush or eraser gesture at p. A gesture still in
// progress is ended first. Nothing is drawn until the gesture moves or ends,
// so that a tap leaves exactly one dot.
func (s *Session) BeginStroke(tool state.Tool, color string, width int, p state.Point) (state.StrokeID, error) {
	switch tool {
	case state.ToolBrush:
		if !palette.Valid(color) {
			glog.Warningf("[session] unusable color %q, drawing with %s", color, palette.Fallback)
			color = palette.Fallback
		}
	case state.ToolEraser:
		color = ""
	default:
		return 0, fmt.Errorf("begin stroke: %w: %s", state.ErrUnknownTool, tool)
	}

	id := s.ids.Next()

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.finish(); ok {
		glog.V(1).Infof("[session] stroke %d ended by a new gesture", prev.ID)
	}

	ci, grew := s.localIndex(tool, color)
	s.active = state.NewBuilder(id, tool, color, width, p)
	s.activeIndex = ci
	if grew {
		s.emitPalette()
	}
	s.sched.BeginGesture(id)
	return id, nil
}

// ExtendStroke adds p to the gesture in progress.
func (s *Session) ExtendStroke(p state.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.active
	if b == nil {
		return ErrNoGesture
	}
	prev, ok := b.Append(p)
	if !ok {
		return ErrNoGesture
	}
	s.canvas.DrawSegment(b.Tool(), palette.ParseHex(b.Color()), b.Width(), prev, p)
	s.sched.Send(state.NewSegment(b.Tool(), s.activeIndex, b.Width(), prev, p, b.Color(), nil, nil))
	return nil
}

// EndStroke completes the gesture in progress, appends it to the log and
// flushes everything the scheduler still holds for it.
func (s *Session) EndStroke() (state.Stroke, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.finish()
	if !ok {
		return state.Stroke{}, ErrNoGesture
	}
	glog.V(2).Infof("[session] stroke %d done, %d points", st.ID, len(st.Points))
	return st, nil
}

// FillAt flood-fills the region under p. The fill is logged and sent at
// once, carrying the color it replaced.
func (s *Session) FillAt(p state.Point, color string) (state.Stroke, error) {
	if !palette.Valid(color) {
		glog.Warningf("[session] unusable fill color %q, filling with %s", color, palette.Fallback)
		color = palette.Fallback
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	origHex := palette.Hex(s.canvas.PixelAt(p.X, p.Y))
	n := s.canvas.Fill(p.X, p.Y, palette.ParseHex(color))
	glog.V(2).Infof("[session] fill %s at %v changed %d pixels", color, p, n)

	st := state.NewFill(color, p.Round(), origHex)
	st.ID = s.ids.Next()
	s.log = append(s.log, st)

	fillIndex, grewFill := s.localIndex(state.ToolFill, color)
	origIndex, grewOrig := s.localIndex(state.ToolFill, origHex)
	if grewFill || grewOrig {
		s.emitPalette()
	}

	m := state.NewFillMicro(fillIndex, p, origIndex, color, origHex)
	s.emit(lbnet.EventSingleStroke, lbnet.SingleStroke{
		RoomID:    s.roomID,
		UserID:    s.userID,
		Stroke:    &m,
		Type:      lbnet.KindFill,
		Timestamp: s.now().UnixMilli(),
	})
	return st.Clone(), nil
}

// ClearLocal clears the drawing and tells the room.
func (s *Session) ClearLocal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	s.emit(lbnet.EventCanvasClear, lbnet.CanvasClear{
		RoomID:    s.roomID,
		UserID:    s.userID,
		Timestamp: s.now().UnixMilli(),
	})
}

// finish freezes the active gesture into the log and flushes what the
// scheduler holds for it. A gesture that never moved becomes a dot.
// Caller holds mu.
func (s *Session) finish() (state.Stroke, bool) {
	b := s.active
	if b == nil {
		return state.Stroke{}, false
	}
	if b.Len() == 1 {
		p := b.Last()
		s.canvas.DrawSegment(b.Tool(), palette.ParseHex(b.Color()), b.Width(), p, p)
		s.sched.Send(state.NewSegment(b.Tool(), s.activeIndex, b.Width(), p, p, b.Color(), nil, nil))
	}
	st := b.Freeze()
	s.active = nil
	s.log = append(s.log, st)
	s.sched.EndGesture()
	return st.Clone(), true
}

// localIndex registers color in the local palette and reports whether the
// palette grew. Erasers always use index 0.
func (s *Session) localIndex(tool state.Tool, color string) (int, bool) {
	if tool == state.ToolEraser {
		return 0, false
	}
	before := s.palette.Len()
	idx := s.palette.IndexOf(color)
	return idx, s.palette.Len() > before
}
