package session

import (
	"slices"

	"github.com/golang/glog"

	lbnet "LiveBoard/internal/net"
	"LiveBoard/internal/palette"
	"LiveBoard/internal/state"
)

// ApplyBatch orders a received batch and applies it.
func (s *Session) ApplyBatch(userID string, list []state.MicroStroke) {
	ordered := Order(list)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range ordered {
		s.apply(userID, m)
	}
}

// ApplySingle applies one fill, segment or clear immediately.
func (s *Session) ApplySingle(userID, kind string, m *state.MicroStroke) {
	switch kind {
	case lbnet.KindClear:
		s.Clear()
	case lbnet.KindFill, lbnet.KindStroke:
		if m == nil {
			glog.V(1).Infof("[session] %s from %s without a stroke", kind, userID)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.apply(userID, *m)
	default:
		glog.V(1).Infof("[session] unknown single-stroke type %q from %s", kind, userID)
	}
}

// ReplaceDrawing discards the raster and the log and replays list in the
// given order. A non-nil palette becomes the sender's palette first.
func (s *Session) ReplaceDrawing(userID string, list []state.MicroStroke, colors []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if colors != nil {
		s.peers[userID] = palette.FromColors(colors)
	}
	s.reset()
	for _, m := range list {
		s.apply(userID, m)
	}
	glog.Infof("[session] drawing replaced by %s: %d entries, %d strokes", userID, len(list), len(s.log))
}

// Clear resets the raster and the log. Palettes and stroke ids are kept.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// UpdatePeerPalette records the palette a peer announced.
func (s *Session) UpdatePeerPalette(userID string, colors []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[userID] = palette.FromColors(colors)
}

// apply draws one remote entry and records it in the log. Caller holds mu.
func (s *Session) apply(userID string, m state.MicroStroke) {
	switch m.Tool {
	case state.ToolFill:
		fill := s.resolve(userID, m.ColorIndex, m.Hex)
		seed := m.From()
		var orig string
		if m.Extended {
			orig = s.resolve(userID, m.OrigIndex, m.OrigHex)
		} else {
			orig = palette.Hex(s.canvas.PixelAt(seed.X, seed.Y))
		}
		s.canvas.Fill(seed.X, seed.Y, palette.ParseHex(fill))
		s.log = append(s.log, state.NewFill(fill, seed, orig))

	case state.ToolBrush, state.ToolEraser:
		var color string
		if m.Tool == state.ToolBrush {
			color = s.resolve(userID, m.ColorIndex, m.Hex)
		}
		s.canvas.DrawSegment(m.Tool, palette.ParseHex(color), m.Width, m.From(), m.To())
		s.record(m, color)

	default:
		glog.V(1).Infof("[session] skip %s from %s", m.Tool, userID)
	}
}

// resolve picks the color of a remote entry: the hex backup when usable,
// then the sender's announced palette, then the local one.
func (s *Session) resolve(userID string, index int, hex string) string {
	if palette.Valid(hex) {
		return hex
	}
	if p, ok := s.peers[userID]; ok {
		return p.ColorOf(index)
	}
	return s.palette.ColorOf(index)
}

// record folds a remote segment into the log. Segments of one gesture share
// a single log entry whose points follow sequence order.
func (s *Session) record(m state.MicroStroke, color string) {
	if m.StrokeID == nil {
		s.log = append(s.log, state.Stroke{
			Tool:   m.Tool,
			Color:  color,
			Width:  m.Width,
			Points: chain(nil, m),
		})
		return
	}

	id := *m.StrokeID
	a, ok := s.remote[id]
	if !ok {
		s.log = append(s.log, state.Stroke{ID: id, Tool: m.Tool, Color: color, Width: m.Width})
		a = &assembly{index: len(s.log) - 1}
		s.remote[id] = a
	}

	entry := &s.log[a.index]
	if a.insert(m) {
		entry.Points = chain(entry.Points, m)
		return
	}
	entry.Points = nil
	for _, seg := range a.segs {
		entry.Points = chain(entry.Points, seg)
	}
}

// insert places m by sequence number and reports whether it went last.
func (a *assembly) insert(m state.MicroStroke) bool {
	i := len(a.segs)
	if m.Sequence != nil {
		for i > 0 && a.segs[i-1].Sequence != nil && *a.segs[i-1].Sequence > *m.Sequence {
			i--
		}
	}
	a.segs = slices.Insert(a.segs, i, m)
	return i == len(a.segs)-1
}

// chain extends a polyline with a segment, skipping repeated joints.
func chain(points []state.Point, m state.MicroStroke) []state.Point {
	from, to := m.From(), m.To()
	if len(points) == 0 || points[len(points)-1] != from {
		points = append(points, from)
	}
	if points[len(points)-1] != to {
		points = append(points, to)
	}
	return points
}
