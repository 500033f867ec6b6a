package session

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/golang/glog"

	lbnet "LiveBoard/internal/net"
	"LiveBoard/internal/state"
)

var ErrUnknownEvent = errors.New("unknown event")

var events = []string{
	lbnet.EventStrokeBatch,
	lbnet.EventSingleStroke,
	lbnet.EventCanvasClear,
	lbnet.EventDrawingSync,
	lbnet.EventPaletteSync,
}

// Attach subscribes the session to every room event on t and sends local
// changes through it from now on.
func (s *Session) Attach(t lbnet.Transport) {
	s.tmu.Lock()
	s.transport = t
	s.tmu.Unlock()

	for _, event := range events {
		t.On(event, func(payload []byte) {
			if err := s.HandleEvent(event, payload); err != nil {
				glog.Infof("[session] %s: %s", event, err)
			}
		})
	}
}

// HandleEvent decodes and applies one received event. Events sent by this
// session's own user are ignored.
func (s *Session) HandleEvent(event string, payload []byte) error {
	switch event {
	case lbnet.EventStrokeBatch:
		var p lbnet.StrokeBatch
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		if s.own(p.UserID) {
			return nil
		}
		glog.V(2).Infof("[session] batch of %d from %s", len(p.Strokes), p.UserID)
		s.ApplyBatch(p.UserID, p.Strokes)

	case lbnet.EventSingleStroke:
		var p lbnet.SingleStroke
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		if s.own(p.UserID) {
			return nil
		}
		s.ApplySingle(p.UserID, p.Type, p.Stroke)

	case lbnet.EventCanvasClear:
		var p lbnet.CanvasClear
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		if s.own(p.UserID) {
			return nil
		}
		glog.Infof("[session] canvas cleared by %s", p.UserID)
		s.Clear()

	case lbnet.EventDrawingSync:
		var p lbnet.DrawingSync
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		if s.own(p.UserID) {
			return nil
		}
		s.ReplaceDrawing(p.UserID, p.Strokes, p.ColorPalette)

	case lbnet.EventPaletteSync:
		var p lbnet.PaletteSync
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		if s.own(p.UserID) {
			return nil
		}
		s.UpdatePeerPalette(p.UserID, p.ColorPalette)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
	return nil
}

func (s *Session) own(userID string) bool {
	return userID == s.userID
}

// SyncPayload describes the whole drawing for a late joiner. Brush and
// eraser strokes expand to consecutive segments, fills to extended fills,
// and the palette the indices refer to travels along.
func (s *Session) SyncPayload() lbnet.DrawingSync {
	s.mu.Lock()
	defer s.mu.Unlock()

	var strokes state.MicroStrokes
	for _, st := range s.log {
		switch st.Tool {
		case state.ToolFill:
			strokes = append(strokes, state.NewFillMicro(
				s.palette.IndexOf(st.Color), st.Seed(),
				s.palette.IndexOf(st.OriginalColor), st.Color, st.OriginalColor,
			))
		case state.ToolBrush, state.ToolEraser:
			ci := 0
			if st.Tool == state.ToolBrush {
				ci = s.palette.IndexOf(st.Color)
			}
			segs := st.Segments(ci)
			if st.ID == 0 {
				// unordered remote strokes must not merge on the receiving side
				for i := range segs {
					segs[i].StrokeID, segs[i].Sequence = nil, nil
				}
			}
			strokes = append(strokes, segs...)
		}
	}
	return lbnet.DrawingSync{
		RoomID:       s.roomID,
		UserID:       s.userID,
		Strokes:      strokes,
		ColorPalette: s.palette.Colors(),
		Timestamp:    s.now().UnixMilli(),
	}
}

// emit sends one event when a transport is attached. Caller may hold mu.
func (s *Session) emit(event string, payload any) {
	s.tmu.RLock()
	t := s.transport
	s.tmu.RUnlock()
	if t == nil {
		glog.V(2).Infof("[session] no transport, %s stays local", event)
		return
	}
	if err := t.Emit(event, payload); err != nil {
		glog.Warningf("[session] emit %s: %s", event, err)
	}
}

func (s *Session) emitBatch(batch []state.MicroStroke) {
	s.emit(lbnet.EventStrokeBatch, lbnet.StrokeBatch{
		RoomID:    s.roomID,
		UserID:    s.userID,
		Strokes:   batch,
		Timestamp: s.now().UnixMilli(),
	})
}

func (s *Session) emitPalette() {
	s.emit(lbnet.EventPaletteSync, lbnet.PaletteSync{
		RoomID:       s.roomID,
		UserID:       s.userID,
		ColorPalette: s.palette.Colors(),
		Timestamp:    s.now().UnixMilli(),
	})
}
