// Package session keeps one participant's view of a shared drawing in sync.
//
// A Session owns the raster, the stroke log, the palette and the palettes
// last announced by each peer. Local input is drawn first and then sent
// through the batch scheduler; remote events are ordered and applied to the
// same raster and log.
package session

import (
	"cmp"
	"errors"
	"fmt"
	"image"
	"slices"
	"sync"
	"time"

	"LiveBoard/internal/batch"
	lbnet "LiveBoard/internal/net"
	"LiveBoard/internal/palette"
	"LiveBoard/internal/raster"
	"LiveBoard/internal/state"
)

var ErrNoGesture = errors.New("no gesture in progress")

type Options struct {
	RoomID    string
	UserID    string
	Width     int
	Height    int
	Scheduler batch.Config
	// Clock drives the scheduler; nil means the wall clock.
	Clock batch.Clock
}

type Session struct {
	roomID string
	userID string
	now    func() time.Time

	ids   *state.IDSource
	sched *batch.Scheduler

	tmu       sync.RWMutex
	transport lbnet.Transport

	mu      sync.Mutex
	canvas  *raster.Canvas
	palette *palette.Palette
	peers   map[string]*palette.Palette
	log     []state.Stroke
	remote  map[state.StrokeID]*assembly
	active  *state.Builder
	// palette index of the active gesture's color
	activeIndex int
}

// assembly collects the segments of one remote gesture so its log entry can
// be rebuilt in sequence order whatever order they arrived in.
type assembly struct {
	index int
	segs  []state.MicroStroke
}

// New creates a session with a blank canvas. A non-positive size has no
// surface to draw on and is an error.
func New(opts Options) (*Session, error) {
	canvas, err := raster.NewCanvas(opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}
	if opts.UserID == "" {
		opts.UserID = state.NewUserID()
	}
	s := &Session{
		roomID:  opts.RoomID,
		userID:  opts.UserID,
		now:     time.Now,
		ids:     state.NewIDSource(),
		canvas:  canvas,
		palette: palette.New(),
		peers:   make(map[string]*palette.Palette),
		remote:  make(map[state.StrokeID]*assembly),
	}
	s.sched = batch.New(opts.Scheduler, opts.Clock, s.emitBatch)
	return s, nil
}

func (s *Session) RoomID() string { return s.roomID }
func (s *Session) UserID() string { return s.userID }

func (s *Session) Size() (int, int) {
	return s.canvas.Width(), s.canvas.Height()
}

// Close stops the scheduler timers. Segments not yet sent are dropped.
func (s *Session) Close() {
	s.sched.Close()
}

// Stats reports the batch scheduler counters.
func (s *Session) Stats() batch.Stats {
	return s.sched.Stats()
}

// Image returns a copy of the current raster.
func (s *Session) Image() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvas.Image()
}

// Strokes returns a copy of the stroke log.
func (s *Session) Strokes() []state.Stroke {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]state.Stroke, len(s.log))
	for i, st := range s.log {
		out[i] = st.Clone()
	}
	return out
}

// Palette returns a snapshot of the local palette.
func (s *Session) Palette() []string {
	return s.palette.Colors()
}

// Order sorts the entries that carry both a stroke id and a sequence number
// by (strokeId, sequence) among the positions they occupy. Entries without
// that metadata keep their arrival positions. The input is not modified.
func Order(list []state.MicroStroke) []state.MicroStroke {
	out := slices.Clone(list)
	var slots []int
	var ordered []state.MicroStroke
	for i, m := range out {
		if m.Ordered() {
			slots = append(slots, i)
			ordered = append(ordered, m)
		}
	}
	slices.SortStableFunc(ordered, compareOrdered)
	for k, i := range slots {
		out[i] = ordered[k]
	}
	return out
}

func compareOrdered(a, b state.MicroStroke) int {
	if c := cmp.Compare(*a.StrokeID, *b.StrokeID); c != 0 {
		return c
	}
	return cmp.Compare(*a.Sequence, *b.Sequence)
}

// Load replaces the drawing with decoded strokes, as read from an export.
func (s *Session) Load(strokes []state.Stroke) error {
	for i, st := range strokes {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("stroke %d: %w", i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	for _, st := range strokes {
		s.render(st)
		s.log = append(s.log, st.Clone())
		if st.Tool == state.ToolBrush || st.Tool == state.ToolFill {
			s.palette.IndexOf(st.Color)
		}
	}
	return nil
}

// render draws a whole stroke. Caller holds mu.
func (s *Session) render(st state.Stroke) {
	switch st.Tool {
	case state.ToolFill:
		p := st.Seed()
		s.canvas.Fill(p.X, p.Y, palette.ParseHex(st.Color))
	default:
		col := palette.ParseHex(st.Color)
		if len(st.Points) == 1 {
			s.canvas.DrawSegment(st.Tool, col, st.Width, st.Points[0], st.Points[0])
		}
		for i := 1; i < len(st.Points); i++ {
			s.canvas.DrawSegment(st.Tool, col, st.Width, st.Points[i-1], st.Points[i])
		}
	}
}

// reset clears the raster and the log. Caller holds mu.
func (s *Session) reset() {
	s.canvas.Clear()
	s.log = nil
	clear(s.remote)
}
