package net

import (
	"fmt"

	"github.com/goccy/go-json"

	"LiveBoard/internal/state"
)

// Event names shared by every participant of a room.
const (
	EventStrokeBatch  = "stroke-batch"
	EventSingleStroke = "single-stroke"
	EventCanvasClear  = "canvas-clear"
	EventDrawingSync  = "drawing-sync"
	EventPaletteSync  = "color-palette-sync"
)

// Kinds carried by a single-stroke payload.
const (
	KindStroke = "stroke"
	KindFill   = "fill"
	KindClear  = "clear"
)

type StrokeBatch struct {
	RoomID    string             `json:"roomId"`
	UserID    string             `json:"userId"`
	Strokes   state.MicroStrokes `json:"strokes"`
	Timestamp int64              `json:"timestamp"`
}

type SingleStroke struct {
	RoomID    string             `json:"roomId"`
	UserID    string             `json:"userId"`
	Stroke    *state.MicroStroke `json:"stroke,omitempty"`
	Type      string             `json:"type"`
	Timestamp int64              `json:"timestamp"`
}

type CanvasClear struct {
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

type DrawingSync struct {
	RoomID       string             `json:"roomId"`
	UserID       string             `json:"userId"`
	Strokes      state.MicroStrokes `json:"strokes"`
	ColorPalette []string           `json:"colorPalette"`
	Timestamp    int64              `json:"timestamp"`
}

type PaletteSync struct {
	RoomID       string   `json:"roomId"`
	UserID       string   `json:"userId"`
	ColorPalette []string `json:"colorPalette"`
	Timestamp    int64    `json:"timestamp"`
}

// Envelope is one websocket text frame.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Handler receives the raw JSON payload of one event.
type Handler func(payload []byte)

// Transport is a publish/subscribe channel, reliable and ordered per
// connection. Handlers run on the transport's read goroutine, one at a time.
type Transport interface {
	Emit(event string, payload any) error
	On(event string, handler Handler)
}

// Frame encodes payload into an envelope for event.
func Frame(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// ParseFrame decodes the envelope of a received frame.
func ParseFrame(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("decode frame: missing event")
	}
	return env, nil
}
