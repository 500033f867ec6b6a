// Package hub relays room events between websocket clients. Each room keeps
// a headless session that applies every event, so a late joiner starts
// from the current drawing and the drawing can be exported at any time.
package hub

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"LiveBoard/internal/batch"
	"LiveBoard/internal/export"
	lbnet "LiveBoard/internal/net"
	"LiveBoard/internal/session"
)

type Options struct {
	Width     int
	Height    int
	Transport lbnet.Settings
}

type Hub struct {
	opts     Options
	id       string
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	id      string
	session *session.Session
	peers   *lbnet.PeerManager

	// relay serialises apply-and-broadcast against join, so a joiner's
	// sync and the frames relayed to it never overlap
	relay sync.Mutex
}

func New(opts Options) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		opts: opts,
		id:   "hub-" + ulid.Make().String(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[string]*room),
	}
}

// Handler routes the room endpoints and logs every request.
func (h *Hub) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			glog.Infof("[hub] %s %s %d %s", request.Method, request.URL, m.Code, m.Duration)
		})
	})

	r.Methods(http.MethodGet).Path("/rooms/{room}/ws").HandlerFunc(h.serveWS)
	r.Methods(http.MethodGet).Path("/rooms/{room}/export").HandlerFunc(h.serveExport)
	r.Methods(http.MethodGet).Path("/rooms/{room}/snapshot.png").HandlerFunc(h.serveSnapshot)
	return r
}

// Room returns the session of a room, creating it on first use.
func (h *Hub) Room(id string) (*session.Session, error) {
	rm, err := h.room(id)
	if err != nil {
		return nil, err
	}
	return rm.session, nil
}

func (h *Hub) room(id string) (*room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rm, ok := h.rooms[id]; ok {
		return rm, nil
	}
	sess, err := session.New(session.Options{
		RoomID:    id,
		UserID:    h.id,
		Width:     h.opts.Width,
		Height:    h.opts.Height,
		Scheduler: batch.DefaultConfig(),
	})
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", id, err)
	}
	rm := &room{id: id, session: sess, peers: lbnet.NewPeerManager()}
	h.rooms[id] = rm
	glog.Infof("[hub] room %s opened", id)
	return rm, nil
}

func (h *Hub) lookup(id string) (*room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm, ok := h.rooms[id]
	return rm, ok
}

// Close disconnects every peer.
func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rm := range h.rooms {
		rm.session.Close()
	}
}

func (h *Hub) serveWS(writer http.ResponseWriter, request *http.Request) {
	rm, err := h.room(mux.Vars(request)["room"])
	if err != nil {
		glog.Errorf("[hub] %s", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		glog.Infof("[hub] failed to upgrade: %s", err)
		return
	}

	peer := lbnet.NewPeer(h.ctx, conn, h.opts.Transport)
	if err := rm.join(peer); err != nil {
		glog.Errorf("[hub] sync for %s: %s", rm.id, err)
		conn.Close()
		return
	}
	defer rm.peers.Remove(peer)

	err = peer.Run(func(env lbnet.Envelope, frame []byte) {
		rm.relay.Lock()
		defer rm.relay.Unlock()
		if err := rm.session.HandleEvent(env.Event, env.Payload); err != nil {
			glog.Infof("[hub] %s from %s: %s", env.Event, peer.ID, err)
			return
		}
		n := rm.peers.Broadcast(frame, peer)
		glog.V(2).Infof("[hub] %s relayed to %d", env.Event, n)
	})
	if err != nil {
		glog.Infof("[hub] peer %s: %s", peer.ID, err)
	}
}

// join queues the current drawing for peer and adds it to the room.
func (rm *room) join(peer *lbnet.Peer) error {
	rm.relay.Lock()
	defer rm.relay.Unlock()
	frame, err := lbnet.Frame(lbnet.EventDrawingSync, rm.session.SyncPayload())
	if err != nil {
		return err
	}
	if err := peer.Send(frame); err != nil {
		return err
	}
	rm.peers.Add(peer)
	return nil
}

func (h *Hub) serveExport(writer http.ResponseWriter, request *http.Request) {
	rm, ok := h.lookup(mux.Vars(request)["room"])
	if !ok {
		writer.WriteHeader(http.StatusNotFound)
		return
	}
	width, height := rm.session.Size()
	f, err := export.Build(rm.session.Strokes(), width, height, time.Now())
	if err != nil {
		glog.Errorf("[hub] export %s: %s", rm.id, err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	data, err := f.Marshal()
	if err != nil {
		glog.Errorf("[hub] export %s: %s", rm.id, err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	if _, err := writer.Write(data); err != nil {
		glog.Infof("[hub] failed to write out: %s", err)
	}
}

func (h *Hub) serveSnapshot(writer http.ResponseWriter, request *http.Request) {
	rm, ok := h.lookup(mux.Vars(request)["room"])
	if !ok {
		writer.WriteHeader(http.StatusNotFound)
		return
	}
	width := 0
	if v := request.URL.Query().Get("width"); v != "" {
		var err error
		if width, err = strconv.Atoi(v); err != nil || width < 0 {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
	}
	writer.Header().Set("Content-Type", "image/png")
	if err := export.WritePNG(writer, rm.session.Image(), width); err != nil {
		glog.Infof("[hub] snapshot %s: %s", rm.id, err)
	}
}
