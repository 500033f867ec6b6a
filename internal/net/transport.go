package net

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

var ErrPeerClosed = errors.New("peer closed")

type Settings struct {
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration
	SendBuffer   int
}

func DefaultSettings() Settings {
	return Settings{
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  60 * time.Second,
		PingInterval: 20 * time.Second,
		SendBuffer:   256,
	}
}

// Peer is one websocket connection. Frames queued with Send are written by a
// single writer goroutine; received frames are handed to the Run callback
// in arrival order.
type Peer struct {
	ID string

	conn     *websocket.Conn
	settings Settings
	send     chan []byte
	ctx      context.Context
	cancel   context.CancelFunc
}

// withDefaults fills unset fields from DefaultSettings.
func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = def.WriteTimeout
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = def.ReadTimeout
	}
	if s.PingInterval <= 0 {
		s.PingInterval = def.PingInterval
	}
	if s.SendBuffer <= 0 {
		s.SendBuffer = def.SendBuffer
	}
	return s
}

func NewPeer(ctx context.Context, conn *websocket.Conn, settings Settings) *Peer {
	settings = settings.withDefaults()
	cancelCtx, cancel := context.WithCancel(ctx)
	return &Peer{
		ID:       ulid.Make().String(),
		conn:     conn,
		settings: settings,
		send:     make(chan []byte, settings.SendBuffer),
		ctx:      cancelCtx,
		cancel:   cancel,
	}
}

func (p *Peer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}

// Send queues a frame for writing. A peer whose buffer is full is too slow
// to keep an ordered stream, so it is closed instead of dropping the frame.
func (p *Peer) Send(frame []byte) error {
	select {
	case <-p.ctx.Done():
		return ErrPeerClosed
	default:
	}
	select {
	case p.send <- frame:
		return nil
	case <-p.ctx.Done():
		return ErrPeerClosed
	default:
		glog.Infof("[ws]%s send buffer full, closing", p.ID)
		p.Close()
		return fmt.Errorf("%w: send buffer full", ErrPeerClosed)
	}
}

// Run reads frames until the connection fails or the peer is closed.
func (p *Peer) Run(handle func(env Envelope, frame []byte)) error {
	written := make(chan struct{})
	go func() {
		defer close(written)
		p.writeLoop()
	}()
	defer func() {
		p.cancel()
		<-written
	}()

	p.conn.SetReadDeadline(time.Now().Add(p.settings.ReadTimeout))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(p.settings.ReadTimeout))
	})

	for {
		messageType, message, err := p.conn.ReadMessage()
		if err != nil {
			if p.ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			glog.Infof("[ws]%s<- error = %s", p.ID, err)
			return fmt.Errorf("read: %w", err)
		}
		p.conn.SetReadDeadline(time.Now().Add(p.settings.ReadTimeout))

		if messageType != websocket.TextMessage {
			glog.V(2).Infof("[ws]%s<- other=%d", p.ID, messageType)
			continue
		}
		env, err := ParseFrame(message)
		if err != nil {
			glog.Infof("[ws]%s<- drop: %s", p.ID, err)
			continue
		}
		glog.V(2).Infof("[ws]%s<- %s", p.ID, env.Event)
		handle(env, message)
	}
}

func (p *Peer) writeLoop() {
	defer p.conn.Close()

	ticker := time.NewTicker(p.settings.PingInterval)
	defer ticker.Stop()

	write := func(frame []byte) bool {
		p.conn.SetWriteDeadline(time.Now().Add(p.settings.WriteTimeout))
		if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			// a websocket write deadline cannot be recovered
			glog.Infof("[ws]%s-> error = %s", p.ID, err)
			return false
		}
		return true
	}

	for {
		select {
		case <-p.ctx.Done():
			for {
				select {
				case frame := <-p.send:
					if !write(frame) {
						return
					}
				default:
					p.conn.WriteControl(
						websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(p.settings.WriteTimeout),
					)
					return
				}
			}
		case frame := <-p.send:
			if !write(frame) {
				p.cancel()
				return
			}
			glog.V(2).Infof("[ws]%s->", p.ID)
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(p.settings.WriteTimeout)); err != nil {
				p.cancel()
				return
			}
		}
	}
}

// Close stops the peer after writing the frames already queued.
func (p *Peer) Close() {
	p.cancel()
}

func (p *Peer) Done() <-chan struct{} {
	return p.ctx.Done()
}

// PeerManager tracks the connections of one room.
type PeerManager struct {
	peers map[string]*Peer
	mu    sync.RWMutex
}

func NewPeerManager() *PeerManager {
	return &PeerManager{
		peers: make(map[string]*Peer),
	}
}

func (pm *PeerManager) Add(peer *Peer) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.peers[peer.ID] = peer
	glog.Infof("[hub] peer %s joined from %s", peer.ID, peer.RemoteAddr())
}

func (pm *PeerManager) Remove(peer *Peer) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if _, ok := pm.peers[peer.ID]; ok {
		delete(pm.peers, peer.ID)
		glog.Infof("[hub] peer %s left", peer.ID)
	}
}

func (pm *PeerManager) Len() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.peers)
}

// Broadcast queues frame on every peer except the sender and returns the
// number of peers reached.
func (pm *PeerManager) Broadcast(frame []byte, except *Peer) int {
	pm.mu.RLock()
	targets := make([]*Peer, 0, len(pm.peers))
	for _, peer := range pm.peers {
		if peer != except {
			targets = append(targets, peer)
		}
	}
	pm.mu.RUnlock()

	n := 0
	for _, peer := range targets {
		if err := peer.Send(frame); err == nil {
			n++
		}
	}
	return n
}
