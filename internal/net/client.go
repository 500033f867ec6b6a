package net

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// Client is the websocket Transport of one participant.
type Client struct {
	peer *Peer

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// Dial connects to a room url such as ws://host:8888/rooms/<room>/ws.
func Dial(ctx context.Context, url string, settings Settings) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	glog.Infof("[ws] connected to %s", url)
	return &Client{
		peer:     NewPeer(ctx, conn, settings),
		handlers: make(map[string][]Handler),
	}, nil
}

func (c *Client) Emit(event string, payload any) error {
	frame, err := Frame(event, payload)
	if err != nil {
		return err
	}
	return c.peer.Send(frame)
}

func (c *Client) On(event string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

// Run dispatches received events until the connection ends or ctx is done.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.peer.Close)
	defer stop()

	return c.peer.Run(func(env Envelope, _ []byte) {
		c.mu.RLock()
		handlers := c.handlers[env.Event]
		c.mu.RUnlock()
		if len(handlers) == 0 {
			glog.V(2).Infof("[ws] no handler for %s", env.Event)
		}
		for _, h := range handlers {
			h(env.Payload)
		}
	})
}

func (c *Client) Close() {
	c.peer.Close()
}

func (c *Client) Done() <-chan struct{} {
	return c.peer.Done()
}
