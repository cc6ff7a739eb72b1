package websocket

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn wraps a websocket connection with a write mutex so pipeline
// workers and the protocol adapter can write concurrently.
type Conn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// WriteFrame sends one JSON frame. Implements telephony.FrameWriter.
func (c *Conn) WriteFrame(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	return c.ws.WriteJSON(v)
}

// WriteBinary sends one binary message.
func (c *Conn) WriteBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// ReadMessage blocks for the next inbound message.
func (c *Conn) ReadMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

// Close shuts the socket; any later write fails fast.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.ws.Close()
}
