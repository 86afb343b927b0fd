package ws

import (
	"encoding/json"
	"sync"
)

// Client is one open socket. Writes go through Send so the write loop
// owns the connection.
type Client struct {
	UserID uint
	RoomID string
	Send   chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(userID uint, roomID string) *Client {
	return &Client{
		UserID: userID,
		RoomID: roomID,
		Send:   make(chan []byte, 256),
	}
}

// Deliver queues a payload for this socket only. A slow client drops the
// frame rather than stalling the caller.
func (c *Client) Deliver(payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue drops the frame when the socket has already closed or its
// buffer is full; a departing client never panics the sender.
func (c *Client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}
