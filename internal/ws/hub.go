package ws

import (
	"encoding/json"
	"sync"
)

// RoomHub tracks which sockets are attached to which room group.
type RoomHub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewRoomHub() *RoomHub {
	return &RoomHub{rooms: make(map[string]map[*Client]struct{})}
}

func (h *RoomHub) Join(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[roomID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.rooms[roomID] = clients
	}
	clients[c] = struct{}{}
}

func (h *RoomHub) Leave(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *RoomHub) ClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Broadcast sends a payload to every socket in the room group,
// including the sender's own.
func (h *RoomHub) Broadcast(roomID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.enqueue(data)
	}
}
