// Package transport carries the websocket side of the server: one
// Client per connection and a Hub that tracks connections and
// transport-level rooms for efficient broadcast. Room membership
// truth lives in the presence registry; the hub's rooms are kept in
// sync by the event router.
package transport

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/mindguard/signaling-server/internal/models"
)

// Hub indexes connected clients by connection id and groups them into
// transport rooms. It implements the emitter capability consumed by
// the event router and the relay.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

// Register adds a freshly upgraded connection.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Unregister drops a connection from the client index and from any
// transport room it is still part of.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, c.ID)
	for roomID, room := range h.rooms {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// JoinRoom adds the connection to a transport room.
func (h *Hub) JoinRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[roomID] = room
	}
	room[connID] = client
}

// LeaveRoom removes the connection from a transport room, dropping
// the room once empty.
func (h *Hub) LeaveRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(h.rooms, roomID)
	}
}

// EmitTo unicasts a named event to one connection.
func (h *Hub) EmitTo(connID, event string, payload any) error {
	data, err := encode(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		slog.Debug("emit to unknown connection", "conn", connID, "event", event)
		return nil
	}

	client.enqueue(data)
	return nil
}

// EmitToRoomExcept broadcasts a named event to every member of a
// transport room except the sender.
func (h *Hub) EmitToRoomExcept(roomID, senderID, event string, payload any) {
	data, err := encode(event, payload)
	if err != nil {
		slog.Error("failed to encode broadcast", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for connID, client := range h.rooms[roomID] {
		if connID == senderID {
			continue
		}
		client.enqueue(data)
	}
}

func encode(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = encoded
	}
	return json.Marshal(models.Envelope{Event: event, Data: data})
}
