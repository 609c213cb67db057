package websocket

import (
	"sync"
)

// Hub tracks connections and their room memberships and is the single
// sequencing point for fan-out: every broadcast happens under one lock, so
// all recipients observe one total order consistent with the order the hub
// accepted the events.
type Hub struct {
	mu          sync.Mutex
	clients     map[string]*Client
	rooms       map[string]map[string]*Client
	clientRooms map[string]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		rooms:       make(map[string]map[string]*Client),
		clientRooms: make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.clientRooms[client.ID] = make(map[string]struct{})
	incConnections()
}

// Unregister drops the client and releases every room membership it held.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(client.ID)
}

// Join is idempotent; joining a room twice leaves a single membership.
func (h *Hub) Join(roomID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	room := h.rooms[roomID]
	if room == nil {
		room = make(map[string]*Client)
		h.rooms[roomID] = room
		setRooms(len(h.rooms))
	}
	room[client.ID] = client
	h.clientRooms[client.ID][roomID] = struct{}{}
}

func (h *Hub) Leave(roomID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(roomID, client.ID)
}

func (h *Hub) IsMember(roomID, clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.rooms[roomID][clientID]
	return ok
}

// Send delivers an event to a single connection through the hub lock so
// scoped replies stay ordered with broadcasts.
func (h *Hub) Send(client *Client, event OutEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliverLocked(client, &event)
}

// Broadcast fans the event out to every member of the room.
func (h *Hub) Broadcast(roomID string, event OutEvent) {
	h.BroadcastExcept(roomID, "", event)
}

// BroadcastExcept fans out to the room, skipping one connection (the typing
// sender does not hear itself).
func (h *Hub) BroadcastExcept(roomID, excludeClientID string, event OutEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for id, client := range h.rooms[roomID] {
		if id == excludeClientID {
			continue
		}
		if h.deliverLocked(client, &event) {
			delivered++
		}
	}
	if delivered > 0 {
		addDelivered(delivered)
	}
}

// BroadcastRooms fans out to the union of the rooms, delivering at most once
// per connection even when it is a member of several of them.
func (h *Hub) BroadcastRooms(roomIDs []string, event OutEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]struct{})
	delivered := 0
	for _, roomID := range roomIDs {
		for id, client := range h.rooms[roomID] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if h.deliverLocked(client, &event) {
				delivered++
			}
		}
	}
	if delivered > 0 {
		addDelivered(delivered)
	}
}

// deliverLocked enqueues without blocking; a connection that cannot keep up
// is dropped rather than allowed to stall the fan-out.
func (h *Hub) deliverLocked(client *Client, event *OutEvent) bool {
	if client == nil {
		return false
	}
	if _, ok := h.clients[client.ID]; !ok {
		return false
	}
	select {
	case client.Message <- event:
		return true
	default:
		h.dropLocked(client.ID)
		return false
	}
}

func (h *Hub) dropLocked(clientID string) {
	client, ok := h.clients[clientID]
	if !ok {
		return
	}
	for roomID := range h.clientRooms[clientID] {
		h.leaveLocked(roomID, clientID)
	}
	delete(h.clientRooms, clientID)
	delete(h.clients, clientID)
	close(client.Message)
	decConnections()
}

func (h *Hub) leaveLocked(roomID, clientID string) {
	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(room, clientID)
	if memberships, ok := h.clientRooms[clientID]; ok {
		delete(memberships, roomID)
	}
	if len(room) == 0 && roomID != AdminRoom {
		delete(h.rooms, roomID)
		setRooms(len(h.rooms))
	}
}
