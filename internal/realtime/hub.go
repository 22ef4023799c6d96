package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Mirror receives a copy of every room broadcast (e.g. to forward it to Redis).
// Implementations must not block.
type Mirror interface {
	Mirror(code, event string, payload []byte)
}

// Hub maintains session code -> set of connections (a room) and fans messages out.
// Delivery is best effort: a client whose send buffer is full misses the message.
type Hub struct {
	// code -> clientID -> client
	rooms map[string]map[string]*Client
	// clientID -> codes the client has joined
	memberships map[string]map[string]struct{}
	mu          sync.RWMutex
	logger      *zap.Logger
	mirror      Mirror
}

// NewHub creates a new hub. mirror may be nil.
func NewHub(logger *zap.Logger, mirror Mirror) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:       make(map[string]map[string]*Client),
		memberships: make(map[string]map[string]struct{}),
		logger:      logger,
		mirror:      mirror,
	}
}

// Join subscribes a client to a session's room. Joining twice is a no-op.
func (h *Hub) Join(code string, c *Client) {
	h.mu.Lock()
	room := h.rooms[code]
	if room == nil {
		room = make(map[string]*Client)
		h.rooms[code] = room
	}
	room[c.ID] = c
	joined := h.memberships[c.ID]
	if joined == nil {
		joined = make(map[string]struct{})
		h.memberships[c.ID] = joined
	}
	joined[code] = struct{}{}
	size := len(room)
	h.mu.Unlock()
	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("code", code), zap.Int("room_size", size))
}

// Leave removes a client from one room.
func (h *Hub) Leave(code string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(code, c.ID)
}

// LeaveAll removes a client from every room it joined. Called on disconnect.
func (h *Hub) LeaveAll(c *Client) {
	h.mu.Lock()
	codes := make([]string, 0, len(h.memberships[c.ID]))
	for code := range h.memberships[c.ID] {
		codes = append(codes, code)
	}
	for _, code := range codes {
		h.leaveLocked(code, c.ID)
	}
	h.mu.Unlock()
	h.logger.Debug("client left rooms", zap.String("client_id", c.ID), zap.Strings("codes", codes))
}

func (h *Hub) leaveLocked(code, clientID string) {
	if room, ok := h.rooms[code]; ok {
		delete(room, clientID)
		if len(room) == 0 {
			delete(h.rooms, code)
		}
	}
	if joined, ok := h.memberships[clientID]; ok {
		delete(joined, code)
		if len(joined) == 0 {
			delete(h.memberships, clientID)
		}
	}
}

// BroadcastToRoom marshals payload once and queues it for every client in the room.
func (h *Hub) BroadcastToRoom(code, event string, payload interface{}) {
	data, err := encodePayload(payload)
	if err != nil {
		h.logger.Error("marshal broadcast", zap.String("event", event), zap.Error(err))
		return
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	for _, c := range h.rooms[code] {
		if !c.enqueue(msg) {
			h.logger.Debug("dropped message for slow client", zap.String("client_id", c.ID), zap.String("event", event))
		}
	}
	h.mu.RUnlock()

	if h.mirror != nil {
		h.mirror.Mirror(code, event, data)
	}
}

// SendToClient queues a message for a single client (replies and direct notices).
func (h *Hub) SendToClient(c *Client, event string, payload interface{}) {
	data, err := encodePayload(payload)
	if err != nil {
		h.logger.Error("marshal message", zap.String("event", event), zap.Error(err))
		return
	}
	c.enqueue(WSMessage{Event: event, Data: data})
}

// RoomSize returns the number of connected clients subscribed to a session.
func (h *Hub) RoomSize(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

func encodePayload(payload interface{}) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}
