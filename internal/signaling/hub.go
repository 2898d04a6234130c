package signaling

import (
	"log/slog"
	"sync"
	"unicode/utf8"
)

// Hub is the room registry of one signal node. It admits at most
// roomCapacity occupants per room, fixes initiator/responder roles by
// join order, relays opaque payloads between peers and deletes rooms the
// moment they empty. All room and membership state is owned by the hub
// and mutated only under its lock.
type Hub struct {
	logger *slog.Logger

	maxRoomIDLength int
	roomCapacity    int

	mutex sync.Mutex
	rooms map[string]*Room
}

// NewHub creates an empty room registry.
func NewHub(maxRoomIDLength, roomCapacity int, logger *slog.Logger) *Hub {
	return &Hub{
		logger:          logger,
		maxRoomIDLength: maxRoomIDLength,
		roomCapacity:    roomCapacity,
		rooms:           make(map[string]*Room),
	}
}

// Join admits a client into the named room. Validation or capacity
// failures are answered with a typed error frame and leave the client
// un-joined; a successful join is answered with an init frame carrying
// the client's role.
func (h *Hub) Join(c *Client, roomID string) {
	if roomID == "" || utf8.RuneCountInString(roomID) > h.maxRoomIDLength {
		c.enqueue(errorFrame(errInvalidRoomID))
		return
	}

	h.mutex.Lock()

	if c.roomID != "" {
		h.mutex.Unlock()
		c.enqueue(errorFrame(errAlreadyJoined))
		return
	}

	room, exists := h.rooms[roomID]
	if !exists {
		room = newRoom(roomID)
		h.rooms[roomID] = room
	}

	if room.size() >= h.roomCapacity {
		h.mutex.Unlock()
		c.enqueue(errorFrame(errRoomFull))
		return
	}

	initiator := room.size() == 0
	room.add(c)
	c.roomID = roomID
	c.isInitiator = initiator

	h.mutex.Unlock()

	h.logger.Info("Client joined room",
		slog.String("room", roomID),
		slog.String("client", c.remoteAddr),
		slog.Bool("initiator", initiator))

	c.enqueue(initFrame(initiator))
}

// Relay forwards the raw frame verbatim to every other occupant of the
// sender's room. Frames from un-joined connections are dropped.
func (h *Hub) Relay(c *Client, raw []byte) {
	h.mutex.Lock()

	if c.roomID == "" {
		h.mutex.Unlock()
		h.logger.Debug("Dropping frame from un-joined connection",
			slog.String("client", c.remoteAddr))
		return
	}

	room, exists := h.rooms[c.roomID]
	if !exists {
		h.mutex.Unlock()
		return
	}

	peers := room.others(c)
	h.mutex.Unlock()

	for _, peer := range peers {
		peer.enqueue(raw)
	}
}

// Leave removes a client from its room and deletes the room if it is now
// empty. Safe to call for clients that never joined.
func (h *Hub) Leave(c *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if c.roomID == "" {
		return
	}

	room, exists := h.rooms[c.roomID]
	if exists {
		room.remove(c)
		if room.size() == 0 {
			delete(h.rooms, c.roomID)
			h.logger.Info("Room deleted", slog.String("room", c.roomID))
		}
	}

	c.roomID = ""
}

// RoomCount reports the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.rooms)
}

// Occupants reports the occupant count of a room, zero if it does not
// exist.
func (h *Hub) Occupants(roomID string) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	room, exists := h.rooms[roomID]
	if !exists {
		return 0
	}
	return room.size()
}
