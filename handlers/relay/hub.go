// Package relay is the websocket relay hub: rooms keyed by design id with
// best-effort fan-out of patch and presence frames. The hub never inspects
// patch payloads and makes no ordering, delivery or replay guarantees;
// clients resynchronize through the persistence API after any gap.
package relay

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Frame mirrors the client envelope in transport/ws.
type Frame struct {
	Event string          `json:"event"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	frameJoin          = "join-design"
	frameLeave         = "leave-design"
	framePresence      = "presence-update"
	framePresenceLeave = "presence-leave"
)

// sendBuffer bounds the per-client outbound queue; a client that cannot keep
// up is dropped rather than allowed to stall the room.
const sendBuffer = 64

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Frame

	mu             sync.Mutex
	room           string
	collaboratorID string // learned from the last presence-update relayed
}

// Hub tracks which clients are in which design room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*client]struct{})}
}

// Occupancy returns the number of connected clients per design room.
func (h *Hub) Occupancy() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.rooms))
	for room, members := range h.rooms {
		out[room] = len(members)
	}
	return out
}

func (h *Hub) join(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) leave(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// broadcast fans a frame out to every room member except the sender. Clients
// with a full send queue miss the frame; that is within the relay's
// best-effort contract.
func (h *Hub) broadcast(sender *client, room string, f Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for member := range h.rooms[room] {
		if member == sender {
			continue
		}
		select {
		case member.send <- f:
		default:
			logrus.WithField("room", room).Warn("Dropping frame for slow relay client")
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The REST API enforces auth; the relay carries no persisted state, so
	// cross-origin websocket upgrades are allowed like the socket.io mount.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and runs the client until it disconnects.
func ServeWS(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithError(err).Warn("Websocket upgrade failed")
			return
		}
		c := &client{hub: hub, conn: conn, send: make(chan Frame, sendBuffer)}
		go c.writeLoop()
		c.readLoop()
	}
}

func (c *client) readLoop() {
	defer c.teardown()
	c.conn.SetReadLimit(1 << 22)

	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logrus.WithError(err).Debug("Relay client read error")
			}
			return
		}

		switch f.Event {
		case frameJoin:
			if f.Room == "" {
				continue
			}
			c.mu.Lock()
			previous := c.room
			c.room = f.Room
			c.mu.Unlock()
			if previous != "" && previous != f.Room {
				c.hub.leave(c, previous)
				c.announceLeave(previous)
			}
			c.hub.join(c, f.Room)
			logrus.WithField("design_id", f.Room).Debug("Relay client joined room")

		case frameLeave:
			c.mu.Lock()
			if c.room == f.Room {
				c.room = ""
			}
			c.mu.Unlock()
			c.hub.leave(c, f.Room)
			c.announceLeave(f.Room)

		default:
			c.mu.Lock()
			room := c.room
			c.mu.Unlock()
			if room == "" || f.Room != room {
				continue
			}
			if f.Event == framePresence {
				c.rememberCollaborator(f.Data)
			}
			c.hub.broadcast(c, room, f)
		}
	}
}

// rememberCollaborator extracts the sender's collaborator id from a presence
// frame so the hub can announce presence-leave when the socket drops without
// an orderly leave.
func (c *client) rememberCollaborator(data json.RawMessage) {
	var p struct {
		CollaboratorID string `json:"collaboratorId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.CollaboratorID == "" {
		return
	}
	c.mu.Lock()
	c.collaboratorID = p.CollaboratorID
	c.mu.Unlock()
}

func (c *client) announceLeave(room string) {
	c.mu.Lock()
	id := c.collaboratorID
	c.mu.Unlock()
	if id == "" {
		return
	}
	data, _ := json.Marshal(map[string]string{"collaboratorId": id})
	c.hub.broadcast(c, room, Frame{Event: framePresenceLeave, Room: room, Data: data})
}

func (c *client) teardown() {
	c.mu.Lock()
	room := c.room
	c.room = ""
	c.mu.Unlock()
	if room != "" {
		c.hub.leave(c, room)
		c.announceLeave(room)
	}
	close(c.send)
	_ = c.conn.Close()
}

func (c *client) writeLoop() {
	for f := range c.send {
		if err := c.conn.WriteJSON(f); err != nil {
			return
		}
	}
}
