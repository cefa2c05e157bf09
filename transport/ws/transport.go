// Package ws implements engine.Transport over a websocket connection to the
// relay hub, with automatic reconnection.
package ws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"designdeck/core"
	"designdeck/engine"
)

// Frame is the relay hub's wire envelope: an event name, the room it applies
// to, and an opaque payload.
type Frame struct {
	Event string          `json:"event"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub control events. Everything else is relayed verbatim to room peers.
const (
	FrameJoin  = "join-design"
	FrameLeave = "leave-design"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	minRedialDelay = 250 * time.Millisecond
	maxRedialDelay = 15 * time.Second
)

// Transport is a reconnecting websocket client. On read failure it emits a
// disconnect event, redials with jittered exponential backoff, and emits a
// connect event once the link is back; the session re-joins its room and
// re-fetches authoritative state on every connect. Messages sent while the
// link is down are dropped, matching the relay's best-effort contract.
type Transport struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]engine.Handler
	room     string
	closed   bool
	started  bool
	done     chan struct{}
}

// New returns a transport for the given relay websocket URL
// (e.g. "ws://host:3002/ws").
func New(url string, header http.Header) *Transport {
	return &Transport{
		url:      url,
		header:   header,
		dialer:   websocket.DefaultDialer,
		handlers: make(map[string]engine.Handler),
		done:     make(chan struct{}),
	}
}

// On registers an event handler. Must be called before Connect.
func (t *Transport) On(event string, h engine.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[event] = h
}

// Connect dials the relay and starts the read and keepalive loops. Only the
// first call dials; subsequent reconnects are handled internally.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return core.ErrTransportClosed
	}
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.mu.Unlock()

	conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		t.mu.Lock()
		t.started = false
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)
	go t.pingLoop(conn)
	t.emit(core.EventConnect)
	return nil
}

// Close stops the transport and any pending redial.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	close(t.done)
	t.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(writeWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		return conn.Close()
	}
	return nil
}

// Join subscribes to a design room. The room is remembered only so that the
// hub-side state can be reestablished; the engine re-issues Join on every
// connect event, which is what actually restores it after a reconnect.
func (t *Transport) Join(designID string) error {
	t.mu.Lock()
	t.room = designID
	t.mu.Unlock()
	return t.writeFrame(Frame{Event: FrameJoin, Room: designID})
}

// Leave unsubscribes from a design room.
func (t *Transport) Leave(designID string) error {
	t.mu.Lock()
	if t.room == designID {
		t.room = ""
	}
	t.mu.Unlock()
	return t.writeFrame(Frame{Event: FrameLeave, Room: designID})
}

// Send relays an event to the joined room. Fire-and-forget.
func (t *Transport) Send(event string, payload []byte) error {
	t.mu.Lock()
	room := t.room
	t.mu.Unlock()
	return t.writeFrame(Frame{Event: event, Room: room, Data: payload})
}

func (t *Transport) writeFrame(f Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.ErrTransportClosed
	}
	if t.conn == nil {
		return core.ErrTransportClosed
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(f)
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(1 << 22)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.mu.Lock()
			closed := t.closed
			if t.conn == conn {
				t.conn = nil
			}
			t.mu.Unlock()
			_ = conn.Close()

			if closed {
				return
			}
			logrus.WithError(err).Info("Relay link lost, reconnecting")
			t.emit(core.EventDisconnect)
			go t.redial()
			return
		}
		t.dispatch(f)
	}
}

func (t *Transport) dispatch(f Frame) {
	t.mu.Lock()
	h := t.handlers[f.Event]
	t.mu.Unlock()
	if h == nil {
		logrus.WithField("event", f.Event).Debug("No handler for relay event")
		return
	}
	h(f.Data)
}

// redial reconnects with jittered exponential backoff until it succeeds or
// the transport is closed.
func (t *Transport) redial() {
	delay := minRedialDelay
	for {
		select {
		case <-t.done:
			return
		case <-time.After(delay + time.Duration(rand.Int63n(int64(delay/2+1)))):
		}

		conn, _, err := t.dialer.Dial(t.url, t.header)
		if err == nil {
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				_ = conn.Close()
				return
			}
			t.conn = conn
			t.mu.Unlock()

			go t.readLoop(conn)
			go t.pingLoop(conn)
			t.emit(core.EventConnect)
			return
		}

		logrus.WithFields(logrus.Fields{
			"delay": delay,
			"error": err,
		}).Debug("Relay redial failed")
		delay *= 2
		if delay > maxRedialDelay {
			delay = maxRedialDelay
		}
	}
}

func (t *Transport) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.Lock()
			current := t.conn == conn
			t.mu.Unlock()
			if !current {
				return
			}
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (t *Transport) emit(event string) {
	t.mu.Lock()
	h := t.handlers[event]
	t.mu.Unlock()
	if h != nil {
		h(nil)
	}
}
