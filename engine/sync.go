package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"designdeck/core"
)

// SyncCallbacks deliver inbound relay traffic to the session. All callbacks
// fire from transport goroutines; the session serializes them internally.
type SyncCallbacks struct {
	OnPatch         func(core.Patch)
	OnPresence      func(core.Presence)
	OnPresenceLeave func(collaboratorID string)
	OnConnect       func()
	OnDisconnect    func()
}

// SyncChannel owns the single logical relay connection for one design
// session. Outbound, it stamps local patches with the collaborator's origin
// id and a monotonically increasing sequence number. Inbound, it enforces
// the conflict policy: per origin and per element, a patch with a sequence
// number at or below the last one applied from that origin is stale and
// dropped, so a collaborator's own edits never apply out of their intended
// order even when the relay delivers them out of order. Concurrent updates
// from different origins are resolved purely by arrival order; the last one
// applied wins.
type SyncChannel struct {
	transport Transport
	origin    string
	limiter   *rate.Limiter

	mu       sync.Mutex
	designID string
	nextSeq  uint64
	lastSeen map[string]map[string]uint64 // origin -> element id -> seq
}

// Design-level patches (reorder) share one sequence slot per origin.
const designSeqKey = "\x00design"

// NewSyncChannel wraps a transport for the given local collaborator id.
func NewSyncChannel(t Transport, origin string, opts Options) *SyncChannel {
	opts = opts.withDefaults()
	return &SyncChannel{
		transport: t,
		origin:    origin,
		limiter:   rate.NewLimiter(opts.PresenceRate, opts.PresenceBurst),
		lastSeen:  make(map[string]map[string]uint64),
	}
}

// Bind registers the inbound handlers. Call once, before Connect.
func (c *SyncChannel) Bind(cb SyncCallbacks) {
	for _, event := range core.PatchEvents {
		c.transport.On(event, func(payload []byte) {
			c.handlePatch(payload, cb.OnPatch)
		})
	}
	c.transport.On(core.EventPresenceUpdate, func(payload []byte) {
		c.handlePresence(payload, cb.OnPresence)
	})
	c.transport.On(core.EventPresenceLeave, func(payload []byte) {
		var msg struct {
			CollaboratorID string `json:"collaboratorId"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil || msg.CollaboratorID == "" {
			logrus.WithError(err).Debug("Dropping malformed presence-leave")
			return
		}
		if cb.OnPresenceLeave != nil {
			cb.OnPresenceLeave(msg.CollaboratorID)
		}
	})
	c.transport.On(core.EventConnect, func([]byte) {
		if cb.OnConnect != nil {
			cb.OnConnect()
		}
	})
	c.transport.On(core.EventDisconnect, func([]byte) {
		if cb.OnDisconnect != nil {
			cb.OnDisconnect()
		}
	})
}

// Connect dials the underlying transport.
func (c *SyncChannel) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// Close tears the transport down.
func (c *SyncChannel) Close() error {
	return c.transport.Close()
}

// Join subscribes to a design's room. The connection carries one design at a
// time; joining another design leaves the current one first. Inbound
// sequence bookkeeping is reset because sequence numbers are only meaningful
// within one room.
func (c *SyncChannel) Join(designID string) error {
	c.mu.Lock()
	previous := c.designID
	c.designID = designID
	c.lastSeen = make(map[string]map[string]uint64)
	c.mu.Unlock()

	if previous != "" && previous != designID {
		if err := c.transport.Leave(previous); err != nil {
			logrus.WithFields(logrus.Fields{
				"design_id": previous,
				"error":     err,
			}).Warn("Failed to leave previous design room")
		}
	}
	return c.transport.Join(designID)
}

// Leave unsubscribes from the joined design.
func (c *SyncChannel) Leave() error {
	c.mu.Lock()
	designID := c.designID
	c.designID = ""
	c.mu.Unlock()
	if designID == "" {
		return nil
	}
	return c.transport.Leave(designID)
}

// DesignID returns the currently joined design id, or "".
func (c *SyncChannel) DesignID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.designID
}

// BroadcastPatch stamps the patch with this channel's origin and next
// sequence number and sends it. Fire-and-forget: a send failure is logged,
// not retried — correctness does not depend on every patch landing, the
// periodic full-state resync is the safety net.
func (c *SyncChannel) BroadcastPatch(p core.Patch) error {
	c.mu.Lock()
	if c.designID == "" {
		c.mu.Unlock()
		return core.ErrNotJoined
	}
	c.nextSeq++
	p.Origin = c.origin
	p.Seq = c.nextSeq
	c.mu.Unlock()

	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := c.transport.Send(p.Event(), payload); err != nil {
		logrus.WithFields(logrus.Fields{
			"kind":       p.Kind,
			"element_id": p.ElementID,
			"seq":        p.Seq,
			"error":      err,
		}).Warn("Patch broadcast failed, relying on resync")
	}
	return nil
}

// BroadcastPresence sends the local collaborator's presence, rate-limited.
// Updates beyond the configured rate are silently dropped; a fresher cursor
// position always follows.
func (c *SyncChannel) BroadcastPresence(p core.Presence) error {
	c.mu.Lock()
	joined := c.designID != ""
	c.mu.Unlock()
	if !joined {
		return core.ErrNotJoined
	}
	if !c.limiter.Allow() {
		return nil
	}
	p.CollaboratorID = c.origin
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := c.transport.Send(core.EventPresenceUpdate, payload); err != nil {
		logrus.WithError(err).Debug("Presence broadcast failed")
	}
	return nil
}

// BroadcastLeave announces an orderly departure from the room.
func (c *SyncChannel) BroadcastLeave() {
	payload, _ := json.Marshal(map[string]string{"collaboratorId": c.origin})
	if err := c.transport.Send(core.EventPresenceLeave, payload); err != nil {
		logrus.WithError(err).Debug("Leave broadcast failed")
	}
}

func (c *SyncChannel) handlePatch(payload []byte, deliver func(core.Patch)) {
	var p core.Patch
	if err := json.Unmarshal(payload, &p); err != nil {
		logrus.WithError(err).Warn("Dropping malformed patch")
		return
	}
	if p.Origin == c.origin {
		// Our own patch reflected back by the relay; already applied locally.
		return
	}
	if !c.admit(p) {
		logrus.WithFields(logrus.Fields{
			"origin":     p.Origin,
			"element_id": p.ElementID,
			"seq":        p.Seq,
		}).Debug("Dropping stale out-of-order patch")
		return
	}
	if deliver != nil {
		deliver(p)
	}
}

// admit applies the same-origin ordering override: within one origin and one
// target, only strictly increasing sequence numbers pass.
func (c *SyncChannel) admit(p core.Patch) bool {
	key := p.ElementID
	if p.Kind == core.PatchReorder {
		key = designSeqKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	byElement, ok := c.lastSeen[p.Origin]
	if !ok {
		byElement = make(map[string]uint64)
		c.lastSeen[p.Origin] = byElement
	}
	if p.Seq != 0 && p.Seq <= byElement[key] {
		return false
	}
	if p.Seq > byElement[key] {
		byElement[key] = p.Seq
	}
	return true
}

func (c *SyncChannel) handlePresence(payload []byte, deliver func(core.Presence)) {
	var p core.Presence
	if err := json.Unmarshal(payload, &p); err != nil {
		logrus.WithError(err).Debug("Dropping malformed presence update")
		return
	}
	if p.CollaboratorID == "" || p.CollaboratorID == c.origin {
		return
	}
	if deliver != nil {
		deliver(p)
	}
}
