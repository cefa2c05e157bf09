package engine

import "context"

// Handler receives the raw payload of one relay event. Lifecycle events
// (connect, disconnect) carry a nil payload.
type Handler func(payload []byte)

// Transport is the engine's view of the realtime relay connection: a single
// explicitly-owned handle, constructed at session start, torn down at session
// end, and injected so tests can substitute a fake.
//
// The relay offers best-effort delivery only: no ordering, no redelivery, no
// persistence of messages missed while disconnected. Implementations that
// reconnect automatically must emit core.EventDisconnect when the link drops
// and core.EventConnect when it is reestablished; the session re-joins and
// re-fetches authoritative state on every connect.
type Transport interface {
	// Connect dials the relay. Handlers registered via On fire from the
	// transport's own goroutines once connected.
	Connect(ctx context.Context) error

	// Close tears the connection down and stops any reconnection attempts.
	Close() error

	// Join subscribes this connection to a design's room. One design per
	// connection: joining a second design implies leaving the first.
	Join(designID string) error

	// Leave unsubscribes from a design's room.
	Leave(designID string) error

	// Send relays an event to the other members of the joined room.
	// Fire-and-forget: a lost message is not retried.
	Send(event string, payload []byte) error

	// On registers the handler for an event, replacing any previous one.
	// Must be called before Connect.
	On(event string, h Handler)
}
