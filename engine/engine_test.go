package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"designdeck/core"
)

// fakeTransport is an in-memory Transport. Tests drive inbound traffic with
// deliver and inspect outbound traffic through sent.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]Handler
	sent     []fakeMessage
	joined   []string
	left     []string
	closed   bool
}

type fakeMessage struct {
	event   string
	payload []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]Handler)}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.deliver(core.EventConnect, nil)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) Join(designID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, designID)
	return nil
}

func (f *fakeTransport) Leave(designID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, designID)
	return nil
}

func (f *fakeTransport) Send(event string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return core.ErrTransportClosed
	}
	f.sent = append(f.sent, fakeMessage{event: event, payload: payload})
	return nil
}

func (f *fakeTransport) On(event string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = h
}

// deliver simulates an inbound relay event.
func (f *fakeTransport) deliver(event string, payload []byte) {
	f.mu.Lock()
	h := f.handlers[event]
	f.mu.Unlock()
	if h != nil {
		h(payload)
	}
}

func (f *fakeTransport) sentEvents(event string) []fakeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeMessage
	for _, m := range f.sent {
		if m.event == event {
			out = append(out, m)
		}
	}
	return out
}

// deliverPatch marshals and delivers a patch on its event.
func (f *fakeTransport) deliverPatch(t *testing.T, p core.Patch) {
	t.Helper()
	payload, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal patch: %v", err)
	}
	f.deliver(p.Event(), payload)
}

// fakeFetcher serves a configurable design document.
type fakeFetcher struct {
	mu     sync.Mutex
	design *core.Design
	err    error
	calls  int
}

func (f *fakeFetcher) FetchDesign(ctx context.Context, id string) (*core.Design, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.design.Clone(), nil
}

func (f *fakeFetcher) set(d *core.Design, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.design = d
	f.err = err
}

type fakeSaver struct {
	mu    sync.Mutex
	saved []*core.Design
}

func (f *fakeSaver) SaveDesign(ctx context.Context, d *core.Design) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, d.Clone())
	return nil
}

// waitFor polls until the condition holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func rectElement(id string, x, y float64) core.Element {
	return core.Element{
		ID:       id,
		Type:     core.ElementRect,
		Geometry: core.Geometry{X: x, Y: y, Width: 100, Height: 80},
		Opacity:  1,
		Shape:    &core.ShapeProps{Fill: "#ff0000", Stroke: "#000000", StrokeWidth: 1},
	}
}

func emptyDesign(id string) *core.Design {
	return &core.Design{
		ID:       id,
		Name:     "test design",
		Width:    1920,
		Height:   1080,
		Elements: make(map[string]core.Element),
		Order:    []string{},
	}
}

// checkInvariant verifies that order and elements reference each other
// exactly once.
func checkInvariant(t *testing.T, s *ElementStore) {
	t.Helper()
	elements := s.Elements()
	order := s.Order()
	if len(order) != len(elements) {
		t.Fatalf("invariant broken: %d order entries, %d elements", len(order), len(elements))
	}
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if seen[id] {
			t.Fatalf("invariant broken: id %s appears twice in order", id)
		}
		seen[id] = true
		if _, ok := elements[id]; !ok {
			t.Fatalf("invariant broken: order entry %s has no element", id)
		}
	}
}
