package engine

import (
	"testing"

	"designdeck/core"
)

func snapshotWith(ids ...string) Snapshot {
	elements := make(map[string]core.Element, len(ids))
	order := make([]string, 0, len(ids))
	for _, id := range ids {
		elements[id] = rectElement(id, 0, 0)
		order = append(order, id)
	}
	return Snapshot{Elements: elements, Order: order}
}

func TestUndo_EmptyHistoryIsNoOp(t *testing.T) {
	h := NewHistoryManager(snapshotWith(), 10)
	if _, ok := h.Undo(); ok {
		t.Error("Undo() on empty past should report no-op")
	}
	if _, ok := h.Redo(); ok {
		t.Error("Redo() on empty future should report no-op")
	}
}

func TestUndoRedo_RestoresExactStates(t *testing.T) {
	h := NewHistoryManager(snapshotWith(), 10)

	states := []Snapshot{
		snapshotWith("a"),
		snapshotWith("a", "b"),
		snapshotWith("a", "b", "c"),
	}
	for _, st := range states {
		h.Record(st)
	}

	// Undo n times restores the state before the n-th mutation.
	for i := len(states) - 2; i >= 0; i-- {
		snap, ok := h.Undo()
		if !ok {
			t.Fatalf("Undo() failed at depth %d", i)
		}
		if len(snap.Order) != len(states[i].Order) {
			t.Errorf("Undo() restored %v, want %v", snap.Order, states[i].Order)
		}
	}
	snap, ok := h.Undo()
	if !ok {
		t.Fatal("final Undo() failed")
	}
	if len(snap.Order) != 0 {
		t.Errorf("final Undo() should restore the initial empty state, got %v", snap.Order)
	}

	// Redo walks forward through the same states.
	for i := range states {
		snap, ok := h.Redo()
		if !ok {
			t.Fatalf("Redo() failed at step %d", i)
		}
		if len(snap.Order) != len(states[i].Order) {
			t.Errorf("Redo() restored %v, want %v", snap.Order, states[i].Order)
		}
	}
	if _, ok := h.Redo(); ok {
		t.Error("Redo() past the newest state should report no-op")
	}
}

func TestRecord_AfterUndoDiscardsFuture(t *testing.T) {
	h := NewHistoryManager(snapshotWith(), 10)
	h.Record(snapshotWith("a"))
	h.Record(snapshotWith("a", "b"))

	if _, ok := h.Undo(); !ok {
		t.Fatal("Undo() failed")
	}
	if !h.CanRedo() {
		t.Fatal("future should be populated after an undo")
	}

	h.Record(snapshotWith("a", "x"))
	if h.CanRedo() {
		t.Error("Record() after Undo() must discard the redo branch")
	}
}

func TestHistory_BoundDropsOldestFirst(t *testing.T) {
	const limit = 3
	h := NewHistoryManager(snapshotWith(), limit)

	// Record 8 states with 1..8 elements.
	total := limit + 5
	ids := []string{}
	for i := 0; i < total; i++ {
		ids = append(ids, string(rune('a'+i)))
		h.Record(snapshotWith(ids...))
	}
	past, _ := h.Depth()
	if past != limit {
		t.Errorf("past depth = %d, want %d", past, limit)
	}

	// Only `limit` undos are possible, and the deepest reachable state is
	// the one `limit` steps back — everything older was dropped first.
	undos := 0
	var last Snapshot
	for {
		snap, ok := h.Undo()
		if !ok {
			break
		}
		last = snap
		undos++
	}
	if undos != limit {
		t.Errorf("possible undos = %d, want %d", undos, limit)
	}
	if len(last.Order) != total-limit {
		t.Errorf("deepest state has %d elements, want %d", len(last.Order), total-limit)
	}
}

func TestHistory_SnapshotsAreValueCopies(t *testing.T) {
	h := NewHistoryManager(snapshotWith(), 10)
	live := snapshotWith("a")
	h.Record(live)

	// Mutating the caller's snapshot must not reach into history.
	el := live.Elements["a"]
	el.Geometry.X = 999
	live.Elements["a"] = el

	h.Record(snapshotWith("a", "b"))
	snap, ok := h.Undo()
	if !ok {
		t.Fatal("Undo() failed")
	}
	if snap.Elements["a"].Geometry.X != 0 {
		t.Error("history entry was mutated through the caller's snapshot")
	}
}

func TestReset_DropsBothStacks(t *testing.T) {
	h := NewHistoryManager(snapshotWith(), 10)
	h.Record(snapshotWith("a"))
	h.Record(snapshotWith("a", "b"))
	h.Undo()

	h.Reset(snapshotWith("z"))
	if h.CanUndo() || h.CanRedo() {
		t.Error("Reset() must clear both stacks")
	}
}
