package engine

import (
	"errors"
	"reflect"
	"testing"

	"designdeck/core"
)

func TestCreateUpdateDelete_InvariantHolds(t *testing.T) {
	s := NewElementStore()

	s.Create(rectElement("a", 0, 0))
	checkInvariant(t, s)
	s.Create(rectElement("b", 10, 10))
	checkInvariant(t, s)

	x := 50.0
	if !s.Update("a", core.FieldSet{X: &x}) {
		t.Fatal("Update() of known element reported no-op")
	}
	checkInvariant(t, s)

	if !s.Delete("b") {
		t.Fatal("Delete() of known element reported no-op")
	}
	checkInvariant(t, s)

	if err := s.Reorder([]string{"a"}); err != nil {
		t.Fatalf("Reorder() failed: %v", err)
	}
	checkInvariant(t, s)
}

func TestUpdate_UnknownElementIsNoOp(t *testing.T) {
	s := NewElementStore()
	s.Create(rectElement("a", 0, 0))

	x := 10.0
	if s.Update("ghost", core.FieldSet{X: &x}) {
		t.Error("Update() of unknown element should report no-op")
	}
	checkInvariant(t, s)
}

func TestDelete_UnknownElementIsNoOp(t *testing.T) {
	s := NewElementStore()
	if s.Delete("ghost") {
		t.Error("Delete() of unknown element should report no-op")
	}
	checkInvariant(t, s)
}

func TestCreate_DuplicateIDOverwrites(t *testing.T) {
	s := NewElementStore()
	s.Create(rectElement("a", 0, 0))
	s.Create(rectElement("a", 99, 99))

	el, ok := s.Get("a")
	if !ok {
		t.Fatal("element a missing after duplicate create")
	}
	if el.Geometry.X != 99 {
		t.Errorf("duplicate create should overwrite: got x=%v, want 99", el.Geometry.X)
	}
	if s.Len() != 1 {
		t.Errorf("duplicate create must not grow the store: got %d elements", s.Len())
	}
	order := s.Order()
	if len(order) != 1 || order[0] != "a" {
		t.Errorf("duplicate create must not duplicate the order entry: got %v", order)
	}
}

func TestReorder_Valid(t *testing.T) {
	s := NewElementStore()
	s.Create(rectElement("a", 0, 0))
	s.Create(rectElement("b", 0, 0))
	s.Create(rectElement("c", 0, 0))

	if err := s.Reorder([]string{"c", "a", "b"}); err != nil {
		t.Fatalf("Reorder() failed: %v", err)
	}
	if got := s.Order(); !reflect.DeepEqual(got, []string{"c", "a", "b"}) {
		t.Errorf("Order() = %v, want [c a b]", got)
	}
	checkInvariant(t, s)
}

func TestReorder_NonPermutationRejectedUnchanged(t *testing.T) {
	s := NewElementStore()
	s.Create(rectElement("a", 0, 0))
	s.Create(rectElement("b", 0, 0))
	before := s.Snapshot()

	cases := [][]string{
		{"a"},                // missing id
		{"a", "b", "c"},      // unknown id
		{"a", "a"},           // duplicate
		{"a", "ghost"},       // unknown replacing known
		{},                   // empty
	}
	for _, order := range cases {
		err := s.Reorder(order)
		if !errors.Is(err, core.ErrInvalidReorder) {
			t.Errorf("Reorder(%v) error = %v, want ErrInvalidReorder", order, err)
		}
		after := s.Snapshot()
		if !reflect.DeepEqual(before.Elements, after.Elements) || !reflect.DeepEqual(before.Order, after.Order) {
			t.Errorf("Reorder(%v) mutated the store", order)
		}
	}
}

func TestSnapshot_IsolatedFromLiveStore(t *testing.T) {
	s := NewElementStore()
	s.Create(rectElement("a", 0, 0))
	snap := s.Snapshot()

	x := 500.0
	s.Update("a", core.FieldSet{X: &x})
	s.Create(rectElement("b", 0, 0))

	if snap.Elements["a"].Geometry.X != 0 {
		t.Error("mutating the store changed a snapshot taken earlier")
	}
	if len(snap.Order) != 1 {
		t.Errorf("snapshot order grew with the store: %v", snap.Order)
	}
}

func TestRestore_RoundTrip(t *testing.T) {
	s := NewElementStore()
	s.Create(rectElement("a", 1, 2))
	snap := s.Snapshot()

	s.Delete("a")
	s.Create(rectElement("b", 3, 4))

	s.Restore(snap)
	checkInvariant(t, s)
	if _, ok := s.Get("a"); !ok {
		t.Error("restore lost element a")
	}
	if _, ok := s.Get("b"); ok {
		t.Error("restore kept element b from after the snapshot")
	}
}

func TestReplace_NormalizesMangledDocument(t *testing.T) {
	s := NewElementStore()
	elements := map[string]core.Element{
		"a": rectElement("a", 0, 0),
		"b": rectElement("b", 0, 0),
	}
	// Order references a ghost and misses b.
	s.Replace(elements, []string{"ghost", "a", "a"})
	checkInvariant(t, s)
	if s.Len() != 2 {
		t.Errorf("Replace() lost elements: got %d, want 2", s.Len())
	}
}

func TestApplyPatch_AllKinds(t *testing.T) {
	s := NewElementStore()
	el := rectElement("a", 0, 0)

	applied, err := s.ApplyPatch(core.Patch{Kind: core.PatchCreate, ElementID: "a", Element: &el})
	if err != nil || !applied {
		t.Fatalf("create patch: applied=%v err=%v", applied, err)
	}

	x := 25.0
	applied, err = s.ApplyPatch(core.Patch{Kind: core.PatchUpdate, ElementID: "a", Fields: &core.FieldSet{X: &x}})
	if err != nil || !applied {
		t.Fatalf("update patch: applied=%v err=%v", applied, err)
	}
	if got, _ := s.Get("a"); got.Geometry.X != 25 {
		t.Errorf("update patch not applied: x=%v", got.Geometry.X)
	}

	applied, err = s.ApplyPatch(core.Patch{Kind: core.PatchReorder, Order: []string{"a"}})
	if err != nil || !applied {
		t.Fatalf("reorder patch: applied=%v err=%v", applied, err)
	}

	applied, err = s.ApplyPatch(core.Patch{Kind: core.PatchDelete, ElementID: "a"})
	if err != nil || !applied {
		t.Fatalf("delete patch: applied=%v err=%v", applied, err)
	}

	// Stale update after the delete is a no-op, not an error.
	applied, err = s.ApplyPatch(core.Patch{Kind: core.PatchUpdate, ElementID: "a", Fields: &core.FieldSet{X: &x}})
	if err != nil {
		t.Fatalf("stale update errored: %v", err)
	}
	if applied {
		t.Error("stale update should be a no-op")
	}
	checkInvariant(t, s)
}

func TestMutationSequences_InvariantAlwaysHolds(t *testing.T) {
	s := NewElementStore()
	x := 1.0
	ops := []func(){
		func() { s.Create(rectElement("a", 0, 0)) },
		func() { s.Create(rectElement("b", 0, 0)) },
		func() { s.Update("a", core.FieldSet{X: &x}) },
		func() { s.Delete("c") },
		func() { s.Create(rectElement("c", 0, 0)) },
		func() { _ = s.Reorder([]string{"c", "b", "a"}) },
		func() { s.Delete("b") },
		func() { _ = s.Reorder([]string{"a", "c"}) },
		func() { s.Create(rectElement("a", 9, 9)) },
		func() { s.Delete("a") },
		func() { s.Delete("c") },
	}
	for _, op := range ops {
		op()
		checkInvariant(t, s)
	}
}
