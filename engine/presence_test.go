package engine

import (
	"testing"
	"time"

	"designdeck/core"
)

func TestUpsertAndAll_SortedByID(t *testing.T) {
	tr := NewPresenceTracker(time.Minute)
	tr.Upsert(core.Presence{CollaboratorID: "zoe", Name: "Zoe", Color: "#00ff00"})
	tr.Upsert(core.Presence{CollaboratorID: "amy", Name: "Amy", Color: "#ff0000"})

	all := tr.All()
	if len(all) != 2 {
		t.Fatalf("All() returned %d entries, want 2", len(all))
	}
	if all[0].CollaboratorID != "amy" || all[1].CollaboratorID != "zoe" {
		t.Errorf("All() not sorted by id: %v, %v", all[0].CollaboratorID, all[1].CollaboratorID)
	}
}

func TestUpsert_RefreshesExistingEntry(t *testing.T) {
	tr := NewPresenceTracker(time.Minute)
	tr.Upsert(core.Presence{CollaboratorID: "amy", Cursor: &core.Point{X: 1, Y: 1}})
	tr.Upsert(core.Presence{CollaboratorID: "amy", Cursor: &core.Point{X: 9, Y: 9}})

	all := tr.All()
	if len(all) != 1 {
		t.Fatalf("upsert duplicated the entry: %d", len(all))
	}
	if all[0].Cursor == nil || all[0].Cursor.X != 9 {
		t.Errorf("upsert did not refresh cursor: %+v", all[0].Cursor)
	}
}

func TestRemove_UnknownIsNoOp(t *testing.T) {
	tr := NewPresenceTracker(time.Minute)
	tr.Upsert(core.Presence{CollaboratorID: "amy"})
	tr.Remove("ghost")
	tr.Remove("amy")
	if tr.Len() != 0 {
		t.Errorf("Len() = %d after removes, want 0", tr.Len())
	}
}

func TestSweep_RemovesOnlyExpiredEntries(t *testing.T) {
	tr := NewPresenceTracker(10 * time.Second)
	now := time.Now()
	tr.Upsert(core.Presence{CollaboratorID: "fresh", LastActive: now.Add(-2 * time.Second)})
	tr.Upsert(core.Presence{CollaboratorID: "stale-a", LastActive: now.Add(-30 * time.Second)})
	tr.Upsert(core.Presence{CollaboratorID: "stale-b", LastActive: now.Add(-11 * time.Second)})

	purged := tr.Sweep(now)
	if len(purged) != 2 || purged[0] != "stale-a" || purged[1] != "stale-b" {
		t.Errorf("Sweep() purged %v, want [stale-a stale-b]", purged)
	}
	if tr.Len() != 1 {
		t.Errorf("Len() = %d after sweep, want 1", tr.Len())
	}
	all := tr.All()
	if all[0].CollaboratorID != "fresh" {
		t.Errorf("sweep removed the wrong entry, left %v", all[0].CollaboratorID)
	}
}

func TestAll_CopiesDoNotAliasTracker(t *testing.T) {
	tr := NewPresenceTracker(time.Minute)
	tr.Upsert(core.Presence{CollaboratorID: "amy", Cursor: &core.Point{X: 1}})

	all := tr.All()
	all[0].Cursor.X = 42

	again := tr.All()
	if again[0].Cursor.X != 1 {
		t.Error("All() returned presences aliasing tracker state")
	}
}
