package engine

// HistoryManager is the local undo/redo stack: a bounded past, the present,
// and a future rebuilt by undos.
//
// History is scoped to the local user only. Remote mutations are applied to
// the ElementStore directly and never produce entries here; the next local
// mutation's pre-image will already include merged remote changes, so an undo
// can step back past a remote change that landed in between. That is the
// documented behavior, not a bug to fix: history is local, not synced.
type HistoryManager struct {
	past    []Snapshot
	present Snapshot
	future  []Snapshot
	limit   int
}

// NewHistoryManager returns a history seeded with the initial state.
func NewHistoryManager(initial Snapshot, limit int) *HistoryManager {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &HistoryManager{present: initial.Clone(), limit: limit}
}

// Record pushes the current present onto the past and makes state the new
// present. Any redo branch is discarded: recording after an undo overwrites
// the abandoned future, which is also why remote mutations must never call
// Record — they would silently truncate the user's redo branch.
func (h *HistoryManager) Record(state Snapshot) {
	h.past = append(h.past, h.present)
	if len(h.past) > h.limit {
		h.past = h.past[1:]
	}
	h.present = state.Clone()
	h.future = nil
}

// Undo steps back one entry and returns the state to restore. The boolean is
// false when there is nothing to undo.
func (h *HistoryManager) Undo() (Snapshot, bool) {
	if len(h.past) == 0 {
		return Snapshot{}, false
	}
	restored := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append([]Snapshot{h.present}, h.future...)
	h.present = restored
	return restored.Clone(), true
}

// Redo steps forward one entry and returns the state to restore. The boolean
// is false when there is nothing to redo.
func (h *HistoryManager) Redo() (Snapshot, bool) {
	if len(h.future) == 0 {
		return Snapshot{}, false
	}
	restored := h.future[0]
	h.future = h.future[1:]
	h.past = append(h.past, h.present)
	h.present = restored
	return restored.Clone(), true
}

// CanUndo reports whether the past stack is non-empty.
func (h *HistoryManager) CanUndo() bool { return len(h.past) > 0 }

// CanRedo reports whether the future stack is non-empty.
func (h *HistoryManager) CanRedo() bool { return len(h.future) > 0 }

// Depth returns the current sizes of the past and future stacks.
func (h *HistoryManager) Depth() (past, future int) {
	return len(h.past), len(h.future)
}

// Reset reseeds the history around a new baseline, dropping both stacks.
// Used after an authoritative reconciliation replaced the store wholesale.
func (h *HistoryManager) Reset(baseline Snapshot) {
	h.past = nil
	h.future = nil
	h.present = baseline.Clone()
}
