package engine

import (
	"sort"
	"time"

	"designdeck/core"
)

// PresenceTracker maps remote collaborator ids to their latest presence.
// Entries not refreshed within the configured liveness window are purged by
// Sweep; the owning session calls it on a tick to cover silently dropped
// sockets that never sent an explicit leave.
type PresenceTracker struct {
	entries map[string]core.Presence
	ttl     time.Duration
}

// NewPresenceTracker returns a tracker with the given liveness window.
func NewPresenceTracker(ttl time.Duration) *PresenceTracker {
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	return &PresenceTracker{entries: make(map[string]core.Presence), ttl: ttl}
}

// Upsert inserts or refreshes a collaborator. A zero LastActive is stamped
// with the current time.
func (t *PresenceTracker) Upsert(p core.Presence) {
	if p.CollaboratorID == "" {
		return
	}
	if p.LastActive.IsZero() {
		p.LastActive = time.Now()
	}
	t.entries[p.CollaboratorID] = p.Clone()
}

// Remove drops a collaborator. Unknown ids are ignored.
func (t *PresenceTracker) Remove(id string) {
	delete(t.entries, id)
}

// All returns the tracked collaborators sorted by id.
func (t *PresenceTracker) All() []core.Presence {
	out := make([]core.Presence, 0, len(t.entries))
	for _, p := range t.entries {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CollaboratorID < out[j].CollaboratorID
	})
	return out
}

// Sweep removes entries whose LastActive is older than the liveness window
// and returns the ids that were purged.
func (t *PresenceTracker) Sweep(now time.Time) []string {
	var stale []string
	for id, p := range t.entries {
		if now.Sub(p.LastActive) > t.ttl {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	for _, id := range stale {
		delete(t.entries, id)
	}
	return stale
}

// Len reports the number of tracked collaborators.
func (t *PresenceTracker) Len() int { return len(t.entries) }
