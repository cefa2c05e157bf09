package engine

import (
	"time"

	"github.com/sirupsen/logrus"

	"designdeck/core"
)

// Snapshot is an immutable value-copy of the element set and layer order at
// one point in local editing time. Mutating the live store never alters a
// snapshot already taken.
type Snapshot struct {
	Elements map[string]core.Element
	Order    []string
	TakenAt  time.Time
}

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Elements: core.CloneElements(s.Elements),
		Order:    append([]string(nil), s.Order...),
		TakenAt:  s.TakenAt,
	}
}

// ElementStore is the canonical element map and layer order for one open
// design.
//
// Invariant: every id in order has exactly one entry in elements and vice
// versa, after every mutation, local or remote.
//
// Mutating operations that are structurally inapplicable (update/delete of an
// unknown id) are reported as no-ops rather than errors: under concurrent
// editing a remote delete racing a local update is expected, not exceptional.
// The store is not safe for concurrent use; EditorSession serializes access.
type ElementStore struct {
	elements map[string]core.Element
	order    []string
}

// NewElementStore returns an empty store.
func NewElementStore() *ElementStore {
	return &ElementStore{elements: make(map[string]core.Element)}
}

// Create inserts the element at the top of the layer order. A duplicate id
// overwrites the existing element in place (treated as an update), so that a
// re-delivered or racing create stays deterministic.
func (s *ElementStore) Create(el core.Element) {
	el = el.Clone()
	if _, exists := s.elements[el.ID]; exists {
		s.elements[el.ID] = el
		return
	}
	s.elements[el.ID] = el
	s.order = append(s.order, el.ID)
}

// Update merges the field set into the element. Returns false if the id is
// unknown; the caller decides whether that is worth logging.
func (s *ElementStore) Update(id string, fields core.FieldSet) bool {
	el, ok := s.elements[id]
	if !ok {
		return false
	}
	el.Apply(fields)
	s.elements[id] = el
	return true
}

// Delete removes the element and its order entry. Returns false if the id is
// unknown.
func (s *ElementStore) Delete(id string) bool {
	if _, ok := s.elements[id]; !ok {
		return false
	}
	delete(s.elements, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Reorder replaces the layer order. The new order must be a permutation of
// the current element ids; otherwise core.ErrInvalidReorder is returned and
// the store is untouched.
func (s *ElementStore) Reorder(newOrder []string) error {
	if len(newOrder) != len(s.elements) {
		return core.ErrInvalidReorder
	}
	seen := make(map[string]bool, len(newOrder))
	for _, id := range newOrder {
		if seen[id] {
			return core.ErrInvalidReorder
		}
		if _, ok := s.elements[id]; !ok {
			return core.ErrInvalidReorder
		}
		seen[id] = true
	}
	s.order = append(s.order[:0:0], newOrder...)
	return nil
}

// Snapshot returns a deep copy of the current elements and order.
func (s *ElementStore) Snapshot() Snapshot {
	return Snapshot{
		Elements: core.CloneElements(s.elements),
		Order:    append([]string(nil), s.order...),
		TakenAt:  time.Now(),
	}
}

// Restore replaces the store content with a previously taken snapshot.
func (s *ElementStore) Restore(snap Snapshot) {
	s.elements = core.CloneElements(snap.Elements)
	s.order = append([]string(nil), snap.Order...)
}

// Replace swaps in a freshly fetched element set wholesale, as one step.
// Persisted data is normalized on the way in: order entries without an element
// are dropped and elements missing from the order are appended by z-index,
// so the element↔order invariant holds even for a mangled document.
func (s *ElementStore) Replace(elements map[string]core.Element, order []string) {
	next := core.CloneElements(elements)
	nextOrder := make([]string, 0, len(next))
	seen := make(map[string]bool, len(next))
	for _, id := range order {
		if _, ok := next[id]; ok && !seen[id] {
			nextOrder = append(nextOrder, id)
			seen[id] = true
		}
	}
	if len(nextOrder) != len(next) {
		logrus.WithFields(logrus.Fields{
			"order_len":   len(order),
			"element_len": len(next),
		}).Warn("Layer order did not match element set, normalizing")
		for _, id := range core.SortedIDs(next) {
			if !seen[id] {
				nextOrder = append(nextOrder, id)
			}
		}
	}
	s.elements = next
	s.order = nextOrder
}

// ApplyPatch applies a remote patch. The boolean reports whether the patch
// changed anything; err is only ever core.ErrInvalidReorder.
func (s *ElementStore) ApplyPatch(p core.Patch) (bool, error) {
	switch p.Kind {
	case core.PatchCreate:
		if p.Element == nil {
			return false, nil
		}
		s.Create(*p.Element)
		return true, nil
	case core.PatchUpdate:
		if p.Fields == nil {
			return false, nil
		}
		return s.Update(p.ElementID, *p.Fields), nil
	case core.PatchDelete:
		return s.Delete(p.ElementID), nil
	case core.PatchReorder:
		if err := s.Reorder(p.Order); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Get returns a copy of one element.
func (s *ElementStore) Get(id string) (core.Element, bool) {
	el, ok := s.elements[id]
	if !ok {
		return core.Element{}, false
	}
	return el.Clone(), true
}

// Elements returns a copy of the element map.
func (s *ElementStore) Elements() map[string]core.Element {
	return core.CloneElements(s.elements)
}

// Order returns a copy of the layer order.
func (s *ElementStore) Order() []string {
	return append([]string(nil), s.order...)
}

// Len reports the number of elements.
func (s *ElementStore) Len() int {
	return len(s.elements)
}
