package core

// PatchKind is the closed set of element-level mutations carried over the
// relay.
type PatchKind string

const (
	PatchCreate  PatchKind = "create"
	PatchUpdate  PatchKind = "update"
	PatchDelete  PatchKind = "delete"
	PatchReorder PatchKind = "reorder"
)

// Patch is the wire-level description of one mutation to the element set.
//
// Origin is the sending collaborator's id and Seq its local mutation counter,
// monotonically increasing per origin. Receivers use the pair to drop a
// collaborator's own patches that arrive out of their intended order; patches
// from different origins are resolved purely by arrival order (last writer
// wins).
type Patch struct {
	Kind      PatchKind `json:"kind"`
	ElementID string    `json:"elementId,omitempty"`
	Element   *Element  `json:"element,omitempty"` // create payload
	Fields    *FieldSet `json:"fields,omitempty"`  // update payload
	Order     []string  `json:"order,omitempty"`   // reorder payload
	Origin    string    `json:"origin"`
	Seq       uint64    `json:"seq"`
}

// Event returns the relay event name a patch of this kind travels under.
func (p Patch) Event() string {
	switch p.Kind {
	case PatchCreate:
		return EventElementCreate
	case PatchUpdate:
		return EventElementUpdate
	case PatchDelete:
		return EventElementDelete
	case PatchReorder:
		return EventLayerReorder
	}
	return ""
}

// Relay event vocabulary. The relay treats payloads as opaque; these names
// are the contract between SyncChannel instances on either side of it.
const (
	EventElementCreate  = "element-create"
	EventElementUpdate  = "element-update"
	EventElementDelete  = "element-delete"
	EventLayerReorder   = "layer-reorder"
	EventPresenceUpdate = "presence-update"
	EventPresenceLeave  = "presence-leave"
	EventConnect        = "connect"
	EventDisconnect     = "disconnect"
)

// PatchEvents lists the four patch-carrying relay events.
var PatchEvents = []string{
	EventElementCreate,
	EventElementUpdate,
	EventElementDelete,
	EventLayerReorder,
}
