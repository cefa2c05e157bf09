package core

import "time"

// Point is a cursor position in canvas coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Presence is the ephemeral per-collaborator record: identity, cursor and
// liveness. It is never persisted; it exists only while a collaboration
// session is live and is purged on leave or liveness timeout.
type Presence struct {
	CollaboratorID string    `json:"collaboratorId"`
	Name           string    `json:"name"`
	Color          string    `json:"color"`
	Cursor         *Point    `json:"cursor,omitempty"`
	LastActive     time.Time `json:"lastActive"`
}

// Clone returns a copy that does not alias the cursor pointer.
func (p Presence) Clone() Presence {
	c := p
	if p.Cursor != nil {
		cur := *p.Cursor
		c.Cursor = &cur
	}
	return c
}
