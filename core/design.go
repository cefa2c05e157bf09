package core

import (
	"context"
	"time"
)

type (
	// Design is one editable document: a fixed-size canvas plus the element
	// map and its layer order. Every id in Order has exactly one entry in
	// Elements and vice versa; engine.ElementStore maintains that invariant,
	// stores only persist and return what they were given.
	Design struct {
		ID        string             `json:"id"`
		Name      string             `json:"name"`
		Width     float64            `json:"width"`
		Height    float64            `json:"height"`
		Elements  map[string]Element `json:"elements"`
		Order     []string           `json:"order"`
		CreatedAt time.Time          `json:"createdAt"`
		UpdatedAt time.Time          `json:"updatedAt"`
	}

	// DesignStore defines the persistence collaborator for designs. The
	// engine consumes Get on load and on every post-reconnect reconciliation,
	// and Save only on explicit user save triggers.
	DesignStore interface {
		// List returns metadata for all stored designs. The returned designs
		// carry no Elements or Order to keep list responses light.
		List(ctx context.Context) ([]*Design, error)

		// Get returns a single design by id, element payload included.
		Get(ctx context.Context, id string) (*Design, error)

		// Save creates or updates a design.
		Save(ctx context.Context, design *Design) error

		// Delete removes a design.
		Delete(ctx context.Context, id string) error
	}
)

// Clone returns a deep copy of the design.
func (d *Design) Clone() *Design {
	c := *d
	c.Elements = CloneElements(d.Elements)
	c.Order = append([]string(nil), d.Order...)
	return &c
}

// Meta returns a copy of the design without its element payload, the shape
// list endpoints and stores use for light responses.
func (d *Design) Meta() *Design {
	return &Design{
		ID:        d.ID,
		Name:      d.Name,
		Width:     d.Width,
		Height:    d.Height,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
