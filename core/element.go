package core

import "sort"

// ElementType is the closed set of element variants. Dispatch is always by
// tag, never by inspecting which property group happens to be non-nil.
type ElementType string

const (
	ElementText   ElementType = "text"
	ElementImage  ElementType = "image"
	ElementRect   ElementType = "rect"
	ElementCircle ElementType = "circle"
)

// Geometry holds the placement fields shared by every element variant.
type Geometry struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"` // degrees
}

// TextProps carries the fields specific to text elements.
type TextProps struct {
	Content    string  `json:"content"`
	FontFamily string  `json:"fontFamily"`
	FontSize   float64 `json:"fontSize"`
	FontWeight string  `json:"fontWeight"`
	Fill       string  `json:"fill"`
	Align      string  `json:"align"`
}

// ShapeProps carries the fields shared by rect and circle elements. Radius is
// the corner radius for rects and the circle radius for circles.
type ShapeProps struct {
	Fill        string  `json:"fill"`
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"strokeWidth"`
	Radius      float64 `json:"radius"`
}

// ImageProps carries the fields specific to image elements.
type ImageProps struct {
	Source string `json:"source"`
	Fit    string `json:"fit"` // "cover" | "contain" | "fill"
}

// Element is one placed object on a design. It is a flat record: the variant
// tag selects which of the optional property groups is meaningful.
type Element struct {
	ID       string      `json:"id"`
	Type     ElementType `json:"type"`
	Geometry Geometry    `json:"geometry"`
	ZIndex   int         `json:"zIndex"`
	Opacity  float64     `json:"opacity"`
	Locked   bool        `json:"locked,omitempty"`

	Text  *TextProps  `json:"text,omitempty"`
	Shape *ShapeProps `json:"shape,omitempty"`
	Image *ImageProps `json:"image,omitempty"`
}

// Clone returns a deep copy of the element. Property groups are pointers, so
// a plain struct copy would alias them.
func (e Element) Clone() Element {
	c := e
	if e.Text != nil {
		t := *e.Text
		c.Text = &t
	}
	if e.Shape != nil {
		s := *e.Shape
		c.Shape = &s
	}
	if e.Image != nil {
		i := *e.Image
		c.Image = &i
	}
	return c
}

// FieldSet is a partial update to an element: nil fields are left untouched.
// Wire updates carry a FieldSet so that two collaborators editing different
// fields of the same element do not clobber each other's work wholesale.
type FieldSet struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	ZIndex   *int     `json:"zIndex,omitempty"`
	Opacity  *float64 `json:"opacity,omitempty"`
	Locked   *bool    `json:"locked,omitempty"`

	Text  *TextProps  `json:"text,omitempty"`
	Shape *ShapeProps `json:"shape,omitempty"`
	Image *ImageProps `json:"image,omitempty"`
}

// Apply merges the field set into the element.
func (e *Element) Apply(f FieldSet) {
	if f.X != nil {
		e.Geometry.X = *f.X
	}
	if f.Y != nil {
		e.Geometry.Y = *f.Y
	}
	if f.Width != nil {
		e.Geometry.Width = *f.Width
	}
	if f.Height != nil {
		e.Geometry.Height = *f.Height
	}
	if f.Rotation != nil {
		e.Geometry.Rotation = *f.Rotation
	}
	if f.ZIndex != nil {
		e.ZIndex = *f.ZIndex
	}
	if f.Opacity != nil {
		e.Opacity = *f.Opacity
	}
	if f.Locked != nil {
		e.Locked = *f.Locked
	}
	if f.Text != nil {
		t := *f.Text
		e.Text = &t
	}
	if f.Shape != nil {
		s := *f.Shape
		e.Shape = &s
	}
	if f.Image != nil {
		i := *f.Image
		e.Image = &i
	}
}

// CloneElements deep-copies an element map.
func CloneElements(elements map[string]Element) map[string]Element {
	out := make(map[string]Element, len(elements))
	for id, el := range elements {
		out[id] = el.Clone()
	}
	return out
}

// SortedIDs returns the element ids in a stable order, for logging and for
// rebuilding a layer order from a bare element set.
func SortedIDs(elements map[string]Element) []string {
	ids := make([]string, 0, len(elements))
	for id := range elements {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := elements[ids[i]], elements[ids[j]]
		if a.ZIndex != b.ZIndex {
			return a.ZIndex < b.ZIndex
		}
		return ids[i] < ids[j]
	})
	return ids
}
