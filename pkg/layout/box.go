// Package layout computes geometry for the live component tree.
//
// Layout runs in two passes. The first pass walks the tree post-order and
// computes each node's natural size: leaves ask the Measurer, containers
// combine their children according to their kind's Policy. The second pass
// walks pre-order and allocates space, starting with the viewport at the
// root. Lengths are real numbers in line-height units and are never rounded.
package layout

import "github.com/vango-dev/weft/pkg/tree"

// Align is an optional alignment fraction in [0,1].
type Align struct {
	Value float64 `json:"value" yaml:"value"`
	Set   bool    `json:"set" yaml:"set"`
}

// Box is the computed layout of one mounted node.
type Box struct {
	NaturalWidth  float64 `json:"natural_width" yaml:"natural_width"`
	NaturalHeight float64 `json:"natural_height" yaml:"natural_height"`
	MinWidth      float64 `json:"min_width,omitempty" yaml:"min_width,omitempty"`
	MinHeight     float64 `json:"min_height,omitempty" yaml:"min_height,omitempty"`

	MarginLeft   float64 `json:"margin_left,omitempty" yaml:"margin_left,omitempty"`
	MarginTop    float64 `json:"margin_top,omitempty" yaml:"margin_top,omitempty"`
	MarginRight  float64 `json:"margin_right,omitempty" yaml:"margin_right,omitempty"`
	MarginBottom float64 `json:"margin_bottom,omitempty" yaml:"margin_bottom,omitempty"`

	AlignX Align `json:"align_x" yaml:"align_x"`
	AlignY Align `json:"align_y" yaml:"align_y"`
	GrowX  bool  `json:"grow_x,omitempty" yaml:"grow_x,omitempty"`
	GrowY  bool  `json:"grow_y,omitempty" yaml:"grow_y,omitempty"`

	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Rect returns the allocated rectangle.
func (b Box) Rect() (x, y, w, h float64) {
	return b.X, b.Y, b.Width, b.Height
}

// Geometry maps mounted nodes to their boxes.
type Geometry map[tree.ID]Box

// Changed returns the IDs whose box differs from prev, including IDs new in g.
// IDs present only in prev are returned as removed.
func (g Geometry) Changed(prev Geometry) (changed, removed []tree.ID) {
	for id, b := range g {
		if old, ok := prev[id]; !ok || old != b {
			changed = append(changed, id)
		}
	}
	for id := range prev {
		if _, ok := g[id]; !ok {
			removed = append(removed, id)
		}
	}
	return changed, removed
}
