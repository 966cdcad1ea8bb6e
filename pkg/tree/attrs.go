package tree

// Attr is a single named attribute.
type Attr struct {
	Name  string
	Value any
}

// IsEmpty returns true if this is an empty attribute.
func (a Attr) IsEmpty() bool {
	return a.Name == ""
}

// Binding is a two-way attribute binding descriptor.
// The attribute reads Field from Owner's State; writes through the attribute
// are declared as state writes on Owner.
type Binding struct {
	Owner ID
	Field string
}

// A creates an attribute.
func A(name string, value any) Attr {
	return Attr{Name: name, Value: value}
}

// Attribute names understood by the framework.
const (
	AttrText    = "text"
	AttrVisible = "visible"
	AttrWidth   = "width"
	AttrHeight  = "height"
	AttrSize    = "size"

	AttrMinWidth     = "min_width"
	AttrMinHeight    = "min_height"
	AttrMargin       = "margin"
	AttrMarginX      = "margin_x"
	AttrMarginY      = "margin_y"
	AttrMarginLeft   = "margin_left"
	AttrMarginTop    = "margin_top"
	AttrMarginRight  = "margin_right"
	AttrMarginBottom = "margin_bottom"
	AttrAlignX       = "align_x"
	AttrAlignY       = "align_y"
	AttrGrowX        = "grow_x"
	AttrGrowY        = "grow_y"
	AttrSpacing      = "spacing"
)

// Visible sets whether the node is mounted.
func Visible(v bool) Attr { return A(AttrVisible, v) }

// Width sets a leaf's natural width.
func Width(v float64) Attr { return A(AttrWidth, v) }

// Height sets a leaf's natural height.
func Height(v float64) Attr { return A(AttrHeight, v) }

// MinWidth sets the requested minimum width.
func MinWidth(v float64) Attr { return A(AttrMinWidth, v) }

// MinHeight sets the requested minimum height.
func MinHeight(v float64) Attr { return A(AttrMinHeight, v) }

// Margin sets all four margins.
func Margin(v float64) Attr { return A(AttrMargin, v) }

// MarginX sets the left and right margins.
func MarginX(v float64) Attr { return A(AttrMarginX, v) }

// MarginY sets the top and bottom margins.
func MarginY(v float64) Attr { return A(AttrMarginY, v) }

func MarginLeft(v float64) Attr   { return A(AttrMarginLeft, v) }
func MarginTop(v float64) Attr    { return A(AttrMarginTop, v) }
func MarginRight(v float64) Attr  { return A(AttrMarginRight, v) }
func MarginBottom(v float64) Attr { return A(AttrMarginBottom, v) }

// AlignX positions the node horizontally inside its slot.
// 0 is left, 1 is right.
func AlignX(v float64) Attr { return A(AttrAlignX, v) }

// AlignY positions the node vertically inside its slot.
// 0 is top, 1 is bottom.
func AlignY(v float64) Attr { return A(AttrAlignY, v) }

// Align sets both alignments.
func Align(x, y float64) []Attr { return []Attr{AlignX(x), AlignY(y)} }

// Center centers the node on both axes.
func Center() []Attr { return Align(0.5, 0.5) }

// GrowX lets the node take horizontal slack.
func GrowX() Attr { return A(AttrGrowX, true) }

// GrowY lets the node take vertical slack.
func GrowY() Attr { return A(AttrGrowY, true) }

// Grow lets the node take slack on both axes.
func Grow() []Attr { return []Attr{GrowX(), GrowY()} }

// Spacing sets the gap between a container's children.
func Spacing(v float64) Attr { return A(AttrSpacing, v) }
