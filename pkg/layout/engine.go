package layout

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/vango-dev/weft/pkg/diag"
	"github.com/vango-dev/weft/pkg/tree"
)

// ErrUnderflow is reported when a layout input is negative, NaN or infinite.
// The value is clamped and layout continues.
var ErrUnderflow = errors.New("layout: invalid length")

// Measurer reports the natural size of a leaf from its kind and attributes.
// It must be a pure function of the node's description.
type Measurer interface {
	Measure(n *tree.Node) tree.Size
}

// MeasureFunc adapts a function to Measurer.
type MeasureFunc func(n *tree.Node) tree.Size

// Measure calls fn.
func (fn MeasureFunc) Measure(n *tree.Node) tree.Size { return fn(n) }

// Attrs measures leaves by their width and height attributes only.
var Attrs Measurer = MeasureFunc(func(n *tree.Node) tree.Size {
	w, _ := number(n, tree.AttrWidth)
	h, _ := number(n, tree.AttrHeight)
	return tree.Size{Width: w, Height: h}
})

// Engine lays out live trees.
type Engine struct {
	Measurer Measurer
	Sink     diag.Sink
	Logger   *slog.Logger
}

const (
	axisX = 0
	axisY = 1
)

// frame is the working state of one node during a layout run.
type frame struct {
	node    *tree.Node
	natural [2]float64
	min     [2]float64
	margin  [2][2]float64 // [axis][start, end]
	align   [2]Align
	grow    [2]bool
	spacing float64
	kids    []*frame
	pos     [2]float64
	size    [2]float64
}

func (f *frame) floor(axis int) float64 {
	return math.Max(f.natural[axis], f.min[axis])
}

func (f *frame) outer(axis int) float64 {
	return f.floor(axis) + f.margin[axis][0] + f.margin[axis][1]
}

// Layout computes geometry for the mounted part of the tree rooted at root.
// Nodes that are not mounted are left out, along with their subtrees.
func (e *Engine) Layout(root *tree.Node, viewport tree.Size) Geometry {
	g := make(Geometry)
	if root == nil || !root.Mounted {
		return g
	}
	r := &run{engine: e}
	f := r.measure(root)

	vw := r.clamp(root, "viewport_width", viewport.Width)
	vh := r.clamp(root, "viewport_height", viewport.Height)
	var pos, size [2]float64
	pos[axisX], size[axisX] = place(0, vw, f, axisX)
	pos[axisY], size[axisY] = place(0, vh, f, axisY)
	r.allocate(f, pos, size)
	r.collect(f, g)
	return g
}

type run struct {
	engine *Engine
}

// measure is the post-order pass.
func (r *run) measure(n *tree.Node) *frame {
	f := &frame{node: n}
	r.readInputs(f)

	for _, c := range n.Children {
		if c.Mounted {
			f.kids = append(f.kids, r.measure(c))
		}
	}

	switch n.Kind.Policy() {
	case tree.PolicyRow:
		f.natural = sequence(f, axisX)
	case tree.PolicyColumn:
		f.natural = sequence(f, axisY)
	case tree.PolicyLeaf:
		f.natural = layered(f)
		size := r.measureLeaf(n)
		f.natural[axisX] = math.Max(f.natural[axisX], size.Width)
		f.natural[axisY] = math.Max(f.natural[axisY], size.Height)
	default:
		f.natural = layered(f)
	}
	return f
}

// sequence sums children along axis and takes the maximum across it.
func sequence(f *frame, axis int) [2]float64 {
	var out [2]float64
	cross := 1 - axis
	for i, k := range f.kids {
		if i > 0 {
			out[axis] += f.spacing
		}
		out[axis] += k.outer(axis)
		out[cross] = math.Max(out[cross], k.outer(cross))
	}
	return out
}

// layered takes the maximum of the children on both axes.
func layered(f *frame) [2]float64 {
	var out [2]float64
	for _, k := range f.kids {
		out[axisX] = math.Max(out[axisX], k.outer(axisX))
		out[axisY] = math.Max(out[axisY], k.outer(axisY))
	}
	return out
}

func (r *run) measureLeaf(n *tree.Node) tree.Size {
	m := r.engine.Measurer
	if m == nil {
		m = Attrs
	}
	s := m.Measure(n)
	return tree.Size{
		Width:  r.clamp(n, "natural_width", s.Width),
		Height: r.clamp(n, "natural_height", s.Height),
	}
}

// allocate is the pre-order pass. The frame's own position and size have
// already been decided by its parent.
func (r *run) allocate(f *frame, pos, size [2]float64) {
	f.pos, f.size = pos, size
	if len(f.kids) == 0 {
		return
	}

	arbitrated := -1
	switch f.node.Kind.Policy() {
	case tree.PolicyRow:
		arbitrated = axisX
	case tree.PolicyColumn:
		arbitrated = axisY
	}

	kidPos := make([][2]float64, len(f.kids))
	kidSize := make([][2]float64, len(f.kids))
	for axis := axisX; axis <= axisY; axis++ {
		if axis == arbitrated {
			distribute(f, axis, kidPos, kidSize)
			continue
		}
		for i, k := range f.kids {
			kidPos[i][axis], kidSize[i][axis] = place(f.pos[axis], f.size[axis], k, axis)
		}
	}
	for i, k := range f.kids {
		r.allocate(k, kidPos[i], kidSize[i])
	}
}

// distribute splits the frame's span along axis between its children.
// Children first get their floor plus margins. Remaining slack goes to the
// growing children when there are any, otherwise evenly to every child.
func distribute(f *frame, axis int, kidPos, kidSize [][2]float64) {
	n := len(f.kids)
	avail := f.size[axis] - f.spacing*float64(n-1)
	need := 0.0
	growers := 0
	for _, k := range f.kids {
		need += k.outer(axis)
		if k.grow[axis] && !k.align[axis].Set {
			growers++
		}
	}
	slack := math.Max(0, avail-need)

	cursor := f.pos[axis]
	for i, k := range f.kids {
		slot := k.outer(axis)
		switch {
		case growers > 0:
			if k.grow[axis] && !k.align[axis].Set {
				slot += slack / float64(growers)
			}
		default:
			slot += slack / float64(n)
		}
		kidPos[i][axis], kidSize[i][axis] = place(cursor, slot, k, axis)
		cursor += slot + f.spacing
	}
}

// place fits k into the span [start, start+span) along axis. Margins are
// taken off the span first; an aligned child keeps its floor and is offset by
// its share of the leftover space, anything else fills the span.
func place(start, span float64, k *frame, axis int) (pos, size float64) {
	m0, m1 := k.margin[axis][0], k.margin[axis][1]
	inner := span - m0 - m1
	floor := k.floor(axis)
	if k.align[axis].Set {
		return start + m0 + math.Max(0, inner-floor)*k.align[axis].Value, floor
	}
	return start + m0, math.Max(inner, floor)
}

func (r *run) collect(f *frame, g Geometry) {
	g[f.node.ID] = Box{
		NaturalWidth:  f.natural[axisX],
		NaturalHeight: f.natural[axisY],
		MinWidth:      f.min[axisX],
		MinHeight:     f.min[axisY],
		MarginLeft:    f.margin[axisX][0],
		MarginRight:   f.margin[axisX][1],
		MarginTop:     f.margin[axisY][0],
		MarginBottom:  f.margin[axisY][1],
		AlignX:        f.align[axisX],
		AlignY:        f.align[axisY],
		GrowX:         f.grow[axisX],
		GrowY:         f.grow[axisY],
		X:             f.pos[axisX],
		Y:             f.pos[axisY],
		Width:         f.size[axisX],
		Height:        f.size[axisY],
	}
	for _, k := range f.kids {
		r.collect(k, g)
	}
}

// readInputs reads the caller-declared layout attributes of f's node.
func (r *run) readInputs(f *frame) {
	n := f.node
	f.min[axisX] = r.length(n, tree.AttrMinWidth)
	f.min[axisY] = r.length(n, tree.AttrMinHeight)
	f.spacing = r.length(n, tree.AttrSpacing)

	// Most specific wins: side, then axis, then all.
	all := r.length(n, tree.AttrMargin)
	mx := r.fallback(n, tree.AttrMarginX, all)
	my := r.fallback(n, tree.AttrMarginY, all)
	f.margin[axisX][0] = r.fallback(n, tree.AttrMarginLeft, mx)
	f.margin[axisX][1] = r.fallback(n, tree.AttrMarginRight, mx)
	f.margin[axisY][0] = r.fallback(n, tree.AttrMarginTop, my)
	f.margin[axisY][1] = r.fallback(n, tree.AttrMarginBottom, my)

	f.align[axisX] = r.alignment(n, tree.AttrAlignX)
	f.align[axisY] = r.alignment(n, tree.AttrAlignY)
	f.grow[axisX] = flag(n, tree.AttrGrowX)
	f.grow[axisY] = flag(n, tree.AttrGrowY)
}

func (r *run) length(n *tree.Node, name string) float64 {
	v, _ := number(n, name)
	return r.clamp(n, name, v)
}

func (r *run) fallback(n *tree.Node, name string, def float64) float64 {
	v, ok := number(n, name)
	if !ok {
		return def
	}
	return r.clamp(n, name, v)
}

func (r *run) alignment(n *tree.Node, name string) Align {
	v, ok := number(n, name)
	if !ok {
		return Align{}
	}
	if math.IsNaN(v) {
		r.underflow(n, name, v)
		return Align{}
	}
	if v < 0 || v > 1 {
		r.underflow(n, name, v)
		v = math.Min(1, math.Max(0, v))
	}
	return Align{Value: v, Set: true}
}

// clamp returns v, or 0 after reporting if v is negative, NaN or infinite.
func (r *run) clamp(n *tree.Node, name string, v float64) float64 {
	if v >= 0 && !math.IsInf(v, 1) {
		return v
	}
	r.underflow(n, name, v)
	return 0
}

func (r *run) underflow(n *tree.Node, name string, v float64) {
	logger := r.engine.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("invalid layout input clamped", "node", uint64(n.ID), "attr", name, "value", v)
	if r.engine.Sink != nil {
		r.engine.Sink.Report(diag.Failure{
			Node:    n.ID,
			Handler: name,
			Kind:    diag.KindUnderflow,
			Err:     fmt.Errorf("%w: %s=%v", ErrUnderflow, name, v),
		})
	}
}

func number(n *tree.Node, name string) (float64, bool) {
	v, ok := n.Attr(name)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case uint32:
		return float64(x), true
	default:
		return 0, false
	}
}

func flag(n *tree.Node, name string) bool {
	v, ok := n.Attr(name)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
