// Package measure reports the natural size of leaf nodes.
//
// Lengths are in line-height units: a single line of text at the default
// size is exactly one unit tall.
package measure

import (
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/vango-dev/weft/pkg/tree"
)

// Font measures text leaves with a font face and every other leaf by its
// width and height attributes.
// It is safe for concurrent use.
type Font struct {
	mu   sync.Mutex
	face font.Face
	line float64 // line height in 26.6 fixed point units
}

// NewFont creates a measurer for face. A nil face uses basicfont.Face7x13.
func NewFont(face font.Face) *Font {
	if face == nil {
		face = basicfont.Face7x13
	}
	line := float64(face.Metrics().Height)
	if line <= 0 {
		line = 1
	}
	return &Font{face: face, line: line}
}

// Default is the measurer used when none is configured.
var Default = NewFont(nil)

// Measure returns the natural size of n.
func (f *Font) Measure(n *tree.Node) tree.Size {
	explicit := tree.Size{
		Width:  number(n, tree.AttrWidth),
		Height: number(n, tree.AttrHeight),
	}
	if n.Kind != tree.TextKind {
		return explicit
	}
	v, _ := n.Attr(tree.AttrText)
	s, _ := v.(string)
	size := 1.0
	if _, ok := n.Attr(tree.AttrSize); ok {
		size = number(n, tree.AttrSize)
	}
	text := f.Text(s)
	return tree.Size{
		Width:  max(explicit.Width, text.Width*size),
		Height: max(explicit.Height, text.Height*size),
	}
}

// Text returns the size of s at unit size. Each line is one unit tall; the
// width is the widest line's advance.
func (f *Font) Text(s string) tree.Size {
	if s == "" {
		return tree.Size{}
	}
	lines := strings.Split(s, "\n")
	f.mu.Lock()
	defer f.mu.Unlock()
	widest := 0.0
	for _, l := range lines {
		widest = max(widest, float64(font.MeasureString(f.face, l)))
	}
	return tree.Size{Width: widest / f.line, Height: float64(len(lines))}
}

func number(n *tree.Node, name string) float64 {
	v, ok := n.Attr(name)
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return 0
	}
}
