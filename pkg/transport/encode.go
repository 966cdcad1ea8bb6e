package transport

import (
	"slices"

	"github.com/vango-dev/weft/pkg/layout"
	"github.com/vango-dev/weft/pkg/reconcile"
	"github.com/vango-dev/weft/pkg/tree"
)

// Encode turns one pass into messages. prev is the geometry sent last time;
// only boxes that changed are included.
func Encode(d *reconcile.Diff, g, prev layout.Geometry) []Message {
	var out []Message
	if d != nil {
		for _, n := range d.Unmounted {
			out = append(out, Message{Kind: KindUnmount, Node: n.ID})
		}
		for _, n := range d.Mounted {
			out = append(out, mount(n))
		}
		for _, u := range d.Updated {
			if !u.Node.Mounted {
				continue
			}
			out = append(out, Message{
				Kind:    KindUpdate,
				Node:    u.Node.ID,
				Attrs:   attrs(u.Set),
				Removed: u.Removed,
			})
		}
		for _, m := range d.Moved {
			if !m.Node.Mounted {
				continue
			}
			out = append(out, Message{Kind: KindMove, Node: m.Node.ID, Parent: m.Parent, From: m.From, Index: m.To})
		}
	}

	changed, _ := g.Changed(prev)
	slices.Sort(changed)
	for _, id := range changed {
		b := g[id]
		out = append(out, Message{Kind: KindGeometry, Node: id, Box: &Box{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}})
	}
	return out
}

func mount(n *tree.Node) Message {
	m := Message{
		Kind:     KindMount,
		Node:     n.ID,
		NodeKind: n.Kind.KindName(),
		Key:      n.Key,
		Attrs:    attrs(n.Live()),
	}
	if p := n.Parent; p != nil {
		m.Parent = p.ID
		m.Index = slices.Index(p.Children, n)
	}
	return m
}

func attrs(list []tree.Attr) map[string]any {
	if len(list) == 0 {
		return nil
	}
	out := make(map[string]any, len(list))
	for _, a := range list {
		if _, ok := a.Value.(tree.Binding); ok {
			continue
		}
		out[a.Name] = a.Value
	}
	return out
}
