package tree

// ID identifies a live node within one session. Zero means unassigned.
type ID uint64

// Node is one element of the component tree.
type Node struct {
	Key      string         // Explicit identity among siblings
	Kind     Kind           // Node type
	Attrs    []Attr         // Ordered attributes, possibly bound
	Children []*Node        // Ordered children (for builders: the built output)
	Slot     []*Node        // Children handed to a builder by its parent
	Handlers []Registration // Event handler table

	// Runtime fields, assigned by the reconciler.
	ID        ID
	State     *State
	Parent    *Node
	Mounted   bool
	Destroyed bool
	Resolved  []Attr // Attrs with bindings replaced by their current values
}

// KeyOption sets a node's Key when passed to New.
type KeyOption string

// Keyed returns a KeyOption for New.
func Keyed(key string) KeyOption {
	return KeyOption(key)
}

// New creates a node of the given kind.
//
// Arguments are interpreted by type:
//   - nil: ignored
//   - KeyOption: sets Key
//   - Attr, []Attr: appended to Attrs
//   - Registration, []Registration: appended to Handlers
//   - *Node, []*Node: appended as children
//   - string: appended as a Text child
//
// For builder kinds, children are stored in Slot; the built output becomes
// Children during reconciliation.
func New(kind Kind, args ...any) *Node {
	n := &Node{Kind: kind}
	var kids []*Node
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
			continue
		case KeyOption:
			n.Key = string(v)
		case Attr:
			if !v.IsEmpty() {
				n.Attrs = append(n.Attrs, v)
			}
		case []Attr:
			for _, a := range v {
				if !a.IsEmpty() {
					n.Attrs = append(n.Attrs, a)
				}
			}
		case Registration:
			n.Handlers = append(n.Handlers, v)
		case []Registration:
			n.Handlers = append(n.Handlers, v...)
		case *Node:
			if v != nil {
				kids = append(kids, v)
			}
		case []*Node:
			for _, c := range v {
				if c != nil {
					kids = append(kids, c)
				}
			}
		case string:
			kids = append(kids, Text(v))
		}
	}
	if _, ok := kind.(Builder); ok {
		n.Slot = kids
	} else {
		n.Children = kids
	}
	return n
}

// Row creates a row container.
func Row(args ...any) *Node { return New(RowKind, args...) }

// Column creates a column container.
func Column(args ...any) *Node { return New(ColumnKind, args...) }

// Stack creates a stack container.
func Stack(args ...any) *Node { return New(StackKind, args...) }

// Rect creates a leaf sized by its width and height attributes.
func Rect(args ...any) *Node { return New(RectKind, args...) }

// Spacer creates an empty growing leaf.
func Spacer(args ...any) *Node {
	return New(SpacerKind, append([]any{Grow()}, args...)...)
}

// Text creates a text leaf.
func Text(content string, args ...any) *Node {
	return New(TextKind, append([]any{A(AttrText, content)}, args...)...)
}

// Attr returns the current value of the named attribute.
// Bound attributes report their resolved value once the node is live.
func (n *Node) Attr(name string) (any, bool) {
	if n == nil {
		return nil, false
	}
	attrs := n.Attrs
	if n.Resolved != nil {
		attrs = n.Resolved
	}
	for i := len(attrs) - 1; i >= 0; i-- {
		if attrs[i].Name == name {
			return attrs[i].Value, true
		}
	}
	return nil, false
}

// Binding returns the binding of the named attribute, if it is bound.
func (n *Node) Binding(name string) (Binding, bool) {
	for i := len(n.Attrs) - 1; i >= 0; i-- {
		if n.Attrs[i].Name == name {
			b, ok := n.Attrs[i].Value.(Binding)
			return b, ok
		}
	}
	return Binding{}, false
}

// Visible reports whether the node's own visible attribute allows it to be
// mounted. Ancestors are not consulted.
func (n *Node) Visible() bool {
	v, ok := n.Attr(AttrVisible)
	if !ok {
		return true
	}
	b, isBool := v.(bool)
	return !isBool || b
}

// Live returns the node's attributes as seen by layout and the transport.
func (n *Node) Live() []Attr {
	if n.Resolved != nil {
		return n.Resolved
	}
	return n.Attrs
}

// Owner returns the nearest node, starting at n, that owns State.
func (n *Node) Owner() *Node {
	for p := n; p != nil; p = p.Parent {
		if p.State != nil {
			return p
		}
	}
	return nil
}

// HandlersFor returns the registrations for ev in registration order.
func (n *Node) HandlersFor(ev Event) []Registration {
	var out []Registration
	for _, r := range n.Handlers {
		if r.Event == ev {
			out = append(out, r)
		}
	}
	return out
}

// Walk visits n and its descendants in pre-order.
// Returning false from fn skips the node's children.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Count returns the number of nodes in the subtree rooted at n.
func Count(n *Node) int {
	count := 0
	Walk(n, func(*Node) bool {
		count++
		return true
	})
	return count
}
