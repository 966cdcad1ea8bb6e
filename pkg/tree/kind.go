package tree

import "fmt"

// Policy selects how a kind arranges its children during layout.
type Policy uint8

const (
	PolicyLeaf        Policy = iota // No children; size comes from measurement
	PolicyRow                       // Children left to right, width arbitrated
	PolicyColumn                    // Children top to bottom, height arbitrated
	PolicyStack                     // Children layered, no axis arbitrated
	PolicyPassThrough               // Builders: the built child fills the node
)

// String returns the string representation of the Policy.
func (p Policy) String() string {
	switch p {
	case PolicyLeaf:
		return "Leaf"
	case PolicyRow:
		return "Row"
	case PolicyColumn:
		return "Column"
	case PolicyStack:
		return "Stack"
	case PolicyPassThrough:
		return "PassThrough"
	default:
		return "Unknown"
	}
}

// Kind is the closed capability set every node type provides.
// Kinds are compared with ==, so implementations must be comparable values
// (pointers or structs without slices, maps or funcs).
type Kind interface {
	KindName() string
	Policy() Policy
}

// Builder is a kind whose children are produced by a build callback.
type Builder interface {
	Kind
	Build(ctx BuildContext) *Node
}

// Stateful is a kind that owns per-instance State.
type Stateful interface {
	Kind
	DefaultState() map[string]any
}

// SameKind reports whether a and b are the same kind.
func SameKind(a, b Kind) bool {
	return a == b
}

type builtin struct {
	name   string
	policy Policy
}

func (b builtin) KindName() string { return b.name }
func (b builtin) Policy() Policy   { return b.policy }

// Built-in kinds.
var (
	RowKind    Kind = builtin{"row", PolicyRow}
	ColumnKind Kind = builtin{"column", PolicyColumn}
	StackKind  Kind = builtin{"stack", PolicyStack}
	TextKind   Kind = builtin{"text", PolicyLeaf}
	RectKind   Kind = builtin{"rect", PolicyLeaf}
	SpacerKind Kind = builtin{"spacer", PolicyLeaf}
)

// Component is a user-defined stateless builder kind.
// Each *Component value is its own kind.
type Component struct {
	Name   string
	Render func(ctx BuildContext) *Node
}

// Define creates a stateless component kind.
func Define(name string, render func(ctx BuildContext) *Node) *Component {
	if render == nil {
		panic(fmt.Sprintf("tree: component %q has no render function", name))
	}
	return &Component{Name: name, Render: render}
}

func (c *Component) KindName() string { return c.Name }
func (c *Component) Policy() Policy   { return PolicyPassThrough }

// Build calls the render function.
func (c *Component) Build(ctx BuildContext) *Node {
	return c.Render(ctx)
}

// StatefulComponent is a builder kind whose instances own State initialized
// from Defaults.
type StatefulComponent struct {
	Name     string
	Defaults map[string]any
	Render   func(ctx BuildContext) *Node
}

// DefineStateful creates a stateful component kind.
// Defaults are copied into every new instance.
func DefineStateful(name string, defaults map[string]any, render func(ctx BuildContext) *Node) *StatefulComponent {
	if render == nil {
		panic(fmt.Sprintf("tree: component %q has no render function", name))
	}
	return &StatefulComponent{Name: name, Defaults: defaults, Render: render}
}

func (c *StatefulComponent) KindName() string { return c.Name }
func (c *StatefulComponent) Policy() Policy   { return PolicyPassThrough }

// Build calls the render function.
func (c *StatefulComponent) Build(ctx BuildContext) *Node {
	return c.Render(ctx)
}

// DefaultState returns a copy of the defaults.
func (c *StatefulComponent) DefaultState() map[string]any {
	out := make(map[string]any, len(c.Defaults))
	for k, v := range c.Defaults {
		out[k] = v
	}
	return out
}
