package tree

import (
	"context"
	"log/slog"
	"time"

	"github.com/vango-dev/weft/pkg/attach"
)

// Size is a width and height in line-height units.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// View builds the content for one level of the active page path.
type View struct {
	Path  string // Path of the page providing the view
	Build func(ctx BuildContext) *Node
}

// Route describes the committed navigation a session renders.
type Route struct {
	Path      string            // Requested path after redirects
	Params    map[string]string // Captured ":name" segments
	Unmatched string            // Remainder not matched by any page
	Views     []View            // Root first
	Fallback  func(ctx BuildContext) *Node
}

// Env is the session environment visible to build callbacks.
type Env struct {
	Attachments *attach.Store
	Route       *Route
	Window      Size
	Logger      *slog.Logger
}

// BuildContext is passed to builder kinds.
type BuildContext interface {
	// Node returns the node being built.
	Node() *Node

	// State returns the node's own State, or nil for stateless kinds.
	State() *State

	// Bind returns a binding to a field of this node's State.
	Bind(field string) Binding

	// Slot returns the children handed to this node by its parent.
	Slot() []*Node

	Attachments() *attach.Store
	Route() *Route
	Window() Size
	Logger() *slog.Logger
}

// Context is passed to handlers.
//
// Handlers hold the session's turn while they run. Await and Sleep give the
// turn back and wait to get it again, so they are the only places a handler
// may block.
type Context interface {
	context.Context

	// Node returns the node the handler is registered on.
	Node() *Node

	// Event returns the event being handled.
	Event() Event

	// Payload returns the event payload (input data, the new Size for
	// window changes, the committed path for page changes).
	Payload() any

	// State returns the State of the nearest stateful node starting at Node.
	State() *State

	// Set declares a write to a field of State. Writes are applied at the
	// next scheduler turn and trigger one rebuild.
	Set(field string, value any)

	// SetAttr declares a write through a bound attribute of Node.
	SetAttr(name string, value any) error

	// Await runs fn outside the session turn and returns its error.
	Await(fn func(ctx context.Context) error) error

	// Sleep suspends the handler for d.
	Sleep(d time.Duration) error

	// Navigate requests a navigation and waits for its outcome.
	Navigate(path string) error

	Attachments() *attach.Store
	Route() *Route
	Window() Size
	Logger() *slog.Logger
}
