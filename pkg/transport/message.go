// Package transport carries update batches from a session to its remote
// renderer and input from the renderer back to the session.
//
// Batches are ordered and self-contained: the messages of one reconciliation
// pass and its layout go out together, unmounts first, then mounts, attribute
// updates, moves and finally geometry. The byte encoding is JSON.
package transport

import (
	"context"
	"encoding/json"

	"github.com/vango-dev/weft/pkg/tree"
)

// Kind identifies a message.
type Kind string

// Outbound message kinds.
const (
	KindMount    Kind = "mount"
	KindUnmount  Kind = "unmount"
	KindUpdate   Kind = "update"
	KindMove     Kind = "move"
	KindGeometry Kind = "geometry"
	KindNavigate Kind = "navigate"
	KindError    Kind = "error"
)

// Inbound message kinds.
const (
	KindInput  Kind = "input"
	KindResize Kind = "resize"
)

// Box is a node's allocated rectangle.
type Box struct {
	X      float64 `json:"x" yaml:"x,omitempty"`
	Y      float64 `json:"y" yaml:"y,omitempty"`
	Width  float64 `json:"width" yaml:"width,omitempty"`
	Height float64 `json:"height" yaml:"height,omitempty"`
}

// Message is one entry of a batch.
type Message struct {
	Kind     Kind           `json:"kind" yaml:"kind"`
	Node     tree.ID        `json:"node,omitempty" yaml:"node,omitempty"`
	Parent   tree.ID        `json:"parent,omitempty" yaml:"parent,omitempty"`
	NodeKind string         `json:"type,omitempty" yaml:"type,omitempty"`
	Key      string         `json:"key,omitempty" yaml:"key,omitempty"`
	Index    int            `json:"index,omitempty" yaml:"index,omitempty"`
	From     int            `json:"from,omitempty" yaml:"from,omitempty"`
	Attrs    map[string]any `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Removed  []string       `json:"removed,omitempty" yaml:"removed,omitempty"`
	Box      *Box           `json:"box,omitempty" yaml:"box,omitempty"`
	Path     string         `json:"path,omitempty" yaml:"path,omitempty"`
	Error    string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Batch is the ordered output of one pass.
type Batch struct {
	Seq      uint64    `json:"seq" yaml:"seq"`
	Messages []Message `json:"messages" yaml:"messages"`
}

// Sender delivers batches in order.
type Sender interface {
	Send(ctx context.Context, b Batch) error
}

// Inbound is a message from the renderer.
type Inbound struct {
	Kind    Kind            `json:"kind"`
	Node    tree.ID         `json:"node,omitempty"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Width   float64         `json:"width,omitempty"`
	Height  float64         `json:"height,omitempty"`
	Path    string          `json:"path,omitempty"`
}

// Receiver handles inbound messages. Calls come from the connection's read
// goroutine and must not block on the session turn for long.
type Receiver interface {
	Input(node tree.ID, name string, payload any) error
	Resize(size tree.Size) error
	Navigate(ctx context.Context, path string) error
}
