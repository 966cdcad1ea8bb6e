package sched

import (
	"errors"
	"fmt"

	"github.com/vango-dev/weft/pkg/tree"
)

var (
	// ErrClosed is returned once the scheduler has shut down.
	ErrClosed = errors.New("sched: scheduler closed")

	// ErrNotBound is returned by SetAttr for attributes without a binding.
	ErrNotBound = errors.New("sched: attribute is not bound")
)

// HandlerError describes a handler that returned an error or panicked.
type HandlerError struct {
	Node    tree.ID
	Handler string
	Event   tree.Event
	Panic   any    // Non-nil if the handler panicked
	Stack   string // Stack trace of the panic
	Err     error
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s handler %s on node %d panicked: %v", e.Event, e.Handler, e.Node, e.Panic)
	}
	return fmt.Sprintf("%s handler %s on node %d: %v", e.Event, e.Handler, e.Node, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
