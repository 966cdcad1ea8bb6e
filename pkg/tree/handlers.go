package tree

import (
	"reflect"
	"runtime"
	"strings"
	"time"
)

// Event is the kind of event a handler is registered for.
type Event uint8

const (
	EventMount      Event = iota // Node became mounted
	EventUnmount                 // Node stopped being mounted
	EventPopulate                // Node was created or its attributes changed
	EventPeriodic                // Timer fired
	EventPageChange              // Navigation committed
	EventWindowSize              // Viewport size changed
	EventInput                   // Client input addressed to the node
)

// String returns the string representation of the Event.
func (e Event) String() string {
	switch e {
	case EventMount:
		return "mount"
	case EventUnmount:
		return "unmount"
	case EventPopulate:
		return "populate"
	case EventPeriodic:
		return "periodic"
	case EventPageChange:
		return "page_change"
	case EventWindowSize:
		return "window_size"
	case EventInput:
		return "input"
	default:
		return "unknown"
	}
}

// Handler is an event callback. It runs holding the session's turn.
type Handler func(ctx Context) error

// Registration is one entry of a node's handler table.
type Registration struct {
	Event    Event
	Name     string        // Reported to diagnostics
	Interval time.Duration // EventPeriodic only
	Input    string        // EventInput only: the input name, e.g. "click"
	Fn       Handler
}

// Named returns a copy of r with the given diagnostic name.
func (r Registration) Named(name string) Registration {
	r.Name = name
	return r
}

func register(ev Event, fn Handler) Registration {
	return Registration{Event: ev, Name: funcName(fn), Fn: fn}
}

// OnMount registers fn for mount transitions.
func OnMount(fn Handler) Registration { return register(EventMount, fn) }

// OnUnmount registers fn for unmount transitions.
func OnUnmount(fn Handler) Registration { return register(EventUnmount, fn) }

// OnPopulate registers fn for passes that create or update the node.
func OnPopulate(fn Handler) Registration { return register(EventPopulate, fn) }

// OnPageChange registers fn for committed navigations.
func OnPageChange(fn Handler) Registration { return register(EventPageChange, fn) }

// OnWindowSize registers fn for viewport changes.
func OnWindowSize(fn Handler) Registration { return register(EventWindowSize, fn) }

// Periodic registers fn to run every interval while the node exists.
// The interval is measured from the end of one run to the start of the next.
func Periodic(interval time.Duration, fn Handler) Registration {
	r := register(EventPeriodic, fn)
	r.Interval = interval
	return r
}

// On registers fn for the named client input.
func On(input string, fn Handler) Registration {
	r := register(EventInput, fn)
	r.Input = input
	return r
}

// OnClick registers fn for "click" input.
func OnClick(fn Handler) Registration { return On("click", fn) }

func funcName(fn Handler) string {
	if fn == nil {
		return ""
	}
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return ""
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
