// Package diag receives handler, build and layout failures that the
// framework swallows to keep a session alive.
package diag

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/weft/pkg/tree"
)

// Kind categorizes a reported failure.
type Kind string

const (
	KindHandler    Kind = "handler"                 // Lifecycle, timer or input handler failed
	KindBuild      Kind = "build"                   // Build callback failed
	KindConflict   Kind = "reconciliation_conflict" // Duplicate sibling key
	KindUnderflow  Kind = "layout_underflow"        // Negative or NaN layout input
	KindNavigation Kind = "navigation"              // Navigation failed
	KindTransport  Kind = "transport"               // Batch could not be sent
)

// Failure is one reported failure.
type Failure struct {
	SessionID string
	Node      tree.ID
	Handler   string
	Kind      Kind
	Err       error
	Time      time.Time
}

// Sink receives failures. Implementations must be safe for concurrent use.
type Sink interface {
	Report(f Failure)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(f Failure)

// Report calls fn.
func (fn SinkFunc) Report(f Failure) { fn(f) }

// Discard drops every failure.
var Discard Sink = SinkFunc(func(Failure) {})

// Logger reports failures to a structured logger.
type Logger struct {
	Log *slog.Logger
}

// Report logs f. Conflicts and underflows are warnings; the rest are errors.
func (l Logger) Report(f Failure) {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	level := slog.LevelError
	if f.Kind == KindConflict || f.Kind == KindUnderflow {
		level = slog.LevelWarn
	}
	attrs := []any{"kind", string(f.Kind)}
	if f.SessionID != "" {
		attrs = append(attrs, "session_id", f.SessionID)
	}
	if f.Node != 0 {
		attrs = append(attrs, "node", uint64(f.Node))
	}
	if f.Handler != "" {
		attrs = append(attrs, "handler", f.Handler)
	}
	if f.Err != nil {
		attrs = append(attrs, "error", f.Err)
	}
	log.Log(context.Background(), level, "swallowed failure", attrs...)
}

// Multi fans a failure out to several sinks.
type Multi []Sink

// Report sends f to every non-nil sink.
func (m Multi) Report(f Failure) {
	for _, s := range m {
		if s != nil {
			s.Report(f)
		}
	}
}

// WithSession returns a sink that stamps failures with a session ID and the
// current time before passing them to s.
func WithSession(s Sink, id string) Sink {
	if s == nil {
		s = Discard
	}
	return SinkFunc(func(f Failure) {
		if f.SessionID == "" {
			f.SessionID = id
		}
		if f.Time.IsZero() {
			f.Time = time.Now()
		}
		s.Report(f)
	})
}

// Recorder keeps every failure in memory.
type Recorder struct {
	mu       sync.Mutex
	failures []Failure
}

// Report records f.
func (r *Recorder) Report(f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

// Failures returns a copy of the recorded failures.
func (r *Recorder) Failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Failure, len(r.failures))
	copy(out, r.failures)
	return out
}

// Count returns the number of recorded failures of kind k.
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.failures {
		if f.Kind == k {
			n++
		}
	}
	return n
}
