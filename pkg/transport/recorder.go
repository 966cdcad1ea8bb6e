package transport

import (
	"context"
	"sync"
)

// Recorder is a Sender that keeps every batch. It is meant for tests and
// for inspecting a session offline.
type Recorder struct {
	mu      sync.Mutex
	batches []Batch
	signal  chan struct{}
}

// Send records b.
func (r *Recorder) Send(_ context.Context, b Batch) error {
	r.mu.Lock()
	r.batches = append(r.batches, b)
	ch := r.signal
	r.signal = nil
	r.mu.Unlock()
	if ch != nil {
		close(ch)
	}
	return nil
}

// Batches returns a copy of the recorded batches.
func (r *Recorder) Batches() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Batch(nil), r.batches...)
}

// Last returns the most recent batch.
func (r *Recorder) Last() (Batch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return Batch{}, false
	}
	return r.batches[len(r.batches)-1], true
}

// Next returns a channel closed by the next Send.
func (r *Recorder) Next() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.signal == nil {
		r.signal = make(chan struct{})
	}
	return r.signal
}

// Messages returns every recorded message of kind k, in order.
func (r *Recorder) Messages(k Kind) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, b := range r.batches {
		for _, m := range b.Messages {
			if m.Kind == k {
				out = append(out, m)
			}
		}
	}
	return out
}
