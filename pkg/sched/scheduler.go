// Package sched runs one session's handlers as a cooperative FIFO scheduler.
//
// Every handler, guard and framework step of a session runs while holding
// the session's turn, so no two of them ever run at the same time. A handler
// gives the turn back only at a suspension point (Await or Sleep) and is put
// back at the end of the queue once the awaited work completes. Reconciliation
// and layout run as inline tasks and so always see a quiescent tree.
package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/vango-dev/weft/pkg/attach"
	"github.com/vango-dev/weft/pkg/diag"
	"github.com/vango-dev/weft/pkg/tree"
)

// Host is the session side of the scheduler.
type Host interface {
	Attachments() *attach.Store
	Route() *tree.Route
	Window() tree.Size

	// Navigate requests a navigation and blocks until it resolves.
	// It is never called while holding the turn.
	Navigate(ctx context.Context, path string) error

	// StateChanged is called on the turn after declared writes were applied.
	StateChanged()
}

// Turn is the view of the scheduler given to code that holds the turn.
type Turn interface {
	context.Context

	// Await runs fn on its own goroutine without the turn and waits for it.
	Await(fn func(ctx context.Context) error) error

	// Sleep gives up the turn for d.
	Sleep(d time.Duration) error
}

// Options configures a Scheduler.
type Options struct {
	Clock  Clock
	Sink   diag.Sink
	Logger *slog.Logger

	// Observe, if set, is called after every handler invocation.
	Observe func(ev tree.Event, elapsed time.Duration, err error)

	// Lookup returns the live node with the given ID, or nil once it is
	// destroyed. Reconciliation replaces the object of a matched node on
	// every pass, so timers and populate runs resolve the node through it.
	// Without Lookup, attached nodes keep the object they were attached with.
	Lookup func(tree.ID) *tree.Node
}

// Scheduler serializes the work of one session.
type Scheduler struct {
	host    Host
	clock   Clock
	sink    diag.Sink
	logger  *slog.Logger
	observe func(tree.Event, time.Duration, error)
	lookup  func(tree.ID) *tree.Node

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queue   []*task
	wake    chan struct{}
	closed  bool
	exited  bool
	done    chan struct{}
	writes  []write
	flushed bool // a flush task is queued

	// Owned by the turn.
	nodes map[tree.ID]*nodeState
}

type write struct {
	owner tree.ID
	field string
	value any
}

type nodeState struct {
	id         tree.ID
	node       *tree.Node // last object seen for id
	timers     []*timer
	populating bool
	again      bool
}

type timer struct {
	st      *nodeState
	pos     int // index among the node's periodic registrations
	reg     tree.Registration
	t       Timer
	stopped bool
}

// New creates a scheduler and starts its loop.
func New(ctx context.Context, host Host, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = RealClock
	}
	if opts.Sink == nil {
		opts.Sink = diag.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		host:    host,
		clock:   opts.Clock,
		sink:    opts.Sink,
		logger:  opts.Logger,
		observe: opts.Observe,
		lookup:  opts.Lookup,
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		nodes:   make(map[tree.ID]*nodeState),
	}
	go s.loop()
	return s
}

// Done is closed once the loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Close stops accepting external work. Already queued tasks still run; the
// loop exits once the queue is empty. Handlers see their context cancelled.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.signal()
}

// Wait blocks until the loop has exited or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Do queues fn to run on the turn. It does not wait.
func (s *Scheduler) Do(name string, fn func()) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.push(&task{name: name, inline: fn})
	return nil
}

// Call queues fn to run on the turn and waits for it to finish.
// Calling it while holding the turn deadlocks.
func (s *Scheduler) Call(ctx context.Context, name string, fn func()) error {
	if s.isClosed() {
		return ErrClosed
	}
	finished := make(chan struct{})
	s.push(&task{name: name, inline: func() {
		defer close(finished)
		fn()
	}})
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// Run queues fn as a task that may suspend, and waits for its result.
// Calling it while holding the turn deadlocks.
func (s *Scheduler) Run(ctx context.Context, name string, fn func(Turn) error) error {
	if s.isClosed() {
		return ErrClosed
	}
	result := make(chan error, 1)
	s.push(s.newTask(name, func(t *task) {
		var err error
		func() {
			defer func() {
				if p := recover(); p != nil {
					s.logger.Error("task panic", "task", name, "panic", p, "stack", string(debug.Stack()))
					err = fmt.Errorf("sched: task %s panicked: %v", name, p)
				}
			}()
			err = fn(t)
		}()
		result <- err
	}))
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// Attach registers freshly created nodes and arms their periodic handlers.
// It must be called on the turn.
func (s *Scheduler) Attach(nodes []*tree.Node) {
	for _, n := range nodes {
		st := &nodeState{id: n.ID, node: n}
		s.nodes[n.ID] = st
		for i, reg := range n.HandlersFor(tree.EventPeriodic) {
			if reg.Interval <= 0 {
				s.logger.Warn("periodic handler without interval ignored", "node", uint64(n.ID), "handler", reg.Name)
				continue
			}
			tm := &timer{st: st, pos: i, reg: reg}
			st.timers = append(st.timers, tm)
			s.arm(tm)
		}
	}
}

// Detach forgets destroyed nodes. Their timers stop immediately: a tick that
// is queued but not started is skipped, a run in progress completes.
// It must be called on the turn.
func (s *Scheduler) Detach(nodes []*tree.Node) {
	for _, n := range nodes {
		st := s.nodes[n.ID]
		if st == nil {
			continue
		}
		for _, tm := range st.timers {
			tm.stopped = true
			if tm.t != nil {
				tm.t.Stop()
			}
		}
		delete(s.nodes, n.ID)
	}
}

// current returns the live object of st, or nil once the node is gone.
func (s *Scheduler) current(st *nodeState) *tree.Node {
	n := st.node
	if s.lookup != nil {
		n = s.lookup(st.id)
	}
	if n == nil || n.Destroyed {
		return nil
	}
	st.node = n
	return n
}

// Live returns the number of attached nodes.
func (s *Scheduler) Live() int {
	return len(s.nodes)
}

// Fire queues the handlers for ev on nodes, in node order and registration
// order. It must be called on the turn.
func (s *Scheduler) Fire(ev tree.Event, nodes []*tree.Node, payload any) {
	for _, n := range nodes {
		for _, reg := range n.HandlersFor(ev) {
			s.push(s.handlerTask(n, reg, payload))
		}
	}
}

// Input queues the input handlers registered on n for name.
// It must be called on the turn.
func (s *Scheduler) Input(n *tree.Node, name string, payload any) int {
	count := 0
	for _, reg := range n.HandlersFor(tree.EventInput) {
		if reg.Input == name {
			s.push(s.handlerTask(n, reg, payload))
			count++
		}
	}
	return count
}

// Populate queues one populate run per node. A node whose populate handlers
// are still running gets exactly one more run after the current one.
// It must be called on the turn.
func (s *Scheduler) Populate(nodes []*tree.Node) {
	for _, n := range nodes {
		st := s.nodes[n.ID]
		if st == nil || len(n.HandlersFor(tree.EventPopulate)) == 0 {
			continue
		}
		st.node = n
		if st.populating {
			st.again = true
			continue
		}
		st.populating = true
		s.push(s.populateTask(st))
	}
}

func (s *Scheduler) populateTask(st *nodeState) *task {
	return s.newTask("populate", func(t *task) {
		// Handlers may suspend, and a pass in between replaces the node.
		for i := 0; ; i++ {
			n := s.current(st)
			if n == nil {
				break
			}
			regs := n.HandlersFor(tree.EventPopulate)
			if i >= len(regs) {
				break
			}
			s.invoke(t, n, regs[i], nil)
		}
		if st.again && s.current(st) != nil {
			st.again = false
			s.push(s.populateTask(st))
			return
		}
		st.populating = false
		st.again = false
	})
}

func (s *Scheduler) arm(tm *timer) {
	if tm.stopped || s.isClosed() {
		return
	}
	tm.t = s.clock.AfterFunc(tm.reg.Interval, func() {
		if s.isClosed() {
			return
		}
		s.push(s.newTask("periodic", func(t *task) {
			n := s.current(tm.st)
			if tm.stopped || n == nil {
				return
			}
			if regs := n.HandlersFor(tree.EventPeriodic); tm.pos < len(regs) && regs[tm.pos].Interval > 0 {
				tm.reg = regs[tm.pos]
			}
			s.invoke(t, n, tm.reg, nil)
			s.arm(tm)
		}))
	})
}

func (s *Scheduler) handlerTask(n *tree.Node, reg tree.Registration, payload any) *task {
	return s.newTask(reg.Event.String(), func(t *task) {
		if s.lookup != nil {
			if cur := s.lookup(n.ID); cur != nil {
				n = cur
			}
		}
		s.invoke(t, n, reg, payload)
	})
}

// invoke runs one handler on t, isolating its errors and panics.
func (s *Scheduler) invoke(t *task, n *tree.Node, reg tree.Registration, payload any) {
	if reg.Fn == nil {
		return
	}
	hc := &handlerContext{Context: s.ctx, s: s, t: t, node: n, reg: reg, payload: payload}
	start := s.clock.Now()
	err := s.safeExecute(hc)
	if s.observe != nil {
		s.observe(reg.Event, s.clock.Now().Sub(start), err)
	}
	if err == nil {
		return
	}
	if n.Destroyed && (errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed)) {
		s.logger.Debug("handler of destroyed node cancelled", "node", uint64(n.ID), "handler", reg.Name)
		return
	}
	s.sink.Report(diag.Failure{
		Node:    n.ID,
		Handler: reg.Name,
		Kind:    diag.KindHandler,
		Err:     err,
	})
}

// safeExecute runs a handler with panic recovery.
func (s *Scheduler) safeExecute(hc *handlerContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			s.logger.Error("handler panic",
				"panic", r,
				"node", uint64(hc.node.ID),
				"event", hc.reg.Event.String(),
				"handler", hc.reg.Name,
				"stack", string(stack))
			err = &HandlerError{
				Node:    hc.node.ID,
				Handler: hc.reg.Name,
				Event:   hc.reg.Event,
				Panic:   r,
				Stack:   string(stack),
			}
		}
	}()
	if herr := hc.reg.Fn(hc); herr != nil {
		s.logger.Warn("handler failed", "node", uint64(hc.node.ID), "event", hc.reg.Event.String(),
			"handler", hc.reg.Name, "error", herr)
		return &HandlerError{Node: hc.node.ID, Handler: hc.reg.Name, Event: hc.reg.Event, Err: herr}
	}
	return nil
}

// write declares a state write, applied at the next turn.
func (s *Scheduler) write(owner tree.ID, field string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.writes = append(s.writes, write{owner: owner, field: field, value: value})
}

// flush applies pending writes. Writes to nodes that are no longer live are
// discarded.
func (s *Scheduler) flush() {
	s.mu.Lock()
	writes := s.writes
	s.writes = nil
	s.flushed = false
	s.mu.Unlock()

	applied := 0
	for _, w := range writes {
		var n *tree.Node
		if st := s.nodes[w.owner]; st != nil {
			n = s.current(st)
		}
		if n == nil || n.State == nil {
			s.logger.Debug("discarding state write", "node", uint64(w.owner), "field", w.field)
			continue
		}
		n.State.Set(w.field, w.value)
		applied++
	}
	if applied > 0 && s.host != nil {
		s.host.StateChanged()
	}
}

// afterTurn queues a flush when writes are pending.
func (s *Scheduler) afterTurn() {
	s.mu.Lock()
	pending := len(s.writes) > 0 && !s.flushed
	if pending {
		s.flushed = true
	}
	s.mu.Unlock()
	if pending {
		s.push(&task{name: "flush", inline: s.flush})
	}
}

func (s *Scheduler) push(t *task) {
	s.mu.Lock()
	if s.exited {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, t)
	s.mu.Unlock()
	s.signal()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) next() (*task, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			t := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return t, true
		}
		if s.closed {
			s.exited = true
			s.mu.Unlock()
			return nil, false
		}
		s.mu.Unlock()
		<-s.wake
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)
	defer s.stopTimers()
	for {
		t, ok := s.next()
		if !ok {
			return
		}
		s.step(t)
		s.afterTurn()
	}
}

func (s *Scheduler) stopTimers() {
	for _, st := range s.nodes {
		for _, tm := range st.timers {
			tm.stopped = true
			if tm.t != nil {
				tm.t.Stop()
			}
		}
	}
}

// step gives the turn to t until it finishes or suspends.
func (s *Scheduler) step(t *task) {
	if t.inline != nil {
		s.safeInline(t)
		return
	}
	if !t.started {
		t.started = true
		go t.main()
	}
	t.resume <- struct{}{}
	<-t.yield
}

func (s *Scheduler) safeInline(t *task) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			s.logger.Error("task panic", "task", t.name, "panic", r, "stack", string(stack))
			s.sink.Report(diag.Failure{
				Handler: t.name,
				Kind:    diag.KindHandler,
				Err:     fmt.Errorf("sched: task %s panicked: %v", t.name, r),
			})
		}
	}()
	t.inline()
}
