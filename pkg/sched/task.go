package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/weft/pkg/attach"
	"github.com/vango-dev/weft/pkg/tree"
)

// task is one unit of queued work. Inline tasks run directly on the loop
// goroutine. Other tasks run on their own goroutine and hand the turn back
// and forth with the loop through resume and yield.
type task struct {
	name   string
	inline func()

	s       *Scheduler
	body    func(t *task)
	started bool
	resume  chan struct{}
	yield   chan struct{}
}

func (s *Scheduler) newTask(name string, body func(t *task)) *task {
	return &task{
		name:   name,
		s:      s,
		body:   body,
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
	}
}

func (t *task) main() {
	<-t.resume
	t.body(t)
	t.handBack()
}

// handBack returns the turn to the loop. After shutdown nobody is waiting.
func (t *task) handBack() bool {
	select {
	case t.yield <- struct{}{}:
		return true
	case <-t.s.done:
		return false
	}
}

// suspend gives up the turn. start receives a resume function that puts the
// task back in the queue; it may be called from any goroutine, once.
func (t *task) suspend(start func(resume func())) error {
	var once sync.Once
	start(func() {
		once.Do(func() { t.s.push(t) })
	})
	if !t.handBack() {
		return ErrClosed
	}
	select {
	case <-t.resume:
		return nil
	case <-t.s.done:
		return ErrClosed
	}
}

func (t *task) await(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	serr := t.suspend(func(resume func()) {
		go func() {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("sched: awaited function panicked: %v", p)
				}
				resume()
			}()
			err = fn(ctx)
		}()
	})
	if serr != nil {
		return serr
	}
	return err
}

func (t *task) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.suspend(func(resume func()) {
		t.s.clock.AfterFunc(d, resume)
	})
}

// Turn implementation for Run.

func (t *task) Deadline() (time.Time, bool) { return t.s.ctx.Deadline() }
func (t *task) Done() <-chan struct{}       { return t.s.ctx.Done() }
func (t *task) Err() error                  { return t.s.ctx.Err() }
func (t *task) Value(key any) any           { return t.s.ctx.Value(key) }

func (t *task) Await(fn func(ctx context.Context) error) error {
	return t.await(t.s.ctx, fn)
}

func (t *task) Sleep(d time.Duration) error {
	return t.sleep(t.s.ctx, d)
}

// handlerContext is the tree.Context given to handlers.
type handlerContext struct {
	context.Context
	s       *Scheduler
	t       *task
	node    *tree.Node
	reg     tree.Registration
	payload any
}

func (c *handlerContext) Node() *tree.Node  { return c.node }
func (c *handlerContext) Event() tree.Event { return c.reg.Event }
func (c *handlerContext) Payload() any      { return c.payload }

func (c *handlerContext) State() *tree.State {
	if owner := c.node.Owner(); owner != nil {
		return owner.State
	}
	return nil
}

func (c *handlerContext) Set(field string, value any) {
	owner := c.node.Owner()
	if owner == nil {
		c.s.logger.Warn("state write without a stateful owner", "node", uint64(c.node.ID), "field", field)
		return
	}
	c.s.write(owner.ID, field, value)
}

func (c *handlerContext) SetAttr(name string, value any) error {
	b, ok := c.node.Binding(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotBound, name)
	}
	c.s.write(b.Owner, b.Field, value)
	return nil
}

func (c *handlerContext) Await(fn func(ctx context.Context) error) error {
	return c.t.await(c.Context, fn)
}

func (c *handlerContext) Sleep(d time.Duration) error {
	return c.t.sleep(c.Context, d)
}

func (c *handlerContext) Navigate(path string) error {
	if c.s.host == nil {
		return ErrClosed
	}
	return c.t.await(c.Context, func(ctx context.Context) error {
		return c.s.host.Navigate(ctx, path)
	})
}

func (c *handlerContext) Attachments() *attach.Store {
	if c.s.host == nil {
		return nil
	}
	return c.s.host.Attachments()
}

func (c *handlerContext) Route() *tree.Route {
	if c.s.host == nil {
		return nil
	}
	return c.s.host.Route()
}

func (c *handlerContext) Window() tree.Size {
	if c.s.host == nil {
		return tree.Size{}
	}
	return c.s.host.Window()
}

func (c *handlerContext) Logger() *slog.Logger {
	return c.s.logger.With("node", uint64(c.node.ID), "handler", c.reg.Name)
}
