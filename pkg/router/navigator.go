package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/vango-dev/weft/pkg/attach"
	"github.com/vango-dev/weft/pkg/sched"
)

// Navigation errors.
var (
	// ErrNavigationFailed is matched by every *NavigationError.
	ErrNavigationFailed = errors.New("router: navigation failed")

	// ErrTooManyRedirects is the cause when the redirect bound is exceeded.
	ErrTooManyRedirects = errors.New("router: too many redirects")

	// ErrNavigationSuperseded is returned to a request that was still
	// waiting when a newer one arrived.
	ErrNavigationSuperseded = errors.New("router: navigation superseded")
)

// DefaultMaxRedirects bounds redirect chains.
const DefaultMaxRedirects = 10

// NavigationError reports a failed navigation. The session stays on the
// page it showed before.
type NavigationError struct {
	Path      string // Requested path
	Target    string // Path being evaluated when navigation failed
	Redirects int
	Err       error
}

func (e *NavigationError) Error() string {
	if e.Target != e.Path {
		return fmt.Sprintf("router: navigation to %s (via %s) failed: %v", e.Path, e.Target, e.Err)
	}
	return fmt.Sprintf("router: navigation to %s failed: %v", e.Path, e.Err)
}

// Unwrap matches both ErrNavigationFailed and the cause.
func (e *NavigationError) Unwrap() []error {
	return []error{ErrNavigationFailed, e.Err}
}

// GuardPanicError wraps a panic raised by a guard.
type GuardPanicError struct {
	Panic any
	Stack string
}

func (e *GuardPanicError) Error() string {
	return fmt.Sprintf("guard panicked: %v", e.Panic)
}

// State is the navigator's position in the navigation state machine.
type State uint8

const (
	StateIdle State = iota
	StateEvaluating
	StateCommitted
	StateRedirecting
	StateFailed
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateEvaluating:
		return "Evaluating"
	case StateCommitted:
		return "Committed"
	case StateRedirecting:
		return "Redirecting"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Executor runs fn holding a session turn. sched.Scheduler.Run satisfies it.
type Executor func(ctx context.Context, name string, fn func(sched.Turn) error) error

// NavigatorConfig configures a Navigator.
type NavigatorConfig struct {
	// MaxRedirects bounds redirect chains. Zero means DefaultMaxRedirects.
	MaxRedirects int

	// Run executes guard chains. Nil runs them on the caller's goroutine.
	Run Executor

	// Attachments returns the store given to guards.
	Attachments func() *attach.Store

	// OnCommit is called after a resolution is committed, without the turn.
	OnCommit func(ctx context.Context, res Resolution)

	Logger *slog.Logger
}

// Navigator serializes the navigations of one session.
type Navigator struct {
	router *Router
	cfg    NavigatorConfig

	mu        sync.Mutex
	state     State
	current   Resolution
	committed bool
	running   bool
	pending   *request
}

type request struct {
	ctx  context.Context
	path string
	done chan outcome
}

type outcome struct {
	res Resolution
	err error
}

// NewNavigator creates a navigator over r.
func NewNavigator(r *Router, cfg NavigatorConfig) *Navigator {
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Navigator{router: r, cfg: cfg}
}

// Router returns the router the navigator resolves against.
func (n *Navigator) Router() *Router {
	return n.router
}

// State returns the current state.
func (n *Navigator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Current returns the last committed resolution.
func (n *Navigator) Current() (Resolution, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current, n.committed
}

// Navigate resolves path, runs its guard chain and commits the result.
//
// Navigations do not overlap. A request made while another is evaluating
// waits for it and then runs from the page it committed. Only one request
// waits at a time: a newer one supersedes it.
func (n *Navigator) Navigate(ctx context.Context, path string) (Resolution, error) {
	n.mu.Lock()
	if !n.running {
		n.running = true
		n.mu.Unlock()
		res, err := n.evaluate(ctx, path)
		n.next()
		return res, err
	}
	req := &request{ctx: ctx, path: path, done: make(chan outcome, 1)}
	if n.pending != nil {
		n.cfg.Logger.Debug("navigation superseded", "path", n.pending.path, "by", path)
		n.pending.done <- outcome{err: ErrNavigationSuperseded}
	}
	n.pending = req
	n.mu.Unlock()

	select {
	case o := <-req.done:
		return o.res, o.err
	case <-ctx.Done():
		n.mu.Lock()
		if n.pending == req {
			n.pending = nil
		}
		n.mu.Unlock()
		select {
		case o := <-req.done:
			return o.res, o.err
		default:
		}
		return Resolution{}, ctx.Err()
	}
}

// next starts the waiting request, if any.
func (n *Navigator) next() {
	n.mu.Lock()
	req := n.pending
	n.pending = nil
	if req == nil {
		n.running = false
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()
	go func() {
		res, err := n.evaluate(req.ctx, req.path)
		req.done <- outcome{res: res, err: err}
		n.next()
	}()
}

func (n *Navigator) evaluate(ctx context.Context, requested string) (Resolution, error) {
	from, _ := n.Current()
	target := Clean(requested)
	redirects := 0
	for {
		if err := ctx.Err(); err != nil {
			return n.fail(requested, target, redirects, err)
		}
		n.setState(StateEvaluating)
		res := n.router.Resolve(target)

		next := res.Redirect
		if next == "" {
			var err error
			next, err = n.guards(ctx, from.Path, res)
			if err != nil {
				return n.fail(requested, target, redirects, err)
			}
		}
		if next == "" {
			n.commit(ctx, res)
			return res, nil
		}

		redirects++
		if redirects > n.cfg.MaxRedirects {
			return n.fail(requested, target, redirects, ErrTooManyRedirects)
		}
		n.setState(StateRedirecting)
		n.cfg.Logger.Debug("navigation redirected", "from", target, "to", next, "redirects", redirects)
		target = Clean(next)
	}
}

// guards runs the guard chain of res root first and returns the first
// redirect target.
func (n *Navigator) guards(ctx context.Context, from string, res Resolution) (string, error) {
	guarded := false
	for _, p := range res.Pages {
		if p.Guard != nil {
			guarded = true
			break
		}
	}
	if !guarded {
		return "", nil
	}

	var redirect string
	chain := func(turn sched.Turn) error {
		gc := &guardContext{
			Turn:   turn,
			from:   from,
			to:     res.Path,
			params: res.Params,
			logger: n.cfg.Logger.With("path", res.Path),
		}
		if n.cfg.Attachments != nil {
			gc.attachments = n.cfg.Attachments()
		}
		for _, p := range res.Pages {
			if p.Guard == nil {
				continue
			}
			out, err := safeGuard(p.Guard, gc)
			if err != nil {
				return err
			}
			if target, ok := out.Redirect(); ok {
				redirect = target
				return nil
			}
		}
		return nil
	}

	var err error
	if n.cfg.Run != nil {
		err = n.cfg.Run(ctx, "guards", chain)
	} else {
		err = chain(directTurn{ctx})
	}
	return redirect, err
}

func safeGuard(g Guard, gc GuardContext) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &GuardPanicError{Panic: r, Stack: string(debug.Stack())}
		}
	}()
	return g(gc)
}

func (n *Navigator) commit(ctx context.Context, res Resolution) {
	n.mu.Lock()
	n.state = StateCommitted
	n.current = res
	n.committed = true
	n.mu.Unlock()
	n.cfg.Logger.Debug("navigation committed", "path", res.Path, "unmatched", res.Unmatched)
	if n.cfg.OnCommit != nil {
		n.cfg.OnCommit(ctx, res)
	}
}

func (n *Navigator) fail(requested, target string, redirects int, cause error) (Resolution, error) {
	n.setState(StateFailed)
	err := &NavigationError{Path: Clean(requested), Target: target, Redirects: redirects, Err: cause}
	n.cfg.Logger.Warn("navigation failed", "path", err.Path, "target", target, "redirects", redirects, "error", cause)
	return Resolution{}, err
}

func (n *Navigator) setState(s State) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}
