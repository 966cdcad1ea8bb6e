package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/vango-dev/weft/pkg/attach"
	"github.com/vango-dev/weft/pkg/sched"
)

// Outcome is the decision of a guard.
type Outcome struct {
	redirect string
}

// Allow lets navigation continue with the next guard.
func Allow() Outcome { return Outcome{} }

// RedirectTo aborts the guard chain and restarts navigation at target.
func RedirectTo(target string) Outcome { return Outcome{redirect: target} }

// Redirect returns the redirect target, or "" if the outcome allows.
func (o Outcome) Redirect() (string, bool) {
	return o.redirect, o.redirect != ""
}

// Guard decides whether navigation may enter a page.
type Guard func(ctx GuardContext) (Outcome, error)

// GuardContext is passed to guards. Guards run on the session's turn, so
// they may only block through Await and Sleep.
type GuardContext interface {
	sched.Turn

	// From returns the path committed before this navigation.
	From() string

	// To returns the path being evaluated, after earlier redirects.
	To() string

	Params() map[string]string
	Attachments() *attach.Store
	Logger() *slog.Logger
}

type guardContext struct {
	sched.Turn
	from, to    string
	params      map[string]string
	attachments *attach.Store
	logger      *slog.Logger
}

func (g *guardContext) From() string               { return g.from }
func (g *guardContext) To() string                 { return g.to }
func (g *guardContext) Params() map[string]string  { return g.params }
func (g *guardContext) Attachments() *attach.Store { return g.attachments }
func (g *guardContext) Logger() *slog.Logger       { return g.logger }

// directTurn runs guards on the caller's goroutine when the navigator has
// no scheduler.
type directTurn struct {
	context.Context
}

func (t directTurn) Await(fn func(ctx context.Context) error) error {
	return fn(t.Context)
}

func (t directTurn) Sleep(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-t.Done():
		return t.Err()
	}
}
