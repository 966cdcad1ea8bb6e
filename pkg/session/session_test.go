package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/weft/pkg/attach"
	"github.com/vango-dev/weft/pkg/diag"
	"github.com/vango-dev/weft/pkg/layout"
	"github.com/vango-dev/weft/pkg/router"
	"github.com/vango-dev/weft/pkg/sched"
	"github.com/vango-dev/weft/pkg/transport"
	"github.com/vango-dev/weft/pkg/tree"
)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func text(s string) func(tree.BuildContext) *tree.Node {
	return func(tree.BuildContext) *tree.Node { return tree.Text(s) }
}

type fixture struct {
	sess  *Session
	out   *transport.Recorder
	fails *diag.Recorder
}

func newFixture(t *testing.T, r *router.Router, mutate ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{out: &transport.Recorder{}, fails: &diag.Recorder{}}
	cfg := Config{
		Router: r,
		Sender: f.out,
		Sink:   f.fails,
		Window: tree.Size{Width: 80, Height: 24},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	f.sess = New(cfg)
	t.Cleanup(func() { f.sess.Close() })
	return f
}

func (f *fixture) find(t *testing.T, match func(n *tree.Node) bool) *tree.Node {
	t.Helper()
	var found *tree.Node
	err := f.sess.Inspect(context.Background(), func(root *tree.Node, _ layout.Geometry) {
		if root == nil {
			return
		}
		tree.Walk(root, func(n *tree.Node) bool {
			if found == nil && match(n) {
				found = n
			}
			return found == nil
		})
	})
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	return found
}

func textIs(s string) func(n *tree.Node) bool {
	return func(n *tree.Node) bool {
		v, _ := n.Attr(tree.AttrText)
		return n.Kind == tree.TextKind && v == s
	}
}

func mountedText(out *transport.Recorder, s string) bool {
	for _, m := range out.Messages(transport.KindMount) {
		if m.NodeKind == "text" && m.Attrs[tree.AttrText] == s {
			return true
		}
	}
	return false
}

func TestStartRendersPage(t *testing.T) {
	r := router.New(&router.Page{
		Build: func(tree.BuildContext) *tree.Node { return tree.Column(tree.Text("header"), tree.PageView()) },
		Children: []router.Entry{
			&router.Page{Segment: "home", Build: text("home")},
		},
	})
	f := newFixture(t, r)

	if err := f.sess.Start(context.Background(), "/home"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	eventually(t, "home mounted", func() bool { return mountedText(f.out, "home") })

	batches := f.out.Batches()
	if first := batches[0].Messages[0]; first.Kind != transport.KindNavigate || first.Path != "/home" {
		t.Errorf("first message = %+v, want navigate /home", first)
	}
	for i := 1; i < len(batches); i++ {
		if batches[i].Seq <= batches[i-1].Seq {
			t.Errorf("batch %d seq %d not after %d", i, batches[i].Seq, batches[i-1].Seq)
		}
	}
	if len(f.out.Messages(transport.KindGeometry)) == 0 {
		t.Error("no geometry sent")
	}
	if got := f.sess.Route().Path; got != "/home" {
		t.Errorf("route = %q, want /home", got)
	}
}

func TestStateWriteSendsOneBatch(t *testing.T) {
	counter := tree.DefineStateful("counter", map[string]any{"n": 0}, func(ctx tree.BuildContext) *tree.Node {
		return tree.Text(fmt.Sprint(ctx.State().Int("n")), tree.OnClick(func(c tree.Context) error {
			c.Set("n", c.State().Int("n")+1)
			return nil
		}))
	})
	r := router.New(&router.Page{Build: func(tree.BuildContext) *tree.Node { return tree.New(counter) }})
	f := newFixture(t, r)

	if err := f.sess.Start(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "counter mounted", func() bool { return mountedText(f.out, "0") })
	label := f.find(t, textIs("0"))
	if label == nil {
		t.Fatal("label not found")
	}
	before := len(f.out.Batches())

	if err := f.sess.HandleInput(context.Background(), label.ID, "click", nil); err != nil {
		t.Fatalf("HandleInput: %v", err)
	}
	eventually(t, "update batch", func() bool { return len(f.out.Batches()) > before })

	b, _ := f.out.Last()
	var updates []transport.Message
	for _, m := range b.Messages {
		switch m.Kind {
		case transport.KindUpdate:
			updates = append(updates, m)
		case transport.KindMount, transport.KindUnmount:
			t.Errorf("unexpected %s in update batch", m.Kind)
		}
	}
	want := []transport.Message{{Kind: transport.KindUpdate, Node: label.ID, Attrs: map[string]any{tree.AttrText: "1"}}}
	if diff := cmp.Diff(want, updates); diff != "" {
		t.Errorf("updates mismatch (-want +got):\n%s", diff)
	}
	if len(f.out.Batches()) != before+1 {
		t.Errorf("batches = %d, want %d", len(f.out.Batches()), before+1)
	}
}

func TestPageChangeHandlers(t *testing.T) {
	seen := make(chan any, 4)
	r := router.New(&router.Page{
		Build: func(tree.BuildContext) *tree.Node {
			return tree.Column(tree.PageView(), tree.OnPageChange(func(c tree.Context) error {
				seen <- c.Payload()
				return nil
			}))
		},
		Children: []router.Entry{
			&router.Page{Segment: "a", Build: text("a")},
			&router.Page{Segment: "b", Build: text("b")},
		},
	})
	f := newFixture(t, r)

	if err := f.sess.Start(context.Background(), "/a"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "a mounted", func() bool { return mountedText(f.out, "a") })
	if err := f.sess.Navigate(context.Background(), "/b"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "b mounted", func() bool { return mountedText(f.out, "b") })

	// The column did not exist when /a committed.
	select {
	case p := <-seen:
		if p != "/b" {
			t.Errorf("page change payload = %v, want /b", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("page change handler not called")
	}
	if len(f.out.Messages(transport.KindUnmount)) == 0 {
		t.Error("page a was not unmounted")
	}
}

func TestFailedNavigationKeepsPage(t *testing.T) {
	denied := errors.New("denied")
	r := router.New(&router.Page{
		Build: func(tree.BuildContext) *tree.Node { return tree.PageView() },
		Children: []router.Entry{
			&router.Page{Segment: "home", Build: text("home")},
			&router.Page{Segment: "secret", Build: text("secret"), Guard: func(router.GuardContext) (router.Outcome, error) {
				return router.Outcome{}, denied
			}},
		},
	})
	f := newFixture(t, r)

	if err := f.sess.Start(context.Background(), "/home"); err != nil {
		t.Fatal(err)
	}
	err := f.sess.Navigate(context.Background(), "/secret")
	if !errors.Is(err, router.ErrNavigationFailed) || !errors.Is(err, denied) {
		t.Fatalf("Navigate = %v, want navigation failure wrapping denied", err)
	}
	if got := f.sess.Route().Path; got != "/home" {
		t.Errorf("route = %q, want /home", got)
	}
	eventually(t, "error message", func() bool { return len(f.out.Messages(transport.KindError)) == 1 })
	if m := f.out.Messages(transport.KindError)[0]; m.Path != "/secret" {
		t.Errorf("error path = %q", m.Path)
	}
	if n := f.fails.Count(diag.KindNavigation); n != 1 {
		t.Errorf("navigation failures = %d, want 1", n)
	}
	if mountedText(f.out, "secret") {
		t.Error("guarded page was rendered")
	}
}

func TestStartFallsBack(t *testing.T) {
	r := router.New(&router.Page{
		Build: func(tree.BuildContext) *tree.Node { return tree.PageView() },
		Children: []router.Entry{
			&router.Page{Segment: "broken", Guard: func(router.GuardContext) (router.Outcome, error) {
				return router.Outcome{}, errors.New("boom")
			}},
		},
	})
	r.SetFallback(func(ctx tree.BuildContext) *tree.Node {
		return tree.Text("missing " + ctx.Route().Unmatched)
	})
	f := newFixture(t, r)

	if err := f.sess.Start(context.Background(), "/broken"); !errors.Is(err, router.ErrNavigationFailed) {
		t.Fatalf("Start = %v, want ErrNavigationFailed", err)
	}
	eventually(t, "fallback mounted", func() bool { return mountedText(f.out, "missing broken") })
}

func TestWindowSize(t *testing.T) {
	sizes := make(chan any, 2)
	r := router.New(&router.Page{Build: func(tree.BuildContext) *tree.Node {
		return tree.Rect(tree.Grow(), tree.OnWindowSize(func(c tree.Context) error {
			sizes <- c.Payload()
			return nil
		}))
	}})
	f := newFixture(t, r)
	if err := f.sess.Start(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}

	if err := f.sess.SetWindowSize(tree.Size{Width: 80, Height: 24}); err != nil {
		t.Fatal(err)
	}
	if err := f.sess.SetWindowSize(tree.Size{Width: 100, Height: 30}); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-sizes:
		if got != (tree.Size{Width: 100, Height: 30}) {
			t.Errorf("payload = %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("window size handler not called")
	}
	rect := f.find(t, func(n *tree.Node) bool { return n.Kind == tree.RectKind })
	eventually(t, "resized geometry", func() bool {
		for _, m := range f.out.Messages(transport.KindGeometry) {
			if m.Node == rect.ID && m.Box.Width == 100 {
				return true
			}
		}
		return false
	})
	if len(sizes) != 0 {
		t.Error("unchanged size fired handlers")
	}
}

func TestInputErrors(t *testing.T) {
	r := router.New(&router.Page{Build: text("plain")})
	f := newFixture(t, r)
	if err := f.sess.Start(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}
	label := f.find(t, textIs("plain"))

	if err := f.sess.HandleInput(context.Background(), 9999, "click", nil); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("unknown node = %v, want ErrUnknownNode", err)
	}
	if err := f.sess.HandleInput(context.Background(), label.ID, "click", nil); !errors.Is(err, ErrNoHandler) {
		t.Errorf("no handler = %v, want ErrNoHandler", err)
	}

	f.sess.Close()
	if err := f.sess.HandleInput(context.Background(), label.ID, "click", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("after close = %v, want ErrClosed", err)
	}
	if err := f.sess.Navigate(context.Background(), "/"); !errors.Is(err, ErrClosed) {
		t.Errorf("navigate after close = %v, want ErrClosed", err)
	}
}

func TestCloseRunsUnmount(t *testing.T) {
	unmounted := make(chan struct{}, 1)
	r := router.New(&router.Page{Build: func(tree.BuildContext) *tree.Node {
		return tree.Text("bye", tree.OnUnmount(func(tree.Context) error {
			unmounted <- struct{}{}
			return nil
		}))
	}})
	f := newFixture(t, r)
	if err := f.sess.Start(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}

	f.sess.Close()
	f.sess.Close()
	select {
	case <-unmounted:
	default:
		t.Error("unmount handler did not run before Close returned")
	}
	select {
	case <-f.sess.Done():
	default:
		t.Error("Done not closed")
	}
}

func TestPeriodicStopsAfterRebuildAndNavigate(t *testing.T) {
	clock := sched.NewManualClock(time.Unix(0, 0))
	var ticks atomic.Int32
	r := router.New(&router.Page{
		Build: func(tree.BuildContext) *tree.Node { return tree.Column(tree.PageView()) },
		Children: []router.Entry{
			&router.Page{Segment: "a", Build: func(tree.BuildContext) *tree.Node {
				return tree.Rect(tree.Periodic(time.Second, func(tree.Context) error {
					ticks.Add(1)
					return nil
				}))
			}},
			&router.Page{Segment: "b", Build: text("b")},
		},
	})
	f := newFixture(t, r, func(c *Config) { c.Clock = clock })
	barrier := func() {
		t.Helper()
		if err := f.sess.Inspect(context.Background(), func(*tree.Node, layout.Geometry) {}); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.sess.Start(context.Background(), "/a"); err != nil {
		t.Fatal(err)
	}
	barrier()
	clock.Advance(time.Second)
	barrier()
	if err := f.sess.Refresh(); err != nil {
		t.Fatal(err)
	}
	barrier()
	clock.Advance(time.Second)
	barrier()
	if got := ticks.Load(); got != 2 {
		t.Fatalf("ticks across a rebuild = %d, want 2", got)
	}

	if err := f.sess.Navigate(context.Background(), "/b"); err != nil {
		t.Fatal(err)
	}
	barrier()
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		barrier()
	}
	if got := ticks.Load(); got != 2 {
		t.Errorf("ticks after the page left = %d, want 2", got)
	}
	if clock.Pending() != 0 {
		t.Errorf("pending timers = %d, want 0", clock.Pending())
	}
}

func TestPopulateAfterAttributeChange(t *testing.T) {
	var label atomic.Value
	label.Store("one")
	seen := make(chan string, 4)
	r := router.New(&router.Page{Build: func(tree.BuildContext) *tree.Node {
		return tree.Text(label.Load().(string), tree.OnPopulate(func(c tree.Context) error {
			v, _ := c.Node().Attr(tree.AttrText)
			seen <- v.(string)
			return nil
		}))
	}})
	f := newFixture(t, r)
	if err := f.sess.Start(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}
	if f.find(t, func(*tree.Node) bool { return true }) == nil {
		t.Fatal("nothing rendered")
	}
	label.Store("two")
	if err := f.sess.Refresh(); err != nil {
		t.Fatal(err)
	}

	var got []string
	for len(got) < 2 {
		select {
		case v := <-seen:
			got = append(got, v)
		case <-time.After(2 * time.Second):
			t.Fatalf("populate runs = %q, want two", got)
		}
	}
	if diff := cmp.Diff([]string{"one", "two"}, got); diff != "" {
		t.Errorf("populate saw (-want +got):\n%s", diff)
	}
}

func TestInputUsesNewestHandler(t *testing.T) {
	var label atomic.Value
	label.Store("one")
	clicked := make(chan string, 2)
	r := router.New(&router.Page{Build: func(tree.BuildContext) *tree.Node {
		current := label.Load().(string)
		return tree.Text("button", tree.Keyed("button"), tree.OnClick(func(tree.Context) error {
			clicked <- current
			return nil
		}))
	}})
	f := newFixture(t, r)
	if err := f.sess.Start(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}
	if f.find(t, func(*tree.Node) bool { return true }) == nil {
		t.Fatal("nothing rendered")
	}
	label.Store("two")
	if err := f.sess.Refresh(); err != nil {
		t.Fatal(err)
	}
	button := f.find(t, textIs("button"))
	if err := f.sess.HandleInput(context.Background(), button.ID, "click", nil); err != nil {
		t.Fatal(err)
	}
	select {
	case v := <-clicked:
		if v != "two" {
			t.Errorf("click ran the handler from build %q, want two", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("click handler not called")
	}
}

type seed struct{ Greeting string }

type sourceFunc func(ctx context.Context, s *attach.Store) error

func (fn sourceFunc) Populate(ctx context.Context, s *attach.Store) error { return fn(ctx, s) }

func TestSourcesPopulateAttachments(t *testing.T) {
	r := router.New(&router.Page{Build: func(ctx tree.BuildContext) *tree.Node {
		s, _ := attach.Get[*seed](ctx.Attachments())
		if s == nil {
			return tree.Text("none")
		}
		return tree.Text(s.Greeting)
	}})
	shared := attach.New()
	f := newFixture(t, r, func(c *Config) {
		c.Attachments = shared
		c.Sources = []Source{sourceFunc(func(_ context.Context, s *attach.Store) error {
			s.Add(&seed{Greeting: "hello"})
			return nil
		})}
	})

	if err := f.sess.Start(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "greeting", func() bool { return mountedText(f.out, "hello") })
	if shared.Len() != 0 {
		t.Error("session wrote into the shared store")
	}

	failing := newFixture(t, r, func(c *Config) {
		c.Sources = []Source{sourceFunc(func(context.Context, *attach.Store) error { return errors.New("offline") })}
	})
	if err := failing.sess.Start(context.Background(), "/"); err == nil {
		t.Error("Start should fail when a source fails")
	}
}

type failingSender struct{}

func (failingSender) Send(context.Context, transport.Batch) error { return errors.New("broken pipe") }

func TestSendFailureClosesSession(t *testing.T) {
	fails := &diag.Recorder{}
	sess := New(Config{
		Router: router.New(&router.Page{Build: text("x")}),
		Sender: failingSender{},
		Sink:   fails,
	})
	sess.Start(context.Background(), "/")

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not closed after send failure")
	}
	if fails.Count(diag.KindTransport) == 0 {
		t.Error("transport failure not reported")
	}
}
