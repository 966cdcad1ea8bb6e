package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/weft/pkg/attach"
	"github.com/vango-dev/weft/pkg/sched"
	"github.com/vango-dev/weft/pkg/tree"
)

func allow(GuardContext) (Outcome, error) { return Allow(), nil }

func redirect(target string) Guard {
	return func(GuardContext) (Outcome, error) { return RedirectTo(target), nil }
}

func TestGuardChainRedirect(t *testing.T) {
	var commits []string
	root := &Page{Guard: allow, Children: []Entry{
		&Page{Segment: "y", Guard: redirect("/x")},
		&Page{Segment: "x", Guard: allow},
	}}
	n := NewNavigator(New(root), NavigatorConfig{
		OnCommit: func(_ context.Context, res Resolution) { commits = append(commits, res.Path) },
	})

	res, err := n.Navigate(context.Background(), "/y")
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if res.Path != "/x" {
		t.Errorf("committed %q, want /x", res.Path)
	}
	if diff := cmp.Diff([]string{"/x"}, commits); diff != "" {
		t.Errorf("commits mismatch (-want +got):\n%s", diff)
	}
	if n.State() != StateCommitted {
		t.Errorf("state = %v, want Committed", n.State())
	}
}

func TestGuardsRunRootFirstAndStopAtRedirect(t *testing.T) {
	var order []string
	record := func(name string, out Outcome) Guard {
		return func(GuardContext) (Outcome, error) {
			order = append(order, name)
			return out, nil
		}
	}
	root := &Page{Guard: record("root", Allow()), Children: []Entry{
		&Page{Segment: "a", Guard: record("a", RedirectTo("/b")), Children: []Entry{
			&Page{Segment: "deep", Guard: record("deep", Allow())},
		}},
		&Page{Segment: "b", Guard: record("b", Allow())},
	}}
	n := NewNavigator(New(root), NavigatorConfig{})

	if _, err := n.Navigate(context.Background(), "/a/deep"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"root", "a", "root", "b"}, order); diff != "" {
		t.Errorf("guard order mismatch (-want +got):\n%s", diff)
	}
}

func TestRedirectLoopFails(t *testing.T) {
	calls := 0
	root := &Page{Children: []Entry{
		&Page{Segment: "home"},
		&Page{Segment: "loop", Guard: func(GuardContext) (Outcome, error) {
			calls++
			return RedirectTo("/loop"), nil
		}},
	}}
	n := NewNavigator(New(root), NavigatorConfig{})
	if _, err := n.Navigate(context.Background(), "/home"); err != nil {
		t.Fatal(err)
	}

	_, err := n.Navigate(context.Background(), "/loop")
	if !errors.Is(err, ErrNavigationFailed) || !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("err = %v, want navigation failure from too many redirects", err)
	}
	var ne *NavigationError
	if !errors.As(err, &ne) || ne.Redirects != DefaultMaxRedirects+1 {
		t.Errorf("NavigationError = %+v", ne)
	}
	if calls != DefaultMaxRedirects+1 {
		t.Errorf("guard calls = %d, want %d", calls, DefaultMaxRedirects+1)
	}
	if cur, _ := n.Current(); cur.Path != "/home" {
		t.Errorf("current = %q, want previous page /home", cur.Path)
	}
	if n.State() != StateFailed {
		t.Errorf("state = %v, want Failed", n.State())
	}
}

func TestRedirectEntriesCountAgainstBound(t *testing.T) {
	root := &Page{Children: []Entry{
		&Redirect{Segment: "a", Target: "/b"},
		&Redirect{Segment: "b", Target: "/a"},
	}}
	n := NewNavigator(New(root), NavigatorConfig{MaxRedirects: 3})

	_, err := n.Navigate(context.Background(), "/a")
	var ne *NavigationError
	if !errors.As(err, &ne) || ne.Redirects != 4 || !errors.Is(err, ErrTooManyRedirects) {
		t.Errorf("err = %v, want failure after 3 redirects", err)
	}
}

func TestGuardErrorKeepsPreviousPage(t *testing.T) {
	denied := errors.New("denied")
	root := &Page{Children: []Entry{
		&Page{Segment: "open"},
		&Page{Segment: "closed", Guard: func(GuardContext) (Outcome, error) { return Outcome{}, denied }},
		&Page{Segment: "broken", Guard: func(GuardContext) (Outcome, error) { panic("guard bug") }},
	}}
	commits := 0
	n := NewNavigator(New(root), NavigatorConfig{
		OnCommit: func(context.Context, Resolution) { commits++ },
	})
	if _, err := n.Navigate(context.Background(), "/open"); err != nil {
		t.Fatal(err)
	}

	_, err := n.Navigate(context.Background(), "/closed")
	if !errors.Is(err, ErrNavigationFailed) || !errors.Is(err, denied) {
		t.Errorf("err = %v, want navigation failure wrapping the guard error", err)
	}
	_, err = n.Navigate(context.Background(), "/broken")
	var gp *GuardPanicError
	if !errors.Is(err, ErrNavigationFailed) || !errors.As(err, &gp) || gp.Panic != "guard bug" {
		t.Errorf("err = %v, want navigation failure wrapping the guard panic", err)
	}
	if cur, _ := n.Current(); cur.Path != "/open" {
		t.Errorf("current = %q, want /open", cur.Path)
	}
	if commits != 1 {
		t.Errorf("commits = %d, want 1", commits)
	}
}

func TestUnmatchedIsNotAnError(t *testing.T) {
	n := NewNavigator(New(testTree()), NavigatorConfig{})
	res, err := n.Navigate(context.Background(), "/does/not/exist")
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if res.Unmatched != "does/not/exist" {
		t.Errorf("unmatched = %q", res.Unmatched)
	}
}

func TestGuardContext(t *testing.T) {
	type session struct{ user string }
	store := attach.New(&session{user: "ana"})

	var got []string
	root := &Page{Children: []Entry{
		&Page{Segment: "start"},
		&Page{Segment: "users/:id", Guard: func(ctx GuardContext) (Outcome, error) {
			s, _ := attach.Get[*session](ctx.Attachments())
			got = append(got, ctx.From(), ctx.To(), ctx.Params()["id"], s.user)
			return Allow(), nil
		}},
	}}
	n := NewNavigator(New(root), NavigatorConfig{Attachments: func() *attach.Store { return store }})
	n.Navigate(context.Background(), "/start")
	if _, err := n.Navigate(context.Background(), "/users/7"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"/start", "/users/7", "7", "ana"}, got); diff != "" {
		t.Errorf("guard context mismatch (-want +got):\n%s", diff)
	}
}

func TestPendingNavigationIsSuperseded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var froms []string
	root := &Page{Children: []Entry{
		&Page{Segment: "slow", Guard: func(ctx GuardContext) (Outcome, error) {
			close(entered)
			return Allow(), ctx.Await(func(context.Context) error {
				<-release
				return nil
			})
		}},
		&Page{Segment: "b"},
		&Page{Segment: "c", Guard: func(ctx GuardContext) (Outcome, error) {
			mu.Lock()
			froms = append(froms, ctx.From())
			mu.Unlock()
			return Allow(), nil
		}},
	}}
	n := NewNavigator(New(root), NavigatorConfig{})

	errs := make(chan error, 3)
	go func() {
		_, err := n.Navigate(context.Background(), "/slow")
		errs <- err
	}()
	<-entered

	bErr := make(chan error, 1)
	go func() {
		_, err := n.Navigate(context.Background(), "/b")
		bErr <- err
	}()
	waitPending(t, n, "/b")

	cDone := make(chan error, 1)
	go func() {
		_, err := n.Navigate(context.Background(), "/c")
		cDone <- err
	}()

	if err := <-bErr; !errors.Is(err, ErrNavigationSuperseded) {
		t.Errorf("/b = %v, want ErrNavigationSuperseded", err)
	}
	close(release)
	if err := <-errs; err != nil {
		t.Errorf("/slow = %v", err)
	}
	if err := <-cDone; err != nil {
		t.Errorf("/c = %v", err)
	}

	if cur, _ := n.Current(); cur.Path != "/c" {
		t.Errorf("current = %q, want /c", cur.Path)
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"/slow"}, froms); diff != "" {
		t.Errorf("waiting request should run from the committed page (-want +got):\n%s", diff)
	}
}

func waitPending(t *testing.T, n *Navigator, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n.mu.Lock()
		ok := n.pending != nil && n.pending.path == path
		n.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("%s never became pending", path)
}

type host struct{}

func (host) Attachments() *attach.Store             { return attach.New() }
func (host) Route() *tree.Route                     { return nil }
func (host) Window() tree.Size                      { return tree.Size{} }
func (host) Navigate(context.Context, string) error { return nil }
func (host) StateChanged()                          {}

func TestGuardsRunOnSchedulerTurn(t *testing.T) {
	s := sched.New(context.Background(), host{}, sched.Options{})
	defer s.Close()

	ran := false
	root := &Page{Children: []Entry{
		&Page{Segment: "x", Guard: func(ctx GuardContext) (Outcome, error) {
			err := ctx.Await(func(context.Context) error {
				ran = true
				return nil
			})
			return Allow(), err
		}},
	}}
	n := NewNavigator(New(root), NavigatorConfig{Run: s.Run})
	if _, err := n.Navigate(context.Background(), "/x"); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("awaited work did not run")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateIdle, "Idle"},
		{StateEvaluating, "Evaluating"},
		{StateCommitted, "Committed"},
		{StateRedirecting, "Redirecting"},
		{StateFailed, "Failed"},
		{State(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
