// Package demo is the sample application served by "weft serve".
//
// It exercises the framework end to end: a stateful counter, a periodic
// clock, a guarded settings page behind a sign-in page, a parameterized user
// page, a redirect entry and a not-found view with a suggestion.
package demo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vango-dev/weft/pkg/attach"
	"github.com/vango-dev/weft/pkg/router"
	"github.com/vango-dev/weft/pkg/style"
	"github.com/vango-dev/weft/pkg/tree"
)

// Account is the per-session sign-in state.
type Account struct {
	mu   sync.Mutex
	user string
}

// SignIn records user as signed in.
func (a *Account) SignIn(user string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user = user
}

// SignOut forgets the signed-in user.
func (a *Account) SignOut() {
	a.SignIn("")
}

// User returns the signed-in user, or "".
func (a *Account) User() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user
}

// AccountSource gives every session its own Account.
type AccountSource struct{}

// Populate adds a fresh Account to store.
func (AccountSource) Populate(_ context.Context, store *attach.Store) error {
	store.Add(&Account{})
	return nil
}

// Documents lists the optional shared documents the demo reads from S3.
func Documents() []attach.Document {
	return []attach.Document{
		{Key: "theme.yaml", New: func() any { return &style.Theme{} }, Optional: true},
	}
}

// Attachments returns the shared store every session starts from.
func Attachments() *attach.Store {
	return attach.New(style.DefaultTheme())
}

// Router returns the demo page tree.
func Router() *router.Router {
	r := router.New(&router.Page{
		Build: shell,
		Children: []router.Entry{
			&router.Page{Segment: "login", Build: loginPage},
			&router.Page{Segment: "settings", Build: settingsPage, Guard: requireAccount},
			&router.Page{Segment: "users", Build: usersPage, Children: []router.Entry{
				&router.Page{Segment: ":id", Build: userPage},
			}},
			&router.Redirect{Segment: "old", Target: "/"},
		},
	})
	r.SetFallback(notFound(r))
	return r
}

func theme(ctx tree.BuildContext) style.Theme {
	t, _ := attach.Get[*style.Theme](ctx.Attachments())
	if t == nil {
		t = style.DefaultTheme()
	}
	return t.Fill()
}

func account(s *attach.Store) *Account {
	a, _ := attach.Get[*Account](s)
	return a
}

func shell(ctx tree.BuildContext) *tree.Node {
	th := theme(ctx)
	route := ctx.Route()
	win := ctx.Window()

	var body *tree.Node
	if len(route.Views) == 1 && route.Unmatched == "" {
		body = home()
	} else {
		body = tree.PageView(tree.Grow())
	}

	return tree.Column(tree.Grow(), tree.A(style.AttrBackground, th.Background),
		tree.Row(tree.Keyed("header"), tree.GrowX(), tree.Spacing(1),
			tree.Text("weft", tree.A(style.AttrColor, th.Accent)),
			tree.Spacer(),
			tree.Text(route.Path, tree.A(style.AttrColor, th.Muted)),
		),
		tree.Column(tree.Keyed("body"), tree.Grow(), tree.Margin(1), body),
		tree.Text(fmt.Sprintf("%gx%g", win.Width, win.Height), tree.Keyed("footer"),
			tree.A(style.AttrColor, th.Muted), tree.AlignX(1)),
	)
}

// Counter counts clicks on its button.
var Counter = tree.DefineStateful("counter", map[string]any{"n": 0}, func(ctx tree.BuildContext) *tree.Node {
	n := ctx.State().Int("n")
	return tree.Row(tree.Spacing(1),
		tree.Text(fmt.Sprintf("Clicks: %d", n)),
		tree.Text("[+]", tree.Keyed("increment"), tree.OnClick(func(c tree.Context) error {
			c.Set("n", c.State().Int("n")+1)
			return nil
		})),
	)
})

// Clock shows the seconds since it was mounted.
var Clock = tree.DefineStateful("clock", map[string]any{"seconds": 0}, func(ctx tree.BuildContext) *tree.Node {
	return tree.Text(fmt.Sprintf("Up %ds", ctx.State().Int("seconds")),
		tree.Periodic(time.Second, func(c tree.Context) error {
			c.Set("seconds", c.State().Int("seconds")+1)
			return nil
		}),
	)
})

func home() *tree.Node {
	return tree.Column(tree.Keyed("home"), tree.Spacing(1),
		tree.Text("Home"),
		tree.New(Counter),
		tree.New(Clock),
	)
}

func loginPage(ctx tree.BuildContext) *tree.Node {
	return tree.Column(tree.Spacing(1),
		tree.Text("Sign in to see your settings."),
		tree.Text("[sign in]", tree.Keyed("sign-in"), tree.OnClick(func(c tree.Context) error {
			a := account(c.Attachments())
			if a == nil {
				return fmt.Errorf("demo: no account attachment")
			}
			a.SignIn("demo")
			return c.Navigate("/settings")
		})),
	)
}

func settingsPage(ctx tree.BuildContext) *tree.Node {
	user := ""
	if a := account(ctx.Attachments()); a != nil {
		user = a.User()
	}
	return tree.Column(tree.Spacing(1),
		tree.Text("Signed in as "+user),
		tree.Text("[sign out]", tree.Keyed("sign-out"), tree.OnClick(func(c tree.Context) error {
			if a := account(c.Attachments()); a != nil {
				a.SignOut()
			}
			return c.Navigate("/")
		})),
	)
}

func requireAccount(gc router.GuardContext) (router.Outcome, error) {
	if a := account(gc.Attachments()); a != nil && a.User() != "" {
		return router.Allow(), nil
	}
	gc.Logger().Debug("not signed in, redirecting", "to", gc.To())
	return router.RedirectTo("/login"), nil
}

func usersPage(ctx tree.BuildContext) *tree.Node {
	return tree.Column(tree.Text("Users"), tree.PageView())
}

func userPage(ctx tree.BuildContext) *tree.Node {
	return tree.Text("User " + ctx.Route().Params["id"])
}

func notFound(r *router.Router) func(tree.BuildContext) *tree.Node {
	return func(ctx tree.BuildContext) *tree.Node {
		path := ctx.Route().Path
		n := tree.Column(tree.Text("Not found: " + path))
		if s, ok := r.Suggest(path); ok {
			n.Children = append(n.Children, tree.Text("Did you mean "+s+"?"))
		}
		return n
	}
}
