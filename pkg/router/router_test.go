package router

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/weft/pkg/tree"
)

func build(name string) func(tree.BuildContext) *tree.Node {
	return func(tree.BuildContext) *tree.Node { return tree.Text(name) }
}

func testTree() *Page {
	return &Page{
		Build: build("layout"),
		Children: []Entry{
			&Page{Segment: "settings", Build: build("settings"), Children: []Entry{
				&Page{Segment: "theme", Build: build("theme")},
			}},
			&Page{Segment: "users/:id", Build: build("user"), Children: []Entry{
				&Page{Segment: "posts/:post", Build: build("post")},
			}},
			&Page{Segment: "users/me", Build: build("me")},
			&Redirect{Segment: "old", Target: "/settings"},
		},
	}
}

func TestResolve(t *testing.T) {
	r := New(testTree())

	tests := []struct {
		path      string
		prefixes  []string
		params    map[string]string
		unmatched string
		redirect  string
	}{
		{"/", []string{"/"}, map[string]string{}, "", ""},
		{"/settings/theme", []string{"/", "/settings", "/settings/theme"}, map[string]string{}, "", ""},
		{"/settings/missing/deeper", []string{"/", "/settings"}, map[string]string{}, "missing/deeper", ""},
		{"/users/42/posts/7", []string{"/", "/users/42", "/users/42/posts/7"},
			map[string]string{"id": "42", "post": "7"}, "", ""},
		{"/users/me", []string{"/", "/users/me"}, map[string]string{}, "", ""},
		{"/users/me/posts/1", []string{"/", "/users/me", "/users/me/posts/1"},
			map[string]string{"id": "me", "post": "1"}, "", ""},
		{"/old/stuff", []string{"/"}, map[string]string{}, "", "/settings"},
		{"nowhere?x=1", []string{"/"}, map[string]string{}, "nowhere", ""},
		{"/settings/../settings//theme/", []string{"/", "/settings", "/settings/theme"}, map[string]string{}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res := r.Resolve(tt.path)
			if diff := cmp.Diff(tt.prefixes, res.Prefixes); diff != "" {
				t.Errorf("prefixes mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.params, res.Params); diff != "" {
				t.Errorf("params mismatch (-want +got):\n%s", diff)
			}
			if res.Unmatched != tt.unmatched {
				t.Errorf("unmatched = %q, want %q", res.Unmatched, tt.unmatched)
			}
			if res.Redirect != tt.redirect {
				t.Errorf("redirect = %q, want %q", res.Redirect, tt.redirect)
			}
			if len(res.Pages) != len(res.Prefixes) {
				t.Errorf("%d pages for %d prefixes", len(res.Pages), len(res.Prefixes))
			}
		})
	}
}

func TestRouteViews(t *testing.T) {
	r := New(testTree())
	r.SetFallback(build("not found"))

	route := r.Route(r.Resolve("/settings/nope"))
	var paths []string
	for _, v := range route.Views {
		paths = append(paths, v.Path)
	}
	if diff := cmp.Diff([]string{"/", "/settings"}, paths); diff != "" {
		t.Errorf("view paths mismatch (-want +got):\n%s", diff)
	}
	if route.Unmatched != "nope" || route.Fallback == nil {
		t.Errorf("route = %+v, want unmatched remainder with fallback", route)
	}
}

func TestPatterns(t *testing.T) {
	got := New(testTree()).Patterns()
	want := []string{"/", "/settings", "/settings/theme", "/users/:id", "/users/:id/posts/:post", "/users/me"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("patterns mismatch (-want +got):\n%s", diff)
	}
}

func TestSuggest(t *testing.T) {
	r := New(testTree())
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"/setings", "/settings", true},
		{"/settings/them", "/settings/theme", true},
		{"/zzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", "", false},
	}
	for _, tt := range tests {
		got, ok := r.Suggest(tt.path)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Suggest(%q) = %q, %v, want %q, %v", tt.path, got, ok, tt.want, tt.ok)
		}
	}
	if _, ok := New(&Page{}).Suggest("/x"); ok {
		t.Error("a tree with only a root should not suggest anything")
	}
}
