package router

import (
	"path"
	"strings"

	"github.com/vango-dev/weft/pkg/tree"
)

// Entry is a child of a Page: either *Page or *Redirect.
type Entry interface {
	entry()
	segments() []string
}

// Page is a node of the page tree.
type Page struct {
	// Segment is matched against the path, relative to the parent page.
	// It may span several "/"-separated parts; a part starting with ':'
	// captures a parameter. The root page's Segment is ignored.
	Segment string

	// Build renders the page. A nil Build renders the child page directly.
	Build func(ctx tree.BuildContext) *tree.Node

	// Guard, if set, runs before the page is committed.
	Guard Guard

	Children []Entry
}

// Redirect sends navigation for its segment to Target.
type Redirect struct {
	Segment string
	Target  string
}

func (*Page) entry()     {}
func (*Redirect) entry() {}

func (p *Page) segments() []string     { return split(p.Segment) }
func (r *Redirect) segments() []string { return split(r.Segment) }

// split splits a path into its non-empty parts.
func split(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Clean canonicalizes a navigation path: it drops any query or fragment,
// resolves dot segments and ensures a single leading slash.
func Clean(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return path.Clean("/" + p)
}

func join(parts []string) string {
	return "/" + strings.Join(parts, "/")
}
