package router

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/vango-dev/weft/pkg/tree"
)

// Resolution is the result of matching a path against the page tree.
type Resolution struct {
	Path      string            // Cleaned requested path
	Pages     []*Page           // Matched pages, root first
	Prefixes  []string          // Concrete path matched by each page
	Params    map[string]string // Captured ":name" parts
	Unmatched string            // Remainder no page matched, without leading slash

	// Redirect is the target of a redirect entry on the path, if one matched.
	Redirect string
}

// Router resolves paths against a read-only page tree.
type Router struct {
	root     *Page
	fallback func(ctx tree.BuildContext) *tree.Node
	patterns []string
}

// New creates a router for the tree rooted at root.
func New(root *Page) *Router {
	if root == nil {
		root = &Page{}
	}
	r := &Router{root: root}
	r.collect(root, nil)
	sort.Strings(r.patterns)
	return r
}

// SetFallback sets the view shown for unmatched path remainders.
func (r *Router) SetFallback(fn func(ctx tree.BuildContext) *tree.Node) {
	r.fallback = fn
}

// Root returns the root page.
func (r *Router) Root() *Page {
	return r.root
}

// Patterns returns the path pattern of every page, sorted.
func (r *Router) Patterns() []string {
	return append([]string(nil), r.patterns...)
}

func (r *Router) collect(p *Page, prefix []string) {
	r.patterns = append(r.patterns, join(prefix))
	for _, e := range p.Children {
		child, ok := e.(*Page)
		if !ok {
			continue
		}
		r.collect(child, append(append([]string(nil), prefix...), child.segments()...))
	}
}

// Resolve matches path against the tree. The root page always matches.
func (r *Router) Resolve(p string) Resolution {
	p = Clean(p)
	parts := split(p)

	best := &match{}
	r.walk(r.root, parts, 0, &match{pages: []*Page{r.root}, prefixes: []string{"/"}, params: map[string]string{}}, best)

	res := Resolution{
		Path:     p,
		Pages:    best.pages,
		Prefixes: best.prefixes,
		Params:   best.params,
		Redirect: best.redirect,
	}
	if best.consumed < len(parts) && best.redirect == "" {
		res.Unmatched = strings.Join(parts[best.consumed:], "/")
	}
	return res
}

type match struct {
	pages    []*Page
	prefixes []string
	params   map[string]string
	consumed int
	redirect string
}

func (m *match) clone() *match {
	params := make(map[string]string, len(m.params))
	for k, v := range m.params {
		params[k] = v
	}
	return &match{
		pages:    append([]*Page(nil), m.pages...),
		prefixes: append([]string(nil), m.prefixes...),
		params:   params,
		consumed: m.consumed,
		redirect: m.redirect,
	}
}

// walk records in best the deepest match below page. Children are tried
// literal first, so a parameter only wins when it matches strictly deeper.
func (r *Router) walk(page *Page, parts []string, at int, cur, best *match) {
	if cur.consumed > best.consumed || best.pages == nil {
		*best = *cur.clone()
	}
	if cur.redirect != "" {
		return
	}
	for _, pass := range []bool{false, true} {
		for _, e := range page.Children {
			segs := e.segments()
			if hasParam(segs) != pass || len(segs) == 0 {
				continue
			}
			params, ok := matchParts(segs, parts[at:])
			if !ok {
				continue
			}
			next := cur.clone()
			next.consumed = at + len(segs)
			for k, v := range params {
				next.params[k] = v
			}
			switch e := e.(type) {
			case *Page:
				next.pages = append(next.pages, e)
				next.prefixes = append(next.prefixes, join(parts[:next.consumed]))
				r.walk(e, parts, next.consumed, next, best)
			case *Redirect:
				next.redirect = e.Target
				if next.consumed > best.consumed {
					*best = *next
				}
			}
		}
	}
}

func hasParam(segs []string) bool {
	for _, s := range segs {
		if strings.HasPrefix(s, ":") {
			return true
		}
	}
	return false
}

func matchParts(segs, parts []string) (map[string]string, bool) {
	if len(segs) > len(parts) {
		return nil, false
	}
	var params map[string]string
	for i, s := range segs {
		if name, ok := strings.CutPrefix(s, ":"); ok {
			if params == nil {
				params = make(map[string]string)
			}
			params[name] = parts[i]
			continue
		}
		if s != parts[i] {
			return nil, false
		}
	}
	return params, true
}

// Route converts a committed resolution into the route a session renders.
func (r *Router) Route(res Resolution) *tree.Route {
	route := &tree.Route{
		Path:      res.Path,
		Params:    res.Params,
		Unmatched: res.Unmatched,
		Fallback:  r.fallback,
	}
	for i, p := range res.Pages {
		route.Views = append(route.Views, tree.View{Path: res.Prefixes[i], Build: p.Build})
	}
	return route
}

// Suggest returns the page pattern closest to p by edit distance. It reports
// false when the tree has no pages other than the root or nothing is close.
func (r *Router) Suggest(p string) (string, bool) {
	p = Clean(p)
	best, bestDist := "", -1
	for _, pattern := range r.patterns {
		if pattern == "/" {
			continue
		}
		d := levenshtein.ComputeDistance(p, pattern)
		if bestDist < 0 || d < bestDist {
			best, bestDist = pattern, d
		}
	}
	if bestDist < 0 || bestDist > max(2, len(p)/2) {
		return "", false
	}
	return best, true
}
