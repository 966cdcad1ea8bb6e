package tree

type pageView struct{}

func (pageView) KindName() string { return "page_view" }
func (pageView) Policy() Policy   { return PolicyPassThrough }

// Build renders the view for this PageView's depth in the active route.
// The depth is the number of PageView ancestors. When the route has no view
// at this depth and part of the path went unmatched, the fallback is shown.
func (pageView) Build(ctx BuildContext) *Node {
	route := ctx.Route()
	if route == nil {
		return nil
	}
	depth := 0
	for p := ctx.Node().Parent; p != nil; p = p.Parent {
		if p.Kind == PageViewKind {
			depth++
		}
	}
	if depth < len(route.Views) {
		view := route.Views[depth]
		if view.Build == nil {
			return New(PageViewKind, Keyed(view.Path))
		}
		n := view.Build(ctx)
		if n != nil && n.Key == "" {
			n.Key = view.Path
		}
		return n
	}
	if depth == len(route.Views) && (route.Unmatched != "" || len(route.Views) == 0) && route.Fallback != nil {
		n := route.Fallback(ctx)
		if n != nil && n.Key == "" {
			n.Key = "fallback"
		}
		return n
	}
	return nil
}

// PageViewKind renders the active page at its depth of the page tree.
var PageViewKind Builder = pageView{}

// PageView creates a node that displays the active page.
func PageView(args ...any) *Node {
	return New(PageViewKind, args...)
}
