package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/vango-dev/weft/pkg/diag"
	"github.com/vango-dev/weft/pkg/tree"
)

// ErrDuplicateKey is reported when two siblings share a key.
// The later sibling is matched positionally instead.
var ErrDuplicateKey = errors.New("reconcile: duplicate sibling key")

// BuildError wraps a panic raised by a build callback.
type BuildError struct {
	Component string
	Panic     any
	Stack     string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s panicked: %v", e.Component, e.Panic)
}

// Reconciler owns the identity index of one live tree.
type Reconciler struct {
	// Env is read by build callbacks. It may be replaced between passes.
	Env *tree.Env

	sink   diag.Sink
	logger *slog.Logger
	nextID tree.ID
	index  map[tree.ID]*tree.Node
}

// New creates a reconciler. A nil sink discards reports; a nil logger uses
// slog.Default.
func New(env *tree.Env, sink diag.Sink, logger *slog.Logger) *Reconciler {
	if env == nil {
		env = &tree.Env{}
	}
	if sink == nil {
		sink = diag.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		Env:    env,
		sink:   sink,
		logger: logger,
		index:  make(map[tree.ID]*tree.Node),
	}
}

// Lookup returns the live node with the given ID.
func (r *Reconciler) Lookup(id tree.ID) *tree.Node {
	return r.index[id]
}

// Len returns the number of live nodes.
func (r *Reconciler) Len() int {
	return len(r.index)
}

// Reconcile merges next into the live tree rooted at old and returns the
// merged root. next is modified in place and becomes the live tree; old must
// not be used afterwards unless it is next itself. A nil next destroys old.
func (r *Reconciler) Reconcile(old, next *tree.Node) (*tree.Node, *Diff) {
	d := &Diff{}
	switch {
	case next == nil:
		if old != nil {
			r.destroy(old, d)
		}
		return nil, d
	case old == nil:
		r.create(next, nil, true, d)
	case matches(old, next):
		r.update(old, next, nil, true, d)
	default:
		r.destroy(old, d)
		r.create(next, nil, true, d)
	}
	return next, d
}

func matches(old, next *tree.Node) bool {
	return old.Key == next.Key && tree.SameKind(old.Kind, next.Kind)
}

// create assigns fresh identity to n and its subtree.
func (r *Reconciler) create(n, parent *tree.Node, visible bool, d *Diff) {
	r.nextID++
	n.ID = r.nextID
	n.Parent = parent
	n.Destroyed = false
	n.Mounted = false
	if s, ok := n.Kind.(tree.Stateful); ok {
		n.State = tree.NewState(s.DefaultState())
	} else {
		n.State = nil
	}
	r.index[n.ID] = n
	r.resolve(n)
	d.Created = append(d.Created, n)

	visible = visible && n.Visible()
	if visible {
		n.Mounted = true
		d.Mounted = append(d.Mounted, n)
	}

	if _, ok := n.Kind.(tree.Builder); ok {
		n.Children = single(r.build(n))
	}
	n.Children = compact(n.Children)
	r.checkKeys(n, n.Children)
	for _, c := range n.Children {
		r.create(c, n, visible, d)
	}
}

// update migrates identity from old to n and reconciles their children.
// n keeps the handlers of the newer build.
func (r *Reconciler) update(old, n, parent *tree.Node, visible bool, d *Diff) {
	prevAttrs := old.Live()
	prevKids := old.Children
	wasMounted := old.Mounted

	n.ID = old.ID
	n.State = old.State
	n.Parent = parent
	n.Mounted = wasMounted
	n.Destroyed = false
	r.index[n.ID] = n
	r.resolve(n)

	if set, removed := diffAttrs(prevAttrs, n.Live()); len(set) > 0 || len(removed) > 0 {
		d.Updated = append(d.Updated, Update{Node: n, Set: set, Removed: removed})
	}

	visible = visible && n.Visible()
	if visible && !wasMounted {
		n.Mounted = true
		d.Mounted = append(d.Mounted, n)
	}

	var nextKids []*tree.Node
	if _, ok := n.Kind.(tree.Builder); ok {
		nextKids = single(r.build(n))
	} else {
		nextKids = n.Children
	}
	n.Children = r.children(n, prevKids, nextKids, visible, d)

	if !visible && wasMounted {
		n.Mounted = false
		d.Unmounted = append(d.Unmounted, n)
	}
}

// destroy drops n and its subtree, children first.
func (r *Reconciler) destroy(n *tree.Node, d *Diff) {
	for _, c := range n.Children {
		r.destroy(c, d)
	}
	if n.Mounted {
		n.Mounted = false
		d.Unmounted = append(d.Unmounted, n)
	}
	n.Destroyed = true
	if r.index[n.ID] == n {
		delete(r.index, n.ID)
	}
	d.Destroyed = append(d.Destroyed, n)
}

// children reconciles one sibling list and returns the merged list.
func (r *Reconciler) children(parent *tree.Node, prev, next []*tree.Node, visible bool, d *Diff) []*tree.Node {
	next = compact(next)
	pairs := r.match(parent, prev, next)

	matched := make([]bool, len(prev))
	for _, j := range pairs {
		if j >= 0 {
			matched[j] = true
		}
	}
	for j, c := range prev {
		if !matched[j] {
			r.destroy(c, d)
		}
	}

	for i, c := range next {
		if j := pairs[i]; j >= 0 {
			r.update(prev[j], c, parent, visible, d)
		} else {
			r.create(c, parent, visible, d)
		}
	}

	for _, i := range moved(pairs) {
		d.Moved = append(d.Moved, Move{Node: next[i], Parent: parent.ID, From: pairs[i], To: i})
	}
	return next
}

// match returns, for each next child, the index of its old counterpart or -1.
func (r *Reconciler) match(parent *tree.Node, prev, next []*tree.Node) []int {
	keyed := make(map[string]int)
	unkeyed := make(map[tree.Kind][]int)
	for j, c := range prev {
		if c.Key != "" {
			if _, dup := keyed[c.Key]; !dup {
				keyed[c.Key] = j
				continue
			}
		}
		unkeyed[c.Kind] = append(unkeyed[c.Kind], j)
	}

	pairs := make([]int, len(next))
	seen := make(map[string]bool)
	ordinal := make(map[tree.Kind]int)
	for i, c := range next {
		pairs[i] = -1
		if c.Key != "" {
			if !seen[c.Key] {
				seen[c.Key] = true
				if j, ok := keyed[c.Key]; ok && tree.SameKind(prev[j].Kind, c.Kind) {
					pairs[i] = j
				}
				continue
			}
			r.conflict(parent, c.Key)
		}
		k := ordinal[c.Kind]
		ordinal[c.Kind] = k + 1
		if list := unkeyed[c.Kind]; k < len(list) {
			pairs[i] = list[k]
		}
	}
	return pairs
}

// checkKeys reports duplicate keys in a freshly created sibling list.
func (r *Reconciler) checkKeys(parent *tree.Node, kids []*tree.Node) {
	var seen map[string]bool
	for _, c := range kids {
		if c.Key == "" {
			continue
		}
		if seen == nil {
			seen = make(map[string]bool)
		}
		if seen[c.Key] {
			r.conflict(parent, c.Key)
		}
		seen[c.Key] = true
	}
}

func (r *Reconciler) conflict(parent *tree.Node, key string) {
	var id tree.ID
	if parent != nil {
		id = parent.ID
	}
	r.logger.Warn("duplicate sibling key, matching positionally", "parent", uint64(id), "key", key)
	r.sink.Report(diag.Failure{
		Node: id,
		Kind: diag.KindConflict,
		Err:  fmt.Errorf("%w: %q", ErrDuplicateKey, key),
	})
}

// resolve replaces bindings in n's attributes with their owners' values.
func (r *Reconciler) resolve(n *tree.Node) {
	n.Resolved = nil
	bound := false
	for _, a := range n.Attrs {
		if _, ok := a.Value.(tree.Binding); ok {
			bound = true
			break
		}
	}
	if !bound {
		return
	}
	resolved := make([]tree.Attr, len(n.Attrs))
	for i, a := range n.Attrs {
		resolved[i] = a
		b, ok := a.Value.(tree.Binding)
		if !ok {
			continue
		}
		owner := r.index[b.Owner]
		if owner == nil || owner.State == nil {
			r.logger.Debug("binding owner not live", "node", uint64(n.ID), "owner", uint64(b.Owner), "field", b.Field)
			resolved[i].Value = nil
			continue
		}
		resolved[i].Value = owner.State.Get(b.Field)
	}
	n.Resolved = resolved
}

// build runs a builder's callback, reporting panics instead of propagating
// them. A failed build produces no children.
func (r *Reconciler) build(n *tree.Node) (out *tree.Node) {
	b := n.Kind.(tree.Builder)
	defer func() {
		if p := recover(); p != nil {
			err := &BuildError{Component: n.Kind.KindName(), Panic: p, Stack: string(debug.Stack())}
			r.logger.Error("build panicked", "node", uint64(n.ID), "component", err.Component, "panic", p)
			r.sink.Report(diag.Failure{Node: n.ID, Handler: err.Component, Kind: diag.KindBuild, Err: err})
			out = nil
		}
	}()
	return b.Build(&buildContext{r: r, node: n})
}

func single(n *tree.Node) []*tree.Node {
	if n == nil {
		return nil
	}
	return []*tree.Node{n}
}

func compact(nodes []*tree.Node) []*tree.Node {
	for _, n := range nodes {
		if n == nil {
			out := make([]*tree.Node, 0, len(nodes))
			for _, c := range nodes {
				if c != nil {
					out = append(out, c)
				}
			}
			return out
		}
	}
	return nodes
}
