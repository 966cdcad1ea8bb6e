package reconcile

import "github.com/vango-dev/weft/pkg/tree"

// Update describes an attribute-level change on a matched node.
type Update struct {
	Node    *tree.Node
	Set     []tree.Attr // Added or changed attributes, resolved
	Removed []string    // Names of attributes no longer present
}

// Move describes a matched node whose position among its siblings changed.
type Move struct {
	Node   *tree.Node
	Parent tree.ID
	From   int
	To     int
}

// Diff is the structural result of one reconciliation pass.
type Diff struct {
	Created   []*tree.Node // New instances, parents before children
	Destroyed []*tree.Node // Dropped instances, children before parents
	Mounted   []*tree.Node // Mount transitions, parents before children
	Unmounted []*tree.Node // Unmount transitions, children before parents
	Updated   []Update
	Moved     []Move
}

// Empty reports whether the pass changed nothing.
func (d *Diff) Empty() bool {
	return d == nil || len(d.Created) == 0 && len(d.Destroyed) == 0 &&
		len(d.Mounted) == 0 && len(d.Unmounted) == 0 &&
		len(d.Updated) == 0 && len(d.Moved) == 0
}

// Populate returns the nodes that were created or updated in this pass,
// each once, creations first.
func (d *Diff) Populate() []*tree.Node {
	if d == nil {
		return nil
	}
	seen := make(map[tree.ID]bool, len(d.Created)+len(d.Updated))
	out := make([]*tree.Node, 0, len(d.Created)+len(d.Updated))
	for _, n := range d.Created {
		if !seen[n.ID] {
			seen[n.ID] = true
			out = append(out, n)
		}
	}
	for _, u := range d.Updated {
		if !seen[u.Node.ID] {
			seen[u.Node.ID] = true
			out = append(out, u.Node)
		}
	}
	return out
}

// Merge appends the changes of other to d.
func (d *Diff) Merge(other *Diff) {
	if other == nil {
		return
	}
	d.Created = append(d.Created, other.Created...)
	d.Destroyed = append(d.Destroyed, other.Destroyed...)
	d.Mounted = append(d.Mounted, other.Mounted...)
	d.Unmounted = append(d.Unmounted, other.Unmounted...)
	d.Updated = append(d.Updated, other.Updated...)
	d.Moved = append(d.Moved, other.Moved...)
}
