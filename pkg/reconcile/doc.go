// Package reconcile merges freshly built component trees into the live tree.
//
// Reconcile matches each new node against the previous tree, migrates runtime
// identity (ID and State) to matched nodes, builds builder kinds with their
// surviving state, and reports what changed as a Diff. A matched node is a
// new object each pass and carries the handler table of the newer build:
//
//	root, diff := r.Reconcile(root, tree.PageView())
//	for _, n := range diff.Mounted {
//	    // fire mount handlers
//	}
//
// Matching rules, per sibling list:
//
//   - Keyed children match the old child with the same key.
//   - Unkeyed children match the old unkeyed child of the same kind at the
//     same ordinal among unkeyed siblings of that kind.
//   - A match additionally requires the same kind. A key whose kind changed
//     destroys the old node and creates a new one.
//   - Old children left unmatched are destroyed, children before parents.
//
// Reconcile is not safe for concurrent use; a session calls it while holding
// its scheduler turn.
package reconcile
