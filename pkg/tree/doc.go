// Package tree defines the component tree that application code builds and
// the framework keeps alive between builds.
//
// A Node is a description of one UI element: a Kind, an optional Key, an
// ordered list of attributes, ordered children and a handler registration
// table. Descriptions are cheap to create and are normally rebuilt on every
// pass:
//
//	tree.Column(
//	    tree.Spacing(1),
//	    tree.Text("Counter"),
//	    tree.New(counter, tree.Keyed("main")),
//	)
//
// Once a description has been merged into the live tree by the reconciler it
// carries runtime identity: an ID, the instance State of stateful kinds, the
// Mounted flag and the resolved values of bound attributes. Those fields are
// owned by the session that holds the tree and must only be changed by the
// reconciler and the scheduler.
package tree
