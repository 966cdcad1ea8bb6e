// Package router maps paths onto a static page tree and runs navigation
// guard chains.
//
// # Page Tree
//
// The tree is built once when the application starts and is never mutated:
//
//	root := &router.Page{
//	    Build: layout,
//	    Children: []router.Entry{
//	        &router.Page{Segment: "settings", Build: settings, Guard: signedIn},
//	        &router.Page{Segment: "users/:id", Build: profile},
//	        &router.Redirect{Segment: "old", Target: "/"},
//	    },
//	}
//	r := router.New(root)
//
// Resolution is longest-prefix: the deepest chain of pages matching the
// path wins and any remainder is reported as Unmatched. An unmatched
// remainder is not an error; the session shows the fallback view for it.
// Literal segments are preferred over ":name" parameters at the same depth.
//
// # Navigation
//
// A Navigator drives the Idle → Evaluating → Committed | Redirecting | Failed
// state machine. Guards run root first; the first redirect aborts the chain
// and resolution restarts at its target. Redirect entries in the tree and
// guard redirects share one bound (MaxRedirects, default 10). Exceeding it,
// or any guard error, fails with ErrNavigationFailed and keeps the previous
// page.
package router
