// Package attach provides the per-session attachment store.
//
// Attachments are externally supplied objects (settings, theme, the signed-in
// profile) looked up by their Go type from any build callback or handler in a
// session:
//
//	theme, ok := attach.Get[*Theme](ctx.Attachments())
//
// The store only holds values. Populating it is the host application's job;
// S3Source is one such populator that decodes read-only documents from a
// bucket when a session opens.
package attach
