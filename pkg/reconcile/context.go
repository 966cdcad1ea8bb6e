package reconcile

import (
	"log/slog"

	"github.com/vango-dev/weft/pkg/attach"
	"github.com/vango-dev/weft/pkg/tree"
)

type buildContext struct {
	r    *Reconciler
	node *tree.Node
}

func (c *buildContext) Node() *tree.Node   { return c.node }
func (c *buildContext) State() *tree.State { return c.node.State }
func (c *buildContext) Slot() []*tree.Node { return c.node.Slot }

func (c *buildContext) Bind(field string) tree.Binding {
	return tree.Binding{Owner: c.node.ID, Field: field}
}

func (c *buildContext) Attachments() *attach.Store {
	if c.r.Env.Attachments == nil {
		c.r.Env.Attachments = attach.New()
	}
	return c.r.Env.Attachments
}

func (c *buildContext) Route() *tree.Route { return c.r.Env.Route }
func (c *buildContext) Window() tree.Size  { return c.r.Env.Window }

func (c *buildContext) Logger() *slog.Logger {
	if c.r.Env.Logger != nil {
		return c.r.Env.Logger
	}
	return c.r.logger
}
