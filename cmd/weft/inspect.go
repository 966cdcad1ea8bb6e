package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/weft/pkg/layout"
	"github.com/vango-dev/weft/pkg/session"
	"github.com/vango-dev/weft/pkg/transport"
	"github.com/vango-dev/weft/pkg/tree"
)

// nodeDump is one node of the inspect output.
type nodeDump struct {
	ID       uint64         `yaml:"id"`
	Kind     string         `yaml:"kind"`
	Key      string         `yaml:"key,omitempty"`
	Text     string         `yaml:"text,omitempty"`
	Hidden   bool           `yaml:"hidden,omitempty"`
	Box      *transport.Box `yaml:"box,omitempty"`
	Children []*nodeDump    `yaml:"children,omitempty"`
}

type inspectOptions struct {
	path    string
	width   float64
	height  float64
	batches bool
}

func inspectCmd(flags *globalFlags) *cobra.Command {
	opts := inspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect [path]",
		Short: "Render a page offline and print its tree",
		Long: `Open a session on the demo application without a renderer, navigate to
path and print the live tree with its layout as YAML. With --batches the
update batches that would have been sent are printed instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				opts.path = args[0]
			}
			if opts.path == "" {
				opts.path = cfg.Server.DefaultPath
			}
			if opts.width == 0 {
				opts.width = cfg.Session.WindowWidth
			}
			if opts.height == 0 {
				opts.height = cfg.Session.WindowHeight
			}
			level, _ := cfg.LogLevel()
			logger := newLogger(cmd.ErrOrStderr(), max(level, slog.LevelWarn), cfg.Log.Format)

			base := sessionConfig(cfg, logger)
			return inspect(cmd.Context(), cmd.OutOrStdout(), base, opts)
		},
	}

	cmd.Flags().Float64Var(&opts.width, "width", 0, "Viewport width (default: session.window_width)")
	cmd.Flags().Float64Var(&opts.height, "height", 0, "Viewport height (default: session.window_height)")
	cmd.Flags().BoolVar(&opts.batches, "batches", false, "Print the update batches instead of the tree")

	return cmd
}

func inspect(ctx context.Context, w io.Writer, base session.Config, opts inspectOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rec := &transport.Recorder{}
	base.Sender = rec
	base.Window = tree.Size{Width: opts.width, Height: opts.height}
	sess := session.New(base)
	defer sess.Close()

	if err := sess.Start(ctx, opts.path); err != nil {
		fmt.Fprintf(w, "# navigation failed: %v\n", err)
	}

	var dump *nodeDump
	err := sess.Inspect(ctx, func(root *tree.Node, g layout.Geometry) {
		dump = dumpNode(root, g)
	})
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()

	if opts.batches {
		// The writer drains asynchronously after Inspect.
		sess.Close()
		return enc.Encode(rec.Batches())
	}
	path := opts.path
	if r := sess.Route(); r != nil {
		path = r.Path
	}
	fmt.Fprintf(w, "# %s at %gx%g\n", path, opts.width, opts.height)
	return enc.Encode(dump)
}

func dumpNode(n *tree.Node, g layout.Geometry) *nodeDump {
	if n == nil {
		return nil
	}
	d := &nodeDump{
		ID:     uint64(n.ID),
		Kind:   n.Kind.KindName(),
		Key:    n.Key,
		Hidden: !n.Mounted,
	}
	if v, ok := n.Attr(tree.AttrText); ok {
		d.Text = fmt.Sprint(v)
	}
	if b, ok := g[n.ID]; ok {
		d.Box = &transport.Box{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}
	}
	for _, c := range n.Children {
		d.Children = append(d.Children, dumpNode(c, g))
	}
	return d
}
