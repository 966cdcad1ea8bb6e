// Command weft serves and inspects weft applications.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type globalFlags struct {
	config   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "weft",
		Short: "Server-side component trees for remote renderers",
		Long: `weft runs component trees on the server and streams layout and
structural updates to a remote renderer over a WebSocket.

  • Keyed reconciliation with mount and unmount lifecycle
  • Row, column and stack layout in line-height units
  • Cooperative event handlers with periodic timers
  • Nested pages with guards and redirects`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Path to weft.yaml (default: ./weft.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(
		serveCmd(flags),
		inspectCmd(flags),
		versionCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}
