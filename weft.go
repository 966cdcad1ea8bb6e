// Package weft runs server-side component trees for remote renderers.
//
// An App bundles a page router, a session manager and the HTTP server that
// accepts renderer connections:
//
//	app := weft.New(weft.Config{
//	    Router: router.New(&router.Page{Build: home}),
//	})
//	if err := app.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Renderers connect to /ws?path=/&w=80&h=24 and receive batches of mount,
// unmount, update, move and geometry messages.
package weft

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vango-dev/weft/pkg/attach"
	"github.com/vango-dev/weft/pkg/diag"
	"github.com/vango-dev/weft/pkg/layout"
	"github.com/vango-dev/weft/pkg/measure"
	"github.com/vango-dev/weft/pkg/metrics"
	"github.com/vango-dev/weft/pkg/router"
	"github.com/vango-dev/weft/pkg/server"
	"github.com/vango-dev/weft/pkg/session"
	"github.com/vango-dev/weft/pkg/tree"
)

// Config configures an App. Only Router is required.
type Config struct {
	Router *router.Router

	// Attachments is the shared store each session clones.
	Attachments *attach.Store

	// Sources add per-session attachments.
	Sources []session.Source

	// Measurer sizes text. Default: measure.Default.
	Measurer layout.Measurer

	// Window is assumed until the renderer reports its size.
	// Default: 80x24.
	Window tree.Size

	// MaxRedirects bounds guard redirects per navigation.
	// Default: 10.
	MaxRedirects int

	Server   *server.Config
	Sessions session.ManagerConfig

	// Metrics enables Prometheus collection. The registry also gathers Go
	// runtime and process metrics and is served at /metrics.
	Metrics          bool
	MetricsNamespace string

	// Sink receives failures in addition to the logger and metrics.
	Sink diag.Sink

	Logger *slog.Logger
}

// App is a configured weft server.
type App struct {
	server   *server.Server
	sessions *session.Manager
	registry *prometheus.Registry
	logger   *slog.Logger
}

// New builds an App from cfg.
func New(cfg Config) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Measurer == nil {
		cfg.Measurer = measure.Default
	}
	if cfg.Window == (tree.Size{}) {
		cfg.Window = tree.Size{Width: 80, Height: 24}
	}
	srvCfg := cfg.Server.Clone()
	if srvCfg == nil {
		srvCfg = server.DefaultConfig()
	}
	if srvCfg.Logger == nil {
		srvCfg.Logger = logger
	}

	base := session.Config{
		Router:       cfg.Router,
		Measurer:     cfg.Measurer,
		Attachments:  cfg.Attachments,
		Sources:      cfg.Sources,
		Window:       cfg.Window,
		MaxRedirects: cfg.MaxRedirects,
		Sink:         cfg.Sink,
		Logger:       logger,
	}

	a := &App{logger: logger}
	if cfg.Metrics {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts := []metrics.Option{metrics.WithRegistry(a.registry)}
		if cfg.MetricsNamespace != "" {
			opts = append(opts, metrics.WithNamespace(cfg.MetricsNamespace))
		}
		base.Metrics = metrics.New(opts...)
		srvCfg.WithGatherer(a.registry)
	}

	a.sessions = session.NewManager(base, cfg.Sessions)
	a.server = server.New(srvCfg, a.sessions)
	return a
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.server.ServeHTTP(w, r)
}

// Handler returns the App as an http.Handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Run serves until ctx is done, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Shutdown closes every session and stops the listener.
func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager {
	return a.sessions
}

// Registry returns the metrics registry, or nil when metrics are disabled.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}
