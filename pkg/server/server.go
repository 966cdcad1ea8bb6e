// Package server exposes sessions over HTTP.
//
// Renderers connect to /ws with the initial page path and viewport as query
// parameters ("/ws?path=/home&w=80&h=24"). Each connection gets its own
// session, which lives until the socket closes. The server also serves
// /healthz and, when a gatherer is configured, Prometheus /metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/weft/pkg/session"
	"github.com/vango-dev/weft/pkg/transport"
	"github.com/vango-dev/weft/pkg/tree"
)

// Server is the HTTP/WebSocket front of a session manager.
type Server struct {
	config   *Config
	sessions *session.Manager
	proxies  *proxyMatcher
	upgrader websocket.Upgrader
	mux      chi.Router
	logger   *slog.Logger

	httpServer *http.Server
}

// New creates a server that opens sessions through sessions.
func New(config *Config, sessions *session.Manager) *Server {
	if config == nil {
		config = DefaultConfig()
	} else {
		config = config.Clone()
		config.fill()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("component", "server")

	s := &Server{
		config:   config,
		sessions: sessions,
		proxies:  newProxyMatcher(config.TrustedProxies, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger: logger,
	}
	s.mux = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.HandleWebSocket)
	if s.config.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Handler returns the server's routes for mounting in another router.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

// HandleWebSocket upgrades the request and runs one session on it until
// either side closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
		return
	}

	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		path = s.config.DefaultPath
	}
	window := tree.Size{Width: number(q.Get("w")), Height: number(q.Get("h"))}
	ip := clientIP(r, s.proxies)

	conn := transport.NewConn(ws, s.config.Transport, s.logger)
	sess, err := s.sessions.Open(ip, conn, window)
	if err != nil {
		s.reject(ws, ip, err)
		return
	}
	logger := s.logger.With("session_id", sess.ID, "ip", ip)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		err := conn.Run(ctx, sess.Receiver())
		cancel()
		runErr <- err
	}()

	if err := sess.Start(ctx, path); err != nil {
		logger.Info("initial navigation failed", "path", path, "error", err)
	}

	select {
	case err := <-runErr:
		logger.Info("connection closed", "error", err)
		sess.Close()
	case <-sess.Done():
		conn.Close()
		<-runErr
	}
}

func (s *Server) reject(ws *websocket.Conn, ip string, err error) {
	code := websocket.CloseInternalServerErr
	switch {
	case errors.Is(err, session.ErrTooManySessionsFromIP), errors.Is(err, session.ErrMaxSessionsReached):
		code = websocket.ClosePolicyViolation
	case errors.Is(err, session.ErrManagerStopped):
		code = websocket.CloseGoingAway
	}
	s.logger.Warn("session rejected", "ip", ip, "error", err)
	ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, err.Error()), time.Now().Add(time.Second))
	ws.Close()
}

func number(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

// Run listens on the configured address until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s.mux,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes every session, then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.sessions.Shutdown(ctx); err != nil {
		s.logger.Warn("sessions did not close in time", "error", err)
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}
	s.logger.Info("server shutdown complete")
	return nil
}

// Sessions returns the session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}
