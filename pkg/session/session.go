// Package session ties one renderer connection to one live component tree.
//
// A Session owns a reconciler, a scheduler, a layout engine and a navigator.
// Every change to the tree happens on the session's scheduler turn: a
// committed navigation, applied state writes or a window resize each
// trigger a rebuild, which reconciles the active page into the live tree,
// dispatches lifecycle handlers and queues a layout pass. The layout pass
// sends the structural diff and changed geometry as one batch.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/weft/pkg/attach"
	"github.com/vango-dev/weft/pkg/diag"
	"github.com/vango-dev/weft/pkg/layout"
	"github.com/vango-dev/weft/pkg/metrics"
	"github.com/vango-dev/weft/pkg/reconcile"
	"github.com/vango-dev/weft/pkg/router"
	"github.com/vango-dev/weft/pkg/sched"
	"github.com/vango-dev/weft/pkg/transport"
	"github.com/vango-dev/weft/pkg/tree"
)

// Session errors.
var (
	ErrClosed      = errors.New("session: closed")
	ErrUnknownNode = errors.New("session: no such mounted node")
	ErrNoHandler   = errors.New("session: no handler for input")
)

// Source fills a session's attachment store when it starts.
// attach.S3Source is one implementation.
type Source interface {
	Populate(ctx context.Context, store *attach.Store) error
}

// Config configures a Session.
type Config struct {
	Router   *router.Router
	Measurer layout.Measurer
	Sender   transport.Sender

	// Attachments seeds the session's store. The store is cloned, so values
	// are shared between sessions but the set is not.
	Attachments *attach.Store
	Sources     []Source

	Window       tree.Size
	MaxRedirects int
	Clock        sched.Clock

	Sink    diag.Sink
	Metrics *metrics.Collector
	Tracer  trace.Tracer
	Logger  *slog.Logger

	// OutboundQueue is the number of batches buffered for the sender.
	// Default: 64.
	OutboundQueue int
}

// Session is one client's live UI.
type Session struct {
	ID string

	cfg     Config
	logger  *slog.Logger
	sink    diag.Sink
	metrics *metrics.Collector
	tracer  trace.Tracer
	store   *attach.Store

	ctx    context.Context
	cancel context.CancelFunc

	sched  *sched.Scheduler
	rec    *reconcile.Reconciler
	engine *layout.Engine
	nav    *router.Navigator

	mu     sync.Mutex
	route  *tree.Route
	window tree.Size
	closed bool

	sendMu    sync.Mutex
	seq       uint64
	out       chan transport.Batch
	writerEnd chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	// Owned by the turn.
	root     *tree.Node
	geometry layout.Geometry
	pending  *reconcile.Diff
	teardown bool
}

// New creates a session. Call Start to populate attachments and render the
// first page.
func New(cfg Config) *Session {
	if cfg.Router == nil {
		cfg.Router = router.New(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/vango-dev/weft/pkg/session")
	}
	if cfg.OutboundQueue <= 0 {
		cfg.OutboundQueue = 64
	}

	id := uuid.NewString()
	logger := cfg.Logger.With("session_id", id)
	sink := diag.WithSession(diag.Multi{cfg.Sink, cfg.Metrics, diag.Logger{Log: logger}}, id)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        id,
		cfg:       cfg,
		logger:    logger,
		sink:      sink,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		store:     cfg.Attachments.Clone(),
		ctx:       ctx,
		cancel:    cancel,
		window:    cfg.Window,
		out:       make(chan transport.Batch, cfg.OutboundQueue),
		writerEnd: make(chan struct{}),
		done:      make(chan struct{}),
	}

	s.rec = reconcile.New(&tree.Env{Attachments: s.store, Window: cfg.Window, Logger: logger}, sink, logger)
	s.engine = &layout.Engine{Measurer: cfg.Measurer, Sink: sink, Logger: logger}
	s.sched = sched.New(ctx, s, sched.Options{
		Clock:   cfg.Clock,
		Sink:    sink,
		Logger:  logger,
		Observe: cfg.Metrics.ObserveHandler,
		Lookup:  func(id tree.ID) *tree.Node { return s.rec.Lookup(id) },
	})
	s.nav = router.NewNavigator(cfg.Router, router.NavigatorConfig{
		MaxRedirects: cfg.MaxRedirects,
		Run:          s.sched.Run,
		Attachments:  s.Attachments,
		OnCommit:     s.commit,
		Logger:       logger,
	})

	go s.writer()
	cfg.Metrics.SessionOpened()
	logger.Info("session created")
	return s
}

// Start fills the attachment store from the configured sources and
// navigates to path. If the navigation fails the fallback view is shown and
// the error is returned; the session stays usable.
func (s *Session) Start(ctx context.Context, path string) error {
	for _, src := range s.cfg.Sources {
		if err := src.Populate(ctx, s.store); err != nil {
			return fmt.Errorf("session: populate attachments: %w", err)
		}
	}
	err := s.Navigate(ctx, path)
	if err == nil {
		return nil
	}
	if _, ok := s.nav.Current(); !ok {
		clean := router.Clean(path)
		route := s.cfg.Router.Route(router.Resolution{Path: clean, Unmatched: strings.TrimPrefix(clean, "/")})
		s.setRoute(route)
		if cerr := s.sched.Call(ctx, "fallback", s.rebuild); cerr != nil {
			return errors.Join(err, cerr)
		}
	}
	return err
}

// Navigate requests a navigation and waits for its outcome. It must not be
// called while holding the session turn; handlers use tree.Context.Navigate.
func (s *Session) Navigate(ctx context.Context, path string) error {
	if s.isClosed() {
		return ErrClosed
	}
	ctx, span := s.tracer.Start(ctx, "weft.navigate",
		trace.WithAttributes(
			attribute.String("weft.session_id", s.ID),
			attribute.String("weft.path", path),
		))
	defer span.End()

	res, err := s.nav.Navigate(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, router.ErrNavigationSuperseded) {
			s.metrics.Navigation(metrics.NavigationSuperseded)
			return err
		}
		s.metrics.Navigation(metrics.NavigationFailed)
		s.sink.Report(diag.Failure{Kind: diag.KindNavigation, Handler: path, Err: err})
		s.enqueue([]transport.Message{{Kind: transport.KindError, Path: path, Error: err.Error()}})
		return err
	}
	span.SetAttributes(attribute.String("weft.committed", res.Path))
	s.metrics.Navigation(metrics.NavigationCommitted)
	return nil
}

// commit runs after the navigator committed res, without the turn.
func (s *Session) commit(ctx context.Context, res router.Resolution) {
	route := s.cfg.Router.Route(res)
	s.setRoute(route)
	err := s.sched.Call(ctx, "commit", func() {
		s.sched.Fire(tree.EventPageChange, s.live(), res.Path)
		s.enqueue([]transport.Message{{Kind: transport.KindNavigate, Path: res.Path}})
		s.sched.Do("rebuild", s.rebuild)
	})
	if err != nil {
		s.logger.Debug("commit not applied", "path", res.Path, "error", err)
	}
}

// SetWindowSize records the renderer's viewport. A change fires window size
// handlers on every node and rebuilds.
func (s *Session) SetWindowSize(size tree.Size) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	changed := s.window != size
	s.window = size
	s.mu.Unlock()
	if !changed {
		return nil
	}
	return s.sched.Do("resize", func() {
		s.sched.Fire(tree.EventWindowSize, s.live(), size)
		s.sched.Do("rebuild", s.rebuild)
	})
}

// HandleInput dispatches a renderer input event to the handlers registered
// on node for name.
func (s *Session) HandleInput(ctx context.Context, node tree.ID, name string, payload any) error {
	var err error
	cerr := s.sched.Call(ctx, "input", func() {
		n := s.rec.Lookup(node)
		if n == nil || !n.Mounted {
			err = fmt.Errorf("%w: %d", ErrUnknownNode, node)
			return
		}
		if s.sched.Input(n, name, payload) == 0 {
			err = fmt.Errorf("%w: %s on %d", ErrNoHandler, name, node)
		}
	})
	if errors.Is(cerr, sched.ErrClosed) {
		return ErrClosed
	}
	if cerr != nil {
		return cerr
	}
	return err
}

// Refresh schedules a rebuild. Use it after changing a shared attachment.
func (s *Session) Refresh() error {
	return s.sched.Do("refresh", s.rebuild)
}

// Inspect runs fn on the turn with the live tree and its last geometry.
func (s *Session) Inspect(ctx context.Context, fn func(root *tree.Node, g layout.Geometry)) error {
	return s.sched.Call(ctx, "inspect", func() {
		s.flushLayout()
		fn(s.root, s.geometry)
	})
}

// rebuild reconciles the active page into the live tree. It runs on the turn.
func (s *Session) rebuild() {
	if s.teardown {
		return
	}
	// A pass whose layout has not run yet is sent first so batches never mix
	// two passes.
	s.flushLayout()

	_, span := s.tracer.Start(s.ctx, "weft.rebuild", trace.WithAttributes(attribute.String("weft.session_id", s.ID)))
	defer span.End()

	s.mu.Lock()
	s.rec.Env.Route = s.route
	s.rec.Env.Window = s.window
	s.mu.Unlock()

	start := time.Now()
	root, d := s.rec.Reconcile(s.root, tree.PageView())
	s.root = root
	s.metrics.ObservePass(metrics.PhaseReconcile, time.Since(start))
	span.SetAttributes(
		attribute.Int("weft.created", len(d.Created)),
		attribute.Int("weft.destroyed", len(d.Destroyed)),
		attribute.Int("weft.updated", len(d.Updated)),
	)

	s.dispatch(d)
	if d.Empty() {
		return
	}
	s.pending = d
	s.sched.Do("layout", s.flushLayout)
}

// dispatch hands the lifecycle transitions of d to the scheduler.
// Unmount handlers are queued before mount handlers; both before layout.
func (s *Session) dispatch(d *reconcile.Diff) {
	s.sched.Detach(d.Destroyed)
	s.sched.Attach(d.Created)
	s.sched.Fire(tree.EventUnmount, d.Unmounted, nil)
	s.sched.Fire(tree.EventMount, d.Mounted, nil)
	s.sched.Populate(d.Populate())
}

// flushLayout lays out the live tree and sends the pending pass.
func (s *Session) flushLayout() {
	d := s.pending
	s.pending = nil
	if d == nil {
		return
	}
	s.mu.Lock()
	window := s.window
	s.mu.Unlock()

	start := time.Now()
	g := s.engine.Layout(s.root, window)
	s.metrics.ObservePass(metrics.PhaseLayout, time.Since(start))

	msgs := transport.Encode(d, g, s.geometry)
	s.geometry = g
	s.enqueue(msgs)
}

// enqueue queues messages as one batch for the writer.
func (s *Session) enqueue(msgs []transport.Message) {
	if len(msgs) == 0 || s.cfg.Sender == nil {
		return
	}
	if s.isClosed() {
		return
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.seq++
	select {
	case s.out <- transport.Batch{Seq: s.seq, Messages: msgs}:
	case <-s.ctx.Done():
	}
}

func (s *Session) writer() {
	defer close(s.writerEnd)
	for {
		select {
		case b := <-s.out:
			s.write(b)
		case <-s.ctx.Done():
			for {
				select {
				case b := <-s.out:
					s.write(b)
				default:
					return
				}
			}
		}
	}
}

func (s *Session) write(b transport.Batch) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.cfg.Sender.Send(ctx, b); err != nil {
		s.sink.Report(diag.Failure{Kind: diag.KindTransport, Err: err})
		go s.Close()
		return
	}
	s.metrics.BatchSent(len(b.Messages))
}

// live returns every node of the live tree, mounted or not.
func (s *Session) live() []*tree.Node {
	var out []*tree.Node
	if s.root != nil {
		tree.Walk(s.root, func(n *tree.Node) bool {
			out = append(out, n)
			return true
		})
	}
	return out
}

// Close tears the session down: the tree is destroyed, unmount handlers
// run, timers stop and queued batches are flushed. It is safe to call more
// than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		err := s.sched.Call(context.Background(), "teardown", func() {
			s.flushLayout()
			_, d := s.rec.Reconcile(s.root, nil)
			s.root = nil
			s.geometry = nil
			s.teardown = true
			s.sched.Detach(d.Destroyed)
			s.sched.Fire(tree.EventUnmount, d.Unmounted, nil)
		})
		if err != nil {
			s.logger.Debug("teardown skipped", "error", err)
		}

		s.sched.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.sched.Wait(ctx); err != nil {
			s.logger.Warn("scheduler did not drain", "error", err)
		}
		cancel()

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		<-s.writerEnd

		s.metrics.SessionClosed()
		s.logger.Info("session closed")
		close(s.done)
	})
	return nil
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) setRoute(r *tree.Route) {
	s.mu.Lock()
	s.route = r
	s.mu.Unlock()
}

// Host implementation for the scheduler.

// Attachments returns the session's attachment store.
func (s *Session) Attachments() *attach.Store { return s.store }

// Route returns the committed route.
func (s *Session) Route() *tree.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// Window returns the last reported viewport.
func (s *Session) Window() tree.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

// StateChanged rebuilds after declared writes were applied.
func (s *Session) StateChanged() {
	s.rebuild()
}

// Receiver returns the transport.Receiver feeding this session.
func (s *Session) Receiver() transport.Receiver {
	return receiver{s}
}

type receiver struct{ s *Session }

func (r receiver) Input(node tree.ID, name string, payload any) error {
	return r.s.HandleInput(r.s.ctx, node, name, payload)
}

func (r receiver) Resize(size tree.Size) error {
	return r.s.SetWindowSize(size)
}

func (r receiver) Navigate(ctx context.Context, path string) error {
	return r.s.Navigate(ctx, path)
}
