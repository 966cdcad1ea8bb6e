package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/weft/pkg/tree"
)

// Connection errors.
var (
	ErrKeepaliveTimeout = errors.New("transport: keepalive timeout")
	ErrClosed           = errors.New("transport: connection closed")
)

// Config configures a WebSocket connection.
type Config struct {
	// KeepaliveInterval is the time between pings.
	KeepaliveInterval time.Duration

	// KeepaliveTimeout is how long to wait for a pong after a ping.
	KeepaliveTimeout time.Duration

	// WriteTimeout bounds each write.
	WriteTimeout time.Duration

	// MaxMessageSize bounds inbound messages.
	MaxMessageSize int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeepaliveInterval: 50 * time.Second,
		KeepaliveTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageSize:    64 * 1024,
	}
}

// Conn is a Sender over a WebSocket connection.
type Conn struct {
	ws     *websocket.Conn
	cfg    Config
	logger *slog.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps an upgraded connection. Zero fields of cfg take their
// defaults.
func NewConn(ws *websocket.Conn, cfg Config, logger *slog.Logger) *Conn {
	def := DefaultConfig()
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = def.KeepaliveInterval
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = def.KeepaliveTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{ws: ws, cfg: cfg, logger: logger, done: make(chan struct{})}
}

// Send writes one batch.
func (c *Conn) Send(ctx context.Context, b Batch) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteJSON(b); err != nil {
		return fmt.Errorf("transport: write batch %d: %w", b.Seq, err)
	}
	return nil
}

// Run reads inbound messages and dispatches them to recv until the
// connection fails, ctx is done or no pong arrives in time. It always
// returns a non-nil error.
func (c *Conn) Run(ctx context.Context, recv Receiver) error {
	defer c.Close()

	wait := c.cfg.KeepaliveInterval + c.cfg.KeepaliveTimeout
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(wait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(wait))
	})

	go c.ping(ctx)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	for {
		var in Inbound
		if err := c.ws.ReadJSON(&in); err != nil {
			return c.readError(ctx, err)
		}
		c.ws.SetReadDeadline(time.Now().Add(wait))
		c.dispatch(ctx, recv, in)
	}
}

func (c *Conn) readError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		c.logger.Warn("keepalive timeout, closing connection")
		return ErrKeepaliveTimeout
	}
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNormalClosure) {
		c.logger.Error("read error", "error", err)
	}
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return fmt.Errorf("transport: malformed message: %w", err)
	}
	return fmt.Errorf("%w: %w", ErrClosed, err)
}

func (c *Conn) dispatch(ctx context.Context, recv Receiver, in Inbound) {
	switch in.Kind {
	case KindInput:
		var payload any
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &payload); err != nil {
				c.logger.Warn("bad input payload", "node", uint64(in.Node), "error", err)
				return
			}
		}
		if err := recv.Input(in.Node, in.Name, payload); err != nil {
			c.logger.Debug("input rejected", "node", uint64(in.Node), "name", in.Name, "error", err)
		}
	case KindResize:
		if err := recv.Resize(tree.Size{Width: in.Width, Height: in.Height}); err != nil {
			c.logger.Debug("resize rejected", "error", err)
		}
	case KindNavigate:
		// Guards may take a while; the read loop keeps serving pongs.
		go func() {
			if err := recv.Navigate(ctx, in.Path); err != nil {
				c.logger.Info("navigation from client failed", "path", in.Path, "error", err)
			}
		}()
	default:
		c.logger.Warn("unknown message kind", "kind", in.Kind)
	}
}

func (c *Conn) ping(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("ping failed", "error", err)
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Close sends a close frame and closes the connection. It is safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// Done is closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}
