package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/weft/pkg/transport"
	"github.com/vango-dev/weft/pkg/tree"
)

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// MaxSessions is the maximum number of open sessions. Zero means no limit.
	MaxSessions int

	// MaxSessionsPerIP is the maximum number of open sessions per client
	// address. Zero means no limit.
	// Default: 100.
	MaxSessionsPerIP int
}

// DefaultManagerConfig returns a ManagerConfig with sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxSessionsPerIP: 100,
	}
}

// Error types for session management.
var (
	// ErrTooManySessionsFromIP is returned when the per-IP session limit is exceeded.
	ErrTooManySessionsFromIP = errors.New("too many sessions from this IP address")

	// ErrMaxSessionsReached is returned when the maximum session limit is reached.
	ErrMaxSessionsReached = errors.New("maximum session limit reached")

	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrManagerStopped is returned when operations are attempted on a stopped manager.
	ErrManagerStopped = errors.New("session manager is stopped")
)

type entry struct {
	sess     *Session
	ip       string
	openedAt time.Time
}

// Manager opens sessions from a shared base configuration and enforces
// session limits.
type Manager struct {
	mu sync.Mutex

	base   Config
	config ManagerConfig
	logger *slog.Logger

	sessions     map[string]*entry
	sessionsByIP map[string]int
	stopped      bool
}

// NewManager creates a session manager. Every session it opens uses base with
// its own Sender and window size.
func NewManager(base Config, config ManagerConfig) *Manager {
	logger := base.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		base:         base,
		config:       config,
		logger:       logger.With("component", "session_manager"),
		sessions:     make(map[string]*entry),
		sessionsByIP: make(map[string]int),
	}
}

// Open creates a session for a client at ip. The caller starts it.
// The session is forgotten when it closes.
func (m *Manager) Open(ip string, sender transport.Sender, window tree.Size) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, ErrManagerStopped
	}
	if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
		return nil, ErrMaxSessionsReached
	}
	if m.config.MaxSessionsPerIP > 0 && m.sessionsByIP[ip] >= m.config.MaxSessionsPerIP {
		m.logger.Warn("per-IP session limit reached", "ip", ip, "limit", m.config.MaxSessionsPerIP)
		return nil, ErrTooManySessionsFromIP
	}

	cfg := m.base
	cfg.Sender = sender
	if window != (tree.Size{}) {
		cfg.Window = window
	}
	sess := New(cfg)

	m.sessions[sess.ID] = &entry{sess: sess, ip: ip, openedAt: time.Now()}
	m.sessionsByIP[ip]++
	m.logger.Debug("session opened", "session_id", sess.ID, "ip", ip)

	go func() {
		<-sess.Done()
		m.forget(sess.ID)
	}()
	return sess, nil
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)
	m.sessionsByIP[e.ip]--
	if m.sessionsByIP[e.ip] <= 0 {
		delete(m.sessionsByIP, e.ip)
	}
	m.logger.Debug("session forgotten", "session_id", id, "lifetime", time.Since(e.openedAt))
}

// Get returns an open session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.sess, nil
}

// Close closes the session with the given ID.
func (m *Manager) Close(id string) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	sess.Close()
	m.forget(id)
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CountForIP returns the number of open sessions for ip.
func (m *Manager) CountForIP(ip string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionsByIP[ip]
}

// Shutdown refuses new sessions and closes every open one, or returns when
// ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = true
	open := make([]*Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		open = append(open, e.sess)
	}
	m.mu.Unlock()

	m.logger.Info("shutting down sessions", "count", len(open))

	var wg sync.WaitGroup
	for _, sess := range open {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(sess)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
