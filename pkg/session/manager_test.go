package session

import (
	"context"
	"errors"
	"testing"

	"github.com/vango-dev/weft/pkg/router"
	"github.com/vango-dev/weft/pkg/transport"
	"github.com/vango-dev/weft/pkg/tree"
)

func newManager(config ManagerConfig) *Manager {
	return NewManager(Config{Router: router.New(&router.Page{Build: text("hi")})}, config)
}

func TestManagerPerIPLimit(t *testing.T) {
	m := newManager(ManagerConfig{MaxSessionsPerIP: 2})
	defer m.Shutdown(context.Background())

	for i := 0; i < 2; i++ {
		if _, err := m.Open("10.0.0.1", &transport.Recorder{}, tree.Size{}); err != nil {
			t.Fatalf("Open %d: %v", i, err)
		}
	}
	if _, err := m.Open("10.0.0.1", &transport.Recorder{}, tree.Size{}); !errors.Is(err, ErrTooManySessionsFromIP) {
		t.Errorf("third Open = %v, want ErrTooManySessionsFromIP", err)
	}
	if _, err := m.Open("10.0.0.2", &transport.Recorder{}, tree.Size{}); err != nil {
		t.Errorf("other IP: %v", err)
	}
	if got := m.CountForIP("10.0.0.1"); got != 2 {
		t.Errorf("CountForIP = %d, want 2", got)
	}
}

func TestManagerMaxSessions(t *testing.T) {
	m := newManager(ManagerConfig{MaxSessions: 1})
	defer m.Shutdown(context.Background())

	sess, err := m.Open("a", &transport.Recorder{}, tree.Size{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Open("b", &transport.Recorder{}, tree.Size{}); !errors.Is(err, ErrMaxSessionsReached) {
		t.Errorf("Open = %v, want ErrMaxSessionsReached", err)
	}

	if err := m.Close(sess.ID); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d after Close", m.Len())
	}
	if _, err := m.Get(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get = %v, want ErrSessionNotFound", err)
	}
	if err := m.Close(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Close = %v, want ErrSessionNotFound", err)
	}
	if _, err := m.Open("b", &transport.Recorder{}, tree.Size{}); err != nil {
		t.Errorf("Open after Close: %v", err)
	}
}

func TestManagerForgetsClosedSessions(t *testing.T) {
	m := newManager(DefaultManagerConfig())
	defer m.Shutdown(context.Background())

	sess, err := m.Open("a", &transport.Recorder{}, tree.Size{Width: 40, Height: 10})
	if err != nil {
		t.Fatal(err)
	}
	if got := sess.Window(); got != (tree.Size{Width: 40, Height: 10}) {
		t.Errorf("Window = %v", got)
	}
	sess.Close()
	eventually(t, "session forgotten", func() bool { return m.Len() == 0 })
	if m.CountForIP("a") != 0 {
		t.Error("IP count not released")
	}
}

func TestManagerShutdown(t *testing.T) {
	m := newManager(ManagerConfig{})
	var open []*Session
	for i := 0; i < 3; i++ {
		sess, err := m.Open("a", &transport.Recorder{}, tree.Size{})
		if err != nil {
			t.Fatal(err)
		}
		if err := sess.Start(context.Background(), "/"); err != nil {
			t.Fatal(err)
		}
		open = append(open, sess)
	}

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	for _, sess := range open {
		select {
		case <-sess.Done():
		default:
			t.Errorf("session %s still open", sess.ID)
		}
	}
	if _, err := m.Open("a", &transport.Recorder{}, tree.Size{}); !errors.Is(err, ErrManagerStopped) {
		t.Errorf("Open after Shutdown = %v, want ErrManagerStopped", err)
	}
}
