package weft

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/weft/pkg/router"
	"github.com/vango-dev/weft/pkg/session"
	"github.com/vango-dev/weft/pkg/transport"
	"github.com/vango-dev/weft/pkg/tree"
)

func testRouter() *router.Router {
	return router.New(&router.Page{
		Build: func(ctx tree.BuildContext) *tree.Node {
			return tree.Text("hello " + ctx.Route().Path)
		},
	})
}

func TestAppServesSessions(t *testing.T) {
	app := New(Config{
		Router:           testRouter(),
		Metrics:          true,
		MetricsNamespace: "weft",
		Sessions:         session.DefaultManagerConfig(),
	})
	ts := httptest.NewServer(app)
	t.Cleanup(func() {
		app.Sessions().Shutdown(context.Background())
		ts.Close()
	})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?path=/&w=20&h=5"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for found := false; !found; {
		var b transport.Batch
		if err := c.ReadJSON(&b); err != nil {
			t.Fatalf("read: %v", err)
		}
		for _, m := range b.Messages {
			if m.Kind == transport.KindMount && m.Attrs[tree.AttrText] == "hello /" {
				found = true
			}
		}
	}

	families, err := app.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var opened float64
	var goRuntime bool
	for _, mf := range families {
		switch mf.GetName() {
		case "weft_sessions_total":
			opened = mf.GetMetric()[0].GetCounter().GetValue()
		case "go_goroutines":
			goRuntime = true
		}
	}
	if opened != 1 {
		t.Errorf("weft_sessions_total = %v, want 1", opened)
	}
	if !goRuntime {
		t.Error("Go runtime collector not registered")
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", resp.StatusCode)
	}
}

func TestAppWithoutMetrics(t *testing.T) {
	app := New(Config{Router: testRouter()})
	if app.Registry() != nil {
		t.Error("registry created with metrics disabled")
	}

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/metrics status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d", rec.Code)
	}
}
