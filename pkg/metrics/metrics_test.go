package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vango-dev/weft/pkg/diag"
	"github.com/vango-dev/weft/pkg/tree"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestCollector(t *testing.T) {
	c := New(WithRegistry(prometheus.NewRegistry()))

	c.SessionOpened()
	c.SessionOpened()
	c.SessionClosed()
	if v := gaugeValue(t, c.activeSessions); v != 1 {
		t.Errorf("active sessions = %v, want 1", v)
	}
	if v := counterValue(t, c.sessionsTotal); v != 2 {
		t.Errorf("sessions total = %v, want 2", v)
	}

	c.ObservePass(PhaseReconcile, time.Millisecond)
	c.ObservePass(PhaseLayout, time.Millisecond)
	c.ObservePass(PhaseLayout, time.Millisecond)
	if n := histogramCount(t, c.passDuration.WithLabelValues(PhaseLayout)); n != 2 {
		t.Errorf("layout passes = %d, want 2", n)
	}

	c.ObserveHandler(tree.EventMount, time.Millisecond, nil)
	c.ObserveHandler(tree.EventMount, time.Millisecond, errors.New("x"))
	if n := histogramCount(t, c.handlerTime.WithLabelValues("mount", "error")); n != 1 {
		t.Errorf("failed mount handlers = %d, want 1", n)
	}

	var sink diag.Sink = c
	sink.Report(diag.Failure{Kind: diag.KindHandler})
	sink.Report(diag.Failure{Kind: diag.KindHandler})
	if v := counterValue(t, c.failures.WithLabelValues("handler")); v != 2 {
		t.Errorf("handler failures = %v, want 2", v)
	}

	c.Navigation(NavigationCommitted)
	c.BatchSent(5)
	c.BatchSent(3)
	if v := counterValue(t, c.navigations.WithLabelValues("committed")); v != 1 {
		t.Errorf("committed navigations = %v, want 1", v)
	}
	if v := counterValue(t, c.messages); v != 8 {
		t.Errorf("messages = %v, want 8", v)
	}
	if v := counterValue(t, c.batches); v != 2 {
		t.Errorf("batches = %v, want 2", v)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.SessionOpened()
	c.SessionClosed()
	c.ObservePass(PhaseLayout, time.Second)
	c.ObserveHandler(tree.EventInput, time.Second, nil)
	c.Report(diag.Failure{})
	c.Navigation(NavigationFailed)
	c.BatchSent(1)
}

func TestNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithRegistry(reg), WithNamespace("app"), WithConstLabels(prometheus.Labels{"env": "test"}))
	c.SessionOpened()

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "app_active_sessions" {
			found = true
			if got := f.GetMetric()[0].GetLabel()[0].GetValue(); got != "test" {
				t.Errorf("const label = %q, want test", got)
			}
		}
	}
	if !found {
		t.Error("app_active_sessions not registered")
	}
}
