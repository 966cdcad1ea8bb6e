package diag

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestWithSessionStampsFailures(t *testing.T) {
	var rec Recorder
	s := WithSession(&rec, "abc")

	s.Report(Failure{Kind: KindHandler, Node: 7, Err: errors.New("boom")})
	s.Report(Failure{Kind: KindBuild, SessionID: "other"})

	got := rec.Failures()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].SessionID != "abc" || got[0].Time.IsZero() {
		t.Errorf("first failure not stamped: %+v", got[0])
	}
	if got[1].SessionID != "other" {
		t.Errorf("explicit session ID overwritten: %q", got[1].SessionID)
	}
	if rec.Count(KindHandler) != 1 {
		t.Errorf("Count(handler) = %d, want 1", rec.Count(KindHandler))
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{Log: slog.New(slog.NewTextHandler(&buf, nil))}

	l.Report(Failure{Kind: KindUnderflow, Node: 3})
	l.Report(Failure{Kind: KindHandler, Handler: "tick", Err: errors.New("boom")})

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "kind=layout_underflow") {
		t.Errorf("underflow should log a warning:\n%s", out)
	}
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "handler=tick") {
		t.Errorf("handler failure should log an error:\n%s", out)
	}
}

func TestMultiSkipsNil(t *testing.T) {
	var a, b Recorder
	Multi{&a, nil, &b}.Report(Failure{Kind: KindConflict})

	if len(a.Failures()) != 1 || len(b.Failures()) != 1 {
		t.Error("both recorders should receive the failure")
	}
}
