package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionShort(t *testing.T) {
	out, err := execute(t, "version", "--short")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != version {
		t.Errorf("version --short = %q, want %q", out, version)
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, slog.LevelInfo, "auto").Info("hello", "n", 1)
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("auto format on a buffer is not JSON: %q", buf.String())
	}
	if rec["msg"] != "hello" {
		t.Errorf("msg = %v", rec["msg"])
	}

	buf.Reset()
	newLogger(&buf, slog.LevelInfo, "text").Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output = %q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, slog.LevelWarn, "json").Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
}

func TestInspectHome(t *testing.T) {
	out, err := execute(t, "inspect", "/", "--width", "40", "--height", "10")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "# / at 40x10\n") {
		t.Errorf("header missing: %q", out)
	}
	var root nodeDump
	if err := yaml.Unmarshal([]byte(out), &root); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	if root.Box == nil || root.Box.Width > 40 || root.Box.Height > 10 {
		t.Errorf("root box = %+v, want within 40x10", root.Box)
	}
	if !strings.Contains(out, "Clicks: 0") {
		t.Errorf("counter not rendered:\n%s", out)
	}
}

func TestInspectBatches(t *testing.T) {
	out, err := execute(t, "inspect", "/users/7", "--batches")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"kind: navigate", "path: /users/7", "kind: mount", "User 7"} {
		if !strings.Contains(out, want) {
			t.Errorf("batches missing %q:\n%s", want, out)
		}
	}
}

func TestInvalidLogLevel(t *testing.T) {
	if _, err := execute(t, "--log-level", "loud", "inspect"); err == nil {
		t.Error("unknown --log-level should fail")
	}
}
