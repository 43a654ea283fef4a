package obslog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestOptionsFromEnv(t *testing.T) {
	env := map[string]string{
		"LOG_LEVEL":      "warn",
		"LOG_FORMAT":     "JSON",
		"LOG_TO_CONSOLE": "false",
		"LOG_TO_FILE":    "true",
		"LOG_SERVICE":    "session",
	}
	o := OptionsFromEnv(func(k string) string { return env[k] })
	if o.Level != zapcore.WarnLevel || o.Format != "json" || o.Console || o.Service != "session" {
		t.Fatalf("unexpected options %+v", o)
	}
	if o.File != filepath.Join("logs", "session.log") {
		t.Fatalf("default log file not applied: %q", o.File)
	}

	d := OptionsFromEnv(func(string) string { return "" })
	if d.Level != zapcore.InfoLevel || !d.Console || d.File != "" {
		t.Fatalf("unexpected defaults %+v", d)
	}
}

func TestFileSinkWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.log")
	l, err := New(Options{Level: zapcore.InfoLevel, Format: "json", File: path, Service: "session"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("hidden")
	l.Info("session_connect", zap.String("conn_id", "c1"))
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one entry, got %q", raw)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if entry["msg"] != "session_connect" || entry["conn_id"] != "c1" || entry["service"] != "session" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestOrAndSet(t *testing.T) {
	t.Cleanup(func() { Set(nil) })
	own := zap.NewExample()
	if Or(own) != own {
		t.Fatal("Or should keep a non-nil logger")
	}
	Set(own)
	if Or(nil) != own || L() != own {
		t.Fatal("Set did not replace the global logger")
	}
}
