package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLogger_ComponentAttr(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(Options{Level: "info", Writer: &buf, Component: "overlay"})
	lg.Info("connected", "attempt", 1)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["component"] != "overlay" || rec["msg"] != "connected" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(Options{Level: "warn", Writer: &buf})
	lg.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record should be filtered at warn level: %s", buf.String())
	}
	lg.Warn("kept")
	if buf.Len() == 0 {
		t.Fatalf("warn record missing")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
