package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// Tests in this file mutate the global logger and must not run in parallel.

func TestInitLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: LevelWarn, Output: &buf})

	Info("hidden")
	Warn("shown", "k", 1)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record leaked at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "k=1") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestJSONFormatAndContext(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: LevelDebug, Output: &buf, Format: "json"})

	WithComponent("reader").With("run_id", "r1").Debug("tick")
	WithError(errors.New("boom")).Error("failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["component"] != "reader" || rec["run_id"] != "r1" || rec["msg"] != "tick" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if !strings.Contains(lines[1], `"error":"boom"`) {
		t.Fatalf("error attr missing: %s", lines[1])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", LevelInfo, false},
		{"debug", LevelDebug, false},
		{" Warn ", LevelWarn, false},
		{"ERROR", LevelError, false},
		{"trace", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseLevel(%q) = %q, %v", tt.in, got, err)
		}
	}
}
