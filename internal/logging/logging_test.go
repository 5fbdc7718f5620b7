package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_JSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := WithJobID(WithComponent(New(&buf, "info", ""), "executor"), "job-1")
	logger.Info("stage finished", "percent", 25)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["component"] != "executor" || entry["job_id"] != "job-1" {
		t.Errorf("missing attributes in %v", entry)
	}
	if entry["msg"] != "stage finished" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "info", "text").Info("hello", "stage", "rendering")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestNew_AutoFallsBackToJSONForNonTerminal(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	New(f, "info", FormatAuto).Info("hello")
	data, _ := os.ReadFile(f.Name())
	if !json.Valid(bytes.TrimSpace(data)) {
		t.Errorf("auto format on a regular file should be JSON, got %q", data)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "json")
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn not logged at warn level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSanitizePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home directory")
	}
	got := SanitizePath(filepath.Join(home, "videos", "a.mp4"))
	if !strings.HasPrefix(got, "~") {
		t.Errorf("SanitizePath = %q, want ~ prefix", got)
	}
	if SanitizePath("/srv/data/a.mp4") != "/srv/data/a.mp4" && !strings.HasPrefix(home, "/srv") {
		t.Error("paths outside home should be unchanged")
	}
}
