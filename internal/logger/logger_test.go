package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParsedLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
		{"  DEBUG  ", slog.LevelDebug},
	}
	for _, tc := range tests {
		if got := (Config{Level: tc.in}).ParsedLevel(); got != tc.want {
			t.Fatalf("ParsedLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFileWriterDisabledByDefault(t *testing.T) {
	if w := (Config{}).FileWriter(); w != nil {
		t.Fatalf("expected nil writer without dir or path")
	}
}

func TestNewConsoleOnly(t *testing.T) {
	log, closer := New(Config{Level: "debug"})
	if log == nil {
		t.Fatalf("nil logger")
	}
	if closer != nil {
		t.Fatalf("console-only config must not return a closer")
	}
	log.Debug("probe")
}

func TestNewWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	log, closer := New(Config{Level: "info", Dir: dir})
	if closer == nil {
		t.Fatalf("expected file closer")
	}
	log.Info("hello file", "k", "v")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "proxydash.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"msg":"hello file"`) || !strings.Contains(s, `"k":"v"`) {
		t.Fatalf("unexpected file content: %s", s)
	}
}

func TestExplicitPathOverridesDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.log")
	log, closer := New(Config{Path: path})
	log.Info("custom destination")
	if closer != nil {
		_ = closer.Close()
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log at %s: %v", path, err)
	}
}

func TestFileLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	log, closer := New(Config{Level: "error", Dir: dir})
	log.Info("should be filtered")
	log.Error("should appear")
	if closer != nil {
		_ = closer.Close()
	}
	b, err := os.ReadFile(filepath.Join(dir, "proxydash.log"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	s := string(b)
	if strings.Contains(s, "should be filtered") {
		t.Fatalf("info line leaked past error level")
	}
	if !strings.Contains(s, "should appear") {
		t.Fatalf("error line missing")
	}
}
