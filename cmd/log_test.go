package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newJSONLogger(&buf, "warn")
	if err != nil {
		t.Fatalf("newJSONLogger failed: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown", "iteration", 42)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line above the level, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("Log line is not JSON: %v", err)
	}
	if rec["msg"] != "shown" || rec["iteration"] != 42.0 {
		t.Errorf("Unexpected record %v", rec)
	}
}

func TestNewTextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newTextLogger(&buf, "debug")
	if err != nil {
		t.Fatalf("newTextLogger failed: %v", err)
	}

	logger.Debug("annealing", "best_cost", 1.5)

	out := buf.String()
	if !strings.Contains(out, "annealing") || !strings.Contains(out, "best_cost") {
		t.Errorf("Expected message and attribute in output, got %q", out)
	}
	if !logger.Enabled(t.Context(), slog.LevelDebug) {
		t.Error("Debug level should be enabled")
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := newTextLogger(&bytes.Buffer{}, "loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
	if _, err := newJSONLogger(&bytes.Buffer{}, "loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}
