package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelInfo, "text", &buf)

	logger.Info("demo mode enabled", "email", "ana@alm.io")

	output := buf.String()
	if !strings.Contains(output, "demo mode enabled") {
		t.Errorf("expected message in output, got: %s", output)
	}
	if !strings.Contains(output, "email=ana@alm.io") {
		t.Errorf("expected 'email=ana@alm.io' in output, got: %s", output)
	}
}

func TestNewLoggerWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelInfo, "JSON", &buf)

	logger.Info("poll", "job_id", "job-1")

	output := buf.String()
	if !strings.Contains(output, `"msg":"poll"`) {
		t.Errorf("expected JSON msg field in output, got: %s", output)
	}
	if !strings.Contains(output, `"job_id":"job-1"`) {
		t.Errorf("expected JSON job_id field in output, got: %s", output)
	}
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelWarn, "text", &buf)

	logger.Info("should not appear")
	logger.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should not appear") {
		t.Errorf("INFO message should be filtered at WARN level, got: %s", output)
	}
	if !strings.Contains(output, "should appear") {
		t.Errorf("WARN message should appear at WARN level, got: %s", output)
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewLoggerWithWriter(slog.LevelDebug, "text", &buf), "auth")

	logger.Debug("login", "mode", "demo")

	output := buf.String()
	if !strings.Contains(output, "component=auth") {
		t.Errorf("expected component in output, got: %s", output)
	}

	// nil falls back to a discarding logger instead of panicking
	Component(nil, "auth").Error("dropped")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{"text", "json", "JSON"} {
		if !ValidFormat(f) {
			t.Errorf("ValidFormat(%q) = false", f)
		}
	}
	if ValidFormat("xml") {
		t.Error("ValidFormat(xml) = true")
	}
}
