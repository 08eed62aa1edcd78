package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"unknown", InfoLevel}, // default
		{"", InfoLevel},        // default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DebugLevel, "debug"},
		{InfoLevel, "info"},
		{WarnLevel, "warn"},
		{ErrorLevel, "error"},
		{Level(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level.String() = %q, want %q", got, tt.expected)
		}
	}
}

func TestNewWithNilConfig(t *testing.T) {
	log := New(nil)
	if log == nil {
		t.Fatal("expected non-nil logger")
	}
	log.Info("hello", "key", "value")
	if err := log.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.log")

	log := New(&Config{Level: DebugLevel, Format: "json", Output: path})
	log.Debug("written to file", "n", 1)
	if err := log.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log file to contain output")
	}
}

func TestWithDoesNotOwnCloser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.log")

	log := New(&Config{Level: InfoLevel, Format: "text", Output: path})
	derived := log.With("component", "test")
	if err := derived.Close(); err != nil {
		t.Errorf("derived Close should be a no-op, got %v", err)
	}
	log.Info("parent still usable")
	if err := log.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	log.Error("goes nowhere")
	if err := log.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
