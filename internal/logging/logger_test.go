package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerDefaultsToInfoAndStderr(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
	if logger.level != LevelInfo {
		t.Errorf("expected default level Info, got %v", logger.level)
	}
}

func TestLoggerFiltersBelowConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Info("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("expected Info to be filtered at Warn level, got: %s", buf.String())
	}

	logger.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Errorf("expected Warn message in output, got: %s", buf.String())
	}
}

func TestLoggerFormatsKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Error("dump failed", "rank", 2, "error", "disk full")

	out := buf.String()
	if !strings.Contains(out, "[ERROR]") || !strings.Contains(out, "dump failed") {
		t.Errorf("expected level prefix and message, got: %s", out)
	}
	if !strings.Contains(out, "rank=2") || !strings.Contains(out, "error=disk full") {
		t.Errorf("expected key=value pairs, got: %s", out)
	}
}

func TestLoggerPrintfDelegatesToInfof(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelInfo, Output: &buf})

	logger.Printf("rank %d ready", 3)

	out := buf.String()
	if !strings.Contains(out, "[INFO]") || !strings.Contains(out, "rank 3 ready") {
		t.Errorf("expected Printf to behave like Infof, got: %s", out)
	}
}

func TestConfigureDebugRaisesDefaultLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelInfo, Output: &buf}))

	Debug("hidden before debug mode")
	if buf.Len() != 0 {
		t.Fatalf("expected Debug to be filtered at Info level, got: %s", buf.String())
	}

	ConfigureDebug(true)
	Debug("visible after debug mode")
	if !strings.Contains(buf.String(), "visible after debug mode") {
		t.Errorf("expected Debug to appear after ConfigureDebug(true), got: %s", buf.String())
	}
}

func TestConfigureDebugFalseLeavesLevelUnchanged(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelWarn, Output: &buf}))

	ConfigureDebug(false)
	Info("still filtered")
	if buf.Len() != 0 {
		t.Errorf("expected ConfigureDebug(false) to leave level at Warn, got: %s", buf.String())
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))

	Debug("debug message", "key", "value")
	if out := buf.String(); !strings.Contains(out, "debug message") || !strings.Contains(out, "key=value") {
		t.Errorf("expected debug message with key=value, got: %s", out)
	}

	buf.Reset()
	Warn("warning message")
	if out := buf.String(); !strings.Contains(out, "warning message") {
		t.Errorf("expected warning message, got: %s", out)
	}

	buf.Reset()
	Error("error message")
	if out := buf.String(); !strings.Contains(out, "error message") {
		t.Errorf("expected error message, got: %s", out)
	}
}
