package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, test := range tests {
		result := test.level.String()
		if result != test.expected {
			t.Errorf("LogLevel(%d).String() = %s, expected %s", test.level, result, test.expected)
		}
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{LogLevel(999), slog.LevelInfo}, // Default for unknown
	}

	for _, test := range tests {
		result := test.level.SlogLevel()
		if result != test.expected {
			t.Errorf("LogLevel(%d).SlogLevel() = %v, expected %v", test.level, result, test.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		" info ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"chatty":  LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, expected %v", in, got, want)
		}
	}
}

func TestInitForCLI(t *testing.T) {
	var buf bytes.Buffer

	InitForCLI(LevelInfo, &buf)

	Info("test-subsystem", "test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Error("Expected log message to appear in CLI output")
	}

	if !strings.Contains(output, "test-subsystem") {
		t.Error("Expected subsystem to appear in CLI output")
	}
}

func TestCLILevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	InitForCLI(LevelInfo, &buf)

	Debug("test", "debug message")
	Info("test", "info message")

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("Debug message should be filtered out at INFO level")
	}

	if !strings.Contains(output, "info message") {
		t.Error("Info message should appear at INFO level")
	}
}

func TestErrorIncludesCause(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, FormatJSON, &buf)

	Error("store", errors.New("disk full"), "save failed for %s", "abc")

	output := buf.String()
	if !strings.Contains(output, `"error":"disk full"`) {
		t.Errorf("Expected JSON error attribute, got %q", output)
	}
	if !strings.Contains(output, "save failed for abc") {
		t.Errorf("Expected formatted message, got %q", output)
	}
}

func TestTruncateID(t *testing.T) {
	if got := TruncateID("short"); got != "short" {
		t.Errorf("TruncateID(short) = %q", got)
	}
	if got := TruncateID("abcdefgh"); got != "abcdefgh" {
		t.Errorf("TruncateID of exactly eight chars = %q", got)
	}
	if got := TruncateID("abcdefghijklmnop"); got != "abcdefgh..." {
		t.Errorf("TruncateID(long) = %q", got)
	}
}

func TestAudit(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)

	Audit(AuditEvent{
		Action:       "sign_in",
		Outcome:      "success",
		Transport:    "wa",
		Conversation: "c1",
	})

	output := buf.String()
	for _, want := range []string{"[AUDIT] sign_in", "outcome=success", "transport=wa", "conversation=c1"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected audit output to contain %q, got %q", want, output)
		}
	}
	if strings.Contains(output, "principal=") {
		t.Error("Empty principal should be omitted")
	}
}

func TestLeveledLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, FormatJSON, &buf)

	l := NewLeveledLogger("HTTP")
	l.Debug("hidden", "url", "http://x")
	l.Warn("retrying", "attempt", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug entry should be filtered, got %s", out)
	}
	if !strings.Contains(out, `"subsystem":"HTTP"`) || !strings.Contains(out, `"attempt":2`) {
		t.Errorf("unexpected output %s", out)
	}
}
