package formz

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("warn", "text", &buf)
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("expected info to be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("expected warn to be logged")
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("debug", "json", &buf).Debug("hello", "k", "v")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}

func TestLoggerFrom(t *testing.T) {
	if LoggerFrom(context.Background()) == nil {
		t.Fatal("expected discard logger")
	}
	var buf bytes.Buffer
	l := NewLogger("info", "text", &buf)
	ctx := WithLogger(context.Background(), l)
	LoggerFrom(ctx).Info("via context")
	if !strings.Contains(buf.String(), "via context") {
		t.Error("expected logger from context to be used")
	}
}
