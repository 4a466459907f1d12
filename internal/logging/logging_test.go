package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != LevelDebug {
		t.Fatalf("expected debug level")
	}
	if ParseLevel("bogus") != LevelInfo {
		t.Fatalf("expected unknown levels to fall back to info")
	}
}

func TestWriterLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, LevelWarn)

	l.Info("joined %s", "room@conference.example.com")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}

	l.Warn("send to %s failed", "room@conference.example.com")
	line := strings.TrimSpace(buf.String())

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("expected a JSON line, got %q: %v", line, err)
	}
	if entry["level"] != "warn" {
		t.Fatalf("expected warn level, got %v", entry["level"])
	}
	if entry["message"] != "send to room@conference.example.com failed" {
		t.Fatalf("unexpected message: %v", entry["message"])
	}
}

func TestDefaultLoggerIsOptional(t *testing.T) {
	SetDefault(nil)
	Debug("no logger configured")
	Error("still fine")
}
