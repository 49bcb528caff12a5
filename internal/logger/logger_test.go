package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSetLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")
	defer InitWithWriter(&buf, "INFO", "text")

	Debug("debug message")
	Info("info message")
	Warn("warn message")

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Errorf("debug message should be filtered at WARN level")
	}
	if strings.Contains(out, "info message") {
		t.Errorf("info message should be filtered at WARN level")
	}
	if !strings.Contains(out, "warn message") {
		t.Errorf("warn message missing from output: %s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")
	defer InitWithWriter(&buf, "INFO", "text")

	Info("synced", KeySource, "example", KeyCount, 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "synced" {
		t.Errorf("expected msg 'synced', got %v", entry["msg"])
	}
	if entry[KeySource] != "example" {
		t.Errorf("expected source 'example', got %v", entry[KeySource])
	}
}

func TestInvalidLevelIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	SetLevel("VERBOSE")

	Info("still logs")
	if !strings.Contains(buf.String(), "still logs") {
		t.Errorf("invalid level should not change filtering")
	}
}
