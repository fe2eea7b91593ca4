package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)
	defer InitWithWriter(&buf, "INFO", "text", false)

	Info("attached to VM", KeyAddr, "127.0.0.1:8700", KeySession, "abc")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "attached to VM" {
		t.Errorf("unexpected msg: %v", record["msg"])
	}
	if record[KeyAddr] != "127.0.0.1:8700" {
		t.Errorf("missing addr field: %v", record)
	}
}

func TestTextFormatFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	Info("breakpoint hit", KeyClass, "com.example.App", KeyMethod, "onCreate")

	out := buf.String()
	if !strings.Contains(out, "breakpoint hit") {
		t.Errorf("missing message: %q", out)
	}
	if !strings.Contains(out, "class=com.example.App") {
		t.Errorf("missing class field: %q", out)
	}
	if !strings.Contains(out, "[INFO]") {
		t.Errorf("missing level: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)
	defer InitWithWriter(&buf, "INFO", "text", false)

	Debug("too quiet")
	Info("still too quiet")
	Warn("loud enough")

	out := buf.String()
	if strings.Contains(out, "too quiet") {
		t.Errorf("low levels not filtered: %q", out)
	}
	if !strings.Contains(out, "loud enough") {
		t.Errorf("warn level missing: %q", out)
	}
}

func TestInvalidLevelIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	SetLevel("NOISY") // ignored
	Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("valid level lost after invalid SetLevel")
	}
}
