package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn")

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %q", buf.String())
	}

	logger.Warn("kept", "key", "value")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json log line: %v", err)
	}
	if entry["msg"] != "kept" || entry["key"] != "value" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
}

func TestWith_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "debug").With("component", "webhook")
	logger.Debug("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["component"] != "webhook" {
		t.Fatalf("expected component attribute, got %#v", entry)
	}
}

func TestRedactPhone(t *testing.T) {
	cases := map[string]string{
		"":            "",
		"1234":        "1234",
		"33612345678": "*******5678",
	}
	for in, want := range cases {
		if got := RedactPhone(in); got != want {
			t.Fatalf("RedactPhone(%q) = %q, want %q", in, got, want)
		}
	}
}
