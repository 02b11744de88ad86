package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONEmitsStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{JSON: true, Writer: &buf})
	l.Info("consolidated", "files", 3)

	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if parsed["msg"] != "consolidated" {
		t.Errorf("msg = %v, want consolidated", parsed["msg"])
	}
	if parsed["files"] != float64(3) {
		t.Errorf("files = %v, want 3", parsed["files"])
	}
}

func TestVerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Verbose: true, Writer: &buf})
	l.Debug("drained event")
	if !strings.Contains(buf.String(), "drained event") {
		t.Errorf("debug output missing, got %q", buf.String())
	}
}

func TestQuietSuppressesInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Quiet: true, Writer: &buf})
	l.Info("should be hidden")
	if buf.Len() != 0 {
		t.Errorf("quiet logger emitted %q", buf.String())
	}
}

func TestQuietWinsOverVerbose(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Verbose: true, Quiet: true, Writer: &buf})
	l.Info("still hidden")
	if buf.Len() != 0 {
		t.Errorf("quiet+verbose logger emitted %q", buf.String())
	}
}
