package cli

import (
	"bytes"
	"strings"
	"testing"
)

func captureOutput(jsonMode bool) (*Output, *bytes.Buffer, *bytes.Buffer) {
	var w, errW bytes.Buffer
	return &Output{jsonMode: jsonMode, w: &w, errW: &errW}, &w, &errW
}

func TestPrintEmptyList(t *testing.T) {
	out, w, errW := captureOutput(false)

	out.Print([]string{"ID", "NAME"}, nil, nil)

	if w.Len() != 0 {
		t.Errorf("expected empty stdout, got %q", w.String())
	}
	if !strings.Contains(errW.String(), "No results") {
		t.Errorf("expected notice on stderr, got %q", errW.String())
	}
}

func TestPrintJSONMode(t *testing.T) {
	out, w, _ := captureOutput(true)

	out.Print([]string{"ID"}, [][]string{{"a-1"}}, map[string]string{"id": "a-1"})

	if !strings.Contains(w.String(), `"id": "a-1"`) {
		t.Errorf("expected JSON on stdout, got %q", w.String())
	}
	if strings.Contains(w.String(), "ID") {
		t.Errorf("table headers leaked into JSON output: %q", w.String())
	}
}

func TestDetailsSkipsEmptyValues(t *testing.T) {
	out, w, _ := captureOutput(false)

	out.Details([][2]string{
		{"ID", "a-1"},
		{"Phone", ""},
		{"Website", "https://acme.com"},
	}, nil)

	got := w.String()
	if !strings.Contains(got, "ID:") || !strings.Contains(got, "Website:") {
		t.Errorf("expected populated fields, got %q", got)
	}
	if strings.Contains(got, "Phone") {
		t.Errorf("empty field should be skipped, got %q", got)
	}
}

func TestMessagesGoToStderr(t *testing.T) {
	out, w, errW := captureOutput(false)

	out.Success("Pipeline %s started", "p-1")
	out.Error("boom: %s", "reason")

	if w.Len() != 0 {
		t.Errorf("messages must not pollute stdout, got %q", w.String())
	}
	if !strings.Contains(errW.String(), "Pipeline p-1 started") {
		t.Errorf("expected success message, got %q", errW.String())
	}
	if !strings.Contains(errW.String(), "Error: boom: reason") {
		t.Errorf("expected error message, got %q", errW.String())
	}
}
