package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFanoutToConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "run.log")

	logger, closeLog, err := New(Options{Level: "info", Format: "text", File: path, Console: &console})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("hidden from console", "block", 1)
	logger.Info("block finished", "block", 2)
	if err := closeLog(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !strings.Contains(console.String(), "block finished") || strings.Contains(console.String(), "hidden") {
		t.Fatalf("unexpected console output %q", console.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 file records, got %d: %q", len(lines), data)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec["msg"] != "block finished" || rec["block"] != float64(2) {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestJSONConsole(t *testing.T) {
	var console bytes.Buffer
	logger, closeLog, err := New(Options{Level: "debug", Format: "json", Console: &console})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer closeLog()
	logger.Debug("move", "replica", 0)
	if !strings.HasPrefix(console.String(), "{") || !strings.Contains(console.String(), `"replica":0`) {
		t.Fatalf("unexpected json output %q", console.String())
	}
}

func TestRejectsUnknownSettings(t *testing.T) {
	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expected level error")
	}
	if _, _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected format error")
	}
}
