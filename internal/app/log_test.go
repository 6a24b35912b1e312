package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		debug     bool
		wantDebug bool
	}{
		{debug: false, wantDebug: false},
		{debug: true, wantDebug: true},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		log, closer := NewLogger(&buf, LogOptions{Debug: tt.debug, NoColor: true})

		log.Debug("read focused app")
		log.Info("pasted text", "chars", 5)
		if err := closer.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}

		out := buf.String()
		if !strings.Contains(out, "pasted text") || !strings.Contains(out, "chars=5") {
			t.Errorf("debug=%v: info line missing: %q", tt.debug, out)
		}
		if got := strings.Contains(out, "read focused app"); got != tt.wantDebug {
			t.Errorf("debug=%v: debug line present = %v", tt.debug, got)
		}
	}
}

func TestNewLoggerTeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "localflow.log")
	var console bytes.Buffer

	log, closer := NewLogger(&console, LogOptions{File: path})
	log.With("session", "abc").Warn("no audio captured")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	file := string(data)
	if !strings.Contains(file, "no audio captured") || !strings.Contains(file, "session=abc") {
		t.Errorf("file missing line: %q", file)
	}
	if strings.Contains(file, "\x1b[") {
		t.Errorf("file contains colour codes: %q", file)
	}
	if !strings.Contains(console.String(), "no audio captured") {
		t.Errorf("console missing line: %q", console.String())
	}
}
