package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInit_FileSinkCapturesAllLevels(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer

	if err := Init(Options{DebugDir: dir, Stderr: &stderr}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	Debug("debug line", "k", "v")
	Info("info line")

	Close()

	content, err := os.ReadFile(filepath.Join(dir, time.Now().Format(dayLayout)+".jsonl"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	for _, want := range []string{"debug line", "info line"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("log file missing %q", want)
		}
	}
	if stderr.Len() != 0 {
		t.Errorf("debug/info leaked to stderr: %q", stderr.String())
	}
}

func TestInit_StderrThresholds(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		wantWarn bool
		wantInfo bool
	}{
		{name: "default", opts: Options{}, wantWarn: true},
		{name: "verbose", opts: Options{Verbose: true}, wantWarn: true, wantInfo: true},
		{name: "quiet", opts: Options{Quiet: true, Verbose: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			tt.opts.Stderr = &stderr
			if err := Init(tt.opts); err != nil {
				t.Fatalf("Init: %v", err)
			}
			defer Close()

			Info("info message")
			Warn("warn message")

			out := stderr.String()
			if got := strings.Contains(out, "warn message"); got != tt.wantWarn {
				t.Errorf("warn on stderr = %v, want %v", got, tt.wantWarn)
			}
			if got := strings.Contains(out, "info message"); got != tt.wantInfo {
				t.Errorf("info on stderr = %v, want %v", got, tt.wantInfo)
			}
		})
	}
}

func TestInit_JSONFormat(t *testing.T) {
	var stderr bytes.Buffer
	if err := Init(Options{JSONFormat: true, Stderr: &stderr}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	Error("boom", "code", 7)
	if !strings.HasPrefix(strings.TrimSpace(stderr.String()), "{") {
		t.Errorf("expected JSON record, got %q", stderr.String())
	}
}

func TestWithSession(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	WithSession("sess-1").Info("hello")
	if !strings.Contains(buf.String(), "session_id=sess-1") {
		t.Errorf("expected session_id attribute, got %q", buf.String())
	}
}
