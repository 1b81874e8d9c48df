//go:build !windows

package term

import (
	"bytes"
	"os"
	"testing"

	"github.com/creack/pty"
)

func TestIsTerminal(t *testing.T) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	if !IsTerminal(tty) {
		t.Error("pty slave should be a terminal")
	}

	f, err := os.CreateTemp(t.TempDir(), "plain")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if IsTerminal(f) {
		t.Error("regular file reported as terminal")
	}
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("buffer reported as terminal")
	}
}

func TestGetSize(t *testing.T) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: 40, Cols: 120}); err != nil {
		t.Fatalf("Setsize: %v", err)
	}
	w, h, ok := GetSize(tty)
	if !ok {
		t.Fatal("GetSize on pty returned !ok")
	}
	if w != 120 || h != 40 {
		t.Errorf("size = %dx%d, want 120x40", w, h)
	}

	if _, _, ok := GetSize(&bytes.Buffer{}); ok {
		t.Error("GetSize on a buffer should fail")
	}
}

func TestRawModeRoundTrip(t *testing.T) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	raw, err := EnableRawMode(tty)
	if err != nil {
		t.Fatalf("EnableRawMode: %v", err)
	}
	if err := raw.Restore(); err != nil {
		t.Errorf("Restore: %v", err)
	}

	var nilRaw *RawMode
	if err := nilRaw.Restore(); err != nil {
		t.Errorf("nil Restore: %v", err)
	}
}
