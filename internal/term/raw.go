package term

import (
	"os"

	"golang.org/x/term"
)

// fder is satisfied by *os.File and anything else backed by a descriptor.
type fder interface {
	Fd() uintptr
}

// Fd returns the descriptor behind v, if it has one.
func Fd(v any) (int, bool) {
	f, ok := v.(fder)
	if !ok {
		return 0, false
	}
	return int(f.Fd()), true
}

// IsTerminal reports whether v is backed by a terminal device.
func IsTerminal(v any) bool {
	fd, ok := Fd(v)
	return ok && term.IsTerminal(fd)
}

// GetSize returns the terminal dimensions of v. ok is false when v is not a
// terminal or the size cannot be read.
func GetSize(v any) (width, height int, ok bool) {
	fd, has := Fd(v)
	if !has {
		return 0, 0, false
	}
	w, h, err := term.GetSize(fd)
	if err != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// RawMode holds the state needed to leave raw mode.
type RawMode struct {
	fd  int
	old *term.State
}

// EnableRawMode puts f into raw mode so keystrokes, including the escape
// prefix, reach the container unprocessed. Call Restore when done.
func EnableRawMode(f *os.File) (*RawMode, error) {
	fd := int(f.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &RawMode{fd: fd, old: old}, nil
}

// Restore returns the terminal to the state it had before EnableRawMode.
// It is safe to call on a nil receiver.
func (r *RawMode) Restore() error {
	if r == nil || r.old == nil {
		return nil
	}
	return term.Restore(r.fd, r.old)
}
