// Package term provides terminal utilities for interactive sessions:
// detection, size, raw mode, window-change notifications and the stop
// escape sequence.
package term

import (
	"errors"
	"io"
)

// ErrStopRequested is returned by StopDetector once the user has typed the
// stop sequence.
var ErrStopRequested = errors.New("stop requested from terminal")

const (
	// EscapePrefix is Ctrl-/ (0x1f).
	EscapePrefix byte = 0x1f

	stopKey byte = 'k'
)

// StopDetector filters a terminal input stream for the sequence Ctrl-/ k.
//
// Bytes typed before the sequence are delivered first; the following Read
// returns ErrStopRequested and input after the sequence is discarded.
// Ctrl-/ Ctrl-/ sends one literal Ctrl-/, and Ctrl-/ followed by any other
// key passes both bytes through.
type StopDetector struct {
	r       io.Reader
	scratch []byte
	pending []byte
	armed   bool
	stopped bool
	err     error
}

// NewStopDetector wraps r.
func NewStopDetector(r io.Reader) *StopDetector {
	return &StopDetector{r: r}
}

func (s *StopDetector) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.pending) == 0 {
		if s.stopped {
			return 0, ErrStopRequested
		}
		if s.err != nil {
			return 0, s.err
		}
		if cap(s.scratch) < len(p) {
			s.scratch = make([]byte, len(p))
		}
		n, err := s.r.Read(s.scratch[:len(p)])
		s.pending = s.filter(s.pending, s.scratch[:n])
		if err != nil {
			if s.armed && !s.stopped {
				s.armed = false
				s.pending = append(s.pending, EscapePrefix)
			}
			s.err = err
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// filter appends the pass-through bytes of in to out, stopping at the stop
// sequence.
func (s *StopDetector) filter(out, in []byte) []byte {
	for _, b := range in {
		if s.armed {
			s.armed = false
			switch b {
			case stopKey:
				s.stopped = true
				return out
			case EscapePrefix:
				out = append(out, EscapePrefix)
			default:
				out = append(out, EscapePrefix, b)
			}
			continue
		}
		if b == EscapePrefix {
			s.armed = true
			continue
		}
		out = append(out, b)
	}
	return out
}

// EscapeHelpText describes the escape sequence for the session banner.
func EscapeHelpText() string {
	return "Ctrl-/ k stops the session"
}
