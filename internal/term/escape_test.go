package term

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

func readAll(t *testing.T, r io.Reader) ([]byte, error) {
	t.Helper()
	var out []byte
	buf := make([]byte, 8)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			return out, err
		}
	}
}

func TestStopDetector_PassThrough(t *testing.T) {
	input := []byte("hello world")
	out, err := io.ReadAll(NewStopDetector(bytes.NewReader(input)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Errorf("got %q, want %q", out, input)
	}
}

func TestStopDetector_Stop(t *testing.T) {
	input := []byte{'a', 'b', EscapePrefix, 'k', 'x', 'y'}
	out, err := readAll(t, NewStopDetector(bytes.NewReader(input)))
	if !errors.Is(err, ErrStopRequested) {
		t.Fatalf("err = %v, want ErrStopRequested", err)
	}
	if string(out) != "ab" {
		t.Errorf("bytes before stop: got %q, want %q", out, "ab")
	}
}

func TestStopDetector_Sequences(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{"literal prefix", []byte{'a', EscapePrefix, EscapePrefix, 'b'}, []byte{'a', EscapePrefix, 'b'}},
		{"unrecognized key", []byte{EscapePrefix, 'd'}, []byte{EscapePrefix, 'd'}},
		{"dangling prefix at eof", []byte{'z', EscapePrefix}, []byte{'z', EscapePrefix}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := readAll(t, NewStopDetector(bytes.NewReader(tt.input)))
			if err != io.EOF {
				t.Fatalf("err = %v, want EOF", err)
			}
			if !bytes.Equal(out, tt.want) {
				t.Errorf("got %q, want %q", out, tt.want)
			}
		})
	}
}

func TestStopDetector_SplitAcrossReads(t *testing.T) {
	// One byte per read puts the prefix and the key in separate reads.
	input := []byte{'h', 'i', EscapePrefix, 'k'}
	out, err := readAll(t, NewStopDetector(iotest.OneByteReader(bytes.NewReader(input))))
	if !errors.Is(err, ErrStopRequested) {
		t.Fatalf("err = %v, want ErrStopRequested", err)
	}
	if string(out) != "hi" {
		t.Errorf("got %q, want %q", out, "hi")
	}
}

func TestStopDetector_StopIsSticky(t *testing.T) {
	d := NewStopDetector(bytes.NewReader([]byte{EscapePrefix, 'k'}))
	buf := make([]byte, 4)
	for i := 0; i < 2; i++ {
		if _, err := d.Read(buf); !errors.Is(err, ErrStopRequested) {
			t.Fatalf("read %d: err = %v", i, err)
		}
	}
}
