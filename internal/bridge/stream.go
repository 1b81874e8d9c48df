package bridge

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/majorcontext/warden/internal/log"
)

// The engine multiplexes non-TTY exec output as frames: an 8-byte header
// {stream id, 0, 0, 0, payload length (big endian uint32)} then the payload.
const (
	frameHeaderLen = 8

	streamStdin     = 0
	streamStdout    = 1
	streamStderr    = 2
	streamSystemErr = 3
)

// demux splits the frame stream in src onto stdout and stderr, moving at
// most len(buf) bytes per write. It never queues: a blocked writer stalls
// the read side.
func demux(src io.Reader, stdout, stderr io.Writer, buf []byte) error {
	var hdr [frameHeaderLen]byte
	for {
		if _, err := io.ReadFull(src, hdr[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading frame header: %w", err)
		}

		var dst io.Writer
		switch hdr[0] {
		case streamStdin, streamStdout:
			dst = stdout
		case streamStderr, streamSystemErr:
			dst = stderr
		default:
			return fmt.Errorf("unknown stream id %d in frame header", hdr[0])
		}

		remaining := int64(binary.BigEndian.Uint32(hdr[4:]))
		for remaining > 0 {
			chunk := buf
			if int64(len(chunk)) > remaining {
				chunk = chunk[:remaining]
			}
			n, err := src.Read(chunk)
			if n > 0 {
				if _, werr := dst.Write(chunk[:n]); werr != nil {
					return werr
				}
				remaining -= int64(n)
			}
			if err != nil {
				if err == io.EOF && remaining > 0 {
					err = io.ErrUnexpectedEOF
				}
				if remaining > 0 {
					return fmt.Errorf("reading frame payload: %w", err)
				}
			}
		}
	}
}

// copyChunks moves bytes from src to dst through buf until src is drained.
// Each read is written in full before the next read.
func copyChunks(dst io.Writer, src io.Reader, buf []byte) error {
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// pump forwards one demultiplexed direction to its local writer. On a write
// failure the pipe is closed so the demultiplexer stops instead of blocking.
func pump(dst io.Writer, src *io.PipeReader, buf []byte) error {
	if err := copyChunks(dst, src, buf); err != nil {
		src.CloseWithError(err)
		return err
	}
	return nil
}

// forwardStdin copies stdin into the exec and half-closes the connection at
// EOF so the process sees end of input. The channel receives one value.
func forwardStdin(stream Stream, stdin io.Reader, buf []byte) <-chan error {
	done := make(chan error, 1)
	if stdin == nil {
		done <- stream.CloseWrite()
		return done
	}
	go func() {
		err := copyChunks(stream, stdin, buf)
		if err == nil {
			err = stream.CloseWrite()
		}
		done <- err
	}()
	return done
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// stopStdin unblocks a pending read on stdin when the source supports read
// deadlines and waits briefly for the forwarder to return. A plain blocking
// reader cannot be interrupted; its goroutine ends on the next input byte.
func stopStdin(stdin io.Reader, done <-chan error) {
	if done == nil {
		return
	}
	select {
	case <-done:
		return
	default:
	}
	d, ok := stdin.(readDeadliner)
	if !ok {
		log.Debug("stdin forwarder left blocked on read")
		return
	}
	if err := d.SetReadDeadline(time.Now()); err != nil {
		log.Debug("stdin forwarder left blocked on read", "error", err)
		return
	}
	defer func() { _ = d.SetReadDeadline(time.Time{}) }()

	t := time.NewTimer(time.Second)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		log.Debug("stdin forwarder did not stop after deadline")
	}
}
