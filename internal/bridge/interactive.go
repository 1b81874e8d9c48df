package bridge

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/majorcontext/warden/internal/log"
	"github.com/majorcontext/warden/internal/term"
)

const ttyBufferSize = 32 * 1024

// interactive attaches a TTY exec to the local terminal. It returns
// errStopped when the user types the stop sequence.
func (b *Bridge) interactive(ctx context.Context, sess *ExecSession, stream Stream, streams Streams) error {
	if f, ok := streams.Stdin.(*os.File); ok && term.IsTerminal(f) {
		raw, err := term.EnableRawMode(f)
		if err != nil {
			log.Debug("raw mode unavailable", "error", err)
		} else {
			defer raw.Restore()
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	rs := &resizer{backend: b.backend, execID: sess.ID(), out: streams.Stdout}
	rs.apply(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range term.WatchResize(ctx) {
			rs.apply(ctx)
		}
	}()

	outputDone := make(chan error, 1)
	go func() {
		outputDone <- copyChunks(streams.Stdout, stream, make([]byte, ttyBufferSize))
	}()

	var in *term.StopDetector
	if streams.Stdin != nil {
		in = term.NewStopDetector(streams.Stdin)
	}
	var stdinDone <-chan error
	if in != nil {
		stdinDone = forwardStdin(stream, in, make([]byte, ttyBufferSize))
	} else {
		stdinDone = forwardStdin(stream, nil, nil)
	}

	for {
		select {
		case <-ctx.Done():
			stream.Close()
			<-outputDone
			stopStdin(streams.Stdin, stdinDone)
			return ctx.Err()

		case err := <-stdinDone:
			stdinDone = nil
			if errors.Is(err, term.ErrStopRequested) {
				log.Debug("stop requested from terminal")
				stream.Close()
				<-outputDone
				return errStopped
			}
			if err != nil {
				log.Debug("stdin forwarding ended", "error", err)
			}

		case err := <-outputDone:
			stream.Close()
			if stdinDone != nil {
				stopStdin(streams.Stdin, stdinDone)
			}
			return err
		}
	}
}

// resizer propagates local terminal size to the exec. After the first
// failed resize it stays disabled for the rest of the session. When the
// local size cannot be read the resize is skipped.
type resizer struct {
	backend Backend
	execID  string
	out     any

	mu       sync.Mutex
	disabled bool
}

func (r *resizer) apply(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disabled {
		return
	}
	w, h, ok := term.GetSize(r.out)
	if !ok {
		return
	}
	if err := r.backend.ResizeExec(ctx, r.execID, uint(w), uint(h)); err != nil {
		r.disabled = true
		log.Debug("terminal resize failed, disabling resize for this session", "error", err)
	}
}
