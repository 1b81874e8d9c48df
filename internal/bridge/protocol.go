package bridge

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"
)

var errNoStdout = errors.New("protocol session requires a local output stream")

// protocol proxies a non-TTY exec. Three loops run concurrently, each with
// its own buffer of bufSize bytes: local stdin to the exec, exec stdout to
// local stdout, exec stderr to local stderr. The two output loops are fed by
// a frame demultiplexer through synchronous pipes, so a slow local reader
// applies backpressure all the way to the container. Both outputs share one
// engine connection: a stalled stdout reader also stalls stderr.
func (b *Bridge) protocol(ctx context.Context, stream Stream, streams Streams, bufSize int) error {
	if streams.Stdout == nil {
		stream.Close()
		return errNoStdout
	}
	stderr := streams.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()

	g, gctx := errgroup.WithContext(ctx)

	// Closing the connection is the only way to unblock a demux read.
	closed := make(chan struct{})
	go func() {
		<-gctx.Done()
		stream.Close()
		close(closed)
	}()

	g.Go(func() error {
		err := demux(stream, outW, errW, make([]byte, bufSize))
		outW.CloseWithError(err)
		errW.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		return pump(streams.Stdout, outR, make([]byte, bufSize))
	})
	g.Go(func() error {
		return pump(stderr, errR, make([]byte, bufSize))
	})

	stdinDone := forwardStdin(stream, streams.Stdin, make([]byte, bufSize))

	err := g.Wait()
	<-closed
	stopStdin(streams.Stdin, stdinDone)
	return err
}
