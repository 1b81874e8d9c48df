//go:build !windows

package term

import (
	"context"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// WatchResize delivers a value each time the controlling terminal changes
// size. The channel is closed when ctx is done. Notifications are coalesced:
// a burst of changes while the receiver is busy yields one value.
func WatchResize(ctx context.Context) <-chan struct{} {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, unix.SIGWINCH)

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer signal.Stop(sig)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sig:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}
