//go:build windows

package term

import "context"

// WatchResize returns a channel that never fires on Windows, where console
// resizes are not delivered as signals. It is closed when ctx is done.
func WatchResize(ctx context.Context) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out
}
