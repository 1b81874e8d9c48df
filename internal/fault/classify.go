package fault

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"syscall"
)

// Phase is the stage of an engine interaction a failure happened in.
type Phase string

const (
	PhaseConnect     Phase = "connect"
	PhaseHealthCheck Phase = "health_check"
	PhaseLifecycle   Phase = "lifecycle"
	PhaseUpload      Phase = "upload"
	PhaseExec        Phase = "exec"
)

// Context carries what the caller knows about where err came from.
type Context struct {
	Endpoint    string
	SocketPath  string
	Lazy        bool
	Phase       Phase
	ContainerID string
}

// Classify maps a raw failure to the taxonomy. It is pure: the same err and
// ctx always produce an equal result.
//
// Order: an embedded I/O error decides first, then the call phase and
// transport, then a generic fallback. Lazy (tcp/http) endpoints never
// produce path-carrying kinds.
func Classify(err error, ctx Context) *Error {
	if err == nil {
		return nil
	}
	if fe, ok := As(err); ok {
		return fe
	}

	if ioErr, found := embeddedIO(err); found {
		if !ctx.Lazy {
			switch {
			case errors.Is(ioErr, fs.ErrNotExist):
				return FromContainer(&ContainerError{
					Kind:     SocketNotFound,
					Endpoint: ctx.Endpoint,
					Path:     pathOf(err, ctx.SocketPath),
					Err:      err,
				})
			case errors.Is(ioErr, fs.ErrPermission):
				return FromContainer(&ContainerError{
					Kind:     PermissionDenied,
					Endpoint: ctx.Endpoint,
					Path:     pathOf(err, ctx.SocketPath),
					Err:      err,
				})
			}
		}
		return FromContainer(&ContainerError{
			Kind:        phaseKind(ctx.Phase, ConnectionFailed),
			Endpoint:    ctx.Endpoint,
			ContainerID: ctx.ContainerID,
			Err:         err,
		})
	}

	kind := phaseKind(ctx.Phase, HealthCheckFailed)
	if ctx.Phase == PhaseConnect || ctx.Phase == "" {
		kind = ConnectionFailed
	}
	return FromContainer(&ContainerError{
		Kind:        kind,
		Endpoint:    ctx.Endpoint,
		ContainerID: ctx.ContainerID,
		Err:         err,
	})
}

// phaseKind maps operation phases that have a dedicated kind; connect and
// health-check phases resolve to def.
func phaseKind(p Phase, def ContainerKind) ContainerKind {
	switch p {
	case PhaseUpload:
		return UploadFailed
	case PhaseExec:
		return ExecFailed
	case PhaseLifecycle:
		return LifecycleFailed
	}
	return def
}

// embeddedIO walks the cause chain for an operating-system level error.
func embeddedIO(err error) (error, bool) {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr, true
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return sysErr, true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr, true
	}
	return nil, false
}

// pathOf extracts the filesystem path from the cause chain, falling back to
// the path the caller was dialing.
func pathOf(err error, fallback string) string {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) && pathErr.Path != "" {
		return pathErr.Path
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if ua, ok := opErr.Addr.(*net.UnixAddr); ok && ua.Name != "" {
			return ua.Name
		}
	}
	return fallback
}
