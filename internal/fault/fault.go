// Package fault defines the error taxonomy returned by warden's core.
//
// Errors are grouped into four domains: configuration, container/engine,
// filesystem and protocol. Each domain has its own concrete type. The
// umbrella *Error holds exactly one domain variant and is what crosses
// package boundaries to an embedding caller. Use errors.As to recover the
// domain type:
//
//	var cerr *fault.ContainerError
//	if errors.As(err, &cerr) && cerr.Kind == fault.SocketNotFound { ... }
package fault

import (
	"errors"
	"fmt"
)

// Domain identifies which variant an *Error holds.
type Domain string

const (
	DomainConfig     Domain = "config"
	DomainContainer  Domain = "container"
	DomainFilesystem Domain = "filesystem"
	DomainProtocol   Domain = "protocol"
)

// variant is implemented by the four domain error types only.
type variant interface {
	error
	domain() Domain
}

// Error is the umbrella error. Construct it with FromConfig, FromContainer,
// FromFilesystem or FromProtocol; the zero value is not useful.
type Error struct {
	v variant
}

func (e *Error) Error() string {
	if e == nil || e.v == nil {
		return "<nil>"
	}
	return e.v.Error()
}

// Unwrap returns the domain variant so errors.As reaches it.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.v
}

// Domain reports which variant this error holds.
func (e *Error) Domain() Domain {
	if e == nil || e.v == nil {
		return ""
	}
	return e.v.domain()
}

// Config returns the configuration variant, if that is what e holds.
func (e *Error) Config() (*ConfigError, bool) {
	v, ok := e.v.(*ConfigError)
	return v, ok
}

// Container returns the container variant, if that is what e holds.
func (e *Error) Container() (*ContainerError, bool) {
	v, ok := e.v.(*ContainerError)
	return v, ok
}

// Filesystem returns the filesystem variant, if that is what e holds.
func (e *Error) Filesystem() (*FilesystemError, bool) {
	v, ok := e.v.(*FilesystemError)
	return v, ok
}

// Protocol returns the protocol variant, if that is what e holds.
func (e *Error) Protocol() (*ProtocolError, bool) {
	v, ok := e.v.(*ProtocolError)
	return v, ok
}

// FromConfig lifts a configuration error into the umbrella type.
func FromConfig(e *ConfigError) *Error { return &Error{v: e} }

// FromContainer lifts a container error into the umbrella type.
func FromContainer(e *ContainerError) *Error { return &Error{v: e} }

// FromFilesystem lifts a filesystem error into the umbrella type.
func FromFilesystem(e *FilesystemError) *Error { return &Error{v: e} }

// FromProtocol lifts a protocol error into the umbrella type.
func FromProtocol(e *ProtocolError) *Error { return &Error{v: e} }

// As returns err as an *Error if it already is one (possibly wrapped).
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// ConfigKind enumerates configuration failures.
type ConfigKind string

const (
	MissingField       ConfigKind = "missing_field"
	IllegalCombination ConfigKind = "illegal_combination"
	InvalidValue       ConfigKind = "invalid_value"
)

// ConfigError reports a configuration problem naming the offending field.
type ConfigError struct {
	Kind   ConfigKind
	Field  string
	Detail string
}

func (e *ConfigError) domain() Domain { return DomainConfig }

func (e *ConfigError) Error() string {
	switch e.Kind {
	case MissingField:
		return fmt.Sprintf("missing required field %q", e.Field)
	case IllegalCombination:
		return fmt.Sprintf("illegal combination for field %q: %s", e.Field, e.Detail)
	default:
		return fmt.Sprintf("invalid value for field %q: %s", e.Field, e.Detail)
	}
}

// Missing is shorthand for a missing-required-field error.
func Missing(field string) *Error {
	return FromConfig(&ConfigError{Kind: MissingField, Field: field})
}

// Illegal is shorthand for an illegal-combination error.
func Illegal(field, detail string) *Error {
	return FromConfig(&ConfigError{Kind: IllegalCombination, Field: field, Detail: detail})
}

// Invalid is shorthand for an invalid-value error.
func Invalid(field, detail string) *Error {
	return FromConfig(&ConfigError{Kind: InvalidValue, Field: field, Detail: detail})
}

// ContainerKind enumerates container-engine failures.
type ContainerKind string

const (
	ConnectionFailed  ContainerKind = "connection_failed"
	SocketNotFound    ContainerKind = "socket_not_found"
	PermissionDenied  ContainerKind = "permission_denied"
	HealthCheckFailed ContainerKind = "health_check_failed"
	UploadFailed      ContainerKind = "upload_failed"
	ExecFailed        ContainerKind = "exec_failed"
	LifecycleFailed   ContainerKind = "lifecycle_failed"
)

// ContainerError reports a failure talking to the container engine.
// Path is only ever set for eager (socket/pipe) endpoints.
type ContainerError struct {
	Kind        ContainerKind
	Endpoint    string
	Path        string
	ContainerID string
	Err         error
}

func (e *ContainerError) domain() Domain { return DomainContainer }

func (e *ContainerError) Error() string {
	var msg string
	switch e.Kind {
	case SocketNotFound:
		msg = fmt.Sprintf("engine socket not found: %s", e.Path)
	case PermissionDenied:
		msg = fmt.Sprintf("permission denied on engine socket: %s", e.Path)
	case HealthCheckFailed:
		msg = fmt.Sprintf("engine health check failed for %s", e.Endpoint)
	case UploadFailed:
		msg = fmt.Sprintf("upload to container %s failed", e.ContainerID)
	case ExecFailed:
		msg = "exec failed"
		if e.ContainerID != "" {
			msg = fmt.Sprintf("exec in container %s failed", e.ContainerID)
		}
	case LifecycleFailed:
		msg = fmt.Sprintf("container %s lifecycle call failed", e.ContainerID)
	default:
		msg = fmt.Sprintf("engine connection failed for %s", e.Endpoint)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ContainerError) Unwrap() error { return e.Err }

// FilesystemKind enumerates filesystem failures.
type FilesystemKind string

const (
	IOFailure  FilesystemKind = "io"
	PathEscape FilesystemKind = "path_escape"
)

// FilesystemError reports an I/O failure or a mount path escaping its roots.
type FilesystemError struct {
	Kind     FilesystemKind
	Path     string
	Resolved string
	Err      error
}

func (e *FilesystemError) domain() Domain { return DomainFilesystem }

func (e *FilesystemError) Error() string {
	var msg string
	if e.Kind == PathEscape {
		msg = fmt.Sprintf("path %q resolves to %q outside every allowed root", e.Path, e.Resolved)
	} else {
		msg = fmt.Sprintf("filesystem error on %q", e.Path)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// ProtocolKind enumerates hosted-protocol failures.
type ProtocolKind string

const (
	CapabilityBlocked ProtocolKind = "capability_blocked"
	MessageTooLarge   ProtocolKind = "message_too_large"
)

// ProtocolError reports a protocol-level violation by a hosted agent or caller.
type ProtocolError struct {
	Kind   ProtocolKind
	Method string
	Family string
}

func (e *ProtocolError) domain() Domain { return DomainProtocol }

func (e *ProtocolError) Error() string {
	if e.Kind == MessageTooLarge {
		return "protocol message exceeds size limit"
	}
	return fmt.Sprintf("capability blocked: %s (family %s)", e.Method, e.Family)
}
