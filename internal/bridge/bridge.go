// Package bridge runs an exec session inside a container and connects it to
// local streams.
//
// Two stream policies are supported. Interactive sessions attach a TTY with
// raw mode, resize propagation and a stop escape sequence. Protocol sessions
// disable the TTY and proxy stdin, stdout and stderr byte for byte; nothing
// but container stdout is ever written to the local output.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/majorcontext/warden/internal/fault"
	"github.com/majorcontext/warden/internal/log"
)

// Mode selects how local streams are attached.
type Mode string

const (
	ModeTTY      Mode = "tty"
	ModeProtocol Mode = "protocol"
)

// DefaultBufferSize is the per-direction forwarding buffer in protocol mode.
const DefaultBufferSize = 4096

// StreamPolicy is the plan's decision on how to attach streams.
type StreamPolicy struct {
	Mode       Mode
	BufferSize int
}

func (p StreamPolicy) bufferSize() int {
	if p.BufferSize > 0 {
		return p.BufferSize
	}
	return DefaultBufferSize
}

// Streams are the local ends of a session.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// ExecSpec describes the process to start.
type ExecSpec struct {
	Cmd     []string
	Env     []string
	WorkDir string
	User    string
	TTY     bool
}

// ExecState is what the engine reports about an exec process.
type ExecState struct {
	Running bool
	// ExitCode is nil when the engine has no exit code to report.
	ExitCode *int
}

// Stream is an attached exec connection. With a TTY it carries raw bytes;
// without one the read side is the engine's multiplexed frame stream.
type Stream interface {
	io.Reader
	io.Writer
	CloseWrite() error
	Close() error
}

// Backend is the subset of the engine the bridge needs.
type Backend interface {
	CreateExec(ctx context.Context, containerID string, spec ExecSpec) (string, error)
	AttachExec(ctx context.Context, execID string, tty bool) (Stream, error)
	InspectExec(ctx context.Context, execID string) (ExecState, error)
	ResizeExec(ctx context.Context, execID string, width, height uint) error
}

// State is the lifecycle of an exec session.
type State int

const (
	Starting State = iota
	Attached
	Exited
	Signaled
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Attached:
		return "attached"
	case Exited:
		return "exited"
	case Signaled:
		return "signaled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ExecSession tracks one exec process.
type ExecSession struct {
	ContainerID string
	TTY         bool

	mu    sync.Mutex
	id    string
	state State
	code  int
}

// ID returns the engine exec id, empty until the exec is created.
func (s *ExecSession) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the current lifecycle state.
func (s *ExecSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the state and, once Exited, the engine exit code.
func (s *ExecSession) Status() (State, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.code
}

func (s *ExecSession) transition(to State, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = to
	s.code = code
}

// Result is the outcome of a finished session.
type Result struct {
	ExecID string
	State  State
	// EngineCode is the raw code the engine reported; zero when signaled.
	EngineCode int
	// ExitCode is the code to hand to the orchestrating caller.
	ExitCode int
}

// SignaledExitCode is reported when the session ends on an explicit stop
// request or cancellation (128 + SIGTERM).
const SignaledExitCode = 143

// CallerExitCode clamps an engine exit code into the 0..255 range a process
// can return. Negative codes become 1.
func CallerExitCode(code int) int {
	switch {
	case code < 0:
		return 1
	case code > 255:
		return 255
	}
	return code
}

// errStopped marks a session ended by the user rather than the process.
var errStopped = errors.New("session stopped")

// Bridge runs exec sessions against a Backend.
type Bridge struct {
	backend Backend

	// Exit polling: the delay starts at pollInitial, doubles up to pollMax,
	// and gives up after maxPolls inspections.
	pollInitial time.Duration
	pollMax     time.Duration
	maxPolls    int
}

// New creates a Bridge over backend.
func New(backend Backend) *Bridge {
	return &Bridge{
		backend:     backend,
		pollInitial: 25 * time.Millisecond,
		pollMax:     500 * time.Millisecond,
		maxPolls:    120,
	}
}

// Run creates the exec described by spec in containerID, attaches it per
// policy and blocks until the process exits, the user requests a stop, or
// ctx is cancelled. Every forwarding goroutine has returned by the time Run
// does, except a blocked read on a local stdin that cannot be interrupted.
func (b *Bridge) Run(ctx context.Context, containerID string, spec ExecSpec, policy StreamPolicy, streams Streams) (*Result, error) {
	spec.TTY = policy.Mode == ModeTTY
	sess := &ExecSession{ContainerID: containerID, TTY: spec.TTY}
	logger := log.With("container_id", shortID(containerID), "mode", string(policy.Mode))

	execID, err := b.backend.CreateExec(ctx, containerID, spec)
	if err != nil {
		return nil, classifyExec(err, containerID)
	}
	sess.mu.Lock()
	sess.id = execID
	sess.mu.Unlock()
	logger.Debug("exec created", "exec_id", shortID(execID), "cmd", spec.Cmd)

	stream, err := b.backend.AttachExec(ctx, execID, spec.TTY)
	if err != nil {
		return nil, classifyExec(err, containerID)
	}
	sess.transition(Attached, 0)

	if spec.TTY {
		err = b.interactive(ctx, sess, stream, streams)
	} else {
		err = b.protocol(ctx, stream, streams, policy.bufferSize())
	}

	if errors.Is(err, errStopped) || ctx.Err() != nil {
		sess.transition(Signaled, 0)
		logger.Debug("exec signaled", "exec_id", shortID(execID))
		return &Result{ExecID: execID, State: Signaled, ExitCode: SignaledExitCode}, nil
	}
	if err != nil {
		logger.Debug("stream forwarding ended with error", "error", err)
	}

	code, err := b.waitExit(ctx, execID, containerID)
	if err != nil {
		if ctx.Err() != nil {
			sess.transition(Signaled, 0)
			return &Result{ExecID: execID, State: Signaled, ExitCode: SignaledExitCode}, nil
		}
		return nil, err
	}
	sess.transition(Exited, code)
	logger.Debug("exec exited", "exec_id", shortID(execID), "exit_code", code)
	return &Result{
		ExecID:     execID,
		State:      Exited,
		EngineCode: code,
		ExitCode:   CallerExitCode(code),
	}, nil
}

// waitExit polls the exec until the engine reports it is no longer running.
func (b *Bridge) waitExit(ctx context.Context, execID, containerID string) (int, error) {
	delay := b.pollInitial
	for attempt := 0; attempt < b.maxPolls; attempt++ {
		st, err := b.backend.InspectExec(ctx, execID)
		if err != nil {
			return 0, classifyExec(err, containerID)
		}
		if !st.Running {
			if st.ExitCode == nil {
				return 0, fault.FromContainer(&fault.ContainerError{
					Kind:        fault.ExecFailed,
					ContainerID: containerID,
					Err:         errors.New("engine reported completion without an exit code"),
				})
			}
			return *st.ExitCode, nil
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return 0, ctx.Err()
		case <-t.C:
		}
		delay *= 2
		if delay > b.pollMax {
			delay = b.pollMax
		}
	}
	return 0, fault.FromContainer(&fault.ContainerError{
		Kind:        fault.ExecFailed,
		ContainerID: containerID,
		Err:         fmt.Errorf("exec still running after %d status checks", b.maxPolls),
	})
}

func classifyExec(err error, containerID string) error {
	return fault.Classify(err, fault.Context{Phase: fault.PhaseExec, ContainerID: containerID})
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
