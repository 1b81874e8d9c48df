package engine

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"

	"github.com/majorcontext/warden/internal/bridge"
	"github.com/majorcontext/warden/internal/fault"
)

// CreateExec registers a process to run in containerID. It is started by
// AttachExec.
func (c *Connector) CreateExec(ctx context.Context, containerID string, spec bridge.ExecSpec) (string, error) {
	resp, err := c.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		User:         spec.User,
		Tty:          spec.TTY,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Env:          spec.Env,
		WorkingDir:   spec.WorkDir,
		Cmd:          spec.Cmd,
	})
	if err != nil {
		return "", fault.Classify(fmt.Errorf("creating exec: %w", err), c.faultContext(fault.PhaseExec, containerID))
	}
	return resp.ID, nil
}

// AttachExec starts the exec and returns its hijacked connection.
func (c *Connector) AttachExec(ctx context.Context, execID string, tty bool) (bridge.Stream, error) {
	resp, err := c.cli.ContainerExecAttach(ctx, execID, container.ExecAttachOptions{Tty: tty})
	if err != nil {
		return nil, fault.Classify(fmt.Errorf("attaching exec: %w", err), c.faultContext(fault.PhaseExec, ""))
	}
	return &hijacked{resp: resp}, nil
}

// InspectExec reports whether the exec is running and its exit code.
//
// The API decodes a null exit code as 0, so an exec with no pid and code 0
// is taken as never started and reported without a code. A process that
// failed to start (126, 127) also has no pid but does carry a code, and
// that code is passed through.
func (c *Connector) InspectExec(ctx context.Context, execID string) (bridge.ExecState, error) {
	info, err := c.cli.ContainerExecInspect(ctx, execID)
	if err != nil {
		return bridge.ExecState{}, fault.Classify(fmt.Errorf("inspecting exec: %w", err), c.faultContext(fault.PhaseExec, info.ContainerID))
	}
	st := bridge.ExecState{Running: info.Running}
	if !info.Running && (info.Pid != 0 || info.ExitCode != 0) {
		code := info.ExitCode
		st.ExitCode = &code
	}
	return st, nil
}

// ResizeExec sets the exec's terminal size.
func (c *Connector) ResizeExec(ctx context.Context, execID string, width, height uint) error {
	return c.cli.ContainerExecResize(ctx, execID, container.ResizeOptions{Width: width, Height: height})
}

// Exec runs spec in s under policy, wiring streams through the bridge.
func (c *Connector) Exec(ctx context.Context, s *ContainerSession, spec bridge.ExecSpec, policy bridge.StreamPolicy, streams bridge.Streams) (*bridge.Result, error) {
	return bridge.New(c).Run(ctx, s.ID, spec, policy, streams)
}

// hijacked adapts the engine's hijacked connection to bridge.Stream.
type hijacked struct {
	resp types.HijackedResponse
}

func (h *hijacked) Read(p []byte) (int, error)  { return h.resp.Reader.Read(p) }
func (h *hijacked) Write(p []byte) (int, error) { return h.resp.Conn.Write(p) }
func (h *hijacked) CloseWrite() error           { return h.resp.CloseWrite() }

func (h *hijacked) Close() error {
	h.resp.Close()
	return nil
}

var _ bridge.Backend = (*Connector)(nil)
