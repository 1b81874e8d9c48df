package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/warden/internal/bridge"
)

func TestInspectExec(t *testing.T) {
	tests := []struct {
		name     string
		inspect  container.ExecInspect
		running  bool
		wantCode *int
	}{
		{"running", container.ExecInspect{Running: true, Pid: 42}, true, nil},
		{"exited", container.ExecInspect{Pid: 42, ExitCode: 137}, false, intPtr(137)},
		{"exited zero", container.ExecInspect{Pid: 42}, false, intPtr(0)},
		{"command not found", container.ExecInspect{ExitCode: 127}, false, intPtr(127)},
		{"not executable", container.ExecInspect{ExitCode: 126}, false, intPtr(126)},
		{"never started", container.ExecInspect{}, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConnector(Classify(""), &fakeDocker{execInspect: tt.inspect})
			st, err := c.InspectExec(context.Background(), "exec-1")
			require.NoError(t, err)
			assert.Equal(t, tt.running, st.Running)
			assert.Equal(t, tt.wantCode, st.ExitCode)
		})
	}
}

func intPtr(i int) *int { return &i }

func muxFrame(stream byte, payload string) []byte {
	b := make([]byte, 8, 8+len(payload))
	b[0] = stream
	binary.BigEndian.PutUint32(b[4:], uint32(len(payload)))
	return append(b, payload...)
}

func TestExec_ProtocolEndToEnd(t *testing.T) {
	local, remote := net.Pipe()
	fake := &fakeDocker{
		execAttach:  func() (net.Conn, error) { return local, nil },
		execInspect: container.ExecInspect{Pid: 7, ExitCode: 300},
	}
	c := NewConnector(Classify(""), fake)

	go func() {
		defer remote.Close()
		remote.Write(muxFrame(1, "{\"id\":1}\n"))
		remote.Write(muxFrame(2, "log line\n"))
		remote.Write(muxFrame(1, "{\"id\":2}\n"))
	}()

	var stdout, stderr bytes.Buffer
	res, err := c.Exec(context.Background(), &ContainerSession{ID: "ctr"},
		bridge.ExecSpec{Cmd: []string{"claude-code-acp"}, User: "1000:1000"},
		bridge.StreamPolicy{Mode: bridge.ModeProtocol},
		bridge.Streams{Stdout: &stdout, Stderr: &stderr})
	require.NoError(t, err)

	assert.Equal(t, "{\"id\":1}\n{\"id\":2}\n", stdout.String())
	assert.Equal(t, "log line\n", stderr.String())
	assert.Equal(t, 300, res.EngineCode)
	assert.Equal(t, 255, res.ExitCode)

	assert.False(t, fake.execOpts.Tty)
	assert.Equal(t, "1000:1000", fake.execOpts.User)
	assert.Equal(t, []string{"claude-code-acp"}, fake.execOpts.Cmd)
}

func TestResizeExec(t *testing.T) {
	fake := &fakeDocker{}
	c := NewConnector(Classify(""), fake)
	require.NoError(t, c.ResizeExec(context.Background(), "exec-1", 120, 40))
	assert.Equal(t, []container.ResizeOptions{{Width: 120, Height: 40}}, fake.resizes)
}
