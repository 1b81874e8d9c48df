package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/warden/internal/fault"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		raw    string
		scheme Scheme
		mode   ConnectMode
		addr   string
	}{
		{"", SchemeUnix, Eager, DefaultSocket},
		{"unix:///var/run/docker.sock", SchemeUnix, Eager, "/var/run/docker.sock"},
		{"/run/user/1000/podman/podman.sock", SchemeUnix, Eager, "/run/user/1000/podman/podman.sock"},
		{"relative.sock", SchemeUnix, Eager, "relative.sock"},
		{"npipe:////./pipe/docker_engine", SchemeNpipe, Eager, "//./pipe/docker_engine"},
		{`\\.\pipe\docker_engine`, SchemeNpipe, Eager, `\\.\pipe\docker_engine`},
		{"//./pipe/docker_engine", SchemeNpipe, Eager, "//./pipe/docker_engine"},
		{"tcp://10.0.0.5:2375", SchemeHTTP, Lazy, "10.0.0.5:2375"},
		{"http://10.0.0.5:2375", SchemeHTTP, Lazy, "10.0.0.5:2375"},
		{"https://docker.example.com:2376/", SchemeHTTPS, Lazy, "docker.example.com:2376"},
		{"TCP://host:2375", SchemeHTTP, Lazy, "host:2375"},
		{"ssh://user@host", SchemeUnknown, Lazy, "user@host"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			ep := Classify(tt.raw)
			assert.Equal(t, tt.scheme, ep.Scheme)
			assert.Equal(t, tt.mode, ep.Mode)
			assert.Equal(t, tt.addr, ep.Address)
			assert.Equal(t, tt.raw, ep.Raw)
		})
	}
}

func TestClassify_TCPMatchesHTTP(t *testing.T) {
	for _, hp := range []string{"localhost:2375", "10.1.2.3:1", "[::1]:2375", "engine.internal:65535"} {
		tcp := Classify("tcp://" + hp)
		http := Classify("http://" + hp)

		assert.Equal(t, http.Mode, tcp.Mode, hp)
		assert.Equal(t, http.Scheme, tcp.Scheme, hp)
		assert.Equal(t, http.Address, tcp.Address, hp)
		assert.Equal(t, Lazy, tcp.Mode, hp)
		assert.Equal(t, "http://"+hp, tcp.String())
	}
}

func TestClassify_PipePrefixesArePipesEverywhere(t *testing.T) {
	for _, p := range []string{"//server/pipe/x", `\\server\pipe\x`, "//", `\\`} {
		ep := Classify(p)
		assert.Equal(t, SchemeNpipe, ep.Scheme, p)
		assert.True(t, ep.Eager(), p)
	}
}

func TestClassify_Idempotent(t *testing.T) {
	for _, raw := range []string{"", "unix:///x.sock", "tcp://h:1", `\\.\pipe\p`, "https://h", "bogus://x"} {
		assert.Equal(t, Classify(raw), Classify(raw), raw)
	}
}

func TestEndpoint_String(t *testing.T) {
	assert.Equal(t, "npipe:////./pipe/docker_engine", Classify(`\\.\pipe\docker_engine`).String())
	assert.Equal(t, "unix:///var/run/docker.sock", Classify("").String())
	assert.Equal(t, "https://h:2376", Classify("https://h:2376").String())
}

func TestConnect_UnknownSchemeIsConfigError(t *testing.T) {
	_, err := Connect(context.Background(), Classify("ssh://user@host"), Options{})
	require.Error(t, err)

	fe, ok := fault.As(err)
	require.True(t, ok)
	cfg, ok := fe.Config()
	require.True(t, ok)
	assert.Equal(t, "engine.host", cfg.Field)
}
