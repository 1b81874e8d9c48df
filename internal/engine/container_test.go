package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	dmount "github.com/docker/docker/api/types/mount"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/warden/internal/fault"
	"github.com/majorcontext/warden/internal/mount"
)

func TestCreateContainer_EmptyImage(t *testing.T) {
	for _, img := range []string{"", "   \t"} {
		fake := &fakeDocker{}
		c := NewConnector(Classify(""), fake)

		_, err := c.CreateContainer(context.Background(), ContainerSpec{SessionID: "s1", Image: img})
		require.Error(t, err)

		fe, ok := fault.As(err)
		require.True(t, ok)
		cfg, ok := fe.Config()
		require.True(t, ok, "want config error, got %v", err)
		assert.Equal(t, fault.MissingField, cfg.Kind)
		assert.Equal(t, "image", cfg.Field)
		assert.Nil(t, fake.created, "engine must not be called")
	}
}

func TestCreateContainer_MapsSpec(t *testing.T) {
	fake := &fakeDocker{imagePresent: true}
	c := NewConnector(Classify(""), fake)

	sess, err := c.CreateContainer(context.Background(), ContainerSpec{
		SessionID: "5f0c2b8e-1111-2222-3333-444455556666",
		Image:     "ghcr.io/acme/agent:latest",
		Env:       map[string]string{"B": "2", "A": "1"},
		WorkDir:   "/workspace",
		Mounts: []mount.Descriptor{
			{Source: "/home/me/proj", Target: "/workspace"},
			{Source: "/run/user/1000/warden", Target: "/run/warden/github", ReadOnly: true},
		},
		Security:   SecurityProfile{Fuse: true},
		RuntimeDir: "/run/user/1000/warden",
	})
	require.NoError(t, err)

	assert.Equal(t, "0123456789abcdef0123", sess.ID)
	assert.Equal(t, StateCreated, sess.State)
	assert.Equal(t, "warden-5f0c2b8e-111", fake.createName)
	assert.Equal(t, "warden-5f0c2b8e-111", sess.Name)

	cfg := fake.created
	assert.Equal(t, "ghcr.io/acme/agent:latest", cfg.Image)
	assert.Equal(t, []string{"A=1", "B=2"}, cfg.Env)
	assert.Equal(t, "/workspace", cfg.WorkingDir)
	assert.Equal(t, "5f0c2b8e-1111-2222-3333-444455556666", cfg.Labels[SessionLabel])
	assert.Equal(t, []string{"sleep", "infinity"}, []string(cfg.Cmd))

	hc := fake.hostConfig
	assert.False(t, hc.Privileged)
	assert.Equal(t, []string{"label=disable"}, hc.SecurityOpt)
	assert.Len(t, hc.Resources.Devices, 1)
	assert.Equal(t, []dmount.Mount{
		{Type: dmount.TypeBind, Source: "/home/me/proj", Target: "/workspace"},
		{Type: dmount.TypeBind, Source: "/run/user/1000/warden", Target: "/run/warden/github", ReadOnly: true},
	}, hc.Mounts)
	assert.Empty(t, fake.pulled)
}

func TestCreateContainer_PullsMissingImage(t *testing.T) {
	fake := &fakeDocker{}
	c := NewConnector(Classify(""), fake)

	_, err := c.CreateContainer(context.Background(), ContainerSpec{SessionID: "s", Image: "alpine:3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpine:3"}, fake.pulled)
}

func TestCreateContainer_EngineErrorIsLifecycle(t *testing.T) {
	fake := &fakeDocker{imagePresent: true, createErr: errors.New("conflict: name in use")}
	c := NewConnector(Classify(""), fake)

	_, err := c.CreateContainer(context.Background(), ContainerSpec{SessionID: "s", Image: "alpine"})
	var cerr *fault.ContainerError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, fault.LifecycleFailed, cerr.Kind)
}

func TestLifecycle_TransitionsAndTolerance(t *testing.T) {
	fake := &fakeDocker{stopErr: fmt.Errorf("no such container: %w", errdefs.ErrNotFound), removeErr: errdefs.ErrConflict}
	c := NewConnector(Classify(""), fake)
	sess := &ContainerSession{ID: "abc", State: StateCreated}

	require.NoError(t, c.StartContainer(context.Background(), sess))
	assert.Equal(t, StateRunning, sess.State)

	require.NoError(t, c.StopContainer(context.Background(), sess))
	assert.Equal(t, StateStopped, sess.State)

	require.NoError(t, c.RemoveContainer(context.Background(), sess))
	assert.Equal(t, []string{"abc"}, fake.stopped)
	assert.Equal(t, []string{"abc"}, fake.removed)
}

func TestStopContainer_RealFailure(t *testing.T) {
	fake := &fakeDocker{stopErr: errors.New("daemon on fire")}
	c := NewConnector(Classify(""), fake)
	sess := &ContainerSession{ID: "abc", State: StateRunning}

	err := c.StopContainer(context.Background(), sess)
	var cerr *fault.ContainerError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, fault.LifecycleFailed, cerr.Kind)
	assert.Equal(t, "abc", cerr.ContainerID)
	assert.Equal(t, StateRunning, sess.State)
}

func TestListSessions(t *testing.T) {
	fake := &fakeDocker{list: []container.Summary{
		{ID: "new", Labels: map[string]string{SessionLabel: "s2"}, State: "running", Created: 200},
		{ID: "old", Labels: map[string]string{SessionLabel: "s1"}, State: "exited", Created: 100},
	}}
	c := NewConnector(Classify(""), fake)

	got, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "old", got[0].ContainerID)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.Equal(t, "exited", got[0].State)
	assert.Equal(t, "new", got[1].ContainerID)
}
