package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	dmount "github.com/docker/docker/api/types/mount"

	"github.com/majorcontext/warden/internal/fault"
	"github.com/majorcontext/warden/internal/log"
	"github.com/majorcontext/warden/internal/mount"
)

// SessionLabel marks containers created by warden. Its value is the session id.
const SessionLabel = "warden.session"

// keepalive is the container's main process. The agent itself runs as an
// exec so the container outlives it for cleanup and inspection.
var keepalive = []string{"sleep", "infinity"}

const stopTimeoutSeconds = 10

// ContainerSpec is what CreateContainer needs from a launch plan.
type ContainerSpec struct {
	SessionID  string
	Image      string
	Env        map[string]string
	WorkDir    string
	Mounts     []mount.Descriptor
	Security   SecurityProfile
	RuntimeDir string
}

// ContainerState is the lifecycle of a session container.
type ContainerState string

const (
	StateCreated ContainerState = "created"
	StateRunning ContainerState = "running"
	StateStopped ContainerState = "stopped"
)

// ContainerSession is a container owned by one launch. It is not safe for
// concurrent use; the launch that created it owns it.
type ContainerSession struct {
	ID         string
	Name       string
	SessionID  string
	State      ContainerState
	RuntimeDir string
	Mounts     []mount.Descriptor
}

// SessionInfo describes a warden container found by ListSessions.
type SessionInfo struct {
	ContainerID string
	SessionID   string
	State       string
	Created     time.Time
}

// CreateContainer creates (but does not start) the session container,
// pulling the image first when it is not present locally.
func (c *Connector) CreateContainer(ctx context.Context, spec ContainerSpec) (*ContainerSession, error) {
	img := strings.TrimSpace(spec.Image)
	if img == "" {
		return nil, fault.Missing("image")
	}
	if err := c.ensureImage(ctx, img); err != nil {
		return nil, err
	}

	mounts := make([]dmount.Mount, len(spec.Mounts))
	for i, m := range spec.Mounts {
		mounts[i] = dmount.Mount{
			Type:     dmount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		}
	}

	hc := &container.HostConfig{Mounts: mounts}
	applySecurity(hc, spec.Security)

	name := "warden-" + shortID(spec.SessionID)
	resp, err := c.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      img,
			Cmd:        keepalive,
			Env:        envList(spec.Env),
			WorkingDir: spec.WorkDir,
			Labels:     map[string]string{SessionLabel: spec.SessionID},
		},
		hc,
		nil, // network config
		nil, // platform
		name,
	)
	if err != nil {
		return nil, fault.Classify(fmt.Errorf("creating container: %w", err), c.faultContext(fault.PhaseLifecycle, ""))
	}
	for _, w := range resp.Warnings {
		log.Warn("engine warning on create", "warning", w)
	}
	log.Debug("container created", "container_id", shortID(resp.ID), "name", name,
		"privileged", spec.Security.Privileged, "fuse", spec.Security.Fuse)

	return &ContainerSession{
		ID:         resp.ID,
		Name:       name,
		SessionID:  spec.SessionID,
		State:      StateCreated,
		RuntimeDir: spec.RuntimeDir,
		Mounts:     spec.Mounts,
	}, nil
}

// StartContainer starts s.
func (c *Connector) StartContainer(ctx context.Context, s *ContainerSession) error {
	if err := c.cli.ContainerStart(ctx, s.ID, container.StartOptions{}); err != nil {
		return fault.Classify(fmt.Errorf("starting container: %w", err), c.faultContext(fault.PhaseLifecycle, s.ID))
	}
	s.State = StateRunning
	return nil
}

// StopContainer stops s. A container that no longer exists counts as stopped.
func (c *Connector) StopContainer(ctx context.Context, s *ContainerSession) error {
	if err := c.stop(ctx, s.ID); err != nil {
		return err
	}
	s.State = StateStopped
	return nil
}

// RemoveContainer force-removes s.
func (c *Connector) RemoveContainer(ctx context.Context, s *ContainerSession) error {
	if err := c.remove(ctx, s.ID); err != nil {
		return err
	}
	s.State = StateStopped
	return nil
}

// RemoveByID force-removes a container this process does not hold a
// session for, such as an orphan found by ListSessions.
func (c *Connector) RemoveByID(ctx context.Context, containerID string) error {
	return c.remove(ctx, containerID)
}

func (c *Connector) stop(ctx context.Context, id string) error {
	timeout := stopTimeoutSeconds
	err := c.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
	if err != nil && !errdefs.IsNotFound(err) {
		return fault.Classify(fmt.Errorf("stopping container: %w", err), c.faultContext(fault.PhaseLifecycle, id))
	}
	return nil
}

func (c *Connector) remove(ctx context.Context, id string) error {
	err := c.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil {
		// Not found: already gone. Conflict: removal already in progress.
		if errdefs.IsNotFound(err) || errdefs.IsConflict(err) {
			return nil
		}
		return fault.Classify(fmt.Errorf("removing container: %w", err), c.faultContext(fault.PhaseLifecycle, id))
	}
	return nil
}

// ListSessions returns every container carrying the warden session label.
func (c *Connector) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	list, err := c.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", SessionLabel)),
	})
	if err != nil {
		return nil, fault.Classify(fmt.Errorf("listing containers: %w", err), c.faultContext(fault.PhaseLifecycle, ""))
	}
	out := make([]SessionInfo, 0, len(list))
	for _, ctr := range list {
		out = append(out, SessionInfo{
			ContainerID: ctr.ID,
			SessionID:   ctr.Labels[SessionLabel],
			State:       string(ctr.State),
			Created:     time.Unix(ctr.Created, 0),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

// ensureImage pulls img if it is not present locally.
func (c *Connector) ensureImage(ctx context.Context, img string) error {
	_, err := c.cli.ImageInspect(ctx, img)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fault.Classify(fmt.Errorf("inspecting image %s: %w", img, err), c.faultContext(fault.PhaseLifecycle, ""))
	}

	log.Info("pulling image", "image", img)
	reader, err := c.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fault.Classify(fmt.Errorf("pulling image %s: %w", img, err), c.faultContext(fault.PhaseLifecycle, ""))
	}
	defer reader.Close()

	// Drain the reader to complete the pull (progress JSON is discarded).
	if _, err := io.Copy(io.Discard, reader); err != nil && !errors.Is(err, io.EOF) {
		return fault.Classify(fmt.Errorf("pulling image %s: %w", img, err), c.faultContext(fault.PhaseLifecycle, ""))
	}
	return nil
}

// envList renders env as sorted KEY=VALUE pairs so container config is
// deterministic.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
