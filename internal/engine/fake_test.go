package engine

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// fakeDocker implements the calls the connector makes. Unimplemented
// methods panic through the nil embedded interface.
type fakeDocker struct {
	client.APIClient

	mu sync.Mutex

	pingErr error

	imagePresent bool
	pulled       []string

	created    *container.Config
	hostConfig *container.HostConfig
	createName string
	createErr  error

	stopErr   error
	removeErr error
	stopped   []string
	removed   []string

	list []container.Summary

	copies  []copyCall
	copyErr error

	execOpts    container.ExecOptions
	execAttach  func() (net.Conn, error)
	execInspect container.ExecInspect
	resizes     []container.ResizeOptions
}

type copyCall struct {
	containerID string
	dst         string
	data        []byte
}

func (f *fakeDocker) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{APIVersion: "1.47"}, f.pingErr
}

func (f *fakeDocker) Close() error { return nil }

func (f *fakeDocker) ImageInspect(ctx context.Context, ref string, _ ...client.ImageInspectOption) (image.InspectResponse, error) {
	if f.imagePresent {
		return image.InspectResponse{ID: "sha256:abc"}, nil
	}
	return image.InspectResponse{}, errdefs.ErrNotFound
}

func (f *fakeDocker) ImagePull(ctx context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulled = append(f.pulled, ref)
	f.imagePresent = true
	return io.NopCloser(bytes.NewReader([]byte(`{"status":"done"}`))), nil
}

func (f *fakeDocker) ContainerCreate(ctx context.Context, cfg *container.Config, hc *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	f.created, f.hostConfig, f.createName = cfg, hc, name
	return container.CreateResponse{ID: "0123456789abcdef0123"}, nil
}

func (f *fakeDocker) ContainerStart(ctx context.Context, id string, _ container.StartOptions) error {
	return nil
}

func (f *fakeDocker) ContainerStop(ctx context.Context, id string, _ container.StopOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return f.stopErr
}

func (f *fakeDocker) ContainerRemove(ctx context.Context, id string, _ container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return f.removeErr
}

func (f *fakeDocker) ContainerList(ctx context.Context, _ container.ListOptions) ([]container.Summary, error) {
	return f.list, nil
}

func (f *fakeDocker) CopyToContainer(ctx context.Context, id, dst string, r io.Reader, _ container.CopyToContainerOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.copyErr != nil {
		return f.copyErr
	}
	f.copies = append(f.copies, copyCall{containerID: id, dst: dst, data: data})
	return nil
}

func (f *fakeDocker) ContainerExecCreate(ctx context.Context, id string, opts container.ExecOptions) (container.ExecCreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execOpts = opts
	return container.ExecCreateResponse{ID: "exec-1"}, nil
}

func (f *fakeDocker) ContainerExecAttach(ctx context.Context, execID string, _ container.ExecAttachOptions) (types.HijackedResponse, error) {
	conn, err := f.execAttach()
	if err != nil {
		return types.HijackedResponse{}, err
	}
	return types.HijackedResponse{Conn: conn, Reader: bufio.NewReader(conn)}, nil
}

func (f *fakeDocker) ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error) {
	return f.execInspect, nil
}

func (f *fakeDocker) ContainerExecResize(ctx context.Context, execID string, opts container.ResizeOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes = append(f.resizes, opts)
	return nil
}

type tarEntry struct {
	hdr  *tar.Header
	body string
}

func readTar(data []byte) (map[string]tarEntry, []string, error) {
	out := map[string]tarEntry{}
	var order []string
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out, order, nil
		}
		if err != nil {
			return nil, nil, err
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			return nil, nil, err
		}
		out[hdr.Name] = tarEntry{hdr: hdr, body: string(body)}
		order = append(order, hdr.Name)
	}
}

func archiveReader(t interface{ Fatalf(string, ...any) }, src, prefix string) io.Reader {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := TarTree(tw, src, prefix, Owner{UID: 1000, GID: 1000}); err != nil {
		t.Fatalf("TarTree: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	return &buf
}
