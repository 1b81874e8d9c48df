package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"

	"github.com/majorcontext/warden/internal/credential"
	"github.com/majorcontext/warden/internal/fault"
	"github.com/majorcontext/warden/internal/log"
)

// UploadResult lists the container paths written by UploadCredentials, in
// credential.Families order.
type UploadResult struct {
	Targets []string
}

// UploadCredentials copies the selected credential families found under
// home into the container at credential.ContainerHome. Families with no
// directory on the host are skipped; if none are present nothing is sent
// and the result is empty.
func (c *Connector) UploadCredentials(ctx context.Context, containerID, home string, selected []credential.Family) (UploadResult, error) {
	sources := credential.Resolve(home, selected)
	if len(sources) == 0 {
		log.Debug("no credential sources present, skipping upload", "selected", selected)
		return UploadResult{}, nil
	}

	owner := Owner{UID: credential.AgentUID, GID: credential.AgentGID}
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tarDir(tw, credential.ContainerHome, 0o755, owner); err != nil {
		return UploadResult{}, c.uploadErr(containerID, err)
	}
	targets := make([]string, 0, len(sources))
	for _, s := range sources {
		if err := TarTree(tw, s.HostPath, s.Target(), owner); err != nil {
			return UploadResult{}, c.uploadErr(containerID, fmt.Errorf("archiving %s credentials: %w", s.Family, err))
		}
		targets = append(targets, s.Target())
	}
	if err := tw.Close(); err != nil {
		return UploadResult{}, c.uploadErr(containerID, err)
	}

	if err := c.UploadArchive(ctx, containerID, "/", &buf); err != nil {
		return UploadResult{}, err
	}
	log.Debug("credentials uploaded", "container_id", shortID(containerID), "targets", targets)
	return UploadResult{Targets: targets}, nil
}

// UploadArchive extracts the tar stream r at dst inside the container.
func (c *Connector) UploadArchive(ctx context.Context, containerID, dst string, r io.Reader) error {
	if err := c.cli.CopyToContainer(ctx, containerID, dst, r, container.CopyToContainerOptions{}); err != nil {
		return c.uploadErr(containerID, err)
	}
	return nil
}

func (c *Connector) uploadErr(containerID string, err error) error {
	return fault.FromContainer(&fault.ContainerError{
		Kind:        fault.UploadFailed,
		Endpoint:    c.ep.String(),
		ContainerID: containerID,
		Err:         err,
	})
}
