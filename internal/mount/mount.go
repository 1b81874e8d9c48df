// Package mount validates host-mount requests against allowlisted roots.
//
// Host paths are canonicalised with symlinks resolved before the containment
// check, so a link inside a root that points outside it is rejected.
package mount

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/majorcontext/warden/internal/fault"
	"github.com/majorcontext/warden/internal/log"
)

// Descriptor is a validated bind mount.
type Descriptor struct {
	// Source is the canonical host path.
	Source string
	// Target is the absolute path inside the container.
	Target   string
	ReadOnly bool

	// requested is the host path as given, kept so Revalidate can repeat
	// canonicalisation from scratch.
	requested string
}

// Requested returns the host path as originally given to Resolve.
func (d Descriptor) Requested() string { return d.requested }

// Recorder receives one record per resolved mount.
type Recorder interface {
	RecordMount(source, target string, readOnly bool) error
}

// Mounter resolves mounts against a fixed set of roots.
type Mounter struct {
	Roots    []string
	Recorder Recorder
}

// Resolve validates hostPath against roots and returns a descriptor.
func Resolve(hostPath, containerPath string, roots []string) (Descriptor, error) {
	return (&Mounter{Roots: roots}).Resolve(hostPath, containerPath, false)
}

// Revalidate repeats canonicalisation for d against roots.
func Revalidate(d Descriptor, roots []string) (Descriptor, error) {
	return (&Mounter{Roots: roots}).Revalidate(d)
}

// Resolve canonicalises hostPath, checks it lies within one of the roots and
// that containerPath is absolute. On success the mount is recorded.
func (m *Mounter) Resolve(hostPath, containerPath string, readOnly bool) (Descriptor, error) {
	if !path.IsAbs(containerPath) {
		return Descriptor{}, fault.Invalid("workspace.container_path",
			"container path must be absolute: "+containerPath)
	}

	source, err := m.canonical(hostPath)
	if err != nil {
		return Descriptor{}, err
	}

	d := Descriptor{
		Source:    source,
		Target:    path.Clean(containerPath),
		ReadOnly:  readOnly,
		requested: hostPath,
	}
	log.Debug("resolved mount", "requested", hostPath, "source", d.Source, "target", d.Target, "read_only", readOnly)
	if m.Recorder != nil {
		if err := m.Recorder.RecordMount(d.Source, d.Target, d.ReadOnly); err != nil {
			log.Warn("recording mount failed", "source", d.Source, "error", err)
		}
	}
	return d, nil
}

// Revalidate repeats the canonicalisation of d's requested path. It must run
// immediately before the container is created; the returned descriptor is
// the one to mount. A path that now resolves outside every root fails.
func (m *Mounter) Revalidate(d Descriptor) (Descriptor, error) {
	requested := d.requested
	if requested == "" {
		requested = d.Source
	}
	source, err := m.canonical(requested)
	if err != nil {
		return Descriptor{}, err
	}
	if source != d.Source {
		log.Warn("mount source changed since planning", "requested", requested, "was", d.Source, "now", source)
	}
	d.Source = source
	d.requested = requested
	return d, nil
}

func (m *Mounter) canonical(hostPath string) (string, error) {
	abs, err := filepath.Abs(hostPath)
	if err != nil {
		return "", fault.FromFilesystem(&fault.FilesystemError{Kind: fault.IOFailure, Path: hostPath, Err: err})
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fault.FromFilesystem(&fault.FilesystemError{Kind: fault.IOFailure, Path: hostPath, Err: err})
	}

	for _, root := range m.Roots {
		canonRoot, err := canonicalRoot(root)
		if err != nil {
			log.Debug("skipping mount root", "root", root, "error", err)
			continue
		}
		if within(canonRoot, resolved) {
			return resolved, nil
		}
	}
	return "", fault.FromFilesystem(&fault.FilesystemError{
		Kind:     fault.PathEscape,
		Path:     hostPath,
		Resolved: resolved,
	})
}

func canonicalRoot(root string) (string, error) {
	if root == "" {
		return "", errors.New("empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", errors.New("not a directory")
	}
	return resolved, nil
}

// within reports whether p equals root or lies beneath it. Both must be
// canonical.
func within(root, p string) bool {
	if p == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}
