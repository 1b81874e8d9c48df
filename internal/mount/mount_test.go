package mount

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/warden/internal/fault"
)

type fakeRecorder struct {
	sources []string
	targets []string
}

func (f *fakeRecorder) RecordMount(source, target string, readOnly bool) error {
	f.sources = append(f.sources, source)
	f.targets = append(f.targets, target)
	return nil
}

func canon(t *testing.T, p string) string {
	t.Helper()
	r, err := filepath.EvalSymlinks(p)
	require.NoError(t, err)
	return r
}

func TestResolve_InsideRoot(t *testing.T) {
	root := t.TempDir()
	proj := filepath.Join(root, "proj")
	require.NoError(t, os.Mkdir(proj, 0o755))

	rec := &fakeRecorder{}
	m := &Mounter{Roots: []string{root}, Recorder: rec}
	d, err := m.Resolve(proj, "/workspace/", false)
	require.NoError(t, err)

	assert.Equal(t, canon(t, proj), d.Source)
	assert.Equal(t, "/workspace", d.Target)
	assert.Equal(t, proj, d.Requested())
	assert.Equal(t, []string{d.Source}, rec.sources)
	assert.Equal(t, []string{"/workspace"}, rec.targets)
}

func TestResolve_RootItself(t *testing.T) {
	root := t.TempDir()
	d, err := Resolve(root, "/workspace", []string{root})
	require.NoError(t, err)
	assert.Equal(t, canon(t, root), d.Source)
}

func TestResolve_Escapes(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(outside, link))

	// A sibling whose name shares the root as a string prefix.
	sibling := root + "-evil"
	require.NoError(t, os.Mkdir(sibling, 0o755))
	t.Cleanup(func() { os.RemoveAll(sibling) })

	tests := []struct {
		name string
		path string
	}{
		{"plain outside path", outside},
		{"symlink to outside", link},
		{"dot-dot traversal", filepath.Join(root, "..", filepath.Base(outside))},
		{"string prefix sibling", sibling},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			m := &Mounter{Roots: []string{root}, Recorder: rec}
			d, err := m.Resolve(tt.path, "/workspace", false)
			require.Error(t, err)
			assert.Equal(t, Descriptor{}, d)
			assert.Empty(t, rec.sources)

			var fsErr *fault.FilesystemError
			require.True(t, errors.As(err, &fsErr))
			assert.Equal(t, fault.PathEscape, fsErr.Kind)
		})
	}
}

func TestResolve_NoRootsFailsClosed(t *testing.T) {
	dir := t.TempDir()
	_, err := Resolve(dir, "/workspace", nil)
	var fsErr *fault.FilesystemError
	require.True(t, errors.As(err, &fsErr))
	assert.Equal(t, fault.PathEscape, fsErr.Kind)
}

func TestResolve_RelativeContainerPath(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "workspace", []string{root})
	require.Error(t, err)

	fe, ok := fault.As(err)
	require.True(t, ok)
	cfg, ok := fe.Config()
	require.True(t, ok)
	assert.Equal(t, fault.InvalidValue, cfg.Kind)
	assert.Equal(t, "workspace.container_path", cfg.Field)
}

func TestResolve_MissingHostPath(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(filepath.Join(root, "nope"), "/workspace", []string{root})
	var fsErr *fault.FilesystemError
	require.True(t, errors.As(err, &fsErr))
	assert.Equal(t, fault.IOFailure, fsErr.Kind)
}

func TestRevalidate_DetectsRetargetedLink(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "inside")
	require.NoError(t, os.Mkdir(inside, 0o755))
	link := filepath.Join(root, "ws")
	require.NoError(t, os.Symlink(inside, link))

	d, err := Resolve(link, "/workspace", []string{root})
	require.NoError(t, err)

	again, err := Revalidate(d, []string{root})
	require.NoError(t, err)
	assert.Equal(t, d.Source, again.Source)

	// Swap the link to point outside between planning and create.
	outside := t.TempDir()
	require.NoError(t, os.Remove(link))
	require.NoError(t, os.Symlink(outside, link))

	_, err = Revalidate(d, []string{root})
	var fsErr *fault.FilesystemError
	require.True(t, errors.As(err, &fsErr))
	assert.Equal(t, fault.PathEscape, fsErr.Kind)
}

func TestRevalidate_KeepsReadOnly(t *testing.T) {
	root := t.TempDir()
	m := &Mounter{Roots: []string{root}}
	d, err := m.Resolve(root, "/run/secrets", true)
	require.NoError(t, err)

	again, err := m.Revalidate(d)
	require.NoError(t, err)
	assert.True(t, again.ReadOnly)
	assert.Equal(t, "/run/secrets", again.Target)
}
