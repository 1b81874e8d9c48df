package credential

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_OnlySelectedAndPresent(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(home, ".codex"), 0o700))

	got := Resolve(home, []Family{Claude})
	assert.Empty(t, got)

	got = Resolve(home, []Family{Claude, Codex})
	require.Len(t, got, 1)
	assert.Equal(t, Codex, got[0].Family)
	assert.Equal(t, "/home/agent/.codex", got[0].Target())
}

func TestResolve_FixedOrder(t *testing.T) {
	home := t.TempDir()
	for _, d := range []string{".claude", ".codex", ".gemini"} {
		require.NoError(t, os.Mkdir(filepath.Join(home, d), 0o700))
	}

	got := Resolve(home, []Family{Gemini, Claude, Codex})
	require.Len(t, got, 3)
	assert.Equal(t, []Family{Claude, Codex, Gemini}, []Family{got[0].Family, got[1].Family, got[2].Family})
}

func TestResolve_FileIsNotADirectory(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, ".claude"), []byte("x"), 0o600))
	assert.Empty(t, Resolve(home, []Family{Claude}))
}

func TestTokenFile_ReadsFreshAfterRename(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "token")
	tf := TokenFile{Path: p}

	_, err := tf.Read()
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, os.WriteFile(p, []byte("ghs_first\n"), 0o600))
	tok, err := tf.Read()
	require.NoError(t, err)
	assert.Equal(t, "ghs_first", tok)

	// Replace the way the refresher does: write aside, rename over.
	tmp := filepath.Join(dir, ".token.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("ghs_second"), 0o600))
	require.NoError(t, os.Rename(tmp, p))

	tok, err = tf.Read()
	require.NoError(t, err)
	assert.Equal(t, "ghs_second", tok)
}

func TestTokenFile_Paths(t *testing.T) {
	tf := TokenFile{Path: "/run/user/1000/warden/github/token"}
	assert.Equal(t, "/run/user/1000/warden/github", tf.Dir())
	assert.Equal(t, "/run/warden/github/token", tf.ContainerPath())
}

func TestFamily(t *testing.T) {
	assert.Equal(t, ".gemini", Gemini.Dir())
	assert.True(t, Claude.Valid())
	assert.False(t, Family("cursor").Valid())
}
