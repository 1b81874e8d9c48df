package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_TagsSession(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	rec := NewRecorder(store, "sess-1")
	require.NoError(t, rec.RecordMount("/home/me/src", "/workspace", false))
	require.NoError(t, rec.RecordDenial("terminal/create", "terminal", "agent_to_client"))
	require.NoError(t, rec.ForSession("sess-2").RecordTrustBoundary("acp delegate override"))
	require.NoError(t, rec.RecordContainer("created", "abc123", "warden/agent:latest", false))
	require.NoError(t, rec.RecordCredential("github", "mounted", "/run/warden/github"))

	entries, err := store.Range(FirstSequence, store.Count())
	require.NoError(t, err)
	require.Len(t, entries, 5)

	wantTypes := []EntryType{EntryMount, EntryDenial, EntryTrustBoundary, EntryContainer, EntryCredential}
	wantSessions := []string{"sess-1", "sess-1", "sess-2", "sess-1", "sess-1"}
	for i, e := range entries {
		assert.Equal(t, wantTypes[i], e.Type)
		data := e.Data.(map[string]any)
		assert.Equal(t, wantSessions[i], data["session"])
	}

	denial := entries[1].Data.(map[string]any)
	assert.Equal(t, "terminal/create", denial["method"])
	assert.Equal(t, "agent_to_client", denial["direction"])

	n, err := store.Verify()
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
}

func TestRecorder_NilDiscards(t *testing.T) {
	var rec *Recorder
	assert.NoError(t, rec.RecordMount("/a", "/b", true))
	assert.NoError(t, rec.RecordDenial("fs/read_text_file", "fs", "agent_to_client"))
	assert.NoError(t, rec.RecordTrustBoundary("x"))
	assert.Nil(t, rec.ForSession("s"))
}
