package audit

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStore_OpenClose(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "audit.db")

	store, err := OpenStore(dbPath)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Database file not created: %v", err)
	}
}

func TestStore_Append_FirstEntry(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	entry, err := store.Append(EntryMount, MountData{Source: "/src", Target: "/workspace"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if entry.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", entry.Sequence)
	}
	if entry.PrevHash != "" {
		t.Errorf("PrevHash = %q, want empty for first entry", entry.PrevHash)
	}
	if entry.Hash == "" {
		t.Error("Hash should not be empty")
	}
}

func TestStore_Append_ChainedEntries(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	e1, err := store.Append(EntryContainer, ContainerData{Action: "created", ContainerID: "c1"})
	if err != nil {
		t.Fatalf("Append e1: %v", err)
	}
	e2, err := store.Append(EntryContainer, ContainerData{Action: "started", ContainerID: "c1"})
	if err != nil {
		t.Fatalf("Append e2: %v", err)
	}
	e3, err := store.Append(EntryDenial, DenialData{Method: "fs/read_text_file", Family: "fs"})
	if err != nil {
		t.Fatalf("Append e3: %v", err)
	}

	if e2.PrevHash != e1.Hash {
		t.Errorf("e2.PrevHash = %s, want %s", e2.PrevHash, e1.Hash)
	}
	if e3.PrevHash != e2.Hash {
		t.Errorf("e3.PrevHash = %s, want %s", e3.PrevHash, e2.Hash)
	}
	if e3.Sequence != 3 {
		t.Errorf("e3.Sequence = %d, want 3", e3.Sequence)
	}
}

func TestStore_GetVerifiesAfterRoundTrip(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	orig, err := store.Append(EntryCredential, CredentialData{Name: "claude", Action: "copied", Target: "/home/agent/.claude"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.Get(orig.Sequence)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Hash != orig.Hash {
		t.Errorf("Hash = %s, want %s", got.Hash, orig.Hash)
	}
	if !got.Verify() {
		t.Error("entry read back from the database should verify")
	}
	data, ok := got.Data.(map[string]any)
	if !ok {
		t.Fatalf("Data = %T, want map", got.Data)
	}
	if data["name"] != "claude" {
		t.Errorf("data[name] = %v, want claude", data["name"])
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if _, err := store.Get(42); err != ErrNotFound {
		t.Errorf("Get(42) error = %v, want ErrNotFound", err)
	}
}

func TestStore_ByType(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	store.Append(EntryMount, MountData{Source: "/a", Target: "/workspace"})
	store.Append(EntryDenial, DenialData{Method: "terminal/create", Family: "terminal"})
	store.Append(EntryMount, MountData{Source: "/b", Target: "/data"})

	mounts, err := store.ByType(EntryMount)
	if err != nil {
		t.Fatalf("ByType: %v", err)
	}
	if len(mounts) != 2 {
		t.Fatalf("len(mounts) = %d, want 2", len(mounts))
	}
	if mounts[0].Sequence != 1 || mounts[1].Sequence != 3 {
		t.Errorf("sequences = %d,%d, want 1,3", mounts[0].Sequence, mounts[1].Sequence)
	}
	if store.Count() != 3 {
		t.Errorf("Count = %d, want 3", store.Count())
	}
}

func TestStore_PersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "audit.db")

	store1, err := OpenStore(dbPath)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if _, err := store1.Append(EntryTrustBoundary, TrustBoundaryData{Detail: "first"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	e2, err := store1.Append(EntryTrustBoundary, TrustBoundaryData{Detail: "second"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	store1.Close()

	store2, err := OpenStore(dbPath)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	defer store2.Close()

	e3, err := store2.Append(EntryTrustBoundary, TrustBoundaryData{Detail: "third"})
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if e3.Sequence != 3 {
		t.Errorf("e3.Sequence = %d, want 3", e3.Sequence)
	}
	if e3.PrevHash != e2.Hash {
		t.Errorf("e3.PrevHash = %s, want %s (chain broken)", e3.PrevHash, e2.Hash)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	return store
}
