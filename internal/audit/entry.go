// Package audit is warden's tamper-evident record of security-relevant
// decisions: mount resolution, trust-boundary changes, blocked protocol
// calls, container lifecycle and credential injection.
//
// Entries form a SHA-256 hash chain persisted in SQLite. Editing or
// removing a row breaks the chain, which Store.Verify detects.
package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/majorcontext/warden/internal/log"
)

// EntryType identifies the kind of log entry.
type EntryType string

const (
	EntryMount         EntryType = "mount"
	EntryTrustBoundary EntryType = "trust_boundary"
	EntryDenial        EntryType = "acp_denial"
	EntryContainer     EntryType = "container"
	EntryCredential    EntryType = "credential"
)

// FirstSequence is the sequence number of the first entry in a log.
// Sequence 0 means "no previous entry".
const FirstSequence uint64 = 1

// MountData records an accepted bind mount.
type MountData struct {
	Session  string `json:"session,omitempty"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

// TrustBoundaryData records a weakening of the default isolation.
type TrustBoundaryData struct {
	Session string `json:"session,omitempty"`
	Detail  string `json:"detail"`
}

// DenialData records a protocol call refused by capability policy.
type DenialData struct {
	Session   string `json:"session,omitempty"`
	Method    string `json:"method"`
	Family    string `json:"family"`
	Direction string `json:"direction"`
}

// ContainerData records container lifecycle.
type ContainerData struct {
	Session     string `json:"session,omitempty"`
	Action      string `json:"action"` // "created", "started", "stopped", "removed"
	ContainerID string `json:"container_id"`
	Image       string `json:"image,omitempty"`
	Privileged  bool   `json:"privileged,omitempty"`
}

// CredentialData records a credential made available to a container.
// Values are never logged.
type CredentialData struct {
	Session string `json:"session,omitempty"`
	Name    string `json:"name"`   // "claude", "codex", "gemini", "github"
	Action  string `json:"action"` // "copied", "mounted"
	Target  string `json:"target"`
}

// Entry is a single hash-chained log entry.
type Entry struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Type      EntryType `json:"type"`
	PrevHash  string    `json:"prev"`
	Data      any       `json:"data"`
	Hash      string    `json:"hash"`
	// dataJSON is the exact encoding that was hashed. After a database
	// round-trip Data is a map[string]any, whose encoding orders keys
	// differently from the original struct.
	dataJSON []byte
}

// NewEntry creates a new entry with computed hash.
func NewEntry(seq uint64, prevHash string, entryType EntryType, data any) *Entry {
	return newEntryWithTimestamp(seq, prevHash, entryType, data, time.Now().UTC())
}

func newEntryWithTimestamp(seq uint64, prevHash string, entryType EntryType, data any, ts time.Time) *Entry {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		log.Warn("failed to marshal entry data", "type", entryType, "error", err)
		dataJSON = []byte("null")
	}
	e := &Entry{
		Sequence:  seq,
		Timestamp: ts,
		Type:      entryType,
		PrevHash:  prevHash,
		Data:      data,
		dataJSON:  dataJSON,
	}
	e.Hash = e.computeHash()
	return e
}

// computeHash calculates SHA-256(seq || ts || type || prev || data).
func (e *Entry) computeHash() string {
	h := sha256.New()

	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], e.Sequence)
	h.Write(seqBytes[:])
	h.Write([]byte(e.Timestamp.Format(time.RFC3339Nano)))
	h.Write([]byte(e.Type))
	h.Write([]byte(e.PrevHash))

	dataBytes := e.dataJSON
	if dataBytes == nil {
		var err error
		dataBytes, err = json.Marshal(e.Data)
		if err != nil {
			log.Warn("failed to marshal entry data for hash", "seq", e.Sequence, "error", err)
			dataBytes = []byte("null")
		}
	}
	h.Write(dataBytes)

	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks if the entry's hash is valid.
func (e *Entry) Verify() bool {
	return e.Hash == e.computeHash()
}
