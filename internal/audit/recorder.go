package audit

import (
	"github.com/majorcontext/warden/internal/acp"
	"github.com/majorcontext/warden/internal/log"
	"github.com/majorcontext/warden/internal/mount"
)

var (
	_ mount.Recorder = (*Recorder)(nil)
	_ acp.Recorder   = (*Recorder)(nil)
)

// Recorder appends session-tagged entries to a Store. A nil *Recorder
// discards everything, so callers need not check whether auditing is on.
type Recorder struct {
	store   *Store
	session string
}

// NewRecorder returns a Recorder writing to store on behalf of session.
func NewRecorder(store *Store, session string) *Recorder {
	return &Recorder{store: store, session: session}
}

// ForSession returns a Recorder sharing the same store for another session.
func (r *Recorder) ForSession(session string) *Recorder {
	if r == nil {
		return nil
	}
	return &Recorder{store: r.store, session: session}
}

func (r *Recorder) append(t EntryType, data any) error {
	if r == nil || r.store == nil {
		return nil
	}
	e, err := r.store.Append(t, data)
	if err != nil {
		log.Warn("audit append failed", "type", t, "error", err)
		return err
	}
	log.Debug("audit entry", "type", t, "seq", e.Sequence)
	return nil
}

// RecordMount records an accepted bind mount.
func (r *Recorder) RecordMount(source, target string, readOnly bool) error {
	return r.append(EntryMount, MountData{
		Session:  r.sessionID(),
		Source:   source,
		Target:   target,
		ReadOnly: readOnly,
	})
}

// RecordTrustBoundary records an isolation override.
func (r *Recorder) RecordTrustBoundary(detail string) error {
	return r.append(EntryTrustBoundary, TrustBoundaryData{Session: r.sessionID(), Detail: detail})
}

// RecordDenial records a blocked protocol call.
func (r *Recorder) RecordDenial(method, family, direction string) error {
	return r.append(EntryDenial, DenialData{
		Session:   r.sessionID(),
		Method:    method,
		Family:    family,
		Direction: direction,
	})
}

// RecordContainer records a lifecycle step.
func (r *Recorder) RecordContainer(action, containerID, image string, privileged bool) error {
	return r.append(EntryContainer, ContainerData{
		Session:     r.sessionID(),
		Action:      action,
		ContainerID: containerID,
		Image:       image,
		Privileged:  privileged,
	})
}

// RecordCredential records a credential made available inside a container.
func (r *Recorder) RecordCredential(name, action, target string) error {
	return r.append(EntryCredential, CredentialData{
		Session: r.sessionID(),
		Name:    name,
		Action:  action,
		Target:  target,
	})
}

func (r *Recorder) sessionID() string {
	if r == nil {
		return ""
	}
	return r.session
}
