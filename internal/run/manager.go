// Package run orchestrates a launch: plan, create the container, upload
// credentials and workspace, run the agent through the exec bridge, and
// tear everything down again.
package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/majorcontext/warden/internal/acp"
	"github.com/majorcontext/warden/internal/audit"
	"github.com/majorcontext/warden/internal/bridge"
	"github.com/majorcontext/warden/internal/credential"
	"github.com/majorcontext/warden/internal/engine"
	"github.com/majorcontext/warden/internal/log"
	"github.com/majorcontext/warden/internal/plan"
	"github.com/majorcontext/warden/internal/workspace"
)

// teardownTimeout bounds stop and remove after the agent exits. Teardown
// runs on a context detached from the caller so a cancelled launch still
// releases its container.
const teardownTimeout = 30 * time.Second

// Engine is the part of *engine.Connector the manager drives.
type Engine interface {
	CreateContainer(ctx context.Context, spec engine.ContainerSpec) (*engine.ContainerSession, error)
	StartContainer(ctx context.Context, s *engine.ContainerSession) error
	StopContainer(ctx context.Context, s *engine.ContainerSession) error
	RemoveContainer(ctx context.Context, s *engine.ContainerSession) error
	RemoveByID(ctx context.Context, containerID string) error
	ListSessions(ctx context.Context) ([]engine.SessionInfo, error)
	UploadCredentials(ctx context.Context, containerID, home string, selected []credential.Family) (engine.UploadResult, error)
	workspace.Uploader
	Exec(ctx context.Context, s *engine.ContainerSession, spec bridge.ExecSpec, policy bridge.StreamPolicy, streams bridge.Streams) (*bridge.Result, error)
}

var _ Engine = (*engine.Connector)(nil)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Engine  Engine
	Planner *plan.Planner
	// CredentialHome is where agent credential directories are read from.
	CredentialHome string
	// RuntimeRoot holds per-session scratch directories.
	RuntimeRoot string
	// Audit may be nil to disable auditing.
	Audit *audit.Recorder
	// ACP is applied to every ACP-hosting session.
	ACP            acp.Policy
	MaxMessageSize int
	// CloneDepth limits clone history; 0 fetches everything.
	CloneDepth int
}

// Manager runs launches. It is safe for concurrent use; each launch owns
// its container exclusively.
type Manager struct {
	engine   Engine
	planner  plan.Planner
	cloner   *workspace.Cloner
	credHome string
	runtime  string
	audit    *audit.Recorder
	acp      acp.Policy
	maxMsg   int

	mu   sync.RWMutex
	runs map[string]*Run
}

// NewManager creates a manager.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Engine == nil {
		return nil, errors.New("run: engine is required")
	}
	if opts.Planner == nil {
		return nil, errors.New("run: planner is required")
	}
	if opts.RuntimeRoot == "" {
		return nil, errors.New("run: runtime root is required")
	}
	if err := os.MkdirAll(opts.RuntimeRoot, 0o700); err != nil {
		return nil, fmt.Errorf("creating runtime dir: %w", err)
	}
	cloner := &workspace.Cloner{
		Uploader:   opts.Engine,
		ScratchDir: opts.RuntimeRoot,
		Depth:      opts.CloneDepth,
	}
	return &Manager{
		engine:   opts.Engine,
		planner:  *opts.Planner,
		cloner:   cloner,
		credHome: opts.CredentialHome,
		runtime:  opts.RuntimeRoot,
		audit:    opts.Audit,
		acp:      opts.ACP,
		maxMsg:   opts.MaxMessageSize,
		runs:     make(map[string]*Run),
	}, nil
}

// Outcome is a finished launch.
type Outcome struct {
	Run    *Run
	Result *bridge.Result
}

// ExitCode is the process exit code the caller should use.
func (o *Outcome) ExitCode() int {
	if o == nil || o.Result == nil {
		return 1
	}
	return o.Result.ExitCode
}

// Launch runs req to completion. Streams are the caller's own; in hosting
// mode stdout receives only bytes from the agent. The container is stopped
// and removed before Launch returns, whatever the outcome.
func (m *Manager) Launch(ctx context.Context, req plan.LaunchRequest, env plan.Environment, streams bridge.Streams) (*Outcome, error) {
	r := newRun(req.Agent.Name)
	if r.Agent == "" {
		r.Agent = req.Agent.Command
	}
	logger := log.WithSession(r.ID)
	rec := m.audit.ForSession(r.ID)

	planner := m.planner
	if rec != nil {
		planner.Recorder = rec
	}
	lp, err := planner.Normalize(req, env)
	if err != nil {
		return nil, err
	}

	m.track(r)
	defer m.untrack(r.ID)

	res, err := m.launch(ctx, r, &planner, lp, rec, streams)
	code := 1
	if res != nil {
		code = res.ExitCode
	}
	r.finish(code, err)
	if err != nil {
		logger.Debug("launch failed", "error", err)
		return &Outcome{Run: r, Result: res}, err
	}
	logger.Debug("launch finished", "exit_code", code, "state", res.State)
	return &Outcome{Run: r, Result: res}, nil
}

func (m *Manager) launch(ctx context.Context, r *Run, planner *plan.Planner, lp *plan.LaunchPlan, rec *audit.Recorder, streams bridge.Streams) (*bridge.Result, error) {
	runtimeDir := filepath.Join(m.runtime, r.ID)
	if err := os.MkdirAll(runtimeDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating session dir: %w", err)
	}
	defer os.RemoveAll(runtimeDir)

	// Mount safety is checked again as late as possible before create.
	mounts, err := planner.Revalidate(lp)
	if err != nil {
		return nil, err
	}

	r.SetState(StateStarting)
	cs, err := m.engine.CreateContainer(ctx, lp.ContainerSpec(r.ID, runtimeDir, mounts))
	if err != nil {
		return nil, err
	}
	r.ContainerID = cs.ID
	rec.RecordContainer("created", cs.ID, lp.Image(), lp.Security().Privileged)
	if lp.Security().Privileged {
		rec.RecordTrustBoundary("container runs privileged")
	}
	defer m.teardown(ctx, cs, rec)

	if err := m.engine.StartContainer(ctx, cs); err != nil {
		return nil, err
	}
	rec.RecordContainer("started", cs.ID, lp.Image(), lp.Security().Privileged)

	uploaded, err := m.engine.UploadCredentials(ctx, cs.ID, m.credHome, lp.Credentials())
	if err != nil {
		return nil, err
	}
	for _, target := range uploaded.Targets {
		rec.RecordCredential(strings.TrimPrefix(path.Base(target), "."), "copied", target)
	}
	if tok := lp.Token(); tok != nil {
		rec.RecordCredential("github", "mounted", tok.ContainerPath())
	}

	if clone := lp.Clone(); clone != nil {
		if err := m.cloner.Clone(ctx, cs.ID, *clone, lp.Token()); err != nil {
			return nil, err
		}
	}

	r.SetState(StateRunning)
	if !lp.ACP() {
		return m.engine.Exec(ctx, cs, lp.ExecSpec(), lp.Stream(), streams)
	}
	return m.execGuarded(ctx, cs, lp, rec, streams)
}

// execGuarded runs an ACP agent with the guard between the caller and the
// container. A guard failure takes precedence over the bridge result.
func (m *Manager) execGuarded(ctx context.Context, cs *engine.ContainerSession, lp *plan.LaunchPlan, rec *audit.Recorder, streams bridge.Streams) (*bridge.Result, error) {
	var gr acp.Recorder
	if rec != nil {
		gr = rec
	}
	guard := acp.New(acp.Options{
		Policy:         m.acp,
		MaxMessageSize: m.maxMsg,
		Recorder:       gr,
	})
	agentIn, agentOut := guard.Wrap(streams.Stdin, streams.Stdout)

	res, err := m.engine.Exec(ctx, cs, lp.ExecSpec(), lp.Stream(), bridge.Streams{
		Stdin:  agentIn,
		Stdout: agentOut,
		Stderr: streams.Stderr,
	})
	if cerr := agentOut.Close(); cerr != nil {
		log.Debug("closing acp guard", "error", cerr)
	}
	if gerr := guard.Err(); gerr != nil {
		return res, gerr
	}
	return res, err
}

func (m *Manager) teardown(ctx context.Context, cs *engine.ContainerSession, rec *audit.Recorder) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	if err := m.engine.StopContainer(ctx, cs); err != nil {
		log.Warn("stopping container", "container_id", cs.ID, "error", err)
	} else {
		rec.RecordContainer("stopped", cs.ID, "", false)
	}
	if err := m.engine.RemoveContainer(ctx, cs); err != nil {
		log.Warn("removing container", "container_id", cs.ID, "error", err)
		return
	}
	rec.RecordContainer("removed", cs.ID, "", false)
}

// Cleanup removes warden containers that no live run in this manager owns.
// Running containers may belong to another warden process and are kept
// unless includeRunning is set. It returns the container ids it removed.
func (m *Manager) Cleanup(ctx context.Context, includeRunning bool) ([]string, error) {
	sessions, err := m.engine.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	live := make(map[string]bool, len(m.runs))
	for id := range m.runs {
		live[id] = true
	}
	m.mu.RUnlock()

	var removed []string
	var errs []error
	for _, s := range sessions {
		if live[s.SessionID] {
			continue
		}
		if s.State == string(engine.StateRunning) && !includeRunning {
			log.Debug("keeping running container", "container_id", s.ContainerID, "session_id", s.SessionID)
			continue
		}
		if err := m.engine.RemoveByID(ctx, s.ContainerID); err != nil {
			errs = append(errs, err)
			continue
		}
		log.Debug("removed orphaned container", "container_id", s.ContainerID, "session_id", s.SessionID)
		m.audit.ForSession(s.SessionID).RecordContainer("removed", s.ContainerID, "", false)
		removed = append(removed, s.ContainerID)
	}
	return removed, errors.Join(errs...)
}

// Get returns a live run.
func (m *Manager) Get(id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return r, nil
}

// List returns live runs, oldest first.
func (m *Manager) List() []*Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Manager) track(r *Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r
}

func (m *Manager) untrack(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, id)
}
