package plan

import (
	"maps"
	"slices"

	"github.com/majorcontext/warden/internal/bridge"
	"github.com/majorcontext/warden/internal/credential"
	"github.com/majorcontext/warden/internal/engine"
	"github.com/majorcontext/warden/internal/mount"
)

// AgentUser is the uid:gid the agent process runs as.
const AgentUser = "1000:1000"

// CloneSpec asks for a host-side clone uploaded into the container.
type CloneSpec struct {
	Repo   string
	Branch string
	// Path is the absolute destination inside the container.
	Path string
	// UseToken authenticates the clone with the GitHub token file.
	UseToken bool
}

// LaunchPlan is a fully resolved launch. It has no setters: any change
// means normalizing a new request.
type LaunchPlan struct {
	family      Family
	agent       string
	image       string
	command     []string
	env         map[string]string
	mounts      []mount.Descriptor
	security    engine.SecurityProfile
	stream      bridge.StreamPolicy
	workDir     string
	credentials []credential.Family
	token       *credential.TokenFile
	clone       *CloneSpec
	acp         bool
}

func (p *LaunchPlan) Family() Family                   { return p.family }
func (p *LaunchPlan) Agent() string                    { return p.agent }
func (p *LaunchPlan) Image() string                    { return p.image }
func (p *LaunchPlan) Command() []string                { return slices.Clone(p.command) }
func (p *LaunchPlan) Env() map[string]string           { return maps.Clone(p.env) }
func (p *LaunchPlan) Mounts() []mount.Descriptor       { return slices.Clone(p.mounts) }
func (p *LaunchPlan) Security() engine.SecurityProfile { return p.security }
func (p *LaunchPlan) Stream() bridge.StreamPolicy      { return p.stream }
func (p *LaunchPlan) WorkDir() string                  { return p.workDir }
func (p *LaunchPlan) Credentials() []credential.Family { return slices.Clone(p.credentials) }

// ACP reports whether the session must be wrapped by the ACP guard.
func (p *LaunchPlan) ACP() bool { return p.acp }

// Token returns the GitHub token file, or nil if none was requested.
func (p *LaunchPlan) Token() *credential.TokenFile {
	if p.token == nil {
		return nil
	}
	t := *p.token
	return &t
}

// Clone returns the clone request, or nil for host-mounted workspaces.
func (p *LaunchPlan) Clone() *CloneSpec {
	if p.clone == nil {
		return nil
	}
	c := *p.clone
	return &c
}

// ContainerSpec is the engine request for this plan. mounts overrides the
// plan's mounts when non-nil, so callers can pass revalidated descriptors.
func (p *LaunchPlan) ContainerSpec(sessionID, runtimeDir string, mounts []mount.Descriptor) engine.ContainerSpec {
	if mounts == nil {
		mounts = p.Mounts()
	}
	return engine.ContainerSpec{
		SessionID:  sessionID,
		Image:      p.image,
		Env:        p.Env(),
		WorkDir:    p.workDir,
		Mounts:     mounts,
		Security:   p.security,
		RuntimeDir: runtimeDir,
	}
}

// ExecSpec is the agent process to start in the container.
func (p *LaunchPlan) ExecSpec() bridge.ExecSpec {
	return bridge.ExecSpec{
		Cmd:     p.Command(),
		WorkDir: p.workDir,
		User:    AgentUser,
		TTY:     p.stream.Mode == bridge.ModeTTY,
	}
}
