package plan

import (
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/majorcontext/warden/internal/bridge"
	"github.com/majorcontext/warden/internal/credential"
	"github.com/majorcontext/warden/internal/engine"
	"github.com/majorcontext/warden/internal/fault"
	"github.com/majorcontext/warden/internal/log"
	"github.com/majorcontext/warden/internal/mount"
)

// DefaultWorkspacePath is where the workspace lands in the container when
// the request does not say.
const DefaultWorkspacePath = "/workspace"

const defaultTerm = "xterm-256color"

// Environment is what the planner may observe about the calling process.
type Environment struct {
	// Lookup reads a host environment variable. nil means an empty environment.
	Lookup    func(string) (string, bool)
	StdinTTY  bool
	StdoutTTY bool
}

func (e Environment) lookup(name string) (string, bool) {
	if e.Lookup == nil {
		return "", false
	}
	return e.Lookup(name)
}

// Planner normalizes requests. Its fields come from validated configuration
// and are not modified.
type Planner struct {
	// Roots are the allowlisted host directories for bind mounts.
	Roots        []string
	DefaultImage string
	// WorkspacePath defaults to DefaultWorkspacePath.
	WorkspacePath string
	BufferSize    int
	// TokenFile is the host GitHub token file. Its directory must lie inside
	// RuntimeRoot or one of Roots.
	TokenFile   string
	RuntimeRoot string
	Recorder    mount.Recorder
}

// reserved variables are set by the planner and never taken from the host.
var reserved = map[string]bool{
	"HOME":              true,
	credential.TokenEnv: true,
}

// Normalize validates req and resolves it into a plan. Every rejection is a
// configuration error naming the offending field, or a filesystem error from
// mount resolution.
func (p *Planner) Normalize(req LaunchRequest, env Environment) (*LaunchPlan, error) {
	if err := checkFamily(req); err != nil {
		return nil, err
	}
	command, acp, err := resolveAgent(req)
	if err != nil {
		return nil, err
	}

	image := strings.TrimSpace(req.Image)
	if image == "" {
		image = strings.TrimSpace(p.DefaultImage)
	}
	if image == "" {
		return nil, fault.Missing("image")
	}

	lp := &LaunchPlan{
		family:   req.Family,
		agent:    agentLabel(req.Agent),
		image:    image,
		command:  command,
		env:      map[string]string{},
		security: securityProfile(req.Security),
		acp:      acp,
	}

	if err := p.resolveWorkspace(lp, req.Workspace); err != nil {
		return nil, err
	}
	mounter := &mount.Mounter{Roots: p.Roots, Recorder: p.Recorder}
	for i, m := range req.Mounts {
		if m.HostPath == "" {
			return nil, fault.Missing("mounts[" + strconv.Itoa(i) + "].host_path")
		}
		d, err := mounter.Resolve(m.HostPath, m.ContainerPath, m.ReadOnly)
		if err != nil {
			return nil, err
		}
		lp.mounts = append(lp.mounts, d)
	}

	lp.stream = p.streamPolicy(req.Family, env)

	// Environment: allowlist first, then values the planner owns.
	for _, name := range req.EnvAllowlist {
		if name == "" || reserved[name] {
			continue
		}
		if v, ok := env.lookup(name); ok {
			lp.env[name] = v
		} else {
			log.Debug("allowlisted variable not set, skipping", "name", name)
		}
	}
	lp.env["HOME"] = credential.ContainerHome
	if lp.stream.Mode == bridge.ModeTTY {
		if _, ok := lp.env["TERM"]; !ok {
			lp.env["TERM"] = defaultTerm
		}
	}

	lp.credentials = selectedFamilies(req.Credentials)
	if req.Credentials.GitHubToken {
		if err := p.resolveToken(lp); err != nil {
			return nil, err
		}
	}

	log.Debug("launch plan",
		"family", lp.family,
		"agent", lp.agent,
		"image", lp.image,
		"stream", lp.stream.Mode,
		"mounts", len(lp.mounts),
		"acp", lp.acp,
		"privileged", lp.security.Privileged)
	return lp, nil
}

func checkFamily(req LaunchRequest) error {
	switch req.Family {
	case Interactive:
		return nil
	case Hosting:
		switch req.Agent.Protocol {
		case ProtocolACP, ProtocolRaw:
			return nil
		case ProtocolNone, "":
			return fault.Illegal("agent.protocol", "hosting requires a protocol-capable agent (acp or raw)")
		}
		return fault.Invalid("agent.protocol", "unknown protocol "+string(req.Agent.Protocol))
	case "":
		return fault.Missing("family")
	}
	return fault.Invalid("family", "unknown family "+string(req.Family))
}

// resolveAgent returns the argv and whether the ACP guard applies.
func resolveAgent(req LaunchRequest) ([]string, bool, error) {
	a := req.Agent
	switch a.Protocol {
	case "", ProtocolNone, ProtocolACP, ProtocolRaw:
	default:
		return nil, false, fault.Invalid("agent.protocol", "unknown protocol "+string(a.Protocol))
	}
	hostedACP := req.Family == Hosting && a.Protocol == ProtocolACP

	kind := a.Kind
	if kind == "" {
		kind = Builtin
		if a.Name == "" && a.Command != "" {
			kind = Custom
		}
	}

	switch kind {
	case Builtin:
		if a.Name == "" {
			return nil, false, fault.Missing("agent.name")
		}
		b, ok := builtins[a.Name]
		if !ok {
			return nil, false, fault.Invalid("agent.name",
				"unknown agent "+a.Name+" (want one of "+strings.Join(BuiltinAgents(), ", ")+")")
		}
		cmd := b.command
		if hostedACP {
			if b.acp == nil {
				return nil, false, fault.Illegal("agent.protocol", a.Name+" does not speak acp")
			}
			cmd = b.acp
		}
		return append(slices.Clone(cmd), a.Args...), hostedACP, nil

	case Custom:
		if strings.TrimSpace(a.Command) == "" {
			return nil, false, fault.Missing("agent.command")
		}
		return append([]string{a.Command}, a.Args...), hostedACP, nil
	}
	return nil, false, fault.Invalid("agent.kind", "unknown agent kind "+string(kind))
}

func agentLabel(a Agent) string {
	if a.Name != "" {
		return a.Name
	}
	return filepath.Base(a.Command)
}

func (p *Planner) workspacePath() string {
	if p.WorkspacePath != "" {
		return p.WorkspacePath
	}
	return DefaultWorkspacePath
}

func (p *Planner) resolveWorkspace(lp *LaunchPlan, ws Workspace) error {
	switch ws.Source {
	case SourceClone:
		if strings.TrimSpace(ws.Repo) == "" {
			return fault.Missing("workspace.repo")
		}
		dst := p.workspacePath()
		lp.clone = &CloneSpec{Repo: ws.Repo, Branch: ws.Branch, Path: dst}
		lp.workDir = dst
		return nil

	case SourceHostMount:
		if ws.HostPath == "" {
			return fault.Missing("workspace.host_path")
		}
		target := ws.ContainerPath
		if target == "" {
			target = p.workspacePath()
		}
		mounter := &mount.Mounter{Roots: p.Roots, Recorder: p.Recorder}
		d, err := mounter.Resolve(ws.HostPath, target, ws.ReadOnly)
		if err != nil {
			return err
		}
		lp.mounts = append(lp.mounts, d)
		lp.workDir = d.Target
		return nil

	case "":
		return fault.Missing("workspace.source")
	}
	return fault.Invalid("workspace.source", "unknown workspace source "+string(ws.Source))
}

// streamPolicy picks tty only for interactive launches on a real terminal.
// Hosting is always protocol with a bounded buffer.
func (p *Planner) streamPolicy(f Family, env Environment) bridge.StreamPolicy {
	size := p.BufferSize
	if size <= 0 {
		size = bridge.DefaultBufferSize
	}
	if f == Interactive && env.StdinTTY && env.StdoutTTY {
		return bridge.StreamPolicy{Mode: bridge.ModeTTY, BufferSize: size}
	}
	return bridge.StreamPolicy{Mode: bridge.ModeProtocol, BufferSize: size}
}

func securityProfile(s Security) engine.SecurityProfile {
	if s.Privileged {
		return engine.SecurityProfile{Privileged: true}
	}
	return engine.SecurityProfile{Fuse: s.Fuse, KeepSELinuxLabel: s.KeepSELinuxLabel}
}

// selectedFamilies lists requested families in upload order. Credentials
// are opt-in; a built-in agent does not imply its own family.
func selectedFamilies(c Credentials) []credential.Family {
	var out []credential.Family
	if c.CopyClaude {
		out = append(out, credential.Claude)
	}
	if c.CopyCodex {
		out = append(out, credential.Codex)
	}
	if c.CopyGemini {
		out = append(out, credential.Gemini)
	}
	return out
}

// resolveToken mounts the token file's directory read-only. The directory,
// not the file, is mounted so an atomic rename by the refresher is visible
// inside the container.
func (p *Planner) resolveToken(lp *LaunchPlan) error {
	if p.TokenFile == "" {
		return fault.Missing("credentials.token_file")
	}
	tf := credential.TokenFile{Path: p.TokenFile}
	mounter := &mount.Mounter{Roots: p.tokenRoots(), Recorder: p.Recorder}
	d, err := mounter.Resolve(tf.Dir(), credential.TokenMountDir, true)
	if err != nil {
		return err
	}
	lp.mounts = append(lp.mounts, d)
	lp.token = &tf
	lp.env[credential.TokenEnv] = tf.ContainerPath()
	if lp.clone != nil {
		lp.clone.UseToken = true
	}
	return nil
}

// Revalidate repeats mount canonicalisation for every mount in lp against
// the roots it was first resolved with. Call it immediately before creating
// the container; the returned descriptors are the ones to use.
func (p *Planner) Revalidate(lp *LaunchPlan) ([]mount.Descriptor, error) {
	mounts := lp.Mounts()
	out := make([]mount.Descriptor, 0, len(mounts))
	for _, d := range mounts {
		roots := p.Roots
		if lp.token != nil && d.Target == credential.TokenMountDir {
			roots = p.tokenRoots()
		}
		fresh, err := mount.Revalidate(d, roots)
		if err != nil {
			return nil, err
		}
		out = append(out, fresh)
	}
	return out, nil
}

func (p *Planner) tokenRoots() []string {
	if p.RuntimeRoot == "" {
		return p.Roots
	}
	return append([]string{p.RuntimeRoot}, p.Roots...)
}
