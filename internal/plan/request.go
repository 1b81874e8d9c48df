// Package plan turns a LaunchRequest into a validated, immutable LaunchPlan.
package plan

// Family is the command family of a launch.
type Family string

const (
	// Interactive runs an agent attached to the caller's terminal.
	Interactive Family = "interactive"
	// Hosting runs an agent as a protocol server on stdin/stdout.
	Hosting Family = "hosting"
)

// AgentKind distinguishes built-in agents from caller-supplied commands.
type AgentKind string

const (
	Builtin AgentKind = "builtin"
	Custom  AgentKind = "custom"
)

// Protocol is what the agent speaks on stdin/stdout when hosted.
type Protocol string

const (
	ProtocolNone Protocol = "none"
	ProtocolACP  Protocol = "acp"
	ProtocolRaw  Protocol = "raw"
)

// Agent describes what to run.
type Agent struct {
	Kind AgentKind
	// Name selects a built-in agent.
	Name string
	// Command is required for custom agents. Args are appended for both kinds.
	Command string
	Args    []string
	// Protocol defaults to none. Hosting requires acp or raw.
	Protocol Protocol
}

// WorkspaceSource picks how the workspace reaches the container.
type WorkspaceSource string

const (
	SourceClone     WorkspaceSource = "clone"
	SourceHostMount WorkspaceSource = "host_mount"
)

// Workspace describes the agent's working tree.
type Workspace struct {
	Source WorkspaceSource

	// Clone.
	Repo   string
	Branch string

	// Host mount.
	HostPath string
	// ContainerPath defaults to the planner's workspace path.
	ContainerPath string
	ReadOnly      bool
}

// MountRequest is an additional host bind mount.
type MountRequest struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// Credentials selects what is made available to the agent.
type Credentials struct {
	CopyClaude  bool
	CopyCodex   bool
	CopyGemini  bool
	GitHubToken bool
}

// Security is the requested privilege level.
type Security struct {
	Privileged bool
	// Fuse and KeepSELinuxLabel only apply when Privileged is false.
	Fuse             bool
	KeepSELinuxLabel bool
}

// LaunchRequest is a declarative launch. The planner reads it and never
// modifies it.
type LaunchRequest struct {
	Family       Family
	Agent        Agent
	Workspace    Workspace
	Mounts       []MountRequest
	Credentials  Credentials
	EnvAllowlist []string
	Security     Security
	// Image overrides the planner's default image.
	Image string
}
