package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/majorcontext/warden/internal/acp"
	"github.com/majorcontext/warden/internal/audit"
	"github.com/majorcontext/warden/internal/bridge"
	"github.com/majorcontext/warden/internal/config"
	"github.com/majorcontext/warden/internal/engine"
	"github.com/majorcontext/warden/internal/fault"
	"github.com/majorcontext/warden/internal/log"
	"github.com/majorcontext/warden/internal/plan"
	"github.com/majorcontext/warden/internal/run"
	"github.com/majorcontext/warden/internal/term"
)

// cloneDepth is the history fetched for cloned workspaces.
const cloneDepth = 1

// launchFlags are shared by run and host.
type launchFlags struct {
	agent      string
	workspace  string
	target     string
	readOnly   bool
	repo       string
	branch     string
	mounts     []string
	env        []string
	copyCreds  []string
	token      bool
	image      string
	privileged bool
	fuse       bool
	keepLabel  bool
}

func addLaunchFlags(cmd *cobra.Command, f *launchFlags) {
	fl := cmd.Flags()
	fl.StringVarP(&f.agent, "agent", "a", "claude", "built-in agent: "+strings.Join(plan.BuiltinAgents(), ", "))
	fl.StringVarP(&f.workspace, "workspace", "w", ".", "host directory to mount as the workspace")
	fl.StringVar(&f.target, "workspace-path", "", "workspace path inside the container (default from config)")
	fl.BoolVar(&f.readOnly, "read-only", false, "mount the workspace read-only")
	fl.StringVar(&f.repo, "repo", "", "clone this repository instead of mounting a host directory")
	fl.StringVar(&f.branch, "branch", "", "branch to clone (with --repo)")
	fl.StringArrayVarP(&f.mounts, "mount", "m", nil, "extra mount host:container[:ro] (repeatable)")
	fl.StringArrayVarP(&f.env, "env", "e", nil, "forward a host environment variable by name (repeatable)")
	fl.StringSliceVar(&f.copyCreds, "credentials", nil, "copy agent credentials: claude, codex, gemini")
	fl.BoolVar(&f.token, "github-token", false, "mount the configured GitHub token file read-only")
	fl.StringVar(&f.image, "image", "", "container image (default from config)")
	fl.BoolVar(&f.privileged, "privileged", false, "run the container privileged")
	fl.BoolVar(&f.fuse, "fuse", false, "add /dev/fuse and SYS_ADMIN (ignored with --privileged)")
	fl.BoolVar(&f.keepLabel, "keep-selinux-label", false, "keep the engine's default SELinux label")
}

// request builds a LaunchRequest from flags. command, when non-empty,
// makes the agent custom.
func (f *launchFlags) request(family plan.Family, protocol plan.Protocol, command []string) (plan.LaunchRequest, error) {
	req := plan.LaunchRequest{
		Family:       family,
		EnvAllowlist: f.env,
		Image:        f.image,
		Security: plan.Security{
			Privileged:       f.privileged,
			Fuse:             f.fuse,
			KeepSELinuxLabel: f.keepLabel,
		},
	}

	if len(command) > 0 {
		req.Agent = plan.Agent{Kind: plan.Custom, Command: command[0], Args: command[1:], Protocol: protocol}
	} else {
		req.Agent = plan.Agent{Kind: plan.Builtin, Name: f.agent, Protocol: protocol}
	}

	if f.repo != "" {
		req.Workspace = plan.Workspace{Source: plan.SourceClone, Repo: f.repo, Branch: f.branch}
	} else {
		abs, err := filepath.Abs(f.workspace)
		if err != nil {
			return req, fmt.Errorf("resolving workspace: %w", err)
		}
		req.Workspace = plan.Workspace{
			Source:        plan.SourceHostMount,
			HostPath:      abs,
			ContainerPath: f.target,
			ReadOnly:      f.readOnly,
		}
	}

	for _, m := range f.mounts {
		mf, err := config.ParseMount(m)
		if err != nil {
			return req, fault.Invalid("mount", err.Error())
		}
		abs, err := filepath.Abs(mf.Source)
		if err != nil {
			return req, fmt.Errorf("resolving mount %s: %w", mf.Source, err)
		}
		req.Mounts = append(req.Mounts, plan.MountRequest{HostPath: abs, ContainerPath: mf.Target, ReadOnly: mf.ReadOnly})
	}

	for _, c := range f.copyCreds {
		switch strings.TrimSpace(c) {
		case "claude":
			req.Credentials.CopyClaude = true
		case "codex":
			req.Credentials.CopyCodex = true
		case "gemini":
			req.Credentials.CopyGemini = true
		case "":
		default:
			return req, fault.Invalid("credentials", "unknown credential family "+c)
		}
	}
	req.Credentials.GitHubToken = f.token
	return req, nil
}

// hostEnvironment describes this process to the planner.
func hostEnvironment() plan.Environment {
	return plan.Environment{
		Lookup:    os.LookupEnv,
		StdinTTY:  term.IsTerminal(os.Stdin),
		StdoutTTY: term.IsTerminal(os.Stdout),
	}
}

// connect builds a verified engine connection from configuration.
func connect(ctx context.Context, c *config.Config) (*engine.Connector, error) {
	ep := engine.Classify(c.Engine.Host)
	log.Debug("connecting to engine", "endpoint", ep.String(), "mode", ep.Mode)
	return engine.ConnectAndVerify(ctx, ep, engine.Options{CertPath: c.Engine.CertPath})
}

// openAudit opens the audit store, or returns nil when auditing is off.
func openAudit(c *config.Config) (*audit.Store, error) {
	if c.Audit.Path == "" {
		return nil, nil
	}
	return audit.OpenStore(c.Audit.Path)
}

func newPlanner(c *config.Config) *plan.Planner {
	return &plan.Planner{
		Roots:         c.Workspace.AllowedRoots,
		DefaultImage:  c.Image,
		WorkspacePath: c.Workspace.Path,
		BufferSize:    c.Protocol.BufferSize,
		TokenFile:     c.Credentials.TokenFile,
		RuntimeRoot:   c.Runtime.Dir,
	}
}

// launch runs req against the configured engine and returns the agent's
// caller-visible exit code as an exitError when non-zero.
func launch(req plan.LaunchRequest) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	store, err := openAudit(cfg)
	if err != nil {
		return err
	}
	var rec *audit.Recorder
	if store != nil {
		defer store.Close()
		rec = audit.NewRecorder(store, "")
	}

	mgr, err := run.NewManager(run.ManagerOptions{
		Engine:         conn,
		Planner:        newPlanner(cfg),
		CredentialHome: cfg.Credentials.Home,
		RuntimeRoot:    cfg.Runtime.Dir,
		Audit:          rec,
		ACP:            acp.Policy{DelegateOverride: cfg.Protocol.ACPDelegate},
		MaxMessageSize: cfg.Protocol.MaxMessageSize,
		CloneDepth:     cloneDepth,
	})
	if err != nil {
		return err
	}

	out, err := mgr.Launch(ctx, req, hostEnvironment(), bridge.Streams{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	if err != nil {
		return err
	}
	if code := out.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
