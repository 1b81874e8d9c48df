// Package config loads warden's settings from ~/.warden/config.yaml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/majorcontext/warden/internal/fault"
)

// Environment variables that override the file.
const (
	EnvEngineHost  = "WARDEN_ENGINE_HOST"
	EnvDockerHost  = "DOCKER_HOST"
	EnvACPDelegate = "WARDEN_ACP_DELEGATE"
	EnvConfigDir   = "WARDEN_HOME"
)

// Defaults.
const (
	DefaultImage          = "ghcr.io/majorcontext/warden-agent:latest"
	DefaultWorkspacePath  = "/workspace"
	DefaultBufferSize     = 4096
	DefaultMaxMessageSize = 8 << 20
	DefaultRetentionDays  = 14
)

// Config holds warden settings.
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Image       string            `yaml:"image"`
	Workspace   WorkspaceConfig   `yaml:"workspace"`
	Runtime     RuntimeConfig     `yaml:"runtime"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Protocol    ProtocolConfig    `yaml:"protocol"`
	Debug       DebugConfig       `yaml:"debug"`
	Audit       AuditConfig       `yaml:"audit"`
}

// EngineConfig selects the container engine endpoint.
type EngineConfig struct {
	// Host is a unix socket path, unix://, npipe://, tcp://, http:// or
	// https:// address. Empty means the default local socket.
	Host string `yaml:"host,omitempty"`
	// CertPath holds ca.pem, cert.pem and key.pem for https endpoints.
	CertPath string `yaml:"cert_path,omitempty"`
}

// WorkspaceConfig controls what host paths may be mounted.
type WorkspaceConfig struct {
	// AllowedRoots lists host directories bind mounts must resolve inside.
	// Empty means no host mounts are allowed.
	AllowedRoots []string `yaml:"allowed_roots,omitempty"`
	// Path is the workspace location inside the container.
	Path string `yaml:"path,omitempty"`
}

// RuntimeConfig holds per-session scratch state on the host.
type RuntimeConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// CredentialsConfig locates host credentials.
type CredentialsConfig struct {
	// Home is the directory agent credential trees are copied from.
	Home string `yaml:"home,omitempty"`
	// TokenFile is a host file holding a GitHub token. It is mounted
	// read-only and re-read on every use.
	TokenFile string `yaml:"token_file,omitempty"`
}

// ProtocolConfig tunes protocol hosting.
type ProtocolConfig struct {
	BufferSize     int  `yaml:"buffer_size,omitempty"`
	MaxMessageSize int  `yaml:"max_message_size,omitempty"`
	ACPDelegate    bool `yaml:"acp_delegate,omitempty"`
}

// DebugConfig controls the JSONL debug log.
type DebugConfig struct {
	RetentionDays int `yaml:"retention_days,omitempty"`
}

// AuditConfig locates the audit database. Empty Path disables auditing.
type AuditConfig struct {
	Path string `yaml:"path,omitempty"`
}

// Dir returns the warden state directory, normally ~/.warden.
func Dir() string {
	if d := os.Getenv(EnvConfigDir); d != "" {
		return d
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".warden")
	}
	return filepath.Join(homeDir, ".warden")
}

// DebugDir is where JSONL debug logs are written.
func DebugDir() string {
	return filepath.Join(Dir(), "debug")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dir := Dir()
	return &Config{
		Image: DefaultImage,
		Workspace: WorkspaceConfig{
			Path: DefaultWorkspacePath,
		},
		Runtime: RuntimeConfig{
			Dir: filepath.Join(dir, "run"),
		},
		Credentials: CredentialsConfig{
			Home: home,
		},
		Protocol: ProtocolConfig{
			BufferSize:     DefaultBufferSize,
			MaxMessageSize: DefaultMaxMessageSize,
		},
		Debug: DebugConfig{
			RetentionDays: DefaultRetentionDays,
		},
		Audit: AuditConfig{
			Path: filepath.Join(dir, "audit.db"),
		},
	}
}

// Load reads Dir()/config.yaml over the defaults, applies environment
// overrides and validates the result.
func Load() (*Config, error) {
	return LoadFile(filepath.Join(Dir(), "config.yaml"))
}

// LoadFile is Load with an explicit file. A missing file is not an error.
func LoadFile(file string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", file, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.expand()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvEngineHost); ok && v != "" {
		c.Engine.Host = v
	} else if v, ok := lookup(EnvDockerHost); ok && v != "" && c.Engine.Host == "" {
		c.Engine.Host = v
	}
	if v, ok := lookup(EnvACPDelegate); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fault.Invalid("protocol.acp_delegate", fmt.Sprintf("%s=%q is not a boolean", EnvACPDelegate, v))
		}
		c.Protocol.ACPDelegate = b
	}
	return nil
}

// expand resolves a leading ~ in host paths.
func (c *Config) expand() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	ex := func(p string) string {
		if p == "~" {
			return home
		}
		if strings.HasPrefix(p, "~/") {
			return filepath.Join(home, p[2:])
		}
		return p
	}
	for i, r := range c.Workspace.AllowedRoots {
		c.Workspace.AllowedRoots[i] = ex(r)
	}
	c.Runtime.Dir = ex(c.Runtime.Dir)
	c.Credentials.Home = ex(c.Credentials.Home)
	c.Credentials.TokenFile = ex(c.Credentials.TokenFile)
	c.Engine.CertPath = ex(c.Engine.CertPath)
	c.Audit.Path = ex(c.Audit.Path)
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Image) == "" {
		return fault.Missing("image")
	}
	if c.Workspace.Path == "" {
		return fault.Missing("workspace.path")
	}
	if !path.IsAbs(c.Workspace.Path) {
		return fault.Invalid("workspace.path", "must be an absolute container path")
	}
	for _, r := range c.Workspace.AllowedRoots {
		if !filepath.IsAbs(r) {
			return fault.Invalid("workspace.allowed_roots", fmt.Sprintf("%q is not absolute", r))
		}
	}
	if c.Runtime.Dir == "" {
		return fault.Missing("runtime.dir")
	}
	if c.Protocol.BufferSize <= 0 {
		return fault.Invalid("protocol.buffer_size", "must be positive")
	}
	if c.Protocol.MaxMessageSize <= 0 {
		return fault.Invalid("protocol.max_message_size", "must be positive")
	}
	if c.Debug.RetentionDays < 0 {
		return fault.Invalid("debug.retention_days", "must not be negative")
	}
	return nil
}
