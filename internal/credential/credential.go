// Package credential locates the agent credential directories on the host
// and the GitHub token file produced by the out-of-band refresher.
package credential

import (
	"os"
	"path"
	"path/filepath"

	"github.com/majorcontext/warden/internal/log"
)

// ContainerHome is the fixed root under which credentials are extracted in
// the container. It is also HOME for the agent process.
const ContainerHome = "/home/agent"

// The agent runs as this uid/gid; uploaded files are owned by it.
const (
	AgentUID = 1000
	AgentGID = 1000
)

// Family is a credential family, one per supported agent.
type Family string

const (
	Claude Family = "claude"
	Codex  Family = "codex"
	Gemini Family = "gemini"
)

// Families lists every family in the order uploads report them.
var Families = []Family{Claude, Codex, Gemini}

// Dir is the family's directory name relative to a home directory.
func (f Family) Dir() string {
	return "." + string(f)
}

// Target is the family's absolute path inside the container.
func (f Family) Target() string {
	return path.Join(ContainerHome, f.Dir())
}

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	for _, k := range Families {
		if k == f {
			return true
		}
	}
	return false
}

// Source is a family whose directory exists on the host.
type Source struct {
	Family   Family
	HostPath string
}

// Target is the container path the source is uploaded to.
func (s Source) Target() string { return s.Family.Target() }

// Resolve returns the selected families that are present under home, in
// Families order. Missing directories are skipped.
func Resolve(home string, selected []Family) []Source {
	want := make(map[Family]bool, len(selected))
	for _, f := range selected {
		want[f] = true
	}

	var out []Source
	for _, f := range Families {
		if !want[f] {
			continue
		}
		p := filepath.Join(home, f.Dir())
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			log.Debug("credential source not present, skipping", "family", f, "path", p)
			continue
		}
		out = append(out, Source{Family: f, HostPath: p})
	}
	return out
}
