package credential

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// TokenEnv names the variable pointing the agent at its token file.
const TokenEnv = "GITHUB_TOKEN_FILE"

// TokenMountDir is where the token's directory is mounted read-only.
const TokenMountDir = "/run/warden/github"

// ErrNoToken is returned when the token file is missing or empty.
var ErrNoToken = errors.New("github token file is missing or empty")

// TokenFile is a bearer token file kept current by an external refresher
// that replaces it with an atomic rename. It is never locked and never
// cached: every Read opens the path afresh.
type TokenFile struct {
	Path string
}

// Read returns the current token with surrounding whitespace removed.
func (t TokenFile) Read() (string, error) {
	if t.Path == "" {
		return "", ErrNoToken
	}
	data, err := os.ReadFile(t.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// Dir is the host directory to mount. The directory rather than the file is
// mounted so a rename-replaced file stays visible in the container.
func (t TokenFile) Dir() string {
	return filepath.Dir(t.Path)
}

// ContainerPath is where the agent finds the token.
func (t TokenFile) ContainerPath() string {
	return path.Join(TokenMountDir, filepath.Base(t.Path))
}
