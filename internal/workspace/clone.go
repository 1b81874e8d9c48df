// Package workspace prepares a cloned workspace on the host and uploads it
// into the session container. The token used for the clone never enters
// the container through this path; the agent only sees its read-only mount.
package workspace

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/majorcontext/warden/internal/credential"
	"github.com/majorcontext/warden/internal/engine"
	"github.com/majorcontext/warden/internal/log"
	"github.com/majorcontext/warden/internal/plan"
)

// tokenUser is the username GitHub expects alongside an access token.
const tokenUser = "x-access-token"

// Uploader extracts a tar stream inside a container.
type Uploader interface {
	UploadArchive(ctx context.Context, containerID, dst string, r io.Reader) error
}

// Cloner clones repositories on the host and uploads them.
type Cloner struct {
	Uploader Uploader
	// ScratchDir holds temporary clones. Empty uses the system temp dir.
	ScratchDir string
	// Depth limits history; 0 fetches everything.
	Depth int
}

// Clone clones spec.Repo into a scratch directory and uploads it to
// spec.Path in containerID. When spec.UseToken is set and token holds a
// value, https remotes authenticate with it; a missing token falls back to
// an anonymous clone.
func (c *Cloner) Clone(ctx context.Context, containerID string, spec plan.CloneSpec, token *credential.TokenFile) error {
	dir, err := os.MkdirTemp(c.ScratchDir, "warden-clone-")
	if err != nil {
		return fmt.Errorf("creating clone dir: %w", err)
	}
	defer os.RemoveAll(dir)

	opts := &git.CloneOptions{
		URL:   spec.Repo,
		Depth: c.Depth,
	}
	if spec.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(spec.Branch)
		opts.SingleBranch = true
	}
	if spec.UseToken {
		opts.Auth = authFor(spec.Repo, token)
	}

	log.Debug("cloning workspace", "repo", redact(spec.Repo), "branch", spec.Branch, "depth", c.Depth)
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return fmt.Errorf("cloning %s: %w", redact(spec.Repo), err)
	}

	if err := c.upload(ctx, containerID, dir, spec.Path); err != nil {
		return err
	}
	log.Debug("workspace uploaded", "container_id", containerID, "path", spec.Path)
	return nil
}

// upload streams dir as a tar archive rooted at dst.
func (c *Cloner) upload(ctx context.Context, containerID, dir, dst string) error {
	pr, pw := io.Pipe()
	go func() {
		tw := tar.NewWriter(pw)
		owner := engine.Owner{UID: credential.AgentUID, GID: credential.AgentGID}
		err := engine.TarTree(tw, dir, strings.TrimPrefix(dst, "/"), owner)
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	err := c.Uploader.UploadArchive(ctx, containerID, "/", pr)
	// Unblock the writer if the upload stopped reading early.
	pr.CloseWithError(io.ErrClosedPipe)
	return err
}

// authFor returns basic auth for https remotes when a token is readable.
func authFor(repo string, token *credential.TokenFile) transport.AuthMethod {
	if token == nil || !strings.HasPrefix(repo, "https://") {
		return nil
	}
	tok, err := token.Read()
	if err != nil {
		if !errors.Is(err, credential.ErrNoToken) {
			log.Warn("reading GitHub token failed, cloning anonymously", "error", err)
		}
		return nil
	}
	return &githttp.BasicAuth{Username: tokenUser, Password: tok}
}

// redact drops any userinfo from a URL before it is logged.
func redact(repo string) string {
	scheme, rest, ok := strings.Cut(repo, "://")
	if !ok {
		return repo
	}
	if at := strings.LastIndex(strings.SplitN(rest, "/", 2)[0], "@"); at >= 0 {
		rest = rest[at+1:]
	}
	return scheme + "://" + rest
}
