// Package checkout fetches the project source into a branch workspace.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/relforge/internal/config"
	rferrors "git.home.luguber.info/inful/relforge/internal/errors"
	"git.home.luguber.info/inful/relforge/internal/logfields"
)

// Client clones the project repository into per-branch directories.
type Client struct {
	token string // optional; reused from the forge credential for private clones
}

func NewClient() *Client { return &Client{} }

// WithToken attaches a credential used for HTTP clones of private repositories.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// Checkout clones project.URL into dir. When tag is non-empty the clone is
// pinned to refs/tags/<tag>; otherwise the default branch head is used.
func (c *Client) Checkout(ctx context.Context, project config.ProjectConfig, tag, dir string) (string, error) {
	repoPath := filepath.Join(dir, project.Name)
	slog.Debug("Checking out project source",
		logfields.URL(project.URL), logfields.Name(project.Name), logfields.Tag(tag), logfields.Path(repoPath))

	if err := os.RemoveAll(repoPath); err != nil {
		return "", fmt.Errorf("failed to clear checkout directory: %w", err)
	}

	cloneOptions := &git.CloneOptions{URL: project.URL}
	if tag != "" {
		cloneOptions.ReferenceName = plumbing.ReferenceName("refs/tags/" + tag)
		cloneOptions.SingleBranch = true
	}
	if c.token != "" {
		cloneOptions.Auth = &githttp.BasicAuth{Username: "relforge", Password: c.token}
	}

	repository, err := git.PlainCloneContext(ctx, repoPath, false, cloneOptions)
	if err != nil {
		return "", classifyCloneError(project.URL, tag, err)
	}

	if ref, herr := repository.Head(); herr == nil {
		slog.Info("Project source checked out",
			logfields.Name(project.Name), logfields.Tag(tag),
			slog.String("commit", shortHash(ref.Hash().String())), logfields.Path(repoPath))
	} else {
		slog.Info("Project source checked out", logfields.Name(project.Name), logfields.Tag(tag), logfields.Path(repoPath))
	}

	return repoPath, nil
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func classifyCloneError(url, tag string, err error) error {
	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "authentication") || strings.Contains(l, "auth fail") ||
		strings.Contains(l, "invalid username or password") || strings.Contains(l, "authorization"):
		return rferrors.AuthorizationError("clone rejected by remote").
			WithCause(err).WithContext("url", url).Build()
	case strings.Contains(l, "reference not found") || strings.Contains(l, "couldn't find remote ref"):
		return rferrors.NotFoundError("tag not present on remote").
			WithCause(err).WithContext("url", url).WithContext("tag", tag).Build()
	case strings.Contains(l, "not found") || strings.Contains(l, "repository does not exist"):
		return rferrors.NotFoundError("repository not found").
			WithCause(err).WithContext("url", url).Build()
	default:
		return rferrors.NewError(rferrors.CategoryGit, "clone failed").
			WithCause(err).WithContext("url", url).Build()
	}
}
