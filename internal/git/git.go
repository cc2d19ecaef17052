// Package git clones source repositories for the build worker.
package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// ErrRepositoryNotFound is returned when the remote does not exist or is not
// readable anonymously.
var ErrRepositoryNotFound = errors.New("git: repository not found")

// Cloner clones repositories with go-git.
type Cloner struct {
	// Depth limits history; zero clones everything.
	Depth int
}

// New returns a Cloner fetching depth commits of history.
func New(depth int) *Cloner {
	if depth < 0 {
		depth = 0
	}
	return &Cloner{Depth: depth}
}

// Clone clones repoURL into dest, which must be empty or missing. Transfer
// progress is written to progress when non-nil. Returns the checked out
// commit hash.
func (c *Cloner) Clone(ctx context.Context, repoURL, dest string, progress io.Writer) (string, error) {
	repoURL = strings.TrimSpace(repoURL)
	if repoURL == "" {
		return "", fmt.Errorf("repository URL cannot be empty")
	}
	if dest == "" {
		return "", fmt.Errorf("destination cannot be empty")
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create clone destination: %w", err)
	}
	opts := &gogit.CloneOptions{
		URL:          repoURL,
		Depth:        c.Depth,
		SingleBranch: true,
		Tags:         gogit.NoTags,
		Progress:     progress,
	}
	repo, err := gogit.PlainCloneContext(ctx, dest, false, opts)
	if err != nil {
		if errors.Is(err, transport.ErrRepositoryNotFound) || errors.Is(err, transport.ErrAuthenticationRequired) {
			return "", fmt.Errorf("clone %s: %w", repoURL, ErrRepositoryNotFound)
		}
		return "", fmt.Errorf("clone %s: %w", repoURL, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}
